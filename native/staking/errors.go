package staking

import (
	"errors"
	"fmt"

	nativecommon "stakeledger/native/common"
)

var (
	ErrNilState            = errors.New("staking: state not configured")
	ErrNotInitialized      = errors.New("staking: ledger not initialised")
	ErrAlreadyInitialized  = errors.New("staking: ledger already initialised")
	ErrUnauthorized        = errors.New("staking: unauthorized")
	ErrPaused              = fmt.Errorf("staking: %w", nativecommon.ErrModulePaused)
	ErrNotFound            = errors.New("staking: not found")
	ErrBelowMinimum        = errors.New("staking: amount below pool minimum")
	ErrInsufficientBalance = errors.New("staking: insufficient staked balance")
	ErrInvalidAmount       = errors.New("staking: amount must be positive")
	ErrValueMismatch       = errors.New("staking: provided value does not match amount")
	ErrInvalidAddress      = errors.New("staking: address required")
	ErrAlreadyClaimed      = errors.New("staking: unstake request already claimed")
	ErrStillLocked         = errors.New("staking: unstake request still locked")
	ErrAssetTransferFailed = errors.New("staking: asset transfer failed")
)
