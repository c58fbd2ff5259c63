package bank

import (
	"errors"
	"fmt"
	"math/big"

	"stakeledger/core/state"
	"stakeledger/crypto"
)

var (
	// ErrInsufficientFunds is returned when the sender cannot cover a transfer.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrUnknownAsset is returned for assets that were never registered.
	ErrUnknownAsset = errors.New("bank: asset not registered")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("bank: invalid amount")
)

// Ledger moves balances held in the state manager. Writes are staged on the
// manager and therefore follow its snapshot and commit semantics.
type Ledger struct {
	manager *state.Manager
}

// NewLedger returns a bank ledger backed by manager.
func NewLedger(manager *state.Manager) *Ledger {
	return &Ledger{manager: manager}
}

// RegisterAsset makes an asset transferable. The empty symbol is the native
// asset.
func (l *Ledger) RegisterAsset(symbol, name string, decimals uint8) error {
	if l == nil || l.manager == nil {
		return fmt.Errorf("bank: state manager required")
	}
	return l.manager.RegisterToken(symbol, name, decimals)
}

// Balance returns the account's balance in asset.
func (l *Ledger) Balance(asset string, addr crypto.Address) (*big.Int, error) {
	if l == nil || l.manager == nil {
		return nil, fmt.Errorf("bank: state manager required")
	}
	return l.manager.Balance(addr.Bytes(), asset)
}

// Mint credits amount to addr without a counterparty. It is used to fund
// genesis accounts and the reward reserve.
func (l *Ledger) Mint(asset string, to crypto.Address, amount *big.Int) error {
	if err := l.check(asset, amount); err != nil {
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("bank: recipient required")
	}
	balance, err := l.manager.Balance(to.Bytes(), asset)
	if err != nil {
		return err
	}
	if err := l.manager.SetBalance(to.Bytes(), asset, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	_, err = l.manager.AdjustTokenSupply(asset, amount)
	return err
}

// Supply returns the total amount of asset minted so far.
func (l *Ledger) Supply(asset string) (*big.Int, error) {
	if l == nil || l.manager == nil {
		return nil, fmt.Errorf("bank: state manager required")
	}
	return l.manager.TokenSupply(asset)
}

// Transfer moves amount of asset from one account to another.
func (l *Ledger) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	if err := l.check(asset, amount); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("bank: sender and recipient required")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := l.manager.Balance(from.Bytes(), asset)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	if from.Equal(to) {
		return nil
	}
	toBalance, err := l.manager.Balance(to.Bytes(), asset)
	if err != nil {
		return err
	}
	if err := l.manager.SetBalance(from.Bytes(), asset, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.manager.SetBalance(to.Bytes(), asset, new(big.Int).Add(toBalance, amount))
}

func (l *Ledger) check(asset string, amount *big.Int) error {
	if l == nil || l.manager == nil {
		return fmt.Errorf("bank: state manager required")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if !l.manager.TokenExists(asset) {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, state.NormalizeSymbol(asset))
	}
	return nil
}
