package events

import (
	"math/big"

	"stakeledger/core/types"
	"stakeledger/crypto"
)

const (
	// TypeStaked is emitted when principal is deposited into a pool.
	TypeStaked = "staking.staked"
	// TypeUnstakeRequested is emitted when principal enters the unstake queue.
	TypeUnstakeRequested = "staking.unstakeRequested"
	// TypeUnstakeClaimed is emitted when an unlocked request is released.
	TypeUnstakeClaimed = "staking.unstakeClaimed"
	// TypeRewardClaimed is emitted whenever accrued rewards are paid out.
	TypeRewardClaimed = "staking.rewardClaimed"
	// TypeRewardDeferred is emitted when an unstake could not pay the settled
	// reward and credited it to the position instead.
	TypeRewardDeferred = "staking.rewardDeferred"
	// TypePoolAdded is emitted when the operator registers a new pool.
	TypePoolAdded = "staking.poolAdded"
	// TypeRewardRateUpdated is emitted when the per-tick emission changes.
	TypeRewardRateUpdated = "staking.rewardRateUpdated"
	// TypePaused is emitted when the operator halts user operations.
	TypePaused = "staking.paused"
	// TypeUnpaused is emitted when the operator resumes user operations.
	TypeUnpaused = "staking.unpaused"
	// TypeOwnershipTransferred is emitted when the owner role moves.
	TypeOwnershipTransferred = "staking.ownershipTransferred"
	// TypeOperatorUpdated is emitted when the owner replaces the operator.
	TypeOperatorUpdated = "staking.operatorUpdated"
)

// Staked captures a principal deposit.
type Staked struct {
	Account crypto.Address
	PoolID  uint64
	Amount  *big.Int
	Tick    uint64
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	return &types.Event{Type: TypeStaked, Height: e.Tick, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"poolId":  formatUint(e.PoolID),
		"amount":  formatAmount(e.Amount),
	}}
}

// UnstakeRequested captures principal moved into the timelocked queue.
type UnstakeRequested struct {
	Account    crypto.Address
	PoolID     uint64
	Amount     *big.Int
	UnlockTick uint64
	Index      uint64
	Tick       uint64
}

// EventType satisfies the Event interface.
func (UnstakeRequested) EventType() string { return TypeUnstakeRequested }

// Event converts the structured payload into a broadcastable event.
func (e UnstakeRequested) Event() *types.Event {
	return &types.Event{Type: TypeUnstakeRequested, Height: e.Tick, Attributes: map[string]string{
		"account":    formatAddress(e.Account),
		"poolId":     formatUint(e.PoolID),
		"amount":     formatAmount(e.Amount),
		"unlockTick": formatUint(e.UnlockTick),
		"index":      formatUint(e.Index),
	}}
}

// UnstakeClaimed captures the release of an unlocked request.
type UnstakeClaimed struct {
	Account crypto.Address
	PoolID  uint64
	Amount  *big.Int
	Index   uint64
	Tick    uint64
}

// EventType satisfies the Event interface.
func (UnstakeClaimed) EventType() string { return TypeUnstakeClaimed }

// Event converts the structured payload into a broadcastable event.
func (e UnstakeClaimed) Event() *types.Event {
	return &types.Event{Type: TypeUnstakeClaimed, Height: e.Tick, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"poolId":  formatUint(e.PoolID),
		"amount":  formatAmount(e.Amount),
		"index":   formatUint(e.Index),
	}}
}

// RewardClaimed captures a reward payout to an account.
type RewardClaimed struct {
	Account crypto.Address
	PoolID  uint64
	Amount  *big.Int
	Tick    uint64
}

// EventType satisfies the Event interface.
func (RewardClaimed) EventType() string { return TypeRewardClaimed }

// Event converts the structured payload into a broadcastable event.
func (e RewardClaimed) Event() *types.Event {
	return &types.Event{Type: TypeRewardClaimed, Height: e.Tick, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"poolId":  formatUint(e.PoolID),
		"amount":  formatAmount(e.Amount),
	}}
}

// RewardDeferred captures a reward credited to a position's owed balance.
type RewardDeferred struct {
	Account crypto.Address
	PoolID  uint64
	Amount  *big.Int
	Owed    *big.Int
	Tick    uint64
}

// EventType satisfies the Event interface.
func (RewardDeferred) EventType() string { return TypeRewardDeferred }

// Event converts the structured payload into a broadcastable event.
func (e RewardDeferred) Event() *types.Event {
	return &types.Event{Type: TypeRewardDeferred, Height: e.Tick, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"poolId":  formatUint(e.PoolID),
		"amount":  formatAmount(e.Amount),
		"owed":    formatAmount(e.Owed),
	}}
}

// PoolAdded captures the registration of a pool.
type PoolAdded struct {
	PoolID uint64
	Asset  string
	Weight uint64
	Tick   uint64
}

// EventType satisfies the Event interface.
func (PoolAdded) EventType() string { return TypePoolAdded }

// Event converts the structured payload into a broadcastable event.
func (e PoolAdded) Event() *types.Event {
	return &types.Event{Type: TypePoolAdded, Height: e.Tick, Attributes: map[string]string{
		"poolId": formatUint(e.PoolID),
		"asset":  normalizeAsset(e.Asset),
		"weight": formatUint(e.Weight),
	}}
}

// RewardRateUpdated captures a change to the per-tick emission.
type RewardRateUpdated struct {
	Old  *big.Int
	New  *big.Int
	Tick uint64
}

// EventType satisfies the Event interface.
func (RewardRateUpdated) EventType() string { return TypeRewardRateUpdated }

// Event converts the structured payload into a broadcastable event.
func (e RewardRateUpdated) Event() *types.Event {
	return &types.Event{Type: TypeRewardRateUpdated, Height: e.Tick, Attributes: map[string]string{
		"old": formatAmount(e.Old),
		"new": formatAmount(e.New),
	}}
}

// PauseToggled captures a pause or unpause by the operator.
type PauseToggled struct {
	Operator crypto.Address
	Paused   bool
	Tick     uint64
}

// EventType satisfies the Event interface.
func (e PauseToggled) EventType() string {
	if e.Paused {
		return TypePaused
	}
	return TypeUnpaused
}

// Event converts the structured payload into a broadcastable event.
func (e PauseToggled) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Height: e.Tick, Attributes: map[string]string{
		"operator": formatAddress(e.Operator),
	}}
}

// RoleChanged captures an ownership transfer or operator replacement.
type RoleChanged struct {
	Type     string
	Previous crypto.Address
	Current  crypto.Address
	Tick     uint64
}

// EventType satisfies the Event interface.
func (e RoleChanged) EventType() string { return e.Type }

// Event converts the structured payload into a broadcastable event.
func (e RoleChanged) Event() *types.Event {
	return &types.Event{Type: e.Type, Height: e.Tick, Attributes: map[string]string{
		"previous": formatAddress(e.Previous),
		"current":  formatAddress(e.Current),
	}}
}
