package state

import (
	"fmt"
	"math/big"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

// StakingStore persists staking ledger records through the manager's staged
// key-value layer. It satisfies the state interface expected by
// staking.Engine.
type StakingStore struct {
	mgr *Manager
}

// NewStakingStore binds a staking store to the manager.
func NewStakingStore(mgr *Manager) *StakingStore {
	return &StakingStore{mgr: mgr}
}

// Manager exposes the underlying state manager.
func (s *StakingStore) Manager() *Manager { return s.mgr }

// Snapshot delegates to the manager journal.
func (s *StakingStore) Snapshot() int { return s.mgr.Snapshot() }

// RevertToSnapshot delegates to the manager journal.
func (s *StakingStore) RevertToSnapshot(id int) { s.mgr.RevertToSnapshot(id) }

// Globals returns the stored ledger settings or nil before initialisation.
func (s *StakingStore) Globals() (*staking.Globals, error) {
	var stored storedStakingGlobals
	ok, err := s.mgr.KVGet(StakingGlobalsKey(), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: load staking globals: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return stored.toGlobals()
}

// PutGlobals stores the ledger settings.
func (s *StakingStore) PutGlobals(g *staking.Globals) error {
	if g == nil {
		return fmt.Errorf("state: nil staking globals")
	}
	return s.mgr.KVPut(StakingGlobalsKey(), newStoredStakingGlobals(g))
}

// Pool returns the pool with the given ID or nil when absent.
func (s *StakingStore) Pool(id uint64) (*staking.Pool, error) {
	var stored storedStakingPool
	ok, err := s.mgr.KVGet(StakingPoolKey(id), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: load pool %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return stored.toPool(), nil
}

// PutPool stores a pool record under its ID.
func (s *StakingStore) PutPool(pool *staking.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil staking pool")
	}
	return s.mgr.KVPut(StakingPoolKey(pool.ID), newStoredStakingPool(pool))
}

// Position returns the account's position or nil when it never staked.
func (s *StakingStore) Position(poolID uint64, addr crypto.Address) (*staking.Position, error) {
	var stored storedStakingPosition
	ok, err := s.mgr.KVGet(StakingPositionKey(poolID, addr.Bytes()), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: load position: %w", err)
	}
	if !ok {
		return nil, nil
	}
	pos := &staking.Position{Amount: stored.Amount, RewardDebt: stored.RewardDebt, Owed: stored.Owed}
	return pos.Clone(), nil
}

// PutPosition stores the account's position.
func (s *StakingStore) PutPosition(poolID uint64, addr crypto.Address, pos *staking.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil staking position")
	}
	clone := pos.Clone()
	return s.mgr.KVPut(StakingPositionKey(poolID, addr.Bytes()), &storedStakingPosition{
		Amount:     clone.Amount,
		RewardDebt: clone.RewardDebt,
		Owed:       clone.Owed,
	})
}

// UnstakeRequests returns the account's full request queue in index order.
func (s *StakingStore) UnstakeRequests(poolID uint64, addr crypto.Address) ([]staking.UnstakeRequest, error) {
	var stored []storedUnstakeRequest
	if err := s.mgr.KVGetList(StakingUnstakeKey(poolID, addr.Bytes()), &stored); err != nil {
		return nil, fmt.Errorf("state: load unstake queue: %w", err)
	}
	out := make([]staking.UnstakeRequest, len(stored))
	for i, req := range stored {
		amount := big.NewInt(0)
		if req.Amount != nil {
			amount.Set(req.Amount)
		}
		out[i] = staking.UnstakeRequest{Amount: amount, UnlockTick: req.UnlockTick, Claimed: req.Claimed}
	}
	return out, nil
}

// PutUnstakeRequests replaces the account's request queue.
func (s *StakingStore) PutUnstakeRequests(poolID uint64, addr crypto.Address, requests []staking.UnstakeRequest) error {
	stored := make([]storedUnstakeRequest, len(requests))
	for i, req := range requests {
		amount := big.NewInt(0)
		if req.Amount != nil {
			amount.Set(req.Amount)
		}
		stored[i] = storedUnstakeRequest{Amount: amount, UnlockTick: req.UnlockTick, Claimed: req.Claimed}
	}
	return s.mgr.KVPut(StakingUnstakeKey(poolID, addr.Bytes()), stored)
}
