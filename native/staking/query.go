package staking

import (
	"math/big"

	"stakeledger/crypto"
)

// Globals returns a copy of the ledger-wide settings.
func (e *Engine) Globals() (*Globals, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.Clone(), nil
}

// PoolCount returns the number of registered pools.
func (e *Engine) PoolCount() (uint64, error) {
	globals, err := e.Globals()
	if err != nil {
		return 0, err
	}
	return globals.PoolCount, nil
}

// Pool returns the stored pool. The accumulator reflects the pool's last
// update, not the current tick.
func (e *Engine) Pool(id uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Position returns the caller's position in a pool. Unknown accounts have a
// zero position.
func (e *Engine) Position(poolID uint64, addr crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.loadPool(poolID); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(poolID, addr)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// PendingReward previews the reward an account would receive if it settled at
// the current tick, including any deferred Owed balance. The pool is updated
// on a copy and nothing is written.
func (e *Engine) PendingReward(poolID uint64, addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	preview := pool.Clone()
	updatePool(preview, e.blockHeight, globals.RewardPerTick, globals.TotalWeight)
	pos, err := e.loadPosition(poolID, addr)
	if err != nil {
		return nil, err
	}
	pending := pendingFor(preview, pos)
	return pending.Add(pending, pos.Owed), nil
}

// UnstakeRequests returns every request the account has made in a pool,
// claimed or not, in index order.
func (e *Engine) UnstakeRequests(poolID uint64, addr crypto.Address) ([]UnstakeRequest, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, err := e.loadPool(poolID); err != nil {
		return nil, err
	}
	requests, err := e.state.UnstakeRequests(poolID, addr)
	if err != nil {
		return nil, err
	}
	return cloneRequests(requests), nil
}
