package staking

import (
	"fmt"
	"math/big"
	"strings"

	"stakeledger/core/events"
	"stakeledger/crypto"
)

// AddPool registers a new pool and returns its ID. Only the operator may add
// pools. Unlike a bare append plus weight increase, every existing pool is
// brought current before the total weight changes so that rewards already
// earned keep the old weight split.
func (e *Engine) AddPool(caller crypto.Address, asset string, weight uint64, minDeposit *big.Int, lockTicks uint64) (uint64, error) {
	var id uint64
	err := e.execute(func(out *events.Buffer) error {
		globals, err := e.loadGlobals()
		if err != nil {
			return err
		}
		if !globals.Operator.Equal(caller) {
			return ErrUnauthorized
		}
		if minDeposit == nil {
			minDeposit = big.NewInt(0)
		}
		if minDeposit.Sign() < 0 {
			return ErrInvalidAmount
		}
		if globals.TotalWeight+weight < globals.TotalWeight {
			return fmt.Errorf("staking: total weight overflow")
		}

		if err := e.updateAllPools(globals); err != nil {
			return err
		}

		id = globals.PoolCount
		pool := &Pool{
			ID:                id,
			Asset:             strings.TrimSpace(asset),
			Weight:            weight,
			TotalStaked:       big.NewInt(0),
			AccRewardPerShare: big.NewInt(0),
			LastUpdateTick:    e.blockHeight,
			MinDeposit:        new(big.Int).Set(minDeposit),
			UnstakeLockTicks:  lockTicks,
		}
		globals.PoolCount++
		globals.TotalWeight += weight

		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		if err := e.state.PutGlobals(globals); err != nil {
			return err
		}
		out.Emit(events.PoolAdded{PoolID: id, Asset: pool.Asset, Weight: weight, Tick: e.blockHeight})
		e.logger.Info("pool added", "pool", id, "asset", pool.Asset, "weight", weight, "totalWeight", globals.TotalWeight)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (e *Engine) updateAllPools(globals *Globals) error {
	for id := uint64(0); id < globals.PoolCount; id++ {
		pool, err := e.loadPool(id)
		if err != nil {
			return err
		}
		if updatePool(pool, e.blockHeight, globals.RewardPerTick, globals.TotalWeight) {
			if err := e.state.PutPool(pool); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) loadPool(id uint64) (*Pool, error) {
	pool, err := e.state.Pool(id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: pool %d", ErrNotFound, id)
	}
	pool.normalize()
	return pool, nil
}
