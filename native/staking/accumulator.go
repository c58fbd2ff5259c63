package staking

import "math/big"

// updatePool brings AccRewardPerShare current to tick. It is idempotent for a
// given tick and never moves LastUpdateTick backwards. The returned flag
// reports whether the pool changed.
//
// Reward for ticks during which the pool was empty is not generated.
func updatePool(pool *Pool, tick uint64, rewardPerTick *big.Int, totalWeight uint64) bool {
	if pool == nil {
		return false
	}
	pool.normalize()
	if tick <= pool.LastUpdateTick {
		return false
	}
	if pool.TotalStaked.Sign() == 0 {
		pool.LastUpdateTick = tick
		return true
	}
	elapsed := tick - pool.LastUpdateTick
	pool.LastUpdateTick = tick
	if totalWeight == 0 || pool.Weight == 0 || rewardPerTick == nil || rewardPerTick.Sign() <= 0 {
		return true
	}

	poolReward := new(big.Int).Mul(rewardPerTick, new(big.Int).SetUint64(elapsed))
	poolReward.Mul(poolReward, new(big.Int).SetUint64(pool.Weight))
	poolReward.Quo(poolReward, new(big.Int).SetUint64(totalWeight))

	increment := new(big.Int).Mul(poolReward, precision)
	increment.Quo(increment, pool.TotalStaked)
	if increment.Sign() > 0 {
		pool.AccRewardPerShare = new(big.Int).Add(pool.AccRewardPerShare, increment)
	}
	return true
}

// accumulated returns amount*acc/PrecisionScale.
func accumulated(amount, acc *big.Int) *big.Int {
	if amount == nil || acc == nil || amount.Sign() == 0 || acc.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, acc)
	return out.Quo(out, precision)
}

// pendingFor computes the unsettled reward for a position against the pool's
// current accumulator. Negative results clamp to zero.
func pendingFor(pool *Pool, pos *Position) *big.Int {
	if pool == nil || pos == nil {
		return big.NewInt(0)
	}
	owed := accumulated(pos.Amount, pool.AccRewardPerShare)
	if pos.RewardDebt != nil {
		owed.Sub(owed, pos.RewardDebt)
	}
	if owed.Sign() < 0 {
		return big.NewInt(0)
	}
	return owed
}
