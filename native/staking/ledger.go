package staking

import "math/big"

// settle realises the pending reward of pos against pool's accumulator and
// resets the reward debt in the same step. The caller must have brought the
// pool current with updatePool first. The returned amount is owed to the
// account and is never negative.
func settle(pool *Pool, pos *Position) *big.Int {
	if pos.Amount == nil {
		pos.Amount = big.NewInt(0)
	}
	pending := pendingFor(pool, pos)
	pos.RewardDebt = accumulated(pos.Amount, pool.AccRewardPerShare)
	return pending
}

// collect settles the position and adds any previously deferred reward,
// clearing Owed. The result is what a payout should transfer.
func collect(pool *Pool, pos *Position) *big.Int {
	reward := settle(pool, pos)
	if pos.Owed != nil && pos.Owed.Sign() > 0 {
		reward.Add(reward, pos.Owed)
	}
	pos.Owed = big.NewInt(0)
	return reward
}

// checkpoint re-bases the reward debt after the staked amount changed.
func checkpoint(pool *Pool, pos *Position) {
	pos.RewardDebt = accumulated(pos.Amount, pool.AccRewardPerShare)
}
