package staking

import (
	"fmt"
	"math/big"
)

// enqueueUnstake appends a request unlocking lockTicks after tick and returns
// the updated list together with the new request's stable index.
func enqueueUnstake(requests []UnstakeRequest, amount *big.Int, tick, lockTicks uint64) ([]UnstakeRequest, uint64) {
	unlock := tick + lockTicks
	if unlock < tick {
		unlock = ^uint64(0)
	}
	index := uint64(len(requests))
	requests = append(requests, UnstakeRequest{
		Amount:     new(big.Int).Set(amount),
		UnlockTick: unlock,
	})
	return requests, index
}

// claimUnstake marks the request at index claimed and returns its amount.
// A request is released at most once.
func claimUnstake(requests []UnstakeRequest, index, tick uint64) (*big.Int, error) {
	if index >= uint64(len(requests)) {
		return nil, fmt.Errorf("%w: unstake request %d", ErrNotFound, index)
	}
	req := &requests[index]
	if req.Claimed {
		return nil, ErrAlreadyClaimed
	}
	if tick < req.UnlockTick {
		return nil, fmt.Errorf("%w: unlocks at %d, current %d", ErrStillLocked, req.UnlockTick, tick)
	}
	req.Claimed = true
	return copyBig(req.Amount), nil
}

func cloneRequests(requests []UnstakeRequest) []UnstakeRequest {
	out := make([]UnstakeRequest, len(requests))
	for i, req := range requests {
		out[i] = UnstakeRequest{Amount: copyBig(req.Amount), UnlockTick: req.UnlockTick, Claimed: req.Claimed}
	}
	return out
}
