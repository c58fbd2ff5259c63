package staked

import (
	"math/big"

	"stakeledger/native/staking"
)

type poolView struct {
	ID                uint64 `json:"id"`
	Asset             string `json:"asset"`
	Weight            uint64 `json:"weight"`
	TotalStaked       string `json:"totalStaked"`
	AccRewardPerShare string `json:"accRewardPerShare"`
	LastUpdateTick    uint64 `json:"lastUpdateTick"`
	MinDeposit        string `json:"minDeposit"`
	UnstakeLockTicks  uint64 `json:"unstakeLockTicks"`
}

func newPoolView(p *staking.Pool) poolView {
	return poolView{
		ID:                p.ID,
		Asset:             p.Asset,
		Weight:            p.Weight,
		TotalStaked:       amountString(p.TotalStaked),
		AccRewardPerShare: amountString(p.AccRewardPerShare),
		LastUpdateTick:    p.LastUpdateTick,
		MinDeposit:        amountString(p.MinDeposit),
		UnstakeLockTicks:  p.UnstakeLockTicks,
	}
}

type positionView struct {
	Amount     string `json:"amount"`
	RewardDebt string `json:"rewardDebt"`
	Owed       string `json:"owed"`
}

type unstakeView struct {
	Index      uint64 `json:"index"`
	Amount     string `json:"amount"`
	UnlockTick uint64 `json:"unlockTick"`
	Claimed    bool   `json:"claimed"`
}

type statusView struct {
	Tick          uint64 `json:"tick"`
	Owner         string `json:"owner"`
	Operator      string `json:"operator"`
	RewardAsset   string `json:"rewardAsset"`
	RewardPerTick string `json:"rewardPerTick"`
	TotalWeight   uint64 `json:"totalWeight"`
	PoolCount     uint64 `json:"poolCount"`
	Paused        bool   `json:"paused"`
	ModuleAddress string `json:"moduleAddress"`
}

type eventView struct {
	ID         string            `json:"id,omitempty"`
	Seq        uint64            `json:"seq,omitempty"`
	Type       string            `json:"type"`
	Tick       uint64            `json:"tick"`
	Attributes map[string]string `json:"attributes"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
