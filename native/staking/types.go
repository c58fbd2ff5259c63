package staking

import (
	"math/big"
	"strings"

	"stakeledger/crypto"
)

// NativeAsset identifies pools that stake the chain's native currency.
const NativeAsset = ""

// PrecisionScale is the fixed-point scale applied to AccRewardPerShare.
const PrecisionScale = int64(1_000_000_000_000)

var precision = big.NewInt(PrecisionScale)

// Precision returns a copy of the fixed-point scaling factor.
func Precision() *big.Int {
	return new(big.Int).Set(precision)
}

// Pool is a staking bucket for one asset. Pools are stored in an append-only
// arena keyed by ID.
type Pool struct {
	ID     uint64
	Asset  string
	Weight uint64
	// TotalStaked is the sum of all active positions in the pool.
	TotalStaked *big.Int
	// AccRewardPerShare is the cumulative reward per staked unit scaled by
	// PrecisionScale. It never decreases.
	AccRewardPerShare *big.Int
	LastUpdateTick    uint64
	MinDeposit        *big.Int
	UnstakeLockTicks  uint64
}

// IsNative reports whether the pool stakes the native asset.
func (p *Pool) IsNative() bool {
	return p != nil && strings.TrimSpace(p.Asset) == NativeAsset
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = copyBig(p.TotalStaked)
	clone.AccRewardPerShare = copyBig(p.AccRewardPerShare)
	clone.MinDeposit = copyBig(p.MinDeposit)
	return &clone
}

func (p *Pool) normalize() {
	if p.TotalStaked == nil {
		p.TotalStaked = big.NewInt(0)
	}
	if p.AccRewardPerShare == nil {
		p.AccRewardPerShare = big.NewInt(0)
	}
	if p.MinDeposit == nil {
		p.MinDeposit = big.NewInt(0)
	}
}

// Position is an account's staked balance and reward checkpoint in a pool.
type Position struct {
	Amount *big.Int
	// RewardDebt is Amount*AccRewardPerShare/PrecisionScale as of the last
	// settlement.
	RewardDebt *big.Int
	// Owed is settled reward that could not be paid when principal was
	// unstaked. The next Stake or ClaimReward pays it.
	Owed *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return newPosition()
	}
	return &Position{Amount: copyBig(p.Amount), RewardDebt: copyBig(p.RewardDebt), Owed: copyBig(p.Owed)}
}

func newPosition() *Position {
	return &Position{Amount: big.NewInt(0), RewardDebt: big.NewInt(0), Owed: big.NewInt(0)}
}

// UnstakeRequest is a queued, timelocked withdrawal of principal.
type UnstakeRequest struct {
	Amount     *big.Int
	UnlockTick uint64
	Claimed    bool
}

// Globals holds the ledger-wide configuration and counters.
type Globals struct {
	Owner         crypto.Address
	Operator      crypto.Address
	RewardAsset   string
	RewardPerTick *big.Int
	TotalWeight   uint64
	PoolCount     uint64
	Paused        bool
}

// Clone returns a deep copy of the globals.
func (g *Globals) Clone() *Globals {
	if g == nil {
		return nil
	}
	clone := *g
	clone.RewardPerTick = copyBig(g.RewardPerTick)
	return &clone
}

func copyBig(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}
