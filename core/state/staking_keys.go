package state

import (
	"encoding/binary"
	"math/big"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

var (
	stakingGlobalsKeyBytes  = []byte("staking/globals")
	stakingPoolPrefix       = []byte("staking/pool/")
	stakingPositionPrefix   = []byte("staking/position/")
	stakingUnstakeReqPrefix = []byte("staking/unstake/")
)

// StakingGlobalsKey returns the key holding the ledger-wide settings.
func StakingGlobalsKey() []byte {
	return append([]byte(nil), stakingGlobalsKeyBytes...)
}

// StakingPoolKey returns the key for a pool record.
func StakingPoolKey(id uint64) []byte {
	return appendUint(append([]byte(nil), stakingPoolPrefix...), id)
}

// StakingPositionKey returns the key for an account's position in a pool.
func StakingPositionKey(poolID uint64, addr []byte) []byte {
	key := appendUint(append([]byte(nil), stakingPositionPrefix...), poolID)
	key = append(key, '/')
	return append(key, addr...)
}

// StakingUnstakeKey returns the key for an account's unstake queue in a pool.
func StakingUnstakeKey(poolID uint64, addr []byte) []byte {
	key := appendUint(append([]byte(nil), stakingUnstakeReqPrefix...), poolID)
	key = append(key, '/')
	return append(key, addr...)
}

func appendUint(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// storedStakingGlobals is the RLP layout of staking.Globals. Addresses are
// kept as raw bytes and restored with the stake prefix.
type storedStakingGlobals struct {
	Owner         []byte
	Operator      []byte
	RewardAsset   string
	RewardPerTick *big.Int
	TotalWeight   uint64
	PoolCount     uint64
	Paused        bool
}

func newStoredStakingGlobals(g *staking.Globals) *storedStakingGlobals {
	stored := &storedStakingGlobals{
		Owner:         g.Owner.Bytes(),
		Operator:      g.Operator.Bytes(),
		RewardAsset:   g.RewardAsset,
		RewardPerTick: big.NewInt(0),
		TotalWeight:   g.TotalWeight,
		PoolCount:     g.PoolCount,
		Paused:        g.Paused,
	}
	if g.RewardPerTick != nil {
		stored.RewardPerTick = new(big.Int).Set(g.RewardPerTick)
	}
	return stored
}

func (s *storedStakingGlobals) toGlobals() (*staking.Globals, error) {
	owner, err := crypto.AddressFromBytes(crypto.StakePrefix, s.Owner)
	if err != nil {
		return nil, err
	}
	operator, err := crypto.AddressFromBytes(crypto.StakePrefix, s.Operator)
	if err != nil {
		return nil, err
	}
	g := &staking.Globals{
		Owner:         owner,
		Operator:      operator,
		RewardAsset:   s.RewardAsset,
		RewardPerTick: big.NewInt(0),
		TotalWeight:   s.TotalWeight,
		PoolCount:     s.PoolCount,
		Paused:        s.Paused,
	}
	if s.RewardPerTick != nil {
		g.RewardPerTick = new(big.Int).Set(s.RewardPerTick)
	}
	return g, nil
}

type storedStakingPool struct {
	ID                uint64
	Asset             string
	Weight            uint64
	TotalStaked       *big.Int
	AccRewardPerShare *big.Int
	LastUpdateTick    uint64
	MinDeposit        *big.Int
	UnstakeLockTicks  uint64
}

func newStoredStakingPool(p *staking.Pool) *storedStakingPool {
	clone := p.Clone()
	return &storedStakingPool{
		ID:                clone.ID,
		Asset:             clone.Asset,
		Weight:            clone.Weight,
		TotalStaked:       clone.TotalStaked,
		AccRewardPerShare: clone.AccRewardPerShare,
		LastUpdateTick:    clone.LastUpdateTick,
		MinDeposit:        clone.MinDeposit,
		UnstakeLockTicks:  clone.UnstakeLockTicks,
	}
}

func (s *storedStakingPool) toPool() *staking.Pool {
	pool := &staking.Pool{
		ID:                s.ID,
		Asset:             s.Asset,
		Weight:            s.Weight,
		TotalStaked:       s.TotalStaked,
		AccRewardPerShare: s.AccRewardPerShare,
		LastUpdateTick:    s.LastUpdateTick,
		MinDeposit:        s.MinDeposit,
		UnstakeLockTicks:  s.UnstakeLockTicks,
	}
	return pool.Clone()
}

type storedStakingPosition struct {
	Amount     *big.Int
	RewardDebt *big.Int
	Owed       *big.Int `rlp:"optional"`
}

type storedUnstakeRequest struct {
	Amount     *big.Int
	UnlockTick uint64
	Claimed    bool
}
