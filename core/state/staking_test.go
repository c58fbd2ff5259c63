package state

import (
	"math/big"
	"testing"

	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/storage"
)

func stakeAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = b
	return crypto.NewAddress(crypto.StakePrefix, raw)
}

func TestStakingStoreRoundTrip(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStakingStore(NewManager(db))
	owner, operator, user := stakeAddr(1), stakeAddr(2), stakeAddr(3)

	globals, err := store.Globals()
	if err != nil || globals != nil {
		t.Fatalf("expected no globals before init: %v %v", globals, err)
	}
	if err := store.PutGlobals(&staking.Globals{
		Owner:         owner,
		Operator:      operator,
		RewardAsset:   "RWD",
		RewardPerTick: big.NewInt(1000),
		TotalWeight:   100,
		PoolCount:     1,
		Paused:        true,
	}); err != nil {
		t.Fatalf("put globals: %v", err)
	}
	if err := store.PutPool(&staking.Pool{
		ID:                0,
		Weight:            100,
		TotalStaked:       big.NewInt(250),
		AccRewardPerShare: big.NewInt(123456789),
		LastUpdateTick:    42,
		MinDeposit:        big.NewInt(10),
		UnstakeLockTicks:  200,
	}); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	if err := store.PutPosition(0, user, &staking.Position{Amount: big.NewInt(250), RewardDebt: big.NewInt(30), Owed: big.NewInt(7)}); err != nil {
		t.Fatalf("put position: %v", err)
	}
	if err := store.PutUnstakeRequests(0, user, []staking.UnstakeRequest{
		{Amount: big.NewInt(5), UnlockTick: 242, Claimed: true},
		{Amount: big.NewInt(6), UnlockTick: 243},
	}); err != nil {
		t.Fatalf("put requests: %v", err)
	}
	if err := store.Manager().Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	reopened := NewStakingStore(NewManager(db))
	globals, err = reopened.Globals()
	if err != nil {
		t.Fatalf("globals: %v", err)
	}
	if !globals.Owner.Equal(owner) || !globals.Operator.Equal(operator) || !globals.Paused {
		t.Fatalf("unexpected globals %+v", globals)
	}
	if globals.Owner.Prefix() != crypto.StakePrefix || globals.RewardPerTick.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected globals detail %+v", globals)
	}
	pool, err := reopened.Pool(0)
	if err != nil || pool == nil {
		t.Fatalf("pool: %v %v", pool, err)
	}
	if pool.AccRewardPerShare.Cmp(big.NewInt(123456789)) != 0 || pool.LastUpdateTick != 42 || !pool.IsNative() {
		t.Fatalf("unexpected pool %+v", pool)
	}
	missing, err := reopened.Pool(9)
	if err != nil || missing != nil {
		t.Fatalf("expected nil pool, got %v %v", missing, err)
	}
	pos, err := reopened.Position(0, user)
	if err != nil || pos.RewardDebt.Cmp(big.NewInt(30)) != 0 || pos.Owed.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected position %+v %v", pos, err)
	}
	stranger, err := reopened.Position(0, owner)
	if err != nil || stranger != nil {
		t.Fatalf("expected nil position, got %+v %v", stranger, err)
	}
	reqs, err := reopened.UnstakeRequests(0, user)
	if err != nil || len(reqs) != 2 {
		t.Fatalf("unexpected requests %+v %v", reqs, err)
	}
	if !reqs[0].Claimed || reqs[1].Claimed || reqs[1].UnlockTick != 243 {
		t.Fatalf("unexpected request detail %+v", reqs)
	}
	empty, err := reopened.UnstakeRequests(1, user)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty queue, got %+v %v", empty, err)
	}
}

func TestPositionWithoutOwedDecodes(t *testing.T) {
	store := NewStakingStore(NewManager(storage.NewMemDB()))
	user := stakeAddr(4)
	legacy := struct {
		Amount     *big.Int
		RewardDebt *big.Int
	}{Amount: big.NewInt(80), RewardDebt: big.NewInt(12)}
	if err := store.Manager().KVPut(StakingPositionKey(0, user.Bytes()), &legacy); err != nil {
		t.Fatalf("put legacy position: %v", err)
	}
	pos, err := store.Position(0, user)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Amount.Cmp(big.NewInt(80)) != 0 || pos.Owed.Sign() != 0 {
		t.Fatalf("unexpected position %+v", pos)
	}
}

func TestStakingKeysAreDistinct(t *testing.T) {
	addr := stakeAddr(9).Bytes()
	keys := map[string]struct{}{}
	for _, key := range [][]byte{
		StakingGlobalsKey(),
		StakingPoolKey(1),
		StakingPoolKey(2),
		StakingPositionKey(1, addr),
		StakingUnstakeKey(1, addr),
	} {
		if _, dup := keys[string(key)]; dup {
			t.Fatalf("duplicate key %q", key)
		}
		keys[string(key)] = struct{}{}
	}
}
