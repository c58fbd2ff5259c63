package staked

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakeledger/config"
	"stakeledger/core/events"
	"stakeledger/core/state"
	"stakeledger/native/staking"
)

func TestProcessorGenesis(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.processor.IsInitialized())
	require.Equal(t, []string{
		events.TypeOwnershipTransferred,
		events.TypeOperatorUpdated,
		events.TypePoolAdded,
	}, h.sink.Types())

	globals, err := h.processor.Globals()
	require.NoError(t, err)
	require.True(t, globals.Owner.Equal(ownerAddr))
	require.True(t, globals.Operator.Equal(operatorAddr))
	require.Equal(t, uint64(1), globals.PoolCount)
	require.Equal(t, uint64(100), globals.TotalWeight)

	require.Equal(t, "1000", h.balance(t, "", aliceAddr))
	require.Equal(t, "1000000000", h.balance(t, "RWD", h.processor.ModuleAddress()))

	// A second genesis is ignored.
	require.NoError(t, h.processor.ApplyGenesis(context.Background(), testGenesis()))
	require.Len(t, h.sink.Types(), 3)
	require.Equal(t, "1000000000", h.balance(t, "RWD", h.processor.ModuleAddress()))
}

func TestProcessorStakeAndClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ticker.Set(100)
	require.NoError(t, h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(100), big.NewInt(100)))
	require.Equal(t, "900", h.balance(t, "", aliceAddr))

	h.ticker.Set(200)
	pending, err := h.processor.PendingReward(0, aliceAddr)
	require.NoError(t, err)
	require.Equal(t, "10000", pending.String())

	paid, err := h.processor.ClaimReward(ctx, aliceAddr, 0)
	require.NoError(t, err)
	require.Equal(t, "10000", paid.String())
	require.Equal(t, "10000", h.balance(t, "RWD", aliceAddr))

	require.Equal(t, []string{
		events.TypeOwnershipTransferred,
		events.TypeOperatorUpdated,
		events.TypePoolAdded,
		events.TypeStaked,
		events.TypeRewardClaimed,
	}, h.sink.Types())
}

func TestProcessorRejectedCallLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ticker.Set(100)
	require.NoError(t, h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(100), big.NewInt(100)))
	before := h.sink.Types()

	h.ticker.Set(150)
	err := h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(50), big.NewInt(49))
	require.ErrorIs(t, err, staking.ErrValueMismatch)
	err = h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(5000), big.NewInt(5000))
	require.ErrorIs(t, err, staking.ErrAssetTransferFailed)

	require.Equal(t, before, h.sink.Types())
	require.Equal(t, "900", h.balance(t, "", aliceAddr))
	pos, err := h.processor.Position(0, aliceAddr)
	require.NoError(t, err)
	require.Equal(t, "100", pos.Amount.String())

	stored, err := StoredHeight(state.NewManager(h.db))
	require.NoError(t, err)
	require.Equal(t, uint64(100), stored)
}

func TestProcessorUnstakeLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ticker.Set(10)
	require.NoError(t, h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(100), big.NewInt(100)))

	h.ticker.Set(20)
	index, err := h.processor.RequestUnstake(ctx, aliceAddr, 0, big.NewInt(40))
	require.NoError(t, err)
	require.Equal(t, uint64(0), index)

	reqs, err := h.processor.UnstakeRequests(0, aliceAddr)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, uint64(20+testLockTicks), reqs[0].UnlockTick)

	h.ticker.Set(24)
	_, err = h.processor.ClaimUnstake(ctx, aliceAddr, 0, 0)
	require.ErrorIs(t, err, staking.ErrStillLocked)

	h.ticker.Set(25)
	released, err := h.processor.ClaimUnstake(ctx, aliceAddr, 0, 0)
	require.NoError(t, err)
	require.Equal(t, "40", released.String())
	require.Equal(t, "940", h.balance(t, "", aliceAddr))

	_, err = h.processor.ClaimUnstake(ctx, aliceAddr, 0, 0)
	require.ErrorIs(t, err, staking.ErrAlreadyClaimed)
	_, err = h.processor.ClaimUnstake(ctx, aliceAddr, 0, 1)
	require.ErrorIs(t, err, staking.ErrNotFound)
}

func TestProcessorAdminAndPause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.processor.SetPaused(ctx, aliceAddr, true)
	require.ErrorIs(t, err, staking.ErrUnauthorized)

	require.NoError(t, h.processor.SetPaused(ctx, operatorAddr, true))
	err = h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(10), big.NewInt(10))
	require.True(t, errors.Is(err, staking.ErrPaused), "got %v", err)
	require.NoError(t, h.processor.SetPaused(ctx, operatorAddr, false))
	require.NoError(t, h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(10), big.NewInt(10)))

	id, err := h.processor.AddPool(ctx, operatorAddr, "RWD", 50, big.NewInt(1), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
	pools, err := h.processor.Pools()
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.Equal(t, "RWD", pools[1].Asset)

	require.NoError(t, h.processor.UpdateRewardPerTick(ctx, operatorAddr, big.NewInt(7)))
	require.NoError(t, h.processor.SetOperator(ctx, ownerAddr, bobAddr))
	require.NoError(t, h.processor.TransferOwnership(ctx, ownerAddr, aliceAddr))
	globals, err := h.processor.Globals()
	require.NoError(t, err)
	require.True(t, globals.Operator.Equal(bobAddr))
	require.True(t, globals.Owner.Equal(aliceAddr))
	require.Equal(t, "7", globals.RewardPerTick.String())
}

func TestProcessorHonoursConfiguredHalt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.processor.SetPauses(config.Pauses{Staking: true})

	err := h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(10), big.NewInt(10))
	require.ErrorIs(t, err, staking.ErrPaused)
	globals, err := h.processor.Globals()
	require.NoError(t, err)
	require.False(t, globals.Paused)
	_, err = h.processor.Pool(0)
	require.NoError(t, err)

	h.processor.SetPauses(config.Pauses{})
	require.NoError(t, h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(10), big.NewInt(10)))
}

func TestProcessorResumesFromStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ticker.Set(100)
	require.NoError(t, h.processor.Stake(ctx, aliceAddr, 0, big.NewInt(100), big.NewInt(100)))

	mgr := state.NewManager(h.db)
	height, err := StoredHeight(mgr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), height)

	sink := &recordingSink{}
	ticker := NewManualTicker(height)
	reopened := NewProcessor(mgr, ticker, nil, sink)
	require.True(t, reopened.IsInitialized())
	require.NoError(t, reopened.ApplyGenesis(ctx, testGenesis()))
	require.Empty(t, sink.Types())

	ticker.Set(200)
	paid, err := reopened.ClaimReward(ctx, aliceAddr, 0)
	require.NoError(t, err)
	require.Equal(t, "10000", paid.String())
	require.True(t, reflect.DeepEqual([]string{events.TypeRewardClaimed}, sink.Types()))
}

func TestManualTicker(t *testing.T) {
	ticker := NewManualTicker(5)
	require.Equal(t, uint64(8), ticker.Advance(3))
	ticker.Set(4)
	require.Equal(t, uint64(8), ticker.Height())
	ticker.Set(12)
	require.Equal(t, uint64(12), ticker.Height())
}

func TestClockTickerAdvances(t *testing.T) {
	ticker := NewClockTicker(7, time.Millisecond)
	seen := make(chan uint64, 1)
	ticker.OnTick(func(h uint64) {
		select {
		case seen <- h:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ticker.Run(ctx)
	select {
	case h := <-seen:
		require.Greater(t, h, uint64(7))
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not advance")
	}
}
