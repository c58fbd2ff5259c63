package staking

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"stakeledger/core/events"
	"stakeledger/crypto"
	nativecommon "stakeledger/native/common"
)

const moduleName = "staking"

// ModuleName is the identifier used for pause views and the custody address.
func ModuleName() string { return moduleName }

// AssetTransfer moves value between two accounts. A non-nil error means the
// transfer did not happen.
type AssetTransfer interface {
	Transfer(asset string, from, to crypto.Address, amount *big.Int) error
}

// TransferFunc adapts a function to the AssetTransfer interface.
type TransferFunc func(asset string, from, to crypto.Address, amount *big.Int) error

// Transfer implements AssetTransfer.
func (f TransferFunc) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	return f(asset, from, to, amount)
}

type engineState interface {
	Globals() (*Globals, error)
	PutGlobals(g *Globals) error
	Pool(id uint64) (*Pool, error)
	PutPool(pool *Pool) error
	Position(poolID uint64, addr crypto.Address) (*Position, error)
	PutPosition(poolID uint64, addr crypto.Address, pos *Position) error
	UnstakeRequests(poolID uint64, addr crypto.Address) ([]UnstakeRequest, error)
	PutUnstakeRequests(poolID uint64, addr crypto.Address, requests []UnstakeRequest) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Engine orchestrates the staking pools, positions and unstake queues. Every
// exported mutation runs as one atomic unit: on error all staged writes made
// by the call are reverted and no events are emitted.
//
// Engine is not safe for concurrent use.
type Engine struct {
	state         engineState
	transfer      AssetTransfer
	moduleAddress crypto.Address
	blockHeight   uint64
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	logger        *slog.Logger
}

// NewEngine constructs an engine holding custody in moduleAddr.
func NewEngine(moduleAddr crypto.Address) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		emitter:       events.NoopEmitter{},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTransfer wires the asset mover used for deposits and payouts.
func (e *Engine) SetTransfer(t AssetTransfer) { e.transfer = t }

// SetEmitter configures the sink for committed events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses adds an external pause view consulted alongside the ledger's own
// pause flag.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetLogger attaches a logger scoped to the staking module.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger.With("module", moduleName)
}

// SetBlockHeight records the tick used by subsequent operations.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// ModuleAddress returns the custody account holding staked principal and
// reward reserves.
func (e *Engine) ModuleAddress() crypto.Address {
	return e.moduleAddress
}

// Stake deposits amount of the pool's asset from caller. providedValue is the
// native value attached to the call; it must equal amount for native pools
// and be zero for token pools. Any reward pending on the existing position
// is paid out first.
func (e *Engine) Stake(caller crypto.Address, poolID uint64, amount, providedValue *big.Int) error {
	return e.execute(func(out *events.Buffer) error {
		globals, err := e.userPreamble(caller)
		if err != nil {
			return err
		}
		pool, err := e.loadPool(poolID)
		if err != nil {
			return err
		}
		if amount == nil || amount.Cmp(pool.MinDeposit) < 0 {
			return fmt.Errorf("%w: minimum %s", ErrBelowMinimum, pool.MinDeposit)
		}
		if amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := checkProvidedValue(pool, amount, providedValue); err != nil {
			return err
		}

		updatePool(pool, e.blockHeight, globals.RewardPerTick, globals.TotalWeight)
		pos, err := e.loadPosition(poolID, caller)
		if err != nil {
			return err
		}
		reward := collect(pool, pos)

		if err := e.move(pool.Asset, caller, e.moduleAddress, amount); err != nil {
			return err
		}
		if err := e.payReward(out, globals, pool.ID, caller, reward, false); err != nil {
			return err
		}

		pos.Amount = new(big.Int).Add(pos.Amount, amount)
		pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
		checkpoint(pool, pos)

		if err := e.state.PutPosition(poolID, caller, pos); err != nil {
			return err
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		out.Emit(events.Staked{Account: caller, PoolID: poolID, Amount: new(big.Int).Set(amount), Tick: e.blockHeight})
		e.logger.Debug("stake applied", "pool", poolID, "account", caller.String(), "amount", amount.String(), "reward", reward.String())
		return nil
	})
}

// RequestUnstake removes amount from the caller's active position and queues
// it for release after the pool's lock period. The returned index identifies
// the request for ClaimUnstake. A settled reward the reserve cannot cover is
// credited to the position's Owed balance instead of failing the call.
func (e *Engine) RequestUnstake(caller crypto.Address, poolID uint64, amount *big.Int) (uint64, error) {
	var index uint64
	err := e.execute(func(out *events.Buffer) error {
		globals, err := e.userPreamble(caller)
		if err != nil {
			return err
		}
		pool, err := e.loadPool(poolID)
		if err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}

		updatePool(pool, e.blockHeight, globals.RewardPerTick, globals.TotalWeight)
		pos, err := e.loadPosition(poolID, caller)
		if err != nil {
			return err
		}
		if pos.Amount.Cmp(amount) < 0 {
			return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientBalance, pos.Amount, amount)
		}
		reward := settle(pool, pos)
		if err := e.payOrDefer(out, globals, pool.ID, caller, pos, reward); err != nil {
			return err
		}

		pos.Amount = new(big.Int).Sub(pos.Amount, amount)
		pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
		checkpoint(pool, pos)

		requests, err := e.state.UnstakeRequests(poolID, caller)
		if err != nil {
			return err
		}
		requests, index = enqueueUnstake(requests, amount, e.blockHeight, pool.UnstakeLockTicks)
		unlock := requests[index].UnlockTick

		if err := e.state.PutUnstakeRequests(poolID, caller, requests); err != nil {
			return err
		}
		if err := e.state.PutPosition(poolID, caller, pos); err != nil {
			return err
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		out.Emit(events.UnstakeRequested{
			Account:    caller,
			PoolID:     poolID,
			Amount:     new(big.Int).Set(amount),
			UnlockTick: unlock,
			Index:      index,
			Tick:       e.blockHeight,
		})
		e.logger.Debug("unstake queued", "pool", poolID, "account", caller.String(), "amount", amount.String(), "unlockTick", unlock)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// ClaimUnstake releases an unlocked unstake request to the caller. Each
// request is released at most once.
func (e *Engine) ClaimUnstake(caller crypto.Address, poolID uint64, index uint64) (*big.Int, error) {
	var released *big.Int
	err := e.execute(func(out *events.Buffer) error {
		globals, err := e.userPreamble(caller)
		if err != nil {
			return err
		}
		pool, err := e.loadPool(poolID)
		if err != nil {
			return err
		}
		updatePool(pool, e.blockHeight, globals.RewardPerTick, globals.TotalWeight)

		requests, err := e.state.UnstakeRequests(poolID, caller)
		if err != nil {
			return err
		}
		amount, err := claimUnstake(requests, index, e.blockHeight)
		if err != nil {
			return err
		}
		if err := e.move(pool.Asset, e.moduleAddress, caller, amount); err != nil {
			return err
		}
		if err := e.state.PutUnstakeRequests(poolID, caller, requests); err != nil {
			return err
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		released = amount
		out.Emit(events.UnstakeClaimed{Account: caller, PoolID: poolID, Amount: new(big.Int).Set(amount), Index: index, Tick: e.blockHeight})
		e.logger.Debug("unstake released", "pool", poolID, "account", caller.String(), "index", index, "amount", amount.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// ClaimReward settles the caller's position and pays the pending reward. A
// RewardClaimed event is emitted even when nothing was owed.
func (e *Engine) ClaimReward(caller crypto.Address, poolID uint64) (*big.Int, error) {
	var paid *big.Int
	err := e.execute(func(out *events.Buffer) error {
		globals, err := e.userPreamble(caller)
		if err != nil {
			return err
		}
		pool, err := e.loadPool(poolID)
		if err != nil {
			return err
		}
		updatePool(pool, e.blockHeight, globals.RewardPerTick, globals.TotalWeight)
		pos, err := e.loadPosition(poolID, caller)
		if err != nil {
			return err
		}
		reward := collect(pool, pos)
		if err := e.payReward(out, globals, poolID, caller, reward, true); err != nil {
			return err
		}
		if err := e.state.PutPosition(poolID, caller, pos); err != nil {
			return err
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		paid = reward
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (e *Engine) execute(fn func(out *events.Buffer) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	snapshot := e.state.Snapshot()
	buffer := &events.Buffer{}
	if err := fn(buffer); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	for _, ev := range buffer.Events() {
		e.emitter.Emit(ev)
	}
	return nil
}

// userPreamble loads the globals and applies the pause gate shared by all
// user operations.
func (e *Engine) userPreamble(caller crypto.Address) (*Globals, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	if err := e.guard(globals); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ErrInvalidAddress
	}
	return globals, nil
}

func (e *Engine) guard(globals *Globals) error {
	own := nativecommon.PauseFunc(func(string) bool { return globals.Paused })
	if err := nativecommon.Guard(moduleName, own, e.pauses); err != nil {
		return ErrPaused
	}
	return nil
}

func (e *Engine) loadGlobals() (*Globals, error) {
	globals, err := e.state.Globals()
	if err != nil {
		return nil, err
	}
	if globals == nil {
		return nil, ErrNotInitialized
	}
	if globals.RewardPerTick == nil {
		globals.RewardPerTick = big.NewInt(0)
	}
	return globals, nil
}

func (e *Engine) loadPosition(poolID uint64, addr crypto.Address) (*Position, error) {
	pos, err := e.state.Position(poolID, addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return newPosition(), nil
	}
	if pos.Amount == nil {
		pos.Amount = big.NewInt(0)
	}
	if pos.RewardDebt == nil {
		pos.RewardDebt = big.NewInt(0)
	}
	if pos.Owed == nil {
		pos.Owed = big.NewInt(0)
	}
	return pos, nil
}

func (e *Engine) move(asset string, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if e.transfer == nil {
		return fmt.Errorf("%w: transfer not configured", ErrAssetTransferFailed)
	}
	if err := e.transfer.Transfer(asset, from, to, new(big.Int).Set(amount)); err != nil {
		return fmt.Errorf("%w: %v", ErrAssetTransferFailed, err)
	}
	return nil
}

// payReward transfers a settled reward. When always is false a zero reward
// produces neither a transfer nor an event.
func (e *Engine) payReward(out *events.Buffer, globals *Globals, poolID uint64, to crypto.Address, reward *big.Int, always bool) error {
	if reward.Sign() == 0 && !always {
		return nil
	}
	if err := e.move(globals.RewardAsset, e.moduleAddress, to, reward); err != nil {
		return err
	}
	out.Emit(events.RewardClaimed{Account: to, PoolID: poolID, Amount: new(big.Int).Set(reward), Tick: e.blockHeight})
	return nil
}

// payOrDefer pays reward and, when the transfer fails, rolls the transfer back
// and adds the reward to pos.Owed.
func (e *Engine) payOrDefer(out *events.Buffer, globals *Globals, poolID uint64, to crypto.Address, pos *Position, reward *big.Int) error {
	if reward.Sign() == 0 {
		return nil
	}
	snapshot := e.state.Snapshot()
	err := e.payReward(out, globals, poolID, to, reward, false)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAssetTransferFailed) {
		return err
	}
	e.state.RevertToSnapshot(snapshot)
	pos.Owed = new(big.Int).Add(pos.Owed, reward)
	out.Emit(events.RewardDeferred{Account: to, PoolID: poolID, Amount: new(big.Int).Set(reward), Owed: new(big.Int).Set(pos.Owed), Tick: e.blockHeight})
	e.logger.Warn("reward payout deferred", "pool", poolID, "account", to.String(), "amount", reward.String(), "owed", pos.Owed.String(), "error", err)
	return nil
}

func checkProvidedValue(pool *Pool, amount, provided *big.Int) error {
	if pool.IsNative() {
		if provided == nil || provided.Cmp(amount) != 0 {
			return ErrValueMismatch
		}
		return nil
	}
	if provided != nil && provided.Sign() != 0 {
		return ErrValueMismatch
	}
	return nil
}
