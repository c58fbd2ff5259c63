package staked

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakeledger/core/events"
	"stakeledger/core/state"
	"stakeledger/crypto"
	"stakeledger/native/bank"
	nativecommon "stakeledger/native/common"
	"stakeledger/native/staking"
	"stakeledger/observability"
	"stakeledger/observability/metrics"
	telemetry "stakeledger/observability/otel"
)

var tickKey = []byte("staked/tick")

// Processor serialises ledger calls, commits each successful call to the
// store and forwards its events to the configured sinks once committed.
type Processor struct {
	mu      sync.Mutex
	mgr     *state.Manager
	engine  *staking.Engine
	ledger  *bank.Ledger
	ticker  Ticker
	pending *events.Buffer
	sinks   events.Fanout
	logger  *slog.Logger
	metrics *metrics.StakingMetrics
	tracer  trace.Tracer
}

// NewProcessor wires an engine over mgr. Events reach sinks only after the
// call that produced them has been committed.
func NewProcessor(mgr *state.Manager, ticker Ticker, logger *slog.Logger, sinks ...events.Emitter) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	ledger := bank.NewLedger(mgr)
	pending := &events.Buffer{}
	engine := staking.NewEngine(crypto.ModuleAddress(staking.ModuleName()))
	engine.SetState(state.NewStakingStore(mgr))
	engine.SetTransfer(ledger)
	engine.SetEmitter(pending)
	engine.SetLogger(logger)
	return &Processor{
		mgr:     mgr,
		engine:  engine,
		ledger:  ledger,
		ticker:  ticker,
		pending: pending,
		sinks:   events.Fanout(sinks),
		logger:  logger,
		metrics: metrics.Staking(),
		tracer:  telemetry.Tracer(),
	}
}

// SetPauses installs an operator-controlled halt consulted alongside the
// ledger's own pause flag.
func (p *Processor) SetPauses(view nativecommon.PauseView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetPauses(view)
}

// AddSink registers another event consumer.
func (p *Processor) AddSink(sink events.Emitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, sink)
}

// Ledger exposes the bank ledger for balance queries.
func (p *Processor) Ledger() *bank.Ledger { return p.ledger }

// ModuleAddress returns the custody account of the staking module.
func (p *Processor) ModuleAddress() crypto.Address { return p.engine.ModuleAddress() }

// Height returns the tick the next call will execute at.
func (p *Processor) Height() uint64 { return p.ticker.Height() }

// StoredHeight returns the tick recorded by the last commit.
func StoredHeight(mgr *state.Manager) (uint64, error) {
	var height uint64
	if _, err := mgr.KVGet(tickKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (p *Processor) run(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	_, span := p.tracer.Start(ctx, "staking."+op)
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()
	height := p.ticker.Height()
	p.engine.SetBlockHeight(height)
	err := fn()
	if err == nil {
		err = p.commit(height)
	} else {
		p.mgr.Discard()
	}
	committed := p.pending.Events()
	p.pending.Reset()

	span.SetAttributes(attribute.Int64("staking.tick", int64(height)))
	p.metrics.ObserveOperation(op, time.Since(start), err)
	p.metrics.SetTick(height)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Debug("ledger call rejected", "op", op, "tick", height, "error", err)
		return err
	}
	// Sinks run under the lock so every sink sees events in commit order.
	for _, ev := range committed {
		p.observe(ev)
		p.sinks.Emit(ev)
		observability.Events().RecordEmitted(ev.EventType())
	}
	return nil
}

func (p *Processor) commit(height uint64) error {
	if err := p.mgr.KVPut(tickKey, height); err != nil {
		p.mgr.Discard()
		return err
	}
	if err := p.mgr.Commit(); err != nil {
		p.mgr.Discard()
		p.logger.Error("commit failed", "tick", height, "error", err)
		return fmt.Errorf("staked: commit: %w", err)
	}
	return nil
}

func (p *Processor) observe(ev events.Event) {
	switch e := ev.(type) {
	case events.RewardClaimed:
		p.metrics.AddRewardPaid(e.PoolID, e.Amount)
	case events.PauseToggled:
		p.metrics.SetPaused(e.Paused)
	case events.Staked:
		p.publishPool(e.PoolID)
	case events.UnstakeRequested:
		p.publishPool(e.PoolID)
	}
}

func (p *Processor) publishPool(id uint64) {
	pool, err := p.engine.Pool(id)
	if err != nil {
		return
	}
	p.metrics.SetTotalStaked(id, pool.TotalStaked)
}

// Stake deposits into a pool on behalf of caller.
func (p *Processor) Stake(ctx context.Context, caller crypto.Address, poolID uint64, amount, value *big.Int) error {
	return p.run(ctx, "stake", func() error {
		return p.engine.Stake(caller, poolID, amount, value)
	})
}

// RequestUnstake queues principal for release and returns the request index.
func (p *Processor) RequestUnstake(ctx context.Context, caller crypto.Address, poolID uint64, amount *big.Int) (uint64, error) {
	var index uint64
	err := p.run(ctx, "request_unstake", func() error {
		var err error
		index, err = p.engine.RequestUnstake(caller, poolID, amount)
		return err
	})
	return index, err
}

// ClaimUnstake releases an unlocked request.
func (p *Processor) ClaimUnstake(ctx context.Context, caller crypto.Address, poolID, index uint64) (*big.Int, error) {
	var released *big.Int
	err := p.run(ctx, "claim_unstake", func() error {
		var err error
		released, err = p.engine.ClaimUnstake(caller, poolID, index)
		return err
	})
	return released, err
}

// ClaimReward pays the caller's pending reward.
func (p *Processor) ClaimReward(ctx context.Context, caller crypto.Address, poolID uint64) (*big.Int, error) {
	var paid *big.Int
	err := p.run(ctx, "claim_reward", func() error {
		var err error
		paid, err = p.engine.ClaimReward(caller, poolID)
		return err
	})
	return paid, err
}

// AddPool registers a pool. Operator only.
func (p *Processor) AddPool(ctx context.Context, caller crypto.Address, asset string, weight uint64, minDeposit *big.Int, lockTicks uint64) (uint64, error) {
	var id uint64
	err := p.run(ctx, "add_pool", func() error {
		var err error
		id, err = p.engine.AddPool(caller, asset, weight, minDeposit, lockTicks)
		return err
	})
	return id, err
}

// UpdateRewardPerTick changes the emission rate. Operator only.
func (p *Processor) UpdateRewardPerTick(ctx context.Context, caller crypto.Address, rate *big.Int) error {
	return p.run(ctx, "update_reward_per_tick", func() error {
		return p.engine.UpdateRewardPerTick(caller, rate)
	})
}

// SetPaused pauses or resumes user operations. Operator only.
func (p *Processor) SetPaused(ctx context.Context, caller crypto.Address, paused bool) error {
	if paused {
		return p.run(ctx, "pause", func() error { return p.engine.Pause(caller) })
	}
	return p.run(ctx, "unpause", func() error { return p.engine.Unpause(caller) })
}

// TransferOwnership moves the owner role. Owner only.
func (p *Processor) TransferOwnership(ctx context.Context, caller, newOwner crypto.Address) error {
	return p.run(ctx, "transfer_ownership", func() error {
		return p.engine.TransferOwnership(caller, newOwner)
	})
}

// SetOperator replaces the operator. Owner only.
func (p *Processor) SetOperator(ctx context.Context, caller, newOperator crypto.Address) error {
	return p.run(ctx, "set_operator", func() error {
		return p.engine.SetOperator(caller, newOperator)
	})
}

func (p *Processor) query(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetBlockHeight(p.ticker.Height())
	return fn()
}

// Globals returns the ledger-wide settings.
func (p *Processor) Globals() (*staking.Globals, error) {
	var out *staking.Globals
	err := p.query(func() error {
		var err error
		out, err = p.engine.Globals()
		return err
	})
	return out, err
}

// Pools lists every registered pool in ID order.
func (p *Processor) Pools() ([]*staking.Pool, error) {
	var out []*staking.Pool
	err := p.query(func() error {
		count, err := p.engine.PoolCount()
		if err != nil {
			return err
		}
		out = make([]*staking.Pool, 0, count)
		for id := uint64(0); id < count; id++ {
			pool, err := p.engine.Pool(id)
			if err != nil {
				return err
			}
			out = append(out, pool)
		}
		return nil
	})
	return out, err
}

// Pool returns a single pool.
func (p *Processor) Pool(id uint64) (*staking.Pool, error) {
	var out *staking.Pool
	err := p.query(func() error {
		var err error
		out, err = p.engine.Pool(id)
		return err
	})
	return out, err
}

// Position returns an account's position in a pool.
func (p *Processor) Position(poolID uint64, addr crypto.Address) (*staking.Position, error) {
	var out *staking.Position
	err := p.query(func() error {
		var err error
		out, err = p.engine.Position(poolID, addr)
		return err
	})
	return out, err
}

// PendingReward previews the reward an account could claim now.
func (p *Processor) PendingReward(poolID uint64, addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := p.query(func() error {
		var err error
		out, err = p.engine.PendingReward(poolID, addr)
		return err
	})
	return out, err
}

// UnstakeRequests lists an account's unstake queue in a pool.
func (p *Processor) UnstakeRequests(poolID uint64, addr crypto.Address) ([]staking.UnstakeRequest, error) {
	var out []staking.UnstakeRequest
	err := p.query(func() error {
		var err error
		out, err = p.engine.UnstakeRequests(poolID, addr)
		return err
	})
	return out, err
}

// Balance returns an account's bank balance in asset.
func (p *Processor) Balance(asset string, addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := p.query(func() error {
		var err error
		out, err = p.ledger.Balance(asset, addr)
		return err
	})
	return out, err
}

// IsInitialized reports whether genesis has been applied.
func (p *Processor) IsInitialized() bool {
	_, err := p.Globals()
	return err == nil
}
