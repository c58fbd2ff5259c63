package metrics

import (
	"math"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics records ledger operations and pool state.
type StakingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	totalStaked *prometheus.GaugeVec
	rewardsPaid *prometheus.CounterVec
	tick        prometheus.Gauge
	paused      prometheus.Gauge
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the singleton staking metrics registry.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_operations_total",
				Help: "Count of ledger operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "staking_operation_duration_seconds",
				Help:    "Latency of ledger operations including commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "staking_pool_total_staked",
				Help: "Active principal per pool in the asset's smallest unit.",
			}, []string{"pool"}),
			rewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_rewards_paid_total",
				Help: "Cumulative rewards paid per pool in the reward asset's smallest unit.",
			}, []string{"pool"}),
			tick: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_tick",
				Help: "Current ledger tick.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_paused",
				Help: "1 while the ledger rejects user operations.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardsPaid,
			stakingRegistry.tick,
			stakingRegistry.paused,
		)
	})
	return stakingRegistry
}

// ObserveOperation records an operation's outcome and latency.
func (m *StakingMetrics) ObserveOperation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(d.Seconds())
}

// SetTotalStaked publishes the pool's active principal.
func (m *StakingMetrics) SetTotalStaked(pool uint64, amount *big.Int) {
	if m == nil {
		return
	}
	m.totalStaked.WithLabelValues(strconv.FormatUint(pool, 10)).Set(bigToFloat(amount))
}

// AddRewardPaid accumulates a reward payout.
func (m *StakingMetrics) AddRewardPaid(pool uint64, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.WithLabelValues(strconv.FormatUint(pool, 10)).Add(bigToFloat(amount))
}

// SetTick publishes the current tick.
func (m *StakingMetrics) SetTick(tick uint64) {
	if m == nil {
		return
	}
	m.tick.Set(float64(tick))
}

// SetPaused publishes the pause flag.
func (m *StakingMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
