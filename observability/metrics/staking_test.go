package metrics

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStakingMetricsRecord(t *testing.T) {
	m := Staking()
	if Staking() != m {
		t.Fatalf("expected singleton registry")
	}

	m.ObserveOperation("stake", time.Millisecond, nil)
	m.ObserveOperation("stake", time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(m.operations.WithLabelValues("stake", "error")); got != 1 {
		t.Fatalf("unexpected error count %v", got)
	}

	m.SetTotalStaked(3, big.NewInt(250))
	if got := testutil.ToFloat64(m.totalStaked.WithLabelValues("3")); got != 250 {
		t.Fatalf("unexpected total staked %v", got)
	}
	m.AddRewardPaid(3, big.NewInt(10))
	m.AddRewardPaid(3, big.NewInt(0))
	if got := testutil.ToFloat64(m.rewardsPaid.WithLabelValues("3")); got != 10 {
		t.Fatalf("unexpected rewards paid %v", got)
	}
	m.SetPaused(true)
	if got := testutil.ToFloat64(m.paused); got != 1 {
		t.Fatalf("unexpected paused gauge %v", got)
	}
	var nilMetrics *StakingMetrics
	nilMetrics.SetTick(1)
}
