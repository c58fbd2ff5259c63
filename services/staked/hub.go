package staked

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"stakeledger/core/events"
	"stakeledger/core/types"
	"stakeledger/observability"
)

const subscriberBuffer = 64

// Hub fans committed events out to live subscribers. Slow subscribers lose
// events rather than stall the ledger.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan *types.Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan *types.Event)}
}

// Subscribe registers a subscriber. The returned cancel function closes the
// channel.
func (h *Hub) Subscribe() (<-chan *types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan *types.Event, subscriberBuffer)
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Emit implements events.Emitter.
func (h *Hub) Emit(ev events.Event) {
	if ev == nil {
		return
	}
	payload := ev.Event()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- payload:
		default:
			observability.Events().RecordDropped("websocket")
			hubMetrics().recordDropped(payload.Type)
		}
	}
}

var (
	hubMetricsOnce   sync.Once
	sharedHubMetrics *streamMetrics
)

type streamMetrics struct {
	dropped metric.Int64Counter
}

func hubMetrics() *streamMetrics {
	hubMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("stakeledger/staked")
		counter, err := meter.Int64Counter("stakeledger.stream.dropped")
		if err != nil {
			fallback := noop.NewMeterProvider().Meter("stakeledger/staked")
			counter, _ = fallback.Int64Counter("stakeledger.stream.dropped")
		}
		sharedHubMetrics = &streamMetrics{dropped: counter}
	})
	return sharedHubMetrics
}

func (m *streamMetrics) recordDropped(eventType string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", eventType)))
}
