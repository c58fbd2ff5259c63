package staked

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"stakeledger/config"
	"stakeledger/core/events"
	"stakeledger/core/state"
	"stakeledger/crypto"
	"stakeledger/storage"
)

func testAddr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[19] = b
	return crypto.NewAddress(crypto.StakePrefix, raw)
}

var (
	ownerAddr    = testAddr(1)
	operatorAddr = testAddr(2)
	aliceAddr    = testAddr(3)
	bobAddr      = testAddr(4)
)

const testLockTicks = 5

func testGenesis() *config.Genesis {
	return &config.Genesis{
		Owner:         ownerAddr,
		Operator:      operatorAddr,
		RewardAsset:   "RWD",
		RewardPerTick: big.NewInt(100),
		RewardReserve: big.NewInt(1_000_000_000),
		Assets: []config.GenesisAsset{
			{Symbol: "", Name: "Native", Decimals: 18},
			{Symbol: "RWD", Name: "Reward", Decimals: 18},
		},
		Pools: []config.GenesisPool{
			{Asset: "", Weight: 100, MinDeposit: big.NewInt(1), UnstakeLockTicks: testLockTicks},
		},
		Balances: []config.GenesisBalance{
			{Address: aliceAddr, Asset: "", Amount: big.NewInt(1000)},
			{Address: bobAddr, Asset: "", Amount: big.NewInt(1000)},
		},
	}
}

type recordingSink struct {
	mu    sync.Mutex
	types []string
}

func (s *recordingSink) Emit(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, ev.EventType())
}

func (s *recordingSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.types...)
}

type testHarness struct {
	db        storage.Database
	ticker    *ManualTicker
	sink      *recordingSink
	processor *Processor
}

// newHarness applies testGenesis at tick 0. extra sinks see the genesis
// events too.
func newHarness(t *testing.T, extra ...events.Emitter) *testHarness {
	t.Helper()
	db := storage.NewMemDB()
	h := &testHarness{db: db, ticker: NewManualTicker(0), sink: &recordingSink{}}
	sinks := append([]events.Emitter{h.sink}, extra...)
	h.processor = NewProcessor(state.NewManager(db), h.ticker, nil, sinks...)
	if err := h.processor.ApplyGenesis(context.Background(), testGenesis()); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	return h
}

func (h *testHarness) balance(t *testing.T, asset string, addr crypto.Address) string {
	t.Helper()
	bal, err := h.processor.Balance(asset, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.String()
}
