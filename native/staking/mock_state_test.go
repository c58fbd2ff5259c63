package staking

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"stakeledger/core/events"
	"stakeledger/crypto"
)

type mockState struct {
	globals   *Globals
	pools     map[uint64]*Pool
	positions map[string]*Position
	requests  map[string][]UnstakeRequest
	balances  map[string]*big.Int
	snapshots []*mockState
}

func newMockState() *mockState {
	return &mockState{
		pools:     make(map[uint64]*Pool),
		positions: make(map[string]*Position),
		requests:  make(map[string][]UnstakeRequest),
		balances:  make(map[string]*big.Int),
	}
}

func positionKey(poolID uint64, addr crypto.Address) string {
	return fmt.Sprintf("%d/%x", poolID, addr.Bytes())
}

func balanceKey(asset string, addr crypto.Address) string {
	return asset + "/" + string(addr.Bytes())
}

func (m *mockState) copy() *mockState {
	out := newMockState()
	out.globals = m.globals.Clone()
	for id, pool := range m.pools {
		out.pools[id] = pool.Clone()
	}
	for key, pos := range m.positions {
		out.positions[key] = pos.Clone()
	}
	for key, reqs := range m.requests {
		out.requests[key] = cloneRequests(reqs)
	}
	for key, bal := range m.balances {
		out.balances[key] = new(big.Int).Set(bal)
	}
	return out
}

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.copy())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) {
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	snap := m.snapshots[id]
	m.globals = snap.globals
	m.pools = snap.pools
	m.positions = snap.positions
	m.requests = snap.requests
	m.balances = snap.balances
	m.snapshots = m.snapshots[:id]
}

func (m *mockState) Globals() (*Globals, error) { return m.globals.Clone(), nil }

func (m *mockState) PutGlobals(g *Globals) error {
	m.globals = g.Clone()
	return nil
}

func (m *mockState) Pool(id uint64) (*Pool, error) {
	pool, ok := m.pools[id]
	if !ok {
		return nil, nil
	}
	return pool.Clone(), nil
}

func (m *mockState) PutPool(pool *Pool) error {
	m.pools[pool.ID] = pool.Clone()
	return nil
}

func (m *mockState) Position(poolID uint64, addr crypto.Address) (*Position, error) {
	pos, ok := m.positions[positionKey(poolID, addr)]
	if !ok {
		return nil, nil
	}
	return pos.Clone(), nil
}

func (m *mockState) PutPosition(poolID uint64, addr crypto.Address, pos *Position) error {
	m.positions[positionKey(poolID, addr)] = pos.Clone()
	return nil
}

func (m *mockState) UnstakeRequests(poolID uint64, addr crypto.Address) ([]UnstakeRequest, error) {
	return cloneRequests(m.requests[positionKey(poolID, addr)]), nil
}

func (m *mockState) PutUnstakeRequests(poolID uint64, addr crypto.Address, requests []UnstakeRequest) error {
	m.requests[positionKey(poolID, addr)] = cloneRequests(requests)
	return nil
}

func (m *mockState) balance(asset string, addr crypto.Address) *big.Int {
	if bal, ok := m.balances[balanceKey(asset, addr)]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (m *mockState) credit(asset string, addr crypto.Address, amount int64) {
	m.balances[balanceKey(asset, addr)] = new(big.Int).Add(m.balance(asset, addr), big.NewInt(amount))
}

var errMockInsufficient = errors.New("mock: insufficient funds")

// Transfer moves balances inside the mock so snapshots cover them too.
func (m *mockState) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	fromBal := m.balance(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return errMockInsufficient
	}
	m.balances[balanceKey(asset, from)] = fromBal.Sub(fromBal, amount)
	toBal := m.balance(asset, to)
	m.balances[balanceKey(asset, to)] = toBal.Add(toBal, amount)
	return nil
}

func testAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = b
	raw[0] = 0xAA
	return crypto.NewAddress(crypto.StakePrefix, raw)
}

const rewardAsset = "RWD"

var (
	ownerAddr    = testAddress(1)
	operatorAddr = testAddress(2)
	aliceAddr    = testAddress(10)
	bobAddr      = testAddress(11)
	moduleAddr   = crypto.ModuleAddress("staking")
)

type testEnv struct {
	engine  *Engine
	state   *mockState
	emitted *events.Buffer
}

func newTestEnv(t *testing.T, rewardPerTick int64) *testEnv {
	t.Helper()
	st := newMockState()
	emitted := &events.Buffer{}
	engine := NewEngine(moduleAddr)
	engine.SetState(st)
	engine.SetTransfer(st)
	engine.SetEmitter(emitted)
	if err := engine.Initialize(ownerAddr, operatorAddr, rewardAsset, big.NewInt(rewardPerTick)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	st.credit(rewardAsset, moduleAddr, 1_000_000_000)
	emitted.Reset()
	return &testEnv{engine: engine, state: st, emitted: emitted}
}

func (env *testEnv) addPool(t *testing.T, asset string, weight uint64, minDeposit int64, lock uint64) uint64 {
	t.Helper()
	id, err := env.engine.AddPool(operatorAddr, asset, weight, big.NewInt(minDeposit), lock)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	return id
}

func (env *testEnv) stakeNative(t *testing.T, who crypto.Address, poolID uint64, amount int64) {
	t.Helper()
	env.state.credit(NativeAsset, who, amount)
	if err := env.engine.Stake(who, poolID, big.NewInt(amount), big.NewInt(amount)); err != nil {
		t.Fatalf("stake: %v", err)
	}
}

func (env *testEnv) pending(t *testing.T, poolID uint64, who crypto.Address) *big.Int {
	t.Helper()
	reward, err := env.engine.PendingReward(poolID, who)
	if err != nil {
		t.Fatalf("pending reward: %v", err)
	}
	return reward
}

func requireInt(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %v want %d", label, got, want)
	}
}
