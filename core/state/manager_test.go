package state

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"stakeledger/storage"
)

func TestManagerSnapshotRevert(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	if err := mgr.KVPut([]byte("alpha"), uint64(1)); err != nil {
		t.Fatalf("put alpha: %v", err)
	}
	snap := mgr.Snapshot()
	if err := mgr.KVPut([]byte("alpha"), uint64(2)); err != nil {
		t.Fatalf("overwrite alpha: %v", err)
	}
	if err := mgr.KVPut([]byte("beta"), uint64(3)); err != nil {
		t.Fatalf("put beta: %v", err)
	}
	mgr.RevertToSnapshot(snap)

	var got uint64
	ok, err := mgr.KVGet([]byte("alpha"), &got)
	if err != nil || !ok || got != 1 {
		t.Fatalf("alpha after revert: ok=%v val=%d err=%v", ok, got, err)
	}
	ok, err = mgr.KVGet([]byte("beta"), &got)
	if err != nil || ok {
		t.Fatalf("beta should be gone after revert: ok=%v err=%v", ok, err)
	}
	if mgr.Pending() != 1 {
		t.Fatalf("expected one staged key, got %d", mgr.Pending())
	}
}

func TestManagerCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	if err := mgr.KVPut([]byte("kept"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("staged writes must not reach the store before commit")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 1 {
		t.Fatalf("expected one committed key, got %d", db.Len())
	}

	if err := mgr.KVDelete([]byte("kept")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := mgr.KVGet([]byte("kept"), nil); ok {
		t.Fatalf("staged delete should hide the key")
	}
	mgr.Discard()

	fresh := NewManager(db)
	var got uint64
	ok, err := fresh.KVGet([]byte("kept"), &got)
	if err != nil || !ok || got != 7 {
		t.Fatalf("committed value lost: ok=%v val=%d err=%v", ok, got, err)
	}
}

func TestManagerKVGetListDefaultsEmpty(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	var list []uint64
	if err := mgr.KVGetList([]byte("missing"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
	if err := mgr.KVGetList([]byte("missing"), list); err == nil {
		t.Fatalf("expected error for non-pointer destination")
	}
}

func TestBalancesRequireRegisteredToken(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := []byte{0x01, 0x02}

	if err := mgr.SetBalance(addr, "lp", big.NewInt(5)); err == nil {
		t.Fatalf("expected unregistered token error")
	}
	if err := mgr.RegisterToken("lp", "Liquidity", 18); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.RegisterToken("LP", "Again", 18); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := mgr.SetBalance(addr, "LP", big.NewInt(5)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := mgr.SetBalance(addr, "LP", big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance error")
	}
	bal, err := mgr.Balance(addr, " lp ")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected balance %s", bal)
	}
	if NormalizeSymbol("") != NativeSymbol {
		t.Fatalf("empty symbol must map to the native asset")
	}
}

func TestTokenSupplyTracking(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	total, err := mgr.AdjustTokenSupply("rwd", big.NewInt(40))
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if total.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected total %s", total)
	}
	if _, err := mgr.AdjustTokenSupply("RWD", big.NewInt(-41)); err == nil {
		t.Fatalf("expected underflow error")
	}
	got, err := mgr.TokenSupply("RWD")
	if err != nil || got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected supply %v err=%v", got, err)
	}
}

func TestEnsureStateVersion(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()

	if err := EnsureStateVersion(db, false); err != nil {
		t.Fatalf("empty store should pass: %v", err)
	}
	mgr := NewManager(db)
	if err := mgr.SetStateVersion(StateVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := EnsureStateVersion(db, false); !errors.Is(err, ErrStateVersionMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := EnsureStateVersion(db, true); err != nil {
		t.Fatalf("migration override should pass: %v", err)
	}
}
