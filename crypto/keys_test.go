package crypto

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	for i := range raw {
		raw[i] = byte(i)
	}
	addr := NewAddress(StakePrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "stk1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) || decoded.Prefix() != StakePrefix {
		t.Fatalf("round trip mismatch: %s", decoded)
	}

	raw[0] = 0xff
	if decoded.Bytes()[0] == 0xff {
		t.Fatal("address aliased the input slice")
	}
}

func TestAddressZeroAndEquality(t *testing.T) {
	var zero Address
	if !zero.IsZero() || zero.String() != "" {
		t.Fatal("zero address should be empty")
	}
	if zero.Equal(zero) {
		t.Fatal("zero addresses never compare equal")
	}
	empty, err := AddressFromBytes(StakePrefix, nil)
	if err != nil || !empty.IsZero() {
		t.Fatalf("expected zero address, got %v %v", empty, err)
	}
	if _, err := AddressFromBytes(StakePrefix, []byte{1, 2}); err == nil {
		t.Fatal("expected length error")
	}
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatal("expected decode error")
	}

	module := ModuleAddress("staking")
	if module.Prefix() != ModulePrefix || !module.Equal(ModuleAddress("staking")) || module.Equal(ModuleAddress("bank")) {
		t.Fatal("module addresses must be deterministic and distinct")
	}
}

func TestAddressJSON(t *testing.T) {
	addr := ModuleAddress("staking")
	data, err := json.Marshal(struct{ A Address }{addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct{ A Address }
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.A.Equal(addr) {
		t.Fatalf("json round trip mismatch: %s", out.A)
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "key.json")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save: %v", err)
	}
	addr, err := KeystoreAddress(path)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if !addr.Equal(key.PubKey().Address()) {
		t.Fatalf("keystore address mismatch")
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(loaded.Bytes()) != string(key.Bytes()) {
		t.Fatal("loaded key differs")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatal("expected wrong passphrase to fail")
	}
}
