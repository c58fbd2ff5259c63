package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	paused := PauseFunc(func(module string) bool { return module == "staking" })
	var nilFunc PauseFunc

	if err := Guard("staking", nil, nilFunc, paused); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard("bank", paused); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := Guard("", paused); err != nil {
		t.Fatalf("empty module is never guarded, got %v", err)
	}
}
