package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is halted.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module currently rejects mutations.
type PauseView interface {
	IsPaused(module string) bool
}

// PauseFunc adapts a function to the PauseView interface.
type PauseFunc func(module string) bool

// IsPaused implements PauseView.
func (f PauseFunc) IsPaused(module string) bool {
	if f == nil {
		return false
	}
	return f(module)
}

// Guard returns ErrModulePaused when any of the supplied views reports the
// module as paused. Nil views are ignored.
func Guard(module string, views ...PauseView) error {
	if module == "" {
		return nil
	}
	for _, p := range views {
		if p == nil {
			continue
		}
		if p.IsPaused(module) {
			return ErrModulePaused
		}
	}
	return nil
}
