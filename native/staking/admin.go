package staking

import (
	"errors"
	"math/big"
	"strings"

	"stakeledger/core/events"
	"stakeledger/crypto"
)

// ErrNotPaused is returned when unpausing a ledger that is not paused.
var ErrNotPaused = errors.New("staking: not paused")

// Initialize writes the genesis globals. It fails when the ledger already
// has an owner.
func (e *Engine) Initialize(owner, operator crypto.Address, rewardAsset string, rewardPerTick *big.Int) error {
	return e.execute(func(out *events.Buffer) error {
		existing, err := e.state.Globals()
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyInitialized
		}
		if owner.IsZero() || operator.IsZero() {
			return ErrInvalidAddress
		}
		if rewardPerTick == nil {
			rewardPerTick = big.NewInt(0)
		}
		if rewardPerTick.Sign() < 0 {
			return ErrInvalidAmount
		}
		globals := &Globals{
			Owner:         owner,
			Operator:      operator,
			RewardAsset:   strings.TrimSpace(rewardAsset),
			RewardPerTick: new(big.Int).Set(rewardPerTick),
		}
		if err := e.state.PutGlobals(globals); err != nil {
			return err
		}
		out.Emit(events.RoleChanged{Type: events.TypeOwnershipTransferred, Current: owner, Tick: e.blockHeight})
		out.Emit(events.RoleChanged{Type: events.TypeOperatorUpdated, Current: operator, Tick: e.blockHeight})
		return nil
	})
}

// UpdateRewardPerTick changes the global emission rate. Pools are not brought
// current first; each pool applies the new rate from its own LastUpdateTick
// the next time it is touched.
func (e *Engine) UpdateRewardPerTick(caller crypto.Address, rate *big.Int) error {
	return e.execute(func(out *events.Buffer) error {
		globals, err := e.operatorPreamble(caller)
		if err != nil {
			return err
		}
		if rate == nil || rate.Sign() < 0 {
			return ErrInvalidAmount
		}
		old := new(big.Int).Set(globals.RewardPerTick)
		globals.RewardPerTick = new(big.Int).Set(rate)
		if err := e.state.PutGlobals(globals); err != nil {
			return err
		}
		out.Emit(events.RewardRateUpdated{Old: old, New: new(big.Int).Set(rate), Tick: e.blockHeight})
		e.logger.Info("reward rate updated", "old", old.String(), "new", rate.String())
		return nil
	})
}

// Pause halts every user operation until Unpause.
func (e *Engine) Pause(caller crypto.Address) error {
	return e.setPaused(caller, true)
}

// Unpause resumes user operations.
func (e *Engine) Unpause(caller crypto.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller crypto.Address, paused bool) error {
	return e.execute(func(out *events.Buffer) error {
		globals, err := e.operatorPreamble(caller)
		if err != nil {
			return err
		}
		if globals.Paused == paused {
			if paused {
				return ErrPaused
			}
			return ErrNotPaused
		}
		globals.Paused = paused
		if err := e.state.PutGlobals(globals); err != nil {
			return err
		}
		out.Emit(events.PauseToggled{Operator: caller, Paused: paused, Tick: e.blockHeight})
		e.logger.Info("pause toggled", "paused", paused, "operator", caller.String())
		return nil
	})
}

// TransferOwnership hands the owner role to newOwner. Owner only.
func (e *Engine) TransferOwnership(caller, newOwner crypto.Address) error {
	return e.execute(func(out *events.Buffer) error {
		globals, err := e.ownerPreamble(caller)
		if err != nil {
			return err
		}
		if newOwner.IsZero() {
			return ErrInvalidAddress
		}
		previous := globals.Owner
		globals.Owner = newOwner
		if err := e.state.PutGlobals(globals); err != nil {
			return err
		}
		out.Emit(events.RoleChanged{Type: events.TypeOwnershipTransferred, Previous: previous, Current: newOwner, Tick: e.blockHeight})
		return nil
	})
}

// SetOperator replaces the operator. Owner only.
func (e *Engine) SetOperator(caller, newOperator crypto.Address) error {
	return e.execute(func(out *events.Buffer) error {
		globals, err := e.ownerPreamble(caller)
		if err != nil {
			return err
		}
		if newOperator.IsZero() {
			return ErrInvalidAddress
		}
		previous := globals.Operator
		globals.Operator = newOperator
		if err := e.state.PutGlobals(globals); err != nil {
			return err
		}
		out.Emit(events.RoleChanged{Type: events.TypeOperatorUpdated, Previous: previous, Current: newOperator, Tick: e.blockHeight})
		return nil
	})
}

func (e *Engine) operatorPreamble(caller crypto.Address) (*Globals, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	if !globals.Operator.Equal(caller) {
		return nil, ErrUnauthorized
	}
	return globals, nil
}

func (e *Engine) ownerPreamble(caller crypto.Address) (*Globals, error) {
	globals, err := e.loadGlobals()
	if err != nil {
		return nil, err
	}
	if !globals.Owner.Equal(caller) {
		return nil, ErrUnauthorized
	}
	return globals, nil
}
