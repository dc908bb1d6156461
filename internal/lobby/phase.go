package lobby

import (
	"fmt"
	"time"
)

// Phase is the lifecycle stage of a session.
type Phase string

const (
	PhaseForming   Phase = "forming"
	PhaseLocked    Phase = "locked"
	PhaseResolving Phase = "resolving"
	PhaseSettled   Phase = "settled"
	PhaseCancelled Phase = "cancelled"
)

// Transition reasons.
const (
	ReasonCreated          = "created"
	ReasonDeadline         = "deadline"
	ReasonBelowMinimum     = "deadline_below_minimum"
	ReasonForceStart       = "force_start"
	ReasonCapacity         = "capacity_reached"
	ReasonHostCancel       = "host_cancel"
	ReasonSweep            = "stale_sweep"
	ReasonSimulated        = "simulated"
	ReasonSimulationFailed = "simulation_failed"
	ReasonSettled          = "settled"
	ReasonPartialFailure   = "settled_partial_failure"
)

// IsTerminal reports whether no further transition is possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseSettled || p == PhaseCancelled
}

// canTransition checks whether a phase transition is allowed.
// Phases only move forward: forming < locked < resolving < {settled, cancelled}.
func canTransition(current, next Phase) bool {
	switch current {
	case PhaseForming:
		return next == PhaseLocked || next == PhaseCancelled
	case PhaseLocked:
		return next == PhaseResolving || next == PhaseCancelled
	case PhaseResolving:
		return next == PhaseSettled
	default:
		return false
	}
}

// Transition is one entry of a session's phase history.
type Transition struct {
	Seq    int       `json:"seq"`
	From   Phase     `json:"from"`
	To     Phase     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

func invalidTransition(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
