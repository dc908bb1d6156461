package lobby

import (
	"context"
	"time"
)

// PhaseChange describes one phase transition. Previous is empty for the
// creation event.
type PhaseChange struct {
	SessionID string      `json:"session_id"`
	ScopeKey  string      `json:"scope_key"`
	Previous  Phase       `json:"previous"`
	Next      Phase       `json:"next"`
	Reason    string      `json:"reason"`
	At        time.Time   `json:"at"`
	View      SessionView `json:"view"`
}

// PhaseListener is notified after each transition, outside the session lock.
type PhaseListener interface {
	OnPhaseChange(ctx context.Context, change PhaseChange)
}

// PhaseListenerFunc adapts a function to PhaseListener.
type PhaseListenerFunc func(ctx context.Context, change PhaseChange)

// OnPhaseChange implements PhaseListener.
func (f PhaseListenerFunc) OnPhaseChange(ctx context.Context, change PhaseChange) {
	f(ctx, change)
}

// ParticipantListener is notified after a stake is committed.
// Phase listeners that also implement it are registered for both.
type ParticipantListener interface {
	OnParticipantJoined(ctx context.Context, view SessionView, stake Stake)
}

type joinEvent struct {
	view  SessionView
	stake Stake
}

// batch collects notifications raised while a session lock is held.
type batch struct {
	changes []PhaseChange
	joins   []joinEvent
}
