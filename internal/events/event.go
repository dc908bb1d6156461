// Package events fans lobby notifications out to Kafka and Redis.
package events

import (
	"time"

	"telegram-casino-bot/internal/lobby"
)

// Event types.
const (
	TypePhaseChange       = "phase_change"
	TypeParticipantJoined = "participant_joined"
)

// Event is the wire shape shared by every sink.
type Event struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	ScopeKey  string            `json:"scope_key"`
	Previous  lobby.Phase       `json:"previous,omitempty"`
	Next      lobby.Phase       `json:"next,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Stake     *lobby.Stake      `json:"stake,omitempty"`
	At        time.Time         `json:"at"`
	View      lobby.SessionView `json:"view"`
}

// PhaseEvent wraps a phase change.
func PhaseEvent(change lobby.PhaseChange) Event {
	return Event{
		Type:      TypePhaseChange,
		SessionID: change.SessionID,
		ScopeKey:  change.ScopeKey,
		Previous:  change.Previous,
		Next:      change.Next,
		Reason:    change.Reason,
		At:        change.At,
		View:      change.View,
	}
}

// JoinEvent wraps a committed stake.
func JoinEvent(view lobby.SessionView, stake lobby.Stake) Event {
	return Event{
		Type:      TypeParticipantJoined,
		SessionID: view.ID,
		ScopeKey:  view.ScopeKey,
		Stake:     &stake,
		At:        stake.At,
		View:      view,
	}
}
