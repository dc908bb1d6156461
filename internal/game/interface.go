// Package game defines the lobby game interface and registry.
// Adding a new game only requires implementing Game and registering it.
package game

import (
	"strconv"
	"strings"

	"telegram-casino-bot/internal/lobby"
)

// Game is a multiplayer game that a lobby session can resolve.
type Game interface {
	lobby.Simulator

	// Kind returns the command that opens a lobby for this game (e.g., "derby").
	Kind() string

	// Name returns the game's display name.
	Name() string

	// Description returns a brief description of the game.
	Description() string

	// Selections returns the label of each valid selection, indexed by
	// selection value.
	Selections() []string

	// Defaults returns the session rules used when the host overrides nothing.
	Defaults() lobby.Config
}

// ParseSelection resolves user input to a selection index.
// Labels match case-insensitively; otherwise a 1-based number is accepted.
// Returns lobby.ErrInvalidSelection when nothing matches.
func ParseSelection(g Game, input string) (int, error) {
	input = strings.TrimSpace(input)
	labels := g.Selections()

	for i, label := range labels {
		if strings.EqualFold(label, input) {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(labels) {
		return n - 1, nil
	}
	return 0, lobby.ErrInvalidSelection
}
