package sicbo

import (
	"context"
	"strconv"
	"time"

	"telegram-casino-bot/internal/lobby"
)

// Selection indexes. 0-5 back the single numbers 1-6.
const (
	SelectionBig   = 6
	SelectionSmall = 7
)

var selectionLabels = []string{"1", "2", "3", "4", "5", "6", "big", "small"}

// Game implements game.Game for Sic Bo.
type Game struct {
	lobbyCfg lobby.Config
}

// New creates a Sic Bo game with the given session rules.
func New(cfg lobby.Config) *Game {
	return &Game{lobbyCfg: cfg}
}

// DefaultLobby returns the default session rules.
func DefaultLobby() lobby.Config {
	return lobby.Config{
		MinParticipants: 1,
		Capacity:        20,
		FormingWindow:   60 * time.Second,
		MinStake:        1,
	}
}

func (g *Game) Kind() string { return "sicbo" }

func (g *Game) Name() string { return "Sic Bo" }

func (g *Game) Description() string {
	return "Three dice. Back a number (1-6), big or small. Triples lose big/small."
}

func (g *Game) Selections() []string { return selectionLabels }

func (g *Game) Defaults() lobby.Config { return g.lobbyCfg }

// SelectionBet maps a selection index to its bet type and number.
func SelectionBet(selection int) (BetType, int, bool) {
	switch {
	case selection >= 0 && selection < 6:
		return BetTypeSingle, selection + 1, true
	case selection == SelectionBig:
		return BetTypeBig, 0, true
	case selection == SelectionSmall:
		return BetTypeSmall, 0, true
	default:
		return "", 0, false
	}
}

// SelectionLabel returns the display label of a selection.
func SelectionLabel(selection int) string {
	if selection >= 0 && selection < len(selectionLabels) {
		return selectionLabels[selection]
	}
	return strconv.Itoa(selection)
}

// Simulate rolls three dice.
func (g *Game) Simulate(ctx context.Context, _ []lobby.Stake, rng lobby.Random) (lobby.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return lobby.Outcome{}, err
	}

	var dice [3]int
	for i := range dice {
		dice[i] = rng.UniformInt(1, 6)
	}

	total := Total(dice)
	selection := SelectionSmall
	if total >= 11 {
		selection = SelectionBig
	}
	if IsTriple(dice) {
		selection = dice[0] - 1
	}

	return lobby.Outcome{
		Selection:   selection,
		Multipliers: Multipliers(dice),
		Detail: map[string]any{
			"dice":   dice,
			"total":  total,
			"triple": IsTriple(dice),
		},
	}, nil
}
