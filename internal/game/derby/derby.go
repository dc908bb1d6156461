// Package derby implements the horse race lobby game.
// Each participant backs one horse; the winner pays its fixed odds.
package derby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-casino-bot/internal/lobby"
)

const (
	// DefaultTrackLength is the number of cells from the gate to the line.
	DefaultTrackLength = 20
	// DefaultMaxTicks bounds the race length.
	DefaultMaxTicks = 100

	// Movement chance per tick in permille: base + boost/odds, floored.
	baseChancePermille  = 100
	boostChancePermille = 500
	minChancePermille   = 350
	maxBonusStep        = 2
)

// Odds bounds accepted for a horse.
var (
	MinOdds = lobby.WholeOdds(2)
	MaxOdds = lobby.WholeOdds(25)
)

// ErrNoHorses is returned when a race is configured without runners.
var ErrNoHorses = errors.New("derby: at least two horses are required")

// Horse is a runner with fixed gross odds.
type Horse struct {
	Name string
	Odds lobby.Odds
}

// Config configures the race.
type Config struct {
	Horses      []Horse
	TrackLength int
	MaxTicks    int
	Lobby       lobby.Config
}

// Game implements game.Game for horse racing.
type Game struct {
	cfg    Config
	labels []string
}

// New validates cfg and creates a Game.
func New(cfg Config) (*Game, error) {
	if len(cfg.Horses) < 2 {
		return nil, ErrNoHorses
	}
	if cfg.TrackLength < 2 {
		cfg.TrackLength = DefaultTrackLength
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = DefaultMaxTicks
	}

	labels := make([]string, len(cfg.Horses))
	for i, h := range cfg.Horses {
		if h.Odds < MinOdds || h.Odds > MaxOdds {
			return nil, fmt.Errorf("derby: horse %q odds %s outside [%s, %s]", h.Name, h.Odds, MinOdds, MaxOdds)
		}
		labels[i] = h.Name
	}
	return &Game{cfg: cfg, labels: labels}, nil
}

// DefaultHorses returns the stock field.
func DefaultHorses() []Horse {
	return []Horse{
		{Name: "Thunder", Odds: lobby.MustParseOdds("2.5")},
		{Name: "Comet", Odds: lobby.MustParseOdds("3")},
		{Name: "Blaze", Odds: lobby.MustParseOdds("4.5")},
		{Name: "Shadow", Odds: lobby.MustParseOdds("6")},
		{Name: "Lucky", Odds: lobby.MustParseOdds("10")},
	}
}

// DefaultLobby returns the default session rules for a race.
func DefaultLobby() lobby.Config {
	return lobby.Config{
		MinParticipants: 2,
		Capacity:        10,
		FormingWindow:   60 * time.Second,
		MinStake:        10,
	}
}

func (g *Game) Kind() string { return "derby" }

func (g *Game) Name() string { return "Derby" }

func (g *Game) Description() string {
	return "Back a horse. Whoever crosses the line first pays its odds."
}

func (g *Game) Selections() []string { return g.labels }

func (g *Game) Defaults() lobby.Config { return g.cfg.Lobby }

// Horses returns the configured field.
func (g *Game) Horses() []Horse { return g.cfg.Horses }

// moveChance returns the per-tick movement chance in permille.
func moveChance(odds lobby.Odds) int {
	p := baseChancePermille + int(boostChancePermille*int64(lobby.OddsScale)/int64(odds))
	if p < minChancePermille {
		p = minChancePermille
	}
	return p
}

// impliedPermille is the win probability the odds imply, in permille.
func impliedPermille(odds lobby.Odds) int {
	return int(1000 * int64(lobby.OddsScale) / int64(odds))
}

// pick draws one of candidates, favouring shorter odds.
func (g *Game) pick(rng lobby.Random, candidates []int) int {
	if len(candidates) == 1 {
		return candidates[0]
	}
	weights := make([]int, len(candidates))
	for i, c := range candidates {
		weights[i] = impliedPermille(g.cfg.Horses[c].Odds)
	}
	i := rng.WeightedChoice(weights)
	if i < 0 || i >= len(candidates) {
		i = 0
	}
	return candidates[i]
}

// Simulate runs the race. Stakes do not influence the result.
// Horses crossing on the same tick, or sharing the lead when the tick limit
// is hit, are separated by an odds-weighted draw.
func (g *Game) Simulate(ctx context.Context, _ []lobby.Stake, rng lobby.Random) (lobby.Outcome, error) {
	n := len(g.cfg.Horses)
	finish := g.cfg.TrackLength - 1
	positions := make([]int, n)
	field := make([]int, n)
	for i := range field {
		field[i] = i
	}
	winner := -1
	ticks := 0

	for ticks < g.cfg.MaxTicks && winner < 0 {
		if err := ctx.Err(); err != nil {
			return lobby.Outcome{}, err
		}
		ticks++

		moved := false
		for i, h := range g.cfg.Horses {
			if rng.UniformInt(1, 1000) > moveChance(h.Odds) {
				continue
			}
			positions[i] += 1 + rng.UniformInt(0, maxBonusStep)
			moved = true
		}
		if !moved {
			positions[g.pick(rng, field)]++
		}

		var crossed []int
		for i, p := range positions {
			if p >= finish {
				positions[i] = finish
				crossed = append(crossed, i)
			}
		}
		if len(crossed) > 0 {
			winner = g.pick(rng, crossed)
		}
	}

	if winner < 0 {
		lead := 0
		for _, p := range positions {
			if p > lead {
				lead = p
			}
		}
		var leaders []int
		for i, p := range positions {
			if p == lead {
				leaders = append(leaders, i)
			}
		}
		winner = g.pick(rng, leaders)
	}

	return lobby.Outcome{
		Selection:   winner,
		Multipliers: map[int]lobby.Odds{winner: g.cfg.Horses[winner].Odds},
		Detail: map[string]any{
			"winner":    g.cfg.Horses[winner].Name,
			"positions": positions,
			"ticks":     ticks,
		},
	}, nil
}
