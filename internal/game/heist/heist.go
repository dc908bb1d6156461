// Package heist implements the crew heist lobby game.
// Everyone joins the same crew; larger crews are more likely to pull it off.
// On success every member is paid the configured odds, on failure nobody is.
package heist

import (
	"context"
	"fmt"
	"time"

	"telegram-casino-bot/internal/lobby"
)

// Stage is one step of the job. Each stage must be cleared in order.
type Stage struct {
	Name string
	// Chance is the base success chance in percent for a crew of one.
	Chance int
}

// Config configures the heist.
type Config struct {
	Stages []Stage
	// PerMemberBonus is added to every stage chance for each member beyond the first.
	PerMemberBonus int
	// MaxChance caps a stage chance in percent.
	MaxChance int
	Odds      lobby.Odds
	Lobby     lobby.Config
}

// DefaultConfig returns the stock heist.
func DefaultConfig() Config {
	return Config{
		Stages: []Stage{
			{Name: "breach", Chance: 80},
			{Name: "vault", Chance: 65},
			{Name: "escape", Chance: 75},
		},
		PerMemberBonus: 5,
		MaxChance:      95,
		Odds:           lobby.MustParseOdds("2.5"),
		Lobby: lobby.Config{
			MinParticipants: 2,
			Capacity:        8,
			FormingWindow:   90 * time.Second,
			MinStake:        50,
		},
	}
}

// Game implements game.Game for heists.
type Game struct {
	cfg Config
}

// New validates cfg and creates a Game.
func New(cfg Config) (*Game, error) {
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("heist: at least one stage is required")
	}
	if cfg.MaxChance <= 0 || cfg.MaxChance > 100 {
		return nil, fmt.Errorf("heist: max chance %d outside (0, 100]", cfg.MaxChance)
	}
	if cfg.Odds < lobby.WholeOdds(1) {
		return nil, fmt.Errorf("heist: odds %s below 1", cfg.Odds)
	}
	return &Game{cfg: cfg}, nil
}

func (g *Game) Kind() string { return "heist" }

func (g *Game) Name() string { return "Heist" }

func (g *Game) Description() string {
	return "Join the crew. Every stage must succeed; bigger crews have better odds."
}

// Selections has a single entry: everyone is on the same crew.
func (g *Game) Selections() []string { return []string{"crew"} }

func (g *Game) Defaults() lobby.Config { return g.cfg.Lobby }

// StageChance returns the success chance of stage for a crew of the given size.
func (g *Game) StageChance(stage Stage, crew int) int {
	chance := stage.Chance
	if crew > 1 {
		chance += g.cfg.PerMemberBonus * (crew - 1)
	}
	if chance > g.cfg.MaxChance {
		chance = g.cfg.MaxChance
	}
	if chance < 0 {
		chance = 0
	}
	return chance
}

// Simulate plays out each stage until one fails.
func (g *Game) Simulate(ctx context.Context, stakes []lobby.Stake, rng lobby.Random) (lobby.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return lobby.Outcome{}, err
	}

	crew := len(stakes)
	results := make([]map[string]any, 0, len(g.cfg.Stages))
	success := true
	failedAt := ""

	for _, stage := range g.cfg.Stages {
		chance := g.StageChance(stage, crew)
		roll := rng.UniformInt(1, 100)
		passed := roll <= chance
		results = append(results, map[string]any{
			"stage":  stage.Name,
			"chance": chance,
			"roll":   roll,
			"passed": passed,
		})
		if !passed {
			success = false
			failedAt = stage.Name
			break
		}
	}

	out := lobby.Outcome{
		Selection:   -1,
		Multipliers: map[int]lobby.Odds{},
		Detail: map[string]any{
			"crew":    crew,
			"stages":  results,
			"success": success,
		},
	}
	if success {
		out.Selection = 0
		out.Multipliers[0] = g.cfg.Odds
	} else {
		out.Detail["failed_at"] = failedAt
	}
	return out, nil
}
