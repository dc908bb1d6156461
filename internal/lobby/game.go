package lobby

import "context"

// Random is the randomness a simulator may draw on.
type Random interface {
	UniformInt(min, max int) int
	WeightedChoice(weights []int) int
}

// Simulator resolves a locked session into an outcome.
// It must not mutate stakes.
type Simulator interface {
	Simulate(ctx context.Context, stakes []Stake, rng Random) (Outcome, error)
}

// SimulatorFunc adapts a function to Simulator.
type SimulatorFunc func(ctx context.Context, stakes []Stake, rng Random) (Outcome, error)

// Simulate implements Simulator.
func (f SimulatorFunc) Simulate(ctx context.Context, stakes []Stake, rng Random) (Outcome, error) {
	return f(ctx, stakes, rng)
}

// Games resolves a game kind to its simulator and default session config.
type Games interface {
	Lookup(kind string) (Simulator, Config, bool)
}
