package game

import (
	"fmt"
	"sort"
	"sync"

	"telegram-casino-bot/internal/lobby"
)

// Registry manages game registration and lookup.
// It implements lobby.Games.
type Registry struct {
	games map[string]Game
	mu    sync.RWMutex
}

// NewRegistry creates a new game registry.
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]Game),
	}
}

// Register adds a game to the registry.
// If a game with the same kind already exists, it will be replaced.
func (r *Registry) Register(g Game) error {
	if g == nil {
		return fmt.Errorf("cannot register nil game")
	}
	if g.Kind() == "" {
		return fmt.Errorf("game kind cannot be empty")
	}
	if len(g.Selections()) == 0 {
		return fmt.Errorf("game %s has no selections", g.Kind())
	}

	cfg := g.Defaults()
	cfg.Kind = g.Kind()
	cfg.Selections = len(g.Selections())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("game %s: %w", g.Kind(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[g.Kind()] = g
	return nil
}

// Get retrieves a game by its kind.
func (r *Registry) Get(kind string) (Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[kind]
	return g, ok
}

// Lookup implements lobby.Games.
func (r *Registry) Lookup(kind string) (lobby.Simulator, lobby.Config, bool) {
	g, ok := r.Get(kind)
	if !ok {
		return nil, lobby.Config{}, false
	}
	cfg := g.Defaults()
	cfg.Kind = kind
	cfg.Selections = len(g.Selections())
	return g, cfg, true
}

// List returns all registered games sorted by kind.
func (r *Registry) List() []Game {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Game, 0, len(r.games))
	for _, g := range r.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Kind() < games[j].Kind() })
	return games
}

// Kinds returns all registered game kinds, sorted.
func (r *Registry) Kinds() []string {
	games := r.List()
	kinds := make([]string, 0, len(games))
	for _, g := range games {
		kinds = append(kinds, g.Kind())
	}
	return kinds
}

// Count returns the number of registered games.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// Unregister removes a game from the registry by its kind.
// Returns true if the game was found and removed, false otherwise.
func (r *Registry) Unregister(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.games[kind]; ok {
		delete(r.games, kind)
		return true
	}
	return false
}
