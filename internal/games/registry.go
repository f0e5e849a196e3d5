package games

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fadedpez/wagerline/internal/types"
)

// Registry maps game names to their definitions
type Registry struct {
	games map[string]Definition
	mu    sync.RWMutex
}

// NewRegistry creates a new game registry
func NewRegistry() *Registry {
	return &Registry{
		games: make(map[string]Definition),
	}
}

// RegisterGame adds a game to the registry
func (r *Registry) RegisterGame(def Definition) error {
	if def.Name == "" {
		return types.NewGameError(types.ErrInvalidArgument, "game name is required")
	}
	if def.Mode == ModeRound && def.Betting <= 0 {
		return types.NewGameError(types.ErrInvalidArgument,
			fmt.Sprintf("Game %s needs a betting window", def.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.games[def.Name]; exists {
		return types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("Game %s is already registered", def.Name))
	}

	r.games[def.Name] = def
	return nil
}

// GetGame returns the definition for a given game name
func (r *Registry) GetGame(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.games[name]
	if !exists {
		return Definition{}, types.NewGameError(types.ErrGameNotFound, fmt.Sprintf("Game %s not found", name))
	}

	return def, nil
}

// ListGames returns every registered game ordered by name
func (r *Registry) ListGames() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	games := make([]Definition, 0, len(r.games))
	for _, def := range r.games {
		games = append(games, def)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Name < games[j].Name })
	return games
}

// Shared returns the games that run on the round lifecycle
func (r *Registry) Shared() []Definition {
	var shared []Definition
	for _, def := range r.ListGames() {
		if def.Shared() {
			shared = append(shared, def)
		}
	}
	return shared
}
