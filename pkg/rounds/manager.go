package rounds

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/scheduler"
)

// Manager owns the rounds of every shared game and ticks them on a
// scheduler
type Manager struct {
	scheduler *scheduler.Scheduler
	interval  time.Duration
	logger    *logging.Logger

	mu     sync.RWMutex
	rounds map[entities.GameKind]*Round
}

// NewManager creates a manager ticking every interval
func NewManager(sched *scheduler.Scheduler, interval time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Manager{
		scheduler: sched,
		interval:  interval,
		logger:    logger.Component("rounds"),
		rounds:    make(map[entities.GameKind]*Round),
	}
}

// Add registers a round. Each game may have only one.
func (m *Manager) Add(r *Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rounds[r.Game()]; exists {
		return types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("round for %s already exists", r.Game()))
	}
	m.rounds[r.Game()] = r
	return nil
}

// Round returns the round of game
func (m *Manager) Round(game entities.GameKind) (*Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rounds[game]
	if !ok {
		return nil, types.NewGameError(types.ErrGameNotFound, fmt.Sprintf("%s has no shared round", game))
	}
	return r, nil
}

// Snapshots returns the current state of every round
func (m *Manager) Snapshots() []entities.RoundSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := make([]entities.RoundSnapshot, 0, len(m.rounds))
	for _, game := range entities.GameKinds {
		if r, ok := m.rounds[game]; ok {
			snaps = append(snaps, r.Snapshot())
		}
	}
	return snaps
}

// Start restores every round from the store and schedules its ticks
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for game, r := range m.rounds {
		if err := r.Restore(ctx); err != nil {
			return err
		}
		m.scheduler.AddTask("round_"+string(game), m.interval, r.Tick)
		m.logger.Info("round scheduled", "game", game, "interval", m.interval.String())
	}
	return nil
}

// Close ends every round subscription
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rounds {
		r.Close()
	}
}
