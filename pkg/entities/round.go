package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is a step of a shared game's round lifecycle
type Phase string

const (
	PhaseAcceptingBets Phase = "ACCEPTING_BETS"
	PhaseLocked        Phase = "LOCKED"
	PhaseSettling      Phase = "SETTLING"
	PhaseIdle          Phase = "IDLE_BETWEEN_ROUNDS"

	// Crash sub-phases
	PhaseFlying  Phase = "FLYING"
	PhaseCrashed Phase = "CRASHED"
)

// RoundState is the single authoritative state of a shared game. It is owned
// by the round driver and persisted on every transition.
type RoundState struct {
	Game           GameKind        `json:"game"`
	Phase          Phase           `json:"phase"`
	PeriodID       int64           `json:"period_id"`
	TimeRemaining  int             `json:"time_remaining"`
	PhaseStartedAt time.Time       `json:"phase_started_at"`
	LastOutcome    *Outcome        `json:"last_outcome,omitempty"`
	History        []Outcome       `json:"history"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	CrashPoint     decimal.Decimal `json:"crash_point"` // Pre-drawn, never published before the crash
	Pending        []*BetIntent    `json:"pending"`
}

// Snapshot returns the immutable public view of the state
func (s *RoundState) Snapshot() RoundSnapshot {
	snap := RoundSnapshot{
		Game:          s.Game,
		Phase:         s.Phase,
		PeriodID:      s.PeriodID,
		TimeRemaining: s.TimeRemaining,
		Multiplier:    s.Multiplier,
		History:       make([]Outcome, len(s.History)),
	}
	for i, o := range s.History {
		snap.History[i] = o.Clone()
	}
	if s.LastOutcome != nil {
		last := s.LastOutcome.Clone()
		snap.LastOutcome = &last
	}
	return snap
}

// RoundSnapshot is what the presentation layer receives on every tick
type RoundSnapshot struct {
	Game          GameKind        `json:"game"`
	Phase         Phase           `json:"phase"`
	PeriodID      int64           `json:"period_id"`
	TimeRemaining int             `json:"time_remaining"`
	LastOutcome   *Outcome        `json:"last_outcome,omitempty"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	History       []Outcome       `json:"history"`
}

// RoundRecord summarises one settled period for the audit index
type RoundRecord struct {
	Game      GameKind  `json:"game"`
	PeriodID  int64     `json:"period_id"`
	Outcome   Outcome   `json:"outcome"`
	Bets      int       `json:"bets"`
	Winners   int       `json:"winners"`
	Biased    int       `json:"biased"`
	SettledAt time.Time `json:"settled_at"`
}
