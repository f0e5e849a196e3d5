// Package rounds drives the shared games. Each Round owns the single
// authoritative state of one game, advances it on every tick and publishes
// an immutable snapshot once the new state is safely stored.
package rounds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/metrics"
	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/bias"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/outcome"
	"github.com/fadedpez/wagerline/pkg/payout"
	"github.com/fadedpez/wagerline/pkg/storage"
)

const (
	DefaultHistorySize     = 20
	DefaultPersistAttempts = 3
	DefaultPersistBackoff  = 50 * time.Millisecond
)

var one = decimal.NewFromInt(1)

// Config holds the timings of one shared game
type Config struct {
	Game        entities.GameKind
	Betting     time.Duration
	RevealDelay time.Duration
	HistorySize int

	// Store writes per tick before the tick is held back
	PersistAttempts int
	PersistBackoff  time.Duration
}

// Deps are the collaborators a Round settles through
type Deps struct {
	Store     storage.Store
	Settler   Settler
	Generator *outcome.Generator
	Policy    *bias.Policy
	Table     *payout.Table
	Logger    *logging.Logger
	Now       func() time.Time

	// Recorder is optional
	Recorder Recorder
}

// Recorder receives the summary of every settled period
type Recorder interface {
	IndexRound(ctx context.Context, record *entities.RoundRecord) error
}

// Round is the state machine of one shared game
type Round struct {
	cfg       Config
	store     storage.Store
	settler   Settler
	generator *outcome.Generator
	policy    *bias.Policy
	table     *payout.Table
	recorder  Recorder
	hub       *Hub
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.Mutex
	state *entities.RoundState
}

// credit is a winning payout to apply once the state that produced it is
// stored
type credit struct {
	intent      *entities.BetIntent
	amount      decimal.Decimal
	description string
	biased      bool
}

// NewRound creates a round in ACCEPTING_BETS for period 1. Call Restore to
// resume from a stored state.
func NewRound(cfg Config, deps Deps) *Round {
	if cfg.HistorySize < 1 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.PersistAttempts < 1 {
		cfg.PersistAttempts = DefaultPersistAttempts
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = DefaultPersistBackoff
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &Round{
		cfg:       cfg,
		store:     deps.Store,
		settler:   deps.Settler,
		generator: deps.Generator,
		policy:    deps.Policy,
		table:     deps.Table,
		recorder:  deps.Recorder,
		hub:       NewHub(cfg.Game),
		logger:    deps.Logger.Component("round").With("game", cfg.Game),
		now:       deps.Now,
	}
	r.state = &entities.RoundState{Game: cfg.Game, History: []entities.Outcome{}}
	r.open(r.state, r.now())
	r.state.PeriodID = 1
	return r
}

// StatePath is the store path of a game's round state
func StatePath(game entities.GameKind) string {
	return storage.Join("rounds", string(game))
}

// FlightMultiplier is the crash curve 1 + 0.1t + 0.05t² for t seconds of
// flight, truncated to two decimals
func FlightMultiplier(elapsed time.Duration) decimal.Decimal {
	if elapsed < 0 {
		elapsed = 0
	}
	t := decimal.NewFromFloat(elapsed.Seconds())
	m := one.
		Add(t.Mul(decimal.RequireFromString("0.1"))).
		Add(t.Mul(t).Mul(decimal.RequireFromString("0.05")))
	return m.Truncate(2)
}

// Game returns the game this round drives
func (r *Round) Game() entities.GameKind {
	return r.cfg.Game
}

// Snapshot returns the current public state
func (r *Round) Snapshot() entities.RoundSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

// Subscribe streams snapshots, starting with the current one, until ctx
// ends or the round is closed
func (r *Round) Subscribe(ctx context.Context) <-chan entities.RoundSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hub.Subscribe(ctx, r.state.Snapshot())
}

// Close ends every subscription
func (r *Round) Close() {
	r.hub.Close()
}

// Restore loads the stored state of this game, if any, so that a restart
// resumes the same period with its pending bets
func (r *Round) Restore(ctx context.Context) error {
	const op = "rounds.Restore"

	raw, err := r.store.Get(ctx, StatePath(r.cfg.Game))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var state entities.RoundState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("%s: decoding state: %w", op, err)
	}
	if state.Game != r.cfg.Game {
		return fmt.Errorf("%s: stored state belongs to %q", op, state.Game)
	}
	if state.History == nil {
		state.History = []entities.Outcome{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = &state
	r.logger.Info("restored round",
		"period_id", state.PeriodID,
		"phase", state.Phase,
		"pending", len(state.Pending),
	)
	return nil
}

// Tick advances the round by one step. The new state is stored before any
// payout is credited, metric counted or snapshot published; if it cannot be
// stored the round stays where it was and the step is repeated on the next
// tick.
func (r *Round) Tick(ctx context.Context) error {
	const op = "rounds.Tick"

	r.mu.Lock()
	defer r.mu.Unlock()

	next := cloneState(r.state)
	st := r.advance(ctx, next)

	if err := r.persist(ctx, next); err != nil {
		metrics.RoundPersistFailures.WithLabelValues(string(r.cfg.Game)).Inc()
		r.logger.Warn("tick held back",
			logging.Op(op),
			logging.Err(err),
			"period_id", r.state.PeriodID,
			"phase", r.state.Phase,
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	r.state = next
	r.report(st)
	r.pay(ctx, st.credits)
	r.hub.Publish(next.Snapshot())
	r.record(ctx, st.record)
	return nil
}

// step is what one transition produced. None of it takes effect until the
// transition has been stored.
type step struct {
	credits []credit
	record  *entities.RoundRecord
	wins    int
	losses  int
	biased  int
}

// resolved counts one decided bet and keeps its payout if it won
func (st *step) resolved(c credit, won bool) {
	if c.biased {
		st.biased++
	}
	if !won {
		st.losses++
		return
	}
	st.wins++
	st.credits = append(st.credits, c)
}

// report adds a stored step to the round metrics
func (r *Round) report(st *step) {
	game := string(r.cfg.Game)
	if st.record != nil {
		metrics.RoundsCompleted.WithLabelValues(game).Inc()
	}
	if st.wins > 0 {
		metrics.BetsSettled.WithLabelValues(game, "win").Add(float64(st.wins))
	}
	if st.losses > 0 {
		metrics.BetsSettled.WithLabelValues(game, "loss").Add(float64(st.losses))
	}
	if st.biased > 0 {
		metrics.BiasApplied.WithLabelValues(game).Add(float64(st.biased))
	}
}

// advance applies one transition to s. Discrete games settle on the tick
// that closes intake; crash games hold in LOCKED for one tick before flight.
func (r *Round) advance(ctx context.Context, s *entities.RoundState) *step {
	now := r.now()
	st := &step{}

	switch s.Phase {
	case entities.PhaseAcceptingBets:
		if s.TimeRemaining > 0 {
			s.TimeRemaining--
		}
		if s.TimeRemaining > 0 {
			break
		}
		if r.cfg.Game.IsCrash() {
			enter(s, entities.PhaseLocked, now)
			break
		}
		enter(s, entities.PhaseSettling, now)
		r.settle(ctx, s, r.generator.Generate(r.cfg.Game, outcome.Params{}), st)

	case entities.PhaseLocked:
		// Discrete games only rest here when restored from an older state
		if !r.cfg.Game.IsCrash() {
			enter(s, entities.PhaseSettling, now)
			r.settle(ctx, s, r.generator.Generate(r.cfg.Game, outcome.Params{}), st)
			break
		}
		enter(s, entities.PhaseFlying, now)
		s.CrashPoint = r.generator.Crash()
		s.Multiplier = one

	case entities.PhaseFlying:
		m := FlightMultiplier(now.Sub(s.PhaseStartedAt))
		if m.GreaterThanOrEqual(s.CrashPoint) {
			enter(s, entities.PhaseCrashed, now)
			s.Multiplier = s.CrashPoint
			r.settle(ctx, s, entities.Outcome{Game: r.cfg.Game, Crash: s.CrashPoint}, st)
			break
		}
		s.Multiplier = m
		r.autoCashout(ctx, s, m, st)

	case entities.PhaseSettling, entities.PhaseCrashed:
		enter(s, entities.PhaseIdle, now)
		s.TimeRemaining = seconds(r.cfg.RevealDelay)
		if s.TimeRemaining == 0 {
			r.open(s, now)
			s.PeriodID++
		}

	case entities.PhaseIdle:
		if s.TimeRemaining > 0 {
			s.TimeRemaining--
		}
		if s.TimeRemaining == 0 {
			r.open(s, now)
			s.PeriodID++
		}
	}
	return st
}

// open starts accepting bets. The caller moves PeriodID.
func (r *Round) open(s *entities.RoundState, now time.Time) {
	enter(s, entities.PhaseAcceptingBets, now)
	s.TimeRemaining = seconds(r.cfg.Betting)
	s.Pending = nil
	s.CrashPoint = decimal.Zero
	s.Multiplier = decimal.Zero
	if r.cfg.Game.IsCrash() {
		s.Multiplier = one
	}
}

// settle records drawn as the period's result and resolves every pending
// bet against it into st
func (r *Round) settle(ctx context.Context, s *entities.RoundState, drawn entities.Outcome, st *step) {
	last := drawn.Clone()
	s.LastOutcome = &last
	s.History = append(s.History, drawn.Clone())
	if over := len(s.History) - r.cfg.HistorySize; over > 0 {
		s.History = append([]entities.Outcome(nil), s.History[over:]...)
	}

	winners, biased := st.wins, st.biased
	for _, intent := range s.Pending {
		st.resolved(r.resolve(ctx, intent, drawn))
	}
	st.record = &entities.RoundRecord{
		Game:      r.cfg.Game,
		PeriodID:  s.PeriodID,
		Outcome:   drawn.Clone(),
		Bets:      len(s.Pending),
		Winners:   st.wins - winners,
		Biased:    st.biased - biased,
		SettledAt: r.now(),
	}

	r.logger.Info("round settled",
		"period_id", s.PeriodID,
		"outcome", drawn.String(),
		"bets", len(s.Pending),
		"winners", st.record.Winners,
	)
	s.Pending = nil
}

// autoCashout settles every bet whose cash-out target the curve has reached
func (r *Round) autoCashout(ctx context.Context, s *entities.RoundState, m decimal.Decimal, st *step) {
	var remaining []*entities.BetIntent
	for _, intent := range s.Pending {
		target := intent.Target.Multiplier
		if !target.IsPositive() || target.GreaterThan(m) {
			remaining = append(remaining, intent)
			continue
		}
		st.resolved(r.resolve(ctx, intent, entities.Outcome{Game: r.cfg.Game, Crash: m}))
	}
	s.Pending = remaining
}

// resolve decides one bet against drawn, steering the draw away from it
// when the bias policy says so
func (r *Round) resolve(ctx context.Context, intent *entities.BetIntent, drawn entities.Outcome) (credit, bool) {
	game := r.cfg.Game

	// A crash bet without a target only wins by cashing out in flight
	if game.IsCrash() && !intent.Target.Multiplier.IsPositive() {
		return credit{}, false
	}

	o := drawn
	biased := false
	if r.table.Pays(game, intent.Target, o) && r.shouldBias(ctx, intent) {
		o = bias.Remap(r.table, game, intent.Target, o)
		biased = true
	}

	m := r.table.Payout(game, intent.Target, o)
	if !m.IsPositive() {
		return credit{biased: biased}, false
	}
	return credit{
		intent:      intent,
		amount:      intent.Stake.Mul(m),
		description: fmt.Sprintf("%s period %d win %s", game, intent.PeriodID, intent.Target),
		biased:      biased,
	}, true
}

// shouldBias draws the bias decision against the balance the account had
// when the stake was placed
func (r *Round) shouldBias(ctx context.Context, intent *entities.BetIntent) bool {
	if !r.policy.Enabled() {
		return false
	}
	acct, err := r.settler.Account(ctx, intent.AccountID)
	if err != nil {
		r.logger.Warn("bias skipped, account unavailable",
			logging.Err(err),
			"account_id", intent.AccountID,
			"intent_id", intent.ID,
		)
		return false
	}
	return r.policy.ShouldBias(intent.Stake, acct.Balance.Add(intent.Stake), acct.Wager())
}

// record hands the settled period to the audit index, best effort
func (r *Round) record(ctx context.Context, record *entities.RoundRecord) {
	if record == nil || r.recorder == nil {
		return
	}
	if err := r.recorder.IndexRound(ctx, record); err != nil {
		r.logger.Warn("round record not indexed", logging.Err(err), "period_id", record.PeriodID)
	}
}

// pay credits winners. The ledger retries on its own; a credit that still
// fails is logged for reconciliation.
func (r *Round) pay(ctx context.Context, credits []credit) {
	for _, c := range credits {
		_, err := r.settler.ApplyRef(ctx, c.intent.AccountID, c.amount, entities.EntryKindWin, c.description, c.intent.ID)
		if err != nil {
			r.logger.Error("round payout failed",
				logging.Err(err),
				"intent_id", c.intent.ID,
				"account_id", c.intent.AccountID,
				"amount", c.amount.String(),
			)
		}
	}
}

// Submit debits the stake and queues the bet for the current period. Bets
// arriving after intake has closed are rejected, never queued. The intent
// is updated with its id, period and placement time.
func (r *Round) Submit(ctx context.Context, intent *entities.BetIntent) (*entities.LedgerEntry, error) {
	const op = "rounds.Submit"

	if err := r.validate(intent); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase != entities.PhaseAcceptingBets || r.state.TimeRemaining <= 0 {
		return nil, types.NewGameError(types.ErrRoundClosedForBetting,
			fmt.Sprintf("%s period %d is closed for betting", r.cfg.Game, r.state.PeriodID))
	}

	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	intent.Game = r.cfg.Game
	intent.PeriodID = r.state.PeriodID
	intent.PlacedAt = r.now()

	entry, err := r.settler.ApplyRef(ctx, intent.AccountID, intent.Stake.Neg(), entities.EntryKindBet,
		fmt.Sprintf("%s period %d bet %s", r.cfg.Game, intent.PeriodID, intent.Target), intent.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	queued := *intent
	next := cloneState(r.state)
	next.Pending = append(next.Pending, &queued)
	if err := r.persist(ctx, next); err != nil {
		r.refund(ctx, &queued)
		return nil, types.WrapError(types.ErrStoreUnavailable, "bet could not be queued", err)
	}
	r.state = next

	r.logger.Debug("bet queued",
		"intent_id", intent.ID,
		"account_id", intent.AccountID,
		"period_id", intent.PeriodID,
		"stake", intent.Stake.String(),
	)
	return entry, nil
}

// Cancel withdraws a queued bet while its period still accepts bets and
// refunds the stake
func (r *Round) Cancel(ctx context.Context, accountID, intentID string) (*entities.LedgerEntry, error) {
	const op = "rounds.Cancel"

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.find(accountID, intentID)
	if idx < 0 {
		return nil, types.NewGameError(types.ErrBetNotFound, fmt.Sprintf("no open bet %s", intentID))
	}
	intent := r.state.Pending[idx]
	if r.state.Phase != entities.PhaseAcceptingBets || intent.PeriodID != r.state.PeriodID {
		return nil, types.NewGameError(types.ErrRoundClosedForBetting, "bets can only be cancelled while the round is open")
	}

	next := cloneState(r.state)
	next.Pending = removeAt(next.Pending, idx)
	if err := r.persist(ctx, next); err != nil {
		return nil, types.WrapError(types.ErrStoreUnavailable, "bet could not be cancelled", err)
	}
	r.state = next

	entry, err := r.settler.ApplyRef(ctx, accountID, intent.Stake, entities.EntryKindWin, entities.CancelDescription, intent.ID)
	if err != nil {
		r.logger.Error("cancel refund failed",
			logging.Op(op),
			logging.Err(err),
			"intent_id", intent.ID,
			"account_id", accountID,
			"amount", intent.Stake.String(),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entry, nil
}

// CashOut settles a bet during flight at the current multiplier
func (r *Round) CashOut(ctx context.Context, accountID, intentID string) (*entities.BetResult, error) {
	const op = "rounds.CashOut"

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cfg.Game.IsCrash() {
		return nil, types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("%s has no cash-out", r.cfg.Game))
	}
	idx := r.find(accountID, intentID)
	if idx < 0 {
		return nil, types.NewGameError(types.ErrBetNotFound, fmt.Sprintf("no open bet %s", intentID))
	}
	if r.state.Phase != entities.PhaseFlying {
		return nil, types.NewGameError(types.ErrRoundClosedForBetting, "cash-out is only possible in flight")
	}
	m := FlightMultiplier(r.now().Sub(r.state.PhaseStartedAt))
	if m.GreaterThanOrEqual(r.state.CrashPoint) {
		return nil, types.NewGameError(types.ErrRoundClosedForBetting, "round has crashed")
	}

	intent := r.state.Pending[idx]
	next := cloneState(r.state)
	next.Pending = removeAt(next.Pending, idx)
	if err := r.persist(ctx, next); err != nil {
		return nil, types.WrapError(types.ErrStoreUnavailable, "cash-out could not be recorded", err)
	}
	r.state = next

	won := intent.Stake.Mul(m)
	entry, err := r.settler.ApplyRef(ctx, accountID, won, entities.EntryKindWin,
		fmt.Sprintf("%s period %d cash-out %sx", r.cfg.Game, intent.PeriodID, m.StringFixed(2)), intent.ID)
	if err != nil {
		r.logger.Error("cash-out credit failed",
			logging.Op(op),
			logging.Err(err),
			"intent_id", intent.ID,
			"account_id", accountID,
			"amount", won.String(),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.BetsSettled.WithLabelValues(string(r.cfg.Game), "win").Inc()

	return &entities.BetResult{
		IntentID:     intent.ID,
		AccountID:    accountID,
		Game:         r.cfg.Game,
		Won:          true,
		Multiplier:   m,
		PayoutAmount: won,
		Outcome:      entities.Outcome{Game: r.cfg.Game, Crash: m},
		PeriodID:     intent.PeriodID,
		Entries:      []*entities.LedgerEntry{entry},
	}, nil
}

// Pending returns copies of the bets queued by accountID
func (r *Round) Pending(accountID string) []entities.BetIntent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []entities.BetIntent
	for _, intent := range r.state.Pending {
		if intent.AccountID == accountID {
			out = append(out, *intent)
		}
	}
	return out
}

func (r *Round) validate(intent *entities.BetIntent) error {
	if intent == nil || intent.AccountID == "" {
		return types.NewGameError(types.ErrInvalidArgument, "account id is required")
	}
	if !intent.Stake.IsPositive() {
		return types.NewGameError(types.ErrInvalidArgument, "stake must be positive")
	}
	if intent.Game != "" && intent.Game != r.cfg.Game {
		return types.NewGameError(types.ErrInvalidArgument,
			fmt.Sprintf("bet for %s sent to the %s round", intent.Game, r.cfg.Game))
	}
	// Crash bets may omit the auto cash-out target and cash out by hand
	if r.cfg.Game.IsCrash() && intent.Target.Kind == entities.TargetCashout && intent.Target.Multiplier.IsZero() {
		return nil
	}
	return r.table.ValidateTarget(r.cfg.Game, intent.Target)
}

// refund returns the stake of a bet that could not be queued
func (r *Round) refund(ctx context.Context, intent *entities.BetIntent) {
	if _, err := r.settler.ApplyRef(ctx, intent.AccountID, intent.Stake, entities.EntryKindWin, entities.CancelDescription, intent.ID); err != nil {
		r.logger.Error("refund failed",
			logging.Err(err),
			"intent_id", intent.ID,
			"account_id", intent.AccountID,
			"amount", intent.Stake.String(),
		)
	}
}

// find must be called with mu held
func (r *Round) find(accountID, intentID string) int {
	for i, intent := range r.state.Pending {
		if intent.ID == intentID && intent.AccountID == accountID {
			return i
		}
	}
	return -1
}

// persist stores s, retrying transient store failures a bounded number of
// times
func (r *Round) persist(ctx context.Context, s *entities.RoundState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.cfg.PersistBackoff
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(r.cfg.PersistAttempts-1)), ctx)

	return backoff.Retry(func() error {
		_, err := r.store.Transact(ctx, StatePath(r.cfg.Game), func([]byte) ([]byte, error) {
			return raw, nil
		})
		if err == nil || storage.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func enter(s *entities.RoundState, phase entities.Phase, now time.Time) {
	s.Phase = phase
	s.PhaseStartedAt = now
}

// cloneState copies everything a transition may change. Intents are never
// mutated once queued, so they are shared.
func cloneState(s *entities.RoundState) *entities.RoundState {
	c := *s
	c.History = append([]entities.Outcome{}, s.History...)
	c.Pending = append([]*entities.BetIntent(nil), s.Pending...)
	if s.LastOutcome != nil {
		last := s.LastOutcome.Clone()
		c.LastOutcome = &last
	}
	return &c
}

func removeAt(intents []*entities.BetIntent, i int) []*entities.BetIntent {
	out := make([]*entities.BetIntent, 0, len(intents)-1)
	out = append(out, intents[:i]...)
	return append(out, intents[i+1:]...)
}

// seconds rounds d up to whole seconds
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
