// Package ledger owns every mutation of an account's balance and rollover
// state. Each apply is a single compare-and-swap of the account record,
// retried with backoff when another writer wins the race, followed by an
// append of exactly one log entry.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/metrics"
	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/storage"
)

// AuditSink receives a copy of every committed entry
type AuditSink interface {
	IndexEntry(ctx context.Context, entry *entities.LedgerEntry) error
}

// Config tunes the engine
type Config struct {
	RolloverMultiplier decimal.Decimal
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	BalanceCacheTTL    time.Duration
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		RolloverMultiplier: decimal.NewFromInt(5),
		MaxAttempts:        5,
		InitialBackoff:     10 * time.Millisecond,
		MaxBackoff:         400 * time.Millisecond,
		BalanceCacheTTL:    5 * time.Second,
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l.Component("ledger") }
}

// WithAuditSink mirrors committed entries to sink
func WithAuditSink(sink AuditSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine applies balance deltas
type Engine struct {
	store    storage.Store
	cfg      Config
	balances *cache.Cache
	sink     AuditSink
	logger   *logging.Logger
	now      func() time.Time
}

// NewEngine creates a ledger engine on store
func NewEngine(store storage.Store, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.BalanceCacheTTL <= 0 {
		cfg.BalanceCacheTTL = def.BalanceCacheTTL
	}
	if cfg.RolloverMultiplier.IsNegative() {
		cfg.RolloverMultiplier = def.RolloverMultiplier
	}

	e := &Engine{
		store:    store,
		cfg:      cfg,
		balances: cache.New(cfg.BalanceCacheTTL, 2*cfg.BalanceCacheTTL),
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AccountPath is the store path of an account record
func AccountPath(accountID string) string {
	return storage.Join("accounts", accountID)
}

// LogPath is the store path beneath which an account's entries are pushed
func LogPath(accountID string) string {
	return storage.Join("ledger", accountID)
}

// DirectoryPath is the store path beneath which new account ids are pushed
func DirectoryPath() string {
	return "directory"
}

// Open creates the account with a zero balance if it does not exist and
// returns its current state
func (e *Engine) Open(ctx context.Context, accountID string) (*entities.Account, error) {
	const op = "ledger.Open"

	if accountID == "" {
		return nil, types.NewGameError(types.ErrInvalidArgument, "account id is required")
	}

	var raw []byte
	var created bool
	err := e.retry(ctx, func() error {
		var err error
		raw, err = e.store.Transact(ctx, AccountPath(accountID), func(current []byte) ([]byte, error) {
			created = current == nil
			if !created {
				return nil, nil
			}
			return json.Marshal(entities.NewAccount(accountID, e.now()))
		})
		return err
	})
	if err != nil {
		return nil, e.translate(op, err)
	}

	acct, err := decodeAccount(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	e.remember(acct)

	if created {
		e.logger.Info("account opened", "account_id", accountID)
		if _, err := e.store.Push(ctx, DirectoryPath(), []byte(accountID)); err != nil {
			e.logger.Warn("account not added to directory", logging.Err(err), "account_id", accountID)
		}
	}
	return acct, nil
}

// Accounts lists every opened account id in opening order
func (e *Engine) Accounts(ctx context.Context) ([]string, error) {
	const op = "ledger.Accounts"

	children, err := e.store.Children(ctx, DirectoryPath(), 0)
	if err != nil {
		return nil, e.translate(op, err)
	}

	seen := make(map[string]bool, len(children))
	ids := make([]string, 0, len(children))
	for _, child := range children {
		id := string(child.Value)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// Account reads the current account state
func (e *Engine) Account(ctx context.Context, accountID string) (*entities.Account, error) {
	const op = "ledger.Account"

	raw, err := e.store.Get(ctx, AccountPath(accountID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewGameError(types.ErrAccountNotFound, fmt.Sprintf("account %s not found", accountID))
		}
		return nil, e.translate(op, err)
	}

	acct, err := decodeAccount(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	e.remember(acct)
	return acct, nil
}

// Apply mutates the balance by delta and records one entry
func (e *Engine) Apply(ctx context.Context, accountID string, delta decimal.Decimal, kind entities.EntryKind, description string) (*entities.LedgerEntry, error) {
	return e.ApplyRef(ctx, accountID, delta, kind, description, "")
}

// ApplyRef is Apply with a reference to the bet or round that caused it
func (e *Engine) ApplyRef(ctx context.Context, accountID string, delta decimal.Decimal, kind entities.EntryKind, description, referenceID string) (*entities.LedgerEntry, error) {
	const op = "ledger.Apply"

	if err := validate(accountID, delta, kind); err != nil {
		metrics.LedgerApplies.WithLabelValues(string(kind), "rejected").Inc()
		return nil, err
	}

	// Fast check against the last balance this process saw; the
	// transaction re-validates against the stored value
	if delta.IsNegative() {
		if last, ok := e.lastKnown(accountID); ok && last.Add(delta).IsNegative() {
			// Another process may have credited the account since; a
			// rejection is only returned once a fresh read confirms it
			if fresh, err := e.Account(ctx, accountID); err == nil && fresh.Balance.Add(delta).IsNegative() {
				metrics.LedgerApplies.WithLabelValues(string(kind), "rejected").Inc()
				return nil, insufficient(fresh.Balance, delta)
			}
		}
	}

	var entry *entities.LedgerEntry
	var acct *entities.Account
	attempt := 0
	err := e.retry(ctx, func() error {
		attempt++
		if attempt > 1 {
			metrics.LedgerRetries.Inc()
		}
		var err error
		entry, acct, err = e.applyOnce(ctx, accountID, delta, kind, description, referenceID)
		if errors.Is(err, storage.ErrConflict) {
			metrics.LedgerConflicts.Inc()
		}
		return err
	})
	if err != nil {
		metrics.LedgerApplies.WithLabelValues(string(kind), "failed").Inc()
		if types.IsGameError(err, types.ErrInsufficientBalance) {
			e.balances.Delete(accountID)
		}
		return nil, e.translate(op, err)
	}

	e.remember(acct)
	metrics.LedgerApplies.WithLabelValues(string(kind), "success").Inc()
	e.logger.Debug("applied",
		"account_id", accountID,
		"kind", kind,
		"amount", entry.Amount.String(),
		"balance", entry.BalanceAfter.String(),
		"sequence", entry.Sequence,
		"attempts", attempt,
	)

	e.record(ctx, entry)
	return entry, nil
}

// applyOnce runs a single compare-and-swap of the account
func (e *Engine) applyOnce(ctx context.Context, accountID string, delta decimal.Decimal, kind entities.EntryKind, description, referenceID string) (*entities.LedgerEntry, *entities.Account, error) {
	var entry *entities.LedgerEntry
	var acct *entities.Account

	_, err := e.store.Transact(ctx, AccountPath(accountID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, types.NewGameError(types.ErrAccountNotFound, fmt.Sprintf("account %s not found", accountID))
		}

		a, err := decodeAccount(current)
		if err != nil {
			return nil, err
		}
		if err := e.mutate(a, delta, kind); err != nil {
			return nil, err
		}

		now := e.now()
		a.Sequence++
		a.UpdatedAt = now
		entry = &entities.LedgerEntry{
			ID:           uuid.NewString(),
			AccountID:    accountID,
			Kind:         kind,
			Amount:       delta.Abs(),
			Status:       entities.EntryStatusSuccess,
			Description:  description,
			ReferenceID:  referenceID,
			Sequence:     a.Sequence,
			BalanceAfter: a.Balance,
			Timestamp:    now,
		}
		acct = a
		return json.Marshal(a)
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, acct, nil
}

// mutate applies delta and the derived wager fields to a
func (e *Engine) mutate(a *entities.Account, delta decimal.Decimal, kind entities.EntryKind) error {
	next := a.Balance.Add(delta)
	if next.IsNegative() {
		return insufficient(a.Balance, delta)
	}
	a.Balance = next

	// Only stakes pay down the rollover; withdrawals do not count as play
	if kind == entities.EntryKindBet {
		stake := delta.Abs()
		a.WagerRequired = a.WagerRequired.Sub(decimal.Min(a.WagerRequired, stake))
		a.TotalBet = a.TotalBet.Add(stake)
	}

	switch {
	case kind.AddsRollover():
		a.WagerRequired = a.WagerRequired.Add(delta.Mul(e.cfg.RolloverMultiplier))
		a.WagerTotal = a.WagerRequired
	case kind == entities.EntryKindDeposit:
		a.TotalDeposit = a.TotalDeposit.Add(delta)
	}
	return nil
}

// record appends the entry to the account log, at least once, and mirrors
// it to the audit sink. Failures never undo the committed balance.
func (e *Engine) record(ctx context.Context, entry *entities.LedgerEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		e.logger.Error("encoding ledger entry", logging.Err(err), "entry_id", entry.ID)
		metrics.LedgerLogFailures.Inc()
		return
	}

	err = e.retry(ctx, func() error {
		_, err := e.store.Push(ctx, LogPath(entry.AccountID), payload)
		return err
	})
	if err != nil {
		metrics.LedgerLogFailures.Inc()
		e.logger.Error("ledger entry not logged",
			logging.Err(err),
			"account_id", entry.AccountID,
			"sequence", entry.Sequence,
			"entry_id", entry.ID,
		)
	}

	if e.sink != nil {
		if err := e.sink.IndexEntry(ctx, entry); err != nil {
			e.logger.Warn("audit index failed", logging.Err(err), "entry_id", entry.ID)
		}
	}
}

// History returns an account's entries oldest first. Duplicate log writes
// are collapsed by sequence. A positive limit keeps only the most recent.
func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]*entities.LedgerEntry, error) {
	const op = "ledger.History"

	fetch := 0
	if limit > 0 {
		// Leave room for duplicates
		fetch = limit * 2
	}
	children, err := e.store.Children(ctx, LogPath(accountID), fetch)
	if err != nil {
		return nil, e.translate(op, err)
	}

	bySeq := make(map[int64]*entities.LedgerEntry, len(children))
	for _, child := range children {
		var entry entities.LedgerEntry
		if err := json.Unmarshal(child.Value, &entry); err != nil {
			e.logger.Warn("skipping malformed ledger entry", logging.Err(err), "key", child.Key)
			continue
		}
		if _, seen := bySeq[entry.Sequence]; !seen {
			bySeq[entry.Sequence] = &entry
		}
	}

	entries := make([]*entities.LedgerEntry, 0, len(bySeq))
	for _, entry := range bySeq {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// retry runs fn until it succeeds, fails permanently, or the attempt budget
// is spent. Only transient store errors are retried.
func (e *Engine) retry(ctx context.Context, fn func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.cfg.InitialBackoff
	expo.MaxInterval = e.cfg.MaxBackoff
	expo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(e.cfg.MaxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil || storage.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// translate maps store failures onto domain error codes
func (e *Engine) translate(op string, err error) error {
	var gameErr *types.GameError
	switch {
	case types.As(err, &gameErr):
		return err
	case errors.Is(err, storage.ErrConflict):
		return types.WrapError(types.ErrConflictExceededRetries,
			fmt.Sprintf("gave up after %d attempts", e.cfg.MaxAttempts), err)
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, storage.ErrClosed):
		return types.WrapError(types.ErrStoreUnavailable, "store unavailable", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// knownBalance is a cached balance tagged with the sequence it was read at
type knownBalance struct {
	sequence int64
	balance  decimal.Decimal
}

// remember caches the account balance unless a newer one is already cached
func (e *Engine) remember(acct *entities.Account) {
	if acct == nil {
		return
	}
	if v, ok := e.balances.Get(acct.ID); ok {
		if known, ok := v.(knownBalance); ok && known.sequence > acct.Sequence {
			return
		}
	}
	e.balances.SetDefault(acct.ID, knownBalance{sequence: acct.Sequence, balance: acct.Balance})
}

func (e *Engine) lastKnown(accountID string) (decimal.Decimal, bool) {
	v, ok := e.balances.Get(accountID)
	if !ok {
		return decimal.Zero, false
	}
	known, ok := v.(knownBalance)
	return known.balance, ok
}

func validate(accountID string, delta decimal.Decimal, kind entities.EntryKind) error {
	if accountID == "" {
		return types.NewGameError(types.ErrInvalidArgument, "account id is required")
	}
	if !kind.Valid() {
		return types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("unknown entry kind %q", kind))
	}
	if delta.IsZero() {
		return types.NewGameError(types.ErrInvalidArgument, "amount must not be zero")
	}
	if kind.IsDebit() != delta.IsNegative() {
		return types.NewGameError(types.ErrInvalidArgument,
			fmt.Sprintf("%s amount has the wrong sign: %s", kind, delta))
	}
	return nil
}

func insufficient(balance, delta decimal.Decimal) error {
	return types.NewGameError(types.ErrInsufficientBalance,
		fmt.Sprintf("balance %s cannot cover %s", balance.StringFixed(2), delta.Abs().StringFixed(2)))
}

func decodeAccount(raw []byte) (*entities.Account, error) {
	var acct entities.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("decoding account: %w", err)
	}
	return &acct, nil
}
