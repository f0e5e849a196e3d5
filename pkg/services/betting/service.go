// Package betting settles instant games: one bet, one draw, settled on the
// spot.
package betting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/metrics"
	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/bias"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/outcome"
	"github.com/fadedpez/wagerline/pkg/payout"
)

// Ledger is the part of the ledger engine a settlement needs
type Ledger interface {
	Account(ctx context.Context, accountID string) (*entities.Account, error)
	ApplyRef(ctx context.Context, accountID string, delta decimal.Decimal, kind entities.EntryKind, description, referenceID string) (*entities.LedgerEntry, error)
}

// Service settles instant bets
type Service struct {
	ledger    Ledger
	generator *outcome.Generator
	policy    *bias.Policy
	table     *payout.Table
	logger    *logging.Logger
	now       func() time.Time
}

// NewService creates a betting service
func NewService(ledger Ledger, generator *outcome.Generator, policy *bias.Policy, table *payout.Table, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		ledger:    ledger,
		generator: generator,
		policy:    policy,
		table:     table,
		logger:    logger.Component("betting"),
		now:       time.Now,
	}
}

// Place debits the stake, draws an outcome and credits any winnings. The
// bias decision is taken against the balance before the stake is debited.
func (s *Service) Place(ctx context.Context, intent *entities.BetIntent) (*entities.BetResult, error) {
	const op = "betting.Place"

	if intent == nil || intent.AccountID == "" {
		return nil, types.NewGameError(types.ErrInvalidArgument, "account id is required")
	}
	if !intent.Stake.IsPositive() {
		return nil, types.NewGameError(types.ErrInvalidArgument, "stake must be positive")
	}
	if err := s.table.ValidateTarget(intent.Game, intent.Target); err != nil {
		return nil, err
	}
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	if intent.PlacedAt.IsZero() {
		intent.PlacedAt = s.now()
	}

	acct, err := s.ledger.Account(ctx, intent.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	biased := s.policy.ShouldBias(intent.Stake, acct.Balance, acct.Wager())

	bet, err := s.ledger.ApplyRef(ctx, intent.AccountID, intent.Stake.Neg(), entities.EntryKindBet,
		fmt.Sprintf("%s bet %s", intent.Game, intent.Target), intent.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	drawn := s.generator.Generate(intent.Game, outcome.Params{})
	if biased && s.table.Pays(intent.Game, intent.Target, drawn) {
		drawn = bias.Remap(s.table, intent.Game, intent.Target, drawn)
		metrics.BiasApplied.WithLabelValues(string(intent.Game)).Inc()
	}

	m := s.table.Payout(intent.Game, intent.Target, drawn)
	result := &entities.BetResult{
		IntentID:     intent.ID,
		AccountID:    intent.AccountID,
		Game:         intent.Game,
		Won:          m.IsPositive(),
		Multiplier:   m,
		PayoutAmount: intent.Stake.Mul(m),
		Outcome:      drawn,
		Biased:       biased,
		Entries:      []*entities.LedgerEntry{bet},
	}
	metrics.BetsSettled.WithLabelValues(string(intent.Game), outcomeLabel(result.Won)).Inc()

	if !result.Won {
		return result, nil
	}

	win, err := s.ledger.ApplyRef(ctx, intent.AccountID, result.PayoutAmount, entities.EntryKindWin,
		fmt.Sprintf("%s win %s", intent.Game, drawn), intent.ID)
	if err != nil {
		// The stake is already gone; leave enough behind to reconcile by hand
		s.logger.Error("win credit failed",
			logging.Op(op),
			logging.Err(err),
			"intent_id", intent.ID,
			"account_id", intent.AccountID,
			"amount", result.PayoutAmount.String(),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result.Entries = append(result.Entries, win)
	return result, nil
}

func outcomeLabel(won bool) string {
	if won {
		return "win"
	}
	return "loss"
}
