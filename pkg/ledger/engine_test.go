package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/storage"
	"github.com/fadedpez/wagerline/pkg/storage/memory"
	storagemock "github.com/fadedpez/wagerline/pkg/storage/mock"
)

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

type EngineTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	engine *Engine
}

func (s *EngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.engine = NewEngine(s.store, testConfig())
}

func (s *EngineTestSuite) TearDownTest() {
	s.store.Close()
}

func (s *EngineTestSuite) fund(id, deposit string) {
	_, err := s.engine.Open(s.ctx, id)
	s.Require().NoError(err)
	_, err = s.engine.Apply(s.ctx, id, amount(deposit), entities.EntryKindDeposit, "deposit")
	s.Require().NoError(err)
}

func (s *EngineTestSuite) balance(id string) decimal.Decimal {
	acct, err := s.engine.Account(s.ctx, id)
	s.Require().NoError(err)
	return acct.Balance
}

func (s *EngineTestSuite) TestOpenIsIdempotent() {
	first, err := s.engine.Open(s.ctx, "a1")
	s.Require().NoError(err)
	s.True(first.Balance.IsZero())

	_, err = s.engine.Apply(s.ctx, "a1", amount("25"), entities.EntryKindDeposit, "deposit")
	s.Require().NoError(err)

	again, err := s.engine.Open(s.ctx, "a1")
	s.Require().NoError(err)
	s.True(again.Balance.Equal(amount("25")), "reopening must not reset the balance")
}

func (s *EngineTestSuite) TestAccountsListsOpenedOnce() {
	for _, id := range []string{"a1", "a2", "a1"} {
		_, err := s.engine.Open(s.ctx, id)
		s.Require().NoError(err)
	}

	ids, err := s.engine.Accounts(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"a1", "a2"}, ids)
}

func (s *EngineTestSuite) TestApplyUnknownAccount() {
	_, err := s.engine.Apply(s.ctx, "ghost", amount("10"), entities.EntryKindDeposit, "deposit")
	s.True(types.IsGameError(err, types.ErrAccountNotFound), "got %v", err)

	_, err = s.engine.Account(s.ctx, "ghost")
	s.True(types.IsGameError(err, types.ErrAccountNotFound))
}

func (s *EngineTestSuite) TestBetThenWin() {
	s.fund("a1", "100")

	bet, err := s.engine.ApplyRef(s.ctx, "a1", amount("-10"), entities.EntryKindBet, "wingo bet", "intent-1")
	s.Require().NoError(err)
	s.True(bet.Amount.Equal(amount("10")), "amounts are unsigned")
	s.True(bet.BalanceAfter.Equal(amount("90")))
	s.Equal("intent-1", bet.ReferenceID)

	win, err := s.engine.ApplyRef(s.ctx, "a1", amount("20"), entities.EntryKindWin, "wingo win", "intent-1")
	s.Require().NoError(err)
	s.Greater(win.Sequence, bet.Sequence)

	s.True(s.balance("a1").Equal(amount("110")))

	history, err := s.engine.History(s.ctx, "a1", 0)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(entities.EntryKindDeposit, history[0].Kind)
	s.Equal(entities.EntryKindBet, history[1].Kind)
	s.Equal(entities.EntryKindWin, history[2].Kind)
	s.Equal(entities.EntryStatusSuccess, history[2].Status)
}

func (s *EngineTestSuite) TestInsufficientBalanceLeavesStateUnchanged() {
	s.fund("a1", "100")

	_, err := s.engine.Apply(s.ctx, "a1", amount("-150"), entities.EntryKindBet, "too much")
	s.True(types.IsGameError(err, types.ErrInsufficientBalance), "got %v", err)

	// A cold engine skips the fast check and must still refuse inside the transaction
	cold := NewEngine(s.store, testConfig())
	_, err = cold.Apply(s.ctx, "a1", amount("-100.01"), entities.EntryKindWithdraw, "too much")
	s.True(types.IsGameError(err, types.ErrInsufficientBalance), "got %v", err)

	s.True(s.balance("a1").Equal(amount("100")))
	history, err := s.engine.History(s.ctx, "a1", 0)
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *EngineTestSuite) TestExactBalanceMayBeSpent() {
	s.fund("a1", "40")
	_, err := s.engine.Apply(s.ctx, "a1", amount("-40"), entities.EntryKindBet, "all in")
	s.Require().NoError(err)
	s.True(s.balance("a1").IsZero())
}

func (s *EngineTestSuite) TestWagerRequirementPaidDownByBets() {
	s.fund("a1", "100")
	_, err := s.engine.Apply(s.ctx, "a1", amount("10"), entities.EntryKindGift, "welcome gift")
	s.Require().NoError(err)

	acct, err := s.engine.Account(s.ctx, "a1")
	s.Require().NoError(err)
	s.True(acct.WagerRequired.Equal(amount("50")))
	s.True(acct.WagerTotal.Equal(amount("50")))

	_, err = s.engine.Apply(s.ctx, "a1", amount("-30"), entities.EntryKindBet, "bet")
	s.Require().NoError(err)
	acct, _ = s.engine.Account(s.ctx, "a1")
	s.True(acct.WagerRequired.Equal(amount("20")), "decreases by exactly the stake")
	s.True(acct.TotalBet.Equal(amount("30")))

	_, err = s.engine.Apply(s.ctx, "a1", amount("-30"), entities.EntryKindBet, "bet")
	s.Require().NoError(err)
	acct, _ = s.engine.Account(s.ctx, "a1")
	s.True(acct.WagerRequired.IsZero(), "never negative")
	s.True(acct.WagerTotal.Equal(amount("50")), "baseline is kept")
	s.True(acct.TotalBet.Equal(amount("60")))
	s.True(acct.TotalDeposit.Equal(amount("100")))
}

func (s *EngineTestSuite) TestWithdrawIsNotWagered() {
	s.fund("a1", "100")
	_, err := s.engine.Apply(s.ctx, "a1", amount("20"), entities.EntryKindGift, "gift")
	s.Require().NoError(err)

	_, err = s.engine.Apply(s.ctx, "a1", amount("-100"), entities.EntryKindWithdraw, "cash out")
	s.Require().NoError(err)

	acct, err := s.engine.Account(s.ctx, "a1")
	s.Require().NoError(err)
	s.True(acct.Balance.Equal(amount("20")))
	s.True(acct.WagerRequired.Equal(amount("100")), "withdrawals leave the rollover outstanding")
	s.True(acct.TotalBet.IsZero(), "withdrawals are not bet volume")
}

func (s *EngineTestSuite) TestStaleCachedBalanceDoesNotReject() {
	s.fund("a1", "10")

	// A second process credits the account behind this engine's cache
	other := NewEngine(s.store, testConfig())
	_, err := other.Apply(s.ctx, "a1", amount("100"), entities.EntryKindDeposit, "deposit")
	s.Require().NoError(err)

	entry, err := s.engine.Apply(s.ctx, "a1", amount("-50"), entities.EntryKindBet, "bet")
	s.Require().NoError(err)
	s.True(entry.BalanceAfter.Equal(amount("60")))

	_, err = s.engine.Apply(s.ctx, "a1", amount("-70"), entities.EntryKindBet, "bet")
	s.True(types.IsGameError(err, types.ErrInsufficientBalance))
	s.True(s.balance("a1").Equal(amount("60")))
}

func (s *EngineTestSuite) TestGiftRollover() {
	// balance 100 with 50 outstanding
	s.fund("a1", "90")
	_, err := s.engine.Apply(s.ctx, "a1", amount("10"), entities.EntryKindGift, "gift")
	s.Require().NoError(err)

	_, err = s.engine.Apply(s.ctx, "a1", amount("20"), entities.EntryKindGift, "gift")
	s.Require().NoError(err)

	acct, err := s.engine.Account(s.ctx, "a1")
	s.Require().NoError(err)
	s.True(acct.Balance.Equal(amount("120")))
	s.True(acct.WagerRequired.Equal(amount("150")))
	s.True(acct.WagerTotal.Equal(amount("150")))
}

func (s *EngineTestSuite) TestBonusUsesConfiguredMultiplier() {
	cfg := testConfig()
	cfg.RolloverMultiplier = amount("5.4")
	engine := NewEngine(s.store, cfg)

	_, err := engine.Open(s.ctx, "a2")
	s.Require().NoError(err)
	_, err = engine.Apply(s.ctx, "a2", amount("10"), entities.EntryKindBonus, "bonus")
	s.Require().NoError(err)

	acct, err := engine.Account(s.ctx, "a2")
	s.Require().NoError(err)
	s.True(acct.WagerRequired.Equal(amount("54")))
}

func (s *EngineTestSuite) TestWinAndDepositAddNoRequirement() {
	s.fund("a1", "100")
	_, err := s.engine.Apply(s.ctx, "a1", amount("50"), entities.EntryKindWin, "win")
	s.Require().NoError(err)
	_, err = s.engine.Apply(s.ctx, "a1", amount("5"), entities.EntryKindCommission, "commission")
	s.Require().NoError(err)

	acct, err := s.engine.Account(s.ctx, "a1")
	s.Require().NoError(err)
	s.True(acct.WagerRequired.IsZero())
	s.True(acct.Balance.Equal(amount("155")))
}

func (s *EngineTestSuite) TestValidation() {
	s.fund("a1", "100")

	cases := []struct {
		name  string
		id    string
		delta string
		kind  entities.EntryKind
	}{
		{"empty account", "", "10", entities.EntryKindDeposit},
		{"zero", "a1", "0", entities.EntryKindDeposit},
		{"positive bet", "a1", "10", entities.EntryKindBet},
		{"negative win", "a1", "-10", entities.EntryKindWin},
		{"positive withdraw", "a1", "10", entities.EntryKindWithdraw},
		{"negative gift", "a1", "-10", entities.EntryKindGift},
		{"unknown kind", "a1", "10", entities.EntryKind("LOAN")},
	}
	for _, tc := range cases {
		_, err := s.engine.Apply(s.ctx, tc.id, amount(tc.delta), tc.kind, tc.name)
		s.True(types.IsGameError(err, types.ErrInvalidArgument), "%s: %v", tc.name, err)
	}
	s.True(s.balance("a1").Equal(amount("100")))
}

func (s *EngineTestSuite) TestConcurrentAppliesAreAtomic() {
	cfg := testConfig()
	cfg.MaxAttempts = 100
	engine := NewEngine(s.store, cfg)

	_, err := engine.Open(s.ctx, "hot")
	s.Require().NoError(err)
	_, err = engine.Apply(s.ctx, "hot", amount("1000"), entities.EntryKindDeposit, "seed")
	s.Require().NoError(err)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = engine.Apply(s.ctx, "hot", amount("-7"), entities.EntryKindBet, "bet")
			} else {
				_, err = engine.Apply(s.ctx, "hot", amount("3"), entities.EntryKindWin, "win")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	// 1000 + 25*(-7) + 25*3
	s.True(s.balance("hot").Equal(amount("900")))

	history, err := engine.History(s.ctx, "hot", 0)
	s.Require().NoError(err)
	s.Require().Len(history, workers+1)
	for i, entry := range history {
		s.Equal(int64(i+1), entry.Sequence, "sequences are dense and ordered")
	}
}

func (s *EngineTestSuite) TestHistoryCollapsesDuplicatesAndLimits() {
	s.fund("a1", "100")
	entry, err := s.engine.Apply(s.ctx, "a1", amount("-10"), entities.EntryKindBet, "bet")
	s.Require().NoError(err)

	// Simulate an at-least-once redelivery of the same entry
	payload, err := json.Marshal(entry)
	s.Require().NoError(err)
	_, err = s.store.Push(s.ctx, LogPath("a1"), payload)
	s.Require().NoError(err)

	_, err = s.engine.Apply(s.ctx, "a1", amount("5"), entities.EntryKindWin, "win")
	s.Require().NoError(err)

	history, err := s.engine.History(s.ctx, "a1", 0)
	s.Require().NoError(err)
	s.Len(history, 3)

	recent, err := s.engine.History(s.ctx, "a1", 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(entities.EntryKindBet, recent[0].Kind)
	s.Equal(entities.EntryKindWin, recent[1].Kind)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*entities.LedgerEntry
}

func (r *recordingSink) IndexEntry(_ context.Context, entry *entities.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (s *EngineTestSuite) TestAuditSinkReceivesEntries() {
	sink := &recordingSink{}
	engine := NewEngine(s.store, testConfig(), WithAuditSink(sink))

	_, err := engine.Open(s.ctx, "a3")
	s.Require().NoError(err)
	_, err = engine.Apply(s.ctx, "a3", amount("10"), entities.EntryKindDeposit, "deposit")
	s.Require().NoError(err)

	s.Require().Len(sink.entries, 1)
	s.Equal("a3", sink.entries[0].AccountID)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

// Failure-path tests against a mocked store

type EngineMockTestSuite struct {
	suite.Suite
	ctx    context.Context
	store  *storagemock.Store
	engine *Engine
	raw    []byte
}

func (s *EngineMockTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storagemock.New()
	cfg := testConfig()
	cfg.MaxAttempts = 3
	s.engine = NewEngine(s.store, cfg)

	acct := entities.NewAccount("a1", time.Now())
	acct.Balance = amount("100")
	raw, err := json.Marshal(acct)
	s.Require().NoError(err)
	s.raw = raw
}

func (s *EngineMockTestSuite) TestConflictExceedsRetries() {
	s.store.On("Transact", mock.Anything, "accounts/a1", mock.Anything).
		Return(nil, storage.ErrConflict)

	_, err := s.engine.Apply(s.ctx, "a1", amount("-10"), entities.EntryKindBet, "bet")
	s.True(types.IsGameError(err, types.ErrConflictExceededRetries), "got %v", err)
	s.True(types.IsRetryable(err))
	s.store.AssertNumberOfCalls(s.T(), "Transact", 3)
	s.store.AssertNotCalled(s.T(), "Push", mock.Anything, mock.Anything, mock.Anything)
}

func (s *EngineMockTestSuite) TestUnavailableStoreRecovers() {
	s.store.On("Transact", mock.Anything, "accounts/a1", mock.Anything).
		Return(nil, storage.ErrUnavailable).Once()
	s.store.On("Transact", mock.Anything, "accounts/a1", mock.Anything).
		Return(s.raw, nil).Once()
	s.store.On("Push", mock.Anything, "ledger/a1", mock.Anything).
		Return("k1", nil).Once()

	entry, err := s.engine.Apply(s.ctx, "a1", amount("-10"), entities.EntryKindBet, "bet")
	s.Require().NoError(err)
	s.True(entry.BalanceAfter.Equal(amount("90")))
	s.Equal(int64(1), entry.Sequence)
	s.store.AssertExpectations(s.T())
}

func (s *EngineMockTestSuite) TestUnavailableStoreSurfacesAfterBudget() {
	s.store.On("Transact", mock.Anything, "accounts/a1", mock.Anything).
		Return(nil, storage.ErrUnavailable)

	_, err := s.engine.Apply(s.ctx, "a1", amount("5"), entities.EntryKindDeposit, "deposit")
	s.True(types.IsGameError(err, types.ErrStoreUnavailable), "got %v", err)
	s.store.AssertNumberOfCalls(s.T(), "Transact", 3)
}

func (s *EngineMockTestSuite) TestLogFailureKeepsBalance() {
	s.store.On("Transact", mock.Anything, "accounts/a1", mock.Anything).
		Return(s.raw, nil).Once()
	s.store.On("Push", mock.Anything, "ledger/a1", mock.Anything).
		Return("", storage.ErrUnavailable)

	entry, err := s.engine.Apply(s.ctx, "a1", amount("-10"), entities.EntryKindBet, "bet")
	s.Require().NoError(err, "a lost log write never fails a committed apply")
	s.True(entry.BalanceAfter.Equal(amount("90")))
	s.store.AssertNumberOfCalls(s.T(), "Push", 3)
}

func (s *EngineMockTestSuite) TestInsufficientIsNotRetried() {
	s.store.On("Transact", mock.Anything, "accounts/a1", mock.Anything).
		Return(s.raw, nil)

	_, err := s.engine.Apply(s.ctx, "a1", amount("-500"), entities.EntryKindBet, "bet")
	s.True(types.IsGameError(err, types.ErrInsufficientBalance))
	s.store.AssertNumberOfCalls(s.T(), "Transact", 1)
}

func (s *EngineMockTestSuite) TestCancelledContextStopsRetrying() {
	ctx, cancel := context.WithCancel(s.ctx)
	s.store.On("Transact", mock.Anything, "accounts/a1", mock.Anything).
		Return(nil, storage.ErrConflict).
		Run(func(mock.Arguments) { cancel() })

	_, err := s.engine.Apply(ctx, "a1", amount("-10"), entities.EntryKindBet, "bet")
	s.Error(err)
	s.store.AssertNumberOfCalls(s.T(), "Transact", 1)
}

func TestEngineMockSuite(t *testing.T) {
	suite.Run(t, new(EngineMockTestSuite))
}
