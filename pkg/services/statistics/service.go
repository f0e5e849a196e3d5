package statistics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/pkg/entities"
)

// Ledger is the read side of the ledger engine
type Ledger interface {
	Account(ctx context.Context, accountID string) (*entities.Account, error)
	History(ctx context.Context, accountID string, limit int) ([]*entities.LedgerEntry, error)
	Accounts(ctx context.Context) ([]string, error)
}

// Tier is a VIP level reached by total bet volume
type Tier struct {
	Level       int             `json:"level"`
	Name        string          `json:"name"`
	MinTotalBet decimal.Decimal `json:"min_total_bet"`
}

// DefaultTiers are ordered by MinTotalBet ascending
var DefaultTiers = []Tier{
	{Level: 0, Name: "VIP0", MinTotalBet: decimal.Zero},
	{Level: 1, Name: "VIP1", MinTotalBet: decimal.NewFromInt(1000)},
	{Level: 2, Name: "VIP2", MinTotalBet: decimal.NewFromInt(10000)},
	{Level: 3, Name: "VIP3", MinTotalBet: decimal.NewFromInt(50000)},
	{Level: 4, Name: "VIP4", MinTotalBet: decimal.NewFromInt(200000)},
	{Level: 5, Name: "VIP5", MinTotalBet: decimal.NewFromInt(1000000)},
}

// Service provides methods for retrieving and processing account statistics
type Service struct {
	ledger Ledger
	tiers  []Tier
	now    func() time.Time
}

// NewService creates a new statistics service
func NewService(ledger Ledger) *Service {
	return &Service{
		ledger: ledger,
		tiers:  DefaultTiers,
		now:    time.Now,
	}
}

// TierFor returns the tier reached with totalBet and the one after it, nil
// at the top
func (s *Service) TierFor(totalBet decimal.Decimal) (Tier, *Tier) {
	current := s.tiers[0]
	for i, tier := range s.tiers {
		if totalBet.LessThan(tier.MinTotalBet) {
			next := s.tiers[i]
			return current, &next
		}
		current = tier
	}
	return current, nil
}

// WagerProgress is how far an account is through its rollover requirement
type WagerProgress struct {
	Required decimal.Decimal `json:"required"`
	Total    decimal.Decimal `json:"total"`
	Progress decimal.Decimal `json:"progress"` // 0..1
}

// AccountStatistics summarises an account's play
type AccountStatistics struct {
	AccountID    string          `json:"account_id"`
	Balance      decimal.Decimal `json:"balance"`
	TotalBet     decimal.Decimal `json:"total_bet"`
	TotalDeposit decimal.Decimal `json:"total_deposit"`
	TotalWon     decimal.Decimal `json:"total_won"`
	Profit       decimal.Decimal `json:"profit"`
	BetsPlaced   int             `json:"bets_placed"`
	BetsWon      int             `json:"bets_won"`
	WinRate      float64         `json:"win_rate"`
	Tier         Tier            `json:"tier"`
	NextTier     *Tier           `json:"next_tier,omitempty"`
	ToNextTier   decimal.Decimal `json:"to_next_tier"`
	Wager        WagerProgress   `json:"wager"`
}

// GetAccountStatistics builds the statistics of one account from its
// balance record and full ledger history
func (s *Service) GetAccountStatistics(ctx context.Context, accountID string) (*AccountStatistics, error) {
	const op = "statistics.GetAccountStatistics"

	acct, err := s.ledger.Account(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	entries, err := s.ledger.History(ctx, accountID, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := &AccountStatistics{
		AccountID:    accountID,
		Balance:      acct.Balance,
		TotalBet:     acct.TotalBet,
		TotalDeposit: acct.TotalDeposit,
		TotalWon:     decimal.Zero,
		Wager: WagerProgress{
			Required: acct.WagerRequired,
			Total:    acct.WagerTotal,
			Progress: acct.Wager().Progress(),
		},
	}

	staked := decimal.Zero
	won := make(map[string]bool)
	for _, entry := range entries {
		switch entry.Kind {
		case entities.EntryKindBet:
			stats.BetsPlaced++
			staked = staked.Add(entry.Amount)
		case entities.EntryKindWin:
			// Refunds give the stake back and undo the bet
			if entry.Description == entities.CancelDescription {
				stats.BetsPlaced--
				staked = staked.Sub(entry.Amount)
				continue
			}
			stats.TotalWon = stats.TotalWon.Add(entry.Amount)
			if entry.ReferenceID == "" || !won[entry.ReferenceID] {
				stats.BetsWon++
				won[entry.ReferenceID] = true
			}
		}
	}
	stats.Profit = stats.TotalWon.Sub(staked)
	if stats.BetsPlaced > 0 {
		stats.WinRate = float64(stats.BetsWon) / float64(stats.BetsPlaced)
	}

	stats.Tier, stats.NextTier = s.TierFor(acct.TotalBet)
	stats.ToNextTier = decimal.Zero
	if stats.NextTier != nil {
		stats.ToNextTier = stats.NextTier.MinTotalBet.Sub(acct.TotalBet)
	}
	return stats, nil
}

// PlayerRank represents an account's standing on the leaderboard
type PlayerRank struct {
	AccountID   string          `json:"account_id"`
	TotalBet    decimal.Decimal `json:"total_bet"`
	Tier        Tier            `json:"tier"`
	Rank        int             `json:"rank"`
	IsTopPlayer bool            `json:"is_top_player"`
}

// Leaderboard represents a paginated ranking of accounts by bet volume
type Leaderboard struct {
	Players        []*PlayerRank `json:"players"`
	TotalPlayers   int           `json:"total_players"`
	CurrentPage    int           `json:"current_page"`
	TotalPages     int           `json:"total_pages"`
	PlayersPerPage int           `json:"players_per_page"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// GetLeaderboard ranks every account that has placed a bet by total bet
// volume
func (s *Service) GetLeaderboard(ctx context.Context, page, playersPerPage int) (*Leaderboard, error) {
	const op = "statistics.GetLeaderboard"

	// Default values
	if page < 1 {
		page = 1
	}
	if playersPerPage < 1 {
		playersPerPage = 10
	}

	ids, err := s.ledger.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	playerRanks := make([]*PlayerRank, 0, len(ids))
	for _, id := range ids {
		acct, err := s.ledger.Account(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// Skip accounts that never played
		if !acct.TotalBet.IsPositive() {
			continue
		}
		tier, _ := s.TierFor(acct.TotalBet)
		playerRanks = append(playerRanks, &PlayerRank{
			AccountID: id,
			TotalBet:  acct.TotalBet,
			Tier:      tier,
		})
	}

	// Sort by total bet (descending), ties by id for a stable order
	sort.Slice(playerRanks, func(i, j int) bool {
		if c := playerRanks[i].TotalBet.Cmp(playerRanks[j].TotalBet); c != 0 {
			return c > 0
		}
		return playerRanks[i].AccountID < playerRanks[j].AccountID
	})

	if len(playerRanks) > 0 {
		playerRanks[0].IsTopPlayer = true
	}

	// Assign ranks
	for i := range playerRanks {
		playerRanks[i].Rank = i + 1
	}

	// Calculate pagination
	totalPlayers := len(playerRanks)
	totalPages := (totalPlayers + playersPerPage - 1) / playersPerPage
	if page > totalPages && totalPages > 0 {
		page = totalPages
	}

	// Get the current page of players
	start := (page - 1) * playersPerPage
	end := start + playersPerPage
	if end > totalPlayers {
		end = totalPlayers
	}

	var currentPagePlayers []*PlayerRank
	if start < totalPlayers {
		currentPagePlayers = playerRanks[start:end]
	} else {
		currentPagePlayers = []*PlayerRank{}
	}

	return &Leaderboard{
		Players:        currentPagePlayers,
		TotalPlayers:   totalPlayers,
		CurrentPage:    page,
		TotalPages:     totalPages,
		PlayersPerPage: playersPerPage,
		LastUpdated:    s.now(),
	}, nil
}
