package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/services/statistics"
)

const defaultHistoryLimit = 50

type AccountResponse struct {
	Response
	Account *entities.Account `json:"account"`
}

type HistoryResponse struct {
	Response
	Entries []*entities.LedgerEntry `json:"entries"`
}

type StatisticsResponse struct {
	Response
	Statistics *statistics.AccountStatistics `json:"statistics"`
}

type LeaderboardResponse struct {
	Response
	Leaderboard *statistics.Leaderboard `json:"leaderboard"`
}

type EntryResponse struct {
	Response
	Entry *entities.LedgerEntry `json:"entry"`
}

// CreditRequest moves money in or out of an account outside of play
type CreditRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=DEPOSIT WITHDRAW GIFT BONUS COMMISSION"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Description string `json:"description"`
}

func (s *Server) openAccount(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.openAccount")

	acct, err := s.ledger.Open(r.Context(), accountID(r))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, AccountResponse{Response: OK(), Account: acct})
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.getAccount")

	acct, err := s.ledger.Account(r.Context(), accountID(r))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, AccountResponse{Response: OK(), Account: acct})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.history")

	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	entries, err := s.ledger.History(r.Context(), accountID(r), limit)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}
	if entries == nil {
		entries = []*entities.LedgerEntry{}
	}

	render.Render(w, r, HistoryResponse{Response: OK(), Entries: entries})
}

func (s *Server) accountStatistics(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.accountStatistics")

	stats, err := s.stats.GetAccountStatistics(r.Context(), accountID(r))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, StatisticsResponse{Response: OK(), Statistics: stats})
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.leaderboard")

	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}
	perPage, err := queryInt(r, "per_page", 10)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	board, err := s.stats.GetLeaderboard(r.Context(), page, perPage)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, LeaderboardResponse{Response: OK(), Leaderboard: board})
}

// credit applies a non-play entry. Amounts are always positive on the wire;
// withdrawals are debited.
func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.credit")

	var req CreditRequest
	if !s.decode(w, r, log, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		s.fail(w, r, log, types.NewGameError(types.ErrInvalidArgument, "amount must be a positive number"))
		return
	}

	kind := entities.EntryKind(req.Kind)
	delta := amount
	if kind.IsDebit() {
		delta = amount.Neg()
	}
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("%s %s", kind, amount.String())
	}

	entry, err := s.ledger.Apply(r.Context(), accountID(r), delta, kind, description)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	log.Info("account credited",
		"account_id", entry.AccountID,
		"kind", string(kind),
		"amount", amount.String(),
	)
	render.Render(w, r, EntryResponse{Response: OK(), Entry: entry})
}

// queryInt reads an optional integer query parameter
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewGameError(types.ErrInvalidArgument, fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}
