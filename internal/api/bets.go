package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/games"
	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/internal/types"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/rounds"
)

// BetRequest is a wager on one game. Amounts travel as decimal strings.
type BetRequest struct {
	Stake  string        `json:"stake" validate:"required,numeric"`
	Target TargetRequest `json:"target"`
}

type TargetRequest struct {
	Kind       string `json:"kind" validate:"required"`
	Number     int    `json:"number"`
	Multiplier string `json:"multiplier" validate:"omitempty,numeric"`
}

// BetSettledResponse answers an instant game
type BetSettledResponse struct {
	Response
	Result *entities.BetResult `json:"result"`
}

// BetQueuedResponse answers a shared game; the result arrives with the round
type BetQueuedResponse struct {
	Response
	Intent *entities.BetIntent    `json:"intent"`
	Entry  *entities.LedgerEntry `json:"entry"`
}

type PendingResponse struct {
	Response
	Bets []entities.BetIntent `json:"bets"`
}

func (req BetRequest) intent(accountID string, game entities.GameKind) (*entities.BetIntent, error) {
	stake, err := decimal.NewFromString(req.Stake)
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidArgument, "stake must be a number", err)
	}
	target := entities.Target{
		Kind:   entities.TargetKind(req.Target.Kind),
		Number: req.Target.Number,
	}
	if req.Target.Multiplier != "" {
		if target.Multiplier, err = decimal.NewFromString(req.Target.Multiplier); err != nil {
			return nil, types.WrapError(types.ErrInvalidBetTarget, "multiplier must be a number", err)
		}
	}
	return &entities.BetIntent{
		AccountID: accountID,
		Game:      game,
		Target:    target,
		Stake:     stake,
	}, nil
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.placeBet")

	def, err := s.games.GetGame(chi.URLParam(r, "game"))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	var req BetRequest
	if !s.decode(w, r, log, &req) {
		return
	}
	intent, err := req.intent(accountID(r), def.Kind)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	if !def.Shared() {
		result, err := s.betting.Place(r.Context(), intent)
		if err != nil {
			s.fail(w, r, log, err)
			return
		}
		render.Render(w, r, BetSettledResponse{Response: OK(), Result: result})
		return
	}

	round, err := s.rounds.Round(def.Kind)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}
	entry, err := round.Submit(r.Context(), intent)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, BetQueuedResponse{Response: OK(), Intent: intent, Entry: entry})
}

func (s *Server) pendingBets(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.pendingBets")

	def, err := s.games.GetGame(chi.URLParam(r, "game"))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	bets := []entities.BetIntent{}
	if def.Shared() {
		round, err := s.rounds.Round(def.Kind)
		if err != nil {
			s.fail(w, r, log, err)
			return
		}
		if pending := round.Pending(accountID(r)); pending != nil {
			bets = pending
		}
	}

	render.Render(w, r, PendingResponse{Response: OK(), Bets: bets})
}

func (s *Server) cancelBet(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.cancelBet")

	round, ok := s.sharedRound(w, r, log)
	if !ok {
		return
	}

	entry, err := round.Cancel(r.Context(), accountID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, EntryResponse{Response: OK(), Entry: entry})
}

func (s *Server) cashOut(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.cashOut")

	round, ok := s.sharedRound(w, r, log)
	if !ok {
		return
	}

	result, err := round.CashOut(r.Context(), accountID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, BetSettledResponse{Response: OK(), Result: result})
}

// sharedRound resolves the {game} parameter to a running round. Instant
// games have nothing to cancel or cash out.
func (s *Server) sharedRound(w http.ResponseWriter, r *http.Request, log *logging.Logger) (*rounds.Round, bool) {
	def, err := s.lookupShared(chi.URLParam(r, "game"))
	if err != nil {
		s.fail(w, r, log, err)
		return nil, false
	}
	round, err := s.rounds.Round(def.Kind)
	if err != nil {
		s.fail(w, r, log, err)
		return nil, false
	}
	return round, true
}

func (s *Server) lookupShared(name string) (games.Definition, error) {
	def, err := s.games.GetGame(name)
	if err != nil {
		return games.Definition{}, err
	}
	if !def.Shared() {
		return games.Definition{}, types.NewGameError(types.ErrInvalidArgument, name+" settles instantly and has no round")
	}
	return def, nil
}
