// Package api exposes the casino core over HTTP and websockets
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/fadedpez/wagerline/internal/games"
	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/pkg/entities"
	"github.com/fadedpez/wagerline/pkg/rounds"
	"github.com/fadedpez/wagerline/pkg/services/betting"
	"github.com/fadedpez/wagerline/pkg/services/statistics"
)

// Ledger is the part of the ledger engine exposed to players
type Ledger interface {
	Open(ctx context.Context, accountID string) (*entities.Account, error)
	Account(ctx context.Context, accountID string) (*entities.Account, error)
	Apply(ctx context.Context, accountID string, delta decimal.Decimal, kind entities.EntryKind, description string) (*entities.LedgerEntry, error)
	History(ctx context.Context, accountID string, limit int) ([]*entities.LedgerEntry, error)
}

// Statistics builds per-account and leaderboard views
type Statistics interface {
	GetAccountStatistics(ctx context.Context, accountID string) (*statistics.AccountStatistics, error)
	GetLeaderboard(ctx context.Context, page, playersPerPage int) (*statistics.Leaderboard, error)
}

// Deps are the services behind the HTTP surface
type Deps struct {
	Ledger     Ledger
	Games      *games.Registry
	Rounds     *rounds.Manager
	Betting    betting.BettingService
	Statistics Statistics
	Logger     *logging.Logger
}

// Server routes player requests to the casino services
type Server struct {
	ledger    Ledger
	games     *games.Registry
	rounds    *rounds.Manager
	betting   betting.BettingService
	stats     Statistics
	log       *logging.Logger
	validator *validator.Validate
	upgrader  websocket.Upgrader
}

func NewServer(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		ledger:    deps.Ledger,
		games:     deps.Games,
		rounds:    deps.Rounds,
		betting:   deps.Betting,
		stats:     deps.Statistics,
		log:       log.Component("api"),
		validator: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(s.log))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, OK())
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Get("/games", s.listGames)
	router.Get("/leaderboard", s.leaderboard)

	router.Route("/rounds", func(r chi.Router) {
		r.Get("/", s.listRounds)
		r.Get("/{game}", s.getRound)
		r.Get("/{game}/ws", s.streamRound)
	})

	router.Group(func(r chi.Router) {
		r.Use(requireAccount)

		r.Route("/account", func(r chi.Router) {
			r.Post("/", s.openAccount)
			r.Get("/", s.getAccount)
			r.Get("/history", s.history)
			r.Get("/statistics", s.accountStatistics)
			r.Post("/credits", s.credit)
		})

		r.Route("/games/{game}/bets", func(r chi.Router) {
			r.Post("/", s.placeBet)
			r.Get("/", s.pendingBets)
			r.Delete("/{id}", s.cancelBet)
			r.Post("/{id}/cashout", s.cashOut)
		})
	})

	return router
}

// requestLog returns a logger tagged with the operation and request id
func (s *Server) requestLog(r *http.Request, op string) *logging.Logger {
	return s.log.With(
		logging.Op(op),
		"request_id", middleware.GetReqID(r.Context()),
	)
}

// fail renders err. Server-side failures are logged at error level, client
// mistakes at debug.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, log *logging.Logger, err error) {
	rsp := FromError(err)
	if rsp.Status >= http.StatusInternalServerError {
		log.Error("request failed", logging.Err(err))
	} else {
		log.Debug("request rejected", logging.Err(err))
	}
	render.Render(w, r, rsp)
}

// decode reads and validates a JSON body into req
func (s *Server) decode(w http.ResponseWriter, r *http.Request, log *logging.Logger, req any) bool {
	if err := render.DecodeJSON(r.Body, req); err != nil {
		log.Debug("failed to decode request body", logging.Err(err))
		render.Render(w, r, Error("failed to decode request body", http.StatusBadRequest))
		return false
	}

	if err := s.validator.Struct(req); err != nil {
		validateErr, ok := err.(validator.ValidationErrors)
		if !ok {
			render.Render(w, r, Error("invalid request", http.StatusBadRequest))
			return false
		}
		log.Debug("invalid request", logging.Err(err))
		render.Render(w, r, ValidationError(validateErr))
		return false
	}
	return true
}
