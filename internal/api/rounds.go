package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/fadedpez/wagerline/internal/games"
	"github.com/fadedpez/wagerline/internal/logging"
	"github.com/fadedpez/wagerline/pkg/entities"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type GamesResponse struct {
	Response
	Games []games.Definition `json:"games"`
}

type RoundsResponse struct {
	Response
	Rounds []entities.RoundSnapshot `json:"rounds"`
}

type RoundResponse struct {
	Response
	Round entities.RoundSnapshot `json:"round"`
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, GamesResponse{Response: OK(), Games: s.games.ListGames()})
}

func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, RoundsResponse{Response: OK(), Rounds: s.rounds.Snapshots()})
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.getRound")

	def, err := s.lookupShared(chi.URLParam(r, "game"))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}
	round, err := s.rounds.Round(def.Kind)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	render.Render(w, r, RoundResponse{Response: OK(), Round: round.Snapshot()})
}

// streamRound pushes every published snapshot of one round to a websocket
// client until either side goes away
func (s *Server) streamRound(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r, "api.streamRound")

	def, err := s.lookupShared(chi.URLParam(r, "game"))
	if err != nil {
		s.fail(w, r, log, err)
		return
	}
	round, err := s.rounds.Round(def.Kind)
	if err != nil {
		s.fail(w, r, log, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		log.Debug("websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go readPump(conn, cancel)

	log = log.With("game", string(def.Kind))
	log.Debug("round stream opened")

	snapshots := round.Subscribe(ctx)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				log.Debug("round stream closed")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug("failed to write snapshot", logging.Err(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
// The stream is cancelled once the client disconnects.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
