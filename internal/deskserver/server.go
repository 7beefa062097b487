// Package deskserver is a stand-in for the desk service used in development
// and tests. It serves the push channel and the REST endpoints deskwatch
// consumes, backed by a simulated Desk.
package deskserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"deskwatch/internal/clipboard"
	"deskwatch/internal/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Options struct {
	Addr string
	// UpdateInterval is the desk_update broadcast period; zero disables it.
	UpdateInterval time.Duration
	Desk           *Desk
}

// client serializes writes to one WebSocket connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Server serves the simulated desk over HTTP and WebSocket.
type Server struct {
	desk           *Desk
	server         *http.Server
	router         *mux.Router
	upgrader       websocket.Upgrader
	updateInterval time.Duration
	clients        map[*client]bool // Connected push channel clients
	clientsMu      sync.RWMutex
	stopChannel    chan struct{}
	isRunning      bool
	mu             sync.Mutex
}

func New(opts Options) *Server {
	if opts.Desk == nil {
		opts.Desk = NewDesk(uint64(time.Now().UnixNano()), nil)
	}
	if opts.Addr == "" {
		opts.Addr = common.DefaultMockAddr
	}
	s := &Server{
		desk:           opts.Desk,
		upgrader:       websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		updateInterval: opts.UpdateInterval,
		clients:        make(map[*client]bool),
		stopChannel:    make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	r.HandleFunc(common.PathDeskSnapshot, s.jsonHandler(func(r *http.Request) any { return s.desk.Snapshot() })).Methods("GET")
	r.HandleFunc(common.PathDeskPositions, s.jsonHandler(func(r *http.Request) any { return s.desk.Positions() })).Methods("GET")
	r.HandleFunc(common.PathDeskBots, s.jsonHandler(func(r *http.Request) any { return s.desk.Bots() })).Methods("GET")
	r.HandleFunc(common.PathDeskEvents, s.jsonHandler(func(r *http.Request) any {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		return s.desk.Events(limit)
	})).Methods("GET")
	r.HandleFunc(common.PathDeskPnL, s.jsonHandler(func(r *http.Request) any { return s.desk.DailyPnL() })).Methods("GET")
	r.HandleFunc(common.PathAlerts, s.jsonHandler(func(r *http.Request) any { return []any{} })).Methods("GET")

	r.HandleFunc(common.PathCopySnapshot, s.jsonHandler(func(r *http.Request) any {
		compact, _ := strconv.ParseBool(r.URL.Query().Get("compact"))
		return map[string]string{"text": s.desk.SnapshotText(compact)}
	})).Methods("GET")
	r.HandleFunc(common.PathCopyClaudeContext, s.jsonHandler(func(r *http.Request) any {
		return map[string]string{"text": s.desk.ContextText()}
	})).Methods("GET")
	r.HandleFunc(common.PathCopyPositions, s.jsonHandler(func(r *http.Request) any {
		return map[string]string{"text": s.desk.PositionsText()}
	})).Methods("GET")
	r.HandleFunc(common.PathCopyBacktest, s.handleCopyBacktest).Methods("POST")
	r.HandleFunc(common.PathBacktestRun, s.handleBacktestRun).Methods("POST")

	r.HandleFunc(common.PathClientCapabilities, s.jsonHandler(func(r *http.Request) any {
		return clipboard.CapabilitiesFromUserAgent(r.UserAgent(), r.TLS != nil)
	})).Methods("GET")
	r.HandleFunc("/api/market/clock", s.jsonHandler(func(r *http.Request) any { return marketClock(s.desk.now()) })).Methods("GET")
	r.HandleFunc("/api/{area}/{resource}", s.handleResource).Methods("GET")

	r.HandleFunc("/debug/drop", s.handleDrop).Methods("POST")

	s.router = r
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Desk returns the simulated desk.
func (s *Server) Desk() *Desk { return s.desk }

// Start runs the HTTP server and the update broadcaster.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("desk server is already running")
	}

	if s.updateInterval > 0 {
		go s.updater()
	}

	go func() {
		log.Info().Str("address", s.server.Addr).Msg("Starting desk server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Desk server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	close(s.stopChannel)
	s.DropClients()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown desk server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("Desk server stopped")
	return nil
}

// updater ticks the desk and broadcasts a desk_update every interval.
func (s *Server) updater() {
	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.desk.Tick()
			s.Broadcast(common.MsgTypeDeskUpdate)
		case <-s.stopChannel:
			return
		}
	}
}

// Broadcast sends the current snapshot tagged msgType to every client.
func (s *Server) Broadcast(msgType string) {
	data, err := s.frame(msgType)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal desk update for broadcast")
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		if err := c.send(data); err != nil {
			log.Warn().Err(err).Msg("Failed to send message to WebSocket client")
			c.conn.Close()
			delete(s.clients, c)
		}
	}
}

// ClientCount returns the number of connected push channel clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// DropClients closes every push channel connection.
func (s *Server) DropClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[*client]bool)
}

func (s *Server) frame(msgType string) ([]byte, error) {
	return json.Marshal(map[string]any{"type": msgType, "data": s.desk.Snapshot()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Push channel client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed client message")
			continue
		}
		if msg.Type != common.MsgTypeGetSnapshot {
			continue
		}
		frame, err := s.frame(common.MsgTypeSnapshot)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal snapshot")
			continue
		}
		if err := c.send(frame); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
}

func (s *Server) jsonHandler(fn func(r *http.Request) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fn(r))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// handleResource serves the slower read-only resources the client polls.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["area"] + "_" + vars["resource"]
	if vars["area"] == "themes" {
		name = "themes"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource":   name,
		"updated_at": s.desk.now().UTC().Format(time.RFC3339),
		"bots":       len(s.desk.Bots()),
	})
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	n := s.ClientCount()
	s.DropClients()
	writeJSON(w, http.StatusOK, map[string]int{"dropped": n})
}

type backtestRequest struct {
	Symbols       []string `json:"symbols"`
	DateStart     string   `json:"date_start"`
	DateEnd       string   `json:"date_end"`
	StopLossPct   float64  `json:"stop_loss_pct"`
	TakeProfitPct float64  `json:"take_profit_pct"`
	Side          string   `json:"side"`
}

// handleBacktestRun returns a canned result derived from the request so the
// client flow can be exercised; no simulation is performed.
func (s *Server) handleBacktestRun(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Symbols) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbols required"})
		return
	}
	trades := 10 * len(req.Symbols)
	wins := trades * 6 / 10
	avgWin := round2(req.TakeProfitPct * 10)
	avgLoss := round2(-req.StopLossPct * 10)
	writeJSON(w, http.StatusOK, map[string]any{
		"trades_taken":  trades,
		"win_count":     wins,
		"loss_count":    trades - wins,
		"win_rate":      round2(float64(wins) / float64(trades) * 100),
		"avg_win":       avgWin,
		"avg_loss":      avgLoss,
		"largest_win":   avgWin * 2,
		"largest_loss":  avgLoss * 2,
		"total_pnl":     round2(float64(wins)*avgWin + float64(trades-wins)*avgLoss),
		"profit_factor": round2(float64(wins) * avgWin / (float64(trades-wins) * -avgLoss)),
	})
}

func (s *Server) handleCopyBacktest(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	text := fmt.Sprintf("BACKTEST %v (%v to %v)\nTrades: %v  Win rate: %v%%  Total P&L: %v\n",
		req["strategy_name"], req["start_date"], req["end_date"], req["trades_taken"], req["win_rate"], req["total_pnl"])
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// marketClock reports US equity regular hours in New York time.
func marketClock(now time.Time) map[string]any {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	t := now.In(loc)
	open := time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, loc)
	closeAt := time.Date(t.Year(), t.Month(), t.Day(), 16, 0, 0, 0, loc)
	weekday := t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
	return map[string]any{
		"is_open":   weekday && !t.Before(open) && t.Before(closeAt),
		"timestamp": t.Format(time.RFC3339),
	}
}
