// Package api exposes the read-only HTTP/WebSocket inspection surface
// named by §4.9: /health, /ring (a snapshot of Self/Pred/SuccList), and
// /ws (a gorilla/websocket feed of ring-update events). It carries no DHT
// client surface — chunks are written only through the gRPC SetChunk call — and
// is modeled on the teacher's internal/api server, stripped of the
// grpc-gateway proxy that required generated protobuf stubs this module
// does not have.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringkeeper/chordkeep/internal/chordstate"
	"github.com/ringkeeper/chordkeep/internal/storage"
)

// RingSnapshot is the JSON body served by /ring.
type RingSnapshot struct {
	Self        string   `json:"self"`
	Predecessor *string  `json:"predecessor"`
	Successors  []string `json:"successors"`
	Fingers     []string `json:"fingers"`
}

// StateProvider supplies the current ring snapshot. Implemented by
// *node.Node; declared here to avoid a dependency on the node package.
type StateProvider interface {
	State() chordstate.State
}

// Server is the HTTP inspection server.
type Server struct {
	httpServer *http.Server
	wsHub      *WebSocketHub
	provider   StateProvider
	store      *storage.Memory
	logger     zerolog.Logger
}

// Config configures the HTTP listen address.
type Config struct {
	HTTPPort int
}

// NewServer builds an inspection Server. provider may be nil and supplied
// later via SetProvider, since the node providing state is typically
// constructed after the server (it needs the server's WebSocketHub as a
// supervisor.Broadcaster). store may be nil if the node has no local
// DataHolder to report stats for.
func NewServer(cfg Config, provider StateProvider, store *storage.Memory, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "http_api").Logger()
	return &Server{
		wsHub:    NewWebSocketHub(logger),
		provider: provider,
		store:    store,
		logger:   logger,
	}
}

// WebSocketHub exposes the hub so the supervisor/stabilizer can be wired
// as its Broadcaster.
func (s *Server) WebSocketHub() *WebSocketHub { return s.wsHub }

// SetProvider wires the state provider after construction, breaking the
// startup ordering cycle between the server and the node it serves.
func (s *Server) SetProvider(provider StateProvider) { s.provider = provider }

// Start begins serving on port, in a background goroutine.
func (s *Server) Start(port int) error {
	go s.wsHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ring", s.ringHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/ws", s.wsHub.HandleWebSocket)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      corsMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()

	s.logger.Info().Int("port", port).Msg("http inspection server started")
	return nil
}

// Stop gracefully shuts the server and its WebSocket hub down.
func (s *Server) Stop() error {
	s.wsHub.Stop()

	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) ringHandler(w http.ResponseWriter, r *http.Request) {
	state := s.provider.State()

	var pred *string
	if state.Pred != nil {
		p := state.Pred.String()
		pred = &p
	}

	succs := make([]string, 0, state.SuccList.Len())
	for _, a := range state.SuccList.Slice() {
		succs = append(succs, a.String())
	}

	fingers := make([]string, 0, state.FingerList.Len())
	for _, a := range state.FingerList.Slice() {
		fingers = append(fingers, a.String())
	}

	snap := RingSnapshot{
		Self:        state.Self.String(),
		Predecessor: pred,
		Successors:  succs,
		Fingers:     fingers,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode ring snapshot")
	}
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.store == nil {
		_, _ = w.Write([]byte(`{}`))
		return
	}
	if err := json.NewEncoder(w).Encode(s.store.Stats()); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode storage stats")
	}
}

func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
