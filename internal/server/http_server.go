package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yunjin-lab/archive-chat/internal/chat"
	"github.com/yunjin-lab/archive-chat/internal/export"
)

// Server owns the process-scoped state of the relay: the room and connection
// registries, the hub, the session manager, and the HTTP listener.
type Server struct {
	cfg      *Config
	log      zerolog.Logger
	hub      *Hub
	rooms    *chat.RoomStore
	session  *chat.Manager
	origins  *originPolicy
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New assembles a Server from configuration. Nothing is listening until
// Start is called.
func New(cfg *Config, log zerolog.Logger) *Server {
	hub := NewHub(log)
	rooms := chat.NewRoomStore()
	conns := chat.NewConnTable()

	gate := chat.DefaultAdminGate()
	gate.Room = cfg.AdminRoom
	gate.User = cfg.AdminUser

	s := &Server{
		cfg:     cfg,
		log:     log,
		hub:     hub,
		rooms:   rooms,
		session: chat.NewManager(rooms, conns, hub, export.Build, gate, log),
		origins: newOriginPolicy(cfg.AllowedOrigins, log),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start listens and serves until the server is shut down. It returns nil when
// the shutdown was requested through Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("relay listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, drains in-flight HTTP requests, and
// closes every WebSocket client, waiting up to timeout for each phase.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info().Msg("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpErr := s.httpSrv.Shutdown(ctx)
	if httpErr != nil {
		s.log.Warn().Err(httpErr).Msg("HTTP server shutdown error")
	}

	if err := s.hub.Shutdown(timeout); err != nil {
		return err
	}
	return httpErr
}

// Handler exposes the route mux, primarily for tests running against
// httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}
