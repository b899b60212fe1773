package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/cipherdeck/cipherdeck/internal/table"
)

// Server exposes the table registry over WebSocket (actions plus event push)
// and plain HTTP read views.
type Server struct {
	cfg      *Config
	registry *table.Registry
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[*Connection]bool

	httpServer *http.Server
}

// New creates a server around the registry and subscribes it to the event
// bus for fan-out.
func New(cfg *Config, registry *table.Registry, logger *log.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			// Browser clients come from anywhere; identity is asserted per
			// connection, not per origin.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
	}
	registry.Bus().Subscribe(s)
	return s
}

// Bootstrap creates the config-declared tables.
func (s *Server) Bootstrap() error {
	for _, tc := range s.cfg.Tables {
		id, err := s.registry.CreateTable(tc.SmallBlind, tc.BigBlind)
		if err != nil {
			return err
		}
		s.logger.Info("boot table created", "name", tc.Name, "table_id", id)
	}
	return nil
}

// OnEvent fans a table event out to every connection seated at that table.
func (s *Server) OnEvent(event table.Event) {
	msg, err := NewMessage(MsgEvent, EventData{
		Type:    string(event.EventType()),
		TableID: event.TableID(),
		Payload: event,
	})
	if err != nil {
		s.logger.Error("marshal event", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.Table() == event.TableID() {
			conn.Send(msg)
		}
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/tables", func(r chi.Router) {
		r.Get("/", s.handleListTables)
		r.Post("/", s.handleCreateTable)
		r.Route("/{tableID}", func(r chi.Router) {
			r.Get("/", s.handleTableSummary)
			r.Get("/seats", s.handleTableSeats)
			r.Get("/community", s.handleTableCommunity)
			r.Get("/winner", s.handleTableWinner)
		})
	})
	return r
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		s.closeConnections()
	}()

	s.logger.Info("listening", "addr", s.cfg.ListenAddr())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		_ = conn.Close()
	}
	s.connections = make(map[*Connection]bool)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, s.registry, s.logger)
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("client connected", "total", total)

	conn.Start()

	go func() {
		<-conn.Done()
		s.mu.Lock()
		delete(s.connections, conn)
		total := len(s.connections)
		s.mu.Unlock()

		// A vanished client between hands frees its seat; mid-hand the
		// registry folds it out like any other leave.
		if player, tableID := conn.Player(), conn.Table(); player != "" && tableID != "" {
			if err := s.registry.LeaveTable(tableID, player); err != nil {
				s.logger.Debug("cleanup leave failed", "player", player, "error", err)
			}
		}
		_ = conn.Close()
		s.logger.Info("client disconnected", "total", total)
	}()
}
