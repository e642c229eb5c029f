// Package websocket streams live sync snapshots to connected clients. Each
// connection holds exactly one lease, keyed by the route's kind and screen.
package websocket

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/application/livesync"
	"github.com/jclararobles/AppListVideos/infrastructure/identity"
)

// ServerConfig holds WebSocket server configuration
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	// MaxConnectionsPerUser caps concurrent connections for one identity
	MaxConnectionsPerUser int
}

// DefaultServerConfig returns default WebSocket server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:        1024,
		WriteBufferSize:       1024,
		MaxConnectionsPerUser: 10,
	}
}

// AllowOrigins returns a CheckOrigin func accepting the listed origins.
// "*" accepts any origin.
func AllowOrigins(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Server upgrades requests and tracks live clients
type Server struct {
	subscriber *livesync.Subscriber
	upgrader   websocket.Upgrader
	config     *ServerConfig
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
}

// NewServer creates a new WebSocket server
func NewServer(subscriber *livesync.Subscriber, config *ServerConfig, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		logger:  logger,
		clients: make(map[string]map[*Client]struct{}),
	}
}

// HandleWebSocket handles GET /ws/{kind}/{screen}. It must sit behind the
// authentication middleware.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	kind := livesync.Kind(chi.URLParam(r, "kind"))
	if kind != livesync.KindVideos && kind != livesync.KindLists {
		http.Error(w, "Unknown sync kind", http.StatusNotFound)
		return
	}
	screen := chi.URLParam(r, "screen")

	if s.config.MaxConnectionsPerUser > 0 && s.GetConnectionCount(userID) >= s.config.MaxConnectionsPerUser {
		s.logger.Warn("Connection limit exceeded for user",
			zap.String("userID", userID),
			zap.Int("currentConnections", s.GetConnectionCount(userID)),
		)
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	// The request context ends when this handler returns, so the connection
	// gets its own, carrying only the identity.
	ctx := identity.WithIdentity(context.Background(), userID)
	client := newClient(ctx, userID, kind, screen, conn, s)
	s.register(client)

	if err := client.start(); err != nil {
		s.logger.Warn("Failed to start live sync for connection", zap.String("userID", userID), zap.Error(err))
		return
	}

	s.logger.Info("New WebSocket connection established",
		zap.String("userID", userID),
		zap.String("connectionID", client.id),
		zap.String("kind", string(kind)),
		zap.String("screen", screen),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}

// GetConnectionCount returns the number of live connections for userID
func (s *Server) GetConnectionCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients[userID])
}

// Close disconnects every client
func (s *Server) Close() {
	s.mu.Lock()
	var all []*Client
	for _, set := range s.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	s.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c.userID] == nil {
		s.clients[c.userID] = make(map[*Client]struct{})
	}
	s.clients[c.userID][c] = struct{}{}
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.clients[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(s.clients, c.userID)
	}
}
