package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/quizsync/go/internal/quiz/client"
)

// Service is the quiz gateway: it serves browsers over WebSocket, running a
// SessionClient per connection against the shared store.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	config            Config
}

// Config holds configuration for the quiz gateway service
type Config struct {
	Port             string
	AllowedOrigins   []string
	JWTSecret        string
	ConnectionConfig ConnectionConfig
	Clients          client.Config
}

// DefaultConfig returns default configuration for the quiz gateway
func DefaultConfig() Config {
	return Config{
		Port:             "8081",
		AllowedOrigins:   []string{"*"},
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

func NewService(config Config) (*Service, error) {
	if config.Clients.Store == nil {
		return nil, fmt.Errorf("gateway needs a session store")
	}
	if config.Clients.Supplier == nil {
		return nil, fmt.Errorf("gateway needs a question supplier")
	}

	connConfig := config.ConnectionConfig
	connConfig.CheckOrigin = originChecker(config.AllowedOrigins)

	connectionManager := NewConnectionManager(connConfig, config.Clients)
	wsHandler := NewWebSocketHandler(connectionManager, NewAuthenticator(config.JWTSecret))
	if wsHandler.auth.DevMode() {
		log.Warn().Msg("JWT_SECRET is not set, trusting player_id from the query string")
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		config:            config,
	}, nil
}

// Start blocks until ctx is cancelled, then disconnects every client.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting quiz gateway service")
	<-ctx.Done()
	log.Info().Msg("quiz gateway service shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	log.Info().Msg("quiz gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and health routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Printf("Failed to write health check response: %v", err)
		}
	})
	log.Info().Msg("quiz gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

// Handler returns the full HTTP handler: routes wrapped with CORS and h2c.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// NewServer builds the HTTP server for the gateway.
func (s *Service) NewServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
