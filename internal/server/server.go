// Package server provides the operator HTTP surface of the vault.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/modules/persistence"
	"github.com/aristath/sentinel-vault/internal/state"
)

// VaultReader is the read side of the vault the server exposes
type VaultReader interface {
	Summary() domain.VaultSummary
	Markets() []domain.MarketValuation
	Market(id domain.MarketID) (domain.MarketValuation, error)
	FeeState() state.FeeState
	Route() []state.RouteEntry
}

// JournalReader lists committed units
type JournalReader interface {
	Journal(ctx context.Context, limit int) ([]persistence.JournalEntry, error)
}

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	Vault   VaultReader
	Journal JournalReader // Optional
	StateDB *database.DB  // Optional, checked by the health endpoint
	Bus     *events.Bus   // Optional, enables the event stream
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	port   int
	log    zerolog.Logger

	vaultHandlers  *VaultHandlers
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		port:           cfg.Port,
		log:            cfg.Log.With().Str("component", "server").Logger(),
		vaultHandlers:  NewVaultHandlers(cfg.Vault, cfg.Journal, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.StateDB, cfg.Log),
	}
	if cfg.Bus != nil {
		s.eventsStream = NewEventsStreamHandler(cfg.Bus, cfg.Log)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the event stream is long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", s.systemHandlers.HandleHealth)
			r.Get("/vault", s.vaultHandlers.HandleSummary)
			r.Get("/vault/fees", s.vaultHandlers.HandleFees)
			r.Get("/vault/route", s.vaultHandlers.HandleRoute)
			r.Get("/vault/journal", s.vaultHandlers.HandleJournal)
			r.Get("/markets", s.vaultHandlers.HandleMarkets)
			r.Get("/markets/{id}", s.vaultHandlers.HandleMarket)
		})

		if s.eventsStream != nil {
			r.Get("/events/stream", s.eventsStream.ServeHTTP)
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
