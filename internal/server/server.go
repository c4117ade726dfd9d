// Package server assembles the development relay: services, realtime hub,
// HTTP routes and the cleanup worker.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/auth"
	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/handlers"
	"github.com/adi-253/Talkie/chatsync/internal/metrics"
	"github.com/adi-253/Talkie/chatsync/internal/services"
	"github.com/adi-253/Talkie/chatsync/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// Server is the development relay.
type Server struct {
	cfg     *config.Config
	router  chi.Router
	hub     *websocket.Hub
	cleanup *services.CleanupService

	Conversations *services.ConversationService
	Messages      *services.MessageService
	Files         *services.FileService
}

// New wires the relay. A nil clock means the real clock.
func New(cfg *config.Config, m *metrics.Metrics, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	hub := websocket.NewHub(m)
	conversations := services.NewConversationService(clock)
	files := services.NewFileService()
	messages := services.NewMessageService(conversations, files, hub, clock)

	s := &Server{
		cfg:           cfg,
		hub:           hub,
		cleanup:       services.NewCleanupService(conversations, messages, clock, cfg.RelayCleanupInterval, cfg.RelayRetention),
		Conversations: conversations,
		Messages:      messages,
		Files:         files,
	}
	s.router = s.routes(m)
	return s
}

func (s *Server) routes(m *metrics.Metrics) chi.Router {
	conversationHandler := handlers.NewConversationHandler(s.Conversations)
	messageHandler := handlers.NewMessageHandler(s.Messages)
	fileHandler := handlers.NewFileHandler(s.Files)
	wsHandler := websocket.NewHandler(s.hub, s.Conversations, s.Messages)

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	log.Info().Strs("origins", s.cfg.CORSOrigins).Msg("CORS allowed origins")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Name"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.HealthCheck(s.hub))
	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeWS)
		r.Get("/files/{fileId}", fileHandler.Download)

		r.Route("/chat", func(r chi.Router) {
			r.Get("/workspace/{workspaceId}", conversationHandler.GetWorkspaceChat)
			r.Get("/{chatId}/messages", messageHandler.ListMessages)
			r.Post("/{chatId}/messages", messageHandler.SendMessage)
			r.Put("/messages/{messageId}", messageHandler.EditMessage)
			r.Delete("/messages/{messageId}", messageHandler.DeleteMessage)
		})
	})

	return r
}

// Handler returns the relay's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the hub and the cleanup worker. Stop undoes it.
func (s *Server) Start() {
	go s.hub.Run()
	go s.cleanup.Start()
}

// Stop disconnects every realtime client and stops the cleanup worker.
func (s *Server) Stop() {
	s.cleanup.Stop()
	s.hub.Stop()
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.Start()
	defer s.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.ServerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Talkie relay starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("relay stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down relay: %w", err)
	}
	return nil
}
