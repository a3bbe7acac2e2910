package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatapp/internal/config"
	"github.com/npezzotti/go-chatapp/internal/database"
	"github.com/npezzotti/go-chatapp/internal/responder"
	"github.com/npezzotti/go-chatapp/internal/server"
	"github.com/npezzotti/go-chatapp/internal/stats"
	"go.uber.org/zap"
)

type ChatApp struct {
	log            *zap.Logger
	db             database.ChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	responder      *responder.Responder
	stats          stats.StatsProvider
	tokens         TokenProvider
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewChatApp registers the API routes on mux and wraps it with CORS, access
// logging and panic recovery.
func NewChatApp(mux *http.ServeMux, logger *zap.Logger, cs *server.ChatServer, db database.ChatRepository, r *responder.Responder, su stats.StatsProvider, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		responder:      r,
		stats:          su,
		tokens:         NewTokenProvider(cfg),
		allowedOrigins: cfg.AllowedOrigins,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	su.RegisterMetric(stats.ConversationsCreated)
	su.RegisterMetric(stats.MessagesPosted)

	mux.HandleFunc("POST /authenticate", s.negotiate(s.authenticate))
	mux.HandleFunc("GET /conversations", s.negotiate(s.authMiddleware(s.listConversations)))
	mux.HandleFunc("POST /conversations", s.negotiate(s.authMiddleware(s.createConversation)))
	mux.HandleFunc("GET /conversations/{id}", s.negotiate(s.authMiddleware(s.getConversation)))
	mux.HandleFunc("PUT /conversations/{id}", s.negotiate(s.authMiddleware(s.renameConversation)))
	mux.HandleFunc("POST /conversations/{id}", s.negotiate(s.authMiddleware(s.postMessage)))
	mux.HandleFunc("GET /openapi.json", s.openapi)
	mux.HandleFunc("GET /docs", s.docs)
	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /cable", s.serveCable)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Accept"}),
	)(mux)

	h = handlers.CombinedLoggingHandler(zap.NewStdLog(logger.Named("access")).Writer(), h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped root handler.
func (s *ChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *ChatApp) Start() error {
	s.log.Info("starting server", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *ChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
}
