package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/cfiore016/go-connect/internal/auth"
	"github.com/cfiore016/go-connect/internal/config"
	"github.com/cfiore016/go-connect/internal/server"
	"github.com/cfiore016/go-connect/internal/store"
)

type App struct {
	log            *log.Logger
	db             store.Repository
	mux            *http.Server
	cs             *server.ChatServer
	tokens         *auth.TokenManager
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db store.Repository, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		db:             db,
		cs:             cs,
		tokens:         auth.NewTokenManager(cfg.SigningKey),
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("POST /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.HandleFunc("GET /api/messages/conversation", s.authMiddleware(s.getConversation))
	mux.HandleFunc("GET /api/messages/conversations", s.authMiddleware(s.getConversations))
	mux.HandleFunc("GET /api/messages/unread-count", s.authMiddleware(s.getUnreadCount))
	mux.HandleFunc("PATCH /api/messages/read", s.authMiddleware(s.markMessageRead))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
