// Package app hosts the chat HTTP/WebSocket process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/critterchat/critterchat/internal/services/account"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/roomlog"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
	"github.com/critterchat/critterchat/internal/services/chat/storage/sqlite"
	"github.com/critterchat/critterchat/internal/services/chat/unread"
	"golang.org/x/net/websocket"
)

const (
	tokenCookieName = "cc_token"

	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageBodyRunes = 2000
	maxHistoryLimit     = 200
)

// Config defines the inputs for the chat transport boundary.
type Config struct {
	HTTPAddr          string
	StoragePath       string
	SessionSecret     string
	AccountBase       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Deps are the collaborators the handler serves. Tests inject these directly;
// NewServer wires them from Config.
type Deps struct {
	Store    storage.Store
	Log      *roomlog.Log
	Unread   *unread.Aggregator
	Accounts *account.Service
	// AccountBase, when set, is the host rendered into federated
	// @user@host handles in payloads.
	AccountBase string
}

// Server hosts the chat HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	store           storage.Store
}

type authedUserContextKey struct{}

func userFromRequest(r *http.Request) (entity.User, bool) {
	user, ok := r.Context().Value(authedUserContextKey{}).(entity.User)
	return user, ok
}

// NewHandler creates the chat routes over the given collaborators.
func NewHandler(deps Deps) http.Handler {
	hub := newHub()
	mux := http.NewServeMux()

	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/api/register", deps.handleRegister)
	mux.HandleFunc("/api/login", deps.handleLogin)
	mux.Handle("/api/rooms", deps.requireUser(deps.handleRooms))
	mux.Handle("/api/rooms/public", deps.requireUser(deps.handlePublicRooms))
	mux.Handle("/api/settings", deps.requireUser(deps.handleSettings))
	mux.Handle("/api/preferences", deps.requireUser(deps.handlePreferences))

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		deps.serveWS(conn, hub)
	})
	mux.Handle("/ws", deps.requireUser(func(w http.ResponseWriter, r *http.Request) {
		wsHandler.ServeHTTP(w, r)
	}))

	return mux
}

// requireUser resolves the session token before the wrapped handler runs.
func (d Deps) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionTokenFromRequest(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		user, err := d.Accounts.Authenticate(r.Context(), token)
		if err != nil {
			log.Printf("chat: rejected session token from %s: %v", r.RemoteAddr, err)
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), authedUserContextKey{}, user)
		next(w, r.WithContext(ctx))
	})
}

func sessionTokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// NewServer builds a configured chat server over a SQLite store.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	store, err := sqlite.Open(config.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open chat storage: %w", err)
	}
	accounts, err := account.New(store, []byte(config.SessionSecret))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init account service: %w", err)
	}

	deps := Deps{
		Store:       store,
		Log:         roomlog.New(store),
		Unread:      unread.New(store),
		Accounts:    accounts,
		AccountBase: strings.TrimSpace(config.AccountBase),
	}
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		store:           store,
	}, nil
}

// Run creates and serves a chat server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init chat server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve chat: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("chat server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("chat server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close chat storage: %v", err)
		}
	}
}
