// Package localui serves the chat UI API on the loopback interface.
//
// The server binds 127.0.0.1 and ::1 only; it is not reachable from other
// hosts. All state lives behind the session controller and the config cache,
// so handlers stay thin request/response adapters.
package localui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mayapp/may/internal/ai/provider"
	"github.com/mayapp/may/internal/chat/session"
	"github.com/mayapp/may/internal/chat/stream"
	"github.com/mayapp/may/internal/config"
)

const defaultPort = 23917

type Options struct {
	Logger *slog.Logger
	Port   int

	// Session owns conversation state; required.
	Session *session.Controller

	// Reducer drives streaming turns against the model provider; required.
	Reducer *stream.Reducer

	// Config is the read-through settings cache shared with the reducer.
	Config *config.Cache

	// Catalog lists the selectable models.
	Catalog *provider.Catalog
}

type Server struct {
	log *slog.Logger

	port    int
	sess    *session.Controller
	reducer *stream.Reducer
	cfg     *config.Cache
	catalog *provider.Catalog

	mu  sync.Mutex
	ln4 net.Listener
	ln6 net.Listener
	srv *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Session == nil {
		return nil, errors.New("missing Session")
	}
	if opts.Reducer == nil {
		return nil, errors.New("missing Reducer")
	}
	if opts.Config == nil {
		return nil, errors.New("missing Config")
	}
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid Port: %d", port)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = provider.DefaultCatalog()
	}

	return &Server{
		log:     logger,
		port:    port,
		sess:    opts.Session,
		reducer: opts.Reducer,
		cfg:     opts.Config,
		catalog: catalog,
	}, nil
}

// Handler returns the full route table. It is exposed separately from Start
// so tests can drive it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("POST /api/conversations/{id}/select", s.handleSelectConversation)
	mux.HandleFunc("POST /api/conversations/{id}/rename", s.handleRenameConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	mux.HandleFunc("POST /api/chat/send", s.handleChatSend)

	mux.HandleFunc("POST /api/clipboard", s.handleAddClipboardItem)
	mux.HandleFunc("DELETE /api/clipboard/{id}", s.handleRemoveClipboardItem)
	mux.HandleFunc("POST /api/clipboard/reorder", s.handleReorderClipboard)
	mux.HandleFunc("GET /api/clipboard/export/markdown", s.handleExportMarkdown)
	mux.HandleFunc("GET /api/clipboard/export/print", s.handleExportPrint)

	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handleSetConfig)
	mux.HandleFunc("GET /api/models", s.handleListModels)

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	addr4 := net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", s.port))
	ln4, err := net.Listen("tcp", addr4)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr4, err)
	}
	addr6 := net.JoinHostPort("::1", fmt.Sprintf("%d", s.port))
	ln6, err := net.Listen("tcp", addr6)
	if err != nil {
		_ = ln4.Close()
		return fmt.Errorf("listen %s: %w", addr6, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.ln4 = ln4
	s.ln6 = ln6

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	go func() {
		if err := s.srv.Serve(ln4); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("local ui server stopped (ipv4)", "error", err)
		}
	}()
	go func() {
		if err := s.srv.Serve(ln6); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("local ui server stopped (ipv6)", "error", err)
		}
	}()

	s.log.Info("local ui listening", "port", s.port)
	return nil
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
	if s.ln4 != nil {
		_ = s.ln4.Close()
	}
	if s.ln6 != nil {
		_ = s.ln6.Close()
	}
	s.srv = nil
	s.ln4 = nil
	s.ln6 = nil
	return nil
}

func (s *Server) Port() int {
	if s == nil {
		return 0
	}
	return s.port
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResp struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}
