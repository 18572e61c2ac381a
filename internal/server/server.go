// Package server exposes LinguaLive over HTTP.
//
// Routes:
//
//   - GET /ws upgrades to a WebSocket. The client receives every broadcast
//     message and may send control commands.
//   - GET /api/languages lists the selectable target languages.
//   - GET /healthz and GET /readyz are the probes of [health.Handler].
//   - GET /metrics serves Prometheus metrics when a handler is configured.
//   - / serves the static browser client when a directory is configured.
//
// Every route runs behind [observe.Middleware].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/MrWong99/lingualive/internal/broadcast"
	"github.com/MrWong99/lingualive/internal/config"
	"github.com/MrWong99/lingualive/internal/health"
	"github.com/MrWong99/lingualive/internal/observe"
	"github.com/MrWong99/lingualive/pkg/types"
)

const (
	defaultPingInterval = 30 * time.Second
	pingTimeout         = 10 * time.Second

	// readLimit caps inbound control messages.
	readLimit = 4096

	readHeaderTimeout = 10 * time.Second
)

// Controller is the part of the session the control channel drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetLanguage(lang string)
	Language() string
	StatusMessage() types.OutboundMessage
}

// Hub is the client set broadcast messages go to.
type Hub interface {
	Register(c broadcast.Client, greeting ...types.OutboundMessage) error
	Unregister(c broadcast.Client)
}

// Config holds the dependencies of a [Server].
type Config struct {
	Controller Controller
	Hub        Hub

	// Languages is the initial target language list; DefaultLanguage must be
	// one of them. Both can be replaced with [Server.SetLanguages].
	Languages       []config.Language
	DefaultLanguage string

	// Health serves the probes. Optional.
	Health *health.Handler

	// MetricsHandler is mounted at /metrics. Optional.
	MetricsHandler http.Handler

	// StaticDir is served at /. Optional.
	StaticDir string

	// AllowedOrigins are host patterns accepted for cross-origin WebSocket
	// handshakes.
	AllowedOrigins []string

	// PingInterval is the keepalive period. Zero uses 30s; negative disables
	// pings.
	PingInterval time.Duration

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// catalog is the published language list.
type catalog struct {
	Default   string            `json:"default"`
	Current   string            `json:"current"`
	Languages []config.Language `json:"languages"`
}

// Server is the HTTP front end.
type Server struct {
	cfg     Config
	metrics *observe.Metrics
	logger  *slog.Logger
	handler http.Handler

	langs atomic.Pointer[catalog]

	httpSrv atomic.Pointer[http.Server]
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Controller == nil {
		errs = append(errs, errors.New("controller is required"))
	}
	if cfg.Hub == nil {
		errs = append(errs, errors.New("hub is required"))
	}
	if len(cfg.Languages) == 0 {
		errs = append(errs, errors.New("at least one language is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}

	s := &Server{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if s.metrics == nil {
		s.metrics = observe.Discard()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if err := s.SetLanguages(cfg.Languages, cfg.DefaultLanguage); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}
	if cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}
	s.handler = observe.Middleware(s.metrics)(mux)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// SetLanguages replaces the selectable languages. def must be in list.
func (s *Server) SetLanguages(list []config.Language, def string) error {
	if !slices.ContainsFunc(list, func(l config.Language) bool { return l.Code == def }) {
		return fmt.Errorf("server: default language %q is not in the language list", def)
	}
	s.langs.Store(&catalog{Default: def, Languages: slices.Clone(list)})
	return nil
}

// SupportsLanguage reports whether code is selectable.
func (s *Server) SupportsLanguage(code string) bool {
	return slices.ContainsFunc(s.langs.Load().Languages, func(l config.Language) bool { return l.Code == code })
}

// Serve accepts connections on ln until ctx is cancelled or [Server.Shutdown]
// is called. With certFile and keyFile set it serves TLS.
func (s *Server) Serve(ctx context.Context, ln net.Listener, certFile, keyFile string) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpSrv.Store(srv)

	s.logger.Info("server: listening", "addr", ln.Addr().String(), "tls", certFile != "")
	var err error
	if certFile != "" {
		err = srv.ServeTLS(ln, certFile, keyFile)
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: %w", err)
}

// Shutdown stops accepting connections and waits for plain HTTP requests.
// WebSocket connections are hijacked and must be closed through the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	srv := s.httpSrv.Load()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	c := *s.langs.Load()
	c.Current = s.cfg.Controller.Language()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(c); err != nil {
		s.logger.Warn("server: encode languages", "err", err)
	}
}
