// Package app wires all LinguaLive subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves clients until its context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithTelemetry,
// WithLogger, etc.). Providers always come from the caller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingualive/internal/broadcast"
	"github.com/MrWong99/lingualive/internal/config"
	"github.com/MrWong99/lingualive/internal/health"
	"github.com/MrWong99/lingualive/internal/observe"
	"github.com/MrWong99/lingualive/internal/pipeline"
	"github.com/MrWong99/lingualive/internal/resilience"
	"github.com/MrWong99/lingualive/internal/server"
	"github.com/MrWong99/lingualive/internal/session"
	"github.com/MrWong99/lingualive/internal/transcript"
	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/provider/translate"
)

// Version is reported as the telemetry service version. Set at build time
// with -ldflags "-X github.com/MrWong99/lingualive/internal/app.Version=...".
var Version = "dev"

// NamedDecoder is one speech recognition backend.
type NamedDecoder struct {
	Name     string
	Provider decoder.Provider
}

// Providers holds the constructed provider instances. Populated by main.go
// via the config registry.
type Providers struct {
	// Device is the audio source.
	Device audio.Device

	// Decoders are tried in order; the first is the primary.
	Decoders []NamedDecoder

	// Translator and its provider name.
	Translator     translate.Translator
	TranslatorName string
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	level     *slog.LevelVar
	telemetry *observe.Telemetry

	// Subsystems, initialised in New and torn down in Shutdown.
	hub       *broadcast.Broadcaster
	glossary  *transcript.Glossary
	guarded   *resilience.GuardedTranslator
	decoders  *resilience.DecoderFallback
	stage     *pipeline.TranslationStage
	ctrl      *session.Controller
	srv       *server.Server
	watcher   *config.Watcher
	watchPath string

	addr atomic.Pointer[string]

	// closers run in order during Shutdown.
	closers []closer

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLevelVar lets hot reload change the log level of the handler backed by v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithTelemetry injects telemetry instead of initialising the OpenTelemetry
// SDK from config.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithConfigFile watches path and applies hot-reloadable changes.
func WithConfigFile(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := validateProviders(providers); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if a.telemetry == nil {
		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:      cfg.Telemetry.ServiceName,
			ServiceVersion:   Version,
			TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.telemetry = tel
		a.closers = append(a.closers, closer{"telemetry", tel.Shutdown})
	}
	metrics := a.telemetry.Metrics
	if metrics == nil {
		metrics = observe.Discard()
	}

	// ── 2. Broadcaster ───────────────────────────────────────────────────
	a.hub = broadcast.New(
		broadcast.WithQueueSize(cfg.Server.ClientQueue),
		broadcast.WithWriteTimeout(cfg.Server.WriteTimeout),
		broadcast.WithLogger(a.logger),
		broadcast.WithMembershipHook(a.clientsChanged),
	)

	// ── 3. Resilience around providers ───────────────────────────────────
	a.guarded = resilience.NewGuardedTranslator(providers.Translator, resilience.Config{
		Name:         providers.TranslatorName,
		MaxFailures:  cfg.Translation.CircuitBreaker.MaxFailures,
		ResetTimeout: cfg.Translation.CircuitBreaker.ResetTimeout,
		Logger:       a.logger,
		OnStateChange: func(name string, _, to resilience.State) {
			metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
	primary := providers.Decoders[0]
	a.decoders = resilience.NewDecoderFallback(primary.Name, primary.Provider, resilience.Config{Logger: a.logger},
		func(name string) {
			a.logger.Info("speech recognition backend selected", "provider", name)
		})
	for _, d := range providers.Decoders[1:] {
		a.decoders.Add(d.Name, d.Provider)
	}

	// ── 4. Pipeline stages ───────────────────────────────────────────────
	a.glossary = transcript.NewGlossary(cfg.Recognition.Glossary, transcript.WithLogger(a.logger))
	a.stage = pipeline.NewTranslationStage(a.guarded, a.hub,
		pipeline.WithMaxInFlight(cfg.Translation.MaxInFlight),
		pipeline.WithTimeout(cfg.Translation.Timeout),
		pipeline.WithLanguage(cfg.Translation.DefaultLanguage),
		pipeline.WithTranslationLogger(a.logger),
		pipeline.WithTranslationMetrics(metrics),
	)

	// ── 5. Session ───────────────────────────────────────────────────────
	ctrl, err := session.NewController(session.Config{
		Device:   providers.Device,
		Decoders: a.decoders,
		DecoderConfig: decoder.Config{
			SampleRate: cfg.Audio.SampleRate,
			Language:   cfg.Recognition.Language,
			Keywords:   slices.Clone(cfg.Recognition.Glossary),
		},
		Translation:  a.stage,
		Publisher:    a.hub,
		QueueSize:    cfg.Audio.QueueSize,
		Corrector:    a.glossary,
		StopWhenIdle: cfg.Session.StopWhenIdle,
		AutoStart:    cfg.Session.AutoStart,
		Metrics:      metrics,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.ctrl = ctrl

	// ── 6. HTTP server ───────────────────────────────────────────────────
	probes := health.New(
		health.ErrorCheck("recognition", a.ctrl.RecognitionErr),
		health.BreakerCheck("translator", a.guarded.Breaker()),
	)
	a.srv, err = server.New(server.Config{
		Controller:      a.ctrl,
		Hub:             a.hub,
		Languages:       cfg.Translation.Languages,
		DefaultLanguage: cfg.Translation.DefaultLanguage,
		Health:          probes,
		MetricsHandler:  a.telemetry.Handler,
		StaticDir:       cfg.Server.StaticDir,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		PingInterval:    cfg.Server.PingInterval,
		Metrics:         metrics,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 7. Config hot reload ─────────────────────────────────────────────
	if a.watchPath != "" {
		w, err := config.NewWatcher(a.watchPath, a.Reload, config.WithWatcherLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.watcher = w
	}

	// Shutdown order: the session first so clients see "listening stopped",
	// then the clients, the listener and the translation workers. Telemetry
	// was registered first and flushes last.
	a.closers = append([]closer{
		{"config watcher", func(context.Context) error {
			if a.watcher != nil {
				a.watcher.Stop()
			}
			return nil
		}},
		{"session", func(context.Context) error { return a.ctrl.Close() }},
		{"clients", func(context.Context) error { return a.hub.Close() }},
		{"http server", a.srv.Shutdown},
		{"translation", func(context.Context) error { a.stage.Close(); return nil }},
	}, a.closers...)

	return a, nil
}

func validateProviders(p *Providers) error {
	if p == nil {
		return errors.New("providers are required")
	}
	var errs []error
	if p.Device == nil {
		errs = append(errs, errors.New("audio device is required"))
	}
	if len(p.Decoders) == 0 {
		errs = append(errs, errors.New("at least one speech recognition provider is required"))
	}
	for i, d := range p.Decoders {
		if d.Provider == nil {
			errs = append(errs, fmt.Errorf("speech recognition provider %d (%q) is nil", i, d.Name))
		}
	}
	if p.Translator == nil {
		errs = append(errs, errors.New("translator is required"))
	}
	return errors.Join(errs...)
}

// clientsChanged forwards membership changes to the session. The controller
// is set before any client can connect.
func (a *App) clientsChanged(count int, reason broadcast.Reason) {
	a.logger.Debug("clients changed", "clients", count, "reason", reason.String())
	if a.ctrl != nil {
		a.ctrl.ClientsChanged(count, reason)
	}
}

// Controller exposes the session controller.
func (a *App) Controller() *session.Controller { return a.ctrl }

// Addr returns the bound listen address once Run has started listening, or "".
func (a *App) Addr() string {
	if p := a.addr.Load(); p != nil {
		return *p
	}
	return ""
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves clients until ctx is
// cancelled, then returns ctx.Err(). The caller tears down with Shutdown.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	addr := ln.Addr().String()
	a.addr.Store(&addr)

	var certFile, keyFile string
	if tls := a.cfg.Server.TLS; tls != nil {
		certFile, keyFile = tls.CertFile, tls.KeyFile
	}

	// Connections outlive ctx so Shutdown can say goodbye to clients.
	base := context.WithoutCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.srv.Serve(base, ln, certFile, keyFile)
	})

	a.logger.Info("app running", "addr", addr, "languages", len(a.cfg.Translation.Languages))

	// gctx ends with ctx or when Serve fails. After a signal Serve keeps
	// running until Shutdown stops it.
	<-gctx.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable differences between old and new. Other
// changes are logged and take effect on restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.HasChanges() {
		a.logger.Info("config reloaded, no hot-reloadable changes")
		return
	}

	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(d.NewLogLevel.Level())
		}
		a.logger.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.LanguagesChanged || d.DefaultLanguageChanged {
		tr := new.Translation
		if err := a.srv.SetLanguages(tr.Languages, tr.DefaultLanguage); err != nil {
			a.logger.Warn("config reload: languages not applied", "err", err)
		} else {
			if !tr.HasLanguage(a.ctrl.Language()) {
				a.ctrl.SetLanguage(tr.DefaultLanguage)
			}
			a.logger.Info("target languages changed", "languages", tr.LanguageCodes(), "default", tr.DefaultLanguage)
		}
	}

	if d.GlossaryChanged {
		a.glossary.SetTerms(new.Recognition.Glossary)
		a.logger.Info("glossary changed", "terms", a.glossary.Len())
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		var errs []error
		for i, c := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := c.fn(ctx); err != nil {
				a.logger.Warn("closer error", "closer", c.name, "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		shutdownErr = errors.Join(errs...)
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
