// Command lingualive is the main entry point for the LinguaLive live
// transcription and translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/lingualive/internal/app"
	"github.com/MrWong99/lingualive/internal/config"
	"github.com/MrWong99/lingualive/pkg/audio"
	"github.com/MrWong99/lingualive/pkg/audio/capture"
	"github.com/MrWong99/lingualive/pkg/audio/discord"
	"github.com/MrWong99/lingualive/pkg/provider/decoder"
	"github.com/MrWong99/lingualive/pkg/provider/decoder/deepgram"
	"github.com/MrWong99/lingualive/pkg/provider/decoder/whisper"
	"github.com/MrWong99/lingualive/pkg/provider/translate"
	"github.com/MrWong99/lingualive/pkg/provider/translate/anyllm"
	"github.com/MrWong99/lingualive/pkg/provider/translate/azure"
	oaitranslate "github.com/MrWong99/lingualive/pkg/provider/translate/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lingualive: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingualive: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("lingualive starting",
		"version", app.Version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	var cleanup cleanups
	defer cleanup.run()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, &cleanup)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{app.WithLogger(logger), app.WithLevelVar(level)}
	if *watch {
		opts = append(opts, app.WithConfigFile(*configPath))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// cleanups closes resources that providers depend on but do not own, such as
// the Discord gateway session.
type cleanups []func() error

func (c *cleanups) add(fn func() error) { *c = append(*c, fn) }

func (c *cleanups) run() {
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i](); err != nil {
			slog.Warn("cleanup error", "err", err)
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry, cleanup *cleanups) {
	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterDevice("capture", func(entry config.ProviderEntry, ac config.AudioConfig) (audio.Device, error) {
		opts := []capture.Option{
			capture.WithSampleRate(ac.SampleRate),
			capture.WithBlockSize(ac.BlockSize),
			capture.WithLogger(slog.Default()),
		}
		if argv := entry.Strings("command"); len(argv) > 0 {
			opts = append(opts, capture.WithCommand(argv...))
		}
		if d, ok := entry.Duration("startup_grace"); ok {
			opts = append(opts, capture.WithStartupGrace(d))
		}
		dev, err := capture.New(opts...)
		if err != nil {
			return nil, err
		}
		dev.LogDevices(context.Background())
		return dev, nil
	})

	reg.RegisterDevice("discord", func(entry config.ProviderEntry, ac config.AudioConfig) (audio.Device, error) {
		token := entry.APIKey
		if token == "" {
			token = entry.String("token")
		}
		guildID, channelID := entry.String("guild_id"), entry.String("channel_id")
		if token == "" || guildID == "" || channelID == "" {
			return nil, errors.New("discord audio requires a bot token, guild_id and channel_id")
		}
		session, err := discordgo.New("Bot " + token)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		session.Identify.Intents = discordgo.IntentsGuildVoiceStates
		if err := session.Open(); err != nil {
			return nil, fmt.Errorf("open discord session: %w", err)
		}
		cleanup.add(session.Close)

		opts := []discord.Option{
			discord.WithSampleRate(ac.SampleRate),
			discord.WithBlockSize(ac.BlockSize),
			discord.WithLogger(slog.Default()),
		}
		if d, ok := entry.Duration("speaker_hold"); ok {
			opts = append(opts, discord.WithSpeakerHold(d))
		}
		return discord.New(session, guildID, channelID, opts...)
	})

	// ── Recognition ───────────────────────────────────────────────────────────

	reg.RegisterDecoder("whisper", func(entry config.ProviderEntry) (decoder.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.String("model_path")
		}
		var opts []whisper.Option
		if lang := entry.String("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d, ok := entry.Duration("silence"); ok {
			opts = append(opts, whisper.WithSilence(d))
		}
		if d, ok := entry.Duration("max_utterance"); ok {
			opts = append(opts, whisper.WithMaxUtterance(d))
		}
		if d, ok := entry.Duration("partial_interval"); ok {
			opts = append(opts, whisper.WithPartialInterval(d))
		}
		if v, ok := entry.Float("rms_threshold"); ok {
			opts = append(opts, whisper.WithRMSThreshold(v))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterDecoder("deepgram", func(entry config.ProviderEntry) (decoder.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := entry.String("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms, ok := entry.Int("endpointing_ms"); ok {
			opts = append(opts, deepgram.WithEndpointing(ms))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterTranslator("azure", func(entry config.ProviderEntry) (translate.Translator, error) {
		var opts []azure.Option
		if region := entry.String("region"); region != "" {
			opts = append(opts, azure.WithRegion(region))
		}
		if entry.BaseURL != "" {
			opts = append(opts, azure.WithEndpoint(entry.BaseURL))
		}
		if d, ok := entry.Duration("timeout"); ok {
			opts = append(opts, azure.WithTimeout(d))
		}
		return azure.New(entry.APIKey, opts...)
	})

	reg.RegisterTranslator("openai", func(entry config.ProviderEntry) (translate.Translator, error) {
		var opts []oaitranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitranslate.WithBaseURL(entry.BaseURL))
		}
		if org := entry.String("organization"); org != "" {
			opts = append(opts, oaitranslate.WithOrganization(org))
		}
		return oaitranslate.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining LLM backends go through any-llm-go. ollama, llamacpp and
	// llamafile are local servers addressed by BaseURL.
	for _, backend := range anyllm.Backends {
		if backend == "openai" {
			continue
		}
		reg.RegisterTranslator(backend, func(entry config.ProviderEntry) (translate.Translator, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	for _, kind := range []string{"audio", "recognition", "translation"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// A recognition fallback that cannot be built is skipped; the primary and the
// other providers are required.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	dev, err := reg.CreateDevice(cfg.Audio.Device, cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio device %q: %w", cfg.Audio.Device.Name, err)
	}
	ps.Device = dev
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Device.Name)

	for i, entry := range append([]config.ProviderEntry{cfg.Recognition.Provider}, cfg.Recognition.Fallbacks...) {
		p, err := reg.CreateDecoder(entry)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("create recognition provider %q: %w", entry.Name, err)
			}
			slog.Warn("recognition fallback unavailable, skipping", "name", entry.Name, "err", err)
			continue
		}
		ps.Decoders = append(ps.Decoders, app.NamedDecoder{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "recognition", "name", entry.Name, "fallback", i > 0)
	}

	tr, err := reg.CreateTranslator(cfg.Translation.Provider)
	if err != nil {
		return nil, fmt.Errorf("create translation provider %q: %w", cfg.Translation.Provider.Name, err)
	}
	ps.Translator = tr
	ps.TranslatorName = cfg.Translation.Provider.Name
	slog.Info("provider created", "kind", "translation", "name", cfg.Translation.Provider.Name)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      LinguaLive startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Audio", cfg.Audio.Device.Name, "")
	printProvider("Recognition", cfg.Recognition.Provider.Name, cfg.Recognition.Provider.Model)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", len(cfg.Recognition.Fallbacks))
	printProvider("Translation", cfg.Translation.Provider.Name, cfg.Translation.Provider.Model)
	fmt.Printf("║  Languages       : %-19d ║\n", len(cfg.Translation.Languages))
	fmt.Printf("║  Default target  : %-19s ║\n", cfg.Translation.DefaultLanguage)
	fmt.Printf("║  Glossary terms  : %-19d ║\n", len(cfg.Recognition.Glossary))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
