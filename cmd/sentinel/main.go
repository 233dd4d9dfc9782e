// Command sentinel runs the intercepting LLM gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/sentinel-gw/sentinel/internal/config"
	"github.com/sentinel-gw/sentinel/internal/gateway"
	"github.com/sentinel-gw/sentinel/internal/leakscan"
	"github.com/sentinel-gw/sentinel/internal/loopdetect"
	"github.com/sentinel-gw/sentinel/internal/monitoring"
	"github.com/sentinel-gw/sentinel/internal/providers"
	"github.com/sentinel-gw/sentinel/internal/session"
	"github.com/sentinel-gw/sentinel/internal/utils"
)

func main() {
	var (
		configPath = flag.String("config", "sentinel.yaml", "path to the gateway config file")
		listenAddr = flag.String("listen", "", "override the configured listen address")
		logLevel   = flag.String("log-level", "info", "zerolog level (trace, debug, info, warn, error)")
	)
	flag.Parse()

	initLogging(*logLevel)

	// .env is optional; config values reference its variables via ${VAR}.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("could not load config")
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}

	gw, err := buildGateway(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not build gateway")
	}
	defer gw.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      gw.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("listen", cfg.Server.Listen).Msg("sentinel listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	gw.Start(ctx, buildEmbedder(cfg))

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}

// initLogging sets up zerolog: human-readable console on a TTY, JSON lines
// otherwise.
func initLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}
}

func buildGateway(cfg *config.Config) (*gateway.Gateway, error) {
	scanner, err := leakscan.New(cfg.Leak.Patterns)
	if err != nil {
		return nil, fmt.Errorf("compiling leak patterns: %w", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	router, err := providers.NewRouter(cfg.Providers, cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}
	for name, p := range cfg.Providers {
		log.Info().
			Str("provider", name).
			Str("type", string(p.Type)).
			Str("endpoint", p.Endpoint).
			Str("api_key", utils.MaskKey(p.APIKey)).
			Msg("provider configured")
	}

	signers := make(map[string]*providers.BedrockSigner)
	for name, p := range cfg.Providers {
		if p.Type != config.ProviderBedrock {
			continue
		}
		signer, err := providers.NewBedrockSigner(context.Background(), p.Region)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("bedrock provider configured without usable AWS credentials")
			continue
		}
		signers[name] = signer
	}

	var audit *monitoring.AuditLog
	if cfg.Monitoring.AuditPath != "" {
		audit, err = monitoring.NewAuditLog(cfg.Monitoring.AuditPath)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
	}

	detector := loopdetect.New(cfg.Loop.Window, cfg.Loop.Threshold, buildEmbedder(cfg))

	return gateway.New(gateway.Options{
		Config:   cfg,
		Store:    store,
		Scanner:  scanner,
		Detector: detector,
		Router:   router,
		Signers:  signers,
		Audit:    audit,
	}), nil
}

func buildStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "", "memory":
		return session.NewMemoryStore(session.MemoryStoreOptions{
			TTL:           cfg.Session.TTL.Std(),
			MaxSessions:   cfg.Session.MaxSessions,
			SweepInterval: config.DefaultSweepInterval,
		}), nil
	case "redis":
		return session.NewRedisStore(context.Background(), cfg.Session.RedisURL, cfg.Session.TTL.Std())
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// buildEmbedder returns nil when no embedding endpoint is configured, which
// puts loop detection in exact-only mode.
func buildEmbedder(cfg *config.Config) loopdetect.Embedder {
	emb := cfg.Loop.Embedding
	if emb.Endpoint == "" {
		return nil
	}
	return loopdetect.NewHTTPEmbedder(loopdetect.HTTPEmbedderOptions{
		Endpoint: emb.Endpoint,
		Model:    emb.Model,
		APIKey:   emb.APIKey,
		Timeout:  emb.Timeout.Std(),
	})
}
