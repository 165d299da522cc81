package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"folio/pkg/config"
	"folio/pkg/log"
	"folio/pkg/manager"
	"folio/pkg/ratelimit"
	"folio/pkg/server"
	"folio/pkg/session"
	"folio/pkg/signature"
)

const (
	startupTimeout = 30 * time.Second
	loginIdleTTL   = 10 * time.Minute
)

func main() {
	// Initialize logger first
	_ = log.Logger

	configPath := flag.String("config", "", "Path to YAML config (overrides CONFIG_PATH)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	log.Setup(cfg.Log.Level, cfg.Log.Format)
	if *debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	backends, err := manager.Open(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage backends")
	}
	defer closeBackends(backends)

	limiterStore, closeStore := newLimiterStore(cfg.Security)
	defer closeStore()

	loginLimiter := ratelimit.NewKeyedLimiter(cfg.Auth.LoginPerMinute, cfg.Auth.LoginBurst, loginIdleTTL)
	defer loginLimiter.Close()

	srv := server.New(server.Options{
		Config:       cfg,
		Repo:         backends.Repo,
		ProjectBlobs: backends.ProjectBlobs,
		ServiceBlobs: backends.ServiceBlobs,
		Limiter:      ratelimit.New(limiterStore),
		Verifier:     signature.NewVerifier(cfg.Security.SignatureSecret, cfg.Security.SignatureWindow),
		Gate: session.NewGate(session.Options{
			Password: cfg.Auth.AdminPassword,
			Hash:     cfg.Auth.AdminPasswordHash,
			Secret:   cfg.Auth.SessionSecret,
			TTL:      cfg.Auth.SessionTTL,
		}),
		LoginLimiter: loginLimiter,
		FilesDir:     backends.FilesDir,
	})

	warnMissingSecrets(cfg)

	if err := srv.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		closeBackends(backends)
		os.Exit(1)
	}
}

func newLimiterStore(cfg config.SecurityConfig) (ratelimit.Store, func()) {
	if cfg.RateLimitStore == config.RateStoreMemory {
		return ratelimit.NewMemoryStore(), func() {}
	}
	ttl := max(cfg.PublicWindow, cfg.ProtectedWindow)
	store := ratelimit.NewTTLStore(ttl)
	return store, store.Close
}

// warnMissingSecrets reports credentials whose absence turns writes into 500s.
func warnMissingSecrets(cfg *config.Config) {
	switch cfg.Security.AuthScheme {
	case config.AuthSchemeSignature:
		if cfg.Security.SignatureSecret == "" {
			log.Warn().Msg("EDGE_FUNCTION_SECRET is not set; signed writes will fail")
		}
	default:
		if cfg.Security.InternalSecret == "" {
			log.Warn().Msg("INTERNAL_API_SECRET is not set; writes will fail")
		}
	}
	if cfg.Auth.SessionSecret == "" {
		log.Warn().Msg("SESSION_SECRET is not set; admin sessions are disabled")
	}
}

func closeBackends(m *manager.Manager) {
	if err := m.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close storage backends")
	}
}
