// Command broker runs the session-isolated pub/sub WebSocket broker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessionbroker/broker/internal/audit"
	"github.com/sessionbroker/broker/internal/auth"
	"github.com/sessionbroker/broker/internal/broker"
	"github.com/sessionbroker/broker/internal/cache"
	"github.com/sessionbroker/broker/internal/config"
	"github.com/sessionbroker/broker/internal/envelope"
	"github.com/sessionbroker/broker/internal/logger"
	"github.com/sessionbroker/broker/internal/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	redisCache, err := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Enabled:  cfg.RedisEnabled,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisCache.Close()

	sessionStore := auth.NewSessionStore(redisCache)

	if cfg.StaticPasswordHash == "" {
		log.Warn().Msg("BROKER_STATIC_PASSWORD_HASH not set; using the insecure default dev password")
		hash, err := auth.HashPassword("password")
		if err != nil {
			return fmt.Errorf("hashing dev password: %w", err)
		}
		cfg.StaticPasswordHash = hash
	}
	credentials := auth.NewStaticCredentialCheck(cfg.StaticPasswordHash)

	tokens := auth.NewTokenService(auth.Config{
		SecretKey:     cfg.JWTSecretKey,
		TokenDuration: time.Duration(cfg.JWTExpirationSeconds) * time.Second,
	}, credentials, sessionStore)

	auditLog, err := audit.Open(cfg.AuditDSN)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()

	keys, err := envelope.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating envelope keypair: %w", err)
	}

	reg := registry.New()
	dispatcher := broker.NewDispatcher(reg)

	server := broker.NewServer(cfg, tokens, reg, dispatcher, auditLog, keys)
	if err := server.StartStatsLog(cfg.StatsLogCron); err != nil {
		return fmt.Errorf("scheduling stats log: %w", err)
	}
	defer server.StopStatsLog()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Bool("require_token", cfg.RequireToken).Msg("broker listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("listening: %w", err)
	case <-sig:
		log.Info().Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
