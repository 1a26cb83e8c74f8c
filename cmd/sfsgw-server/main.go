// Package main is the entry point for the sfsgw storage server: the
// embedded metadata/content core (users, buckets, objects, versions,
// garbage collection) fronted by a thin ops surface (health, metrics,
// GC control). It does not speak the S3 HTTP protocol; that parser
// lives in a collaborator process that imports this module's
// catalog/writer/gc packages directly.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/sfsgw/internal/auth"
	"github.com/prn-tf/sfsgw/internal/cache/memory"
	"github.com/prn-tf/sfsgw/internal/config"
	"github.com/prn-tf/sfsgw/internal/content"
	"github.com/prn-tf/sfsgw/internal/gc"
	"github.com/prn-tf/sfsgw/internal/handler"
	"github.com/prn-tf/sfsgw/internal/lock"
	"github.com/prn-tf/sfsgw/internal/metrics"
	"github.com/prn-tf/sfsgw/internal/pkg/crypto"
	"github.com/prn-tf/sfsgw/internal/store/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting sfsgw storage server")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx := context.Background()

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create storage data path")
	}
	dbPath := filepath.Join(cfg.Storage.DataPath, "s3gw.db")

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(dbPath), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open metadata database")
	}
	defer db.Close()
	log.Info().Str("path", dbPath).Msg("metadata database ready")

	stores := sqlite.NewStores(db)
	contentStore := content.New(cfg.Storage.DataPath)

	memCache := memory.NewCache()
	defer memCache.Stop()

	locker := lock.NewMemoryLocker()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		log.Info().Int("port", cfg.Metrics.Port).Msg("prometheus metrics enabled")
	}

	var collector *gc.Collector
	if cfg.GC.Enabled {
		collector = gc.New(stores.Buckets, stores.Objects, contentStore, locker, m, log.Logger, gc.Config{
			Period:  cfg.GC.Interval,
			MaxObjs: cfg.GC.MaxObjs,
		})
		collector.Start()
		defer collector.Stop()
		log.Info().
			Dur("period", cfg.GC.Interval).
			Int("max_objs", cfg.GC.MaxObjs).
			Msg("garbage collector started")
	}

	var authMiddleware func(http.Handler) http.Handler
	if cfg.Auth.EncryptionKey != "" {
		encryptionKey, err := cfg.Auth.GetEncryptionKey()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid encryption key")
		}
		encryptor, err := crypto.NewEncryptor(encryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize encryptor")
		}
		accessKeyAdapter := handler.NewAccessKeyAdapter(stores.AccessKeys, encryptor)
		authConfig := auth.Config{
			SkipPaths:    []string{"/healthz", "/readyz"},
			MaxClockSkew: cfg.Auth.MaxSignatureAge,
		}
		authMiddleware = auth.Middleware(accessKeyAdapter, authConfig)
	} else {
		log.Warn().Msg("no auth.encryption_key configured; GC control endpoints are unauthenticated")
	}

	opsHandler := handler.NewOpsHandler(db, collector, log.Logger)
	router := handler.NewRouter(handler.RouterConfig{
		Ops:            opsHandler,
		AuthMiddleware: authMiddleware,
		Logger:         log.Logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
		go func() {
			log.Info().Int("port", cfg.Metrics.Port).Str("path", cfg.Metrics.Path).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down sfsgw storage server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown error")
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server shutdown error")
	}

	log.Info().Msg("sfsgw storage server stopped")
}
