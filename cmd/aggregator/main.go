package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/phx_devtools/internal/aggregator"
	"github.com/dgnsrekt/phx_devtools/internal/api"
	"github.com/dgnsrekt/phx_devtools/internal/config"
	"github.com/dgnsrekt/phx_devtools/internal/netutil"
	"github.com/dgnsrekt/phx_devtools/internal/storage"
)

func main() {
	cfg, err := config.LoadAggregator()
	if err != nil {
		slog.Error("failed to load aggregator config", "error", err)
		os.Exit(1)
	}

	logger, err := config.SetupLogger(cfg.LogLevel, cfg.LogFile, os.Stdout)
	if err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	logger.Info("aggregator config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"max_messages", cfg.MaxMessages,
		"store_backend", cfg.StoreBackend,
		"store_path", cfg.StorePath,
		"restore_on_start", cfg.RestoreOnStart,
		"archive_enabled", cfg.ArchiveEnabled,
		"log_level", cfg.LogLevel,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("aggregator failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AggregatorConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storePath := cfg.StorePath
	if cfg.StoreBackend == "sqlite" {
		storePath = filepath.Join(cfg.StorePath, "state.db")
	}
	kv, err := storage.Open(cfg.StoreBackend, storePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	metrics := aggregator.NewMetrics()
	opts := aggregator.Options{
		MaxMessages:  cfg.MaxMessages,
		Store:        kv,
		Metrics:      metrics,
		Logger:       logger,
		Highlighting: cfg.Highlighting,
	}
	var archive *storage.Archive
	if cfg.ArchiveEnabled {
		archive = storage.NewArchive(cfg.ArchiveDir, cfg.ArchiveBufferSize, cfg.ArchiveMaxFileSizeMB)
		opts.Archive = archive
	}

	session := aggregator.NewSession(opts)
	if err := session.Restore(ctx, kv, cfg.RestoreOnStart); err != nil {
		logger.Warn("failed to restore stored state, starting empty", "error", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("final persist failed", "error", err)
		}
		if archive != nil {
			if err := archive.Close(); err != nil {
				logger.Warn("archive close failed", "error", err)
			}
		}
	}()

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()

	srv := &http.Server{
		Handler:           api.NewServer(session, api.Options{Metrics: metrics.Handler(), Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("aggregator listening", "addr", addr, "docs", "http://"+addr+"/docs", "ports", "ws://"+addr+"/ws")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
