package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/phx_devtools/internal/api"
	"github.com/dgnsrekt/phx_devtools/internal/browser"
	"github.com/dgnsrekt/phx_devtools/internal/capture"
	"github.com/dgnsrekt/phx_devtools/internal/cdp"
	"github.com/dgnsrekt/phx_devtools/internal/config"
	"github.com/dgnsrekt/phx_devtools/internal/phoenix"
	"github.com/dgnsrekt/phx_devtools/internal/port"
	"github.com/dgnsrekt/phx_devtools/internal/relay"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("failed to load relay config", "error", err)
		os.Exit(1)
	}

	logger, err := config.SetupLogger(cfg.LogLevel, cfg.LogFile, os.Stdout)
	if err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	logger.Info("relay config loaded",
		"cdp_address", cfg.CDPAddress,
		"cdp_port", cfg.CDPPort,
		"tab_url_filter", cfg.TabURLFilter,
		"reload_on_attach", cfg.ReloadOnAttach,
		"capture_http", cfg.CaptureHTTP,
		"capture_ws", cfg.CaptureWS,
		"aggregator_url", cfg.AggregatorURL,
	)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func run(cfg *config.RelayConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	classifier := phoenix.Default
	if cfg.MarkersFile != "" {
		markers, err := phoenix.LoadMarkers(cfg.MarkersFile)
		if err != nil {
			return err
		}
		classifier = phoenix.NewClassifier(markers)
		logger.Info("classifier markers loaded", "file", cfg.MarkersFile)
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
			Logger:     logger,
		})
		if err := launcher.Launch(ctx); err != nil {
			return err
		}
		defer launcher.Stop()
	}

	actions := api.NewClient(api.ClientConfig{
		BaseURL:     cfg.AggregatorURL,
		Timeout:     cfg.AggregatorTimeout,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
	})

	fleet := relay.NewFleet(true)
	g, gctx := errgroup.WithContext(ctx)

	var relays sync.WaitGroup
	attach := func(tab *cdp.Tab) {
		r := relay.New(tab, tab.Interceptor(), actions, relay.Options{Classifier: classifier, Logger: logger})
		fleet.Add(r)
		relays.Add(1)
		go func() {
			defer relays.Done()
			defer fleet.Remove(r)
			if err := r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("relay ended", "target_id", tab.TargetID(), "error", err)
			}
		}()
	}

	client := cdp.NewClient(cdp.Config{
		URL:            cfg.GetCDPURL(),
		TabURLFilter:   cfg.TabURLFilter,
		ReloadOnAttach: cfg.ReloadOnAttach,
		Capture: capture.Config{
			CaptureWS:     cfg.CaptureWS,
			CaptureHTTP:   cfg.CaptureHTTP,
			MaxFrameBytes: cfg.WSMaxFrameBytes,
			MaxBodyBytes:  cfg.HTTPMaxBodyBytes,
			Logger:        logger,
		},
		Logger: logger,
	}, cdp.NewTabRegistry(), attach)
	if err := client.Connect(ctx); err != nil {
		logger.Info("Make sure Chromium is running with remote debugging enabled, or set PHX_LAUNCH_BROWSER=true")
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("CDP close failed", "error", err)
		}
		relays.Wait()
	}()

	for _, tab := range client.Tabs() {
		logger.Info("inspecting tab", "target_id", tab.TargetID, "browser_id", tab.BrowserID, "url", tab.URL)
	}
	logger.Info("relay running", "tabs", client.GetTabCount())

	g.Go(func() error {
		return followSettings(gctx, cfg.PortURL(), fleet, logger)
	})
	return g.Wait()
}

// followSettings keeps the fleet's highlighting in step with the
// aggregator, redialing the port when the connection drops.
func followSettings(ctx context.Context, url string, fleet *relay.Fleet, logger *slog.Logger) error {
	for {
		conn, err := port.Dial(ctx, url, logger)
		if err == nil {
			err = fleet.Follow(ctx, conn.Updates())
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("settings port unavailable, retrying", "url", url, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
