package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/phx_devtools/internal/api"
	"github.com/dgnsrekt/phx_devtools/internal/config"
)

type globalFlags struct {
	aggregatorURL string
	tabID         int
	logLevel      string
	timeout       time.Duration
}

func rootCmd() *cobra.Command {
	defaults := config.LoadPanel()
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "panel",
		Short:         "Inspect LiveView traffic collected by the aggregator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.aggregatorURL, "aggregator", defaults.AggregatorURL, "aggregator base URL")
	cmd.PersistentFlags().IntVar(&g.tabID, "tab", defaults.TabID, "only show messages of this tab (0 shows all)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 5*time.Second, "request timeout")

	cmd.AddCommand(
		tailCmd(g),
		snapshotCmd(g),
		connectionsCmd(g),
		clearCmd(g),
		highlightCmd(g),
	)
	return cmd
}

func (g *globalFlags) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(g.logLevel)}))
}

func (g *globalFlags) client() *api.Client {
	return api.NewClient(api.ClientConfig{
		BaseURL:     g.aggregatorURL,
		Timeout:     g.timeout,
		MaxAttempts: 1,
		Logger:      g.logger(),
	})
}

func (g *globalFlags) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, g.timeout)
}
