package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/phx_devtools/internal/config"
	"github.com/dgnsrekt/phx_devtools/internal/observer"
	"github.com/dgnsrekt/phx_devtools/internal/port"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

var errConnectionClosed = errors.New("aggregator connection closed")

type tailFlags struct {
	direction   string
	phoenixOnly bool
	search      string
	verbose     bool
	utc         bool
}

func tailCmd(g *globalFlags) *cobra.Command {
	f := &tailFlags{}
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream captured messages as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := observer.ParseDirection(f.direction)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runTail(ctx, g, f, observer.Filter{Direction: dir, PhoenixOnly: f.phoenixOnly, Search: f.search}, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&f.direction, "direction", "all", "all, inbound or outbound")
	cmd.Flags().BoolVar(&f.phoenixOnly, "phoenix-only", false, "hide messages not classified as Phoenix traffic")
	cmd.Flags().StringVar(&f.search, "search", "", "space separated terms, all must match")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print pretty data under each message")
	cmd.Flags().BoolVar(&f.utc, "utc", false, "print timestamps in UTC")
	return cmd
}

func runTail(ctx context.Context, g *globalFlags, f *tailFlags, filter observer.Filter, out io.Writer) error {
	logger := g.logger()
	conn, err := port.Dial(ctx, config.PortURL(g.aggregatorURL), logger)
	if err != nil {
		return err
	}

	loc := time.Local
	if f.utc {
		loc = time.UTC
	}
	store := observer.New(conn, observer.Options{TabID: g.tabID, Location: loc, Logger: logger})
	defer store.Close()
	store.SetFilter(filter)

	changed := make(chan struct{}, 1)
	unsubscribe := store.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if err := store.Connect(ctx); err != nil {
		return err
	}

	p := newPrinter(out, loc, f.verbose)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Ended():
			return errConnectionClosed
		case <-changed:
			view := store.View()
			slices.Reverse(view)
			p.print(view)
		}
	}
}

// printer writes each visible message once, oldest first.
type printer struct {
	out     io.Writer
	loc     *time.Location
	verbose bool
	seen    map[string]struct{}
}

func newPrinter(out io.Writer, loc *time.Location, verbose bool) *printer {
	return &printer{out: out, loc: loc, verbose: verbose, seen: make(map[string]struct{})}
}

func (p *printer) print(view []types.Message) {
	if len(view) == 0 && len(p.seen) > 0 {
		clear(p.seen)
		fmt.Fprintln(p.out, "-- cleared --")
		return
	}
	for _, m := range view {
		if _, ok := p.seen[m.Hash]; ok {
			continue
		}
		p.seen[m.Hash] = struct{}{}
		fmt.Fprint(p.out, formatMessage(m, p.loc, p.verbose))
	}
}
