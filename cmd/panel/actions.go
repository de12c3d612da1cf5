package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func snapshotCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the aggregator's full state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.requestContext(cmd.Context())
			defer cancel()
			snap, err := g.client().Messages(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}

func connectionsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List detected LiveSocket connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.requestContext(cmd.Context())
			defer cancel()
			snap, err := g.client().Messages(ctx)
			if err != nil {
				return err
			}
			if len(snap.Connections) == 0 {
				fmt.Println("No connections detected.")
				return nil
			}
			for _, c := range snap.Connections {
				fmt.Print(formatConnection(c))
			}
			return nil
		},
	}
}

func clearCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all captured messages and connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.requestContext(cmd.Context())
			defer cancel()
			if err := g.client().Clear(ctx); err != nil {
				return err
			}
			fmt.Println("Cleared.")
			return nil
		},
	}
}

func highlightCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "highlight on|off",
		Short:     "Toggle element highlighting in every relay",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			ctx, cancel := g.requestContext(cmd.Context())
			defer cancel()
			if err := g.client().SetHighlighting(ctx, enabled); err != nil {
				return err
			}
			fmt.Printf("Highlighting %s.\n", args[0])
			return nil
		},
	}
}
