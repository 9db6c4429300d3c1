package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/simdeck/simdeck/pkg/archive"
	"github.com/simdeck/simdeck/pkg/cache"
	"github.com/simdeck/simdeck/pkg/live"
)

func newWatchCmd(a *app) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "watch <simulation-id>",
		Short: "Follow a simulation's live event feed in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireServer(); err != nil {
				return err
			}
			return runWatch(cmd.Context(), a, args[0], record)
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "record the feed to the archive database")

	return cmd
}

func runWatch(ctx context.Context, a *app, simID string, record bool) error {
	queries := &cache.Store{}

	opts := a.cfg.EngineOptions()
	opts.Factory = a.wsFactory()
	opts.Invalidator = queries
	opts.Log = a.log

	if addr := a.cfg.Metrics.Addr; addr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := live.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts.Metrics = metrics
		go serveMetrics(addr, reg, a.log)
	}

	if record {
		path := a.cfg.Archive.Path
		if path == "" {
			return fmt.Errorf("--record needs archive.path in the configuration")
		}

		arc, err := archive.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = arc.Close() }()

		run, err := arc.BeginRun(ctx, simID)
		if err != nil {
			return err
		}
		a.log.Info("recording feed", "run", run.ID, "path", path)
		opts.Recorder = arc.Recorder(run.ID, a.log)
	}

	engine, err := live.New(opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.Connect(simID)

	model := newWatchModel(simID, engine, queries, a.apiClient())
	p := tea.NewProgram(model, tea.WithAltScreen())

	stopBridge := startBridge(ctx, p, engine.Updates())
	defer stopBridge()

	_, err = p.Run()
	return err
}
