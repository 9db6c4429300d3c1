package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simdeck/simdeck/pkg/archive"
	"github.com/simdeck/simdeck/pkg/live"
)

func newReplayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Rebuild a recorded feed offline and print the final state",
		Long: "Without arguments, replay lists recorded runs. With a run id it folds " +
			"the archived events through the same reducer as a live session and " +
			"prints the derived state.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Archive.Path
			if path == "" {
				return fmt.Errorf("replay needs archive.path in the configuration")
			}

			arc, err := archive.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			if len(args) == 0 {
				return listRuns(cmd, arc)
			}
			return replayRun(cmd, a, arc, args[0])
		},
	}

	return cmd
}

func listRuns(cmd *cobra.Command, arc *archive.Archive) error {
	runs, err := arc.Runs(cmd.Context())
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no recorded runs"))
		return nil
	}

	for _, run := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %s\n",
			run.ID, run.SimulationID,
			dimStyle.Render(run.StartedAt.Local().Format("2006-01-02 15:04:05")))
	}

	return nil
}

func replayRun(cmd *cobra.Command, a *app, arc *archive.Archive, runID string) error {
	events, err := arc.Events(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("run %s has no events", runID)
	}

	store := live.Rebuild(events, a.cfg.EngineOptions().BatchWindow, nil)
	snap := store.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %d events\n", titleStyle.Render("replay "+runID), len(events))
	if snap.Step.Total > 0 {
		fmt.Fprintf(&b, "step %d/%d", snap.Step.Current, snap.Step.Total)
		if snap.Running {
			b.WriteString("  running")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(renderAgents(snap.Agents))
	b.WriteString("\n")
	b.WriteString(renderMessages(snap.Messages, 0))

	fmt.Fprint(cmd.OutOrStdout(), b.String())
	return nil
}
