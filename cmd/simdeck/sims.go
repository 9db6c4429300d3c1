package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simdeck/simdeck/pkg/api"
)

func newSimsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sims",
		Short: "Manage simulations on the server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Run the root's config loading first; cobra only executes the
			// innermost PersistentPreRunE.
			if parent := cmd.Root().PersistentPreRunE; parent != nil {
				if err := parent(cmd, args); err != nil {
					return err
				}
			}
			return a.requireServer()
		},
	}

	cmd.AddCommand(
		newSimsListCmd(a),
		newSimsCreateCmd(a),
		newSimsControlCmd(a, api.ActionStart, "Start a simulation"),
		newSimsControlCmd(a, api.ActionPause, "Pause a running simulation"),
		newSimsControlCmd(a, api.ActionResume, "Resume a paused simulation"),
		newSimsMessagesCmd(a),
	)

	return cmd
}

func newSimsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List simulations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sims, err := a.apiClient().ListSimulations(cmd.Context())
			if err != nil {
				return err
			}

			if len(sims) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no simulations"))
				return nil
			}

			for _, sim := range sims {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-10s %s\n",
					sim.ID, sim.Name, sim.Status,
					dimStyle.Render(fmt.Sprintf("step %d/%d · %d agents",
						sim.CurrentStep, sim.TotalSteps, sim.AgentCount)))
			}

			return nil
		},
	}
}

func newSimsCreateCmd(a *app) *cobra.Command {
	var (
		name   string
		steps  int
		agents []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			req := api.CreateSimulationRequest{Name: name, TotalSteps: steps}
			for _, spec := range agents {
				agentName, role, _ := strings.Cut(spec, ":")
				req.Agents = append(req.Agents, api.AgentSpec{Name: agentName, Role: role})
			}

			sim, err := a.apiClient().CreateSimulation(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", sim.Name, sim.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "simulation name")
	cmd.Flags().IntVar(&steps, "steps", 0, "total steps (0 = server default)")
	cmd.Flags().StringArrayVar(&agents, "agent", nil, "agent as name or name:role (repeatable)")

	return cmd
}

func newSimsControlCmd(a *app, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <simulation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.apiClient().Control(cmd.Context(), args[0], action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], action)
			return nil
		},
	}
}

func newSimsMessagesCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "messages <simulation-id>",
		Short: "Show a simulation's persisted messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := a.apiClient().Messages(cmd.Context(), args[0], limit, offset)
			if err != nil {
				return err
			}

			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("no messages"))
				return nil
			}

			for _, msg := range msgs {
				header := senderStyle.Render(msg.SenderID)
				if msg.ReceiverID != "" {
					header += dimStyle.Render(" → ") + msg.ReceiverID
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n  %s\n",
					dimStyle.Render(msg.CreatedAt.Local().Format("15:04:05")),
					header,
					dimStyle.Render(fmt.Sprintf("step %d", msg.Step)),
					truncate(msg.Content, 200))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum messages to fetch")
	cmd.Flags().IntVar(&offset, "offset", 0, "messages to skip")

	return cmd
}
