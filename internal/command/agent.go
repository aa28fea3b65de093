package command

import (
	"encoding/json"
	"fmt"

	"github.com/adamavenir/coord/internal/coordtool"
	"github.com/adamavenir/coord/internal/session"
	"github.com/spf13/cobra"
)

// NewAgentCmd groups worker-agent lifecycle subcommands.
func NewAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Spawn, message, and supervise worker agents",
	}
	cmd.AddCommand(
		newAgentSpawnCmd(),
		newAgentListCmd(),
		newAgentTaskCmd(),
		newAgentTerminateCmd(),
		newAgentHealthCmd(),
		newAgentPollCmd(),
	)
	return cmd
}

func newAgentSpawnCmd() *cobra.Command {
	var displayName string
	var remote bool
	cmd := &cobra.Command{
		Use:   "spawn <workspace-name>",
		Short: "Allocate an identity and launch a new worker agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			report, err := cctx.Tools.SpawnAgent(cmd.Context(), args[0], displayName, remote)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "human-readable name (default: workspace name)")
	cmd.Flags().BoolVar(&remote, "remote", false, "launch via the remote workspace launcher")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var stateFilter string
	var details bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List known agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			if cctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cctx.Store.ListAgents(session.AgentState(stateFilter)))
			}
			fmt.Fprint(cmd.OutOrStdout(), cctx.Tools.ListAgents(session.AgentState(stateFilter), details))
			return nil
		},
	}
	cmd.Flags().StringVar(&stateFilter, "state", "", "restrict to this state")
	cmd.Flags().BoolVar(&details, "details", false, "include workspace/task/last_seen detail")
	return cmd
}

func newAgentTaskCmd() *cobra.Command {
	var description, taskID, deadline string
	cmd := &cobra.Command{
		Use:   "task <agent-id>",
		Short: "Assign a task to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			opts := coordtool.MessageAgentOptions{TaskID: taskID, Description: description}
			if deadline != "" {
				opts.Deadline = &deadline
			}
			report, err := cctx.Tools.MessageAgent(cmd.Context(), args[0], "task", opts)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "task id (required)")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "ISO-8601 deadline (optional)")
	_ = cmd.MarkFlagRequired("task-id")
	return cmd
}

func newAgentTerminateCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "terminate <agent-id>",
		Short: "Send a terminate message and transition the agent to terminated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			report, err := cctx.Tools.TerminateAgent(cmd.Context(), args[0], reason)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason (optional)")
	return cmd
}

func newAgentHealthCmd() *cobra.Command {
	var staleMinutes int
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Triage agents as healthy, stale, or never-seen",
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			triage := cctx.Tools.CheckAgentHealth(staleMinutes)
			if cctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(triage)
			}
			if len(triage) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no agents")
				return nil
			}
			for _, t := range triage {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] stale=%v never_seen=%v last_active=%s\n",
					t.AgentID, t.State, t.Stale, t.NeverSeen, t.LastActive.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&staleMinutes, "stale-minutes", 10, "staleness threshold in minutes")
	return cmd
}

func newAgentPollCmd() *cobra.Command {
	var wait int
	var includeRoom bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll for new direct and room messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			report, err := cctx.Tools.PollMessages(cmd.Context(), wait, includeRoom)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().IntVar(&wait, "wait", 30, "seconds to wait for new messages (0 for non-blocking)")
	cmd.Flags().BoolVar(&includeRoom, "include-room", true, "also poll the coordination room")
	return cmd
}
