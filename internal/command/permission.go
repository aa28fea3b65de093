package command

import (
	"encoding/json"
	"fmt"

	"github.com/adamavenir/coord/internal/protocol"
	"github.com/adamavenir/coord/internal/session"
	"github.com/spf13/cobra"
)

// NewPermissionCmd groups permission-queue subcommands.
func NewPermissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Inspect and resolve pending permission requests",
	}
	cmd.AddCommand(
		newPermissionListCmd(),
		newPermissionGrantCmd(),
		newPermissionEscalateCmd(),
		newPermissionExpireCmd(),
	)
	return cmd
}

func newPermissionListCmd() *cobra.Command {
	var agentID, statusFilter string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List pending permission requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			if cctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(
					cctx.Store.ListPendingPermissions(agentID, session.PermissionStatus(statusFilter)))
			}
			fmt.Fprint(cmd.OutOrStdout(), cctx.Tools.ListPendingPermissions(agentID, session.PermissionStatus(statusFilter)))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent-id", "", "restrict to this agent")
	cmd.Flags().StringVar(&statusFilter, "status", "", "restrict to this status")
	return cmd
}

func newPermissionGrantCmd() *cobra.Command {
	var agentID, reason string
	cmd := &cobra.Command{
		Use:   "grant <request-id> <allow|deny>",
		Short: "Resolve a pending permission request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			report, err := cctx.Tools.GrantPermission(cmd.Context(), args[0], protocol.Decision(args[1]), agentID, reason)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent-id", "", "disambiguate the owning agent (optional)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason (optional)")
	return cmd
}

func newPermissionEscalateCmd() *cobra.Command {
	var humanContext string
	cmd := &cobra.Command{
		Use:   "escalate <request-id>",
		Short: "Ask every registered human to allow or deny a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			report, err := cctx.Tools.EscalateToUser(cmd.Context(), args[0], humanContext)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&humanContext, "context", "", "additional context for the human")
	return cmd
}

func newPermissionExpireCmd() *cobra.Command {
	var maxAgeHours float64
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Mark pending requests older than --max-age-hours as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			report, err := cctx.Tools.ClearExpiredPermissions(maxAgeHours)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().Float64Var(&maxAgeHours, "max-age-hours", 24, "age cutoff in hours")
	return cmd
}
