package command

import (
	"encoding/json"
	"fmt"

	"github.com/adamavenir/coord/internal/session"
	"github.com/spf13/cobra"
)

// NewSessionCmd groups session lifecycle subcommands.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, inspect, and remove coordination sessions",
	}
	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionStatusCmd(),
		newSessionListCmd(),
		newSessionRemoveCmd(),
	)
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new session and its coordination room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := CreateSession(cmd, args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			if cctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"session_id": cctx.Store.SessionID(),
					"room_id":    cctx.Store.RoomID(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created session %s (room %s)\n", cctx.Store.SessionID(), cctx.Store.RoomID())
			return nil
		},
	}
}

func newSessionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report agent/human/permission counts for --session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			report := cctx.Tools.GetSessionState()
			if cctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cctx.Store.Snapshot())
			}
			fmt.Fprint(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List sessions known to this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := session.SessionsDir()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			states, err := session.ListSessions(dir)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			jsonMode, _ := cmd.Flags().GetBool("json")
			if jsonMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(states)
			}
			if len(states) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			for _, st := range states {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %q  agents=%d humans=%d\n",
					st.SessionID, st.DisplayName, len(st.Agents), len(st.Humans))
			}
			return nil
		},
	}
}

func newSessionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a session's persisted state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := session.SessionsDir()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			sessionID, err := session.ResolveSessionID(dir, args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			ok, err := session.DeleteSession(dir, sessionID)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if !ok {
				return writeCommandError(cmd, fmt.Errorf("session %q not found", args[0]))
			}
			session.RemoveAlias(dir, args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "removed session %s\n", sessionID)
			return nil
		},
	}
}
