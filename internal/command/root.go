package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "coordctl"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "coordctl - operate a coordination session from the command line",
		Long:          "coordctl spawns, messages, and supervises worker agents through a coordination session, without an MCP client attached.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("session", "", "session name to operate on")
	cmd.PersistentFlags().String("mailbox-url", "", "remote mailbox service base URL (default: local sqlite mailbox)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewSessionCmd(),
		NewAgentCmd(),
		NewPermissionCmd(),
		NewInviteCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
