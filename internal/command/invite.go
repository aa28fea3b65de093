package command

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewInviteCmd groups human-invite subcommands.
func NewInviteCmd() *cobra.Command {
	var displayName string
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Allocate a human identity and add it to the coordination room",
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cctx.Close()

			if displayName == "" {
				displayName = "Human Observer"
			}
			identityID, secret, err := cctx.Tools.CreateHumanInvite(cmd.Context(), displayName)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if cctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"identity_id": identityID,
					"secret":      secret,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "identity_id=%s secret=%s\n", identityID, secret)
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name for the invited human")
	return cmd
}
