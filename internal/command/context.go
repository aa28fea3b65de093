// Package command implements the coordctl CLI: thin cobra wrappers over
// the session store and coordinator tool surface, for driving or
// inspecting a coordination session without an MCP client attached.
package command

import (
	"fmt"
	"os"

	"github.com/adamavenir/coord/internal/coordctx"
	"github.com/adamavenir/coord/internal/coordtool"
	"github.com/adamavenir/coord/internal/mailbox"
	"github.com/adamavenir/coord/internal/mailbox/httpmailbox"
	"github.com/adamavenir/coord/internal/mailbox/sqlitemailbox"
	"github.com/adamavenir/coord/internal/reconcile"
	"github.com/adamavenir/coord/internal/session"
	"github.com/spf13/cobra"
)

// CommandContext bundles the resources a coordctl subcommand needs.
type CommandContext struct {
	Store    *session.Store
	Ctx      *coordctx.Context
	Tools    *coordtool.Toolset
	Client   mailbox.Client
	JSONMode bool
}

// Close releases the underlying mailbox connection, if local.
func (c *CommandContext) Close() {
	if closer, ok := c.Client.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// GetContext resolves the session named by --session (required), opening
// the mailbox named by --mailbox-url (remote) or a local sqlite mailbox
// under the sessions directory, and wires the coordinator tool surface
// over it.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	name, _ := cmd.Flags().GetString("session")
	if name == "" {
		return nil, fmt.Errorf("--session is required")
	}
	mailboxURL, _ := cmd.Flags().GetString("mailbox-url")
	jsonMode, _ := cmd.Flags().GetBool("json")

	dir, err := session.SessionsDir()
	if err != nil {
		return nil, err
	}
	sessionID, err := session.ResolveSessionID(dir, name)
	if err != nil {
		return nil, err
	}
	if mailboxURL == "" {
		if ep, ok, _ := session.LoadEndpoint(dir, sessionID); ok && ep.Remote {
			mailboxURL = ep.URL
		}
	}

	client, err := openMailbox(mailboxURL)
	if err != nil {
		return nil, err
	}

	store, err := session.ResumeSession(cmd.Context(), client, dir, sessionID, true, reconcile.Sync)
	if err != nil {
		return nil, err
	}

	coordCtx := coordctx.New(client, store.Namespace(), store.Coordinator(), store.RoomID())
	tools := coordtool.New(store, coordCtx, client, nil)

	return &CommandContext{Store: store, Ctx: coordCtx, Tools: tools, Client: client, JSONMode: jsonMode}, nil
}

// CreateSession opens a mailbox and creates a brand-new session.
func CreateSession(cmd *cobra.Command, name string) (*CommandContext, error) {
	mailboxURL, _ := cmd.Flags().GetString("mailbox-url")
	jsonMode, _ := cmd.Flags().GetBool("json")

	client, err := openMailbox(mailboxURL)
	if err != nil {
		return nil, err
	}
	dir, err := session.SessionsDir()
	if err != nil {
		return nil, err
	}
	store, err := session.CreateSession(cmd.Context(), client, dir, name)
	if err != nil {
		return nil, err
	}
	if err := session.SaveAlias(dir, name, store.SessionID()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record session alias: %v\n", err)
	}
	if err := session.SaveEndpoint(dir, store.SessionID(), session.Endpoint{Remote: mailboxURL != "", URL: mailboxURL}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record mailbox endpoint: %v\n", err)
	}
	coordCtx := coordctx.New(client, store.Namespace(), store.Coordinator(), store.RoomID())
	tools := coordtool.New(store, coordCtx, client, nil)
	return &CommandContext{Store: store, Ctx: coordCtx, Tools: tools, Client: client, JSONMode: jsonMode}, nil
}

func openMailbox(mailboxURL string) (mailbox.Client, error) {
	if mailboxURL != "" {
		return httpmailbox.New(mailboxURL)
	}
	dir, err := session.SessionsDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return sqlitemailbox.Open(dir + "/mailbox.db")
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}
