// Command coord-mcp exposes the coordinator tool surface over MCP, so a
// coordinator agent running inside an editor or desktop client can spawn,
// message, and supervise worker agents through the mailbox service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamavenir/coord/internal/coordctx"
	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/coordinator"
	"github.com/adamavenir/coord/internal/coordtool"
	"github.com/adamavenir/coord/internal/mailbox"
	"github.com/adamavenir/coord/internal/mailbox/httpmailbox"
	"github.com/adamavenir/coord/internal/mailbox/sqlitemailbox"
	"github.com/adamavenir/coord/internal/reconcile"
	"github.com/adamavenir/coord/internal/session"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	sessionName := os.Args[1]
	mailboxURL := os.Getenv("COORD_MAILBOX_URL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, err := session.SessionsDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve sessions directory: %v\n", err)
		os.Exit(1)
	}
	sessionID, err := session.ResolveSessionID(dir, sessionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	if mailboxURL == "" {
		if ep, ok, lerr := session.LoadEndpoint(dir, sessionID); lerr == nil && ok && ep.Remote {
			mailboxURL = ep.URL
		}
	}

	client, closeClient, err := openMailbox(mailboxURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open mailbox: %v\n", err)
		os.Exit(1)
	}
	defer closeClient()

	store, err := openSession(ctx, client, dir, sessionID, sessionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session: %v\n", err)
		os.Exit(1)
	}
	if err := session.SaveAlias(dir, sessionName, store.SessionID()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record session alias: %v\n", err)
	}
	if err := session.SaveEndpoint(dir, store.SessionID(), session.Endpoint{Remote: mailboxURL != "", URL: mailboxURL}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record mailbox endpoint: %v\n", err)
	}

	coordCtx := coordctx.New(client, store.Namespace(), store.Coordinator(), store.RoomID())
	tools := coordtool.New(store, coordCtx, client, nil)
	loop := coordinator.New(tools, coordinator.DefaultConfig())

	server := mcp.NewServer(&mcp.Implementation{Name: "coord-mcp", Version: Version}, nil)
	tools.RegisterTools(server)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		loop.Stop()
		cancel()
	}()

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "maintenance loop error: %v\n", err)
		}
	}()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

// openMailbox connects to a remote mailbox service when mailboxURL is set,
// otherwise opens a local sqlite-backed one under the session directory.
func openMailbox(mailboxURL string) (mailbox.Client, func(), error) {
	if mailboxURL != "" {
		client, err := httpmailbox.New(mailboxURL)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}

	dir, err := session.SessionsDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, err
	}
	client, err := sqlitemailbox.Open(dir + "/mailbox.db")
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// openSession resumes sessionID if it already has persisted state,
// otherwise creates a fresh session named displayName.
func openSession(ctx context.Context, client mailbox.Client, dir, sessionID, displayName string) (*session.Store, error) {
	store, err := session.ResumeSession(ctx, client, dir, sessionID, true, reconcile.Sync)
	if err == nil {
		return store, nil
	}
	if !coorderr.Is(err, coorderr.KindSessionNotFound) {
		return nil, err
	}
	return session.CreateSession(ctx, client, dir, displayName)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: coord-mcp <session-name>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  COORD_MAILBOX_URL  Remote mailbox service base URL (default: local sqlite mailbox)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Example:")
	fmt.Fprintln(os.Stderr, "  coord-mcp my-project")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Configure in an MCP-capable client:")
	fmt.Fprintln(os.Stderr, "  {")
	fmt.Fprintln(os.Stderr, "    \"mcpServers\": {")
	fmt.Fprintln(os.Stderr, "      \"coord\": {")
	fmt.Fprintln(os.Stderr, "        \"command\": \"/path/to/coord-mcp\",")
	fmt.Fprintln(os.Stderr, "        \"args\": [\"my-project\"]")
	fmt.Fprintln(os.Stderr, "      }")
	fmt.Fprintln(os.Stderr, "    }")
	fmt.Fprintln(os.Stderr, "  }")
}
