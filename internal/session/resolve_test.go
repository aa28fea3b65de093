package session

import (
	"context"
	"testing"

	"github.com/adamavenir/coord/internal/mailbox/mailboxtest"
)

func TestCreateSessionThenResumeByAlias(t *testing.T) {
	dir := t.TempDir()
	client := mailboxtest.New()
	ctx := context.Background()

	created, err := CreateSession(ctx, client, dir, "my-project")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := SaveAlias(dir, "my-project", created.SessionID()); err != nil {
		t.Fatalf("save alias: %v", err)
	}

	id, err := ResolveSessionID(dir, "my-project")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != created.SessionID() {
		t.Fatalf("resolved id = %q, want %q", id, created.SessionID())
	}

	resumed, err := ResumeSession(ctx, client, dir, id, false, nil)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.SessionID() != created.SessionID() {
		t.Fatalf("resumed session id = %q, want %q", resumed.SessionID(), created.SessionID())
	}
}

func TestResolveSessionIDFallsBackToDisplayNameScan(t *testing.T) {
	dir := t.TempDir()
	client := mailboxtest.New()
	ctx := context.Background()

	created, err := CreateSession(ctx, client, dir, "my-project")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// No alias recorded: resolution must still find the session by scanning
	// ListSessions for a matching display name.
	id, err := ResolveSessionID(dir, "my-project")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != created.SessionID() {
		t.Fatalf("resolved id = %q, want %q", id, created.SessionID())
	}
}

func TestResolveSessionIDPassesThroughUnknownName(t *testing.T) {
	dir := t.TempDir()
	id, err := ResolveSessionID(dir, "never-created")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "never-created" {
		t.Fatalf("expected passthrough, got %q", id)
	}
}

func TestResolveSessionIDAcceptsIDDirectly(t *testing.T) {
	dir := t.TempDir()
	client := mailboxtest.New()
	ctx := context.Background()

	created, err := CreateSession(ctx, client, dir, "my-project")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := ResolveSessionID(dir, created.SessionID())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != created.SessionID() {
		t.Fatalf("resolved id = %q, want %q", id, created.SessionID())
	}
}

func TestRemoveAliasIsSafeWhenUnset(t *testing.T) {
	dir := t.TempDir()
	RemoveAlias(dir, "nothing-here")
}
