package session

import (
	"context"
	"testing"
	"time"

	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/mailbox/mailboxtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	client := mailboxtest.New()
	store, err := CreateSession(context.Background(), client, dir, "proj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return store
}

func TestRegisterAgentStartsSpawning(t *testing.T) {
	store := newTestStore(t)
	agent, err := store.RegisterAgent("a1", "ident1", "worker-one", "ws")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if agent.State != AgentSpawning {
		t.Fatalf("state = %q, want spawning", agent.State)
	}
	got, ok := store.GetAgent("a1")
	if !ok || got.State != AgentSpawning {
		t.Fatalf("get after register: %+v, %v", got, ok)
	}
}

func TestUpdateAgentStateWorkingRequiresTaskID(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.RegisterAgent("a1", "ident1", "w", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.UpdateAgentState("a1", AgentWorking, "", ""); coorderr.KindOf(err) != coorderr.KindAgentIllegalTransition {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if err := store.UpdateAgentState("a1", AgentWorking, "t1", ""); err != nil {
		t.Fatalf("working with task id: %v", err)
	}
	got, _ := store.GetAgent("a1")
	if got.CurrentTaskID != "t1" {
		t.Fatalf("task id = %q, want t1", got.CurrentTaskID)
	}
}

func TestUpdateAgentStateIdleClearsTaskID(t *testing.T) {
	store := newTestStore(t)
	store.RegisterAgent("a1", "ident1", "w", "")
	store.UpdateAgentState("a1", AgentWorking, "t1", "")
	if err := store.UpdateAgentState("a1", AgentIdle, "", ""); err != nil {
		t.Fatalf("idle: %v", err)
	}
	got, _ := store.GetAgent("a1")
	if got.CurrentTaskID != "" {
		t.Fatalf("expected cleared task id, got %q", got.CurrentTaskID)
	}
}

func TestUpdateAgentStateNeverLeavesTerminated(t *testing.T) {
	store := newTestStore(t)
	store.RegisterAgent("a1", "ident1", "w", "")
	if err := store.UpdateAgentState("a1", AgentTerminated, "", ""); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := store.UpdateAgentState("a1", AgentIdle, "", ""); coorderr.KindOf(err) != coorderr.KindAgentIllegalTransition {
		t.Fatalf("expected illegal transition resurrecting terminated agent, got %v", err)
	}
}

func TestUpdateAgentStateUnknownAgent(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpdateAgentState("ghost", AgentIdle, "", ""); coorderr.KindOf(err) != coorderr.KindAgentUnknown {
		t.Fatalf("expected agent/unknown, got %v", err)
	}
}

func TestListAgentsFiltersByStateAndSortsByID(t *testing.T) {
	store := newTestStore(t)
	store.RegisterAgent("b1", "i2", "w2", "")
	store.RegisterAgent("a1", "i1", "w1", "")
	store.UpdateAgentState("a1", AgentIdle, "", "")

	all := store.ListAgents("")
	if len(all) != 2 || all[0].AgentID != "a1" || all[1].AgentID != "b1" {
		t.Fatalf("unexpected order: %+v", all)
	}
	idle := store.ListAgents(AgentIdle)
	if len(idle) != 1 || idle[0].AgentID != "a1" {
		t.Fatalf("unexpected idle filter result: %+v", idle)
	}
}

func TestRemoveAgentUnknown(t *testing.T) {
	store := newTestStore(t)
	if err := store.RemoveAgent("ghost"); coorderr.KindOf(err) != coorderr.KindAgentUnknown {
		t.Fatalf("expected agent/unknown, got %v", err)
	}
}

func TestQueuePermissionLaterRequestWins(t *testing.T) {
	store := newTestStore(t)
	if err := store.QueuePermission("r1", "a1", "read", "/tmp/a", "first"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := store.QueuePermission("r1", "a1", "write", "/tmp/b", "second"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	p, ok := store.GetPendingPermission("r1")
	if !ok {
		t.Fatalf("expected entry to exist")
	}
	if p.Action != "write" || p.Resource != "/tmp/b" || p.Context != "second" {
		t.Fatalf("later request did not win: %+v", p)
	}
	if p.Status != PermissionPending {
		t.Fatalf("status = %q, want pending", p.Status)
	}
}

func TestUpdatePendingPermissionUnknown(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpdatePendingPermission("ghost", PermissionGranted); coorderr.KindOf(err) != coorderr.KindPermissionUnknownRequest {
		t.Fatalf("expected permission/unknown-request, got %v", err)
	}
}

func TestClearExpiredPermissionsOnlyTouchesOldPending(t *testing.T) {
	store := newTestStore(t)
	store.QueuePermission("fresh", "a1", "read", "/tmp/a", "")
	store.QueuePermission("old", "a1", "read", "/tmp/b", "")

	// Backdate "old" directly in the in-memory state so it looks stale
	// without waiting on a real clock.
	store.mu.Lock()
	store.st.PendingPerms["old"].RequestedAt = time.Now().UTC().Add(-time.Hour)
	store.mu.Unlock()

	n, err := store.ClearExpiredPermissions(time.Minute)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired count = %d, want 1", n)
	}
	old, _ := store.GetPendingPermission("old")
	if old.Status != PermissionExpired {
		t.Fatalf("old status = %q, want expired", old.Status)
	}
	fresh, _ := store.GetPendingPermission("fresh")
	if fresh.Status != PermissionPending {
		t.Fatalf("fresh status = %q, want pending", fresh.Status)
	}
}

func TestListSessionsAndDeleteSession(t *testing.T) {
	dir := t.TempDir()
	client := mailboxtest.New()
	ctx := context.Background()

	s1, err := CreateSession(ctx, client, dir, "proj-one")
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	if _, err := CreateSession(ctx, client, dir, "proj-two"); err != nil {
		t.Fatalf("create 2: %v", err)
	}

	states, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(states))
	}

	if ok, err := DeleteSession(dir, s1.SessionID()); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	states, err = ListSessions(dir)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 session after delete, got %d", len(states))
	}

	if ok, err := DeleteSession(dir, s1.SessionID()); err != nil || ok {
		t.Fatalf("expected ok=false on repeat delete, got ok=%v err=%v", ok, err)
	}
}

func TestResumeSessionNotFound(t *testing.T) {
	dir := t.TempDir()
	client := mailboxtest.New()
	_, err := ResumeSession(context.Background(), client, dir, "nope", false, nil)
	if coorderr.KindOf(err) != coorderr.KindSessionNotFound {
		t.Fatalf("expected session/not-found, got %v", err)
	}
}
