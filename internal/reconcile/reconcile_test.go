package reconcile

import (
	"context"
	"testing"

	"github.com/adamavenir/coord/internal/mailbox"
	"github.com/adamavenir/coord/internal/mailbox/mailboxtest"
	"github.com/adamavenir/coord/internal/protocol"
	"github.com/adamavenir/coord/internal/session"
)

func sendRoom(t *testing.T, client *mailboxtest.Mailbox, ns mailbox.Namespace, roomID, secret string, msg protocol.Message) {
	t.Helper()
	body, contentType, err := protocol.Serialize(msg, false)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if err := client.SendRoomMessage(context.Background(), ns, roomID, body, secret, contentType); err != nil {
		t.Fatalf("send room message: %v", err)
	}
}

func newSessionWithAgent(t *testing.T) (*mailboxtest.Mailbox, *session.State, mailbox.Namespace, mailbox.Identity) {
	t.Helper()
	client := mailboxtest.New()
	ctx := context.Background()

	ns, err := client.CreateNamespace(ctx, "proj")
	if err != nil {
		t.Fatalf("create namespace: %v", err)
	}
	coordinator, err := client.CreateIdentity(ctx, ns, "coordinator")
	if err != nil {
		t.Fatalf("create coordinator identity: %v", err)
	}
	room, err := client.CreateRoom(ctx, ns, coordinator.Secret, "proj")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := client.AddRoomMember(ctx, ns, room.ID, coordinator.ID, coordinator.Secret); err != nil {
		t.Fatalf("add coordinator to room: %v", err)
	}

	agentIdentity, err := client.CreateIdentity(ctx, ns, "worker-one")
	if err != nil {
		t.Fatalf("create agent identity: %v", err)
	}
	if err := client.AddRoomMember(ctx, ns, room.ID, agentIdentity.ID, coordinator.Secret); err != nil {
		t.Fatalf("add agent to room: %v", err)
	}

	st := &session.State{
		NamespaceID:       ns.ID,
		NamespaceSecret:   ns.Secret,
		CoordinatorID:     coordinator.ID,
		CoordinatorSecret: coordinator.Secret,
		RoomID:            room.ID,
		Agents: map[string]*session.Agent{
			"a1": {AgentID: "a1", IdentityID: agentIdentity.ID, State: session.AgentWorking, CurrentTaskID: "t1"},
		},
		Humans:       map[string]*session.Human{},
		PendingPerms: map[string]*session.PendingPermission{},
	}
	return client, st, ns, agentIdentity
}

func TestSyncClassifiesIdle(t *testing.T) {
	client, st, ns, agent := newSessionWithAgent(t)
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.Idle{AgentID: "a1"})

	if err := Sync(context.Background(), client, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Agents["a1"].State != session.AgentIdle {
		t.Fatalf("state = %q, want idle", st.Agents["a1"].State)
	}
	if st.Agents["a1"].CurrentTaskID != "" {
		t.Fatalf("expected cleared task id, got %q", st.Agents["a1"].CurrentTaskID)
	}
}

func TestSyncResultWithUnrecognizedStatusGoesIdle(t *testing.T) {
	client, st, ns, agent := newSessionWithAgent(t)
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.Result{TaskID: "t1", AgentID: "a1", Status: "partial-success"})

	if err := Sync(context.Background(), client, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Agents["a1"].State != session.AgentIdle {
		t.Fatalf("state = %q, want idle", st.Agents["a1"].State)
	}
}

func TestSyncResultTerminatedSticks(t *testing.T) {
	client, st, ns, agent := newSessionWithAgent(t)
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.Result{TaskID: "t1", AgentID: "a1", Status: protocol.ResultTerminated})

	if err := Sync(context.Background(), client, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Agents["a1"].State != session.AgentTerminated {
		t.Fatalf("state = %q, want terminated", st.Agents["a1"].State)
	}
}

func TestSyncNeverDemotesTerminated(t *testing.T) {
	client, st, ns, agent := newSessionWithAgent(t)
	st.Agents["a1"].State = session.AgentTerminated
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.Idle{AgentID: "a1"})

	if err := Sync(context.Background(), client, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Agents["a1"].State != session.AgentTerminated {
		t.Fatalf("terminated agent was demoted to %q", st.Agents["a1"].State)
	}
}

func TestSyncQueuesPermissionRequestOnce(t *testing.T) {
	client, st, ns, agent := newSessionWithAgent(t)
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.PermissionRequest{
		RequestID: "r1", Action: "write", Resource: "/tmp/x",
	})
	// A pre-existing pending entry for the same request id should not be
	// clobbered by a replay of the same message on a later reconciliation.
	st.PendingPerms["r1"] = &session.PendingPermission{
		RequestID: "r1", AgentID: "a1", Action: "write", Resource: "/tmp/x",
		Status: session.PermissionGranted,
	}

	if err := Sync(context.Background(), client, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Agents["a1"].State != session.AgentWaitingPermission {
		t.Fatalf("state = %q, want waiting_permission", st.Agents["a1"].State)
	}
	if st.PendingPerms["r1"].Status != session.PermissionGranted {
		t.Fatalf("existing pending entry was overwritten: %+v", st.PendingPerms["r1"])
	}
}

func TestSyncDegradesOnTransportFailure(t *testing.T) {
	client, st, _, _ := newSessionWithAgent(t)
	st.RoomID = "does-not-exist"
	st.Agents["a1"].State = session.AgentWorking

	if err := Sync(context.Background(), client, st); err != nil {
		t.Fatalf("expected degraded no-op, got error: %v", err)
	}
	if st.Agents["a1"].State != session.AgentWorking {
		t.Fatalf("state changed despite transport failure: %q", st.Agents["a1"].State)
	}
}

func TestSyncKeepsLatestByTimestampAcrossMultipleMessages(t *testing.T) {
	client, st, ns, agent := newSessionWithAgent(t)
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.TaskAck{TaskID: "t1", AgentID: "a1"})
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.Progress{TaskID: "t1", AgentID: "a1", Progress: 0.5})
	sendRoom(t, client, ns, st.RoomID, agent.Secret, protocol.Idle{AgentID: "a1"})

	if err := Sync(context.Background(), client, st); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if st.Agents["a1"].State != session.AgentIdle {
		t.Fatalf("state = %q, want idle (last message wins)", st.Agents["a1"].State)
	}
}
