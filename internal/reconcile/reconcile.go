// Package reconcile implements the Session Reconciler: on resume, it
// replays a bounded window of the coordination room's recent history and
// repairs each agent's inferred state.
//
// Each message is classified by sender and type, the latest-by-timestamp
// classification per agent wins, a terminated agent is never demoted, and
// the repaired state is persisted once at the end rather than per message.
package reconcile

import (
	"context"
	"time"

	"github.com/adamavenir/coord/internal/clog"
	"github.com/adamavenir/coord/internal/mailbox"
	"github.com/adamavenir/coord/internal/protocol"
	"github.com/adamavenir/coord/internal/session"
)

var log = clog.Sub("reconcile")

// HistoryLimit bounds how many of the most recent room messages a single
// reconciliation pass replays, so a very long-lived session doesn't force an
// unbounded replay. The full history is still fetched from the mailbox.
const HistoryLimit = 500

// classification is the most recent inferred state seen for one agent.
type classification struct {
	agentID   string
	state     session.AgentState
	timestamp string
}

// Sync replays st's coordination room history through client and applies
// the inferred agent states to st in memory (the caller — session.Store —
// persists). It matches session.ReconcileFunc's signature so it can be
// wired as the sync callback for session.ResumeSession.
//
// Errors from the mailbox degrade to "no updates" rather than aborting
// resume.
func Sync(ctx context.Context, client mailbox.Client, st *session.State) error {
	ns := mailbox.Namespace{ID: st.NamespaceID, Secret: st.NamespaceSecret}

	envelopes, err := client.GetRoomMessages(ctx, ns, st.RoomID, st.CoordinatorSecret, "")
	if err != nil {
		log.Printf("reconciliation degraded: room history unavailable: %v", err)
		return nil
	}

	if len(envelopes) > HistoryLimit {
		envelopes = envelopes[len(envelopes)-HistoryLimit:]
	}

	latest := map[string]classification{}
	// requestID -> already queued, so PermissionRequests already present in
	// the pending map aren't re-enqueued.
	alreadyPending := map[string]bool{}
	for requestID := range st.PendingPerms {
		alreadyPending[requestID] = true
	}

	for _, env := range envelopes {
		agent, ok := agentForSender(st, env.SenderID)
		if !ok {
			continue
		}

		msg, err := protocol.Deserialize(env.Body, env.ContentType)
		if err != nil {
			log.Printf("skipping unclassifiable envelope from %s: %v", env.SenderID, err)
			continue
		}

		state, queue := classify(msg)
		if state == "" {
			continue
		}

		if queue != nil && !alreadyPending[queue.RequestID] {
			queue.AgentID = agent.AgentID
			queue.RequestedAt = time.Now().UTC()
			st.PendingPerms[queue.RequestID] = queue
			alreadyPending[queue.RequestID] = true
		}

		prev, seen := latest[agent.AgentID]
		if !seen || env.Timestamp > prev.timestamp {
			latest[agent.AgentID] = classification{agentID: agent.AgentID, state: state, timestamp: env.Timestamp}
		}
	}

	for agentID, c := range latest {
		agent := st.Agents[agentID]
		if agent == nil {
			continue
		}
		if agent.State == session.AgentTerminated && c.state != session.AgentTerminated {
			continue // never demote a terminated agent
		}
		agent.State = c.state
		if c.state == session.AgentIdle {
			agent.CurrentTaskID = ""
		}
		// last_seen is set to the classifying message's timestamp when it
		// parses as a real instant; an opaque non-time cursor (as the
		// in-memory test mailbox uses) leaves last_seen as the reconciler
		// found it rather than guessing a value.
		if t, err := time.Parse(time.RFC3339Nano, c.timestamp); err == nil {
			agent.LastSeen = t
		}
	}

	return nil
}

func agentForSender(st *session.State, senderID string) (*session.Agent, bool) {
	for _, agent := range st.Agents {
		if agent.IdentityID == senderID {
			return agent, true
		}
	}
	return nil, false
}

// classify maps one decoded message to the agent state it implies, and,
// for PermissionRequest, the PendingPermission it should enqueue if not
// already present.
func classify(msg protocol.Message) (session.AgentState, *session.PendingPermission) {
	switch m := msg.(type) {
	case protocol.Idle:
		return session.AgentIdle, nil
	case protocol.TaskAck:
		return session.AgentWorking, nil
	case protocol.Progress:
		return session.AgentWorking, nil
	case protocol.Result:
		if m.Status == protocol.ResultTerminated {
			return session.AgentTerminated, nil
		}
		return session.AgentIdle, nil
	case protocol.PermissionRequest:
		return session.AgentWaitingPermission, &session.PendingPermission{
			RequestID: m.RequestID,
			Action:    m.Action,
			Resource:  m.Resource,
			Context:   m.Context,
			Status:    session.PermissionPending,
		}
	default:
		return "", nil
	}
}
