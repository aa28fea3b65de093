// Package coordtool implements the Coordinator Tool Surface: the verbs the
// coordinator agent invokes (spawn_agent, message_agent, broadcast,
// poll_messages, list_agents, grant_permission, escalate_to_user,
// terminate_agent, check_agent_health, and the permission-queue
// operations).
//
// Toolset bundles the collaborators a handler needs — a *session.Store and
// a *coordctx.Context — explicitly rather than through package-level or
// global state, with one method per verb and a plain-string human-readable
// report as the success value.
package coordtool

import (
	"context"
	"fmt"

	"github.com/adamavenir/coord/internal/clog"
	"github.com/adamavenir/coord/internal/coordctx"
	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/mailbox"
	"github.com/adamavenir/coord/internal/protocol"
	"github.com/adamavenir/coord/internal/session"
	"github.com/google/uuid"
)

// Toolset is the coordinator-scoped context passed to every tool
// invocation: it wraps the session store, the coordination context, the
// mailbox client (needed for identity/room allocation that the
// coordination context doesn't expose), and a pluggable Launcher.
type Toolset struct {
	Store    *session.Store
	Ctx      *coordctx.Context
	Client   mailbox.Client
	Launcher Launcher

	log *clog.Logger
}

// New constructs a Toolset. launcher may be nil, in which case NoopLauncher
// is used.
func New(store *session.Store, ctx *coordctx.Context, client mailbox.Client, launcher Launcher) *Toolset {
	if launcher == nil {
		launcher = NoopLauncher{}
	}
	return &Toolset{Store: store, Ctx: ctx, Client: client, Launcher: launcher, log: clog.Sub("coordtool")}
}

// SpawnAgent allocates an identity, registers an Agent in spawning, adds it
// to the coordination room, and hands an invite payload to the launcher.
func (t *Toolset) SpawnAgent(ctx context.Context, workspaceName, displayName string, remote bool) (string, error) {
	ns := t.Store.Namespace()
	coordinator := t.Store.Coordinator()

	if displayName == "" {
		displayName = workspaceName
	}
	identity, err := t.Client.CreateIdentity(ctx, ns, displayName)
	if err != nil {
		return "", err
	}

	agentID := uuid.NewString()
	if _, err := t.Store.RegisterAgent(agentID, identity.ID, displayName, workspaceName); err != nil {
		return "", err
	}

	added, err := t.Store.AddAgentToRoom(ctx, t.Client, agentID)
	if err != nil {
		return "", err
	}

	invite := InvitePayload{
		Namespace:             ns.ID,
		NamespaceSecret:       ns.Secret,
		IdentityID:            identity.ID,
		IdentitySecret:        identity.Secret,
		CoordinatorIdentityID: coordinator.ID,
		RoomID:                t.Store.RoomID(),
		AgentID:               agentID,
		WorkspaceName:         workspaceName,
		Remote:                remote,
	}
	if err := t.Launcher.Launch(ctx, invite); err != nil {
		return "", err
	}

	return fmt.Sprintf("spawned agent %s (identity %s, room-member=%v)", agentID, identity.ID, added), nil
}

// MessageAgentOptions carries the per-message-type fields of message_agent.
type MessageAgentOptions struct {
	TaskID      string
	Description string
	TaskContext map[string]any
	Deadline    *string
	QuestionID  string
	Answer      string
	AnswerCtx   map[string]any
	Reason      string
}

// MessageAgent dispatches exactly one message to agentID, per messageType:
// "task" sends TaskAssign and transitions the agent to working; "answer"
// sends Answer with no state change; "terminate" sends Terminate and
// transitions the agent to terminated.
func (t *Toolset) MessageAgent(ctx context.Context, agentID, messageType string, opts MessageAgentOptions) (string, error) {
	agent, ok := t.Store.GetAgent(agentID)
	if !ok {
		return "", coorderr.Newf(coorderr.KindAgentUnknown, "unknown agent %q", agentID)
	}

	var msg protocol.Message
	switch messageType {
	case "task":
		msg = protocol.TaskAssign{
			TaskID:      opts.TaskID,
			Description: opts.Description,
			Context:     opts.TaskContext,
			Deadline:    opts.Deadline,
		}
	case "answer":
		msg = protocol.Answer{
			QuestionID: opts.QuestionID,
			TaskID:     opts.TaskID,
			Answer:     opts.Answer,
			Context:    opts.AnswerCtx,
		}
	case "terminate":
		msg = protocol.Terminate{Reason: opts.Reason}
	default:
		return "", coorderr.Newf(coorderr.KindCodecUnknownType, "unknown message_agent type %q", messageType)
	}

	// Network errors surface as a tool-call failure; state is not changed
	// until the send succeeds.
	if err := t.Ctx.Send(ctx, agent.IdentityID, msg); err != nil {
		return "", err
	}

	switch messageType {
	case "task":
		if err := t.Store.UpdateAgentState(agentID, session.AgentWorking, opts.TaskID, ""); err != nil {
			return "", err
		}
	case "terminate":
		if err := t.Store.UpdateAgentState(agentID, session.AgentTerminated, "", ""); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("sent %s to agent %s", messageType, agentID), nil
}

// Broadcast sends a Progress (or equivalent) message to the coordination
// room.
func (t *Toolset) Broadcast(ctx context.Context, message, messageType, taskID string) (string, error) {
	if messageType == "" {
		messageType = "progress"
	}
	msg := protocol.Progress{TaskID: taskID, Message: message}
	if err := t.Ctx.Broadcast(ctx, msg); err != nil {
		return "", err
	}
	return fmt.Sprintf("broadcast sent (%s)", messageType), nil
}

// PollMessages calls Ctx.Receive and applies the resulting state updates,
// returning a human-readable summary.
func (t *Toolset) PollMessages(ctx context.Context, wait int, includeRoom bool) (string, error) {
	received, err := t.Ctx.Receive(ctx, wait, includeRoom)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, r := range received {
		agent, ok := t.Store.GetAgentByIdentity(r.SenderID)
		if ok {
			if err := t.Store.UpdateAgentLastSeen(agent.AgentID); err != nil {
				t.log.Printf("poll_messages: update last_seen for %s: %v", agent.AgentID, err)
			}
			if err := t.applyInferredState(agent.AgentID, r.Message, r.Timestamp); err != nil {
				t.log.Printf("poll_messages: apply state for %s: %v", agent.AgentID, err)
			}
		}
		lines = append(lines, formatReceived(r))
	}

	if len(lines) == 0 {
		return "no messages", nil
	}
	summary := fmt.Sprintf("%d message(s):", len(lines))
	for _, line := range lines {
		summary += "\n  - " + line
	}
	return summary, nil
}

// applyInferredState classifies an inbound message into the agent state it
// implies, applied live as each message arrives rather than replayed from
// room history the way the reconciler does on resume.
func (t *Toolset) applyInferredState(agentID string, msg protocol.Message, timestamp string) error {
	switch m := msg.(type) {
	case protocol.Idle:
		return t.Store.UpdateAgentState(agentID, session.AgentIdle, "", "")
	case protocol.Progress:
		taskID := m.TaskID
		if taskID == "" {
			// Progress omits task_id when it's implicit from the agent's
			// current assignment; UpdateAgentState requires a non-empty one
			// to accept a working transition, so carry the existing
			// assignment forward instead of manufacturing a task id.
			if agent, ok := t.Store.GetAgent(agentID); ok {
				taskID = agent.CurrentTaskID
			}
		}
		if taskID == "" {
			return nil
		}
		return t.Store.UpdateAgentState(agentID, session.AgentWorking, taskID, "")
	case protocol.Result:
		if m.Status == protocol.ResultTerminated {
			return t.Store.UpdateAgentState(agentID, session.AgentTerminated, "", "")
		}
		return t.Store.UpdateAgentState(agentID, session.AgentIdle, "", "")
	case protocol.PermissionRequest:
		if _, exists := t.Store.GetPendingPermission(m.RequestID); !exists {
			if err := t.Store.QueuePermission(m.RequestID, agentID, m.Action, m.Resource, m.Context); err != nil {
				return err
			}
		}
		return t.Store.UpdateAgentState(agentID, session.AgentWaitingPermission, "", "")
	default:
		return nil
	}
}

func formatReceived(r coordctx.ReceivedMessage) string {
	source := "direct"
	if r.FromRoom {
		source = "room"
	}
	return fmt.Sprintf("[%s] %s from %s: %T", r.Timestamp, source, r.SenderID, r.Message)
}

// TerminateAgent is a convenience wrapper over MessageAgent("terminate").
func (t *Toolset) TerminateAgent(ctx context.Context, agentID, reason string) (string, error) {
	return t.MessageAgent(ctx, agentID, "terminate", MessageAgentOptions{Reason: reason})
}
