package coordtool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/protocol"
	"github.com/adamavenir/coord/internal/session"
	"github.com/google/uuid"
)

// GrantPermission resolves requestID to its PendingPermission, sends a
// PermissionResponse to the owning agent, and updates the pending entry's
// status. If agentID is supplied and disagrees with the entry's recorded
// agent, inference is ambiguous and the tool fails determinately rather
// than guessing which agent to notify.
func (t *Toolset) GrantPermission(ctx context.Context, requestID string, decision protocol.Decision, agentID, reason string) (string, error) {
	pending, ok := t.Store.GetPendingPermission(requestID)
	if !ok {
		return "", coorderr.Newf(coorderr.KindPermissionUnknownRequest, "unknown permission request %q", requestID)
	}
	if agentID != "" && agentID != pending.AgentID {
		return "", coorderr.Newf(coorderr.KindPermissionAmbiguousAgent,
			"request %q belongs to agent %q, not %q", requestID, pending.AgentID, agentID)
	}

	agent, ok := t.Store.GetAgent(pending.AgentID)
	if !ok {
		return "", coorderr.Newf(coorderr.KindAgentUnknown, "unknown agent %q", pending.AgentID)
	}

	msg := protocol.PermissionResponse{RequestID: requestID, Decision: decision, Reason: reason}
	if err := t.Ctx.Send(ctx, agent.IdentityID, msg); err != nil {
		return "", err
	}

	status := session.PermissionDenied
	if decision == protocol.DecisionAllow {
		status = session.PermissionGranted
	}
	if err := t.Store.UpdatePendingPermission(requestID, status); err != nil {
		return "", err
	}

	if agent.State == session.AgentWaitingPermission {
		if err := t.Store.UpdateAgentState(agent.AgentID, session.AgentWorking, agent.CurrentTaskID, ""); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("permission %s: %s (agent %s)", requestID, decision, agent.AgentID), nil
}

// GrantQueuedPermission is the permission-queue-specific entry point for
// the same operation as GrantPermission, named separately since the two
// are invoked from different coordinator intents even though they act on
// the same pending map.
func (t *Toolset) GrantQueuedPermission(ctx context.Context, requestID string, decision protocol.Decision, reason string) (string, error) {
	return t.GrantPermission(ctx, requestID, decision, "", reason)
}

// EscalateToUser sends a Question to every registered human with context
// and the allow/deny options. If no humans are registered, the pending
// entry is left as-is and a "queued" report is returned.
func (t *Toolset) EscalateToUser(ctx context.Context, requestID, humanContext string) (string, error) {
	pending, ok := t.Store.GetPendingPermission(requestID)
	if !ok {
		return "", coorderr.Newf(coorderr.KindPermissionUnknownRequest, "unknown permission request %q", requestID)
	}

	humans := t.Store.ListHumans()
	if len(humans) == 0 {
		return fmt.Sprintf("no humans registered; request %q left queued", requestID), nil
	}

	question := protocol.Question{
		QuestionID: uuid.NewString(),
		AgentID:    pending.AgentID,
		Question:   fmt.Sprintf("permission request %s: %s on %s (%s)", requestID, pending.Action, pending.Resource, humanContext),
		Options:    []string{string(protocol.DecisionAllow), string(protocol.DecisionDeny)},
	}

	var failures []string
	for _, h := range humans {
		if err := t.Ctx.Send(ctx, h.IdentityID, question); err != nil {
			failures = append(failures, h.IdentityID)
		}
	}
	if len(failures) > 0 {
		return "", coorderr.Newf(coorderr.KindMailboxTransport, "failed to escalate to humans: %s", strings.Join(failures, ", "))
	}

	return fmt.Sprintf("escalated request %q to %d human(s)", requestID, len(humans)), nil
}

// ListPendingPermissions returns the pending map's entries matching the
// given filters, formatted for the coordinator agent.
func (t *Toolset) ListPendingPermissions(agentID string, statusFilter session.PermissionStatus) string {
	entries := t.Store.ListPendingPermissions(agentID, statusFilter)
	if len(entries) == 0 {
		return "no pending permissions"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending permission(s):\n", len(entries))
	for _, p := range entries {
		fmt.Fprintf(&b, "  - %s agent=%s action=%s resource=%s status=%s requested_at=%s\n",
			p.RequestID, p.AgentID, p.Action, p.Resource, p.Status, p.RequestedAt.Format(time.RFC3339))
	}
	return b.String()
}

// ClearExpiredPermissions marks pending entries older than maxAgeHours as
// expired and reports the count.
func (t *Toolset) ClearExpiredPermissions(maxAgeHours float64) (string, error) {
	count, err := t.Store.ClearExpiredPermissions(time.Duration(maxAgeHours * float64(time.Hour)))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("expired %d permission(s)", count), nil
}
