package coordtool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/coord/internal/session"
)

// ListAgents is a pure read, formatted for the coordinator agent.
func (t *Toolset) ListAgents(stateFilter session.AgentState, showDetails bool) string {
	agents := t.Store.ListAgents(stateFilter)
	if len(agents) == 0 {
		return "no agents"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d agent(s):\n", len(agents))
	for _, a := range agents {
		fmt.Fprintf(&b, "  - %s [%s]", a.AgentID, a.State)
		if showDetails {
			fmt.Fprintf(&b, " workspace=%q current_task=%q last_seen=%s",
				a.WorkspaceName, a.CurrentTaskID, a.LastSeen.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// GetSessionState is a pure read including counts by state.
func (t *Toolset) GetSessionState() string {
	snap := t.Store.Snapshot()

	counts := map[session.AgentState]int{}
	for _, a := range snap.Agents {
		counts[a.State]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "session %s %q\n", snap.SessionID, snap.DisplayName)
	fmt.Fprintf(&b, "agents: %d total", len(snap.Agents))
	for _, state := range []session.AgentState{
		session.AgentSpawning, session.AgentStarting, session.AgentIdle,
		session.AgentWorking, session.AgentWaitingPermission, session.AgentTerminated,
	} {
		if counts[state] > 0 {
			fmt.Fprintf(&b, ", %s=%d", state, counts[state])
		}
	}
	fmt.Fprintf(&b, "\nhumans: %d\n", len(snap.Humans))
	pending := 0
	for _, p := range snap.PendingPerms {
		if p.Status == session.PermissionPending {
			pending++
		}
	}
	fmt.Fprintf(&b, "pending permissions: %d\n", pending)
	return b.String()
}

// HealthTriage classifies one agent as healthy, stale, or never-seen
// relative to the staleness cutoff CheckAgentHealth computes.
type HealthTriage struct {
	AgentID    string
	State      session.AgentState
	NeverSeen  bool
	Stale      bool
	LastActive time.Time
}

// CheckAgentHealth compares each non-terminated agent's last_seen (or
// created_at, if never seen) against now-staleMinutes.
func (t *Toolset) CheckAgentHealth(staleMinutes int) []HealthTriage {
	cutoff := time.Now().UTC().Add(-time.Duration(staleMinutes) * time.Minute)
	agents := t.Store.ListAgents("")

	out := make([]HealthTriage, 0, len(agents))
	for _, a := range agents {
		if a.State == session.AgentTerminated {
			continue
		}
		lastActive := a.LastSeen
		neverSeen := a.LastSeen.IsZero()
		if neverSeen {
			lastActive = a.CreatedAt
		}
		out = append(out, HealthTriage{
			AgentID:    a.AgentID,
			State:      a.State,
			NeverSeen:  neverSeen,
			Stale:      lastActive.Before(cutoff),
			LastActive: lastActive,
		})
	}
	return out
}

// CreateHumanInvite allocates a human identity in the session's namespace,
// registers the human, and adds them to the coordination room. The
// returned Identity's credentials are what the external CLI surfaces to
// the invited user.
func (t *Toolset) CreateHumanInvite(ctx context.Context, displayName string) (humanIdentityID, humanSecret string, err error) {
	ns := t.Store.Namespace()
	identity, err := t.Client.CreateIdentity(ctx, ns, displayName)
	if err != nil {
		return "", "", err
	}
	if _, err := t.Store.RegisterHuman(identity.ID, displayName); err != nil {
		return "", "", err
	}
	if _, err := t.Store.AddHumanToRoom(ctx, t.Client, identity.ID); err != nil {
		return "", "", err
	}
	return identity.ID, identity.Secret, nil
}
