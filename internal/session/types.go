// Package session implements the Session Store: the durable, JSON-backed
// registry of agents, humans, and pending permissions for one coordination
// session.
package session

import "time"

// AgentState is the canonical lifecycle state of one Agent.
type AgentState string

const (
	AgentSpawning          AgentState = "spawning"
	AgentStarting          AgentState = "starting"
	AgentIdle              AgentState = "idle"
	AgentWorking           AgentState = "working"
	AgentWaitingPermission AgentState = "waiting_permission"
	AgentTerminated        AgentState = "terminated"
)

// Agent is one worker known to the session.
type Agent struct {
	AgentID       string     `json:"agent_id"`
	IdentityID    string     `json:"identity_id"`
	DisplayName   string     `json:"display_name"`
	WorkspaceName string     `json:"workspace_name,omitempty"`
	State         AgentState `json:"state"`
	CurrentTaskID string     `json:"current_task_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastSeen      time.Time  `json:"last_seen"`
	TmuxSession   string     `json:"tmux_session,omitempty"`
}

// Human is one human participant registered in the session.
type Human struct {
	IdentityID  string    `json:"identity_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// PermissionStatus is the lifecycle state of a PendingPermission.
type PermissionStatus string

const (
	PermissionPending PermissionStatus = "pending"
	PermissionGranted PermissionStatus = "granted"
	PermissionDenied  PermissionStatus = "denied"
	PermissionExpired PermissionStatus = "expired"
)

// PendingPermission is a worker's outstanding request to perform a
// sensitive action, awaiting a coordinator or human decision.
type PendingPermission struct {
	RequestID   string           `json:"request_id"`
	AgentID     string           `json:"agent_id"`
	Action      string           `json:"action"`
	Resource    string           `json:"resource"`
	Context     string           `json:"context,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	Status      PermissionStatus `json:"status"`
}

// State is the full persisted shape of one session: everything in §3's
// data model, serialized verbatim to the session's JSON document.
type State struct {
	SessionID         string                        `json:"session_id"`
	DisplayName       string                        `json:"display_name,omitempty"`
	NamespaceID       string                        `json:"namespace_id"`
	NamespaceSecret   string                        `json:"namespace_secret"`
	CoordinatorID     string                        `json:"coordinator_id"`
	CoordinatorSecret string                        `json:"coordinator_secret"`
	RoomID            string                        `json:"room_id"`
	CreatedAt         time.Time                     `json:"created_at"`
	Agents            map[string]*Agent             `json:"agents"`
	Humans            map[string]*Human             `json:"humans"`
	PendingPerms      map[string]*PendingPermission `json:"pending_permissions"`
}

func newState(sessionID, displayName string) *State {
	return &State{
		SessionID:    sessionID,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
		Agents:       map[string]*Agent{},
		Humans:       map[string]*Human{},
		PendingPerms: map[string]*PendingPermission{},
	}
}
