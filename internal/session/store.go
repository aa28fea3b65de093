package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/mailbox"
)

const coordinatorDisplayName = "coordinator"

// ReconcileFunc is invoked by ResumeSession when sync is requested. It is a
// function type rather than a direct import of package reconcile so that
// reconcile (which needs session's types) does not import back into
// session; the entry points (cmd/coord-mcp and internal/command) pass
// reconcile.Sync as this argument.
type ReconcileFunc func(ctx context.Context, client mailbox.Client, st *State) error

// Store holds one session's State in memory, persisting it to a single
// JSON document after every mutating operation. All exported methods lock
// internally; the coordinator process is single-threaded with respect to
// session mutation, so this mutex exists to protect against incidental
// concurrent access (e.g. a CLI command run alongside the coordinator
// loop) rather than to serialize a naturally concurrent workload.
type Store struct {
	mu  sync.Mutex
	dir string
	st  *State
}

// SessionsDir returns the default directory session documents live under:
// ~/.coord/sessions. A session is addressed by its id alone, with no
// project-tree discovery involved.
func SessionsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", coorderr.Wrap(coorderr.KindSessionPersistFailed, "resolve home directory", err)
	}
	return filepath.Join(home, ".coord", "sessions"), nil
}

func sessionPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".json")
}

// CreateSession allocates a namespace, a coordinator identity, and the
// coordination room through client, then persists a freshly registered
// session.
func CreateSession(ctx context.Context, client mailbox.Client, dir, displayName string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = SessionsDir()
		if err != nil {
			return nil, err
		}
	}

	sessionID := uuid.NewString()
	ns, err := client.CreateNamespace(ctx, displayName)
	if err != nil {
		return nil, err
	}
	coordinator, err := client.CreateIdentity(ctx, ns, coordinatorDisplayName)
	if err != nil {
		return nil, err
	}
	room, err := client.CreateRoom(ctx, ns, coordinator.Secret, displayName)
	if err != nil {
		return nil, err
	}
	if err := client.AddRoomMember(ctx, ns, room.ID, coordinator.ID, coordinator.Secret); err != nil {
		return nil, err
	}

	st := newState(sessionID, displayName)
	st.NamespaceID = ns.ID
	st.NamespaceSecret = ns.Secret
	st.CoordinatorID = coordinator.ID
	st.CoordinatorSecret = coordinator.Secret
	st.RoomID = room.ID

	store := &Store{dir: dir, st: st}
	if err := store.persist(); err != nil {
		return nil, err
	}
	return store, nil
}

// ResumeSession loads a previously persisted session. If sync is true and
// reconcile is non-nil, the loaded state is repaired against recent room
// history before being returned.
func ResumeSession(ctx context.Context, client mailbox.Client, dir, sessionID string, sync bool, reconcile ReconcileFunc) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = SessionsDir()
		if err != nil {
			return nil, err
		}
	}

	path := sessionPath(dir, sessionID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, coorderr.Newf(coorderr.KindSessionNotFound, "session %q not found at %s", sessionID, path)
	}
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindSessionPersistFailed, "read session file", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, coorderr.Wrap(coorderr.KindSessionPersistFailed, "parse session file", err)
	}
	if st.Agents == nil {
		st.Agents = map[string]*Agent{}
	}
	if st.Humans == nil {
		st.Humans = map[string]*Human{}
	}
	if st.PendingPerms == nil {
		st.PendingPerms = map[string]*PendingPermission{}
	}

	store := &Store{dir: dir, st: &st}

	if sync && reconcile != nil {
		if err := reconcile(ctx, client, store.st); err != nil {
			// Reconciliation failures degrade to "no updates"; they never
			// abort resume.
			_ = err
		}
		if err := store.persist(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// persist writes the current state to disk, write-to-temp-then-rename so a
// reader never observes a partial document.
func (s *Store) persist() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return coorderr.Wrap(coorderr.KindSessionPersistFailed, "create sessions directory", err)
	}

	data, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return coorderr.Wrap(coorderr.KindSessionPersistFailed, "marshal session state", err)
	}
	data = append(data, '\n')

	path := sessionPath(s.dir, s.st.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return coorderr.Wrap(coorderr.KindSessionPersistFailed, "write temp session file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return coorderr.Wrap(coorderr.KindSessionPersistFailed, "rename session file", err)
	}
	return nil
}

// SessionID returns the id of the session this store holds.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SessionID
}

// Namespace returns the session's mailbox namespace handle.
func (s *Store) Namespace() mailbox.Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mailbox.Namespace{ID: s.st.NamespaceID, Secret: s.st.NamespaceSecret}
}

// Coordinator returns the session's coordinator identity.
func (s *Store) Coordinator() mailbox.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mailbox.Identity{ID: s.st.CoordinatorID, Secret: s.st.CoordinatorSecret}
}

// RoomID returns the session's coordination room id.
func (s *Store) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.RoomID
}

// Snapshot returns a deep-enough copy of the state for read-only reporting.
// Callers must not mutate the returned maps' values.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.st
}

// RegisterAgent inserts a new Agent in the spawning state.
func (s *Store) RegisterAgent(agentID, identityID, displayName, workspaceName string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent := &Agent{
		AgentID:       agentID,
		IdentityID:    identityID,
		DisplayName:   displayName,
		WorkspaceName: workspaceName,
		State:         AgentSpawning,
		CreatedAt:     time.Now().UTC(),
		// LastSeen stays zero until the agent's first message: a silent,
		// just-spawned agent must read as never-seen, not as healthy.
	}
	s.st.Agents[agentID] = agent
	if err := s.persist(); err != nil {
		return nil, err
	}
	copyAgent := *agent
	return &copyAgent, nil
}

// UpdateAgentState transitions agent to state, optionally setting taskID
// and tmuxSession, and refreshes last_seen to now. Setting state to idle
// clears current_task_id; setting to working requires a non-empty taskID.
func (s *Store) UpdateAgentState(agentID string, state AgentState, taskID, tmuxSession string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.st.Agents[agentID]
	if !ok {
		return coorderr.Newf(coorderr.KindAgentUnknown, "unknown agent %q", agentID)
	}
	if agent.State == AgentTerminated && state != AgentTerminated {
		return coorderr.Newf(coorderr.KindAgentIllegalTransition, "agent %q is terminated", agentID)
	}
	if state == AgentWorking && taskID == "" {
		return coorderr.Newf(coorderr.KindAgentIllegalTransition, "agent %q: working requires a task id", agentID)
	}

	agent.State = state
	if state == AgentIdle {
		agent.CurrentTaskID = ""
	} else if taskID != "" {
		agent.CurrentTaskID = taskID
	}
	if tmuxSession != "" {
		agent.TmuxSession = tmuxSession
	}
	agent.LastSeen = time.Now().UTC()

	return s.persist()
}

// UpdateAgentLastSeen touches last_seen without changing state.
func (s *Store) UpdateAgentLastSeen(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.st.Agents[agentID]
	if !ok {
		return coorderr.Newf(coorderr.KindAgentUnknown, "unknown agent %q", agentID)
	}
	agent.LastSeen = time.Now().UTC()
	return s.persist()
}

// RemoveAgent drops agentID from the registry, terminated or not.
func (s *Store) RemoveAgent(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.Agents[agentID]; !ok {
		return coorderr.Newf(coorderr.KindAgentUnknown, "unknown agent %q", agentID)
	}
	delete(s.st.Agents, agentID)
	return s.persist()
}

// GetAgent returns the agent with agentID, or ok=false.
func (s *Store) GetAgent(agentID string) (Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.st.Agents[agentID]
	if !ok {
		return Agent{}, false
	}
	return *agent, true
}

// GetAgentByIdentity finds the agent whose identity_id matches identityID.
func (s *Store) GetAgentByIdentity(identityID string) (Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agent := range s.st.Agents {
		if agent.IdentityID == identityID {
			return *agent, true
		}
	}
	return Agent{}, false
}

// ListAgents returns agents matching stateFilter (or all, if empty),
// sorted by agent_id for deterministic output.
func (s *Store) ListAgents(stateFilter AgentState) []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, 0, len(s.st.Agents))
	for _, agent := range s.st.Agents {
		if stateFilter != "" && agent.State != stateFilter {
			continue
		}
		out = append(out, *agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// RegisterHuman adds a human participant to the session.
func (s *Store) RegisterHuman(identityID, displayName string) (*Human, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	human := &Human{IdentityID: identityID, DisplayName: displayName, JoinedAt: time.Now().UTC()}
	s.st.Humans[identityID] = human
	if err := s.persist(); err != nil {
		return nil, err
	}
	copyHuman := *human
	return &copyHuman, nil
}

// GetHuman returns the human with identityID, or ok=false.
func (s *Store) GetHuman(identityID string) (Human, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	human, ok := s.st.Humans[identityID]
	if !ok {
		return Human{}, false
	}
	return *human, true
}

// ListHumans returns every registered human, sorted by identity_id.
func (s *Store) ListHumans() []Human {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Human, 0, len(s.st.Humans))
	for _, human := range s.st.Humans {
		out = append(out, *human)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out
}

// QueuePermission inserts a pending PendingPermission, overwriting any
// existing entry for the same requestID — the later request wins.
func (s *Store) QueuePermission(requestID, agentID, action, resource, ctx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.PendingPerms[requestID] = &PendingPermission{
		RequestID:   requestID,
		AgentID:     agentID,
		Action:      action,
		Resource:    resource,
		Context:     ctx,
		RequestedAt: time.Now().UTC(),
		Status:      PermissionPending,
	}
	return s.persist()
}

// GetPendingPermission returns the entry for requestID, or ok=false.
func (s *Store) GetPendingPermission(requestID string) (PendingPermission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.PendingPerms[requestID]
	if !ok {
		return PendingPermission{}, false
	}
	return *p, true
}

// ListPendingPermissions returns entries for agentID (or all agents, if
// empty) matching statusFilter (or all statuses, if empty).
func (s *Store) ListPendingPermissions(agentID string, statusFilter PermissionStatus) []PendingPermission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingPermission, 0, len(s.st.PendingPerms))
	for _, p := range s.st.PendingPerms {
		if agentID != "" && p.AgentID != agentID {
			continue
		}
		if statusFilter != "" && p.Status != statusFilter {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// UpdatePendingPermission sets status, preserving other fields.
func (s *Store) UpdatePendingPermission(requestID string, status PermissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.PendingPerms[requestID]
	if !ok {
		return coorderr.Newf(coorderr.KindPermissionUnknownRequest, "unknown permission request %q", requestID)
	}
	p.Status = status
	return s.persist()
}

// RemovePendingPermission drops requestID from the pending map.
func (s *Store) RemovePendingPermission(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.PendingPerms[requestID]; !ok {
		return coorderr.Newf(coorderr.KindPermissionUnknownRequest, "unknown permission request %q", requestID)
	}
	delete(s.st.PendingPerms, requestID)
	return s.persist()
}

// ClearExpiredPermissions marks every pending entry older than maxAge as
// expired (never removes) and returns the count affected.
func (s *Store) ClearExpiredPermissions(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-maxAge)
	count := 0
	for _, p := range s.st.PendingPerms {
		if p.Status == PermissionPending && p.RequestedAt.Before(cutoff) {
			p.Status = PermissionExpired
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.persist(); err != nil {
		return 0, err
	}
	return count, nil
}

// AddAgentToRoom adds the agent's identity to the coordination room.
// Idempotent in effect.
func (s *Store) AddAgentToRoom(ctx context.Context, client mailbox.Client, agentID string) (bool, error) {
	s.mu.Lock()
	agent, ok := s.st.Agents[agentID]
	ns := mailbox.Namespace{ID: s.st.NamespaceID, Secret: s.st.NamespaceSecret}
	roomID := s.st.RoomID
	coordinatorSecret := s.st.CoordinatorSecret
	s.mu.Unlock()
	if !ok {
		return false, coorderr.Newf(coorderr.KindAgentUnknown, "unknown agent %q", agentID)
	}
	if err := client.AddRoomMember(ctx, ns, roomID, agent.IdentityID, coordinatorSecret); err != nil {
		return false, err
	}
	return true, nil
}

// AddHumanToRoom adds a human's identity to the coordination room.
func (s *Store) AddHumanToRoom(ctx context.Context, client mailbox.Client, identityID string) (bool, error) {
	s.mu.Lock()
	ns := mailbox.Namespace{ID: s.st.NamespaceID, Secret: s.st.NamespaceSecret}
	roomID := s.st.RoomID
	coordinatorSecret := s.st.CoordinatorSecret
	s.mu.Unlock()
	if err := client.AddRoomMember(ctx, ns, roomID, identityID, coordinatorSecret); err != nil {
		return false, err
	}
	return true, nil
}

// ListSessions enumerates persisted sessions under dir, most recently
// created first.
func ListSessions(dir string) ([]State, error) {
	if dir == "" {
		var err error
		dir, err = SessionsDir()
		if err != nil {
			return nil, err
		}
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, coorderr.Wrap(coorderr.KindSessionPersistFailed, "list sessions directory", err)
	}

	var out []State
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var st State
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteSession removes the persisted document for sessionID. ok is false
// if no such session existed.
func DeleteSession(dir, sessionID string) (bool, error) {
	if dir == "" {
		var err error
		dir, err = SessionsDir()
		if err != nil {
			return false, err
		}
	}
	path := sessionPath(dir, sessionID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, coorderr.Wrap(coorderr.KindSessionPersistFailed, "delete session file", err)
	}
	_ = os.Remove(endpointPath(dir, sessionID))
	return true, nil
}
