package coordtool

import "context"

// InvitePayload is everything an external spawn mechanism needs to bring a
// worker online and connect it to the session. The core itself never
// launches a process or provisions a workspace: it only allocates the
// identity, registers the Agent, adds it to the room, and hands this
// payload to a Launcher.
type InvitePayload struct {
	Namespace             string
	NamespaceSecret       string
	IdentityID            string
	IdentitySecret        string
	CoordinatorIdentityID string
	RoomID                string
	AgentID               string
	WorkspaceName         string
	Remote                bool
}

// Launcher is the pluggable interface that turns an InvitePayload into a
// running worker. It splits identity allocation (coordtool's job) from
// process-spawn mechanics (the Launcher's job) so either half can be
// swapped independently — a driver for one worker runtime can be replaced
// without touching session or room bookkeeping.
type Launcher interface {
	Launch(ctx context.Context, invite InvitePayload) error
}

// NoopLauncher implements Launcher by doing nothing. It exists for tests
// and for callers that want spawn_agent to register the agent without
// triggering any real process.
type NoopLauncher struct{}

func (NoopLauncher) Launch(ctx context.Context, invite InvitePayload) error { return nil }
