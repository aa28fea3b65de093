package coordtool

import (
	"context"

	"github.com/adamavenir/coord/internal/protocol"
	"github.com/adamavenir/coord/internal/session"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools registers every coordinator verb as an MCP tool: one
// mcp.AddTool call per verb, a typed args struct per tool, a toolResult/
// toolError pair turning a (string, error) into *mcp.CallToolResult.

type spawnAgentArgs struct {
	WorkspaceName string `json:"workspace_name,omitempty" jsonschema:"Label correlating this agent with its external workspace/process"`
	DisplayName   string `json:"display_name,omitempty" jsonschema:"Human-readable name for the new agent"`
	Remote        bool   `json:"remote,omitempty" jsonschema:"Spawn via the remote workspace launcher instead of locally"`
}

type messageAgentArgs struct {
	AgentID     string         `json:"agent_id" jsonschema:"Target agent id"`
	MessageType string         `json:"message_type" jsonschema:"One of task, answer, terminate"`
	TaskID      string         `json:"task_id,omitempty" jsonschema:"Task id (required for task and answer)"`
	Description string         `json:"description,omitempty" jsonschema:"Task description (required for task)"`
	TaskContext map[string]any `json:"context,omitempty" jsonschema:"Free-form task context"`
	Deadline    string         `json:"deadline,omitempty" jsonschema:"ISO-8601 deadline (optional, task only)"`
	QuestionID  string         `json:"question_id,omitempty" jsonschema:"Question id being answered (required for answer)"`
	Answer      string         `json:"answer,omitempty" jsonschema:"Answer text (required for answer)"`
	Reason      string         `json:"reason,omitempty" jsonschema:"Reason (optional, terminate only)"`
}

type broadcastArgs struct {
	Message     string `json:"message" jsonschema:"Message body to broadcast to the coordination room"`
	MessageType string `json:"message_type,omitempty" jsonschema:"Defaults to progress"`
	TaskID      string `json:"task_id,omitempty" jsonschema:"Associated task id, if any"`
}

type pollMessagesArgs struct {
	Wait        *int  `json:"wait,omitempty" jsonschema:"Seconds to wait for new messages (default 30, 0 for non-blocking)"`
	IncludeRoom *bool `json:"include_room,omitempty" jsonschema:"Also poll the coordination room (default true)"`
}

type listAgentsArgs struct {
	StateFilter string `json:"state_filter,omitempty" jsonschema:"Restrict to agents in this state"`
	ShowDetails bool   `json:"show_details,omitempty" jsonschema:"Include workspace/task/last_seen detail"`
}

type createHumanInviteArgs struct {
	DisplayName string `json:"display_name,omitempty" jsonschema:"Display name for the invited human (default: Human Observer)"`
}

type grantPermissionArgs struct {
	RequestID string `json:"request_id" jsonschema:"Pending permission request id"`
	Decision  string `json:"decision" jsonschema:"allow or deny"`
	AgentID   string `json:"agent_id,omitempty" jsonschema:"Disambiguate the owning agent (optional)"`
	Reason    string `json:"reason,omitempty" jsonschema:"Reason (optional)"`
}

type escalateToUserArgs struct {
	RequestID string `json:"request_id" jsonschema:"Pending permission request id"`
	Context   string `json:"context,omitempty" jsonschema:"Additional context for the human"`
}

type terminateAgentArgs struct {
	AgentID string `json:"agent_id" jsonschema:"Agent to terminate"`
	Reason  string `json:"reason,omitempty" jsonschema:"Reason (optional)"`
}

type checkAgentHealthArgs struct {
	StaleMinutes int `json:"stale_minutes,omitempty" jsonschema:"Staleness threshold in minutes (default 10)"`
}

type listPendingPermissionsArgs struct {
	AgentID string `json:"agent_id,omitempty" jsonschema:"Restrict to this agent (optional)"`
	Status  string `json:"status,omitempty" jsonschema:"Restrict to this status (optional)"`
}

type grantQueuedPermissionArgs struct {
	RequestID string `json:"request_id" jsonschema:"Pending permission request id"`
	Decision  string `json:"decision" jsonschema:"allow or deny"`
	Reason    string `json:"reason,omitempty" jsonschema:"Reason (optional)"`
}

type clearExpiredPermissionsArgs struct {
	MaxAgeHours float64 `json:"max_age_hours,omitempty" jsonschema:"Age cutoff in hours (default 24)"`
}

// RegisterTools wires every coordinator verb into server.
func (t *Toolset) RegisterTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "spawn_agent",
		Description: "Spawn a new worker agent: allocate its identity, register it, and hand its invite payload to the launcher.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args spawnAgentArgs) (*mcp.CallToolResult, any, error) {
		report, err := t.SpawnAgent(ctx, args.WorkspaceName, args.DisplayName, args.Remote)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "message_agent",
		Description: "Send exactly one message (task, answer, or terminate) to a worker agent.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args messageAgentArgs) (*mcp.CallToolResult, any, error) {
		opts := MessageAgentOptions{
			TaskID:      args.TaskID,
			Description: args.Description,
			TaskContext: args.TaskContext,
			QuestionID:  args.QuestionID,
			Answer:      args.Answer,
			Reason:      args.Reason,
		}
		if args.Deadline != "" {
			opts.Deadline = &args.Deadline
		}
		report, err := t.MessageAgent(ctx, args.AgentID, args.MessageType, opts)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "broadcast",
		Description: "Broadcast a progress message to the coordination room.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args broadcastArgs) (*mcp.CallToolResult, any, error) {
		report, err := t.Broadcast(ctx, args.Message, args.MessageType, args.TaskID)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "poll_messages",
		Description: "Poll for new direct and room messages, applying inferred state updates.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args pollMessagesArgs) (*mcp.CallToolResult, any, error) {
		wait := 30
		if args.Wait != nil {
			wait = *args.Wait
		}
		includeRoom := args.IncludeRoom == nil || *args.IncludeRoom
		report, err := t.PollMessages(ctx, wait, includeRoom)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_agents",
		Description: "List known agents, optionally filtered by state.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args listAgentsArgs) (*mcp.CallToolResult, any, error) {
		report := t.ListAgents(session.AgentState(args.StateFilter), args.ShowDetails)
		return toolResult(report, false), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session_state",
		Description: "Report the session's agent/human/permission counts.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ map[string]any) (*mcp.CallToolResult, any, error) {
		return toolResult(t.GetSessionState(), false), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_human_invite",
		Description: "Allocate a human identity in this session and add them to the coordination room.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args createHumanInviteArgs) (*mcp.CallToolResult, any, error) {
		displayName := args.DisplayName
		if displayName == "" {
			displayName = "Human Observer"
		}
		identityID, secret, err := t.CreateHumanInvite(ctx, displayName)
		if err != nil {
			return toolOutcome("", err), nil, nil
		}
		return toolResult("identity_id="+identityID+" secret="+secret, false), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "grant_permission",
		Description: "Allow or deny a pending permission request.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args grantPermissionArgs) (*mcp.CallToolResult, any, error) {
		report, err := t.GrantPermission(ctx, args.RequestID, protocol.Decision(args.Decision), args.AgentID, args.Reason)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "escalate_to_user",
		Description: "Ask every registered human to allow or deny a pending permission request.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args escalateToUserArgs) (*mcp.CallToolResult, any, error) {
		report, err := t.EscalateToUser(ctx, args.RequestID, args.Context)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "terminate_agent",
		Description: "Send a Terminate message to an agent and mark it terminated.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args terminateAgentArgs) (*mcp.CallToolResult, any, error) {
		report, err := t.TerminateAgent(ctx, args.AgentID, args.Reason)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "check_agent_health",
		Description: "Triage non-terminated agents as healthy, stale, or never-seen.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args checkAgentHealthArgs) (*mcp.CallToolResult, any, error) {
		stale := args.StaleMinutes
		if stale == 0 {
			stale = 10
		}
		return toolResult(formatHealth(t.CheckAgentHealth(stale)), false), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_pending_permissions",
		Description: "List pending permission requests, optionally filtered by agent or status.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args listPendingPermissionsArgs) (*mcp.CallToolResult, any, error) {
		report := t.ListPendingPermissions(args.AgentID, session.PermissionStatus(args.Status))
		return toolResult(report, false), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "grant_queued_permission",
		Description: "Allow or deny a permission request previously queued from the pending map.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args grantQueuedPermissionArgs) (*mcp.CallToolResult, any, error) {
		report, err := t.GrantQueuedPermission(ctx, args.RequestID, protocol.Decision(args.Decision), args.Reason)
		return toolOutcome(report, err), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_expired_permissions",
		Description: "Mark pending permissions older than max_age_hours as expired.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args clearExpiredPermissionsArgs) (*mcp.CallToolResult, any, error) {
		maxAge := args.MaxAgeHours
		if maxAge == 0 {
			maxAge = 24
		}
		report, err := t.ClearExpiredPermissions(maxAge)
		return toolOutcome(report, err), nil, nil
	})
}

func toolResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func toolError(text string) *mcp.CallToolResult {
	return toolResult(text, true)
}

// toolOutcome turns a (report, err) pair into a CallToolResult, the shared
// shape every mutating tool handler above returns.
func toolOutcome(report string, err error) *mcp.CallToolResult {
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(report, false)
}

func formatHealth(triage []HealthTriage) string {
	if len(triage) == 0 {
		return "no non-terminated agents"
	}
	out := ""
	for _, h := range triage {
		label := "healthy"
		if h.NeverSeen {
			label = "never-seen"
		} else if h.Stale {
			label = "stale"
		}
		out += h.AgentID + ": " + label + " (" + string(h.State) + ")\n"
	}
	return out
}
