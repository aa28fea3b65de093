// Package protocol implements the coordination wire format: a tagged-union
// set of messages exchanged between the coordinator and its workers through
// the mailbox, plus the codec that serializes/deserializes them.
//
// Each variant is its own struct implementing Message; the concrete type
// doubles as the wire discriminator via Kind().
package protocol

// Kind names the wire discriminator value for each message variant.
type Kind string

const (
	KindTaskAssign         Kind = "TaskAssign"
	KindTaskAck            Kind = "TaskAck"
	KindProgress           Kind = "Progress"
	KindResult             Kind = "Result"
	KindIdle               Kind = "Idle"
	KindQuestion           Kind = "Question"
	KindAnswer             Kind = "Answer"
	KindPermissionRequest  Kind = "PermissionRequest"
	KindPermissionResponse Kind = "PermissionResponse"
	KindTerminate          Kind = "Terminate"
)

// Message is implemented by every concrete wire variant.
type Message interface {
	Kind() Kind
}

// Decision is the allow/deny vocabulary used by permission messages.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// TaskAssign is sent coordinator to worker to hand off a unit of work.
type TaskAssign struct {
	TaskID      string         `json:"task_id"`
	Description string         `json:"description"`
	Context     map[string]any `json:"context,omitempty"`
	Deadline    *string        `json:"deadline,omitempty"`
}

func (TaskAssign) Kind() Kind { return KindTaskAssign }

// TaskAck is sent worker to coordinator acknowledging receipt of a task.
type TaskAck struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
}

func (TaskAck) Kind() Kind { return KindTaskAck }

// Progress is sent worker to coordinator (or broadcast) reporting advancement.
type Progress struct {
	TaskID   string  `json:"task_id,omitempty"`
	AgentID  string  `json:"agent_id,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
}

func (Progress) Kind() Kind { return KindProgress }

// Result is sent worker to coordinator reporting task completion.
type Result struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
}

func (Result) Kind() Kind { return KindResult }

// ResultTerminated is the status value that signals worker shutdown.
const ResultTerminated = "terminated"

// Idle is sent worker to coordinator signaling readiness for work.
type Idle struct {
	AgentID string `json:"agent_id"`
}

func (Idle) Kind() Kind { return KindIdle }

// Question is sent worker to coordinator (or coordinator to human) asking
// for a decision.
type Question struct {
	QuestionID string   `json:"question_id"`
	TaskID     string   `json:"task_id,omitempty"`
	AgentID    string   `json:"agent_id,omitempty"`
	Question   string   `json:"question"`
	Options    []string `json:"options,omitempty"`
}

func (Question) Kind() Kind { return KindQuestion }

// Answer is sent coordinator to worker resolving a Question.
type Answer struct {
	QuestionID string         `json:"question_id"`
	TaskID     string         `json:"task_id,omitempty"`
	Answer     string         `json:"answer"`
	Context    map[string]any `json:"context,omitempty"`
}

func (Answer) Kind() Kind { return KindAnswer }

// PermissionRequest is sent worker to coordinator asking to perform a
// sensitive action.
type PermissionRequest struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"`
	Resource  string `json:"resource"`
	Context   string `json:"context,omitempty"`
}

func (PermissionRequest) Kind() Kind { return KindPermissionRequest }

// PermissionResponse is sent coordinator to worker resolving a
// PermissionRequest.
type PermissionResponse struct {
	RequestID string   `json:"request_id"`
	Decision  Decision `json:"decision"`
	Reason    string   `json:"reason,omitempty"`
}

func (PermissionResponse) Kind() Kind { return KindPermissionResponse }

// Terminate is sent coordinator to worker instructing shutdown.
type Terminate struct {
	Reason string `json:"reason,omitempty"`
}

func (Terminate) Kind() Kind { return KindTerminate }
