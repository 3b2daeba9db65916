// Package entities defines the Strand/Goal/Task value objects that make
// up the orchestration engine's data model, and the invariants that
// must hold for them.
package entities

import "time"

// StrandStatus is reserved for future use; strands do not currently
// carry a status field distinct from their goals' aggregate state.

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalStatusActive GoalStatus = "active"
	GoalStatusDone   GoalStatus = "done"
	GoalStatusFailed GoalStatus = "failed"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusWaiting    TaskStatus = "waiting"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// allowedTaskTransitions enumerates the legal task-status transitions.
var allowedTaskTransitions = map[TaskStatus]map[TaskStatus]struct{}{
	TaskStatusPending: {
		TaskStatusInProgress: {},
		TaskStatusBlocked:    {},
	},
	TaskStatusInProgress: {
		TaskStatusDone:    {},
		TaskStatusFailed:  {},
		TaskStatusPending: {}, // retry requeue
		TaskStatusWaiting: {},
	},
	TaskStatusBlocked: {
		TaskStatusPending: {},
	},
	TaskStatusWaiting: {
		TaskStatusInProgress: {},
		TaskStatusPending:    {},
	},
	TaskStatusFailed: {}, // terminal absent explicit operator re-activation
	TaskStatusDone:   {}, // terminal
}

// CanTransitionTask reports whether a task may move from one status to another.
func CanTransitionTask(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	next, ok := allowedTaskTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// allowedGoalTransitions: active <-> done/failed; done/failed require
// explicit operator re-activation back to active.
var allowedGoalTransitions = map[GoalStatus]map[GoalStatus]struct{}{
	GoalStatusActive: {
		GoalStatusDone:   {},
		GoalStatusFailed: {},
	},
	GoalStatusDone:   {GoalStatusActive: {}},
	GoalStatusFailed: {GoalStatusActive: {}},
}

// CanTransitionGoal reports whether a goal may move from one status to another.
func CanTransitionGoal(from, to GoalStatus) bool {
	if from == to {
		return true
	}
	next, ok := allowedGoalTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// CascadeState tracks where a Goal (or Strand, for its own cascade) is
// in the PM-plan-to-concrete-entities pipeline.
type CascadeState string

const (
	CascadeStateNone             CascadeState = ""
	CascadeStateAwaitingPlan     CascadeState = "awaiting_plan"
	CascadeStateTasksCreated     CascadeState = "tasks_created"
	CascadeStatePlanReady        CascadeState = "plan_ready"
	CascadeStateResponseSaved    CascadeState = "response_saved"
	CascadeStatePlanParseFailed  CascadeState = "plan_parse_failed"
	CascadeStatePlanFetchFailed  CascadeState = "plan_fetch_failed"
)

// CascadeMode controls how much a goal-level cascade does in one pass.
type CascadeMode string

const (
	CascadeModePlan CascadeMode = "plan"
	CascadeModeFull CascadeMode = "full"
)

// AutonomyMode controls how aggressively a worker executes without approval.
type AutonomyMode string

const (
	AutonomyModePlan AutonomyMode = "plan"
	AutonomyModeFull AutonomyMode = "full"
)

// DependsOnPolicy controls whether a failed prerequisite permanently
// blocks its dependents: the default blocks forever; "skip-failed" is
// an explicit opt-in.
type DependsOnPolicy string

const (
	DependsOnPolicyBlockOnFailure DependsOnPolicy = ""
	DependsOnPolicySkipFailed     DependsOnPolicy = "skip-failed"
)

// ChatMessage is one turn of a PM conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WorktreeRef identifies a goal's isolated git worktree.
type WorktreeRef struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// WorkspaceRef identifies a strand's cloned/initialized git workspace.
type WorkspaceRef struct {
	Path    string `json:"path"`
	RepoURL string `json:"repoUrl,omitempty"`
}

// PlanStepState is one step of a worker task's streamed execution plan.
type PlanStepState struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Status string `json:"status"` // "pending" | "in-progress" | "done" | "failed"
}

// TaskPlan is the streaming plan-log state attached to a Task.
type TaskPlan struct {
	ExpectedFilePath string          `json:"expectedFilePath,omitempty"`
	Steps            []PlanStepState `json:"steps,omitempty"`
	Status           string          `json:"status,omitempty"`
}

// Task is one worker assignment inside a Goal.
type Task struct {
	ID             string       `json:"id"`
	Text           string       `json:"text"`
	Description    string       `json:"description,omitempty"`
	Status         TaskStatus   `json:"status"`
	Done           bool         `json:"done"`
	Priority       int          `json:"priority"`
	SessionKey     string       `json:"sessionKey,omitempty"`
	AssignedAgent  string       `json:"assignedAgent"`
	Model          string       `json:"model,omitempty"`
	DependsOn      []string     `json:"dependsOn,omitempty"`
	Summary        string       `json:"summary,omitempty"`
	EstimatedTime  string       `json:"estimatedTime,omitempty"`
	RetryCount     int          `json:"retryCount"`
	MaxRetries     int          `json:"maxRetries"`
	LastError      string       `json:"lastError,omitempty"`
	LastRetryAtMs  int64        `json:"lastRetryAtMs,omitempty"`
	AutonomyMode   AutonomyMode `json:"autonomyMode,omitempty"`
	Plan           TaskPlan     `json:"plan"`
	CreatedAtMs    int64        `json:"createdAtMs"`
	UpdatedAtMs    int64        `json:"updatedAtMs"`
}

// Goal is one deliverable inside a Strand.
type Goal struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Status            GoalStatus      `json:"status"`
	Completed         bool            `json:"completed"`
	StrandID          string          `json:"strandId,omitempty"`
	Phase             *int            `json:"phase,omitempty"`
	DependsOn         []string        `json:"dependsOn,omitempty"`
	DependsOnPolicy   DependsOnPolicy `json:"dependsOnPolicy,omitempty"`
	Worktree          *WorktreeRef    `json:"worktree,omitempty"`
	Sessions          []string        `json:"sessions,omitempty"`
	Tasks             []Task          `json:"tasks,omitempty"`
	PMSessionKey      string          `json:"pmSessionKey,omitempty"`
	PMChatHistory     []ChatMessage   `json:"pmChatHistory,omitempty"`
	CascadeState      CascadeState    `json:"cascadeState,omitempty"`
	CascadeMode       CascadeMode     `json:"cascadeMode,omitempty"`
	AutonomyMode      AutonomyMode    `json:"autonomyMode,omitempty"`
	PushStatus        string          `json:"pushStatus,omitempty"`
	MergeStatus       string          `json:"mergeStatus,omitempty"`
	MergeError        string          `json:"mergeError,omitempty"`
	MergedAtMs        int64           `json:"mergedAtMs,omitempty"`
	VerifyStatus      string          `json:"verifyStatus,omitempty"` // "", "passed", "failed" — set by the optional post-merge sandbox check
	VerifyError       string          `json:"verifyError,omitempty"`
	PRUrl             string          `json:"prUrl,omitempty"`
	PRNumber          int             `json:"prNumber,omitempty"`
	MaxRetries        int             `json:"maxRetries"`
	CreatedAtMs       int64           `json:"createdAtMs"`
	UpdatedAtMs       int64           `json:"updatedAtMs"`
	ClosedAtMs        int64           `json:"closedAtMs,omitempty"`
}

// Strand is a top-level project grouping.
type Strand struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Description         string        `json:"description,omitempty"`
	Color               string        `json:"color,omitempty"`
	Keywords            []string      `json:"keywords,omitempty"`
	TopicIDs            []string      `json:"topicIds,omitempty"`
	AutonomyMode        AutonomyMode  `json:"autonomyMode,omitempty"`
	Workspace           *WorkspaceRef `json:"workspace,omitempty"`
	PMStrandSessionKey  string        `json:"pmStrandSessionKey,omitempty"`
	PMChatHistory       []ChatMessage `json:"pmChatHistory,omitempty"`
	CascadePendingGoals []string      `json:"cascadePendingGoals,omitempty"`
	CascadeMode         CascadeMode   `json:"cascadeMode,omitempty"`
	PMPlanContent       string        `json:"pmPlanContent,omitempty"`
	CreatedAtMs         int64         `json:"createdAtMs"`
	UpdatedAtMs         int64         `json:"updatedAtMs"`
}

// DefaultMaxRetries is the default retry budget for a goal/task absent
// an explicit override.
const DefaultMaxRetries = 1

// DefaultHistoryLimit bounds pmChatHistory length.
const DefaultHistoryLimit = 100

// NowMs returns the current time in Unix milliseconds. Callers thread a
// clock through constructors rather than calling this directly so tests
// stay deterministic; it exists as the production default.
func NowMs(t time.Time) int64 {
	return t.UnixMilli()
}

// TrimHistory trims a chat history to the history limit, oldest-first,
// enforcing invariant 9.
func TrimHistory(history []ChatMessage, limit int) []ChatMessage {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
