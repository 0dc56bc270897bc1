// Package types holds the shared data model used across the planner,
// executor, tool-chain optimiser, session manager and MCP client so that
// none of those packages needs to import another's internals.
package types

import "time"

// TaskStatus is the lifecycle state of a SubTask within a TaskPlan.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskRolledBack TaskStatus = "rolled_back"
)

// RollbackAction is a tool invocation to run on reverse traversal.
type RollbackAction struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// SubTask is one node of a TaskPlan.
type SubTask struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	ToolName       string          `json:"tool_name"`
	Arguments      map[string]any  `json:"arguments"`
	Dependencies   []string        `json:"dependencies"`
	Status         TaskStatus      `json:"status"`
	RollbackAction *RollbackAction `json:"rollback_action,omitempty"`
	Result         any             `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// TaskPlan is a validated DAG of SubTasks produced by the planner.
type TaskPlan struct {
	Goal            string     `json:"goal"`
	SubTasks        []*SubTask `json:"subtasks"`
	ExecutionOrder  []string   `json:"execution_order"`
	ValidationErrors []string  `json:"validation_errors"`
}

// TaskByID returns the subtask with the given id, or nil.
func (p *TaskPlan) TaskByID(id string) *SubTask {
	for _, t := range p.SubTasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Valid reports whether the plan has no validation errors.
func (p *TaskPlan) Valid() bool {
	return len(p.ValidationErrors) == 0
}

// Observation is the outcome of dispatching one subtask's tool call.
type Observation struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Result    any            `json:"result"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ReflectionType classifies the LLM's judgement of a failed observation.
type ReflectionType string

const (
	ReflectionSuccess        ReflectionType = "success"
	ReflectionPartialSuccess ReflectionType = "partial_success"
	ReflectionFailure        ReflectionType = "failure"
	ReflectionNeedMoreInfo   ReflectionType = "need_more_info"
)

// SuggestedAction is one candidate next dispatch proposed by a Reflection.
type SuggestedAction struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Reason    string         `json:"reason"`
}

// Reflection is produced by the LLM after a failed Observation.
type Reflection struct {
	ReflectionType   ReflectionType    `json:"reflection_type"`
	Insights         []string          `json:"insights"`
	SuggestedActions []SuggestedAction `json:"suggested_actions"`
	Confidence       float64           `json:"confidence"`
	Reasoning        string            `json:"reasoning"`
}

// ContextItemType classifies the origin of a ContextItem.
type ContextItemType string

const (
	ContextUserQuery   ContextItemType = "user_query"
	ContextToolResult  ContextItemType = "tool_result"
	ContextObservation ContextItemType = "observation"
	ContextReflection  ContextItemType = "reflection"
)

// ContextItem is one entry in a session's relevance-ranked context stream.
// ContextItems are append-only: pruning removes items but a kept item's
// Content is never rewritten, only RelevanceScore is.
type ContextItem struct {
	ID             string          `json:"id"`
	Content        any             `json:"content"`
	Type           ContextItemType `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	RelevanceScore float64         `json:"relevance_score"`
}

// ToolNode is the tool-chain optimiser's unit of scheduling.
type ToolNode struct {
	ID             string
	ToolName       string
	Arguments      map[string]any
	Dependencies   []string
	CanRunParallel bool
}

// GraphNode is one node of a write-once ExecutionGraph audit record.
type GraphNode struct {
	ID   string `json:"id"`
	Data any    `json:"data"`
}

// GraphEdge is one edge of a write-once ExecutionGraph audit record.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ExecutionGraph is a write-once diagnostic snapshot stored into memory.
type ExecutionGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Decision is a policy engine verdict.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionDeny   Decision = "deny"
	DecisionDryRun Decision = "dry_run"
)

// ActionType identifies the kind of MCP operation a policy decision gates.
type ActionType string

const (
	ActionResource ActionType = "resource"
	ActionTool     ActionType = "tool"
	ActionPrompt   ActionType = "prompt"
)

// Action is the payload a policy decision is computed over.
type Action struct {
	Type      ActionType
	Server    string
	Name      string
	Arguments map[string]any
	URI       string
}

// ExecutionResult is one entry of the agent façade's running results list.
type ExecutionResult struct {
	TaskID  string `json:"task_id"`
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Result  any    `json:"result"`
}

// ExecutorSummary is the audit-trail summary of one executor's lifetime.
type ExecutorSummary struct {
	Total       int       `json:"total"`
	SuccessRate float64   `json:"success_rate"`
	Attempts    []Attempt `json:"attempts"`
}

// Attempt records one dispatch attempt for the executor summary.
type Attempt struct {
	ToolName  string    `json:"tool_name"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}
