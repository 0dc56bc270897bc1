// Package agentfacade composes the planner, self-correcting executor,
// tool-chain optimiser, MCP client and session manager into the
// end-to-end pipeline described in spec.md §4.6: gather context, plan,
// detect an advisory tool-chain, execute in topological order with
// self-correction, manage context, synthesise an answer, and persist
// the interaction.
package agentfacade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/executor"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/mcp"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/memory"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/planner"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/policy"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/session"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/toolchain"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

// serverName is the single tool-server name the control path knows about.
const serverName = "terminal"

// AUTOCheckpointInterval is the number of answer() calls between
// automatic session checkpoints.
const AUTOCheckpointInterval = 10

var tracer = otel.Tracer("agentfacade")

// Oracle is the text-in/text-out LLM callable driving planning,
// reflection and final-answer synthesis.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Agent is the façade: it exclusively owns the planner, executor
// template, session manager and MCP client for one run, per the spec's
// ownership rules.
type Agent struct {
	client  *mcp.Client
	planner *planner.Planner
	oracle  Oracle
	policy  *policy.Engine
	session *session.Manager
	memory  *memory.Store
	logger  *slog.Logger

	maxRetries  int
	interaction int

	rollbackStack []rollbackEntry
}

type rollbackEntry struct {
	TaskID string
	Action types.RollbackAction
}

// New creates an Agent wiring client, oracle, policy, session and memory
// together. maxRetries <= 0 uses the executor's default of 3.
func New(client *mcp.Client, oracle Oracle, pol *policy.Engine, sess *session.Manager, mem *memory.Store, maxRetries int, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		client:     client,
		planner:    planner.New(oracle),
		oracle:     oracle,
		policy:     pol,
		session:    sess,
		memory:     mem,
		logger:     logger.With("component", "agentfacade"),
		maxRetries: maxRetries,
	}
}

// RunStats aggregates per-answer() counts for the audit trail appended
// to memory.
type RunStats struct {
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
	TasksSkipped   int           `json:"tasks_skipped"`
	ToolCalls      int           `json:"tool_calls"`
	WallTime       time.Duration `json:"wall_time"`
}

// memoryRecord is the audit-trail shape persisted after every answer().
type memoryRecord struct {
	Question          string                  `json:"question"`
	Plan               *types.TaskPlan         `json:"plan"`
	ExecutionResults   []types.ExecutionResult `json:"execution_results"`
	Answer             string                  `json:"answer"`
	ExecutionGraph     types.ExecutionGraph    `json:"execution_graph"`
	ExecutorSummaries  []types.ExecutorSummary `json:"executor_summaries"`
	Stats              RunStats                `json:"stats"`
}

// Answer runs the full pipeline for one user goal and returns the
// synthesised natural-language answer.
func (a *Agent) Answer(ctx context.Context, goal string) (string, error) {
	ctx, span := tracer.Start(ctx, "agent.answer")
	defer span.End()

	start := time.Now()
	stats := RunStats{}

	a.session.Add(types.ContextUserQuery, goal)

	cwd := a.readTextResourceOrUnknown(ctx, "session://cwd")
	_ = a.readTextResourceOrUnknown(ctx, "system://info")

	toolInfos := toolInfosFromClient(a.client)

	plan := a.planWithSpan(ctx, goal, cwd, toolInfos)
	graph := planToGraph(plan)

	if !plan.Valid() {
		a.logger.Warn("plan has validation errors; proceeding with skip-on-failure semantics",
			"goal", goal, "errors", plan.ValidationErrors)
	}

	nodes := toolchain.DetectFromGoal(plan.SubTasks)
	if batches, err := toolchain.Plan(nodes); err == nil {
		a.logger.Info("advisory tool-chain batching", "plan", toolchain.Describe(batches))
	} else {
		a.logger.Warn("advisory tool-chain detection found an unresolvable cycle", "error", err)
	}

	results, summaries := a.execute(ctx, goal, plan, &stats)

	query := goal
	compressed := a.session.Compress(query, 2000)
	a.session.PruneByRelevance(query, 50)

	answer, err := a.synthesise(ctx, goal, stats, results, compressed)
	if err != nil {
		answer = defaultAnswer(plan, results)
	}

	stats.WallTime = time.Since(start)

	a.memory.Store(memoryRecord{
		Question:          goal,
		Plan:              plan,
		ExecutionResults:  results,
		Answer:            answer,
		ExecutionGraph:    graph,
		ExecutorSummaries: summaries,
		Stats:             stats,
	}, "termagent")

	a.interaction++
	if a.interaction%AUTOCheckpointInterval == 0 {
		if err := a.session.Checkpoint(fmt.Sprintf("auto-%d", a.interaction)); err != nil {
			a.logger.Warn("auto checkpoint failed", "error", err)
		}
	}

	return answer, nil
}

func (a *Agent) planWithSpan(ctx context.Context, goal, cwd string, tools []planner.ToolInfo) *types.TaskPlan {
	ctx, span := tracer.Start(ctx, "agent.plan")
	defer span.End()
	return a.planner.Plan(ctx, goal, cwd, tools)
}

func (a *Agent) readTextResourceOrUnknown(ctx context.Context, uri string) string {
	contents, err := a.client.ReadResource(ctx, serverName, uri)
	if err != nil || len(contents) == 0 {
		return "unknown"
	}
	return contents[0].Text
}

// execute runs the plan's subtasks in topological order, honoring
// dependency/skip checks, argument-result injection, a façade-level
// policy re-check, self-correcting dispatch, and rollback-stack and
// context bookkeeping.
func (a *Agent) execute(ctx context.Context, goal string, plan *types.TaskPlan, stats *RunStats) ([]types.ExecutionResult, []types.ExecutorSummary) {
	ctx, span := tracer.Start(ctx, "agent.execute")
	defer span.End()

	var results []types.ExecutionResult
	var summaries []types.ExecutorSummary
	succeeded := make(map[string]bool, len(plan.SubTasks))

	for _, id := range plan.ExecutionOrder {
		task := plan.TaskByID(id)
		if task == nil {
			continue
		}

		if !dependenciesSucceeded(task, succeeded) {
			task.Status = types.TaskFailed
			task.Error = "skipped: unsatisfied dependency"
			stats.TasksSkipped++
			results = append(results, types.ExecutionResult{TaskID: task.ID, Tool: task.ToolName, Success: false})
			continue
		}

		a.injectArguments(task, results)

		decision := a.policy.Decide(types.Action{
			Type:      types.ActionTool,
			Server:    serverName,
			Name:      task.ToolName,
			Arguments: task.Arguments,
		})
		if decision == types.DecisionDeny {
			task.Status = types.TaskFailed
			task.Error = "skipped: policy denied"
			stats.TasksSkipped++
			results = append(results, types.ExecutionResult{TaskID: task.ID, Tool: task.ToolName, Success: false})
			continue
		}

		task.Status = types.TaskInProgress
		exec := executor.New(&clientDispatcher{client: a.client}, a.oracle, a.maxRetries)
		obs := exec.ActWithRetry(ctx, goal, task.ToolName, task.Arguments)
		stats.ToolCalls += len(exec.Observations())
		summaries = append(summaries, exec.Summary())

		task.Result = obs.Result
		if obs.Success {
			task.Status = types.TaskCompleted
			succeeded[task.ID] = true
			stats.TasksCompleted++
		} else {
			task.Status = types.TaskFailed
			task.Error = obs.Error
			stats.TasksFailed++
		}

		results = append(results, types.ExecutionResult{
			TaskID:  task.ID,
			Tool:    task.ToolName,
			Success: obs.Success,
			Result:  obs.Result,
		})

		if task.RollbackAction != nil {
			a.rollbackStack = append(a.rollbackStack, rollbackEntry{TaskID: task.ID, Action: *task.RollbackAction})
		}

		a.session.Add(types.ContextToolResult, obs)
	}

	return results, summaries
}

// injectArguments applies the single declarative argument-result
// injection rule: a write_file-like task with empty content inherits a
// textual rendering of the most recent successful result. This is not a
// general data-flow engine — it stays single-rule by design.
func (a *Agent) injectArguments(task *types.SubTask, priorResults []types.ExecutionResult) {
	if task.ToolName != "write_file" {
		return
	}
	if task.Arguments == nil {
		task.Arguments = map[string]any{}
	}
	content, ok := task.Arguments["content"]
	if ok {
		if s, isStr := content.(string); !isStr || s != "" {
			return
		}
	}

	for i := len(priorResults) - 1; i >= 0; i-- {
		if !priorResults[i].Success {
			continue
		}
		rendered := renderResult(priorResults[i].Result)
		if rendered == "" {
			continue
		}
		if a.policy.ContainsShellMetachar(rendered) {
			a.logger.Warn("skipped argument injection: prior result contains shell metacharacters",
				"task_id", task.ID, "tool", task.ToolName)
			continue
		}
		task.Arguments["content"] = rendered
		return
	}
}

func renderResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func dependenciesSucceeded(task *types.SubTask, succeeded map[string]bool) bool {
	for _, dep := range task.Dependencies {
		if !succeeded[dep] {
			return false
		}
	}
	return true
}

func (a *Agent) synthesise(ctx context.Context, goal string, stats RunStats, results []types.ExecutionResult, compressedContext string) (string, error) {
	resultsJSON, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		resultsJSON = []byte("[]")
	}

	prompt := fmt.Sprintf(
		"Goal: %s\nCompleted tasks: %d\nResults:\n%s\n\n%s\n\nSynthesise a natural-language answer to the goal, "+
			"explaining failures if any occurred.",
		goal, stats.TasksCompleted, string(resultsJSON), compressedContext,
	)
	return a.oracle.Generate(ctx, prompt)
}

// defaultAnswer is constructed from the plan text and the last non-empty
// result when synthesis itself fails.
func defaultAnswer(plan *types.TaskPlan, results []types.ExecutionResult) string {
	var lastResult string
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Success && results[i].Result != nil {
			lastResult = renderResult(results[i].Result)
			break
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", plan.Goal)
	if lastResult != "" {
		fmt.Fprintf(&b, "Last successful result: %s\n", lastResult)
	} else {
		b.WriteString("No successful results were produced.\n")
	}
	return b.String()
}

// Rollback pops the rollback stack and dispatches each action through the
// MCP client in reverse order. Per-step failures are logged and do not
// halt rollback of remaining items.
func (a *Agent) Rollback(ctx context.Context) {
	for len(a.rollbackStack) > 0 {
		entry := a.rollbackStack[len(a.rollbackStack)-1]
		a.rollbackStack = a.rollbackStack[:len(a.rollbackStack)-1]

		if _, err := a.client.CallTool(ctx, serverName, entry.Action.ToolName, entry.Action.Arguments); err != nil {
			a.logger.Error("rollback step failed", "task_id", entry.TaskID, "tool", entry.Action.ToolName, "error", err)
		}
	}
}

// clientDispatcher adapts *mcp.Client to executor.Dispatcher.
type clientDispatcher struct {
	client *mcp.Client
}

func (d *clientDispatcher) Dispatch(ctx context.Context, toolName string, arguments map[string]any) types.Observation {
	start := time.Now()
	resp, err := d.client.CallTool(ctx, serverName, toolName, arguments)
	if err != nil {
		return types.Observation{
			ToolName:  toolName,
			Arguments: arguments,
			Success:   false,
			Error:     err.Error(),
			Timestamp: start,
		}
	}
	return types.Observation{
		ToolName:  toolName,
		Arguments: arguments,
		Result:    resp.Data,
		Success:   resp.Success(),
		Error:     resp.ErrorText(),
		Timestamp: start,
	}
}

func toolInfosFromClient(client *mcp.Client) []planner.ToolInfo {
	tools := client.Tools()
	infos := make([]planner.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, planner.ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			ArgTypes:    argTypesFromSchema(t.InputSchema),
		})
	}
	return infos
}

func argTypesFromSchema(schema json.RawMessage) map[string]string {
	if len(schema) == 0 {
		return nil
	}
	var parsed struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return nil
	}
	out := make(map[string]string, len(parsed.Properties))
	for name, prop := range parsed.Properties {
		out[name] = prop.Type
	}
	return out
}

func planToGraph(plan *types.TaskPlan) types.ExecutionGraph {
	var graph types.ExecutionGraph
	for _, t := range plan.SubTasks {
		graph.Nodes = append(graph.Nodes, types.GraphNode{ID: t.ID, Data: t})
		for _, dep := range t.Dependencies {
			graph.Edges = append(graph.Edges, types.GraphEdge{From: dep, To: t.ID})
		}
	}
	return graph
}
