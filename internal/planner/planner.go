// Package planner implements the hierarchical planner: it turns a goal
// string and ambient context into a validated types.TaskPlan by asking
// an LLM oracle to decompose the goal into a dependency graph of tool
// invocations.
package planner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/jsonx"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

// Oracle is the text-in/text-out LLM callable the planner drives.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ToolInfo is one entry of the advertised tool schema table included
// in the decomposition prompt.
type ToolInfo struct {
	Name        string
	Description string
	ArgTypes    map[string]string
}

// Planner produces validated plans from a goal and the currently
// advertised tool set.
type Planner struct {
	oracle Oracle
}

// New creates a Planner driven by oracle.
func New(oracle Oracle) *Planner {
	return &Planner{oracle: oracle}
}

type rawSubTask struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Tool         string         `json:"tool"`
	Arguments    map[string]any `json:"arguments"`
	Dependencies []string       `json:"dependencies"`
	Rollback     *rawRollback   `json:"rollback"`
}

type rawRollback struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

type rawPlan struct {
	Subtasks []rawSubTask `json:"subtasks"`
}

// Plan constructs a decomposition prompt from goal, cwd and the
// advertised tools, asks the oracle to decompose it, and returns a
// validated TaskPlan. A completely unparseable response yields a
// singleton fallback plan with one diagnostic subtask; the caller is
// always returned a usable plan.
func (p *Planner) Plan(ctx context.Context, goal, cwd string, tools []ToolInfo) *types.TaskPlan {
	prompt := buildPrompt(goal, cwd, tools)

	raw, err := p.oracle.Generate(ctx, prompt)
	if err != nil {
		return fallbackPlan(goal, fmt.Sprintf("oracle error: %v", err))
	}

	var parsed rawPlan
	if err := jsonx.ExtractObject(raw, &parsed); err != nil {
		return fallbackPlan(goal, fmt.Sprintf("could not parse plan: %v", err))
	}

	plan := &types.TaskPlan{Goal: goal}
	for _, rt := range parsed.Subtasks {
		id := rt.ID
		if id == "" {
			id = taskID(rt.Tool, rt.Description)
		}
		subtask := &types.SubTask{
			ID:           id,
			Description:  rt.Description,
			ToolName:     rt.Tool,
			Arguments:    rt.Arguments,
			Dependencies: rt.Dependencies,
			Status:       types.TaskPending,
		}
		if rt.Rollback != nil {
			subtask.RollbackAction = &types.RollbackAction{
				ToolName:  rt.Rollback.ToolName,
				Arguments: rt.Rollback.Arguments,
			}
		}
		plan.SubTasks = append(plan.SubTasks, subtask)
	}

	toolSet := make(map[string]bool, len(tools))
	for _, t := range tools {
		toolSet[t.Name] = true
	}

	plan.ValidationErrors = validate(plan, toolSet)
	plan.ExecutionOrder = topologicalOrder(plan)
	if len(plan.ExecutionOrder) != len(plan.SubTasks) {
		plan.ValidationErrors = append(plan.ValidationErrors, "execution order does not cover every subtask: circular or unsatisfiable dependency")
	}

	return plan
}

func buildPrompt(goal, cwd string, tools []ToolInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	fmt.Fprintf(&b, "Working directory: %s\n\n", cwd)
	b.WriteString("Available tools:\n")
	for _, t := range tools {
		argNames := make([]string, 0, len(t.ArgTypes))
		for name := range t.ArgTypes {
			argNames = append(argNames, name)
		}
		sort.Strings(argNames)
		var args []string
		for _, name := range argNames {
			args = append(args, fmt.Sprintf("%s:%s", name, t.ArgTypes[name]))
		}
		fmt.Fprintf(&b, "- %s(%s): %s\n", t.Name, strings.Join(args, ", "), t.Description)
	}
	b.WriteString("\nDecompose the goal into a dependency graph of tool invocations. ")
	b.WriteString("Respond with a single JSON object of the shape ")
	b.WriteString(`{"subtasks": [{"id": ..., "description": ..., "tool": ..., "arguments": {...}, "dependencies": [...], "rollback": {"tool_name": ..., "arguments": {...}}}]}`)
	b.WriteString(". Emit nothing but the JSON object.\n")
	return b.String()
}

func fallbackPlan(goal, reason string) *types.TaskPlan {
	return &types.TaskPlan{
		Goal: goal,
		SubTasks: []*types.SubTask{
			{
				ID:          "diagnostic-1",
				Description: "plan decomposition failed: " + reason,
				Status:      types.TaskFailed,
			},
		},
		ExecutionOrder:   []string{"diagnostic-1"},
		ValidationErrors: []string{reason},
	}
}

func taskID(tool, description string) string {
	h := sha1.New()
	h.Write([]byte(tool + "|" + description))
	return hex.EncodeToString(h.Sum(nil))[:10]
}

// validate runs the four accumulating checks described for the
// planner: tool membership, acyclicity, dependency existence, and
// (checked separately by the caller) execution-order coverage.
func validate(plan *types.TaskPlan, toolSet map[string]bool) []string {
	var errs []string

	ids := make(map[string]bool, len(plan.SubTasks))
	for _, t := range plan.SubTasks {
		ids[t.ID] = true
	}

	for _, t := range plan.SubTasks {
		if t.ToolName != "" && !toolSet[t.ToolName] {
			errs = append(errs, fmt.Sprintf("subtask %s references unknown tool %q", t.ID, t.ToolName))
		}
		for _, dep := range t.Dependencies {
			if !ids[dep] {
				errs = append(errs, fmt.Sprintf("subtask %s depends on undefined id %q", t.ID, dep))
			}
		}
	}

	if cycle := findCycle(plan); cycle != "" {
		errs = append(errs, "dependency graph contains a cycle: "+cycle)
	}

	return errs
}

// findCycle runs a depth-first search with a recursion stack and
// returns a description of the first cycle found, or "" if acyclic.
func findCycle(plan *types.TaskPlan) string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(plan.SubTasks))
	var path []string

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = grey
		path = append(path, id)
		task := plan.TaskByID(id)
		if task != nil {
			for _, dep := range task.Dependencies {
				switch color[dep] {
				case grey:
					return strings.Join(append(path, dep), " -> ")
				case white:
					if cyc := visit(dep); cyc != "" {
						return cyc
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return ""
	}

	for _, t := range plan.SubTasks {
		if color[t.ID] == white {
			if cyc := visit(t.ID); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// topologicalOrder computes a dependency-respecting order via Kahn's
// algorithm. If not every subtask can be ordered (a cycle, or a
// dependency outside the plan), the returned slice is shorter than
// plan.SubTasks.
func topologicalOrder(plan *types.TaskPlan) []string {
	inDegree := make(map[string]int, len(plan.SubTasks))
	dependents := make(map[string][]string)

	for _, t := range plan.SubTasks {
		if _, ok := inDegree[t.ID]; !ok {
			inDegree[t.ID] = 0
		}
		for _, dep := range t.Dependencies {
			inDegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var queue []string
	for _, t := range plan.SubTasks {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := dependents[id]
		sort.Strings(next)
		for _, d := range next {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	return order
}
