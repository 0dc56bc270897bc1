// Package toolchain implements the tool-chain optimiser: a tool
// dependency graph built from the planner's subtasks (see DetectFromGoal),
// batched so independent read-type operations can dispatch in parallel.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

// parallelSafeTools is the static read-type classification: file reads,
// directory listings, searches, git status, system info. Anything not in
// this set is treated as sequential-only (mutating).
var parallelSafeTools = map[string]bool{
	"read_file":      true,
	"list_directory":  true,
	"search_files":    true,
	"search_code":     true,
	"git_status":      true,
	"git_log":         true,
	"git_diff":        true,
	"system_info":     true,
	"tail_file":       true,
	"grep":            true,
}

// IsParallelSafe reports whether toolName belongs to the static
// parallel-safe (read-type) policy set.
func IsParallelSafe(toolName string) bool {
	return parallelSafeTools[toolName]
}

// ErrCycle is returned when the node dependency graph cannot be fully
// batched: a cycle or an unsatisfiable dependency remains.
var ErrCycle = errors.New("toolchain: dependency graph has an unresolvable cycle")

// Batch is one scheduling unit: either a set of nodes safe to dispatch
// concurrently, or (when Sequential is true) a single mutating node.
type Batch struct {
	Nodes      []types.ToolNode
	Sequential bool
}

// Plan computes the batching schedule for nodes: repeatedly take the ready
// set (dependencies already completed), split it into parallel-safe and
// sequential-only, emit the parallel-safe nodes as one batch (only when
// there is at least one) followed by each sequential node as its own
// singleton batch.
func Plan(nodes []types.ToolNode) ([]Batch, error) {
	byID := make(map[string]types.ToolNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	done := make(map[string]bool, len(nodes))
	var batches []Batch

	remaining := len(nodes)
	for remaining > 0 {
		var ready []types.ToolNode
		for _, n := range nodes {
			if done[n.ID] {
				continue
			}
			if dependenciesSatisfied(n, done) {
				ready = append(ready, n)
			}
		}
		if len(ready) == 0 {
			return batches, ErrCycle
		}

		var parallel []types.ToolNode
		var sequential []types.ToolNode
		for _, n := range ready {
			if n.CanRunParallel && IsParallelSafe(n.ToolName) {
				parallel = append(parallel, n)
			} else {
				sequential = append(sequential, n)
			}
		}

		if len(parallel) > 0 {
			batches = append(batches, Batch{Nodes: parallel})
			for _, n := range parallel {
				done[n.ID] = true
				remaining--
			}
		}
		for _, n := range sequential {
			batches = append(batches, Batch{Nodes: []types.ToolNode{n}, Sequential: true})
			done[n.ID] = true
			remaining--
		}
	}

	return batches, nil
}

func dependenciesSatisfied(n types.ToolNode, done map[string]bool) bool {
	for _, dep := range n.Dependencies {
		if !done[dep] {
			return false
		}
	}
	return true
}

// NodeResult is the outcome of dispatching one tool-chain node.
type NodeResult struct {
	Node    types.ToolNode
	Success bool
	Result  any
	Err     error
}

// Dispatcher invokes one tool-chain node and returns its raw result.
type Dispatcher interface {
	Dispatch(ctx context.Context, toolName string, arguments map[string]any) (any, error)
}

// metrics are process-wide gauges for batch/parallelism observability,
// mirroring the teacher's ExecutorMetrics counters but scoped to the
// tool-chain optimiser instead of the agent's own tool executor.
var (
	batchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toolchain_batches_total",
		Help: "Number of tool-chain batches dispatched, by kind (parallel/sequential).",
	}, []string{"kind"})
	parallelismGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "toolchain_batch_parallelism",
		Help: "Number of nodes in the most recently dispatched parallel batch.",
	})
)

func init() {
	prometheus.MustRegister(batchesTotal, parallelismGauge)
}

// Run dispatches batches in order via dispatcher, bounding parallel
// dispatch within a batch to maxParallel concurrent goroutines. Failures
// of individual nodes do not cancel sibling nodes in the same batch; they
// are recorded and returned alongside successes.
func Run(ctx context.Context, batches []Batch, dispatcher Dispatcher, maxParallel int) [][]NodeResult {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)

	results := make([][]NodeResult, len(batches))
	for i, batch := range batches {
		kind := "sequential"
		if !batch.Sequential && len(batch.Nodes) > 0 {
			kind = "parallel"
		}
		batchesTotal.WithLabelValues(kind).Inc()
		if kind == "parallel" {
			parallelismGauge.Set(float64(len(batch.Nodes)))
		}

		batchResults := make([]NodeResult, len(batch.Nodes))
		var wg sync.WaitGroup
		for j, node := range batch.Nodes {
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, n types.ToolNode) {
				defer wg.Done()
				defer func() { <-sem }()
				result, err := dispatcher.Dispatch(ctx, n.ToolName, n.Arguments)
				batchResults[idx] = NodeResult{
					Node:    n,
					Success: err == nil,
					Result:  result,
					Err:     err,
				}
			}(j, node)
		}
		wg.Wait()
		results[i] = batchResults
	}
	return results
}

// DetectFromGoal builds the advisory ToolNode graph the agent façade logs
// for the audit trail: one node per planner subtask, carrying over its
// id, tool name, arguments and dependencies, with CanRunParallel set from
// the static parallel-safe set. The result never overrides the planner's
// own DAG. It does not read the goal text and does not call an LLM
// oracle, so the graph has the same shape as the planner's DAG rather
// than being discovered separately from it.
func DetectFromGoal(subTasks []*types.SubTask) []types.ToolNode {
	nodes := make([]types.ToolNode, 0, len(subTasks))
	for _, t := range subTasks {
		nodes = append(nodes, types.ToolNode{
			ID:             t.ID,
			ToolName:       t.ToolName,
			Arguments:      t.Arguments,
			Dependencies:   t.Dependencies,
			CanRunParallel: IsParallelSafe(t.ToolName),
		})
	}
	return nodes
}

// Describe renders a batching plan as a short human-readable summary for
// the audit trail log line the façade emits.
func Describe(batches []Batch) string {
	out := ""
	for i, b := range batches {
		if b.Sequential {
			out += fmt.Sprintf("batch %d: sequential(%s)\n", i, b.Nodes[0].ToolName)
			continue
		}
		names := make([]string, 0, len(b.Nodes))
		for _, n := range b.Nodes {
			names = append(names, n.ToolName)
		}
		out += fmt.Sprintf("batch %d: parallel%v\n", i, names)
	}
	return out
}
