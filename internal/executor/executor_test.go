package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

type scriptedDispatcher struct {
	calls   int
	results []types.Observation
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, toolName string, arguments map[string]any) types.Observation {
	obs := d.results[d.calls]
	d.calls++
	obs.ToolName = toolName
	obs.Arguments = arguments
	return obs
}

type scriptedOracle struct {
	responses []string
	calls     int
}

func (o *scriptedOracle) Generate(ctx context.Context, prompt string) (string, error) {
	r := o.responses[o.calls]
	o.calls++
	return r, nil
}

func TestExecutor_ReturnsImmediatelyOnFirstSuccess(t *testing.T) {
	dispatcher := &scriptedDispatcher{results: []types.Observation{{Success: true, Result: "ok"}}}
	exec := New(dispatcher, &scriptedOracle{}, 3)

	obs := exec.ActWithRetry(context.Background(), "goal", "read_file", map[string]any{"path": "a.txt"})

	assert.True(t, obs.Success)
	assert.Equal(t, 1, dispatcher.calls)
}

func TestExecutor_RetriesUpToMaxThenReturnsLast(t *testing.T) {
	dispatcher := &scriptedDispatcher{results: []types.Observation{
		{Success: false, Error: "not found"},
		{Success: false, Error: "still not found"},
		{Success: false, Error: "still not found"},
	}}
	oracle := &scriptedOracle{responses: []string{
		`{"reflection_type": "failure", "suggested_actions": [{"tool_name": "read_file", "arguments": {"path": "b.txt"}, "reason": "retry with corrected path"}], "confidence": 0.5, "reasoning": "wrong path"}`,
		`{"reflection_type": "failure", "suggested_actions": [{"tool_name": "read_file", "arguments": {"path": "c.txt"}, "reason": "retry again"}], "confidence": 0.5, "reasoning": "still wrong"}`,
	}}

	exec := New(dispatcher, oracle, 3)
	obs := exec.ActWithRetry(context.Background(), "goal", "read_file", map[string]any{"path": "a.txt"})

	assert.False(t, obs.Success)
	assert.Equal(t, 3, dispatcher.calls)

	summary := exec.Summary()
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 0.0, summary.SuccessRate)
}

func TestExecutor_StopsWhenNoSuggestedActions(t *testing.T) {
	dispatcher := &scriptedDispatcher{results: []types.Observation{
		{Success: false, Error: "permission denied"},
	}}
	oracle := &scriptedOracle{responses: []string{
		`{"reflection_type": "failure", "suggested_actions": [], "confidence": 0.9, "reasoning": "unrecoverable"}`,
	}}

	exec := New(dispatcher, oracle, 3)
	obs := exec.ActWithRetry(context.Background(), "goal", "run_command", map[string]any{"command": "rm -rf /"})

	assert.False(t, obs.Success)
	assert.Equal(t, 1, dispatcher.calls)
}

func TestExecutor_UnparseableReflectionTerminatesLoop(t *testing.T) {
	dispatcher := &scriptedDispatcher{results: []types.Observation{
		{Success: false, Error: "boom"},
	}}
	oracle := &scriptedOracle{responses: []string{"not json at all"}}

	exec := New(dispatcher, oracle, 3)
	obs := exec.ActWithRetry(context.Background(), "goal", "read_file", map[string]any{"path": "a.txt"})

	assert.False(t, obs.Success)
	assert.Equal(t, 1, dispatcher.calls)
	require.Len(t, exec.Reflections(), 1)
	assert.Equal(t, types.ReflectionFailure, exec.Reflections()[0].ReflectionType)
}
