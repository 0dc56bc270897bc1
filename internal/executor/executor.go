// Package executor implements the self-correcting executor: dispatch
// one subtask's tool call with bounded, LLM-guided automatic retry.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/jsonx"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

// Dispatcher invokes one tool call and returns its observation.
// Implemented by the agent façade on top of the MCP client.
type Dispatcher interface {
	Dispatch(ctx context.Context, toolName string, arguments map[string]any) types.Observation
}

// Oracle is the text-in/text-out LLM callable the executor drives for
// reflection on failed observations.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const defaultMaxRetries = 3

// Executor runs one subtask to completion with bounded retries,
// retaining observation/reflection history for the executor's
// lifetime.
type Executor struct {
	dispatcher Dispatcher
	oracle     Oracle
	maxRetries int

	observations []types.Observation
	reflections  []types.Reflection
	attempts     []types.Attempt
}

// New creates an Executor. maxRetries <= 0 uses the default of 3.
func New(dispatcher Dispatcher, oracle Oracle, maxRetries int) *Executor {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Executor{dispatcher: dispatcher, oracle: oracle, maxRetries: maxRetries}
}

type rawReflection struct {
	ReflectionType   string                  `json:"reflection_type"`
	Insights         []string                `json:"insights"`
	SuggestedActions []types.SuggestedAction `json:"suggested_actions"`
	Confidence       float64                 `json:"confidence"`
	Reasoning        string                  `json:"reasoning"`
}

// ActWithRetry dispatches toolName/arguments for goal, reflecting and
// re-dispatching the LLM's first suggested action on failure, up to
// maxRetries attempts. It always returns after at most maxRetries
// dispatches.
func (e *Executor) ActWithRetry(ctx context.Context, goal, toolName string, arguments map[string]any) types.Observation {
	var last types.Observation

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		last = e.dispatcher.Dispatch(ctx, toolName, arguments)
		e.observations = append(e.observations, last)
		e.attempts = append(e.attempts, types.Attempt{
			ToolName:  toolName,
			Timestamp: time.Now(),
			Success:   last.Success,
		})

		if last.Success {
			return last
		}
		if attempt == e.maxRetries {
			break
		}

		reflection := e.reflect(ctx, goal, toolName, arguments, last)
		e.reflections = append(e.reflections, reflection)

		if len(reflection.SuggestedActions) == 0 {
			break
		}

		suggestion := reflection.SuggestedActions[0]
		toolName = suggestion.ToolName
		arguments = suggestion.Arguments
	}

	return last
}

func (e *Executor) reflect(ctx context.Context, goal, toolName string, arguments map[string]any, obs types.Observation) types.Reflection {
	prompt := buildReflectionPrompt(goal, toolName, arguments, obs)

	raw, err := e.oracle.Generate(ctx, prompt)
	if err != nil {
		return types.Reflection{ReflectionType: types.ReflectionFailure, Reasoning: fmt.Sprintf("oracle error: %v", err)}
	}

	var parsed rawReflection
	if err := jsonx.ExtractObject(raw, &parsed); err != nil {
		return types.Reflection{ReflectionType: types.ReflectionFailure, Reasoning: fmt.Sprintf("could not parse reflection: %v", err)}
	}

	return types.Reflection{
		ReflectionType:   types.ReflectionType(parsed.ReflectionType),
		Insights:         parsed.Insights,
		SuggestedActions: parsed.SuggestedActions,
		Confidence:       parsed.Confidence,
		Reasoning:        parsed.Reasoning,
	}
}

func buildReflectionPrompt(goal, toolName string, arguments map[string]any, obs types.Observation) string {
	return fmt.Sprintf(
		"Goal: %s\nDispatched tool: %s\nArguments: %v\nSuccess: %t\nResult: %v\nError: %s\n\n"+
			"Reflect on this observation and respond with a single JSON object of the shape "+
			`{"reflection_type": "success|partial_success|failure|need_more_info", "insights": [...], `+
			`"suggested_actions": [{"tool_name": ..., "arguments": {...}, "reason": ...}], "confidence": 0.0, "reasoning": "..."}`+
			". Emit nothing but the JSON object.\n",
		goal, toolName, arguments, obs.Success, obs.Result, obs.Error,
	)
}

// Observations returns the executor's full observation history.
func (e *Executor) Observations() []types.Observation {
	return e.observations
}

// Reflections returns the executor's full reflection history.
func (e *Executor) Reflections() []types.Reflection {
	return e.reflections
}

// Summary reports the {total, success_rate, attempts} audit record for
// this executor's lifetime.
func (e *Executor) Summary() types.ExecutorSummary {
	successes := 0
	for _, a := range e.attempts {
		if a.Success {
			successes++
		}
	}
	rate := 0.0
	if len(e.attempts) > 0 {
		rate = float64(successes) / float64(len(e.attempts))
	}
	return types.ExecutorSummary{
		Total:       len(e.attempts),
		SuccessRate: rate,
		Attempts:    e.attempts,
	}
}
