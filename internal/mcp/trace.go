package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// TraceEventType names one of the MCP client's significant events.
type TraceEventType string

const (
	TraceClientConnected TraceEventType = "client_connected"
	TraceReadResource    TraceEventType = "read_resource"
	TraceCallTool        TraceEventType = "call_tool"
	TraceResourceError   TraceEventType = "resource_error"
	TraceToolError       TraceEventType = "tool_error"
	TraceCacheHit        TraceEventType = "cache_hit"
	TraceCacheSet        TraceEventType = "cache_set"
	TraceCircuitOpened   TraceEventType = "circuit_opened"
	TraceContextAdded    TraceEventType = "context_added"
	TraceContextEvicted  TraceEventType = "context_evicted"
)

// TraceEvent is one JSONL line of the client's trace log.
type TraceEvent struct {
	Type      TraceEventType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// tracer writes TraceEvents as JSONL, flushed immediately for crash
// safety, adapted from the teacher's agent.TracePlugin. get_trace()
// returns a read-only in-memory snapshot so diagnostics never need to
// re-open the file.
type tracer struct {
	mu       sync.Mutex
	enabled  bool
	writer   io.Writer
	file     *os.File
	snapshot []TraceEvent
}

func newTracer(enabled bool, w io.Writer) *tracer {
	return &tracer{enabled: enabled, writer: w}
}

// newFileTracer opens (creating/truncating) path for a JSONL trace log.
func newFileTracer(path string) (*tracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	t := newTracer(true, f)
	t.file = f
	return t, nil
}

func (t *tracer) record(kind TraceEventType, payload map[string]any) {
	if t == nil || !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	event := TraceEvent{Type: kind, Timestamp: time.Now(), Payload: payload}
	t.snapshot = append(t.snapshot, event)

	if t.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return
	}
	if t.file != nil {
		_ = t.file.Sync()
	}
}

// getTrace returns a read-only snapshot of all recorded events.
func (t *tracer) getTrace() []TraceEvent {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.snapshot))
	copy(out, t.snapshot)
	return out
}

func (t *tracer) close() error {
	if t == nil || t.file == nil {
		return nil
	}
	return t.file.Close()
}
