package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/policy"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

// fakeTransport is an in-memory Transport used to test the client's
// policy-gate, cache, retry and circuit-breaker behavior without a real
// subprocess.
type fakeTransport struct {
	connected bool
	calls     int
	handler   func(method string, params any) (json.RawMessage, error)
}

func (f *fakeTransport) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Close() error                       { f.connected = false; return nil }
func (f *fakeTransport) Connected() bool                    { return f.connected }
func (f *fakeTransport) Events() <-chan *JSONRPCNotification { return nil }
func (f *fakeTransport) Requests() <-chan *JSONRPCRequest     { return nil }
func (f *fakeTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	return nil
}
func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error { return nil }

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.calls++
	if method == "initialize" {
		return json.Marshal(InitializeResult{ServerInfo: ServerInfo{Name: "fake"}})
	}
	if method == "tools/list" {
		return json.Marshal(ListToolsResult{Tools: []*MCPTool{{Name: "read_file"}}})
	}
	if method == "resources/list" || method == "prompts/list" {
		return json.Marshal(map[string]any{})
	}
	return f.handler(method, params)
}

type allowAllPolicy struct{}

func (allowAllPolicy) Decide(types.Action) types.Decision { return types.DecisionAllow }

type denyAllPolicy struct{}

func (denyAllPolicy) Decide(types.Action) types.Decision { return types.DecisionDeny }

func newTestClient(t *testing.T, pol PolicyGate, handler func(method string, params any) (json.RawMessage, error)) (*Client, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{handler: handler}
	cfg := &ServerConfig{ID: "terminal", Name: "terminal", Command: "noop"}
	clientCfg := DefaultClientConfig()
	clientCfg.MaxRetries = 2
	clientCfg.ResourceTimeout = time.Second

	c := NewClient(cfg, pol, clientCfg, nil)
	c.transport = ft
	require.NoError(t, c.Connect(context.Background()))
	return c, ft
}

func TestCallTool_GateDeniesBeforeTransport(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, denyAllPolicy{}, func(method string, params any) (json.RawMessage, error) {
		calls++
		return json.Marshal(map[string]any{"success": true})
	})

	_, err := c.CallTool(context.Background(), "terminal", "read_file", nil)
	require.Error(t, err)
	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)
	assert.Equal(t, 0, calls, "policy denial must not reach the transport")
}

func TestCallTool_CacheIdempotence(t *testing.T) {
	transportCalls := 0
	c, _ := newTestClient(t, allowAllPolicy{}, func(method string, params any) (json.RawMessage, error) {
		if method == "tools/call" {
			transportCalls++
			return json.Marshal(map[string]any{"success": true, "value": 42})
		}
		return json.Marshal(map[string]any{})
	})

	args := map[string]any{"path": "README.md"}
	resp1, err := c.CallTool(context.Background(), "terminal", "read_file", args)
	require.NoError(t, err)

	resp2, err := c.CallTool(context.Background(), "terminal", "read_file", args)
	require.NoError(t, err)

	assert.Equal(t, resp1.Data, resp2.Data)
	assert.Equal(t, 1, transportCalls, "second identical call must not hit the transport")
}

func TestCallTool_CircuitOpensAfterThreshold(t *testing.T) {
	transportCalls := 0
	c, _ := newTestClient(t, allowAllPolicy{}, func(method string, params any) (json.RawMessage, error) {
		if method == "tools/call" {
			transportCalls++
			return nil, assertErr{}
		}
		return json.Marshal(map[string]any{})
	})
	c.clientCfg.FailureThreshold = 2
	c.breaker = newCircuitBreaker(2, 50*time.Millisecond)

	// Each CallTool exhausts MaxRetries+1 attempts and records one failure
	// event against the breaker key.
	for i := 0; i < 2; i++ {
		_, err := c.CallTool(context.Background(), "terminal", "run_command", map[string]any{"cmd": "x"})
		require.Error(t, err)
	}

	callsBeforeBreakerOpen := transportCalls
	_, err := c.CallTool(context.Background(), "terminal", "run_command", map[string]any{"cmd": "x"})
	require.Error(t, err)
	var breakerErr *BreakerOpenError
	assert.ErrorAs(t, err, &breakerErr)
	assert.Equal(t, callsBeforeBreakerOpen, transportCalls, "breaker-open call must not touch the transport")
}

func TestCallTool_RetryBound(t *testing.T) {
	transportCalls := 0
	c, _ := newTestClient(t, allowAllPolicy{}, func(method string, params any) (json.RawMessage, error) {
		if method == "tools/call" {
			transportCalls++
			return nil, assertErr{}
		}
		return json.Marshal(map[string]any{})
	})

	_, err := c.CallTool(context.Background(), "terminal", "read_file", map[string]any{"path": "x"})
	require.Error(t, err)
	assert.Equal(t, c.clientCfg.MaxRetries+1, transportCalls)
}

func TestContextBuffer_BoundedFIFO(t *testing.T) {
	c, _ := newTestClient(t, allowAllPolicy{}, func(method string, params any) (json.RawMessage, error) {
		return json.Marshal(map[string]any{"success": true})
	})
	c.clientCfg.MaxContextItems = 3

	for i := 0; i < 5; i++ {
		c.addToContext(types.ContextItem{ID: string(rune('a' + i)), Type: types.ContextToolResult})
	}

	ctxItems := c.GetContext()
	require.Len(t, ctxItems, 3)
	assert.Equal(t, "c", ctxItems[0].ID, "oldest two items must have been evicted FIFO")
	assert.Equal(t, "e", ctxItems[2].ID)
}

func TestReadResource_DeniesURIOutsideAllowSet(t *testing.T) {
	workspace := t.TempDir()
	pol := policy.NewEngine(workspace, false, "file:///workspace/README.md")

	c, transport := newTestClient(t, pol, func(method string, params any) (json.RawMessage, error) {
		return json.Marshal(ReadResourceResult{Contents: []*ResourceContent{{URI: "file:///workspace/README.md", Text: "ok"}}})
	})
	callsBeforeDenial := transport.calls

	_, err := c.ReadResource(context.Background(), "terminal", "file:///etc/passwd")
	require.Error(t, err)
	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)
	assert.Equal(t, callsBeforeDenial, transport.calls, "disallowed resource URI must not reach the transport")

	contents, err := c.ReadResource(context.Background(), "terminal", "file:///workspace/README.md")
	require.NoError(t, err)
	require.Len(t, contents, 1)
}

func TestReadResource_DefaultPatternRestrictsToWorkspace(t *testing.T) {
	workspace := t.TempDir()
	pol := policy.NewEngine(workspace, false)

	c, _ := newTestClient(t, pol, func(method string, params any) (json.RawMessage, error) {
		return json.Marshal(ReadResourceResult{Contents: []*ResourceContent{{URI: "http://example.com/doc", Text: "ok"}}})
	})

	_, err := c.ReadResource(context.Background(), "terminal", "http://example.com/doc")
	require.Error(t, err)
	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)
}

type assertErr struct{}

func (assertErr) Error() string { return "transport failure" }
