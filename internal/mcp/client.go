package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/retry"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

// PolicyGate is the contract the MCP client calls before any outbound
// request. Implemented by internal/policy.Engine; kept as a narrow
// interface here so the policy engine and tracer/cache stay decoupled.
type PolicyGate interface {
	Decide(action types.Action) types.Decision
}

// Client is an MCP client that owns the transport to a single tool server
// ("terminal" is the only server name the control path defines) and
// enforces policy, caching, retry and circuit-breaking on every outbound
// call. The client is a scoped resource: Connect opens the transport and
// discovers capabilities; Close guarantees release on every exit path.
type Client struct {
	config    *ServerConfig
	clientCfg ClientConfig
	transport Transport
	logger    *slog.Logger
	policy    PolicyGate

	mu        sync.RWMutex
	tools     []*MCPTool
	schemas   map[string]*ArgSchema
	resources []*MCPResource
	prompts   []*MCPPrompt

	serverInfo ServerInfo

	cache   *responseCache
	breaker *circuitBreaker
	trace   *tracer

	ctxMu     sync.Mutex
	ctxBuffer []types.ContextItem

	cancelled atomic.Bool
}

// NewClient creates a new MCP client bound to a single server config.
func NewClient(cfg *ServerConfig, policy PolicyGate, clientCfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		clientCfg: clientCfg,
		transport: NewTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
		policy:    policy,
		schemas:   make(map[string]*ArgSchema),
		cache:     newResponseCache(clientCfg.CacheTTL, clientCfg.CacheMaxSize),
		breaker:   newCircuitBreaker(clientCfg.FailureThreshold, clientCfg.CircuitBreakerCooldown),
		trace:     newTracer(clientCfg.TraceEnabled, nil),
	}
}

// EnableFileTrace switches the client's trace log to a JSONL file.
func (c *Client) EnableFileTrace(path string) error {
	t, err := newFileTracer(path)
	if err != nil {
		return err
	}
	c.trace = t
	return nil
}

// Connect establishes the transport connection, performs the MCP
// handshake, and discovers capabilities.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "termagent", "version": "1.0.0"},
	})
	if err != nil {
		_ = c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		_ = c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.serverInfo = initResult.ServerInfo

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("failed to refresh capabilities", "error", err)
	}

	c.trace.record(TraceClientConnected, map[string]any{"server": c.config.ID, "name": c.serverInfo.Name})
	return nil
}

// Close tears the transport down. Safe to call even if Connect failed.
func (c *Client) Close() error {
	_ = c.trace.close()
	return c.transport.Close()
}

// Cancel sets a flag checked on entry to ReadResource, CallTool and
// GetPrompt, which then return CancelledError. An operation that has
// already passed that check is not interrupted: its in-flight transport
// call and any remaining retry attempts still run.
func (c *Client) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (c *Client) Cancelled() bool {
	return c.cancelled.Load()
}

// RefreshCapabilities refreshes the cached tools, resources and prompts,
// compiling each tool's input_schema for later argument validation.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result, err := c.transport.Call(ctx, "tools/list", nil); err == nil {
		var resp ListToolsResult
		if json.Unmarshal(result, &resp) == nil {
			c.tools = resp.Tools
			for _, tool := range c.tools {
				schema, err := compileArgSchema(tool)
				if err != nil {
					c.logger.Warn("failed to compile tool schema", "tool", tool.Name, "error", err)
					continue
				}
				c.schemas[tool.Name] = schema
			}
		}
	}
	if result, err := c.transport.Call(ctx, "resources/list", nil); err == nil {
		var resp ListResourcesResult
		if json.Unmarshal(result, &resp) == nil {
			c.resources = resp.Resources
		}
	}
	if result, err := c.transport.Call(ctx, "prompts/list", nil); err == nil {
		var resp ListPromptsResult
		if json.Unmarshal(result, &resp) == nil {
			c.prompts = resp.Prompts
		}
	}
	return nil
}

// Tools returns the cached tool set.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Resources returns the cached resource set.
func (c *Client) Resources() []*MCPResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

// Prompts returns the cached prompt set.
func (c *Client) Prompts() []*MCPPrompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

// ArgSchemaFor returns the compiled schema for a discovered tool, if any.
func (c *Client) ArgSchemaFor(name string) *ArgSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemas[name]
}

// HasTool reports whether name is a member of the discovered tool set.
func (c *Client) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// GetContext returns a snapshot of the bounded observation FIFO.
func (c *Client) GetContext() []types.ContextItem {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	out := make([]types.ContextItem, len(c.ctxBuffer))
	copy(out, c.ctxBuffer)
	return out
}

// GetTrace returns a read-only snapshot of the trace log.
func (c *Client) GetTrace() []TraceEvent {
	return c.trace.getTrace()
}

func (c *Client) addToContext(item types.ContextItem) {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()

	c.ctxBuffer = append(c.ctxBuffer, item)
	c.trace.record(TraceContextAdded, map[string]any{"id": item.ID, "type": item.Type})

	if len(c.ctxBuffer) > c.clientCfg.MaxContextItems {
		evicted := c.ctxBuffer[0]
		c.ctxBuffer = c.ctxBuffer[1:]
		c.trace.record(TraceContextEvicted, map[string]any{"id": evicted.ID})
	}
}

// ReadResource reads a resource from the tool server. Gated by policy,
// cached, retried, and circuit-broken identically to CallTool.
func (c *Client) ReadResource(ctx context.Context, server, uri string) ([]*ResourceContent, error) {
	if c.Cancelled() {
		return nil, &CancelledError{}
	}

	decision := c.policy.Decide(types.Action{Type: types.ActionResource, Server: server, URI: uri})
	if decision == types.DecisionDeny {
		c.trace.record(TraceResourceError, map[string]any{"uri": uri, "reason": "policy_denied"})
		return nil, &PermissionError{Op: "read_resource", Reason: fmt.Sprintf("uri %q not in allow-set for server %q", uri, server)}
	}
	if decision == types.DecisionDryRun {
		return []*ResourceContent{{URI: uri, Text: ""}}, nil
	}

	key := cacheKey("resource", server, uri, nil)
	if cached, ok := c.cache.get(key); ok {
		c.trace.record(TraceCacheHit, map[string]any{"kind": "resource", "uri": uri})
		var contents []*ResourceContent
		if err := json.Unmarshal(cached.Raw, &contents); err == nil {
			return contents, nil
		}
	}

	if c.breaker.open(key) {
		return nil, &BreakerOpenError{Key: key}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.clientCfg.ResourceTimeout)
	defer cancel()

	var contents []*ResourceContent
	var lastErr error
	result := retry.Do(callCtx, retry.Config{
		MaxAttempts:  c.clientCfg.MaxRetries + 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Factor:       2.0,
		Jitter:       true,
		Classify:     isRetryable,
	}, func() error {
		raw, err := c.transport.Call(callCtx, "resources/read", map[string]any{"uri": uri})
		if err != nil {
			lastErr = err
			return err
		}
		var readResult ReadResourceResult
		if err := json.Unmarshal(raw, &readResult); err != nil {
			lastErr = err
			return err
		}
		contents = readResult.Contents
		return nil
	})

	if result.Err != nil {
		if callCtx.Err() != nil {
			c.trace.record(TraceResourceError, map[string]any{"uri": uri, "reason": "timeout"})
			return nil, &TimeoutError{Op: "read_resource", Timeout: c.clientCfg.ResourceTimeout.String()}
		}
		if opened := c.breaker.recordFailure(key); opened {
			c.trace.record(TraceCircuitOpened, map[string]any{"key": key})
		}
		c.trace.record(TraceResourceError, map[string]any{"uri": uri, "error": lastErr.Error()})
		return nil, &ResourceReadError{URI: uri, Attempts: result.Attempts, Wrapped: lastErr}
	}

	c.breaker.recordSuccess(key)
	raw, _ := json.Marshal(contents)
	resp := &ToolResponse{Kind: KindStructuredMap, Raw: raw}
	c.cache.set(key, resp)
	c.trace.record(TraceCacheSet, map[string]any{"kind": "resource", "uri": uri})
	c.trace.record(TraceReadResource, map[string]any{"uri": uri})

	c.addToContext(types.ContextItem{
		Type:      types.ContextToolResult,
		Content:   contents,
		Timestamp: time.Now(),
	})

	return contents, nil
}

// CallTool calls a tool on the server. Arguments are validated against the
// tool's compiled schema before dispatch; a mismatch is returned as a
// plain error (an observation failure), not raised.
func (c *Client) CallTool(ctx context.Context, server, name string, arguments map[string]any) (*ToolResponse, error) {
	if c.Cancelled() {
		return nil, &CancelledError{}
	}

	decision := c.policy.Decide(types.Action{Type: types.ActionTool, Server: server, Name: name, Arguments: arguments})
	if decision == types.DecisionDeny {
		c.trace.record(TraceToolError, map[string]any{"tool": name, "reason": "policy_denied"})
		return nil, &PermissionError{Op: "call_tool", Reason: "policy denied"}
	}
	if decision == types.DecisionDryRun {
		return &ToolResponse{Kind: KindStructuredMap, Data: map[string]any{"success": true, "dry_run": true}}, nil
	}

	if schema := c.ArgSchemaFor(name); schema != nil {
		if err := schema.Validate(arguments); err != nil {
			return nil, err
		}
	}

	key := cacheKey("tool", server, name, arguments)
	if cached, ok := c.cache.get(key); ok {
		c.trace.record(TraceCacheHit, map[string]any{"kind": "tool", "tool": name})
		return cached, nil
	}

	if c.breaker.open(key) {
		return nil, &BreakerOpenError{Key: key}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.clientCfg.ResourceTimeout)
	defer cancel()

	var response *ToolResponse
	var lastErr error
	result := retry.Do(callCtx, retry.Config{
		MaxAttempts:  c.clientCfg.MaxRetries + 1,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Factor:       2.0,
		Jitter:       true,
		Classify:     isRetryable,
	}, func() error {
		params := CallToolParams{Name: name}
		if arguments != nil {
			argsJSON, err := json.Marshal(arguments)
			if err != nil {
				lastErr = err
				return err
			}
			params.Arguments = argsJSON
		}
		raw, err := c.transport.Call(callCtx, "tools/call", params)
		if err != nil {
			lastErr = err
			return err
		}
		response = normaliseToolResult(raw)
		return nil
	})

	if result.Err != nil {
		if callCtx.Err() != nil {
			c.trace.record(TraceToolError, map[string]any{"tool": name, "reason": "timeout"})
			return nil, &TimeoutError{Op: "call_tool", Timeout: c.clientCfg.ResourceTimeout.String()}
		}
		if opened := c.breaker.recordFailure(key); opened {
			c.trace.record(TraceCircuitOpened, map[string]any{"key": key})
		}
		c.trace.record(TraceToolError, map[string]any{"tool": name, "error": lastErr.Error()})
		return nil, &ToolExecutionError{Tool: name, Attempts: result.Attempts, Wrapped: lastErr}
	}

	c.breaker.recordSuccess(key)
	c.cache.set(key, response)
	c.trace.record(TraceCacheSet, map[string]any{"kind": "tool", "tool": name})
	c.trace.record(TraceCallTool, map[string]any{"tool": name})

	c.addToContext(types.ContextItem{
		Type:      types.ContextToolResult,
		Content:   response.Data,
		Timestamp: time.Now(),
	})

	return response, nil
}

// Oracle is the pure text-in/text-out LLM callable used to render a
// fetched prompt's final text.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GetPrompt fetches a templated prompt from the server and invokes the
// LLM oracle to produce the final text; the oracle call is part of this
// operation, per the spec.
func (c *Client) GetPrompt(ctx context.Context, server, name string, arguments map[string]string, oracle Oracle) (string, error) {
	if c.Cancelled() {
		return "", &CancelledError{}
	}

	decision := c.policy.Decide(types.Action{Type: types.ActionPrompt, Server: server, Name: name})
	if decision == types.DecisionDeny {
		return "", &PermissionError{Op: "get_prompt", Reason: "policy denied"}
	}

	raw, err := c.transport.Call(ctx, "prompts/get", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return "", fmt.Errorf("get_prompt %s: %w", name, err)
	}
	var promptResult GetPromptResult
	if err := json.Unmarshal(raw, &promptResult); err != nil {
		return "", fmt.Errorf("parse get_prompt result: %w", err)
	}

	rendered := ""
	for _, msg := range promptResult.Messages {
		rendered += msg.Content.Text + "\n"
	}

	if oracle == nil {
		return rendered, nil
	}
	return oracle.Generate(ctx, rendered)
}

// Events returns the notification channel.
func (c *Client) Events() <-chan *JSONRPCNotification {
	return c.transport.Events()
}
