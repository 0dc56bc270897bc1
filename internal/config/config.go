// Package config loads the agent runtime's configuration: the MCP
// server connection, client tunables, the LLM oracle selection, policy
// mode, and session/memory file locations. Modeled on the teacher's
// internal/config/loader.go, with $include merge support dropped since
// this module's configuration surface is flat, but env-var expansion and
// file-extension-based format detection retained.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/mcp"
)

// Config is the top-level configuration for termagent.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	LLM     LLMConfig     `yaml:"llm"`
	Policy  PolicyConfig  `yaml:"policy"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig describes the single stdio MCP tool server this agent
// connects to.
type ServerConfig struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// ClientConfig mirrors the tunables of mcp.ClientConfig that are worth
// exposing to an operator; zero values fall back to mcp.DefaultClientConfig.
type ClientConfig struct {
	MaxRetries             int           `yaml:"max_retries"`
	ResourceTimeout        time.Duration `yaml:"resource_timeout"`
	FailureThreshold       int           `yaml:"failure_threshold"`
	CircuitBreakerCooldown time.Duration `yaml:"circuit_breaker_cooldown"`
	MaxContextItems        int           `yaml:"max_context_items"`
	MaxParallelTools       int           `yaml:"max_parallel_tools"`
	CacheTTL               time.Duration `yaml:"cache_ttl"`
	CacheMaxSize           int           `yaml:"cache_max_size"`
	TraceEnabled           bool          `yaml:"trace_enabled"`
	DryRun                 bool          `yaml:"dry_run"`
}

// LLMConfig selects and configures the oracle backend.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "anthropic" or "openai"
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	MaxRetries int   `yaml:"max_retries"`
}

// PolicyConfig configures the action-gating engine.
type PolicyConfig struct {
	WorkspaceDir     string   `yaml:"workspace_dir"`
	DryRun           bool     `yaml:"dry_run"`
	AllowedResources []string `yaml:"allowed_resources"`
}

// SessionConfig configures the append-only context manager and the
// checkpoint/memory file locations.
type SessionConfig struct {
	SessionID     string `yaml:"session_id"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	MemoryPath    string `yaml:"memory_path"`
	MaxRetries    int    `yaml:"max_retries"`
}

// LoggingConfig selects the slog handler shape.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns a Config with every zero-value field filled from
// mcp.DefaultClientConfig and sensible local-filesystem defaults.
func Default() Config {
	dc := mcp.DefaultClientConfig()
	return Config{
		Client: ClientConfig{
			MaxRetries:             dc.MaxRetries,
			ResourceTimeout:        dc.ResourceTimeout,
			FailureThreshold:       dc.FailureThreshold,
			CircuitBreakerCooldown: dc.CircuitBreakerCooldown,
			MaxContextItems:        dc.MaxContextItems,
			MaxParallelTools:       dc.MaxParallelTools,
			CacheTTL:               dc.CacheTTL,
			CacheMaxSize:           dc.CacheMaxSize,
			TraceEnabled:           dc.TraceEnabled,
			DryRun:                 dc.DryRun,
		},
		LLM: LLMConfig{
			Provider:   "anthropic",
			Model:      "claude-sonnet-4-20250514",
			MaxTokens:  4096,
			MaxRetries: 3,
		},
		Session: SessionConfig{
			SessionID:     "default",
			CheckpointDir: ".termagent/checkpoints",
			MemoryPath:    ".termagent/memory.json",
			MaxRetries:    3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a configuration file, expands environment variables, and
// merges it over Default(). Format is inferred from the file extension:
// .yaml/.yml decode with yaml.v3, .json/.json5 decode with json5.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	if err := decodeInto(&cfg, []byte(expanded), path); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func decodeInto(cfg *Config, data []byte, pathHint string) error {
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		return json5.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// ToClientConfig builds an mcp.ClientConfig from the configured tunables,
// falling back to mcp.DefaultClientConfig for any zero field.
func (c ClientConfig) ToClientConfig() mcp.ClientConfig {
	dc := mcp.DefaultClientConfig()
	out := dc
	if c.MaxRetries != 0 {
		out.MaxRetries = c.MaxRetries
	}
	if c.ResourceTimeout != 0 {
		out.ResourceTimeout = c.ResourceTimeout
	}
	if c.FailureThreshold != 0 {
		out.FailureThreshold = c.FailureThreshold
	}
	if c.CircuitBreakerCooldown != 0 {
		out.CircuitBreakerCooldown = c.CircuitBreakerCooldown
	}
	if c.MaxContextItems != 0 {
		out.MaxContextItems = c.MaxContextItems
	}
	if c.MaxParallelTools != 0 {
		out.MaxParallelTools = c.MaxParallelTools
	}
	if c.CacheTTL != 0 {
		out.CacheTTL = c.CacheTTL
	}
	if c.CacheMaxSize != 0 {
		out.CacheMaxSize = c.CacheMaxSize
	}
	out.TraceEnabled = c.TraceEnabled || out.TraceEnabled
	out.DryRun = c.DryRun || out.DryRun
	return out
}

// ToServerConfig builds an mcp.ServerConfig for the configured tool server.
func (c ServerConfig) ToServerConfig() *mcp.ServerConfig {
	return &mcp.ServerConfig{
		ID:      c.ID,
		Name:    c.Name,
		Command: c.Command,
		Args:    c.Args,
		Env:     c.Env,
	}
}
