package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Client.MaxRetries)
}

func TestLoad_YAMLOverridesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_TERMAGENT_KEY", "sk-test-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "termagent.yaml")
	contents := `
server:
  id: terminal
  name: terminal
  command: /usr/local/bin/termtool
llm:
  provider: openai
  api_key: ${TEST_TERMAGENT_KEY}
  model: gpt-4o-mini
policy:
  workspace_dir: /tmp/workspace
  dry_run: true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "terminal", cfg.Server.ID)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	assert.True(t, cfg.Policy.DryRun)
	// Defaults not present in the YAML document survive the merge.
	assert.Equal(t, ".termagent/memory.json", cfg.Session.MemoryPath)
}

func TestLoad_JSON5Format(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "termagent.json5")
	contents := `{
  // trailing commas and comments are fine in json5
  llm: { provider: "anthropic", model: "claude-sonnet-4-20250514" },
}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.Model)
}

func TestClientConfig_ToClientConfig_ZeroFieldsFallBackToDefault(t *testing.T) {
	cc := ClientConfig{MaxRetries: 7}
	out := cc.ToClientConfig()
	assert.Equal(t, 7, out.MaxRetries)
	assert.NotZero(t, out.ResourceTimeout, "unset fields fall back to mcp.DefaultClientConfig")
}
