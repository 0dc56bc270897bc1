package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

func TestEngine_AllowsReadOnlyByDefault(t *testing.T) {
	e := NewEngine("/home/agent/workspace", false)
	decision := e.Decide(types.Action{
		Type: types.ActionTool,
		Name: "read_file",
		Arguments: map[string]any{"path": "README.md"},
	})
	assert.Equal(t, types.DecisionAllow, decision)
}

func TestEngine_DeniesDestructiveShellForm(t *testing.T) {
	e := NewEngine("/home/agent/workspace", false)
	decision := e.Decide(types.Action{
		Type: types.ActionTool,
		Name: "run_command",
		Arguments: map[string]any{"command": "rm -rf /"},
	})
	assert.Equal(t, types.DecisionDeny, decision)
}

func TestEngine_DeniesForcedGitCommit(t *testing.T) {
	e := NewEngine("/home/agent/workspace", false)
	decision := e.Decide(types.Action{
		Type: types.ActionTool,
		Name: "run_command",
		Arguments: map[string]any{"command": "git commit --force -m wip"},
	})
	assert.Equal(t, types.DecisionDeny, decision)
}

func TestEngine_DeniesPathEscape(t *testing.T) {
	e := NewEngine("/home/agent/workspace", false)
	decision := e.Decide(types.Action{
		Type: types.ActionTool,
		Name: "read_file",
		Arguments: map[string]any{"path": "/etc/passwd"},
	})
	assert.Equal(t, types.DecisionDeny, decision)
}

func TestEngine_DeniesTraversal(t *testing.T) {
	e := NewEngine("/home/agent/workspace", false)
	decision := e.Decide(types.Action{
		Type: types.ActionTool,
		Name: "read_file",
		Arguments: map[string]any{"path": "../../etc/passwd"},
	})
	assert.Equal(t, types.DecisionDeny, decision)
}

func TestEngine_DryRunModeSimulatesMutations(t *testing.T) {
	e := NewEngine("/home/agent/workspace", true)
	decision := e.Decide(types.Action{
		Type: types.ActionTool,
		Name: "write_file",
		Arguments: map[string]any{"path": "notes.txt", "content": "hi"},
	})
	assert.Equal(t, types.DecisionDryRun, decision)
}

func TestEngine_DryRunModeStillAllowsReads(t *testing.T) {
	e := NewEngine("/home/agent/workspace", true)
	decision := e.Decide(types.Action{
		Type: types.ActionTool,
		Name: "read_file",
		Arguments: map[string]any{"path": "notes.txt"},
	})
	assert.Equal(t, types.DecisionAllow, decision)
}
