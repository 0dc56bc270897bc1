// Package policy implements the stateless, synchronous decision engine
// gating every MCP client operation: allow, deny, or dry_run.
package policy

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/types"
)

// destructiveShellPattern matches the static blocklist of destructive shell
// forms called out by the spec: recursive force-delete, disk format,
// system shutdown, recursive permission changes.
var destructiveShellPattern = regexp.MustCompile(
	`(?i)\brm\s+-[a-z]*r[a-z]*f|\brm\s+-[a-z]*f[a-z]*r\b|\bmkfs\b|\bshutdown\b|\breboot\b|\bchmod\s+-R\s+777\b|\bdd\s+if=`,
)

// forceCommitPattern matches git commits with force flags.
var forceCommitPattern = regexp.MustCompile(`(?i)\bgit\s+(commit|push).*(--force|-f)\b`)

// shellMetachars mirrors the teacher's exec-safety blocklist of characters
// that suggest command chaining/injection rather than a legitimate argument.
var shellMetachars = regexp.MustCompile("[;&|`$]")

// mutatingTools are tool names treated as mutating for dry-run purposes.
// A real deployment would derive this from tool metadata; the spec treats
// it as a static policy classification, same as the tool-chain optimiser's
// parallel-safe/sequential-only split (§4.4).
var mutatingTools = map[string]bool{
	"write_file":    true,
	"replace_in_file": true,
	"run_command":   true,
	"execute":       true,
	"kill_process":  true,
	"git_commit":    true,
	"delete_file":   true,
}

// Engine evaluates (action_type, payload) and returns allow/deny/dry_run.
// It is stateless and synchronous; it never performs I/O.
type Engine struct {
	dryRun           bool
	workspaceDir     string
	allowedResources []string
}

// NewEngine creates a policy engine rooted at workspaceDir (used for the
// path-escape check) with the given global dry-run mode. allowedResources
// is the server's resource allow-set: exact URIs or filepath.Match-style
// glob patterns (e.g. "file:///workspace/*"; as with filepath.Match, "*"
// does not match across "/"). When empty, resource reads
// fall back to the default pattern of any in-workspace file:// URI.
func NewEngine(workspaceDir string, dryRun bool, allowedResources ...string) *Engine {
	return &Engine{dryRun: dryRun, workspaceDir: workspaceDir, allowedResources: allowedResources}
}

// Decide evaluates action and returns the policy's verdict.
func (e *Engine) Decide(action types.Action) types.Decision {
	if e.isHardDenied(action) {
		return types.DecisionDeny
	}

	if e.dryRun && e.isMutating(action) {
		return types.DecisionDryRun
	}

	return types.DecisionAllow
}

func (e *Engine) isMutating(action types.Action) bool {
	if action.Type != types.ActionTool {
		return false
	}
	return mutatingTools[action.Name]
}

func (e *Engine) isHardDenied(action types.Action) bool {
	commandText := commandArgumentText(action.Arguments)
	if commandText != "" {
		if destructiveShellPattern.MatchString(commandText) {
			return true
		}
		if forceCommitPattern.MatchString(commandText) {
			return true
		}
	}

	if action.URI != "" && e.resourceURIDenied(action.URI) {
		return true
	}

	if path, ok := pathArgument(action.Arguments); ok {
		if e.pathEscapesWorkspace(path) {
			return true
		}
	}

	return false
}

// resourceURIDenied reports whether uri fails the server's resource
// allow-set: an exact or glob match against allowedResources, or, when no
// allow-set is configured, a file:// URI that resolves inside the
// workspace directory. Any other scheme, or an out-of-workspace file://
// URI, is denied.
func (e *Engine) resourceURIDenied(uri string) bool {
	if len(e.allowedResources) > 0 {
		for _, pattern := range e.allowedResources {
			if pattern == uri {
				return false
			}
			if matched, err := filepath.Match(pattern, uri); err == nil && matched {
				return false
			}
		}
		return true
	}

	if !strings.HasPrefix(uri, "file://") {
		return true
	}
	return e.pathEscapesWorkspace(strings.TrimPrefix(uri, "file://"))
}

// pathEscapesWorkspace reports whether path, once cleaned, traverses
// outside the workspace directory or lands in a reserved system directory.
func (e *Engine) pathEscapesWorkspace(path string) bool {
	if path == "" {
		return false
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return true
	}
	if filepath.IsAbs(cleaned) {
		for _, sysDir := range []string{"/etc", "/sys", "/proc", "/boot", "/dev"} {
			if strings.HasPrefix(cleaned, sysDir) {
				return true
			}
		}
		if e.workspaceDir != "" && !strings.HasPrefix(cleaned, e.workspaceDir) && !strings.HasPrefix(cleaned, "/home") {
			return true
		}
	}
	return false
}

func commandArgumentText(arguments map[string]any) string {
	for _, key := range []string{"command", "cmd", "args"} {
		if v, ok := arguments[key]; ok {
			switch val := v.(type) {
			case string:
				return val
			case []any:
				parts := make([]string, 0, len(val))
				for _, p := range val {
					if s, ok := p.(string); ok {
						parts = append(parts, s)
					}
				}
				return strings.Join(parts, " ")
			}
		}
	}
	return ""
}

func pathArgument(arguments map[string]any) (string, bool) {
	for _, key := range []string{"path", "file_path", "directory"} {
		if v, ok := arguments[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// ContainsShellMetachar reports whether s contains a shell metacharacter
// that suggests command chaining or injection. Called by the agent
// façade's argument-result injection path before it splices a prior
// tool result's rendering into a new tool call's arguments, so that
// content carrying an injected result can't smuggle a command separator
// into a downstream shell invocation.
func (e *Engine) ContainsShellMetachar(s string) bool {
	return shellMetachars.MatchString(s)
}
