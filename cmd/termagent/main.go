// Package main provides the CLI entry point for termagent, the
// terminal-automation agent runtime: planner, self-correcting executor,
// tool-chain optimiser, MCP client and session manager wired together
// behind an agent façade.
//
// # Basic Usage
//
// Ask a single goal and exit:
//
//	termagent ask --config termagent.yaml "list the files in the current directory"
//
// Read goals from stdin, one per line, until EOF:
//
//	termagent serve --config termagent.yaml
//
// # Environment Variables
//
//   - TERMAGENT_CONFIG: path to the YAML/JSON5 configuration file
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: LLM provider credentials, referenced
//     from the config file via env-var expansion (e.g. api_key: ${ANTHROPIC_API_KEY})
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the slog.Logger per the configured level/format,
// mirroring the teacher's slog.NewJSONHandler + slog.SetDefault pattern.
func newLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
