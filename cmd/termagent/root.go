package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/agentfacade"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/config"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/llm"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/mcp"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/memory"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/policy"
	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/session"
)

var version = "dev"

// buildRootCmd creates the root command with the ask/serve subcommands
// attached. Kept thin: no channel, migration, plugin or marketplace
// command groups, since this CLI's only job is driving one agent façade
// against one configured tool server.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "termagent",
		Short:        "termagent - terminal automation agent runtime",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildAskCmd(), buildServeCmd())
	return rootCmd
}

// buildAskCmd runs the full planner/executor/façade pipeline once for a
// single goal given as CLI arguments, printing the synthesised answer.
func buildAskCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ask [goal]",
		Short: "Run one goal through the agent and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := joinArgs(args)
			agent, closeFn, err := buildAgent(configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			answer, err := agent.Answer(cmd.Context(), goal)
			if err != nil {
				return fmt.Errorf("answer: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("TERMAGENT_CONFIG"), "path to YAML/JSON5 configuration file")
	return cmd
}

// buildServeCmd reads goals from stdin, one per line, running each
// through the same agent and printing its answer, until EOF.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Read goals from stdin in a loop and print each answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, closeFn, err := buildAgent(configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			for scanner.Scan() {
				goal := scanner.Text()
				if goal == "" {
					continue
				}
				answer, err := agent.Answer(cmd.Context(), goal)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				fmt.Fprintln(out, answer)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("TERMAGENT_CONFIG"), "path to YAML/JSON5 configuration file")
	return cmd
}

func joinArgs(args []string) string {
	goal := args[0]
	for _, a := range args[1:] {
		goal += " " + a
	}
	return goal
}

// buildAgent loads configuration, wires the MCP client, oracle, policy
// engine, session manager and memory store, and connects the client. The
// returned closeFn tears the client down; callers must defer it.
func buildAgent(configPath string) (*agentfacade.Agent, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	pol := policy.NewEngine(cfg.Policy.WorkspaceDir, cfg.Policy.DryRun, cfg.Policy.AllowedResources...)
	client := mcp.NewClient(cfg.Server.ToServerConfig(), pol, cfg.Client.ToClientConfig(), logger)

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect mcp server %s: %w", cfg.Server.ID, err)
	}

	oracle, err := buildOracle(cfg.LLM)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("build llm oracle: %w", err)
	}

	sess := session.NewManager(cfg.Session.SessionID, cfg.Session.CheckpointDir)
	mem := memory.NewStore(cfg.Session.MemoryPath, logger)

	agent := agentfacade.New(client, oracle, pol, sess, mem, cfg.Session.MaxRetries, logger)
	closeFn := func() { _ = client.Close() }
	return agent, closeFn, nil
}

func buildOracle(cfg config.LLMConfig) (agentfacade.Oracle, error) {
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIOracle(llm.OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxTokens:  cfg.MaxTokens,
			MaxRetries: cfg.MaxRetries,
		}), nil
	case "anthropic", "":
		return llm.NewAnthropicOracle(llm.AnthropicConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxTokens:  int64(cfg.MaxTokens),
			MaxRetries: cfg.MaxRetries,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
