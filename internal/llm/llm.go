// Package llm provides concrete Oracle bindings for the text-in/text-out
// LLM backend the planner, executor and agent façade treat as an external
// oracle. The spec does not require any particular provider; two real SDKs
// are wired here so the orchestration core is exercised end-to-end against
// an actual backend rather than only a test fake.
package llm

import "context"

// Oracle is the pure text-in/text-out LLM callable consumed by the
// planner, the self-correcting executor's reflection step and the agent
// façade's final synthesis. It matches the narrow interface each of those
// packages declares locally. The tool-chain optimiser does not call it.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
