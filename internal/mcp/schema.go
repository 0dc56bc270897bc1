package mcp

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ArgSchema is a tool's input_schema compiled once via jsonschema.Compile
// so repeated argument validation before dispatch is cheap.
type ArgSchema struct {
	tool   string
	schema *jsonschema.Schema
}

// compileArgSchema compiles a tool's raw input_schema. A tool that omits a
// schema is treated as accepting any arguments.
func compileArgSchema(tool *MCPTool) (*ArgSchema, error) {
	if tool == nil || len(tool.InputSchema) == 0 {
		return &ArgSchema{tool: tool.Name}, nil
	}

	compiler := jsonschema.NewCompiler()
	resource := tool.Name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(tool.InputSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", tool.Name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", tool.Name, err)
	}
	return &ArgSchema{tool: tool.Name, schema: schema}, nil
}

// Validate checks arguments against the compiled schema. A SchemaMismatch
// is returned as a plain error (not raised): per the spec's error
// taxonomy, argument mismatches are surfaced as observation failures that
// drive reflection, not exceptions.
func (s *ArgSchema) Validate(arguments map[string]any) error {
	if s == nil || s.schema == nil {
		return nil
	}
	if err := s.schema.Validate(toGenericMap(arguments)); err != nil {
		return fmt.Errorf("arguments for %s do not match schema: %w", s.tool, err)
	}
	return nil
}

// toGenericMap returns a shallow copy of m, typed as the `any` value
// jsonschema's validator takes. Values are passed through unchanged; no
// JSON round trip is made.
func toGenericMap(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
