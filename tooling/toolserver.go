// Package tooling implements the Tool Invocation Layer (C1): it mediates
// every tool call an agent turn makes, enforcing the wall-clock deadline,
// the per-run call budget, the consecutive-repeat loop guard, opt-in result
// caching, and the per-tool side-effect guards (single memory search,
// duplicate web search skip, duplicate/telemetry-like memory store reject).
package tooling

import (
	"context"
	"encoding/json"
)

type (
	// ToolServer is the capability the runtime consumes to discover and
	// invoke external tools (MCP-style). Implementations may proxy to a
	// remote tool server or wrap in-process Go functions.
	ToolServer interface {
		// ListTools enumerates the tools currently available.
		ListTools(ctx context.Context) ([]ToolDescriptor, error)
		// CallTool invokes a tool by name with the given JSON arguments and
		// returns its result. Implementations must strip control characters
		// from text content and truncate overlong output with an explicit
		// truncation marker.
		CallTool(ctx context.Context, name string, arguments json.RawMessage) (ToolResult, error)
	}

	// ToolDescriptor describes a tool available from a ToolServer.
	ToolDescriptor struct {
		Name        string
		Description string
		InputSchema json.RawMessage
	}

	// ToolResult is the normalized, duck-typing-free result of a tool call:
	// an interface any provider result can satisfy by exposing its content
	// as a sequence of text blocks, per the "duck-typed tool results" design
	// note. The runtime calls only this method, never probes
	// provider-specific fields.
	ToolResult interface {
		TextBlocks() []string
	}
)

// textResult is the default ToolResult implementation for plain text or
// structured values marshaled to a single JSON block.
type textResult struct {
	blocks []string
}

// NewTextResult wraps one or more text blocks as a ToolResult.
func NewTextResult(blocks ...string) ToolResult {
	return textResult{blocks: blocks}
}

func (t textResult) TextBlocks() []string { return t.blocks }

// NewJSONResult marshals v and wraps it as a single-block ToolResult. Used
// by in-process ToolServer implementations that return structured values.
func NewJSONResult(v any) (ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return textResult{blocks: []string{string(data)}}, nil
}
