// Package anthropic implements llm.Client on top of the Anthropic Claude
// Messages API via github.com/anthropics/anthropic-sdk-go. Tool names are
// sanitized to the provider's naming constraints and reverse-mapped back
// onto the canonical name before a ToolCall reaches the engine.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// callers can substitute a fake in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	// Model is the Claude model identifier, e.g. string(sdk.ModelClaudeSonnet4_5).
	Model string
	// MaxTokens bounds the completion. Zero or negative uses 4096, since the
	// Anthropic API itself has no default.
	MaxTokens int
	Temperature float64
}

// Client adapts MessagesClient to llm.Client.
type Client struct {
	msg   MessagesClient
	model string
	maxT  int
	temp  float64
}

// New constructs an Anthropic-backed llm.Client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Client{msg: msg, model: opts.Model, maxT: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client using the SDK's default HTTP client.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, Options{Model: model})
}

// structuredResponseTool is the name of the synthetic tool a ResponseSchema
// is attached to. Claude has no separate structured-output parameter, so a
// schema-carrying tool offered alongside the others reuses the same
// tool_use/ToolUseBlock path every other tool already goes through. The
// tool is sent with its name and input schema only; it carries no
// description.
const structuredResponseTool = "emit_structured_response"

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResult, error) {
	sanToCanon, canonToSan := buildToolNameMaps(req.Tools)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxT),
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}

	messages, system, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return llm.ChatResult{}, fmt.Errorf("anthropic: encode messages: %w", err)
	}
	params.Messages = messages
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	for _, t := range req.Tools {
		sanitized := canonToSan[t.Name]
		schema, err := toolInputSchema(t.InputSchema)
		if err != nil {
			return llm.ChatResult{}, fmt.Errorf("anthropic: tool %q input schema: %w", t.Name, err)
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParamOfTool(schema, sanitized))
	}
	if len(req.ResponseSchema) > 0 {
		schema, err := toolInputSchema(req.ResponseSchema)
		if err != nil {
			return llm.ChatResult{}, fmt.Errorf("anthropic: response schema: %w", err)
		}
		params.Tools = append(params.Tools, sdk.ToolUnionParamOfTool(schema, structuredResponseTool))
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return llm.ChatResult{}, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(msg, sanToCanon)
}

func buildToolNameMaps(tools []llm.ToolSpec) (sanToCanon, canonToSan map[string]string) {
	sanToCanon = make(map[string]string, len(tools))
	canonToSan = make(map[string]string, len(tools))
	for _, t := range tools {
		sanitized := sanitizeToolName(t.Name)
		sanToCanon[sanitized] = t.Name
		canonToSan[t.Name] = sanitized
	}
	return sanToCanon, canonToSan
}

func encodeMessages(msgs []llm.Message, canonToSan map[string]string) ([]sdk.MessageParam, string, error) {
	var system string
	var out []sdk.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			system += m.Content
		case llm.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llm.RoleAssistant:
			blocks := []sdk.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				sanitized := canonToSan[tc.Name]
				if sanitized == "" {
					sanitized = sanitizeToolName(tc.Name)
				}
				var input any
				_ = json.Unmarshal(tc.Arguments, &input)
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, sanitized))
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out, system, nil
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

// sanitizeToolName maps a canonical tool identifier to the character set
// Anthropic tool names allow, replacing any disallowed rune with '_'.
func sanitizeToolName(in string) string {
	if isProviderSafeToolName(in) {
		return in
	}
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if isSafeToolNameRune(r) {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func isProviderSafeToolName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !isSafeToolNameRune(r) {
			return false
		}
	}
	return true
}

func isSafeToolNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

func translateResponse(msg *sdk.Message, sanToCanon map[string]string) (llm.ChatResult, error) {
	if msg == nil {
		return llm.ChatResult{}, errors.New("anthropic: nil response message")
	}
	var result llm.ChatResult
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			if block.Name == structuredResponseTool {
				result.StructuredJSON = block.Input
				continue
			}
			canonical, ok := sanToCanon[block.Name]
			if !ok {
				canonical = block.Name
			}
			result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
				ID: block.ID, Name: canonical, Arguments: block.Input,
			})
		}
	}
	result.Usage = llm.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return result, nil
}
