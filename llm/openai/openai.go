// Package openai implements llm.Client on top of the OpenAI Chat
// Completions API via github.com/sashabaranov/go-openai, mirroring the
// shape of the Anthropic adapter in llm/anthropic so the engine can swap
// providers without any change to its own code.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
)

// ChatClient captures the subset of the go-openai client used here, so
// callers can substitute a fake in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the adapter.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client adapts ChatClient to llm.Client.
type Client struct {
	chat  ChatClient
	model string
	temp  float64
	maxT  int
}

// New constructs an OpenAI-backed llm.Client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	return &Client{chat: chat, model: opts.Model, temp: opts.Temperature, maxT: opts.MaxTokens}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	return New(openai.NewClient(apiKey), Options{Model: model})
}

// structuredResponseTool is the name of the synthetic tool a ResponseSchema
// is attached to. The model is steered toward calling it, via its
// description, instead of Chat Completions' response_format parameter: this
// keeps structured output on the same tool-calling path every other tool
// already goes through rather than introducing a second output channel.
const structuredResponseTool = "emit_structured_response"

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResult, error) {
	messages := encodeMessages(req.Messages)

	tools, err := encodeTools(req.Tools)
	if err != nil {
		return llm.ChatResult{}, fmt.Errorf("openai: encode tools: %w", err)
	}
	if len(req.ResponseSchema) > 0 {
		structured, err := encodeTool(llm.ToolSpec{
			Name:        structuredResponseTool,
			Description: "Call this exactly once with your final structured answer, matching the given schema, instead of replying in plain text.",
			InputSchema: req.ResponseSchema,
		})
		if err != nil {
			return llm.ChatResult{}, fmt.Errorf("openai: response schema: %w", err)
		}
		tools = append(tools, structured)
	}

	request := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(c.temp),
		Tools:       tools,
	}
	if c.maxT > 0 {
		request.MaxTokens = c.maxT
	}

	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return llm.ChatResult{}, fmt.Errorf("openai: create chat completion: %w", err)
	}
	return translateResponse(resp)
}

func encodeMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case llm.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case llm.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, msg)
		case llm.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return out
}

func encodeTools(specs []llm.ToolSpec) ([]openai.Tool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]openai.Tool, 0, len(specs))
	for _, t := range specs {
		tool, err := encodeTool(t)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

func encodeTool(t llm.ToolSpec) (openai.Tool, error) {
	var params any
	if len(t.InputSchema) > 0 {
		params = json.RawMessage(t.InputSchema)
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}, nil
}

func translateResponse(resp openai.ChatCompletionResponse) (llm.ChatResult, error) {
	if len(resp.Choices) == 0 {
		return llm.ChatResult{}, errors.New("openai: empty completion response")
	}
	choice := resp.Choices[0]
	result := llm.ChatResult{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == structuredResponseTool {
			result.StructuredJSON = json.RawMessage(tc.Function.Arguments)
			continue
		}
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	result.Usage = llm.Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	return result, nil
}
