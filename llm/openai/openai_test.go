package openai_test

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	openaiadapter "github.com/strukalex/agentic-assistant-framework-sub000/llm/openai"
)

type mockChatClient struct {
	response sdk.ChatCompletionResponse
	err      error
	captured sdk.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(_ context.Context, request sdk.ChatCompletionRequest) (sdk.ChatCompletionResponse, error) {
	m.captured = request
	return m.response, m.err
}

func TestChatTranslatesTextAndToolCalls(t *testing.T) {
	mock := &mockChatClient{response: sdk.ChatCompletionResponse{
		Choices: []sdk.ChatCompletionChoice{{
			FinishReason: "tool_calls",
			Message: sdk.ChatCompletionMessage{
				Role:    sdk.ChatMessageRoleAssistant,
				Content: "hi there",
				ToolCalls: []sdk.ToolCall{{
					ID:       "call-1",
					Type:     sdk.ToolTypeFunction,
					Function: sdk.FunctionCall{Name: "lookup", Arguments: `{"query":"docs"}`},
				}},
			},
		}},
		Usage: sdk.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	client, err := openaiadapter.New(mock, openaiadapter.Options{Model: "gpt-4o"})
	require.NoError(t, err)

	result, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
		Tools: []llm.ToolSpec{
			{Name: "lookup", Description: "search", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "hi there", result.Content)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "lookup", result.ToolCalls[0].Name)
	require.Equal(t, "call-1", result.ToolCalls[0].ID)
	require.JSONEq(t, `{"query":"docs"}`, string(result.ToolCalls[0].Arguments))
	require.Equal(t, 10, result.Usage.InputTokens)
	require.Equal(t, 5, result.Usage.OutputTokens)

	req := mock.captured
	require.Equal(t, "gpt-4o", req.Model)
	require.Len(t, req.Messages, 1)
	require.Equal(t, "ping", req.Messages[0].Content)
	require.Len(t, req.Tools, 1)
	require.Equal(t, sdk.ToolTypeFunction, req.Tools[0].Type)
	params, ok := req.Tools[0].Function.Parameters.(json.RawMessage)
	require.True(t, ok)
	require.JSONEq(t, `{"type":"object"}`, string(params))
}

func TestChatRoutesResponseSchemaToolCallIntoStructuredJSON(t *testing.T) {
	mock := &mockChatClient{response: sdk.ChatCompletionResponse{
		Choices: []sdk.ChatCompletionChoice{{
			Message: sdk.ChatCompletionMessage{
				ToolCalls: []sdk.ToolCall{{
					Type:     sdk.ToolTypeFunction,
					Function: sdk.FunctionCall{Name: "emit_structured_response", Arguments: `{"answer":"42","reasoning":"because","confidence":0.9}`},
				}},
			},
		}},
	}}
	client, err := openaiadapter.New(mock, openaiadapter.Options{Model: "gpt-4o"})
	require.NoError(t, err)

	result, err := client.Chat(context.Background(), llm.ChatRequest{
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: "what is the answer"}},
		ResponseSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
	})
	require.NoError(t, err)
	require.Empty(t, result.ToolCalls, "the synthetic structured-response tool must not surface as a ToolCall")
	require.JSONEq(t, `{"answer":"42","reasoning":"because","confidence":0.9}`, string(result.StructuredJSON))

	require.Len(t, mock.captured.Tools, 1)
	require.Equal(t, "emit_structured_response", mock.captured.Tools[0].Function.Name)
}

func TestChatEncodesToolCallRoundTripForAssistantAndToolMessages(t *testing.T) {
	mock := &mockChatClient{response: sdk.ChatCompletionResponse{Choices: []sdk.ChatCompletionChoice{{}}}}
	client, err := openaiadapter.New(mock, openaiadapter.Options{Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be helpful"},
			{Role: llm.RoleUser, Content: "look it up"},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)}}},
			{Role: llm.RoleTool, ToolCallID: "call-1", Content: `{"result":"ok"}`},
		},
	})
	require.NoError(t, err)

	req := mock.captured
	require.Len(t, req.Messages, 4)
	require.Equal(t, sdk.ChatMessageRoleSystem, req.Messages[0].Role)
	require.Equal(t, sdk.ChatMessageRoleUser, req.Messages[1].Role)
	require.Equal(t, sdk.ChatMessageRoleAssistant, req.Messages[2].Role)
	require.Len(t, req.Messages[2].ToolCalls, 1)
	require.Equal(t, "lookup", req.Messages[2].ToolCalls[0].Function.Name)
	require.Equal(t, sdk.ChatMessageRoleTool, req.Messages[3].Role)
	require.Equal(t, "call-1", req.Messages[3].ToolCallID)
}

func TestChatPropagatesUnderlyingError(t *testing.T) {
	mock := &mockChatClient{err: context.DeadlineExceeded}
	client, err := openaiadapter.New(mock, openaiadapter.Options{Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
}

func TestChatRejectsEmptyCompletionResponse(t *testing.T) {
	mock := &mockChatClient{response: sdk.ChatCompletionResponse{}}
	client, err := openaiadapter.New(mock, openaiadapter.Options{Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
}

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := openaiadapter.New(&mockChatClient{}, openaiadapter.Options{})
	require.Error(t, err)
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := openaiadapter.New(nil, openaiadapter.Options{Model: "gpt-4o"})
	require.Error(t, err)
}
