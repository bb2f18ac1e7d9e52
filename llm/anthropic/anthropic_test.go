package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestChatTranslatesTextOnlyResponse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "hello there"}},
		Usage:   sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	c, err := New(stub, Options{Model: "claude-3.5-sonnet"})
	require.NoError(t, err)

	result, err := c.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", result.Content)
	require.Equal(t, 10, result.Usage.InputTokens)
	require.Equal(t, 5, result.Usage.OutputTokens)
}

func TestChatSanitizesAndReverseMapsToolNames(t *testing.T) {
	stub := &stubMessagesClient{}
	c, err := New(stub, Options{Model: "claude-3.5-sonnet"})
	require.NoError(t, err)

	req := llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "search"}},
		Tools: []llm.ToolSpec{
			{Name: "search.memory!!", Description: "search memory", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
	}

	stub.resp = &sdk.Message{}
	_, err = c.Chat(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, stub.lastParams.Tools, 1)

	sanitized := stub.lastParams.Tools[0].OfTool.Name
	require.NotEqual(t, "search.memory!!", sanitized, "unsafe characters must be replaced")

	stub.resp = &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "tool_use", Name: sanitized, ID: "call-1", Input: json.RawMessage(`{"q":"x"}`)}},
	}
	result, err := c.Chat(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "search.memory!!", result.ToolCalls[0].Name, "canonical name must be restored")
	require.Equal(t, "call-1", result.ToolCalls[0].ID)
	require.JSONEq(t, `{"q":"x"}`, string(result.ToolCalls[0].Arguments))
}

func TestChatRoutesResponseSchemaToolCallIntoStructuredJSON(t *testing.T) {
	stub := &stubMessagesClient{}
	c, err := New(stub, Options{Model: "claude-3.5-sonnet"})
	require.NoError(t, err)

	stub.resp = &sdk.Message{
		Content: []sdk.ContentBlockUnion{{
			Type:  "tool_use",
			Name:  structuredResponseTool,
			ID:    "call-structured",
			Input: json.RawMessage(`{"answer":"42","reasoning":"because","confidence":0.9}`),
		}},
	}

	result, err := c.Chat(context.Background(), llm.ChatRequest{
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: "what is the answer"}},
		ResponseSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
	})
	require.NoError(t, err)
	require.Empty(t, result.ToolCalls, "the synthetic structured-response tool must not surface as a ToolCall")
	require.JSONEq(t, `{"answer":"42","reasoning":"because","confidence":0.9}`, string(result.StructuredJSON))

	require.Len(t, stub.lastParams.Tools, 1)
	require.Equal(t, structuredResponseTool, stub.lastParams.Tools[0].OfTool.Name)
}

func TestChatPropagatesUnderlyingError(t *testing.T) {
	stub := &stubMessagesClient{err: context.DeadlineExceeded}
	c, err := New(stub, Options{Model: "claude-3.5-sonnet"})
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
}

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(&stubMessagesClient{}, Options{})
	require.Error(t, err)
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(nil, Options{Model: "claude-3.5-sonnet"})
	require.Error(t, err)
}
