package gap_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/gap"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
)

type fakeLLM struct {
	result llm.ChatResult
	err    error
}

func (f *fakeLLM) Chat(context.Context, llm.ChatRequest) (llm.ChatResult, error) {
	return f.result, f.err
}

type fakeServer struct {
	descriptors []tooling.ToolDescriptor
	listErr     error
}

func (f *fakeServer) ListTools(context.Context) ([]tooling.ToolDescriptor, error) {
	return f.descriptors, f.listErr
}

func (f *fakeServer) CallTool(context.Context, string, json.RawMessage) (tooling.ToolResult, error) {
	return nil, errors.New("not used in these tests")
}

func TestDetectReturnsNilReportWhenToolsSuffice(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"missing_capabilities": []string{}, "reasoning": "web_search covers it"})
	llmClient := &fakeLLM{result: llm.ChatResult{StructuredJSON: data}}
	server := &fakeServer{descriptors: []tooling.ToolDescriptor{{Name: "web_search", Description: "search the web"}}}

	detector := gap.New(llmClient, server)
	report, err := detector.Detect(context.Background(), "find recent news")
	require.NoError(t, err)
	require.Nil(t, report)
}

func TestDetectReturnsReportWhenCapabilityMissing(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"missing_capabilities": []string{"send_email"}, "reasoning": "no email tool registered"})
	llmClient := &fakeLLM{result: llm.ChatResult{StructuredJSON: data}}
	server := &fakeServer{descriptors: []tooling.ToolDescriptor{{Name: "web_search"}}}

	detector := gap.New(llmClient, server)
	report, err := detector.Detect(context.Background(), "email the team")
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Equal(t, []string{"send_email"}, report.MissingTools)
	require.Equal(t, "email the team", report.AttemptedTask)
	require.Contains(t, report.ExistingToolsChecked, "web_search")
	require.Contains(t, report.ExistingToolsChecked, "search_memory")
	require.Contains(t, report.ExistingToolsChecked, "store_memory")
}

func TestDetectExcludesNoisyArticleFetchersFromChecked(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"missing_capabilities": []string{"send_email"}, "reasoning": "no email tool"})
	llmClient := &fakeLLM{result: llm.ChatResult{StructuredJSON: data}}
	server := &fakeServer{descriptors: []tooling.ToolDescriptor{{Name: "fetch_article"}, {Name: "web_search"}}}

	detector := gap.New(llmClient, server)
	report, err := detector.Detect(context.Background(), "anything")
	require.NoError(t, err)
	require.NotNil(t, report)
	require.NotContains(t, report.ExistingToolsChecked, "fetch_article")
	require.Contains(t, report.ExistingToolsChecked, "web_search")
}

func TestDetectFailsClosedWhenListToolsErrors(t *testing.T) {
	server := &fakeServer{listErr: errors.New("tool registry unavailable")}
	detector := gap.New(&fakeLLM{}, server)

	report, err := detector.Detect(context.Background(), "anything")
	require.Error(t, err)
	require.Nil(t, report)
}

func TestDetectFailsClosedWhenModelErrors(t *testing.T) {
	server := &fakeServer{descriptors: []tooling.ToolDescriptor{{Name: "web_search"}}}
	detector := gap.New(&fakeLLM{err: errors.New("model unavailable")}, server)

	report, err := detector.Detect(context.Background(), "anything")
	require.Error(t, err)
	require.Nil(t, report)
}

func TestDetectFailsClosedWhenModelOmitsStructuredOutput(t *testing.T) {
	server := &fakeServer{descriptors: []tooling.ToolDescriptor{{Name: "web_search"}}}
	detector := gap.New(&fakeLLM{result: llm.ChatResult{Content: "sure, that should work"}}, server)

	report, err := detector.Detect(context.Background(), "anything")
	require.Error(t, err)
	require.Nil(t, report)
}

func TestDetectFailsClosedOnMalformedStructuredOutput(t *testing.T) {
	server := &fakeServer{descriptors: []tooling.ToolDescriptor{{Name: "web_search"}}}
	detector := gap.New(&fakeLLM{result: llm.ChatResult{StructuredJSON: json.RawMessage(`{"missing_capabilities": "not-an-array"}`)}}, server)

	report, err := detector.Detect(context.Background(), "anything")
	require.Error(t, err)
	require.Nil(t, report)
}
