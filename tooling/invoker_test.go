package tooling_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
	"github.com/strukalex/agentic-assistant-framework-sub000/toolerrors"
)

type fakeServer struct {
	calls    int32
	fn       func(ctx context.Context, name string, arguments json.RawMessage) (tooling.ToolResult, error)
	tools    []tooling.ToolDescriptor
}

func (f *fakeServer) ListTools(context.Context) ([]tooling.ToolDescriptor, error) {
	return f.tools, nil
}

func (f *fakeServer) CallTool(ctx context.Context, name string, arguments json.RawMessage) (tooling.ToolResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fn != nil {
		return f.fn(ctx, name, arguments)
	}
	return tooling.NewTextResult("ok"), nil
}

func TestCallSucceedsAndRecordsOneLogEntry(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	result, err := inv.Call(context.Background(), rc, "get_current_time", nil, tooling.CallOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, result.TextBlocks())
	require.Len(t, rc.Log(), 1)
	require.Equal(t, tooling.StatusSuccess, rc.Log()[0].Status)
}

func TestCallRejectsAfterDeadlineExceeded(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, err := inv.Call(context.Background(), rc, "get_current_time", nil, tooling.CallOptions{})
	require.Error(t, err)
	var te *toolerrors.ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, toolerrors.KindRuntimeBudgetExceeded, te.Kind)
	require.Zero(t, server.calls)
}

func TestCallEnforcesBudget(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	for i := 0; i < tooling.MaxToolCallsPerRun; i++ {
		params := map[string]any{"query": i}
		_, err := inv.Call(context.Background(), rc, "web_search", params, tooling.CallOptions{})
		require.NoError(t, err)
	}

	_, err := inv.Call(context.Background(), rc, "web_search", map[string]any{"query": "overflow"}, tooling.CallOptions{})
	require.Error(t, err)
	var te *toolerrors.ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, toolerrors.KindBudgetExceeded, te.Kind)
}

func TestCallRejectsRepeatedConsecutiveCallsAsLoop(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{MaxRepeats: 2})
	rc := tooling.NewRunContext(0)

	params := map[string]any{"path": "notes.txt"}
	_, err := inv.Call(context.Background(), rc, "read_file", params, tooling.CallOptions{})
	require.NoError(t, err)

	_, err = inv.Call(context.Background(), rc, "read_file", params, tooling.CallOptions{})
	require.Error(t, err)
	var te *toolerrors.ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, toolerrors.KindLoopDetected, te.Kind)
}

func TestCallableCacheHitSkipsExecutor(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{MaxRepeats: 10})
	rc := tooling.NewRunContext(0)

	params := map[string]any{"path": "notes.txt"}
	_, err := inv.Call(context.Background(), rc, "read_file", params, tooling.CallOptions{Cacheable: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, server.calls)

	_, err = inv.Call(context.Background(), rc, "read_file", params, tooling.CallOptions{Cacheable: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, server.calls, "cached call must not reach the executor")
	require.Len(t, rc.Log(), 2)
}

func TestSearchMemoryOnlyRunsOncePerTurn(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	first, err := inv.Call(context.Background(), rc, "search_memory", map[string]any{"query": "x"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, first.TextBlocks())

	second, err := inv.Call(context.Background(), rc, "search_memory", map[string]any{"query": "x"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Contains(t, second.TextBlocks()[0], "single_attempt_rule")
	require.EqualValues(t, 1, server.calls)
}

func TestWebSearchSkipsDuplicateQueryAndSkipsAfterAnswerCommitted(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	_, err := inv.Call(context.Background(), rc, "web_search", map[string]any{"query": "fusion"}, tooling.CallOptions{})
	require.NoError(t, err)

	dup, err := inv.Call(context.Background(), rc, "web_search", map[string]any{"query": "Fusion"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Contains(t, dup.TextBlocks()[0], "already searched")
	require.EqualValues(t, 1, server.calls)

	rc.MarkAnswerCommitted()
	afterCommit, err := inv.Call(context.Background(), rc, "web_search", map[string]any{"query": "something new"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Contains(t, afterCommit.TextBlocks()[0], "already been stored")
	require.EqualValues(t, 1, server.calls)
}

func TestStoreMemoryRejectsTelemetryLikeContent(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	result, err := inv.Call(context.Background(), rc, "store_memory", map[string]any{"content": "no results found for query"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Contains(t, result.TextBlocks()[0], "telemetry")
	require.Zero(t, server.calls)
}

func TestStoreMemoryRejectsDuplicateContentWithinTurn(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	_, err := inv.Call(context.Background(), rc, "store_memory", map[string]any{"content": "the answer is 42"}, tooling.CallOptions{})
	require.NoError(t, err)

	dup, err := inv.Call(context.Background(), rc, "store_memory", map[string]any{"content": "the answer is 42"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Contains(t, dup.TextBlocks()[0], "Duplicate content")
	require.EqualValues(t, 1, server.calls)
}

func TestSuccessfulStoreMemoryCommitsAnswerAndBlocksFurtherWebSearch(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	_, err := inv.Call(context.Background(), rc, "store_memory", map[string]any{"content": "the answer is 42"}, tooling.CallOptions{})
	require.NoError(t, err)

	blocked, err := inv.Call(context.Background(), rc, "web_search", map[string]any{"query": "anything"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Contains(t, blocked.TextBlocks()[0], "already been stored", "a successful store_memory must commit the answer without an explicit MarkAnswerCommitted call")
	require.Zero(t, server.calls-1, "web_search must never reach the executor once committed")
}

func TestFailedStoreMemoryDoesNotCommitAnswer(t *testing.T) {
	server := &fakeServer{fn: func(_ context.Context, name string, _ json.RawMessage) (tooling.ToolResult, error) {
		if name == "store_memory" {
			return nil, errors.New("backend unavailable")
		}
		return tooling.NewTextResult("ok"), nil
	}}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	_, err := inv.Call(context.Background(), rc, "store_memory", map[string]any{"content": "the answer is 42"}, tooling.CallOptions{})
	require.Error(t, err)

	allowed, err := inv.Call(context.Background(), rc, "web_search", map[string]any{"query": "anything"}, tooling.CallOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, allowed.TextBlocks(), "a failed store_memory must not block a subsequent web_search")
}

func TestCallValidatesRegisteredSchemaBeforeDispatch(t *testing.T) {
	server := &fakeServer{}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	schema := json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)
	require.NoError(t, inv.RegisterSchema("web_search", schema))

	_, err := inv.Call(context.Background(), rc, "web_search", map[string]any{}, tooling.CallOptions{})
	require.Error(t, err)
	var te *toolerrors.ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, toolerrors.KindToolFailure, te.Kind)
	require.Zero(t, server.calls)
}

func TestCallClassifiesTimeoutSeparatelyFromFailure(t *testing.T) {
	server := &fakeServer{fn: func(ctx context.Context, name string, arguments json.RawMessage) (tooling.ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	inv := tooling.New(server, tooling.Options{ToolTimeout: 5 * time.Millisecond})
	rc := tooling.NewRunContext(0)

	_, err := inv.Call(context.Background(), rc, "get_current_time", nil, tooling.CallOptions{})
	require.Error(t, err)
	var te *toolerrors.ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, toolerrors.KindToolTimeout, te.Kind)
}

func TestCallWrapsExecutorFailureAsToolFailure(t *testing.T) {
	server := &fakeServer{fn: func(ctx context.Context, name string, arguments json.RawMessage) (tooling.ToolResult, error) {
		return nil, errors.New("boom")
	}}
	inv := tooling.New(server, tooling.Options{})
	rc := tooling.NewRunContext(0)

	_, err := inv.Call(context.Background(), rc, "get_current_time", nil, tooling.CallOptions{})
	require.Error(t, err)
	var te *toolerrors.ToolError
	require.ErrorAs(t, err, &te)
	require.Equal(t, toolerrors.KindToolFailure, te.Kind)
}
