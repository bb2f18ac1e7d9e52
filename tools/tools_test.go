package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/memory/inmem"
	"github.com/strukalex/agentic-assistant-framework-sub000/tools"
)

func TestListToolsReturnsTheBuiltInSet(t *testing.T) {
	s := tools.New(inmem.New(), tools.Config{})
	descriptors, err := s.ListTools(context.Background())
	require.NoError(t, err)

	names := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		names[d.Name] = true
	}
	for _, want := range []string{"web_search", "search_memory", "store_memory", "read_file", "get_current_time"} {
		require.True(t, names[want], "expected %q in tool list", want)
	}
}

func TestGetCurrentTimeReturnsRFC3339(t *testing.T) {
	s := tools.New(inmem.New(), tools.Config{})
	result, err := s.CallTool(context.Background(), "get_current_time", nil)
	require.NoError(t, err)
	require.Len(t, result.TextBlocks(), 1)
}

func TestStoreThenSearchMemoryRoundTrips(t *testing.T) {
	store := inmem.New()
	s := tools.New(store, tools.Config{})
	ctx := context.Background()

	storeArgs, err := json.Marshal(map[string]any{"content": "fusion reactors use magnetic confinement"})
	require.NoError(t, err)
	_, err = s.CallTool(ctx, "store_memory", storeArgs)
	require.NoError(t, err)

	searchArgs, err := json.Marshal(map[string]any{"query": "magnetic confinement"})
	require.NoError(t, err)
	result, err := s.CallTool(ctx, "search_memory", searchArgs)
	require.NoError(t, err)
	require.Len(t, result.TextBlocks(), 1)
	require.Contains(t, result.TextBlocks()[0], "magnetic confinement")
}

func TestSearchMemoryWithoutStoreReportsNoResults(t *testing.T) {
	s := tools.New(nil, tools.Config{})
	result, err := s.CallTool(context.Background(), "search_memory", []byte(`{"query":"anything"}`))
	require.NoError(t, err)
	require.Contains(t, result.TextBlocks()[0], "no results found")
}

func TestStoreMemoryWithoutStoreErrors(t *testing.T) {
	s := tools.New(nil, tools.Config{})
	_, err := s.CallTool(context.Background(), "store_memory", []byte(`{"content":"x"}`))
	require.Error(t, err)
}

func TestReadFileDisabledByDefault(t *testing.T) {
	s := tools.New(inmem.New(), tools.Config{})
	_, err := s.CallTool(context.Background(), "read_file", []byte(`{"path":"notes.txt"}`))
	require.Error(t, err)
}

func TestUnknownToolErrors(t *testing.T) {
	s := tools.New(inmem.New(), tools.Config{})
	_, err := s.CallTool(context.Background(), "delete_everything", nil)
	require.Error(t, err)
}
