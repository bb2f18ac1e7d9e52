package inmem_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/memory"
	"github.com/strukalex/agentic-assistant-framework-sub000/memory/inmem"
)

func TestStoreDocumentAndSemanticSearchRanksSubstringMatches(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()

	_, err := store.StoreDocument(ctx, "quarterly revenue grew 12%", map[string]any{"topic": "finance"}, nil)
	require.NoError(t, err)
	_, err = store.StoreDocument(ctx, "weather forecast for tomorrow", map[string]any{"topic": "weather"}, nil)
	require.NoError(t, err)

	results, err := store.SemanticSearch(ctx, "revenue", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Contains(t, results[0].Content, "revenue")
}

func TestSemanticSearchAppliesMetadataFilters(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()

	_, err := store.StoreDocument(ctx, "report A", map[string]any{"user_id": "u1"}, nil)
	require.NoError(t, err)
	_, err = store.StoreDocument(ctx, "report B", map[string]any{"user_id": "u2"}, nil)
	require.NoError(t, err)

	results, err := store.SemanticSearch(ctx, "report", 5, map[string]any{"user_id": "u2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "report B", results[0].Content)
}

func TestSemanticSearchTopKLimitsResults(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.StoreDocument(ctx, "item", nil, nil)
		require.NoError(t, err)
	}
	results, err := store.SemanticSearch(ctx, "item", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestConversationHistoryOrderedAndBoundedByLimit(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		msg := memory.Message{UserID: "u1", Role: "user", Content: fmt.Sprintf("msg-%d", i)}
		require.NoError(t, store.StoreMessage(ctx, msg))
	}

	history, err := store.GetConversationHistory(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "msg-1", history[0].Content)
	require.Equal(t, "msg-2", history[1].Content)
}
