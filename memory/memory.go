// Package memory exposes the MemoryStore capability: durable storage for
// research documents and conversation history, used both by the
// search_memory/store_memory tools and by the Finish node's report
// persistence. Production deployments use memory/mongostore; tests and
// local runs use memory/inmem.
package memory

import (
	"context"
	"time"
)

// Document is a unit of persisted research content, returned by
// SemanticSearch and written by StoreDocument.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float64
	StoredAt  time.Time
}

// Message is a single turn of conversation history associated with a user.
type Message struct {
	UserID    string
	Role      string
	Content   string
	Timestamp time.Time
}

// Store implements the MemoryStore capability referenced by spec §6:
// store_document, semantic_search, store_message, get_conversation_history.
// Implementations must be safe for concurrent use.
type Store interface {
	// StoreDocument persists content with arbitrary metadata and returns the
	// generated document ID. Embedding is optional; implementations without
	// vector search may ignore it.
	StoreDocument(ctx context.Context, content string, metadata map[string]any, embedding []float64) (string, error)

	// SemanticSearch returns up to topK documents relevant to query. Filters
	// restrict results to documents whose metadata matches each key/value
	// pair. Implementations without true embedding search fall back to
	// simpler matching (inmem: substring match; mongostore: Mongo text
	// index), documented at the call site rather than hidden behind a
	// misleading name.
	SemanticSearch(ctx context.Context, query string, topK int, filters map[string]any) ([]Document, error)

	// StoreMessage appends one conversation turn for userID.
	StoreMessage(ctx context.Context, msg Message) error

	// GetConversationHistory returns the most recent messages for userID, in
	// chronological order, bounded by limit.
	GetConversationHistory(ctx context.Context, userID string, limit int) ([]Message, error)
}

// MaxSnippetBytes bounds state.SourceReference.Snippet per the persisted-state
// invariant: sources.snippet length <= 1000 bytes.
const MaxSnippetBytes = 1000

// MaxTopicChars bounds ResearchState.Topic: topic length <= 500 characters.
const MaxTopicChars = 500

// MaxUserIDChars bounds ResearchState.UserID: user_id length <= 255 characters.
const MaxUserIDChars = 255

// TruncateSnippet clamps s to MaxSnippetBytes, respecting UTF-8 boundaries.
func TruncateSnippet(s string) string {
	if len(s) <= MaxSnippetBytes {
		return s
	}
	b := []byte(s)[:MaxSnippetBytes]
	for len(b) > 0 && !isUTF8Boundary(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}

func isUTF8Boundary(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	return b[len(b)-1]&0xC0 != 0x80
}
