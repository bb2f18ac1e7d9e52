// Package inmem provides an in-memory implementation of memory.Store for
// testing and local development. Data is stored in process memory and is
// lost when the process exits. Production deployments should use a durable
// backend; see memory/mongostore.
package inmem

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/strukalex/agentic-assistant-framework-sub000/memory"
)

// Store implements memory.Store using in-process maps. It is thread-safe and
// suitable for tests and local development. SemanticSearch has no embedding
// model behind it: it ranks documents by case-insensitive substring overlap
// with query, after applying exact-match metadata filters.
type Store struct {
	mu        sync.RWMutex
	documents map[string]memory.Document
	nextID    int
	messages  map[string][]memory.Message
	now       func() time.Time
}

// New returns a new in-memory store instance with no documents or history.
func New() *Store {
	return &Store{
		documents: make(map[string]memory.Document),
		messages:  make(map[string][]memory.Message),
		now:       time.Now,
	}
}

// StoreDocument implements memory.Store.
func (s *Store) StoreDocument(_ context.Context, content string, metadata map[string]any, embedding []float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "doc-" + strconv.Itoa(s.nextID)
	s.documents[id] = memory.Document{
		ID:        id,
		Content:   content,
		Metadata:  cloneMap(metadata),
		Embedding: append([]float64(nil), embedding...),
		StoredAt:  s.now(),
	}
	return id, nil
}

// SemanticSearch implements memory.Store with substring ranking; see the
// Store doc comment for the exact semantics.
func (s *Store) SemanticSearch(_ context.Context, query string, topK int, filters map[string]any) ([]memory.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query))
	type scored struct {
		doc   memory.Document
		score int
		at    time.Time
	}
	var matches []scored
	for _, doc := range s.documents {
		if !matchesFilters(doc.Metadata, filters) {
			continue
		}
		score := 0
		if needle != "" && strings.Contains(strings.ToLower(doc.Content), needle) {
			score = 1
		}
		if needle == "" || score > 0 {
			matches = append(matches, scored{doc: cloneDocument(doc), score: score, at: doc.StoredAt})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].at.After(matches[j].at)
	})
	if topK <= 0 || topK > len(matches) {
		topK = len(matches)
	}
	out := make([]memory.Document, 0, topK)
	for i := 0; i < topK; i++ {
		out = append(out, matches[i].doc)
	}
	return out, nil
}

// StoreMessage implements memory.Store.
func (s *Store) StoreMessage(_ context.Context, msg memory.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.messages[msg.UserID] = append(s.messages[msg.UserID], msg)
	return nil
}

// GetConversationHistory implements memory.Store.
func (s *Store) GetConversationHistory(_ context.Context, userID string, limit int) ([]memory.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.messages[userID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	start := len(history) - limit
	out := make([]memory.Message, limit)
	copy(out, history[start:])
	return out, nil
}

// Reset clears all stored documents and messages. Test-only helper.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = make(map[string]memory.Document)
	s.messages = make(map[string][]memory.Message)
	s.nextID = 0
}

func matchesFilters(metadata map[string]any, filters map[string]any) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func cloneDocument(d memory.Document) memory.Document {
	d.Metadata = cloneMap(d.Metadata)
	d.Embedding = append([]float64(nil), d.Embedding...)
	return d
}
