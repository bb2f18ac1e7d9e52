package tooling

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status enumerates the outcome of a single tool call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// ToolCallRecord captures the outcome of one tool invocation mediated by the
// Invoker. Records accumulate in RunContext.Log for the duration of one
// agent turn and are materialized into the turn's final AgentResponse.
type ToolCallRecord struct {
	ToolName   string
	Parameters map[string]any
	Result     any
	DurationMS int64
	Status     Status
}

// RunContext is the per-run ambient state threaded explicitly through the
// Tool Invocation Layer for the lifetime of exactly one agent turn. It is
// never shared across runs and is never stored in a global or in a Go
// context.Context value — the "per-run ambient context" design note calls
// for a value explicitly passed around, not captured in task-local storage.
type RunContext struct {
	mu sync.Mutex

	log              []ToolCallRecord
	resultCache      map[string]any
	webSearchSeen    map[string]struct{}
	storedHashes     map[string]struct{}
	answerCommitted  bool
	memorySearched   bool
	deadline         time.Time
	hasDeadline      bool
}

// NewRunContext constructs an empty per-run state. If maxRuntime is
// positive, deadline is set to now+maxRuntime; otherwise the run has no
// wall-clock deadline.
func NewRunContext(maxRuntime time.Duration) *RunContext {
	rc := &RunContext{
		resultCache:   make(map[string]any),
		webSearchSeen: make(map[string]struct{}),
		storedHashes:  make(map[string]struct{}),
	}
	if maxRuntime > 0 {
		rc.deadline = time.Now().Add(maxRuntime)
		rc.hasDeadline = true
	}
	return rc
}

// Log returns a copy of the accumulated tool-call records in invocation
// order. This becomes the authoritative AgentResponse.tool_calls sequence.
func (rc *RunContext) Log() []ToolCallRecord {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]ToolCallRecord, len(rc.log))
	copy(out, rc.log)
	return out
}

// DeadlineExceeded reports whether the run's wall-clock deadline, if any,
// has passed.
func (rc *RunContext) DeadlineExceeded() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.hasDeadline && time.Now().After(rc.deadline)
}

// canonicalKey renders the deterministic cache key
// "<tool_name>:<canonical_json(parameters)>" used for both the result cache
// and the loop guard. Parameters are sorted by key so the key is stable
// across map iteration order; values that fail to marshal fall back to a
// stable sorted %v representation.
func canonicalKey(toolName string, parameters map[string]any) string {
	return toolName + ":" + canonicalJSON(parameters)
}

func canonicalJSON(parameters map[string]any) string {
	clean := make(map[string]any, len(parameters))
	for k, v := range parameters {
		if k == "_cached" {
			continue
		}
		clean[k] = v
	}
	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, clean[k])
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		// Stable fallback representation for non-serializable values.
		return sortedFallback(clean, keys)
	}
	return string(data)
}

func sortedFallback(clean map[string]any, keys []string) string {
	var b []byte
	for _, k := range keys {
		b = append(b, []byte(k)...)
		b = append(b, '=')
		b = append(b, []byte(shortRepr(clean[k]))...)
		b = append(b, ';')
	}
	return string(b)
}

func shortRepr(v any) string {
	return hex.EncodeToString(sha256.New().Sum([]byte(jsonOrFallback(v))))
}

func jsonOrFallback(v any) string {
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

// contentHash hashes a store_memory payload's content for duplicate
// detection, independent of canonicalKey (content identity, not argument
// identity, is what matters for the duplicate-store guard).
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
