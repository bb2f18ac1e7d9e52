package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/strukalex/agentic-assistant-framework-sub000/hooks"
	"github.com/strukalex/agentic-assistant-framework-sub000/telemetry"
	"github.com/strukalex/agentic-assistant-framework-sub000/toolerrors"
)

// MaxToolCallsPerRun is the absolute cap on tool invocations within one
// agent turn, regardless of deadline.
const MaxToolCallsPerRun = 50

// DefaultMaxRepeats bounds consecutive identical calls within one turn.
const DefaultMaxRepeats = 3

// DefaultToolTimeout is applied to a tool invocation when the caller does
// not configure one. Must be kept within [1s, 120s] per config.Validate.
const DefaultToolTimeout = 30 * time.Second

// defaultTelemetrySubstrings flags store_memory payloads that look like
// telemetry rather than a genuine answer. Configurable per the spec's note
// that this heuristic's exact rule set should not be hardcoded.
var defaultTelemetrySubstrings = []string{
	"no results found",
	"no_results",
	"initial query",
	"status:",
	"query:",
}

// Options configures an Invoker.
type Options struct {
	// MaxRepeats bounds consecutive identical calls. Zero uses DefaultMaxRepeats.
	MaxRepeats int
	// ToolTimeout bounds a single tool invocation's wall-clock time. Zero uses
	// DefaultToolTimeout.
	ToolTimeout time.Duration
	// TelemetrySubstrings overrides the case-insensitive substrings used to
	// reject telemetry-like store_memory payloads. Nil uses the default list.
	TelemetrySubstrings []string
	// Tracer emits a span per tool invocation. Nil uses telemetry.NoopTracer.
	Tracer telemetry.Tracer
	// Bus, if set, receives one ToolCallScheduled/ToolResultReceived pair
	// around every dispatch that actually reaches the executor (calls
	// short-circuited by a guard or cache hit never reach the executor and
	// are not published).
	Bus hooks.Bus
}

// Invoker mediates every tool call an agent turn makes. One Invoker call
// corresponds to exactly one (tool_name, parameters) dispatch; callers
// create a new RunContext per agent turn and reuse it across all calls
// within that turn.
type Invoker struct {
	server ToolServer
	opts   Options

	schemaMu sync.RWMutex
	schemas  map[string]*jsonschema.Schema
}

// New constructs an Invoker dispatching through server.
func New(server ToolServer, opts Options) *Invoker {
	if opts.MaxRepeats <= 0 {
		opts.MaxRepeats = DefaultMaxRepeats
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.TelemetrySubstrings == nil {
		opts.TelemetrySubstrings = defaultTelemetrySubstrings
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NoopTracer{}
	}
	return &Invoker{server: server, opts: opts, schemas: make(map[string]*jsonschema.Schema)}
}

// RegisterSchema compiles and registers a JSON Schema document used to
// validate a tool's arguments before dispatch. Tools with no registered
// schema are dispatched without argument validation.
func (inv *Invoker) RegisterSchema(toolName string, schemaDoc json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(toolName+".json", bytes.NewReader(schemaDoc)); err != nil {
		return fmt.Errorf("tooling: add schema resource for %q: %w", toolName, err)
	}
	schema, err := compiler.Compile(toolName + ".json")
	if err != nil {
		return fmt.Errorf("tooling: compile schema for %q: %w", toolName, err)
	}
	inv.schemaMu.Lock()
	defer inv.schemaMu.Unlock()
	inv.schemas[toolName] = schema
	return nil
}

// validateSchema validates parameters against toolName's registered schema,
// if one was registered via RegisterSchema. Tools without a registered
// schema pass validation unconditionally.
func (inv *Invoker) validateSchema(_ context.Context, toolName string, parameters map[string]any) error {
	inv.schemaMu.RLock()
	schema, ok := inv.schemas[toolName]
	inv.schemaMu.RUnlock()
	if !ok {
		return nil
	}
	// jsonschema validates against json.Number-decoded values; round-trip
	// through JSON so numeric types match what a wire-decoded document
	// would produce.
	data, err := json.Marshal(parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var instance any
	if err := decoder.Decode(&instance); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return schema.Validate(instance)
}

// CallOptions configures a single Call.
type CallOptions struct {
	// Cacheable opts the call into the per-run result cache. Only
	// deterministic reads (search_memory, read_file) should set this.
	Cacheable bool
	// RunID correlates published ToolCallScheduled/ToolResultReceived events
	// with the run this Call belongs to. Empty is valid; the events are
	// simply published with an empty RunID.
	RunID string
}

// Call mediates one tool dispatch per the nine-step algorithm: deadline
// gate, budget gate, loop guard, cache hit, side-effect guards, execute
// with timeout, post-deadline gate, record, cache write.
func (inv *Invoker) Call(ctx context.Context, rc *RunContext, toolName string, parameters map[string]any, opts CallOptions) (ToolResult, error) {
	ctx, span := inv.opts.Tracer.Start(ctx, "mcp.tool_call."+toolName,
		telemetry.Attr("tool_name", toolName), telemetry.Attr("component", "mcp"))
	defer span.End()

	rc.mu.Lock()

	// Step 1: deadline gate.
	if rc.hasDeadline && time.Now().After(rc.deadline) {
		rc.mu.Unlock()
		err := toolerrors.New(toolerrors.KindRuntimeBudgetExceeded, "run deadline exceeded before tool dispatch")
		span.RecordError(err)
		return nil, err
	}

	// Step 2: budget gate.
	if len(rc.log) >= MaxToolCallsPerRun {
		rc.mu.Unlock()
		err := toolerrors.New(toolerrors.KindBudgetExceeded, fmt.Sprintf("tool call budget of %d exceeded", MaxToolCallsPerRun))
		inv.appendFailureLocked(rc, toolName, parameters, err)
		span.RecordError(err)
		return nil, err
	}

	key := canonicalKey(toolName, parameters)

	// Step 3: loop guard. Walk the log backward counting consecutive calls
	// with the same canonical key; if this call would extend the streak to
	// maxRepeats, reject it.
	streak := 1
	for i := len(rc.log) - 1; i >= 0; i-- {
		if canonicalKey(rc.log[i].ToolName, rc.log[i].Parameters) != key {
			break
		}
		streak++
	}
	if streak >= inv.opts.MaxRepeats {
		recent := recentCalls(rc.log, 5)
		rc.mu.Unlock()
		err := toolerrors.Errorf(toolerrors.KindLoopDetected,
			"tool %q repeated %d times consecutively; recent calls: %v", toolName, streak, recent)
		inv.appendFailureLockless(rc, toolName, parameters, err)
		span.RecordError(err)
		return nil, err
	}

	// Step 4: cache hit path.
	if opts.Cacheable {
		if cached, ok := rc.resultCache[key]; ok {
			recorded := cloneParams(parameters)
			recorded["_cached"] = true
			rc.log = append(rc.log, ToolCallRecord{
				ToolName: toolName, Parameters: recorded, Result: cached,
				DurationMS: 0, Status: StatusSuccess,
			})
			rc.mu.Unlock()
			span.AddEvent("cache_hit")
			return cached.(ToolResult), nil
		}
	}

	// Step 5: side-effect guards (tool-name scoped).
	if sentinel, handled := inv.applySideEffectGuardsLocked(rc, toolName, parameters); handled {
		rc.mu.Unlock()
		return sentinel, nil
	}
	rc.mu.Unlock()

	// Schema validation (C12), outside the locked section: argument shape
	// failures are a ToolFailure, not a loop/budget event, and never reach
	// the executor.
	if err := inv.validateSchema(ctx, toolName, parameters); err != nil {
		toolErr := toolerrors.NewWithCause(toolerrors.KindToolFailure, "tool arguments failed schema validation", err)
		rc.mu.Lock()
		inv.appendFailureLocked(rc, toolName, parameters, toolErr)
		rc.mu.Unlock()
		span.RecordError(toolErr)
		return nil, toolErr
	}

	// Step 6: execute with timeout.
	callCtx, cancel := context.WithTimeout(ctx, inv.opts.ToolTimeout)
	defer cancel()

	payload, err := marshalParameters(parameters)
	if err != nil {
		toolErr := toolerrors.NewWithCause(toolerrors.KindToolFailure, "failed to marshal tool parameters", err)
		rc.mu.Lock()
		inv.appendFailureLocked(rc, toolName, parameters, toolErr)
		rc.mu.Unlock()
		return nil, toolErr
	}

	inv.publishScheduled(ctx, opts.RunID, toolName, parameters)

	start := time.Now()
	result, callErr := inv.server.CallTool(callCtx, toolName, payload)
	duration := time.Since(start)

	status := StatusSuccess
	var recordedResult any = result
	var returnErr error
	switch {
	case callErr != nil && callCtx.Err() == context.DeadlineExceeded:
		status = StatusTimeout
		recordedResult = callErr.Error()
		returnErr = toolerrors.NewWithCause(toolerrors.KindToolTimeout, "tool invocation timed out", callErr)
	case callErr != nil:
		status = StatusFailed
		recordedResult = callErr.Error()
		returnErr = toolerrors.NewWithCause(toolerrors.KindToolFailure, callErr.Error(), callErr)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	// Step 7: post-deadline gate.
	if rc.hasDeadline && time.Now().After(rc.deadline) {
		err := toolerrors.New(toolerrors.KindRuntimeBudgetExceeded, "run deadline exceeded while tool was executing")
		rc.log = append(rc.log, ToolCallRecord{
			ToolName: toolName, Parameters: cloneParams(parameters),
			Result: err.Error(), DurationMS: duration.Milliseconds(), Status: StatusFailed,
		})
		span.RecordError(err)
		return nil, err
	}

	// Step 8: record.
	rc.log = append(rc.log, ToolCallRecord{
		ToolName:   toolName,
		Parameters: cloneParams(parameters),
		Result:     recordedResult,
		DurationMS: duration.Milliseconds(),
		Status:     status,
	})
	span.AddEvent("execution_duration_ms", telemetry.Attr("value", duration.Milliseconds()))

	if toolName == "store_memory" && status == StatusSuccess {
		rc.answerCommitted = true
	}

	inv.publishResult(ctx, opts.RunID, toolName, status, recordedResult)

	if returnErr != nil {
		span.RecordError(returnErr)
		return nil, returnErr
	}

	// Step 9: cache write.
	if opts.Cacheable {
		rc.resultCache[key] = result
	}
	return result, nil
}

func (inv *Invoker) publishScheduled(ctx context.Context, runID, toolName string, parameters map[string]any) {
	if inv.opts.Bus == nil {
		return
	}
	_ = inv.opts.Bus.Publish(ctx, hooks.Event{
		Type:  hooks.ToolCallScheduled,
		RunID: runID,
		Data:  hooks.ToolCallScheduledData{ToolName: toolName, Parameters: parameters},
	})
}

func (inv *Invoker) publishResult(ctx context.Context, runID, toolName string, status Status, recordedResult any) {
	if inv.opts.Bus == nil {
		return
	}
	errStr := ""
	if status != StatusSuccess {
		if s, ok := recordedResult.(string); ok {
			errStr = s
		}
	}
	_ = inv.opts.Bus.Publish(ctx, hooks.Event{
		Type:  hooks.ToolResultReceived,
		RunID: runID,
		Data:  hooks.ToolResultReceivedData{ToolName: toolName, Status: string(status), Error: errStr},
	})
}

// applySideEffectGuardsLocked implements the per-tool pre-execution guards.
// Caller must hold rc.mu. Returns (sentinel, true) when the guard
// short-circuited the call without invoking the executor.
func (inv *Invoker) applySideEffectGuardsLocked(rc *RunContext, toolName string, parameters map[string]any) (ToolResult, bool) {
	switch toolName {
	case "search_memory":
		if rc.memorySearched {
			sentinel, err := NewJSONResult(map[string]any{
				"content":  "ERROR: search_memory can only be called ONCE per query; reuse the prior result instead of calling it again.",
				"metadata": map[string]any{"blocked": true, "reason": "single_attempt_rule"},
			})
			if err != nil {
				sentinel = NewTextResult("ERROR: search_memory can only be called ONCE per query.")
			}
			rc.log = append(rc.log, ToolCallRecord{
				ToolName: toolName, Parameters: cloneParams(parameters),
				Result: sentinel, DurationMS: 0, Status: StatusSuccess,
			})
			return sentinel, true
		}
		rc.memorySearched = true
		return nil, false

	case "web_search", "search":
		query := normalizedQuery(parameters)
		if rc.answerCommitted {
			sentinel := NewTextResult("SKIPPED: an answer has already been stored for this run; no further web search is permitted.")
			rc.log = append(rc.log, ToolCallRecord{
				ToolName: toolName, Parameters: cloneParams(parameters),
				Result: sentinel, DurationMS: 0, Status: StatusSuccess,
			})
			return sentinel, true
		}
		if _, seen := rc.webSearchSeen[query]; seen {
			sentinel := NewTextResult(fmt.Sprintf("SKIPPED: query %q was already searched this turn.", query))
			rc.log = append(rc.log, ToolCallRecord{
				ToolName: toolName, Parameters: cloneParams(parameters),
				Result: sentinel, DurationMS: 0, Status: StatusSuccess,
			})
			return sentinel, true
		}
		rc.webSearchSeen[query] = struct{}{}
		return nil, false

	case "store_memory":
		content, _ := parameters["content"].(string)
		if inv.looksLikeTelemetry(content, parameters) {
			sentinel := NewTextResult("SKIPPED: payload looks like telemetry, not a stored answer.")
			rc.log = append(rc.log, ToolCallRecord{
				ToolName: toolName, Parameters: cloneParams(parameters),
				Result: sentinel, DurationMS: 0, Status: StatusFailed,
			})
			return sentinel, true
		}
		hash := contentHash(content)
		if _, dup := rc.storedHashes[hash]; dup {
			sentinel := NewTextResult("SKIPPED: Duplicate content already stored this turn.")
			rc.log = append(rc.log, ToolCallRecord{
				ToolName: toolName, Parameters: cloneParams(parameters),
				Result: sentinel, DurationMS: 0, Status: StatusFailed,
			})
			return sentinel, true
		}
		rc.storedHashes[hash] = struct{}{}
		// answerCommitted flips in Call's step 8, after the store actually
		// succeeds, so a failing store never prematurely blocks web_search.
		return nil, false
	}
	return nil, false
}

func (inv *Invoker) looksLikeTelemetry(content string, parameters map[string]any) bool {
	lower := strings.ToLower(content)
	for _, sub := range inv.opts.TelemetrySubstrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	if meta, ok := parameters["metadata"].(map[string]any); ok {
		if _, has := meta["status"]; has {
			return true
		}
		if _, has := meta["query"]; has {
			return true
		}
	}
	return false
}

func normalizedQuery(parameters map[string]any) string {
	q, _ := parameters["query"].(string)
	return strings.ToLower(strings.TrimSpace(q))
}

func recentCalls(log []ToolCallRecord, n int) []string {
	start := len(log) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(log)-start)
	for _, r := range log[start:] {
		out = append(out, r.ToolName)
	}
	return out
}

func (inv *Invoker) appendFailureLocked(rc *RunContext, toolName string, parameters map[string]any, err error) {
	rc.log = append(rc.log, ToolCallRecord{
		ToolName: toolName, Parameters: cloneParams(parameters),
		Result: err.Error(), DurationMS: 0, Status: StatusFailed,
	})
}

func (inv *Invoker) appendFailureLockless(rc *RunContext, toolName string, parameters map[string]any, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	inv.appendFailureLocked(rc, toolName, parameters, err)
}

// MarkAnswerCommitted flips the answer_committed flag directly. Call already
// does this itself on a successful store_memory dispatch; this method exists
// for callers (tests, or a future non-tool persistence path) that need to
// mark an answer committed without going through a store_memory call.
func (rc *RunContext) MarkAnswerCommitted() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.answerCommitted = true
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func marshalParameters(parameters map[string]any) ([]byte, error) {
	return json.Marshal(parameters)
}
