// Package engine defines the workflow engine abstractions that decouple the
// research workflow state machine (package state) and the approval gate
// (package approval) from any specific durable execution backend. Generated
// or hand-wired agent registration targets this interface; a Temporal-backed
// adapter lives in engine/temporal and a deterministic in-process adapter
// for tests lives in engine/inmem.
package engine

import (
	"context"
	"time"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (Temporal, in-memory, or custom) can be swapped without touching the
	// workflow state machine.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the engine.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error
		// RegisterActivity registers an activity handler with the engine.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error
		// StartWorkflow starts a new workflow execution and returns a handle.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the entry point invoked by the engine when a workflow
	// executes. It must be deterministic: given the same inputs and the same
	// sequence of activity results, it must produce the same sequence of
	// engine operations (required for durable replay under Temporal).
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// ActivityDefinition binds an activity handler to a logical name.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
	}

	// ActivityFunc executes a single unit of non-deterministic work (tool
	// calls, LLM calls) outside the workflow's deterministic execution
	// environment.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions describes retry/timeout behavior for an activity
	// invocation.
	ActivityOptions struct {
		StartToCloseTimeout time.Duration
		MaximumAttempts     int32
		InitialInterval     time.Duration
		BackoffCoefficient  float64
	}

	// ActivityRequest schedules a single activity execution from within a
	// workflow.
	ActivityRequest struct {
		Name    string
		Input   any
		Options ActivityOptions
	}

	// WorkflowStartRequest starts a new workflow execution.
	WorkflowStartRequest struct {
		ID        string
		Workflow  string
		TaskQueue string
		Input     any
	}

	// WorkflowHandle represents a running or completed workflow execution.
	WorkflowHandle interface {
		// ID returns the workflow's unique identifier.
		ID() string
		// Wait blocks until the workflow completes and decodes its result into out.
		Wait(ctx context.Context, out any) error
		// Signal delivers a named signal with the given payload.
		Signal(ctx context.Context, name string, payload any) error
	}

	// WorkflowContext exposes engine operations to workflow handlers within
	// the deterministic execution environment of a workflow.
	//
	// Implementations must ensure deterministic replay: operations that
	// interact with the engine (ExecuteActivity, SignalChannel) must produce
	// deterministic results when replayed. Direct I/O, random number
	// generation, or system clock access within workflow code violates
	// determinism.
	WorkflowContext interface {
		// Context returns the Go context for the workflow.
		Context() context.Context
		// WorkflowID returns the unique identifier for this execution.
		WorkflowID() string
		// ExecuteActivity schedules an activity and blocks for its result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
		// SignalChannel returns a channel for the given signal name.
		SignalChannel(name string) SignalChannel
		// Now returns the workflow's deterministic notion of the current time.
		Now() time.Time
		// NewTimer returns a channel that fires after d, honoring deterministic
		// replay.
		NewTimer(d time.Duration) <-chan struct{}
	}

	// SignalChannel exposes the operations workflow code needs to react to
	// external signals (pause/resume, approval decisions).
	SignalChannel interface {
		// Receive blocks until a signal arrives or ctx is canceled, decoding
		// the payload into out.
		Receive(ctx context.Context, out any) error
		// ReceiveAsync attempts to dequeue a signal without blocking.
		ReceiveAsync(out any) bool
	}
)

type wfCtxKey struct{}

// WithWorkflowContext returns a child context carrying wf, enabling code
// invoked from activities to retrieve the originating workflow context.
func WithWorkflowContext(ctx context.Context, wf WorkflowContext) context.Context {
	return context.WithValue(ctx, wfCtxKey{}, wf)
}

// WorkflowContextFromContext extracts a WorkflowContext from ctx, if present.
func WorkflowContextFromContext(ctx context.Context) (WorkflowContext, bool) {
	wf, ok := ctx.Value(wfCtxKey{}).(WorkflowContext)
	return wf, ok
}
