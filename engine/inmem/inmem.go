// Package inmem provides a deterministic, single-process engine.Engine
// implementation used by tests and by nested agent-as-tool execution. It
// runs activities as direct function calls (no separate worker pool) and
// backs signal channels with buffered Go channels, so the full workflow
// loop (state machine + approval gate) can be exercised without a Temporal
// cluster.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strukalex/agentic-assistant-framework-sub000/engine"
)

// Engine is an in-process engine.Engine implementation.
type Engine struct {
	mu         sync.RWMutex
	workflows  map[string]engine.WorkflowDefinition
	activities map[string]engine.ActivityFunc
}

// New constructs an empty in-process Engine.
func New() *Engine {
	return &Engine{
		workflows:  make(map[string]engine.WorkflowDefinition),
		activities: make(map[string]engine.ActivityFunc),
	}
}

func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[def.Name] = def
	return nil
}

func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activities[def.Name] = def.Handler
	return nil
}

func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	e.mu.RLock()
	def, ok := e.workflows[req.Workflow]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inmem: workflow %q is not registered", req.Workflow)
	}

	wfCtx := newWorkflowContext(ctx, req.ID, e)
	h := &handle{id: req.ID, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		out, err := def.Handler(wfCtx, req.Input)
		h.result, h.err = out, err
	}()

	return h, nil
}

type handle struct {
	id     string
	done   chan struct{}
	result any
	err    error
}

func (h *handle) ID() string { return h.id }

func (h *handle) Wait(ctx context.Context, out any) error {
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if h.err != nil {
		return h.err
	}
	if out == nil {
		return nil
	}
	return assign(out, h.result)
}

func (h *handle) Signal(_ context.Context, _ string, _ any) error {
	return fmt.Errorf("inmem: signaling a running in-process workflow is not supported; use the channel returned by SignalChannel directly in tests")
}

// workflowContext implements engine.WorkflowContext over the in-process
// Engine. Activities execute synchronously as direct function calls.
type workflowContext struct {
	ctx      context.Context
	id       string
	engine   *Engine
	chMu     sync.Mutex
	channels map[string]*signalChannel
}

func newWorkflowContext(ctx context.Context, id string, e *Engine) *workflowContext {
	return &workflowContext{ctx: ctx, id: id, engine: e, channels: make(map[string]*signalChannel)}
}

func (w *workflowContext) Context() context.Context { return w.ctx }
func (w *workflowContext) WorkflowID() string        { return w.id }
func (w *workflowContext) Now() time.Time             { return time.Now() }

func (w *workflowContext) NewTimer(d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	time.AfterFunc(d, func() { close(ch) })
	return ch
}

func (w *workflowContext) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	w.engine.mu.RLock()
	fn, ok := w.engine.activities[req.Name]
	w.engine.mu.RUnlock()
	if !ok {
		return fmt.Errorf("inmem: activity %q is not registered", req.Name)
	}
	actCtx := engine.WithWorkflowContext(ctx, w)
	out, err := fn(actCtx, req.Input)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return assign(result, out)
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	w.chMu.Lock()
	defer w.chMu.Unlock()
	ch, ok := w.channels[name]
	if !ok {
		ch = &signalChannel{ch: make(chan any, 16)}
		w.channels[name] = ch
	}
	return ch
}

// Deliver pushes a signal payload onto the named channel of a running
// in-process workflow. Exposed for tests that need to simulate external
// pause/resume/approval signals.
func (w *workflowContext) Deliver(name string, payload any) {
	ch := w.SignalChannel(name).(*signalChannel)
	ch.ch <- payload
}

type signalChannel struct {
	ch chan any
}

func (s *signalChannel) Receive(ctx context.Context, out any) error {
	select {
	case v := <-s.ch:
		return assign(out, v)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *signalChannel) ReceiveAsync(out any) bool {
	select {
	case v := <-s.ch:
		_ = assign(out, v)
		return true
	default:
		return false
	}
}

// assign copies src into the value pointed to by dst when the dynamic types
// match, or returns an error otherwise. The in-process engine passes Go
// values directly (no wire serialization), so this is a type assertion
// rather than a decode.
func assign(dst, src any) error {
	if src == nil {
		return nil
	}
	switch d := dst.(type) {
	case *any:
		*d = src
		return nil
	}
	// Otherwise fall back to reflection: dst must be a non-nil pointer to a
	// type src (or the value src points to) is assignable to.
	return assignReflect(dst, src)
}
