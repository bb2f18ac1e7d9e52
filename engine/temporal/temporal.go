// Package temporal adapts github.com/strukalex/agentic-assistant-framework-sub000/engine
// to Temporal workflows and activities, so the research workflow state
// machine and approval gate can run as durable Temporal executions without
// importing the Temporal SDK directly. Workflow determinism is preserved by
// routing all non-deterministic work (tool calls, LLM calls) through
// Temporal activities.
package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/strukalex/agentic-assistant-framework-sub000/engine"
)

// Engine is a Temporal-backed engine.Engine implementation. One Engine
// typically owns one Temporal worker per task queue.
type Engine struct {
	client       client.Client
	defaultQueue string

	mu      sync.Mutex
	workers map[string]worker.Worker
}

// Options configures the Temporal Engine.
type Options struct {
	// Client is a connected Temporal client. Required.
	Client client.Client
	// DefaultTaskQueue names the queue used when a workflow/activity
	// registration does not specify one.
	DefaultTaskQueue string
}

// New constructs a Temporal-backed Engine.
func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("temporal: client is required")
	}
	queue := opts.DefaultTaskQueue
	if queue == "" {
		queue = "research-agent"
	}
	return &Engine{client: opts.Client, defaultQueue: queue, workers: make(map[string]worker.Worker)}, nil
}

func (e *Engine) workerFor(queue string) worker.Worker {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[queue]
	if !ok {
		w = worker.New(e.client, queue, worker.Options{})
		e.workers[queue] = w
	}
	return w
}

// RegisterWorkflow registers a workflow definition on its task queue's worker.
func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	queue := def.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	w := e.workerFor(queue)
	w.RegisterWorkflowWithOptions(
		func(ctx workflow.Context, input any) (any, error) {
			wfCtx := newWorkflowContext(ctx)
			return def.Handler(wfCtx, input)
		},
		workflow.RegisterOptions{Name: def.Name},
	)
	return nil
}

// RegisterActivity registers an activity handler on the default task queue's
// worker. Activities run outside the deterministic workflow sandbox, so they
// may perform I/O (tool calls, LLM calls, memory store writes).
func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	w := e.workerFor(e.defaultQueue)
	w.RegisterActivityWithOptions(
		func(ctx context.Context, input any) (any, error) {
			return def.Handler(ctx, input)
		},
		activity.RegisterOptions{Name: def.Name},
	)
	return nil
}

// Run starts the underlying Temporal worker(s) and blocks until ctx is
// canceled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	workers := make([]worker.Worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	errCh := make(chan error, len(workers))
	for _, w := range workers {
		w := w
		go func() { errCh <- w.Run(worker.InterruptCh()) }()
	}
	select {
	case <-ctx.Done():
		for _, w := range workers {
			w.Stop()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// StartWorkflow starts a new Temporal workflow execution.
func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	queue := req.TaskQueue
	if queue == "" {
		queue = e.defaultQueue
	}
	run, err := e.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        req.ID,
		TaskQueue: queue,
	}, req.Workflow, req.Input)
	if err != nil {
		return nil, fmt.Errorf("temporal: start workflow %q: %w", req.Workflow, err)
	}
	return &workflowHandle{client: e.client, run: run}, nil
}

type workflowHandle struct {
	client client.Client
	run    client.WorkflowRun
}

func (h *workflowHandle) ID() string { return h.run.GetID() }

func (h *workflowHandle) Wait(ctx context.Context, out any) error {
	return h.run.Get(ctx, out)
}

func (h *workflowHandle) Signal(ctx context.Context, name string, payload any) error {
	return h.client.SignalWorkflow(ctx, h.run.GetID(), h.run.GetRunID(), name, payload)
}

// workflowContext adapts workflow.Context to engine.WorkflowContext.
type workflowContext struct {
	ctx workflow.Context
}

func newWorkflowContext(ctx workflow.Context) *workflowContext {
	return &workflowContext{ctx: ctx}
}

func (w *workflowContext) Context() context.Context {
	return context.Background()
}

func (w *workflowContext) WorkflowID() string {
	return workflow.GetInfo(w.ctx).WorkflowExecution.ID
}

func (w *workflowContext) Now() time.Time {
	return workflow.Now(w.ctx)
}

func (w *workflowContext) NewTimer(d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	workflow.Go(w.ctx, func(gctx workflow.Context) {
		_ = workflow.NewTimer(gctx, d).Get(gctx, nil)
		close(ch)
	})
	return ch
}

func (w *workflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: req.Options.StartToCloseTimeout,
	}
	if opts.StartToCloseTimeout == 0 {
		opts.StartToCloseTimeout = time.Minute
	}
	if req.Options.MaximumAttempts > 0 {
		opts.RetryPolicy = &sdktemporal.RetryPolicy{
			MaximumAttempts:    req.Options.MaximumAttempts,
			InitialInterval:    req.Options.InitialInterval,
			BackoffCoefficient: req.Options.BackoffCoefficient,
		}
	}
	actx := workflow.WithActivityOptions(w.ctx, opts)
	return workflow.ExecuteActivity(actx, req.Name, req.Input).Get(w.ctx, result)
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
}

type signalChannel struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (c *signalChannel) Receive(_ context.Context, dest any) error {
	c.ch.Receive(c.ctx, dest)
	return nil
}

func (c *signalChannel) ReceiveAsync(dest any) bool {
	return c.ch.ReceiveAsync(dest)
}
