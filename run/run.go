// Package run implements the Run Registry & Lifecycle (C6): the
// authoritative per-run state for external observers, decoupled from
// in-flight workflow execution.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/strukalex/agentic-assistant-framework-sub000/approval"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
)

// Status is a Run's lifecycle phase.
type Status string

const (
	StatusQueued            Status = "queued"
	StatusRunning           Status = "running"
	StatusSuspendedApproval Status = "suspended_approval"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusEscalated         Status = "escalated"
)

// ErrNoPendingApproval is returned by Approve/Reject when a run has no
// active pending approval.
var ErrNoPendingApproval = errors.New("run: no pending approval")

// ErrNotReady is returned by GetReport when a run has not reached
// StatusCompleted.
var ErrNotReady = errors.New("run: report not ready")

// Record is the full persisted state of one run, mirroring the spec's Run
// entity.
type Record struct {
	RunID            string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Topic            string
	UserID           string
	IterationsUsed   int
	SourcesCount     int
	MemoryDocumentID string
	PendingApproval  *approval.Request
	Markdown         string
	Sources          []state.SourceReference
	Metadata         map[string]any
	ErrorMessage     string
}

// Store persists Records. Implementations must be safe for concurrent use.
type Store interface {
	Upsert(ctx context.Context, r Record) error
	Load(ctx context.Context, runID string) (Record, bool, error)
}

// WorkflowStarter schedules the durable workflow execution for a newly
// created run. Concrete bindings wrap an engine.Engine.StartWorkflow call.
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, runID, topic, userID string) error
}

// Registry implements the Run Registry operations on top of a Store.
type Registry struct {
	store   Store
	starter WorkflowStarter
	newID   func() string
	now     func() time.Time
}

// Options configures a Registry.
type Options struct {
	// NewID generates a run_id. Required for CreateRun.
	NewID func() string
	// Now overrides the clock; nil uses time.Now. Exposed for tests.
	Now func() time.Time
}

// New constructs a Registry.
func New(store Store, starter WorkflowStarter, opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{store: store, starter: starter, newID: opts.NewID, now: opts.Now}
}

// CreateRun allocates a run_id, records status=Queued, and schedules the
// workflow execution.
func (r *Registry) CreateRun(ctx context.Context, topic, userID string) (Record, error) {
	runID := r.newID()
	now := r.now()
	record := Record{
		RunID:     runID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Topic:     topic,
		UserID:    userID,
	}
	if err := r.store.Upsert(ctx, record); err != nil {
		return Record{}, err
	}
	// Running is recorded before the workflow starts, so a workflow that
	// finishes quickly never has its terminal status overwritten.
	record.Status = StatusRunning
	record.UpdatedAt = r.now()
	if err := r.store.Upsert(ctx, record); err != nil {
		return Record{}, err
	}
	if r.starter != nil {
		if err := r.starter.StartWorkflow(ctx, runID, topic, userID); err != nil {
			record.Status = StatusFailed
			record.ErrorMessage = err.Error()
			record.UpdatedAt = r.now()
			_ = r.store.Upsert(ctx, record)
			return record, err
		}
	}
	return record, nil
}

// MarkSuspended transitions a running workflow to SuspendedApproval and
// registers the earliest-pending ApprovalRequest.
func (r *Registry) MarkSuspended(ctx context.Context, runID string, pending approval.Request) error {
	record, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("run: unknown run_id")
	}
	record.Status = StatusSuspendedApproval
	record.PendingApproval = &pending
	record.UpdatedAt = r.now()
	return r.store.Upsert(ctx, record)
}

// Approve clears the run's pending approval record. The run's status is
// left unchanged and the decision is not passed to the workflow; a waiting
// approval gate gets its decision only from its own SuspendForApproval
// binding. Missing pending approval fails with ErrNoPendingApproval.
func (r *Registry) Approve(ctx context.Context, runID, approver string) (Record, error) {
	return r.resolveApproval(ctx, runID, approval.ResumePayload{Decision: "approve", Approver: approver})
}

// Reject clears the run's pending approval record, like Approve: the
// run's status is left unchanged and neither the rejection nor its reason
// is passed to the workflow. Missing pending approval fails with
// ErrNoPendingApproval.
func (r *Registry) Reject(ctx context.Context, runID, rejector, reason string) (Record, error) {
	return r.resolveApproval(ctx, runID, approval.ResumePayload{Decision: "reject", Rejector: rejector, Comment: reason})
}

func (r *Registry) resolveApproval(ctx context.Context, runID string, payload approval.ResumePayload) (Record, error) {
	record, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return Record{}, err
	}
	if !ok || record.PendingApproval == nil {
		return Record{}, ErrNoPendingApproval
	}
	record.PendingApproval = nil
	record.UpdatedAt = r.now()
	if err := r.store.Upsert(ctx, record); err != nil {
		return Record{}, err
	}
	return record, nil
}

// Complete records the run's terminal status with the materialized
// report: Escalated for an escalated rollup, Failed for a rejected one,
// and Completed otherwise.
func (r *Registry) Complete(ctx context.Context, runID string, s state.ResearchState, rollup approval.RollupStatus) error {
	record, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("run: unknown run_id")
	}
	record.UpdatedAt = r.now()
	record.IterationsUsed = s.IterationCount
	record.SourcesCount = len(s.Sources)
	record.MemoryDocumentID = s.MemoryDocumentID
	record.Markdown = s.ReportMarkdown
	record.Sources = s.Sources

	switch rollup {
	case approval.RollupEscalated:
		record.Status = StatusEscalated
	case approval.RollupRejected:
		record.Status = StatusFailed
		record.ErrorMessage = "one or more planned actions were rejected"
	default:
		record.Status = StatusCompleted
	}
	return r.store.Upsert(ctx, record)
}

// Fail records a terminal Failed status with a human-readable error.
func (r *Registry) Fail(ctx context.Context, runID, errMessage string) error {
	record, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("run: unknown run_id")
	}
	record.Status = StatusFailed
	record.ErrorMessage = errMessage
	record.UpdatedAt = r.now()
	return r.store.Upsert(ctx, record)
}

// GetRun returns the full record for runID.
func (r *Registry) GetRun(ctx context.Context, runID string) (Record, error) {
	record, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, errors.New("run: unknown run_id")
	}
	return record, nil
}

// Report is the payload returned by GetReport.
type Report struct {
	Markdown string
	Sources  []state.SourceReference
	Metadata map[string]any
}

// GetReport returns the report iff the run is Completed, else ErrNotReady.
func (r *Registry) GetReport(ctx context.Context, runID string) (Report, error) {
	record, ok, err := r.store.Load(ctx, runID)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, errors.New("run: unknown run_id")
	}
	if record.Status != StatusCompleted {
		return Report{}, ErrNotReady
	}
	return Report{Markdown: record.Markdown, Sources: record.Sources, Metadata: record.Metadata}, nil
}
