// Package approval implements the Approval Gate (C5): it partitions
// planned actions by risk, executes the ones that don't require a human
// decision, suspends for the ones that do, and interprets the resume
// payload into a per-action result and an overall roll-up status.
package approval

import (
	"context"
	"time"

	"github.com/strukalex/agentic-assistant-framework-sub000/hooks"
	"github.com/strukalex/agentic-assistant-framework-sub000/risk"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
)

// DefaultTimeout is the approval suspension window: the 5-minute contract
// with +-10s tolerance from the data model invariant.
const DefaultTimeout = 300 * time.Second

// RequestStatus is the terminal disposition of one ApprovalRequest.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusEscalated RequestStatus = "escalated"
)

// Request mirrors the spec's ApprovalRequest entity. TimeoutAt must sit
// within [290s, 310s] of RequestedAt.
type Request struct {
	ActionType        string
	ActionDescription string
	RequesterID       string
	RequestedAt       time.Time
	TimeoutAt         time.Time
	Status            RequestStatus
	DecisionMetadata  map[string]any
}

// NewRequest builds a Request with TimeoutAt = requestedAt + timeout,
// clamping timeout into [290s, 310s] so the invariant holds regardless of
// caller-supplied configuration.
func NewRequest(actionType, description, requesterID string, requestedAt time.Time, timeout time.Duration) Request {
	if timeout < 290*time.Second {
		timeout = 290 * time.Second
	}
	if timeout > 310*time.Second {
		timeout = 310 * time.Second
	}
	return Request{
		ActionType:        actionType,
		ActionDescription: description,
		RequesterID:       requesterID,
		RequestedAt:       requestedAt,
		TimeoutAt:         requestedAt.Add(timeout),
		Status:            StatusPending,
	}
}

// ResumePayload is the decision returned by the external SuspendForApproval
// capability.
type ResumePayload struct {
	Decision string
	Approver string
	Rejector string
	Comment  string
	Error    string
}

// ActionExecutor performs an approved or auto-approved action and returns
// its result.
type ActionExecutor interface {
	Execute(ctx context.Context, action state.PlannedAction) (map[string]any, error)
}

// SuspendForApproval asks an external party to approve or reject request,
// blocking until a decision arrives or the timeout elapses. Implementations
// must honor the 5-minute +-10s timeout or return a payload with a non-empty
// Error field.
type SuspendForApproval interface {
	Suspend(ctx context.Context, request Request) (ResumePayload, error)
}

// ActionResult records the outcome of processing one PlannedAction.
type ActionResult struct {
	Action         state.PlannedAction
	Executed       bool
	ApprovalStatus string
	ExecutionResult map[string]any
	Error          string
}

// RollupStatus is the overall approval outcome across every processed
// action.
type RollupStatus string

const (
	RollupCompleted RollupStatus = "completed"
	RollupRejected  RollupStatus = "rejected"
	RollupEscalated RollupStatus = "escalated"
	RollupPartial   RollupStatus = "partial"
)

// Gate processes planned actions against the risk classifier, the
// ActionExecutor, and the SuspendForApproval capability.
type Gate struct {
	executor  ActionExecutor
	suspender SuspendForApproval
	timeout   time.Duration
	now       func() time.Time
	onSuspend func(ctx context.Context, runID string, request Request) error
	bus       hooks.Bus
}

// Options configures a Gate.
type Options struct {
	Timeout time.Duration
	// Now overrides the clock; nil uses time.Now. Exposed for tests.
	Now func() time.Time
	// OnSuspend, if set, is called with the run_id passed to Process and the
	// Request about to be handed to SuspendForApproval, before Suspend is
	// invoked. It exists so a caller can flip external run state (e.g. to
	// SuspendedApproval) before the blocking wait begins; its error is
	// ignored; it never blocks or fails the approval itself.
	OnSuspend func(ctx context.Context, runID string, request Request) error
	// Bus, if set, receives one ApprovalDecided event per action that went
	// through SuspendForApproval (approved, rejected, or escalated).
	// Not-required actions never reached a human decision, so they are not
	// published.
	Bus hooks.Bus
}

// New constructs a Gate.
func New(executor ActionExecutor, suspender SuspendForApproval, opts Options) *Gate {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{executor: executor, suspender: suspender, timeout: opts.Timeout, now: opts.Now, onSuspend: opts.OnSuspend, bus: opts.Bus}
}

// Process partitions actions via the risk classifier, in order, and
// returns one ActionResult per action plus the overall roll-up status.
// runID correlates any SuspendForApproval wait with the run it belongs to,
// via OnSuspend.
func (g *Gate) Process(ctx context.Context, runID string, actions []state.PlannedAction, confidence float64) ([]ActionResult, RollupStatus) {
	results := make([]ActionResult, 0, len(actions))
	for _, action := range actions {
		level := risk.Classify(action.ActionType, action.Parameters)
		if !risk.RequiresApproval(level, confidence) {
			results = append(results, g.executeNotRequired(ctx, action))
			continue
		}
		results = append(results, g.executeWithApproval(ctx, runID, action))
	}
	return results, rollup(results)
}

func (g *Gate) executeNotRequired(ctx context.Context, action state.PlannedAction) ActionResult {
	result, err := g.executor.Execute(ctx, action)
	res := ActionResult{Action: action, ApprovalStatus: "not_required"}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Executed = true
	res.ExecutionResult = result
	return res
}

func (g *Gate) executeWithApproval(ctx context.Context, runID string, action state.PlannedAction) ActionResult {
	request := NewRequest(action.ActionType, action.ActionDescription, "", g.now(), g.timeout)
	if g.onSuspend != nil {
		_ = g.onSuspend(ctx, runID, request)
	}
	payload, err := g.suspender.Suspend(ctx, request)
	if err != nil {
		res := ActionResult{Action: action, ApprovalStatus: string(StatusEscalated), Error: err.Error()}
		g.publishDecision(ctx, runID, action, res.ApprovalStatus)
		return res
	}

	switch payload.Decision {
	case "approve":
		result, execErr := g.executor.Execute(ctx, action)
		res := ActionResult{Action: action, ApprovalStatus: string(StatusApproved)}
		if execErr != nil {
			res.Error = execErr.Error()
			g.publishDecision(ctx, runID, action, res.ApprovalStatus)
			return res
		}
		res.Executed = true
		res.ExecutionResult = result
		g.publishDecision(ctx, runID, action, res.ApprovalStatus)
		return res
	case "reject":
		res := ActionResult{Action: action, ApprovalStatus: string(StatusRejected)}
		g.publishDecision(ctx, runID, action, res.ApprovalStatus)
		return res
	default:
		// Empty decision, unknown decision string, or payload.Error set
		// (including a timeout signaled by the suspender) all escalate.
		res := ActionResult{Action: action, ApprovalStatus: string(StatusEscalated)}
		if payload.Error != "" {
			res.Error = payload.Error
		}
		g.publishDecision(ctx, runID, action, res.ApprovalStatus)
		return res
	}
}

func (g *Gate) publishDecision(ctx context.Context, runID string, action state.PlannedAction, decision string) {
	if g.bus == nil {
		return
	}
	_ = g.bus.Publish(ctx, hooks.Event{
		Type:  hooks.ApprovalDecided,
		RunID: runID,
		Data:  hooks.ApprovalDecidedData{ActionType: action.ActionType, Decision: decision},
	})
}

func rollup(results []ActionResult) RollupStatus {
	hasEscalated, hasRejected, allApprovedOrNotRequired := false, false, true
	for _, r := range results {
		switch r.ApprovalStatus {
		case string(StatusEscalated):
			hasEscalated = true
			allApprovedOrNotRequired = false
		case string(StatusRejected):
			hasRejected = true
			allApprovedOrNotRequired = false
		case string(StatusApproved), "not_required":
			// counts toward allApprovedOrNotRequired
		default:
			allApprovedOrNotRequired = false
		}
	}
	switch {
	case hasEscalated:
		return RollupEscalated
	case hasRejected:
		return RollupRejected
	case allApprovedOrNotRequired:
		return RollupCompleted
	default:
		return RollupPartial
	}
}
