// Package researchflow wires the research workflow state machine (package
// state) and the approval gate (package approval) onto an engine.Engine,
// giving the Plan->Research->Critique->Refine->Finish loop a durable home.
// Deterministic transitions (Plan, Critique, Refine) run directly in the
// workflow function; everything that performs I/O (agent turns, approval
// suspension, persistence) is pushed into activities.
package researchflow

import (
	"context"
	"fmt"
	"time"

	"github.com/strukalex/agentic-assistant-framework-sub000/approval"
	"github.com/strukalex/agentic-assistant-framework-sub000/engine"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
)

const (
	// WorkflowName is the logical workflow name registered with engine.Engine.
	WorkflowName = "research.workflow"

	activityResearchTurn     = "research.research_turn"
	activityFinish           = "research.finish"
	activityProcessApprovals = "research.process_approvals"
	activityCompleteRun      = "research.complete_run"
	activityFailRun          = "research.fail_run"

	researchActivityTimeout = 2 * time.Minute
	finishActivityTimeout   = 30 * time.Second
	approvalActivityTimeout = 20 * time.Minute
)

// Input starts a new workflow execution.
type Input struct {
	RunID         string
	Topic         string
	UserID        string
	MaxIterations int
	MaxRuntime    time.Duration
	Tools         []llm.ToolSpec
}

// Output is the workflow's terminal result.
type Output struct {
	State  state.ResearchState
	Rollup approval.RollupStatus
}

// ResearchTurnInput is the activity input for one Plan/Research iteration's
// non-deterministic work.
type ResearchTurnInput struct {
	RunID      string
	State      state.ResearchState
	Tools      []llm.ToolSpec
	MaxRuntime time.Duration
}

// FinishInput is the activity input for report rendering and persistence.
type FinishInput struct {
	RunID string
	State state.ResearchState
}

// ProcessApprovalsInput is the activity input for running planned actions
// through the approval gate.
type ProcessApprovalsInput struct {
	RunID      string
	Actions    []state.PlannedAction
	Confidence float64
}

// ProcessApprovalsOutput is the activity result from the approval gate.
type ProcessApprovalsOutput struct {
	Results []approval.ActionResult
	Rollup  approval.RollupStatus
}

// CompleteRunInput is the activity input for persisting a terminal run.
type CompleteRunInput struct {
	RunID  string
	State  state.ResearchState
	Rollup approval.RollupStatus
}

// FailRunInput is the activity input for persisting a failed run.
type FailRunInput struct {
	RunID   string
	Message string
}

// Activities groups the non-deterministic operations the workflow delegates
// to. A concrete Activities value is registered with engine.Engine via
// Register; each method becomes one named activity.
type Activities struct {
	// ResearchTurn advances one agent turn and merges results into state.
	ResearchTurn func(ctx context.Context, in ResearchTurnInput) (state.ResearchState, error)
	// Finish renders the report, persists it, and finalizes state.
	Finish func(ctx context.Context, in FinishInput) (state.ResearchState, error)
	// ProcessApprovals runs planned actions through the approval gate.
	ProcessApprovals func(ctx context.Context, in ProcessApprovalsInput) (ProcessApprovalsOutput, error)
	// CompleteRun persists the terminal Completed/Escalated/Failed status.
	CompleteRun func(ctx context.Context, in CompleteRunInput) error
	// FailRun persists a Failed status with a message.
	FailRun func(ctx context.Context, in FailRunInput) error
}

// Register binds the workflow function and every activity in acts to e
// under their well-known names.
func Register(ctx context.Context, e engine.Engine, taskQueue string, acts Activities) error {
	if err := e.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name:      WorkflowName,
		TaskQueue: taskQueue,
		Handler:   Workflow,
	}); err != nil {
		return err
	}
	register := []struct {
		name string
		fn   engine.ActivityFunc
	}{
		{activityResearchTurn, wrapActivity(acts.ResearchTurn)},
		{activityFinish, wrapActivity(acts.Finish)},
		{activityProcessApprovals, wrapActivity(acts.ProcessApprovals)},
		{activityCompleteRun, wrapVoidActivity(acts.CompleteRun)},
		{activityFailRun, wrapVoidActivity(acts.FailRun)},
	}
	for _, r := range register {
		if err := e.RegisterActivity(ctx, engine.ActivityDefinition{Name: r.name, Handler: r.fn}); err != nil {
			return err
		}
	}
	return nil
}

func wrapActivity[In, Out any](fn func(context.Context, In) (Out, error)) engine.ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, ok := input.(In)
		if !ok {
			return nil, fmt.Errorf("researchflow: unexpected activity input type %T", input)
		}
		return fn(ctx, in)
	}
}

func wrapVoidActivity[In any](fn func(context.Context, In) error) engine.ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, ok := input.(In)
		if !ok {
			return nil, fmt.Errorf("researchflow: unexpected activity input type %T", input)
		}
		return nil, fn(ctx, in)
	}
}

// Workflow implements engine.WorkflowFunc for WorkflowName.
func Workflow(ctx engine.WorkflowContext, rawInput any) (any, error) {
	input, ok := rawInput.(Input)
	if !ok {
		return nil, fmt.Errorf("researchflow: unexpected workflow input type %T", rawInput)
	}

	s := state.New(input.Topic, input.UserID, input.MaxIterations)
	maxRuntime := input.MaxRuntime
	if maxRuntime <= 0 {
		maxRuntime = 10 * time.Minute
	}

	for {
		s = state.Plan(s)

		var researched state.ResearchState
		if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
			Name:  activityResearchTurn,
			Input: ResearchTurnInput{RunID: input.RunID, State: s, Tools: input.Tools, MaxRuntime: maxRuntime},
			Options: engine.ActivityOptions{
				StartToCloseTimeout: researchActivityTimeout,
				MaximumAttempts:     1,
			},
		}, &researched); err != nil {
			_ = failRun(ctx, input.RunID, err.Error())
			return nil, err
		}
		s = researched

		if s.TimedOut {
			break
		}

		s = state.Critique(s)
		if state.NextFromCritique(s) == state.StatusFinished {
			break
		}
		s = state.Refine(s, critiqueText(s))
	}

	var approvalsOut ProcessApprovalsOutput
	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name:  activityProcessApprovals,
		Input: ProcessApprovalsInput{RunID: input.RunID, Actions: s.PlannedActions, Confidence: s.QualityScore},
		Options: engine.ActivityOptions{
			StartToCloseTimeout: approvalActivityTimeout,
			MaximumAttempts:     1,
		},
	}, &approvalsOut); err != nil {
		_ = failRun(ctx, input.RunID, err.Error())
		return nil, err
	}

	var finished state.ResearchState
	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name:  activityFinish,
		Input: FinishInput{RunID: input.RunID, State: s},
		Options: engine.ActivityOptions{
			StartToCloseTimeout: finishActivityTimeout,
			MaximumAttempts:     3,
			InitialInterval:     time.Second,
			BackoffCoefficient:  2.0,
		},
	}, &finished); err != nil {
		_ = failRun(ctx, input.RunID, err.Error())
		return nil, err
	}
	s = finished

	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name:  activityCompleteRun,
		Input: CompleteRunInput{RunID: input.RunID, State: s, Rollup: approvalsOut.Rollup},
		Options: engine.ActivityOptions{
			StartToCloseTimeout: finishActivityTimeout,
			MaximumAttempts:     3,
			InitialInterval:     time.Second,
			BackoffCoefficient:  2.0,
		},
	}, nil); err != nil {
		return nil, err
	}

	return Output{State: s, Rollup: approvalsOut.Rollup}, nil
}

// critiqueText renders a deterministic description of why Critique routed
// back to Research, fed to state.Refine as the running plan's next
// instruction. This intentionally stays free of LLM calls: it describes the
// numeric shortfall Critique already computed, not a generated opinion.
func critiqueText(s state.ResearchState) string {
	if len(s.Sources) < 3 {
		return fmt.Sprintf("need more sources: have %d, require at least 3", len(s.Sources))
	}
	return fmt.Sprintf("quality score %.2f below threshold %.2f; gather stronger sources", s.QualityScore, s.QualityThreshold)
}

func failRun(ctx engine.WorkflowContext, runID, message string) error {
	return ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name:  activityFailRun,
		Input: FailRunInput{RunID: runID, Message: message},
		Options: engine.ActivityOptions{
			StartToCloseTimeout: finishActivityTimeout,
			MaximumAttempts:     3,
			InitialInterval:     time.Second,
			BackoffCoefficient:  2.0,
		},
	}, nil)
}
