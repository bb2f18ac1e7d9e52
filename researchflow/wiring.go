package researchflow

import (
	"context"

	"github.com/strukalex/agentic-assistant-framework-sub000/approval"
	"github.com/strukalex/agentic-assistant-framework-sub000/hooks"
	"github.com/strukalex/agentic-assistant-framework-sub000/memory"
	"github.com/strukalex/agentic-assistant-framework-sub000/run"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
)

// documentStoreAdapter narrows a memory.Store to state.DocumentStore,
// dropping the embedding parameter Finish never supplies.
type documentStoreAdapter struct {
	store memory.Store
}

func (a documentStoreAdapter) StoreDocument(ctx context.Context, content string, metadata map[string]any) (string, error) {
	return a.store.StoreDocument(ctx, content, metadata, nil)
}

// NewActivities builds the Activities bundle Register binds to an
// engine.Engine, closing over the supplied collaborators. bus is optional;
// when set, ResearchTurn and Finish publish one NodeTransitioned event per
// state-machine transition they compute. Plan, Critique, and Refine run
// directly in the deterministic workflow function and never publish:
// Temporal replays that function, so a side effect there would fire once
// per replay rather than once per real transition.
func NewActivities(researcher state.Researcher, memoryStore memory.Store, formatter state.ReportFormatter, gate *approval.Gate, registry *run.Registry, bus hooks.Bus) Activities {
	var docs state.DocumentStore
	if memoryStore != nil {
		docs = documentStoreAdapter{store: memoryStore}
	}

	publishTransition := func(ctx context.Context, runID string, from, to state.Status) {
		if bus == nil || from == to {
			return
		}
		_ = bus.Publish(ctx, hooks.Event{
			Type:  hooks.NodeTransitioned,
			RunID: runID,
			Data:  hooks.NodeTransitionedData{From: string(from), To: string(to)},
		})
	}

	return Activities{
		ResearchTurn: func(ctx context.Context, in ResearchTurnInput) (state.ResearchState, error) {
			out := state.Research(ctx, in.RunID, in.State, researcher, in.Tools, in.MaxRuntime)
			publishTransition(ctx, in.RunID, in.State.Status, out.Status)
			return out, nil
		},
		Finish: func(ctx context.Context, in FinishInput) (state.ResearchState, error) {
			out := state.Finish(ctx, in.State, formatter, docs)
			publishTransition(ctx, in.RunID, in.State.Status, out.Status)
			return out, nil
		},
		ProcessApprovals: func(ctx context.Context, in ProcessApprovalsInput) (ProcessApprovalsOutput, error) {
			results, rollup := gate.Process(ctx, in.RunID, in.Actions, in.Confidence)
			return ProcessApprovalsOutput{Results: results, Rollup: rollup}, nil
		},
		CompleteRun: func(ctx context.Context, in CompleteRunInput) error {
			return registry.Complete(ctx, in.RunID, in.State, in.Rollup)
		},
		FailRun: func(ctx context.Context, in FailRunInput) error {
			return registry.Fail(ctx, in.RunID, in.Message)
		},
	}
}
