package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/agentengine"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	"github.com/strukalex/agentic-assistant-framework-sub000/state"
	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
)

func TestNewClampsMaxIterations(t *testing.T) {
	s := state.New("topic", "user-1", 10)
	require.Equal(t, state.MaxAllowedIterations, s.MaxIterations)
}

func TestNewDefaultsMaxIterationsWhenZero(t *testing.T) {
	s := state.New("topic", "user-1", 0)
	require.Equal(t, state.MaxAllowedIterations, s.MaxIterations)
}

func TestPlanIsIdempotent(t *testing.T) {
	s := state.New("daily trends", "user-1", 3)
	s.Plan = "an existing plan"

	out := state.Plan(s)
	require.Equal(t, "an existing plan", out.Plan)
	require.Equal(t, state.StatusResearching, out.Status)
}

func TestPlanSeedsWhenEmpty(t *testing.T) {
	s := state.New("daily trends", "user-1", 3)
	out := state.Plan(s)
	require.NotEmpty(t, out.Plan)
}

func TestCritiqueExactlyThreeSourcesAtThreshold(t *testing.T) {
	s := state.New("t", "u", 3)
	s.Sources = []state.SourceReference{{}, {}, {}}
	s.QualityScore = s.QualityThreshold
	s.IterationCount = 1

	out := state.Critique(s)
	require.Equal(t, state.StatusFinished, out.Status)
}

func TestCritiqueTwoSourcesHighQualityStillRefines(t *testing.T) {
	s := state.New("t", "u", 3)
	s.Sources = []state.SourceReference{{}, {}}
	s.QualityScore = 1.0
	s.IterationCount = 1

	out := state.Critique(s)
	require.Equal(t, state.StatusRefining, out.Status)
}

func TestCritiqueStopsAtMaxIterationsEvenIfInsufficient(t *testing.T) {
	s := state.New("t", "u", 2)
	s.Sources = nil
	s.QualityScore = 0
	s.IterationCount = 2

	out := state.Critique(s)
	require.Equal(t, state.StatusFinished, out.Status)
}

func TestNextFromCritiqueMirrorsConditionalEdge(t *testing.T) {
	s := state.New("t", "u", 5)
	s.IterationCount = 5
	require.Equal(t, state.StatusFinished, state.NextFromCritique(s))

	s2 := state.New("t", "u", 5)
	s2.IterationCount = 1
	s2.Sources = []state.SourceReference{{}}
	require.Equal(t, state.StatusRefining, state.NextFromCritique(s2))
}

func TestRefineAppendsCritiqueAndRoutesToResearching(t *testing.T) {
	s := state.New("t", "u", 3)
	s.Plan = "initial plan"

	out := state.Refine(s, "needs more sources")
	require.Contains(t, out.Plan, "initial plan")
	require.Contains(t, out.Plan, "needs more sources")
	require.Equal(t, state.StatusResearching, out.Status)
}

type fakeResearcher struct {
	result agentengine.Result
	err    error
}

func (f fakeResearcher) RunAgent(context.Context, string, string, []llm.ToolSpec, time.Duration) (agentengine.Result, error) {
	return f.result, f.err
}

func TestResearchMergesSourcesAndAdvancesIteration(t *testing.T) {
	s := state.New("t", "u", 5)

	records := []tooling.ToolCallRecord{
		{
			ToolName: "web_search",
			Result:   tooling.NewTextResult(`[{"title":"A","url":"https://a","snippet":"snip a"},{"bad":"item"}]`),
			Status:   tooling.StatusSuccess,
		},
	}
	researcher := fakeResearcher{result: agentengine.Result{Response: &agentengine.AgentResponse{
		Answer: "some answer", Reasoning: "because", ToolCalls: records, Confidence: 0.9,
	}}}

	out := state.Research(context.Background(), "run-1", s, researcher, nil, time.Minute)
	require.Len(t, out.Sources, 1)
	require.Equal(t, "A", out.Sources[0].Title)
	require.Equal(t, 1, out.IterationCount)
	require.Equal(t, state.StatusCritiquing, out.Status)
	require.False(t, out.TimedOut)
}

func TestResearchDegradedResponseJumpsToFinish(t *testing.T) {
	s := state.New("t", "u", 5)
	researcher := fakeResearcher{result: agentengine.Result{Response: &agentengine.AgentResponse{
		Answer: "", Reasoning: "degraded response: run deadline exceeded", Confidence: 0.0,
	}}}

	out := state.Research(context.Background(), "run-1", s, researcher, nil, time.Minute)
	require.True(t, out.TimedOut)
	require.Equal(t, state.StatusFinished, out.Status)
	require.Equal(t, "Timed out before completing research.", out.RefinedAnswer)
}

func TestFinishRendersReportAndStoresDocument(t *testing.T) {
	s := state.New("t", "u", 3)
	s.Sources = []state.SourceReference{{Title: "A", URL: "https://a", Snippet: "s"}}

	out := state.Finish(context.Background(), s, state.DefaultFormatter, stubDocs{id: "doc-1"})
	require.Equal(t, state.StatusFinished, out.Status)
	require.NotEmpty(t, out.ReportMarkdown)
	require.Equal(t, "doc-1", out.MemoryDocumentID)
}

func TestFinishStorageFailureLeavesDocumentIDEmpty(t *testing.T) {
	s := state.New("t", "u", 3)
	out := state.Finish(context.Background(), s, state.DefaultFormatter, stubDocs{err: errFailingStore})
	require.Empty(t, out.MemoryDocumentID)
}

type stubDocs struct {
	id  string
	err error
}

func (s stubDocs) StoreDocument(context.Context, string, map[string]any) (string, error) {
	return s.id, s.err
}

var errFailingStore = &storeErr{}

type storeErr struct{}

func (*storeErr) Error() string { return "storage unavailable" }
