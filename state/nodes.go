package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/strukalex/agentic-assistant-framework-sub000/agentengine"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
)

// Researcher is the capability Research invokes for one turn. It is
// satisfied by *agentengine.Engine; taking an interface here keeps this
// package free of a hard dependency on any one engine configuration.
type Researcher interface {
	RunAgent(ctx context.Context, runID, task string, tools []llm.ToolSpec, maxRuntime time.Duration) (agentengine.Result, error)
}

// ReportFormatter renders a ResearchState into markdown. The concrete
// formatter lives outside this package (an external collaborator per the
// component design); node functions only need the interface.
type ReportFormatter func(state ResearchState) (markdown, executiveSummary string)

// DocumentStore is the narrow MemoryStore slice Finish uses to persist the
// rendered report. A storage failure is non-fatal: memory_document_id
// stays empty.
type DocumentStore interface {
	StoreDocument(ctx context.Context, content string, metadata map[string]any) (string, error)
}

// Plan is idempotent on Plan: if a plan already exists it is left
// unchanged. Otherwise it seeds Plan from Topic and advances to
// Researching.
func Plan(s ResearchState) ResearchState {
	out := s.clone()
	if out.Plan == "" {
		out.Plan = fmt.Sprintf("Research plan for: %s", out.Topic)
	}
	out.Status = StatusResearching
	return out
}

// Research invokes the Agent Execution Engine for one turn, merges any
// extracted SourceReferences, updates quality_score, and advances
// iteration_count. On RuntimeBudgetExceeded it marks the run timed out and
// jumps straight to Finish instead of Critique.
func Research(ctx context.Context, runID string, s ResearchState, researcher Researcher, tools []llm.ToolSpec, maxRuntime time.Duration) ResearchState {
	out := s.clone()

	task := fmt.Sprintf("Research topic: %s", out.Topic)
	result, err := researcher.RunAgent(ctx, runID, task, tools, maxRuntime)
	if err != nil || result.GapReport != nil {
		out.TimedOut = true
		out.RefinedAnswer = "Timed out before completing research."
		out.Status = StatusFinished
		return out
	}
	resp := result.Response
	if resp == nil {
		out.TimedOut = true
		out.RefinedAnswer = "Timed out before completing research."
		out.Status = StatusFinished
		return out
	}
	if resp.Confidence == 0 && resp.Answer == "" {
		// Degraded AgentResponse from RuntimeBudgetExceeded or malformed
		// output: treat as a timeout jump to Finish per the node contract.
		out.TimedOut = true
		out.RefinedAnswer = "Timed out before completing research."
		out.Status = StatusFinished
		return out
	}

	newSources := extractSources(resp.ToolCalls)
	out.Sources = append(out.Sources, newSources...)

	candidate := minFloat(1.0, 0.3*float64(len(out.Sources)))
	out.QualityScore = maxFloat(out.QualityScore, candidate, resp.Confidence)

	out.IterationCount++
	out.Status = StatusCritiquing
	return out
}

// extractSources pulls SourceReferences out of any tool-call result shaped
// as a list of objects with {title, url, snippet}. Malformed items are
// silently dropped rather than failing the whole turn.
func extractSources(records []tooling.ToolCallRecord) []SourceReference {
	var out []SourceReference
	now := time.Now()
	for _, rec := range records {
		if rec.Status != tooling.StatusSuccess {
			continue
		}
		result, ok := rec.Result.(tooling.ToolResult)
		if !ok {
			continue
		}
		for _, block := range result.TextBlocks() {
			var items []map[string]any
			if err := json.Unmarshal([]byte(block), &items); err != nil {
				continue
			}
			for _, item := range items {
				title, _ := item["title"].(string)
				url, _ := item["url"].(string)
				snippet, _ := item["snippet"].(string)
				if title == "" || url == "" || snippet == "" {
					continue
				}
				out = append(out, SourceReference{
					Title: title, URL: url, Snippet: snippet, RetrievedAt: now,
				})
			}
		}
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Critique computes the source-count and quality thresholds and decides
// whether to continue refining or finish, mirroring the conditional edge
// logic exactly.
func Critique(s ResearchState) ResearchState {
	out := s.clone()
	hasEnoughSources := len(out.Sources) >= 3
	meetsQuality := out.QualityScore >= out.QualityThreshold
	if out.IterationCount < out.MaxIterations && (!hasEnoughSources || !meetsQuality) {
		out.Status = StatusRefining
	} else {
		out.Status = StatusFinished
	}
	return out
}

// NextFromCritique evaluates the conditional edge out of Critique. A state
// already marked Finished routes to Finished; otherwise the decision is
// re-derived from the iteration count, source count, and quality score, so
// callers can compute it from any ResearchState snapshot.
func NextFromCritique(s ResearchState) Status {
	switch {
	case s.Status == StatusFinished:
		return StatusFinished
	case s.IterationCount >= s.MaxIterations:
		return StatusFinished
	case len(s.Sources) < 3 || s.QualityScore < s.QualityThreshold:
		return StatusRefining
	default:
		return StatusFinished
	}
}

// Refine appends the critique text to the running plan and routes back to
// Research.
func Refine(s ResearchState, critique string) ResearchState {
	out := s.clone()
	out.Critique = critique
	if out.Plan != "" {
		out.Plan = out.Plan + "\n\nCritique: " + critique
	} else {
		out.Plan = "Critique: " + critique
	}
	out.Status = StatusResearching
	return out
}

// Finish renders the final report, persists it when a DocumentStore is
// available (storage failure is non-fatal), and marks the state Finished.
func Finish(ctx context.Context, s ResearchState, format ReportFormatter, docs DocumentStore) ResearchState {
	out := s.clone()
	if out.TimedOut {
		out.Status = StatusFinished
		return out
	}

	markdown, summary := format(out)
	out.ReportMarkdown = markdown
	out.RefinedAnswer = summary
	out.Status = StatusFinished

	if docs != nil {
		id, err := docs.StoreDocument(ctx, markdown, map[string]any{
			"topic":   out.Topic,
			"user_id": out.UserID,
		})
		if err == nil {
			out.MemoryDocumentID = id
		}
	}
	return out
}
