// Package agentengine implements the Agent Execution Engine (C2): it runs
// one research turn, driving the model/tool-call loop via the Tool
// Invocation Layer until a structured answer is produced, and returns
// either an AgentResponse or a ToolGapReport.
package agentengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/strukalex/agentic-assistant-framework-sub000/gap"
	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	"github.com/strukalex/agentic-assistant-framework-sub000/telemetry"
	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
	"github.com/strukalex/agentic-assistant-framework-sub000/toolerrors"
)

// AgentResponse is the structured result of one completed research turn.
type AgentResponse struct {
	Answer     string
	Reasoning  string
	ToolCalls  []tooling.ToolCallRecord
	Confidence float64
}

// systemPrompt instructs the model on the memory-first workflow. C1's
// guards enforce these rules regardless of whether the model complies.
const systemPrompt = `You are a research agent. Follow this workflow:
1. Call search_memory exactly once to check for a prior answer.
2. If search_memory reports no result, proceed to web_search.
3. Never repeat an identical tool call.
4. Once you have stored a final answer, stop calling tools and return your structured answer.`

// answerSchema constrains the model's final structured answer.
var answerSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "answer": {"type": "string"},
    "reasoning": {"type": "string"},
    "confidence": {"type": "number"}
  },
  "required": ["answer", "reasoning", "confidence"]
}`)

// rawAnswer is the wire shape the model is asked to return on its final
// turn. It is normalized into one of the outcome variants below, which
// mirrors the "dynamic LLM output shape" design note: the model may return
// its answer under slightly different field names depending on provider
// quirks, so normalization never trusts a single fixed shape blindly
// beyond this struct's json tags.
type rawAnswer struct {
	Answer     string  `json:"answer"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// outcomeKind tags which variant a turn outcome resolved to.
type outcomeKind int

const (
	outcomeData outcomeKind = iota
	outcomeMalformed
)

// turnOutcome is the tagged variant the turn loop normalizes every model
// response into: either well-formed Data, or Malformed with a detail
// string explaining why it could not be parsed.
type turnOutcome struct {
	kind   outcomeKind
	answer rawAnswer
	detail string
}

// Engine drives research turns.
type Engine struct {
	llm     llm.Client
	invoker *tooling.Invoker
	gap     *gap.Detector
	tracer  telemetry.Tracer

	maxTurns int
}

// Options configures an Engine.
type Options struct {
	// MaxTurns bounds how many model turns one run_agent call may take
	// before it is treated as malformed output. Zero uses a default of 25.
	MaxTurns int
	Tracer   telemetry.Tracer
}

// New constructs an Engine.
func New(client llm.Client, invoker *tooling.Invoker, detector *gap.Detector, opts Options) *Engine {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 25
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NoopTracer{}
	}
	return &Engine{llm: client, invoker: invoker, gap: detector, tracer: opts.Tracer, maxTurns: opts.MaxTurns}
}

// Result is the RunAgent return value: exactly one of Response or
// GapReport is non-nil.
type Result struct {
	Response  *AgentResponse
	GapReport *gap.Report
}

// RunAgent executes run_agent(task, tools, max_runtime_seconds?): the
// public contract of the Agent Execution Engine. runID correlates every
// published tool-call event with the run this turn belongs to; callers
// outside a run (ad hoc tool testing) may pass an empty string.
func (e *Engine) RunAgent(ctx context.Context, runID, task string, tools []llm.ToolSpec, maxRuntime time.Duration) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "agent_run", telemetry.Attr("task_description", task))
	defer span.End()

	// Step 1: pre-flight gap check. Failures are logged but never block
	// the run.
	if e.gap != nil {
		report, err := e.gap.Detect(ctx, task)
		if err != nil {
			span.AddEvent("gap_check_failed", telemetry.Attr("error", err.Error()))
		} else if report != nil {
			span.SetStatus(codes.Ok, "capability gap detected")
			span.AddEvent("result_type", telemetry.Attr("value", "ToolGapReport"))
			return Result{GapReport: report}, nil
		}
	}

	// Step 2: initialize per-run state.
	rc := tooling.NewRunContext(maxRuntime)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: task},
	}

	outcome := e.turnLoop(ctx, runID, rc, messages, tools)

	// Steps 4-5: normalize and finalize.
	resp := e.finalize(rc, outcome)
	span.AddEvent("tool_calls_count", telemetry.Attr("value", len(resp.ToolCalls)))
	span.AddEvent("confidence_score", telemetry.Attr("value", resp.Confidence))
	span.AddEvent("result_type", telemetry.Attr("value", "AgentResponse"))
	return Result{Response: &resp}, nil
}

// turnLoop drives the model/tool-call loop until the model returns
// structured output or the loop is aborted by deadline, a tool-dispatch
// error the model cannot recover from, or the turn cap.
func (e *Engine) turnLoop(ctx context.Context, runID string, rc *tooling.RunContext, messages []llm.Message, tools []llm.ToolSpec) turnOutcome {
	for turn := 0; turn < e.maxTurns; turn++ {
		if rc.DeadlineExceeded() {
			return turnOutcome{kind: outcomeMalformed, detail: "run deadline exceeded"}
		}

		req := llm.ChatRequest{Messages: messages, Tools: tools}
		// Only on the final allowed turn do we ask for the structured
		// answer schema, so that turn is machine-parseable. An earlier
		// turn that ends without tool calls is taken as a free-text
		// answer below.
		if turn == e.maxTurns-1 {
			req.ResponseSchema = answerSchema
		}

		res, err := e.llm.Chat(ctx, req)
		if err != nil {
			return turnOutcome{kind: outcomeMalformed, detail: fmt.Sprintf("model call failed: %v", err)}
		}

		if len(res.StructuredJSON) > 0 {
			var parsed rawAnswer
			if jsonErr := json.Unmarshal(res.StructuredJSON, &parsed); jsonErr != nil {
				return turnOutcome{kind: outcomeMalformed, detail: fmt.Sprintf("malformed structured output: %v", jsonErr)}
			}
			return turnOutcome{kind: outcomeData, answer: parsed}
		}

		if len(res.ToolCalls) == 0 {
			// The model answered in free text without using the schema;
			// treat its content as the answer with neutral confidence.
			return turnOutcome{kind: outcomeData, answer: rawAnswer{Answer: res.Content, Reasoning: "model concluded without structured output", Confidence: 0.5}}
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: res.Content, ToolCalls: res.ToolCalls})

		for _, call := range res.ToolCalls {
			var params map[string]any
			if err := json.Unmarshal(call.Arguments, &params); err != nil {
				params = map[string]any{}
			}
			cacheable := call.Name == "search_memory" || call.Name == "read_file"
			result, callErr := e.invoker.Call(ctx, rc, call.Name, params, tooling.CallOptions{Cacheable: cacheable, RunID: runID})
			if callErr != nil {
				toolErr := toolerrors.FromError(callErr)
				switch toolErr.Kind {
				case toolerrors.KindRuntimeBudgetExceeded:
					return turnOutcome{kind: outcomeMalformed, detail: toolErr.Error()}
				case toolerrors.KindBudgetExceeded, toolerrors.KindLoopDetected:
					// These are not sent back to the model: the loop ends
					// with a malformed outcome, so the turn yields a
					// degraded response whose tool calls include the
					// failure record.
					return turnOutcome{kind: outcomeMalformed, detail: toolErr.Error()}
				default:
					messages = append(messages, llm.Message{
						Role: llm.RoleTool, ToolCallID: call.ID,
						Content: fmt.Sprintf("error: %s", toolErr.Error()),
					})
					continue
				}
			}
			content := ""
			if result != nil {
				for _, block := range result.TextBlocks() {
					content += block
				}
			}
			messages = append(messages, llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: content})
		}
	}
	return turnOutcome{kind: outcomeMalformed, detail: "exceeded maximum turns without a structured answer"}
}

// finalize normalizes the turn outcome into an AgentResponse and overwrites
// tool_calls with the authoritative C1 log, per the engine's contract that
// the model's self-reported call list is advisory only.
func (e *Engine) finalize(rc *tooling.RunContext, outcome turnOutcome) AgentResponse {
	log := rc.Log()
	if outcome.kind == outcomeMalformed {
		return AgentResponse{
			Answer:     "",
			Reasoning:  "degraded response: " + outcome.detail,
			ToolCalls:  log,
			Confidence: 0.0,
		}
	}
	confidence := outcome.answer.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return AgentResponse{
		Answer:     outcome.answer.Answer,
		Reasoning:  outcome.answer.Reasoning,
		ToolCalls:  log,
		Confidence: confidence,
	}
}
