// Package toolerrors provides structured error types for tool invocation and
// agent-run failures. ToolError preserves error chains and supports
// errors.Is/As while remaining serializable for run-log and memory
// persistence, and for propagating tool-dispatch failures back to the LLM
// as a runtime error the planner can react to on its next turn.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a ToolError per the runtime's error taxonomy. Kinds name
// the failure mode, not the Go type, so they survive JSON round-trips.
type Kind string

const (
	// KindBudgetExceeded indicates the per-run tool-call cap was reached.
	KindBudgetExceeded Kind = "budget_exceeded"
	// KindLoopDetected indicates the loop guard rejected a repeated call.
	KindLoopDetected Kind = "loop_detected"
	// KindRuntimeBudgetExceeded indicates the wall-clock deadline passed.
	KindRuntimeBudgetExceeded Kind = "runtime_budget_exceeded"
	// KindToolTimeout indicates a tool invocation exceeded its timeout.
	KindToolTimeout Kind = "tool_timeout"
	// KindToolFailure indicates a tool invocation failed for any other reason,
	// including schema validation failures.
	KindToolFailure Kind = "tool_failure"
	// KindMalformedLLMOutput indicates the LLM result lacked required fields.
	KindMalformedLLMOutput Kind = "malformed_llm_output"
	// KindCapabilityGap indicates the gap detector found missing tools.
	KindCapabilityGap Kind = "capability_gap"
)

// ToolError represents a structured failure that preserves message, kind,
// and causal context while still implementing the standard error interface.
// Errors may be nested via Cause to retain diagnostics across retries and
// agent-as-tool hops.
type ToolError struct {
	// Kind classifies the failure for callers that need to branch on it
	// without string matching.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
}

// New constructs a ToolError with the provided kind and message.
func New(kind Kind, message string) *ToolError {
	if message == "" {
		message = string(kind)
	}
	return &ToolError{Kind: kind, Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so error metadata survives
// serialization while still supporting errors.Is/As through Unwrap.
func NewWithCause(kind Kind, message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Kind: kind, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain, preserving
// kind KindToolFailure for errors that did not already carry one.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Kind:    KindToolFailure,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as a
// ToolError of the given kind.
func Errorf(kind Kind, format string, args ...any) *ToolError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is a ToolError with the same Kind, so callers
// can write errors.Is(err, toolerrors.New(toolerrors.KindBudgetExceeded, "")).
func (e *ToolError) Is(target error) bool {
	var te *ToolError
	if !errors.As(target, &te) || te == nil {
		return false
	}
	return e.Kind != "" && e.Kind == te.Kind
}
