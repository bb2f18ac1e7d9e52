// Package state implements the research workflow's data model (C3 §3) and
// the five-node state machine (C4): Plan, Research, Critique, Refine,
// Finish. Every node function takes a ResearchState by value and returns a
// new one; none mutate their input in place, so traces of a run are just
// the sequence of returned values.
package state

import "time"

// Status is the workflow-scoped phase of a ResearchState.
type Status string

const (
	StatusPlanning    Status = "planning"
	StatusResearching Status = "researching"
	StatusCritiquing  Status = "critiquing"
	StatusRefining    Status = "refining"
	StatusFinished    Status = "finished"
)

// RiskLevel mirrors risk.Level for the data model's own vocabulary so this
// package has no import-time dependency on the classifier.
type RiskLevel string

const (
	Reversible          RiskLevel = "reversible"
	ReversibleWithDelay RiskLevel = "reversible_with_delay"
	Irreversible        RiskLevel = "irreversible"
)

// SourceReference is one citation gathered during Research.
type SourceReference struct {
	Title       string
	URL         string
	Snippet     string
	RetrievedAt time.Time
}

// PlannedAction is a candidate side effect proposed by the agent, subject
// to the Approval Gate (C5) before execution.
type PlannedAction struct {
	ActionType        string
	ActionDescription string
	Parameters        map[string]any
	RiskLevel         RiskLevel
}

// ResearchState is the workflow-scoped value threaded through C4. It is
// never mutated in place: every node function returns a new value.
type ResearchState struct {
	Topic  string
	UserID string

	Plan             string
	Sources          []SourceReference
	Critique         string
	RefinedAnswer    string
	IterationCount   int
	MaxIterations    int
	Status           Status
	QualityScore     float64
	QualityThreshold float64
	PlannedActions   []PlannedAction
	MemoryDocumentID string
	ReportMarkdown   string

	// TimedOut records whether Research aborted on RuntimeBudgetExceeded.
	TimedOut bool
}

// MaxAllowedIterations is the hard ceiling max_iterations clamps to,
// regardless of the caller-supplied value.
const MaxAllowedIterations = 5

// DefaultQualityThreshold is used when the caller does not set one.
const DefaultQualityThreshold = 0.8

// New constructs the initial ResearchState for a run. maxIterations is
// clamped to [1, MaxAllowedIterations]; zero or negative input is treated
// as MaxAllowedIterations.
func New(topic, userID string, maxIterations int) ResearchState {
	if maxIterations <= 0 || maxIterations > MaxAllowedIterations {
		maxIterations = MaxAllowedIterations
	}
	return ResearchState{
		Topic:            topic,
		UserID:           userID,
		MaxIterations:    maxIterations,
		QualityThreshold: DefaultQualityThreshold,
		Status:           StatusPlanning,
	}
}

// clone returns a shallow value copy with independently-owned slices, so a
// node function can append to Sources/PlannedActions without aliasing the
// input state's backing arrays.
func (s ResearchState) clone() ResearchState {
	out := s
	out.Sources = append([]SourceReference(nil), s.Sources...)
	out.PlannedActions = append([]PlannedAction(nil), s.PlannedActions...)
	return out
}
