// Package risk implements the Risk Classifier (C3): a pure, stateless
// mapping from a planned tool call to a RiskLevel, and from a (risk,
// confidence) pair to whether the action requires human approval before
// execution.
package risk

import "strings"

// Level is the sum type over how reversible an action is.
type Level string

const (
	Reversible           Level = "reversible"
	ReversibleWithDelay  Level = "reversible_with_delay"
	Irreversible         Level = "irreversible"
)

// staticTable is the excerpted lookup table from the component design.
// Tools absent from this table default to Irreversible (conservative).
var staticTable = map[string]Level{
	"web_search":       Reversible,
	"search":           Reversible,
	"search_memory":    Reversible,
	"read_file":        Reversible,
	"get_current_time": Reversible,

	"send_email":           ReversibleWithDelay,
	"create_calendar_event": ReversibleWithDelay,
	"schedule_task":         ReversibleWithDelay,

	"delete_file":        Irreversible,
	"make_purchase":       Irreversible,
	"send_money":          Irreversible,
	"modify_production":   Irreversible,
}

// sensitivePathSubstrings trigger one-level escalation for read_file calls.
var sensitivePathSubstrings = []string{
	"/etc/shadow",
	"api_key",
	"secret",
	"credentials",
	"password",
}

// Classify maps a tool invocation to its risk level. Unknown tool names
// default to Irreversible.
func Classify(toolName string, parameters map[string]any) Level {
	level, known := staticTable[toolName]
	if !known {
		return Irreversible
	}

	if toolName == "read_file" && level == Reversible {
		if path, ok := parameters["path"].(string); ok {
			lower := strings.ToLower(path)
			for _, sub := range sensitivePathSubstrings {
				if strings.Contains(lower, sub) {
					return escalate(level)
				}
			}
		}
	}
	return level
}

// escalate bumps a risk level exactly one step toward Irreversible.
func escalate(level Level) Level {
	switch level {
	case Reversible:
		return ReversibleWithDelay
	case ReversibleWithDelay:
		return Irreversible
	default:
		return Irreversible
	}
}

// RequiresApproval decides whether an action of the given risk, proposed
// with the given model confidence in [0,1], must be routed through the
// approval gate before execution.
func RequiresApproval(level Level, confidence float64) bool {
	switch level {
	case Irreversible:
		return true
	case ReversibleWithDelay:
		return confidence < 0.85
	case Reversible:
		return false
	default:
		return true
	}
}
