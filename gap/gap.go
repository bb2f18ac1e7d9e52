// Package gap implements the Tool Gap Detector (C7): a pre-flight check
// that asks the model whether the registered tool set is sufficient for a
// task, so a run can short-circuit with a ToolGapReport instead of
// hallucinating a missing capability.
package gap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/strukalex/agentic-assistant-framework-sub000/llm"
	"github.com/strukalex/agentic-assistant-framework-sub000/tooling"
)

// Report mirrors the spec's ToolGapReport entity.
type Report struct {
	MissingTools         []string
	AttemptedTask        string
	ExistingToolsChecked []string
}

// excludedTools lists noisy article-fetchers excluded from the capability
// check so their presence/absence never skews the gap decision.
var excludedTools = map[string]bool{
	"fetch_article": true,
	"fetch_url":     true,
	"read_webpage":  true,
}

// coreMemoryTools are always considered present regardless of what the
// ToolServer enumerates, since the engine itself guarantees them.
var coreMemoryTools = []string{"search_memory", "store_memory"}

// responseSchema constrains the model's structured answer.
var responseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "missing_capabilities": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  },
  "required": ["missing_capabilities", "reasoning"]
}`)

type structuredResult struct {
	MissingCapabilities []string `json:"missing_capabilities"`
	Reasoning           string   `json:"reasoning"`
}

// Detector evaluates capability sufficiency via an llm.Client.
type Detector struct {
	llm    llm.Client
	server tooling.ToolServer
}

// New constructs a Detector.
func New(client llm.Client, server tooling.ToolServer) *Detector {
	return &Detector{llm: client, server: server}
}

// Detect runs the pre-flight capability check for task. It returns (nil,
// nil) when the tool set appears sufficient. On a parser or model failure
// it fails closed: it returns a non-nil error and a nil report, so the
// caller can log the failure and proceed with the run rather than block a
// legitimate query on a broken gap check.
func (d *Detector) Detect(ctx context.Context, task string) (*Report, error) {
	descriptors, err := d.server.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("gap: list tools: %w", err)
	}

	checked := make([]string, 0, len(descriptors)+len(coreMemoryTools))
	seen := make(map[string]bool)
	var toolLines strings.Builder
	for _, desc := range descriptors {
		if excludedTools[desc.Name] {
			continue
		}
		if seen[desc.Name] {
			continue
		}
		seen[desc.Name] = true
		checked = append(checked, desc.Name)
		fmt.Fprintf(&toolLines, "- %s: %s\n", desc.Name, desc.Description)
	}
	for _, name := range coreMemoryTools {
		if !seen[name] {
			seen[name] = true
			checked = append(checked, name)
			fmt.Fprintf(&toolLines, "- %s: persistent memory store/search\n", name)
		}
	}

	prompt := fmt.Sprintf(
		"Task: %s\n\nAvailable tools:\n%s\nDecide whether these tools are sufficient to complete the task. "+
			"Respond with missing_capabilities (a list of short capability names not covered by any tool above, "+
			"empty if the tools suffice) and reasoning.",
		task, toolLines.String(),
	)

	res, err := d.llm.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You assess whether a tool set can satisfy a task. Answer only with the requested structured fields."},
			{Role: llm.RoleUser, Content: prompt},
		},
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("gap: chat: %w", err)
	}
	if len(res.StructuredJSON) == 0 {
		return nil, fmt.Errorf("gap: model returned no structured output")
	}

	var parsed structuredResult
	if err := json.Unmarshal(res.StructuredJSON, &parsed); err != nil {
		return nil, fmt.Errorf("gap: parse structured output: %w", err)
	}

	if len(parsed.MissingCapabilities) == 0 {
		return nil, nil
	}
	return &Report{
		MissingTools:         parsed.MissingCapabilities,
		AttemptedTask:        task,
		ExistingToolsChecked: checked,
	}, nil
}
