package state

import (
	"fmt"
	"strings"
)

// DefaultFormatter renders a ResearchState into a markdown report and a
// one-line executive summary. It is the default ReportFormatter used when
// no other formatter is configured.
func DefaultFormatter(s ResearchState) (markdown, executiveSummary string) {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", s.Topic)
	fmt.Fprintf(&b, "Iterations: %d/%d\n\n", s.IterationCount, s.MaxIterations)
	fmt.Fprintf(&b, "Quality score: %.2f (threshold %.2f)\n\n", s.QualityScore, s.QualityThreshold)

	b.WriteString("## Sources\n\n")
	for i, src := range s.Sources {
		fmt.Fprintf(&b, "%d. [%s](%s) -- %s\n", i+1, src.Title, src.URL, src.Snippet)
	}
	if s.Critique != "" {
		fmt.Fprintf(&b, "\n## Critique\n\n%s\n", s.Critique)
	}

	summary := fmt.Sprintf("Found %d sources with quality score %.2f on %q.", len(s.Sources), s.QualityScore, s.Topic)
	return b.String(), summary
}
