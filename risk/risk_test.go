package risk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strukalex/agentic-assistant-framework-sub000/risk"
)

func TestClassifyStaticTable(t *testing.T) {
	cases := []struct {
		tool string
		want risk.Level
	}{
		{"web_search", risk.Reversible},
		{"search", risk.Reversible},
		{"search_memory", risk.Reversible},
		{"read_file", risk.Reversible},
		{"get_current_time", risk.Reversible},
		{"send_email", risk.ReversibleWithDelay},
		{"create_calendar_event", risk.ReversibleWithDelay},
		{"schedule_task", risk.ReversibleWithDelay},
		{"delete_file", risk.Irreversible},
		{"make_purchase", risk.Irreversible},
		{"send_money", risk.Irreversible},
		{"modify_production", risk.Irreversible},
	}
	for _, c := range cases {
		got := risk.Classify(c.tool, nil)
		require.Equalf(t, c.want, got, "tool %q", c.tool)
	}
}

func TestClassifyUnknownToolDefaultsIrreversible(t *testing.T) {
	require.Equal(t, risk.Irreversible, risk.Classify("launch_missiles", nil))
}

func TestClassifyReadFileEscalation(t *testing.T) {
	cases := []string{
		"/etc/shadow",
		"/home/user/API_KEY.txt",
		"configs/secret.yaml",
		"db/credentials.json",
		"vault/PASSWORD",
	}
	for _, path := range cases {
		got := risk.Classify("read_file", map[string]any{"path": path})
		require.Equalf(t, risk.ReversibleWithDelay, got, "path %q", path)
	}
}

func TestClassifyReadFileNoEscalationForOrdinaryPaths(t *testing.T) {
	got := risk.Classify("read_file", map[string]any{"path": "/home/user/notes.txt"})
	require.Equal(t, risk.Reversible, got)
}

func TestRequiresApproval(t *testing.T) {
	require.True(t, risk.RequiresApproval(risk.Irreversible, 1.0))
	require.True(t, risk.RequiresApproval(risk.Irreversible, 0.0))

	require.True(t, risk.RequiresApproval(risk.ReversibleWithDelay, 0.84))
	require.False(t, risk.RequiresApproval(risk.ReversibleWithDelay, 0.85))
	require.False(t, risk.RequiresApproval(risk.ReversibleWithDelay, 0.99))

	require.False(t, risk.RequiresApproval(risk.Reversible, 0.0))
	require.False(t, risk.RequiresApproval(risk.Reversible, 1.0))
}
