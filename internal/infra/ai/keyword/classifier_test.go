package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

func analyze(t *testing.T, text string) tools.Type {
	t.Helper()
	a, err := New().Analyze(context.Background(), questions.Question{ID: "q-1", Text: text})
	require.NoError(t, err)
	require.True(t, a.ToolSuggestion.Single())
	return a.ToolSuggestion.Primary()
}

func TestClassifierRules(t *testing.T) {
	cases := []struct {
		text string
		want tools.Type
	}{
		{"Is the user database access reviewed?", tools.SQLServer},
		{"Are SQL permissions restricted?", tools.SQLServer},
		{"Is email forwarding to external domains blocked?", tools.Outlook},
		{"Are incident tickets closed within SLA?", tools.ServiceNow},
		{"Where are backup files stored?", tools.NASPath},
		{"Is the knowledge base kept current?", tools.Gnosis},
		{"Does the CFO approve budget changes?", tools.ManualReview},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, analyze(t, tc.text), tc.text)
	}
}

func TestClassifierRuleOrderBreaksTies(t *testing.T) {
	// "database" and "ticket" both match; the database rule has priority.
	got := analyze(t, "Is a ticket raised for every database change?")
	assert.Equal(t, tools.SQLServer, got)
}

func TestClassifierCaseInsensitive(t *testing.T) {
	assert.Equal(t, tools.Outlook, analyze(t, "IS OUTLOOK ARCHIVING ENABLED?"))
}

func TestClassifierDeterministic(t *testing.T) {
	first, err := New().Analyze(context.Background(), questions.Question{ID: "q-1", Text: "database check"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := New().Analyze(context.Background(), questions.Question{ID: "q-1", Text: "database check"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestClassifierFillsPromptAndCategories(t *testing.T) {
	q := questions.Question{ID: "q-2", Process: "Change Management", SubProcess: "Approvals", Text: "Is every change approved?"}
	a, err := New().Analyze(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "Collect data to answer: Is every change approved?", a.AIPrompt)
	assert.Equal(t, "Change Management", a.Category)
	assert.Equal(t, "Approvals", a.Subcategory)
	assert.NotEmpty(t, a.ConnectorReason)
}
