// Package keyword implements the rule-based classifier variant: ordered
// substring rules over the lower-cased question text. It is fully
// deterministic and never fails.
package keyword

import (
	"context"
	"fmt"
	"strings"

	"github.com/veritas-audit/auditflow/internal/domain/ai"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

type rule struct {
	terms  []string
	tool   tools.Type
	reason string
}

// Rules are checked in priority order; the first match wins. Ties are broken
// by this order, never by scoring.
var rules = []rule{
	{
		terms:  []string{"database", "sql", "table"},
		tool:   tools.SQLServer,
		reason: "Question references database artifacts; query the SQL Server connector.",
	},
	{
		terms:  []string{"email", "outlook", "exchange"},
		tool:   tools.Outlook,
		reason: "Question references mail traffic; pull evidence from the Outlook connector.",
	},
	{
		terms:  []string{"servicenow", "snow", "ticket"},
		tool:   tools.ServiceNow,
		reason: "Question references service tickets; query the ServiceNow connector.",
	},
	{
		terms:  []string{"file", "document", "nas"},
		tool:   tools.NASPath,
		reason: "Question references files or documents; search the NAS path connector.",
	},
	{
		terms:  []string{"gnosis", "knowledge"},
		tool:   tools.Gnosis,
		reason: "Question references the knowledge repository; search the Gnosis connector.",
	},
}

const fallbackReason = "No data source keyword matched; route to manual review."

// Classifier satisfies the ai.Analyzer contract with keyword rules.
type Classifier struct{}

func New() *Classifier { return &Classifier{} }

// Analyze lower-cases the question text, tests the ordered rules, and falls
// back to manual review when nothing matches.
func (c *Classifier) Analyze(_ context.Context, q questions.Question) (ai.Analysis, error) {
	text := strings.ToLower(q.Text)
	tool := tools.ManualReview
	reason := fallbackReason
	for _, r := range rules {
		if matches(text, r.terms) {
			tool = r.tool
			reason = r.reason
			break
		}
	}
	return ai.Analysis{
		AIPrompt:        fmt.Sprintf("Collect data to answer: %s", q.Text),
		ToolSuggestion:  tools.NewSelection(tool),
		ConnectorReason: reason,
		Category:        q.Process,
		Subcategory:     q.SubProcess,
	}, nil
}

func matches(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
