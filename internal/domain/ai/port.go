package ai

import (
	"context"
	"fmt"

	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// Analysis is the classification contract: the suggested tool(s) for a
// question, the prompt an agent should run, and the reasoning. The same
// contract is satisfied by the keyword rules and by the LLM-backed variant;
// only the LLM variant returns multi-tool selections.
type Analysis struct {
	AIPrompt        string
	ToolSuggestion  tools.Selection
	ConnectorReason string
	Category        string
	Subcategory     string
}

// Analyzer classifies one question.
type Analyzer interface {
	Analyze(ctx context.Context, q questions.Question) (Analysis, error)
}

// Fallback is the fixed analysis used when a classification call fails. One
// failing question must never block the rest of the batch.
func Fallback(q questions.Question) Analysis {
	return Analysis{
		AIPrompt:        fmt.Sprintf("Collect data to answer: %s", q.Text),
		ToolSuggestion:  tools.NewSelection(tools.SQLServer),
		ConnectorReason: "Fallback due to analysis error",
		Category:        q.Process,
		Subcategory:     q.SubProcess,
	}
}
