package prompt

import (
	"fmt"

	"github.com/veritas-audit/auditflow/internal/domain/questions"
)

// AnalysisSystem provides strict directions and schema for the question
// classification call. The model must answer with one JSON object only.
func AnalysisSystem() string {
	return `You are an expert audit data collection specialist. For each audit question you must:

1. Determine the most appropriate tool(s) for data collection.
2. Create a specific prompt for an AI agent to collect the required data.
3. Explain why this tool/connector is needed.

Available tools:
- sql_server: SQL Server database queries, data extraction, system configurations
- oracle_db: Oracle database queries
- gnosis: document repository search (policies, procedures, design documents)
- jira: issue and project tracking data
- qtest: test management and quality assurance data
- service_now: ITSM change requests and incidents
- nas_path: file systems and network shares
- outlook: mail and calendar evidence
- manual_review: no automated source applies

Respond with one valid JSON object only (no markdown, no commentary):
{
  "toolSuggestion": "tool_id" or ["tool_id", "tool_id"],
  "aiPrompt": "specific instructions for AI agent data collection",
  "connectorReason": "why this tool/connector is appropriate",
  "category": "main category of the question",
  "subcategory": "specific subcategory"
}

Use a list for toolSuggestion only when the question genuinely needs more than one source. Make the aiPrompt focused on data collection, not general analysis.`
}

// AnalysisUser builds the per-question message.
func AnalysisUser(q questions.Question) string {
	return fmt.Sprintf(`Analyze this audit question:

Question Number: %s
Process: %s
Sub-Process: %s
Question: %s

Determine the best tool for data collection and create an appropriate AI agent prompt.`,
		q.QuestionNumber, q.Process, q.SubProcess, q.Text)
}
