package prompt

import (
	"fmt"

	"github.com/veritas-audit/auditflow/internal/domain/connectors"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// CollectionSystem frames the data-collection agent call for one connector.
// The schema below is what the result normalizer expects, but the normalizer
// tolerates deviations, so the prompt asks rather than enforces.
func CollectionSystem(t tools.Type, c *connectors.Connector) string {
	name := string(t)
	if c != nil && c.Name != "" {
		name = c.Name
	}
	return fmt.Sprintf(`You are an expert audit data analyst collecting evidence from %s (%s).
Analyze the available data to answer the audit question.

Instructions:
1. Analyze the data thoroughly.
2. Provide a comprehensive executive summary.
3. Identify key findings.
4. Assess risk level (Critical, High, Medium, Low).
5. Determine compliance status (Compliant, Partially Compliant, Non-Compliant).
6. Count the data points that support your analysis.

Return one JSON object only:
{
  "analysis": {
    "executiveSummary": "detailed summary of findings",
    "riskLevel": "Low|Medium|High|Critical",
    "complianceStatus": "Compliant|Partially Compliant|Non-Compliant",
    "confidence": 0.0
  },
  "findings": [{"finding": "...", "severity": "..."}],
  "dataPoints": 0
}`, name, t)
}

// CollectionUser wraps the analysis-time prompt for the agent.
func CollectionUser(question, agentPrompt string) string {
	return fmt.Sprintf(`Audit Question: %s

Execute the following data collection task:

%s

Provide the JSON per schema, including the expected number of records or data points.`, question, agentPrompt)
}
