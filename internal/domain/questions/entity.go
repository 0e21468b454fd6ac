package questions

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/veritas-audit/auditflow/internal/domain/tools"
)

// Number is a spreadsheet row label. Ingested sheets carry it as either a
// text or a numeric cell, so it decodes from both and keeps the text form.
type Number string

func (n *Number) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Number(s)
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.New("questionNumber must be a string or a number")
	}
	*n = Number(v.String())
	return nil
}

// Question is one parsed audit question. Rows are produced by spreadsheet
// ingestion and are immutable once created; ID is unique within an
// application.
type Question struct {
	ID             string `json:"id"`
	QuestionNumber Number `json:"questionNumber"`
	Process        string `json:"process"`
	SubProcess     string `json:"subProcess"`
	Text           string `json:"question"`
}

// Analysis is the classification outcome for one question: the suggested
// tool(s), the connector choice, and the prompt an agent would run. One row
// per (applicationId, questionId), enforced by the repositories as an upsert.
type Analysis struct {
	ApplicationID    int64           `json:"applicationId"`
	QuestionID       string          `json:"questionId"`
	OriginalQuestion string          `json:"originalQuestion"`
	Category         string          `json:"category"`
	Subcategory      string          `json:"subcategory"`
	AIPrompt         string          `json:"aiPrompt"`
	ToolSuggestion   tools.Selection `json:"toolSuggestion"`
	ConnectorReason  string          `json:"connectorReason"`
	ConnectorToUse   tools.Selection `json:"connectorToUse"`
	UpdatedAt        time.Time       `json:"updatedAt,omitempty"`
}
