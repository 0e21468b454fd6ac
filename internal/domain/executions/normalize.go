package executions

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"
)

// maxRawSummary bounds how much of an unstructured payload is used verbatim
// as the summary.
const maxRawSummary = 240

// rawAnalysis mirrors the shapes agents are known to emit: a flat object, or
// the same fields nested under "analysis". Field names vary slightly between
// agent generations, hence the aliases.
type rawAnalysis struct {
	ExecutiveSummary string          `json:"executiveSummary"`
	Summary          string          `json:"summary"`
	RiskLevel        string          `json:"riskLevel"`
	ComplianceStatus string          `json:"complianceStatus"`
	Confidence       float64         `json:"confidence"`
	Findings         json.RawMessage `json:"findings"`
	DataPoints       int             `json:"dataPoints"`
	Records          int             `json:"records"`
}

type rawEnvelope struct {
	Analysis   *rawAnalysis    `json:"analysis"`
	Findings   json.RawMessage `json:"findings"`
	DataPoints int             `json:"dataPoints"`
	Records    int             `json:"records"`
	rawAnalysis
}

// Normalize converts whatever an agent returned into the canonical
// ResultPayload. It accepts the nested {"analysis": {...}} envelope, the
// flat variant, and plain text; it never fails on an unexpected shape.
func Normalize(raw, source string, now time.Time) ResultPayload {
	out := ResultPayload{
		Source:           source,
		Timestamp:        now,
		Findings:         []Finding{},
		RiskLevel:        RiskLow,
		ComplianceStatus: Compliant,
	}

	trimmed := strings.TrimSpace(raw)
	var env rawEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		out.Summary = truncate(trimmed, maxRawSummary)
		return out
	}

	body := env.rawAnalysis
	findings := env.Findings
	records := firstNonZero(env.DataPoints, env.Records)
	if env.Analysis != nil {
		body = *env.Analysis
		if body.Findings != nil {
			findings = body.Findings
		}
		records = firstNonZero(records, body.DataPoints, body.Records)
	} else {
		if body.Findings != nil && findings == nil {
			findings = body.Findings
		}
		records = firstNonZero(records, body.DataPoints, body.Records)
	}

	out.Summary = strings.TrimSpace(body.ExecutiveSummary)
	if out.Summary == "" {
		out.Summary = strings.TrimSpace(body.Summary)
	}
	if out.Summary == "" {
		// Structured payload without a recognizable summary: fall back to
		// the raw text so the user still sees something.
		out.Summary = truncate(trimmed, maxRawSummary)
	}
	out.Records = records
	out.RiskLevel = normalizeRisk(body.RiskLevel)
	out.ComplianceStatus = normalizeCompliance(body.ComplianceStatus)
	out.Confidence = body.Confidence
	out.Findings = decodeFindings(findings)
	return out
}

// decodeFindings accepts findings as strings, objects, or a mix.
func decodeFindings(raw json.RawMessage) []Finding {
	if len(raw) == 0 {
		return []Finding{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []Finding{}
	}
	out := make([]Finding, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				out = append(out, Finding{Finding: s})
			}
			continue
		}
		var f Finding
		if err := json.Unmarshal(item, &f); err == nil && strings.TrimSpace(f.Finding) != "" {
			out = append(out, f)
		}
	}
	return out
}

func normalizeRisk(s string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return RiskCritical
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	default:
		return RiskLow
	}
}

func normalizeCompliance(s string) ComplianceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "non-compliant", "non compliant", "noncompliant":
		return NonCompliant
	case "partially compliant":
		return PartiallyCompliant
	case "mostly compliant":
		return MostlyCompliant
	default:
		return Compliant
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
