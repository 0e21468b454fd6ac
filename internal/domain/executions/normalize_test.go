package executions

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestNormalizeNestedEnvelope(t *testing.T) {
	raw := `{
		"analysis": {
			"executiveSummary": "Backups run nightly with offsite copies.",
			"riskLevel": "high",
			"complianceStatus": "Partially Compliant",
			"confidence": 0.82,
			"findings": ["No restore test in 12 months", "Retention below policy"],
			"dataPoints": 42
		}
	}`
	got := Normalize(raw, "prod-sql", testNow)

	assert.Equal(t, "Backups run nightly with offsite copies.", got.Summary)
	assert.Equal(t, RiskHigh, got.RiskLevel)
	assert.Equal(t, PartiallyCompliant, got.ComplianceStatus)
	assert.InDelta(t, 0.82, got.Confidence, 1e-9)
	assert.Equal(t, 42, got.Records)
	assert.Equal(t, "prod-sql", got.Source)
	assert.Equal(t, testNow, got.Timestamp)
	require.Len(t, got.Findings, 2)
	assert.Equal(t, "No restore test in 12 months", got.Findings[0].Finding)
}

func TestNormalizeFlatVariant(t *testing.T) {
	raw := `{
		"summary": "Access reviews completed quarterly.",
		"riskLevel": "Medium",
		"complianceStatus": "mostly compliant",
		"records": 7,
		"findings": [{"finding": "Two stale accounts", "severity": "medium"}]
	}`
	got := Normalize(raw, "jira", testNow)

	assert.Equal(t, "Access reviews completed quarterly.", got.Summary)
	assert.Equal(t, RiskMedium, got.RiskLevel)
	assert.Equal(t, MostlyCompliant, got.ComplianceStatus)
	assert.Equal(t, 7, got.Records)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, "medium", got.Findings[0].Severity)
}

func TestNormalizeRawTextTruncates(t *testing.T) {
	raw := strings.Repeat("a", 500)
	got := Normalize(raw, "nas", testNow)

	assert.Len(t, got.Summary, 240)
	assert.Equal(t, RiskLow, got.RiskLevel)
	assert.Equal(t, Compliant, got.ComplianceStatus)
	assert.Empty(t, got.Findings)
}

func TestNormalizeRawTextCutsOnRuneBoundary(t *testing.T) {
	// "ü" is two bytes; the leading ASCII byte shifts every rune start to
	// an odd offset, so a 240-byte cut lands mid-rune unless the cut backs
	// up to the rune start.
	raw := "a" + strings.Repeat("ü", 300)
	got := Normalize(raw, "nas", testNow)

	assert.True(t, utf8.ValidString(got.Summary))
	assert.Len(t, got.Summary, 239)
	assert.True(t, strings.HasSuffix(got.Summary, "ü"))
}

func TestNormalizeShortRawText(t *testing.T) {
	got := Normalize("evidence attached", "nas", testNow)
	assert.Equal(t, "evidence attached", got.Summary)
}

func TestNormalizeStructuredWithoutSummary(t *testing.T) {
	raw := `{"riskLevel": "critical", "dataPoints": 3}`
	got := Normalize(raw, "snow", testNow)

	assert.Equal(t, RiskCritical, got.RiskLevel)
	assert.Equal(t, 3, got.Records)
	// Falls back to the raw text so the user still sees something.
	assert.Equal(t, raw, got.Summary)
}

func TestNormalizeMixedFindings(t *testing.T) {
	raw := `{"summary":"ok","findings":["plain", {"finding":"typed","severity":"low"}, "", 42]}`
	got := Normalize(raw, "src", testNow)

	require.Len(t, got.Findings, 2)
	assert.Equal(t, "plain", got.Findings[0].Finding)
	assert.Equal(t, "typed", got.Findings[1].Finding)
	assert.Equal(t, "low", got.Findings[1].Severity)
}

func TestNormalizeRiskAndComplianceDefaults(t *testing.T) {
	raw := `{"summary":"x","riskLevel":"bogus","complianceStatus":"whatever"}`
	got := Normalize(raw, "src", testNow)

	assert.Equal(t, RiskLow, got.RiskLevel)
	assert.Equal(t, Compliant, got.ComplianceStatus)
}

func TestNormalizeComplianceSpellings(t *testing.T) {
	for _, in := range []string{"non-compliant", "Non Compliant", "NONCOMPLIANT"} {
		raw := `{"summary":"x","complianceStatus":"` + in + `"}`
		got := Normalize(raw, "src", testNow)
		assert.Equal(t, NonCompliant, got.ComplianceStatus, in)
	}
}
