package tools

import (
	"errors"
	"strings"
)

// Type enumerates the external systems a connector can bind to.
type Type string

const (
	SQLServer    Type = "SQL Server DB"
	OracleDB     Type = "Oracle DB"
	Gnosis       Type = "Gnosis Document Repository"
	Jira         Type = "Jira"
	QTest        Type = "QTest"
	ServiceNow   Type = "ServiceNow"
	NASPath      Type = "NAS Path"
	Outlook      Type = "Outlook"
	ManualReview Type = "Manual Review"
)

// ErrUnknownType is returned when a value is neither a display name nor a
// legacy identifier.
var ErrUnknownType = errors.New("unknown tool type")

// legacyIDs maps the snake_case identifiers used by older clients and stored
// rows to the current display names. Both forms are accepted everywhere.
var legacyIDs = map[string]Type{
	"sql_server":    SQLServer,
	"oracle_db":     OracleDB,
	"gnosis":        Gnosis,
	"gnosis_path":   Gnosis,
	"jira":          Jira,
	"qtest":         QTest,
	"servicenow":    ServiceNow,
	"service_now":   ServiceNow,
	"nas_path":      NASPath,
	"outlook":       Outlook,
	"manual_review": ManualReview,
}

var displayNames = map[Type]bool{
	SQLServer:    true,
	OracleDB:     true,
	Gnosis:       true,
	Jira:         true,
	QTest:        true,
	ServiceNow:   true,
	NASPath:      true,
	Outlook:      true,
	ManualReview: true,
}

// Parse accepts either a display name ("SQL Server DB") or a legacy
// identifier ("sql_server") and returns the canonical Type. Anything else is
// rejected; tool types are a closed vocabulary.
func Parse(s string) (Type, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", ErrUnknownType
	}
	if displayNames[Type(v)] {
		return Type(v), nil
	}
	if t, ok := legacyIDs[strings.ToLower(v)]; ok {
		return t, nil
	}
	return "", ErrUnknownType
}

// Legacy returns the snake_case identifier for t.
func (t Type) Legacy() string {
	switch t {
	case SQLServer:
		return "sql_server"
	case OracleDB:
		return "oracle_db"
	case Gnosis:
		return "gnosis"
	case Jira:
		return "jira"
	case QTest:
		return "qtest"
	case ServiceNow:
		return "service_now"
	case NASPath:
		return "nas_path"
	case Outlook:
		return "outlook"
	case ManualReview:
		return "manual_review"
	}
	return ""
}

// Valid reports whether t is a member of the closed vocabulary.
func (t Type) Valid() bool { return displayNames[t] }

// All returns the vocabulary in a stable order.
func All() []Type {
	return []Type{
		SQLServer, OracleDB, Gnosis, Jira, QTest,
		ServiceNow, NASPath, Outlook, ManualReview,
	}
}
