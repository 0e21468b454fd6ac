package mysql

import (
	"database/sql"
	"time"
)

// nullTime maps an optional timestamp onto a nullable column.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
