package sqlite

import (
	"database/sql"
	"time"
)

// timeLayout matches the strftime format the schema's DEFAULT clauses
// use, so Go-written and SQLite-written timestamps parse the same way.
const timeLayout = "2006-01-02T15:04:05.000Z"

// mustParseTime parses a timestamp written by this package's own
// queries; a parse failure means the schema and this code have drifted
// out of sync, which is a programmer error, not a runtime condition to
// recover from.
func mustParseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2
		}
		panic("sqlite: unparseable timestamp " + s + ": " + err.Error())
	}
	return t
}

// formatNullTime renders a nullable timestamp for storage, or SQL NULL
// when t is nil.
func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

// parseNullTime is the inverse of formatNullTime for a scanned column.
func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := mustParseTime(s.String)
	return &t
}
