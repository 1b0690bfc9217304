package sqlite

import (
	"errors"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// constraintCode extracts the extended SQLite result code from a driver error.
// Returns 0 if err did not come from SQLite.
func constraintCode(err error) int {
	var se *sqlitedriver.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	code := constraintCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	return constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// violatesColumn reports whether a constraint error names table.column,
// e.g. "UNIQUE constraint failed: users.email".
func violatesColumn(err error, column string) bool {
	return strings.Contains(err.Error(), column)
}

// dbTime normalizes a timestamp before it is written or compared.
// Stored values are UTC and second-precision so their text form sorts
// chronologically.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps s for a substring LIKE match with wildcards escaped.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
