package sqlite

import (
	"database/sql/driver"
	"strings"

	sqlitedriver "modernc.org/sqlite"
)

// SQLite's built-in lower() and LIKE fold ASCII only, so "ÉVÉNEMENT" would
// not find "événement". unicode_lower folds with Go's Unicode tables and is
// what the event search compares on.
func init() {
	sqlitedriver.MustRegisterDeterministicScalarFunction("unicode_lower", 1, unicodeLower)
}

func unicodeLower(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	}
	return args[0], nil
}
