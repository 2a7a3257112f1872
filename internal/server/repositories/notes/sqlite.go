package notes

import (
	"database/sql/driver"
	"strings"

	"github.com/dmitrijs2005/audionotes/internal/dbx"
	"modernc.org/sqlite"
)

// unicodeLowerFunc is a Unicode-aware replacement for SQLite lower(),
// which only folds ASCII.
const unicodeLowerFunc = "unicode_lower"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(unicodeLowerFunc, 1, unicodeLower); err != nil {
		panic(err)
	}
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// NewSQLiteRepository constructs a repository for SQLite (modernc.org/sqlite)
// bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLRepository {
	return newSQLRepository(db, sqliteDialect{})
}
