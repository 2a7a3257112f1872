package notes

import (
	"encoding/json"
	"fmt"
	"strings"
)

type dialect interface {
	placeholder(n int) string
	jsonValue(ph string) string
	tagFilter(ph string) string
	tagArg(tag string) (any, error)
	searchColumn(col string) string
	searchOperator() string
}

type postgresDialect struct{}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) jsonValue(ph string) string { return ph + "::jsonb" }

func (postgresDialect) tagFilter(ph string) string { return "tags @> " + ph + "::jsonb" }

func (postgresDialect) tagArg(tag string) (any, error) {
	b, err := json.Marshal([]string{tag})
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (postgresDialect) searchColumn(col string) string { return "COALESCE(" + col + ", '')" }

func (postgresDialect) searchOperator() string { return "ILIKE" }

type sqliteDialect struct{}

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) jsonValue(ph string) string { return ph }

func (sqliteDialect) tagFilter(ph string) string {
	return "EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = " + ph + ")"
}

func (sqliteDialect) tagArg(tag string) (any, error) { return tag, nil }

func (sqliteDialect) searchColumn(col string) string {
	return unicodeLowerFunc + "(COALESCE(" + col + ", ''))"
}

func (sqliteDialect) searchOperator() string { return "LIKE" }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-insensitive substring pattern with LIKE
// metacharacters escaped.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
