package analyzer

import (
	"strings"

	"github.com/nnaka2992/peaceful-postgresql/internal/parser"
)

// PostgreSQL reserved words that require quoting when used as identifiers
// Based on PostgreSQL documentation: https://www.postgresql.org/docs/current/sql-keywords-appendix.html
var postgresReservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
	"case": true, "cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "current_catalog": true, "current_date": true,
	"current_role": true, "current_schema": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "default": true,
	"deferrable": true, "desc": true, "distinct": true, "do": true,
	"else": true, "end": true, "except": true, "false": true, "fetch": true,
	"for": true, "foreign": true, "from": true, "grant": true, "group": true,
	"having": true, "in": true, "initially": true, "intersect": true,
	"into": true, "lateral": true, "leading": true, "limit": true,
	"localtime": true, "localtimestamp": true, "not": true, "null": true,
	"offset": true, "on": true, "only": true, "or": true, "order": true,
	"placing": true, "primary": true, "references": true, "returning": true,
	"select": true, "session_user": true, "some": true, "symmetric": true,
	"table": true, "then": true, "to": true, "trailing": true, "true": true,
	"union": true, "unique": true, "user": true, "using": true, "variadic": true,
	"when": true, "where": true, "window": true, "with": true,
	"authorization": true, "between": true, "binary": true, "cross": true,
	"freeze": true, "full": true, "ilike": true, "inner": true, "is": true,
	"isnull": true, "join": true, "left": true, "like": true, "natural": true,
	"notnull": true, "outer": true, "overlaps": true, "right": true,
	"similar": true, "verbose": true,
}

// needsQuoting checks if a PostgreSQL identifier needs quoting
func needsQuoting(identifier string) bool {
	if len(identifier) == 0 {
		return false
	}

	if postgresReservedWords[strings.ToLower(identifier)] {
		return true
	}

	firstChar := identifier[0]
	if (firstChar < 'a' || firstChar > 'z') && firstChar != '_' {
		return true
	}

	// Remaining characters must be lowercase letters, digits, or underscores
	for i := 1; i < len(identifier); i++ {
		ch := identifier[i]
		if (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') && ch != '_' && ch != '$' {
			return true
		}
	}

	return false
}

// QuoteIdentifier quotes an identifier if it needs quoting
func QuoteIdentifier(identifier string) string {
	if needsQuoting(identifier) {
		escaped := strings.ReplaceAll(identifier, `"`, `""`)
		return `"` + escaped + `"`
	}
	return identifier
}

// QuoteQualifiedName quotes each dot-separated part of a target name
func QuoteQualifiedName(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// unquoteIdentifier removes quotes from an identifier if present
func unquoteIdentifier(identifier string) string {
	if isQuoted(identifier) {
		unquoted := identifier[1 : len(identifier)-1]
		return strings.ReplaceAll(unquoted, `""`, `"`)
	}
	return identifier
}

// isQuoted checks if an identifier is already quoted
func isQuoted(identifier string) bool {
	return len(identifier) >= 2 && identifier[0] == '"' && identifier[len(identifier)-1] == '"'
}

// nameStopWords are non-reserved keywords that open a clause where a name
// could otherwise be expected
var nameStopWords = map[string]bool{
	"SET": true, "NOWAIT": true, "MODE": true, "CASCADE": true,
	"RESTRICT": true, "RESTART": true, "CONTINUE": true,
}

// isNameToken reports whether tok can be (part of) an object name. Case is
// never folded: unquoted identifiers are kept as written.
func isNameToken(tok parser.Token) bool {
	switch tok.Kind {
	case parser.TokenIdent:
		return true
	case parser.TokenKeyword:
		return !tok.Reserved && !nameStopWords[tok.Upper()]
	default:
		return false
	}
}

// ReadQualifiedName reads name ( "." name )* starting at tokens[i]. It
// returns the de-quoted name and the index just past it, or "" if no name
// starts at i.
func ReadQualifiedName(tokens []parser.Token, i int) (string, int) {
	if i >= len(tokens) || !isNameToken(tokens[i]) {
		return "", i
	}

	parts := []string{unquoteIdentifier(tokens[i].Text)}
	i++
	for i+1 < len(tokens) && tokens[i].IsPunct(".") && isNameToken(tokens[i+1]) {
		parts = append(parts, unquoteIdentifier(tokens[i+1].Text))
		i += 2
	}
	return strings.Join(parts, "."), i
}
