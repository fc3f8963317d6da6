package parser

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Constants for parser operations
const (
	// bomSize is the size of UTF-8 BOM in bytes
	bomSize = 3

	// initialLineNumber is the starting line number for SQL statements
	initialLineNumber = 1
)

// utf8BOM represents the UTF-8 byte order mark
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Statement represents a single SQL statement with its metadata
type Statement struct {
	// SQL is the original SQL text for this statement
	SQL string

	// LineNumber is the line number where this statement starts (1-based)
	LineNumber int

	// Tokens is the comment-free token stream of SQL
	Tokens []Token
}

// ParseResult represents the result of parsing SQL content
type ParseResult struct {
	// Statements contains all non-empty SQL statements in input order
	Statements []Statement
}

// Parser interface defines the contract for SQL parsing operations
type Parser interface {
	// ParseSQL splits and tokenizes a SQL string. It never fails.
	ParseSQL(sql string) *ParseResult

	// ParseFile reads and parses SQL from a file
	ParseFile(filepath string) (*ParseResult, error)

	// ParseFiles reads and parses multiple SQL files
	ParseFiles(filepaths []string) (*ParseResult, error)
}

// parser implements the Parser interface
type parser struct{}

// NewParser creates a new parser instance
func NewParser() Parser {
	return &parser{}
}

// ParseSQL splits SQL into statements and tokenizes each of them
func (p *parser) ParseSQL(sql string) *ParseResult {
	sql = cleanSQL(sql)

	statements := Split(sql)
	if len(statements) == 0 {
		return emptyParseResult()
	}

	return p.buildStatements(sql, statements)
}

// ParseFile reads and parses SQL from a file
func (p *parser) ParseFile(filepath string) (*ParseResult, error) {
	if filepath == "" {
		return nil, fmt.Errorf("filepath cannot be empty")
	}

	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filepath, err)
	}

	return p.ParseSQL(string(content)), nil
}

// ParseFiles reads and parses multiple SQL files
func (p *parser) ParseFiles(filepaths []string) (*ParseResult, error) {
	if len(filepaths) == 0 {
		return emptyParseResult(), nil
	}

	// Estimate 10 statements per file
	allStatements := make([]Statement, 0, len(filepaths)*10)

	for _, filepath := range filepaths {
		result, err := p.ParseFile(filepath)
		if err != nil {
			return nil, err
		}
		allStatements = append(allStatements, result.Statements...)
	}

	return &ParseResult{Statements: allStatements}, nil
}

// Split divides a SQL batch into statements. Semicolons inside literals,
// quoted identifiers and comments do not split. Empty and comment-only
// segments are dropped. When the scanner rejects the input the batch is
// split by splitQuoted instead, so a broken statement only swallows the
// text after it.
func Split(sql string) []string {
	sql = cleanSQL(sql)
	if strings.TrimSpace(sql) == "" {
		return nil
	}

	segments, err := pg_query.SplitWithScanner(sql, true)
	if err != nil {
		segments = splitQuoted(sql)
	}

	statements := make([]string, 0, len(segments))
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" || isCommentOnly(segment) {
			continue
		}
		statements = append(statements, segment)
	}
	return statements
}

// splitQuoted splits on semicolons outside string literals, quoted
// identifiers, dollar-quoted bodies and comments. An unterminated quote or
// comment runs to the end of the input.
func splitQuoted(sql string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(sql); {
		switch c := sql[i]; {
		case c == ';':
			segments = append(segments, sql[start:i])
			i++
			start = i
		case c == '\'' || c == '"':
			i = skipQuoted(sql, i+1, c)
		case c == '-' && strings.HasPrefix(sql[i:], "--"):
			if end := strings.IndexByte(sql[i:], '\n'); end >= 0 {
				i += end + 1
			} else {
				i = len(sql)
			}
		case c == '/' && strings.HasPrefix(sql[i:], "/*"):
			i = skipBlockComment(sql, i+2)
		case c == '$':
			if tag := dollarTag(sql[i:]); tag != "" {
				if end := strings.Index(sql[i+len(tag):], tag); end >= 0 {
					i += len(tag) + end + len(tag)
				} else {
					i = len(sql)
				}
			} else {
				i++
			}
		default:
			i++
		}
	}
	return append(segments, sql[start:])
}

// skipQuoted returns the index after the closing quote. A doubled quote is
// an escaped quote.
func skipQuoted(sql string, i int, quote byte) int {
	for i < len(sql) {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(sql)
}

// skipBlockComment returns the index after the comment closing at depth zero
func skipBlockComment(sql string, i int) int {
	depth := 1
	for i < len(sql) {
		switch {
		case strings.HasPrefix(sql[i:], "/*"):
			depth++
			i += 2
		case strings.HasPrefix(sql[i:], "*/"):
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return len(sql)
}

// dollarTag returns the opening "$tag$" at the start of s, or "" when s does
// not start one. Positional parameters such as $1 are not tags.
func dollarTag(s string) string {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1]
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80:
		case c >= '0' && c <= '9' && i > 1:
		default:
			return ""
		}
	}
	return ""
}

// buildStatements locates each statement in the original SQL and tokenizes it
func (p *parser) buildStatements(originalSQL string, statements []string) *ParseResult {
	result := &ParseResult{
		Statements: make([]Statement, 0, len(statements)),
	}

	offset := 0
	for _, stmtSQL := range statements {
		lineNum := initialLineNumber
		// Find where this statement appears in the original SQL
		if idx := strings.Index(originalSQL[offset:], stmtSQL); idx >= 0 {
			stmtStart := offset + idx
			lineNum = calculateLineNumber(originalSQL, stmtStart)
			offset = stmtStart + len(stmtSQL)
		} else {
			lineNum = calculateLineNumber(originalSQL, offset)
		}

		result.Statements = append(result.Statements, Statement{
			SQL:        stmtSQL,
			LineNumber: lineNum,
			Tokens:     Tokenize(stmtSQL),
		})
	}

	return result
}

// isCommentOnly reports whether a segment contains nothing but comments.
// A segment the scanner cannot read is kept so later stages can decide.
func isCommentOnly(segment string) bool {
	scan, err := pg_query.Scan(segment)
	if err != nil {
		return false
	}
	for _, tok := range scan.GetTokens() {
		if !isComment(tok.GetToken()) {
			return false
		}
	}
	return true
}

// cleanSQL removes BOM and normalizes the SQL string
func cleanSQL(sql string) string {
	return string(stripBOM([]byte(sql)))
}

// emptyParseResult returns an empty ParseResult
func emptyParseResult() *ParseResult {
	return &ParseResult{Statements: []Statement{}}
}

// calculateLineNumber calculates the line number for a given position in the SQL string
func calculateLineNumber(sql string, position int) int {
	if position == 0 {
		return initialLineNumber
	}

	lineNumber := initialLineNumber
	for i := 0; i < position && i < len(sql); i++ {
		if sql[i] == '\n' {
			lineNumber++
		}
	}
	return lineNumber
}

// stripBOM removes the UTF-8 BOM if present
func stripBOM(content []byte) []byte {
	if len(content) >= bomSize && bytes.HasPrefix(content, utf8BOM) {
		return content[bomSize:]
	}
	return content
}
