package metadata

import (
	"strings"

	"github.com/nnaka2992/peaceful-postgresql/internal/analyzer"
	"github.com/nnaka2992/peaceful-postgresql/internal/parser"
)

// Extractor provides metadata extraction from statement tokens
type Extractor interface {
	Extract(tokens []parser.Token, operation string) map[string]interface{}
}

// extractor implements the Extractor interface
type extractor struct{}

// NewExtractor creates a new metadata extractor
func NewExtractor() Extractor {
	return &extractor{}
}

// Extract extracts metadata needed for suggestions from the tokens of one
// statement. operation is the label the analyzer gave it.
func (e *extractor) Extract(tokens []parser.Token, operation string) map[string]interface{} {
	metadata := make(map[string]interface{})

	switch operation {
	case "CREATE INDEX":
		e.extractCreateIndexMetadata(tokens, metadata)
	case "DROP INDEX":
		e.extractDropIndexMetadata(tokens, metadata)
	case "REINDEX INDEX":
		setName(metadata, "indexName", nameAfter(tokens, "INDEX"))
	case "REINDEX TABLE":
		setName(metadata, "tableName", nameAfter(tokens, "TABLE"))
	case "REINDEX SCHEMA":
		setName(metadata, "schema", nameAfter(tokens, "SCHEMA"))
	case "REINDEX DATABASE":
		setName(metadata, "database", nameAfter(tokens, "DATABASE"))
	case "ALTER TABLE":
		e.extractAlterTableMetadata(tokens, metadata)
	case "CLUSTER":
		e.extractClusterMetadata(tokens, metadata)
	case "VACUUM FULL":
		e.extractVacuumFullMetadata(tokens, metadata)
	case "LOCK TABLE":
		e.extractLockTableMetadata(tokens, metadata)
	}

	return metadata
}

// RefineOperation turns a generic "ALTER TABLE" label into the more
// specific one suggestions are keyed by, e.g. "ALTER TABLE SET NOT NULL"
func RefineOperation(operation string, metadata map[string]interface{}) string {
	if operation != "ALTER TABLE" {
		return operation
	}
	if action, ok := metadata["action"].(string); ok && action != "" {
		return operation + " " + action
	}
	return operation
}

// extractCreateIndexMetadata extracts metadata for CREATE INDEX
func (e *extractor) extractCreateIndexMetadata(tokens []parser.Token, metadata map[string]interface{}) {
	metadata["unique"] = indexOfWord(tokens, "UNIQUE") >= 0
	setName(metadata, "indexName", nameAfter(tokens, "INDEX"))

	on := indexOfWord(tokens, "ON")
	if on < 0 {
		return
	}
	i := skip(tokens, on+1, "ONLY")
	table, i := analyzer.ReadQualifiedName(tokens, i)
	setName(metadata, "tableName", table)

	if i+1 < len(tokens) && tokens[i].IsWord("USING") {
		metadata["method"] = tokens[i+1].Text
		i += 2
	}
	if i < len(tokens) && tokens[i].IsPunct("(") {
		if columns := parenNames(tokens, i); len(columns) > 0 {
			metadata["columns"] = columns
		}
	}
}

// extractDropIndexMetadata extracts metadata for DROP INDEX
func (e *extractor) extractDropIndexMetadata(tokens []parser.Token, metadata map[string]interface{}) {
	setName(metadata, "indexName", nameAfter(tokens, "INDEX"))
}

// extractAlterTableMetadata records the table, the kind of change and the
// columns or constraint it touches
func (e *extractor) extractAlterTableMetadata(tokens []parser.Token, metadata map[string]interface{}) {
	t := indexOfWord(tokens, "TABLE")
	if t < 0 {
		return
	}
	table, i := analyzer.ReadQualifiedName(tokens, skip(tokens, t+1, "IF", "EXISTS", "ONLY"))
	if table == "" {
		return
	}
	metadata["tableName"] = table
	if i < len(tokens) && tokens[i].IsPunct("*") {
		i++
	}
	if i >= len(tokens) {
		return
	}

	switch {
	case tokens[i].IsWord("ADD"):
		extractAddMetadata(tokens, i+1, metadata)
	case tokens[i].IsWord("ALTER"):
		extractAlterColumnMetadata(tokens, i+1, metadata)
	default:
		metadata["action"] = tokens[i].Upper()
	}
}

// extractAddMetadata handles ADD [COLUMN] and ADD [CONSTRAINT name] ...
func extractAddMetadata(tokens []parser.Token, i int, metadata map[string]interface{}) {
	if i < len(tokens) && tokens[i].IsWord("CONSTRAINT") {
		name, next := analyzer.ReadQualifiedName(tokens, i+1)
		setName(metadata, "constraintName", name)
		i = next
	}
	if i >= len(tokens) {
		return
	}

	switch {
	case tokens[i].IsWord("PRIMARY"):
		metadata["action"] = "ADD PRIMARY KEY"
		setColumns(tokens, skip(tokens, i+1, "KEY"), metadata)
	case tokens[i].IsWord("UNIQUE"):
		metadata["action"] = "ADD UNIQUE"
		setColumns(tokens, i+1, metadata)
	case tokens[i].IsWord("CHECK"):
		metadata["action"] = "ADD CHECK"
		if i+1 < len(tokens) && tokens[i+1].IsPunct("(") {
			metadata["checkExpression"] = render(tokens[i+2 : closing(tokens, i+1)])
		}
	case tokens[i].IsWord("FOREIGN"):
		metadata["action"] = "ADD FOREIGN KEY"
		i = skip(tokens, i+1, "KEY")
		setColumns(tokens, i, metadata)
		if ref := indexOfWord(tokens[i:], "REFERENCES"); ref >= 0 {
			name, _ := analyzer.ReadQualifiedName(tokens, i+ref+1)
			setName(metadata, "referencedTable", name)
		}
	default:
		metadata["action"] = "ADD COLUMN"
		i = skip(tokens, i, "COLUMN", "IF", "NOT", "EXISTS")
		if i >= len(tokens) {
			return
		}
		metadata["columnName"] = unquote(tokens[i].Text)
		end := scanUntil(tokens, i+1, "DEFAULT", "NOT", "NULL", "CONSTRAINT", "PRIMARY", "UNIQUE",
			"REFERENCES", "CHECK", "COLLATE", "GENERATED")
		if dataType := render(tokens[i+1 : end]); dataType != "" {
			metadata["dataType"] = dataType
		}
		if end < len(tokens) && tokens[end].IsWord("DEFAULT") {
			stop := scanUntil(tokens, end+1, "NOT", "NULL", "CONSTRAINT", "PRIMARY", "UNIQUE",
				"REFERENCES", "CHECK", "COLLATE")
			metadata["defaultValue"] = render(tokens[end+1 : stop])
		}
	}
}

// extractAlterColumnMetadata handles ALTER [COLUMN] name TYPE ... and
// ALTER [COLUMN] name SET NOT NULL
func extractAlterColumnMetadata(tokens []parser.Token, i int, metadata map[string]interface{}) {
	i = skip(tokens, i, "COLUMN")
	if i >= len(tokens) {
		return
	}
	metadata["columnName"] = unquote(tokens[i].Text)
	i++

	switch {
	case i < len(tokens) && tokens[i].IsWord("TYPE"):
		metadata["action"] = "ALTER COLUMN TYPE"
		end := scanUntil(tokens, i+1, "USING", "COLLATE")
		metadata["newType"] = render(tokens[i+1 : end])
	case i+2 < len(tokens) && tokens[i].IsWord("SET") && tokens[i+1].IsWord("DATA") && tokens[i+2].IsWord("TYPE"):
		metadata["action"] = "ALTER COLUMN TYPE"
		end := scanUntil(tokens, i+3, "USING", "COLLATE")
		metadata["newType"] = render(tokens[i+3 : end])
	case i+2 < len(tokens) && tokens[i].IsWord("SET") && tokens[i+1].IsWord("NOT") && tokens[i+2].IsWord("NULL"):
		metadata["action"] = "SET NOT NULL"
	default:
		metadata["action"] = "ALTER COLUMN"
	}
}

// extractClusterMetadata extracts metadata for CLUSTER
func (e *extractor) extractClusterMetadata(tokens []parser.Token, metadata map[string]interface{}) {
	i := skip(tokens, 1, "VERBOSE")
	first, i := analyzer.ReadQualifiedName(tokens, i)
	if first == "" {
		return
	}

	switch {
	case i < len(tokens) && tokens[i].IsWord("USING"):
		metadata["tableName"] = first
		index, _ := analyzer.ReadQualifiedName(tokens, i+1)
		setName(metadata, "indexName", index)
	case i < len(tokens) && tokens[i].IsWord("ON"):
		metadata["indexName"] = first
		table, _ := analyzer.ReadQualifiedName(tokens, i+1)
		setName(metadata, "tableName", table)
	default:
		metadata["tableName"] = first
	}
}

// extractVacuumFullMetadata extracts metadata for VACUUM FULL
func (e *extractor) extractVacuumFullMetadata(tokens []parser.Token, metadata map[string]interface{}) {
	i := 1
	for i < len(tokens) {
		if tokens[i].IsPunct("(") {
			i = closing(tokens, i) + 1
			continue
		}
		if !tokens[i].IsWord("FULL", "FREEZE", "VERBOSE", "ANALYZE", "ANALYSE") {
			break
		}
		i++
	}
	table, _ := analyzer.ReadQualifiedName(tokens, i)
	setName(metadata, "tableName", table)
}

// extractLockTableMetadata extracts metadata for LOCK TABLE
func (e *extractor) extractLockTableMetadata(tokens []parser.Token, metadata map[string]interface{}) {
	table, _ := analyzer.ReadQualifiedName(tokens, skip(tokens, 1, "TABLE", "ONLY"))
	setName(metadata, "tableName", table)

	if in := indexOfWord(tokens, "IN"); in >= 0 {
		end := scanUntil(tokens, in+1, "MODE")
		metadata["lockMode"] = render(tokens[in+1 : end])
	} else {
		metadata["lockMode"] = "ACCESS EXCLUSIVE"
	}
}

func setName(metadata map[string]interface{}, key, name string) {
	if name != "" {
		metadata[key] = name
	}
}

func setColumns(tokens []parser.Token, i int, metadata map[string]interface{}) {
	if i < len(tokens) && tokens[i].IsPunct("(") {
		if columns := parenNames(tokens, i); len(columns) > 0 {
			metadata["columns"] = columns
		}
	}
}

// nameAfter reads the name following the first occurrence of word,
// skipping IF [NOT] EXISTS, CONCURRENTLY and ONLY
func nameAfter(tokens []parser.Token, word string) string {
	i := indexOfWord(tokens, word)
	if i < 0 {
		return ""
	}
	name, _ := analyzer.ReadQualifiedName(tokens, skip(tokens, i+1, "IF", "NOT", "EXISTS", "CONCURRENTLY", "ONLY"))
	return name
}

func indexOfWord(tokens []parser.Token, word string) int {
	for i, tok := range tokens {
		if tok.IsWord(word) {
			return i
		}
	}
	return -1
}

func skip(tokens []parser.Token, i int, words ...string) int {
	for i < len(tokens) && tokens[i].IsWord(words...) {
		i++
	}
	return i
}

// closing returns the index of the parenthesis closing the one at i, or
// len(tokens)-1 if it is never closed
func closing(tokens []parser.Token, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch {
		case tokens[i].IsPunct("("):
			depth++
		case tokens[i].IsPunct(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(tokens) - 1
}

// scanUntil returns the index of the first top-level token that is a comma,
// a closing parenthesis or one of words
func scanUntil(tokens []parser.Token, i int, words ...string) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch {
		case tokens[i].IsPunct("("):
			depth++
		case tokens[i].IsPunct(")"):
			if depth == 0 {
				return i
			}
			depth--
		case depth == 0 && (tokens[i].IsPunct(",") || tokens[i].IsPunct(";") || tokens[i].IsWord(words...)):
			return i
		}
	}
	return len(tokens)
}

// parenNames returns the leading name of each element of the parenthesized
// list starting at i
func parenNames(tokens []parser.Token, i int) []string {
	end := closing(tokens, i)
	var names []string
	expect := true
	depth := 0
	for j := i + 1; j < end; j++ {
		switch {
		case tokens[j].IsPunct("("):
			depth++
		case tokens[j].IsPunct(")"):
			depth--
		case depth == 0 && tokens[j].IsPunct(","):
			expect = true
		case expect && depth == 0:
			names = append(names, unquote(tokens[j].Text))
			expect = false
		}
	}
	return names
}

// render joins token text back into readable SQL
func render(tokens []parser.Token) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			prev := tokens[i-1]
			glued := tok.IsPunct("(") || tok.IsPunct(")") || tok.IsPunct(",") || tok.IsPunct(".") ||
				prev.IsPunct("(") || prev.IsPunct(".")
			if !glued {
				b.WriteByte(' ')
			}
		}
		b.WriteString(tok.Text)
	}
	return b.String()
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
