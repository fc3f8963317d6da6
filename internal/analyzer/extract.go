package analyzer

import "github.com/nnaka2992/peaceful-postgresql/internal/parser"

// role says how a statement uses a target
type role int

const (
	// roleRead is a table read by a query (FROM/JOIN inside a SELECT)
	roleRead role = iota
	// roleWrite is a DML target, or a FROM/JOIN/USING table outside any SELECT
	roleWrite
	// roleObject is the object named by DDL or a maintenance command
	roleObject
)

type target struct {
	name string
	role role
}

// extraction is what a pattern function finds in one statement
type extraction struct {
	operation string
	object    ObjectType
	targets   []target

	// modeClause is set when a LOCK statement carries IN <mode> MODE
	modeClause bool
	modes      map[LockModeKeyword]bool
}

// alterActions are the sub-keywords that make an ALTER statement mutating
var alterActions = []string{
	"SET", "DROP", "RENAME", "ADD", "ALTER", "ATTACH", "DETACH", "INHERIT", "ENABLE", "DISABLE",
}

// extract dispatches to the pattern function for the statement type
func extract(tokens []parser.Token, st StatementType, lead int) extraction {
	switch st {
	case Select, Insert, Update, Delete:
		return extractQueryTargets(tokens, st, lead)
	case Create, Drop, Truncate:
		return extractObjectTargets(tokens, st, lead)
	case Alter:
		return extractAlterTarget(tokens, lead)
	case Lock:
		return extractLockTargets(tokens, lead)
	case Vacuum:
		return extractVacuumTargets(tokens, lead)
	case Cluster:
		return extractClusterTarget(tokens, lead)
	case Reindex:
		return extractReindexTarget(tokens, lead)
	case Unknown:
		return extraction{operation: Unknown.String()}
	}
	return extraction{operation: st.String()}
}

// queryFrame is one parenthesis level while walking a query
type queryFrame struct {
	// query is false inside function calls, column lists and the like
	query bool
	// selectScope is set once a SELECT has been seen at this level
	selectScope bool
}

// extractQueryTargets finds tables used by SELECT/INSERT/UPDATE/DELETE.
// Tables after FROM, JOIN or USING inside a SELECT are reads; the DML
// target and FROM/USING tables outside any SELECT are writes. CTE names
// are never reported.
func extractQueryTargets(tokens []parser.Token, st StatementType, lead int) extraction {
	ex := extraction{operation: st.String()}
	ctes := cteNames(tokens)
	stack := []queryFrame{{query: true, selectScope: st == Select}}

	add := func(names ...string) {
		r := roleWrite
		if stack[len(stack)-1].selectScope {
			r = roleRead
		}
		for _, name := range names {
			if name != "" && !ctes[name] {
				ex.targets = append(ex.targets, target{name: name, role: r})
			}
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.IsPunct("(") {
			next := parser.Token{}
			if i+1 < len(tokens) {
				next = tokens[i+1]
			}
			stack = append(stack, queryFrame{
				query:       next.IsWord("SELECT", "WITH", "VALUES", "INSERT", "UPDATE", "DELETE"),
				selectScope: next.IsWord("SELECT", "WITH", "VALUES"),
			})
			continue
		}
		if tok.IsPunct(")") {
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		top := &stack[len(stack)-1]
		if !top.query {
			continue
		}

		switch {
		case tok.IsWord("SELECT"):
			top.selectScope = true
		case tok.IsWord("UPDATE") && (i == lead || (i > 0 && tokens[i-1].IsPunct("("))):
			name, _ := ReadQualifiedName(tokens, skipWords(tokens, i+1, "ONLY"))
			add(name)
		case tok.IsWord("INTO") && i > 0 && tokens[i-1].IsWord("INSERT"):
			name, _ := ReadQualifiedName(tokens, i+1)
			add(name)
		case tok.IsWord("FROM", "USING"):
			add(readTableRefs(tokens, i+1, true)...)
		case tok.IsWord("JOIN"):
			add(readTableRefs(tokens, i+1, false)...)
		}
	}
	return ex
}

// readTableRefs reads the table references of a FROM-like clause starting
// at i. Function calls and subqueries are skipped; with list set, comma
// separated references are read too.
func readTableRefs(tokens []parser.Token, i int, list bool) []string {
	var names []string
	for i < len(tokens) {
		i = skipWords(tokens, i, "ONLY", "LATERAL")
		if i >= len(tokens) {
			break
		}

		if tokens[i].IsPunct("(") {
			i = skipParens(tokens, i)
		} else {
			name, next := ReadQualifiedName(tokens, i)
			if name == "" {
				break
			}
			i = next
			if i < len(tokens) && tokens[i].IsPunct("(") {
				// set-returning function, not a table
				i = skipParens(tokens, i)
			} else {
				names = append(names, name)
				if i < len(tokens) && tokens[i].IsPunct("*") {
					i++
				}
			}
		}

		i = skipAlias(tokens, i)
		if !list || i >= len(tokens) || !tokens[i].IsPunct(",") {
			break
		}
		i++
	}
	return names
}

// joinWords are non-reserved keywords that follow a table reference and
// can never be its bare alias
var joinWords = map[string]bool{
	"JOIN": true, "LEFT": true, "RIGHT": true, "FULL": true, "INNER": true,
	"CROSS": true, "NATURAL": true, "OUTER": true, "TABLESAMPLE": true,
}

// skipAlias skips "[AS] alias [(columns)]". A bare alias may be any
// non-reserved keyword except the join words.
func skipAlias(tokens []parser.Token, i int) int {
	if i < len(tokens) && tokens[i].IsWord("AS") {
		i++
		if i < len(tokens) && isNameToken(tokens[i]) {
			i++
		}
	} else if i < len(tokens) && isNameToken(tokens[i]) && !joinWords[tokens[i].Upper()] {
		i++
	} else {
		return i
	}
	if i < len(tokens) && tokens[i].IsPunct("(") {
		i = skipParens(tokens, i)
	}
	return i
}

// cteNames collects the names bound by WITH clauses
func cteNames(tokens []parser.Token) map[string]bool {
	names := make(map[string]bool)
	for i, tok := range tokens {
		if !tok.IsWord("WITH") {
			continue
		}
		j := skipWords(tokens, i+1, "RECURSIVE")
		for j < len(tokens) {
			name, next := ReadQualifiedName(tokens, j)
			if name == "" {
				break
			}
			j = next
			if j < len(tokens) && tokens[j].IsPunct("(") {
				j = skipParens(tokens, j)
			}
			if j >= len(tokens) || !tokens[j].IsWord("AS") {
				break
			}
			names[name] = true
			j = skipWords(tokens, j+1, "NOT", "MATERIALIZED")
			if j >= len(tokens) || !tokens[j].IsPunct("(") {
				break
			}
			j = skipParens(tokens, j)
			if j >= len(tokens) || !tokens[j].IsPunct(",") {
				break
			}
			j++
		}
	}
	return names
}

// extractObjectTargets finds the object of CREATE, DROP and TRUNCATE: the
// name after the first object keyword (TABLE, INDEX, SEQUENCE, VIEW,
// MATERIALIZED VIEW). DROP and TRUNCATE take comma lists, and TRUNCATE may
// omit TABLE.
func extractObjectTargets(tokens []parser.Token, st StatementType, lead int) extraction {
	ex := extraction{operation: st.String()}

	i, obj := findObjectKeyword(tokens, lead+1)
	if obj == ObjectNone {
		if st != Truncate {
			return ex
		}
		i = lead + 1
	} else {
		ex.object = obj
		ex.operation = st.String() + " " + obj.String()
	}

	start := i
	i = skipWords(tokens, i, "IF", "NOT", "EXISTS", "CONCURRENTLY", "ONLY")
	for j := start; j < i; j++ {
		if tokens[j].IsWord("CONCURRENTLY") {
			ex.operation += " CONCURRENTLY"
			break
		}
	}

	var names []string
	if st == Create {
		if name, _ := ReadQualifiedName(tokens, i); name != "" {
			names = append(names, name)
		}
	} else {
		names = readNameList(tokens, i)
	}

	for _, name := range names {
		ex.targets = append(ex.targets, target{name: name, role: roleObject})
	}
	return ex
}

// findObjectKeyword scans forward from i, stopping at the first
// parenthesis, for an object keyword. It returns the index after it.
func findObjectKeyword(tokens []parser.Token, i int) (int, ObjectType) {
	for ; i < len(tokens); i++ {
		if tokens[i].IsPunct("(") {
			break
		}
		if next, obj := readObjectKeyword(tokens, i); obj != ObjectNone {
			return next, obj
		}
	}
	return i, ObjectNone
}

// readObjectKeyword reads an object keyword at exactly i
func readObjectKeyword(tokens []parser.Token, i int) (int, ObjectType) {
	if i >= len(tokens) {
		return i, ObjectNone
	}
	tok := tokens[i]
	switch {
	case tok.IsWord("TABLE"):
		return i + 1, ObjectTable
	case tok.IsWord("INDEX"):
		return i + 1, ObjectIndex
	case tok.IsWord("SEQUENCE"):
		return i + 1, ObjectSequence
	case tok.IsWord("VIEW"):
		return i + 1, ObjectView
	case tok.IsWord("MATERIALIZED") && i+1 < len(tokens) && tokens[i+1].IsWord("VIEW"):
		return i + 2, ObjectMaterializedView
	}
	return i, ObjectNone
}

// extractAlterTarget matches ALTER <object> [IF EXISTS] [ONLY] name <action>.
// Without a mutating action the statement yields nothing.
func extractAlterTarget(tokens []parser.Token, lead int) extraction {
	ex := extraction{operation: Alter.String()}

	i, obj := readObjectKeyword(tokens, lead+1)
	if obj == ObjectNone {
		return ex
	}
	ex.object = obj
	ex.operation = Alter.String() + " " + obj.String()

	i = skipWords(tokens, i, "IF", "EXISTS", "ONLY")
	name, i := ReadQualifiedName(tokens, i)
	if name == "" {
		return ex
	}
	if i < len(tokens) && tokens[i].IsPunct("*") {
		i++
	}
	if i >= len(tokens) || !tokens[i].IsWord(alterActions...) {
		return ex
	}

	ex.targets = []target{{name: name, role: roleObject}}
	return ex
}

// extractLockTargets matches LOCK [TABLE] [ONLY] name[, ...] [IN <mode> MODE]
func extractLockTargets(tokens []parser.Token, lead int) extraction {
	ex := extraction{operation: "LOCK TABLE", object: ObjectTable}

	i := skipWords(tokens, lead+1, "TABLE", "ONLY")
	names := readNameList(tokens, i)
	if len(names) == 0 {
		return ex
	}
	for _, name := range names {
		ex.targets = append(ex.targets, target{name: name, role: roleObject})
	}

	for j := i; j < len(tokens); j++ {
		if !tokens[j].IsWord("IN") {
			continue
		}
		ex.modeClause = true
		ex.modes = make(map[LockModeKeyword]bool)
		for k := j + 1; k < len(tokens) && !tokens[k].IsWord("MODE"); k++ {
			if kw, ok := lockModeKeywords[tokens[k].Upper()]; ok && tokens[k].Kind == parser.TokenKeyword {
				ex.modes[kw] = true
			}
		}
		break
	}
	return ex
}

// extractVacuumTargets matches VACUUM FULL. The FULL option may be bare or
// inside the parenthesized option list. Plain VACUUM yields nothing.
func extractVacuumTargets(tokens []parser.Token, lead int) extraction {
	ex := extraction{operation: Vacuum.String()}

	full := false
	i := lead + 1
options:
	for i < len(tokens) {
		switch {
		case tokens[i].IsPunct("("):
			end := skipParens(tokens, i)
			if vacuumOptionsFull(tokens[i+1 : end]) {
				full = true
			}
			i = end
			continue
		case tokens[i].IsWord("FULL"):
			full = true
		case tokens[i].IsWord("FREEZE", "VERBOSE", "ANALYZE", "ANALYSE"):
		default:
			break options
		}
		i++
	}

	if !full {
		return ex
	}
	ex.operation = "VACUUM FULL"
	ex.object = ObjectTable
	for _, name := range readNameList(tokens, i) {
		ex.targets = append(ex.targets, target{name: name, role: roleObject})
	}
	return ex
}

// vacuumOptionsFull reports whether a VACUUM option list enables FULL
func vacuumOptionsFull(opts []parser.Token) bool {
	for i, tok := range opts {
		if !tok.IsWord("FULL") {
			continue
		}
		if i+1 < len(opts) && (opts[i+1].IsWord("FALSE", "OFF") || opts[i+1].Text == "0") {
			return false
		}
		return true
	}
	return false
}

// extractClusterTarget matches CLUSTER [VERBOSE] name [USING index] and the
// legacy CLUSTER index ON table form
func extractClusterTarget(tokens []parser.Token, lead int) extraction {
	ex := extraction{operation: Cluster.String(), object: ObjectTable}

	i := lead + 1
	for i < len(tokens) {
		if tokens[i].IsPunct("(") {
			i = skipParens(tokens, i)
			continue
		}
		if !tokens[i].IsWord("VERBOSE") {
			break
		}
		i++
	}

	name, i := ReadQualifiedName(tokens, i)
	if name == "" {
		return ex
	}
	if i < len(tokens) && tokens[i].IsWord("ON") {
		if table, _ := ReadQualifiedName(tokens, i+1); table != "" {
			name = table
		}
	}
	ex.targets = []target{{name: name, role: roleObject}}
	return ex
}

// extractReindexTarget matches REINDEX [(options)] {INDEX|TABLE|SCHEMA|DATABASE|SYSTEM} [CONCURRENTLY] name
func extractReindexTarget(tokens []parser.Token, lead int) extraction {
	ex := extraction{operation: Reindex.String()}

	i := lead + 1
	if i < len(tokens) && tokens[i].IsPunct("(") {
		i = skipParens(tokens, i)
	}
	if i < len(tokens) && tokens[i].IsWord("INDEX", "TABLE", "SCHEMA", "DATABASE", "SYSTEM") {
		kind := tokens[i].Upper()
		ex.operation += " " + kind
		switch kind {
		case "INDEX":
			ex.object = ObjectIndex
		case "TABLE":
			ex.object = ObjectTable
		}
		i++
	}
	i = skipWords(tokens, i, "CONCURRENTLY")

	if name, _ := ReadQualifiedName(tokens, i); name != "" {
		ex.targets = []target{{name: name, role: roleObject}}
	}
	return ex
}

// readNameList reads name [(...)] [*] ( "," name ... )*
func readNameList(tokens []parser.Token, i int) []string {
	var names []string
	for {
		i = skipWords(tokens, i, "ONLY")
		name, next := ReadQualifiedName(tokens, i)
		if name == "" {
			return names
		}
		names = append(names, name)
		i = next
		if i < len(tokens) && tokens[i].IsPunct("*") {
			i++
		}
		if i < len(tokens) && tokens[i].IsPunct("(") {
			i = skipParens(tokens, i)
		}
		if i >= len(tokens) || !tokens[i].IsPunct(",") {
			return names
		}
		i++
	}
}

// skipWords advances past any run of the given words
func skipWords(tokens []parser.Token, i int, words ...string) int {
	for i < len(tokens) && tokens[i].IsWord(words...) {
		i++
	}
	return i
}

// skipParens returns the index just past the parenthesis group opening at
// i, or len(tokens) if it is never closed
func skipParens(tokens []parser.Token, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch {
		case tokens[i].IsPunct("("):
			depth++
		case tokens[i].IsPunct(")"):
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(tokens)
}
