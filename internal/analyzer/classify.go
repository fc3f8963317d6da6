package analyzer

import "github.com/nnaka2992/peaceful-postgresql/internal/parser"

// privilegeLeads open statements that mention SELECT, UPDATE and friends
// as privilege names rather than as commands
var privilegeLeads = []string{"GRANT", "REVOKE", "COMMENT"}

// Classify returns the statement type of the first token naming one, and
// that token's index. A match outside parentheses wins over one nested
// inside them, so a WITH clause does not hide the main command. Literals
// and quoted identifiers are never matched. It returns Unknown and -1 when
// no token matches.
func Classify(tokens []parser.Token) (StatementType, int) {
	if len(tokens) > 0 && tokens[0].IsWord(privilegeLeads...) {
		return Unknown, -1
	}

	nested, nestedAt := Unknown, -1
	depth := 0
	for i, tok := range tokens {
		switch {
		case tok.IsPunct("("):
			depth++
			continue
		case tok.IsPunct(")"):
			if depth > 0 {
				depth--
			}
			continue
		}

		if tok.Kind != parser.TokenKeyword && (tok.Kind != parser.TokenIdent || tok.IsQuoted()) {
			continue
		}
		st, ok := statementKeywords[tok.Upper()]
		if !ok {
			continue
		}
		if depth == 0 {
			return st, i
		}
		if nestedAt < 0 {
			nested, nestedAt = st, i
		}
	}
	return nested, nestedAt
}
