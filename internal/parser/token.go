package parser

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// TokenKind is the lexical category of a token
type TokenKind int

const (
	TokenOther TokenKind = iota
	TokenKeyword
	TokenIdent
	TokenLiteral
	TokenPunct
)

func (k TokenKind) String() string {
	switch k {
	case TokenKeyword:
		return "KEYWORD"
	case TokenIdent:
		return "IDENT"
	case TokenLiteral:
		return "LITERAL"
	case TokenPunct:
		return "PUNCT"
	default:
		return "OTHER"
	}
}

// Token is a single lexical token of a statement. Comments never appear.
type Token struct {
	// Text is the token exactly as written, quotes included
	Text string

	Kind TokenKind

	// Reserved is set for fully reserved PostgreSQL keywords, which can
	// never be used as bare identifiers
	Reserved bool
}

// Upper returns the upper-cased token text
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// IsWord reports whether the token is a keyword or an unquoted identifier
// spelled as one of words (case-insensitive)
func (t Token) IsWord(words ...string) bool {
	if t.Kind != TokenKeyword && !(t.Kind == TokenIdent && !t.IsQuoted()) {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(t.Text, w) {
			return true
		}
	}
	return false
}

// IsPunct reports whether the token is the given punctuation character
func (t Token) IsPunct(p string) bool {
	return t.Kind == TokenPunct && t.Text == p
}

// IsQuoted reports whether the token is a double-quoted identifier
func (t Token) IsQuoted() bool {
	return len(t.Text) >= 2 && t.Text[0] == '"' && t.Text[len(t.Text)-1] == '"'
}

// Tokenize scans a statement with the PostgreSQL lexer. Comments are
// dropped. Input the lexer rejects yields no tokens.
func Tokenize(sql string) []Token {
	scan, err := pg_query.Scan(sql)
	if err != nil {
		return nil
	}

	tokens := make([]Token, 0, len(scan.GetTokens()))
	for _, st := range scan.GetTokens() {
		if isComment(st.GetToken()) {
			continue
		}
		start, end := int(st.GetStart()), int(st.GetEnd())
		if start < 0 || end > len(sql) || start >= end {
			continue
		}
		tokens = append(tokens, Token{
			Text:     sql[start:end],
			Kind:     tokenKind(st, sql[start:end]),
			Reserved: st.GetKeywordKind() == pg_query.KeywordKind_RESERVED_KEYWORD,
		})
	}
	return tokens
}

func isComment(tok pg_query.Token) bool {
	return tok == pg_query.Token_SQL_COMMENT || tok == pg_query.Token_C_COMMENT
}

func tokenKind(st *pg_query.ScanToken, text string) TokenKind {
	if st.GetKeywordKind() != pg_query.KeywordKind_NO_KEYWORD {
		return TokenKeyword
	}

	switch st.GetToken() {
	case pg_query.Token_IDENT, pg_query.Token_UIDENT:
		return TokenIdent
	case pg_query.Token_SCONST, pg_query.Token_USCONST, pg_query.Token_BCONST,
		pg_query.Token_XCONST, pg_query.Token_ICONST, pg_query.Token_FCONST:
		return TokenLiteral
	}

	if len(text) == 1 && strings.ContainsAny(text, "(),.;[]*") {
		return TokenPunct
	}
	return TokenOther
}
