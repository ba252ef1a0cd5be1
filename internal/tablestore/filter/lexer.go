package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenNumber
	TokenDateTime
	TokenGuid
	TokenTrue
	TokenFalse
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
	TokenNot
	TokenCompare // eq ne gt ge lt le
	TokenIllegal
)

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "end of filter"
	}
	return fmt.Sprintf("%q at %d", t.Value, t.Pos)
}

// Lexer tokenizes filter expressions.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: start}
	case ch == ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: start}
	case ch == '\'':
		return l.readString(TokenString, start)
	case ch == '-' || isDigit(ch):
		return l.readNumber()
	case isIdentStart(ch):
		return l.readIdent()
	}

	l.pos++
	return Token{Type: TokenIllegal, Value: string(ch), Pos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// readString reads a single-quoted literal. A doubled quote stands for one quote.
func (l *Lexer) readString(typ TokenType, start int) Token {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				sb.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return Token{Type: typ, Value: sb.String(), Pos: start}
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return Token{Type: TokenIllegal, Value: "unterminated string", Pos: start}
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.' || l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		l.pos++
	}
	value := l.input[start:l.pos]
	// Int64 literals carry an L suffix.
	if l.pos < len(l.input) && (l.input[l.pos] == 'L' || l.input[l.pos] == 'l') {
		l.pos++
	}
	if value == "-" {
		return Token{Type: TokenIllegal, Value: value, Pos: start}
	}
	return Token{Type: TokenNumber, Value: value, Pos: start}
}

func (l *Lexer) readIdent() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	value := l.input[start:l.pos]

	// Typed literals: datetime'...' and guid'...'
	if l.pos < len(l.input) && l.input[l.pos] == '\'' {
		switch strings.ToLower(value) {
		case "datetime":
			return l.readString(TokenDateTime, start)
		case "guid":
			return l.readString(TokenGuid, start)
		}
	}

	lower := strings.ToLower(value)
	switch lower {
	case "and":
		return Token{Type: TokenAnd, Value: lower, Pos: start}
	case "or":
		return Token{Type: TokenOr, Value: lower, Pos: start}
	case "not":
		return Token{Type: TokenNot, Value: lower, Pos: start}
	case "true":
		return Token{Type: TokenTrue, Value: lower, Pos: start}
	case "false":
		return Token{Type: TokenFalse, Value: lower, Pos: start}
	case "eq", "ne", "gt", "ge", "lt", "le":
		return Token{Type: TokenCompare, Value: lower, Pos: start}
	}

	return Token{Type: TokenIdent, Value: value, Pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
