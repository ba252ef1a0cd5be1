package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("invalid filter expression")

// Parser parses filter expressions into an AST.
type Parser struct {
	lexer   *Lexer
	current Token
}

// Parse parses the input string and returns the AST root node.
// An empty or blank filter yields a nil node, which matches every entity.
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	p := &Parser{lexer: NewLexer(input)}
	p.advance()
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf("unexpected %s", p.current)
	}
	return node, nil
}

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// parseOr handles "or" (lowest precedence).
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

// parsePrimary handles "(expr)" and comparisons.
func (p *Parser) parsePrimary() (Node, error) {
	if p.current.Type == TokenLParen {
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, p.errorf("expected ')' but got %s", p.current)
		}
		p.advance()
		return expr, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Node, error) {
	left := p.current
	p.advance()
	if p.current.Type != TokenCompare {
		return nil, p.errorf("expected comparison operator after %s but got %s", left, p.current)
	}
	op := p.current.Value
	p.advance()
	right := p.current
	p.advance()

	switch {
	case left.Type == TokenIdent && right.Type != TokenIdent:
		lit, err := p.literal(right)
		if err != nil {
			return nil, err
		}
		return CompareExpr{Property: left.Value, Op: op, Value: lit}, nil
	case right.Type == TokenIdent && left.Type != TokenIdent:
		// "5 lt LogLevel" reads as "LogLevel gt 5".
		lit, err := p.literal(left)
		if err != nil {
			return nil, err
		}
		return CompareExpr{Property: right.Value, Op: mirror(op), Value: lit}, nil
	default:
		return nil, p.errorf("comparison needs one property and one literal, got %s and %s", left, right)
	}
}

func (p *Parser) literal(tok Token) (Literal, error) {
	switch tok.Type {
	case TokenString:
		return Literal{Kind: LiteralString, Str: tok.Value}, nil
	case TokenGuid:
		return Literal{Kind: LiteralGuid, Str: tok.Value}, nil
	case TokenTrue, TokenFalse:
		return Literal{Kind: LiteralBool, Bool: tok.Type == TokenTrue}, nil
	case TokenNumber:
		n, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return Literal{}, p.errorf("bad number %s", tok)
		}
		return Literal{Kind: LiteralNumber, Num: n}, nil
	case TokenDateTime:
		t, err := time.Parse(time.RFC3339Nano, tok.Value)
		if err != nil {
			return Literal{}, p.errorf("bad datetime %s", tok)
		}
		return Literal{Kind: LiteralDateTime, Time: t}, nil
	default:
		return Literal{}, p.errorf("expected literal but got %s", tok)
	}
}

func mirror(op string) string {
	switch op {
	case "gt":
		return "lt"
	case "ge":
		return "le"
	case "lt":
		return "gt"
	case "le":
		return "ge"
	default:
		return op
	}
}
