package filter

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/valyala/fastjson"
)

const entityJSON = `{
	"PartitionKey": "node-a",
	"RowKey": "17000000000000042",
	"Timestamp": "2024-03-01T10:00:00.1234567Z",
	"LogLevel": 3,
	"Message": "it's broken",
	"Sampled": true,
	"BigCounter": "9007199254740993"
}`

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{"PartitionKey eq 'a'", []TokenType{TokenIdent, TokenCompare, TokenString, TokenEOF}},
		{"LogLevel ge 3", []TokenType{TokenIdent, TokenCompare, TokenNumber, TokenEOF}},
		{"Count lt 10L", []TokenType{TokenIdent, TokenCompare, TokenNumber, TokenEOF}},
		{"a eq true and b ne false", []TokenType{TokenIdent, TokenCompare, TokenTrue, TokenAnd, TokenIdent, TokenCompare, TokenFalse, TokenEOF}},
		{"not (x eq 1) or y eq 2", []TokenType{TokenNot, TokenLParen, TokenIdent, TokenCompare, TokenNumber, TokenRParen, TokenOr, TokenIdent, TokenCompare, TokenNumber, TokenEOF}},
		{"Timestamp gt datetime'2024-01-01T00:00:00Z'", []TokenType{TokenIdent, TokenCompare, TokenDateTime, TokenEOF}},
		{"Id eq guid'0f8fad5b-d9cb-469f-a165-70867728950e'", []TokenType{TokenIdent, TokenCompare, TokenGuid, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			for i, expected := range tt.expected {
				tok := lexer.NextToken()
				if tok.Type != expected {
					t.Errorf("token %d: expected %v, got %v (%q)", i, expected, tok.Type, tok.Value)
				}
			}
		})
	}
}

func TestLexerDoubledQuote(t *testing.T) {
	tok := NewLexer("'it''s'").NextToken()
	if tok.Type != TokenString || tok.Value != "it's" {
		t.Fatalf("got %v %q, want string \"it's\"", tok.Type, tok.Value)
	}
}

func TestParseShapes(t *testing.T) {
	node, err := Parse("(PartitionKey eq 'a') and (3 le LogLevel)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := BinaryExpr{
		Op:    "and",
		Left:  CompareExpr{Property: "PartitionKey", Op: "eq", Value: Literal{Kind: LiteralString, Str: "a"}},
		Right: CompareExpr{Property: "LogLevel", Op: "ge", Value: Literal{Kind: LiteralNumber, Num: 3}},
	}
	if diff := cmp.Diff(want, node); diff != "" {
		t.Errorf("AST mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, in := range []string{"", "   "} {
		node, err := Parse(in)
		if err != nil || node != nil {
			t.Errorf("Parse(%q) = %v, %v; want nil, nil", in, node, err)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"PartitionKey",
		"PartitionKey eq",
		"PartitionKey eq 'a' and",
		"(PartitionKey eq 'a'",
		"a eq b",
		"'a' eq 'b'",
		"PartitionKey eq 'unterminated",
		"Timestamp gt datetime'yesterday'",
		"PartitionKey eq 'a' PartitionKey",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) error = %v, want ErrSyntax", in, err)
		}
	}
}

func TestMatch(t *testing.T) {
	entity := fastjson.MustParse(entityJSON)

	tests := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"PartitionKey eq 'node-a'", true},
		{"PartitionKey eq 'node-b'", false},
		{"PartitionKey ne 'node-b'", true},
		{"RowKey gt '1699'", true},
		{"LogLevel ge 3", true},
		{"LogLevel gt 3", false},
		{"LogLevel lt 4 and LogLevel gt 2", true},
		{"LogLevel eq 1 or Message eq 'it''s broken'", true},
		{"not (LogLevel eq 3)", false},
		{"Sampled eq true", true},
		{"Sampled eq false", false},
		{"Timestamp ge datetime'2024-03-01T10:00:00Z'", true},
		{"Timestamp lt datetime'2024-03-01T10:00:00Z'", false},
		{"BigCounter gt 9007199254740000", true},
		{"Missing eq 'x'", false},
		{"Missing ne 'x'", false},
		{"LogLevel eq '3'", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			node, err := Parse(tt.filter)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := Match(node, entity); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgramApplyProjects(t *testing.T) {
	prog, err := Compile("LogLevel ge 2", []string{"RowKey", "Message", "NotThere"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out, ok, err := prog.Apply([]byte(entityJSON))
	if err != nil || !ok {
		t.Fatalf("Apply = %v, %v", ok, err)
	}
	v := fastjson.MustParseBytes(out)
	obj, _ := v.Object()
	if obj.Len() != 2 {
		t.Errorf("projected %d properties, want 2: %s", obj.Len(), out)
	}
	if got := string(v.GetStringBytes("Message")); got != "it's broken" {
		t.Errorf("Message = %q", got)
	}

	prog, _ = Compile("LogLevel ge 4", nil)
	if _, ok, _ := prog.Apply([]byte(entityJSON)); ok {
		t.Error("filter LogLevel ge 4 should not match")
	}
}

func TestProgramPartitionKey(t *testing.T) {
	tests := []struct {
		filter string
		pk     string
		ok     bool
	}{
		{"PartitionKey eq 'a'", "a", true},
		{"(LogLevel ge 3) and (PartitionKey eq 'b')", "b", true},
		{"PartitionKey eq 'a' or PartitionKey eq 'b'", "", false},
		{"PartitionKey ne 'a'", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		prog, err := Compile(tt.filter, nil)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tt.filter, err)
		}
		pk, ok := prog.PartitionKey()
		if pk != tt.pk || ok != tt.ok {
			t.Errorf("PartitionKey(%q) = %q, %v; want %q, %v", tt.filter, pk, ok, tt.pk, tt.ok)
		}
	}
}
