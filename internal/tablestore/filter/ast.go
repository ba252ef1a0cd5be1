package filter

import "time"

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
}

// BinaryExpr represents a logical "and" / "or".
type BinaryExpr struct {
	Op    string
	Left  Node
	Right Node
}

func (BinaryExpr) node() {}

// NotExpr negates its inner expression.
type NotExpr struct {
	Expr Node
}

func (NotExpr) node() {}

// CompareExpr compares an entity property against a literal.
type CompareExpr struct {
	Property string
	Op       string // eq ne gt ge lt le
	Value    Literal
}

func (CompareExpr) node() {}

// LiteralKind tags the type of a Literal.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralDateTime
	LiteralGuid
)

// Literal is a typed constant.
type Literal struct {
	Kind LiteralKind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}
