package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// Match evaluates the AST node against an entity object and returns true if it matches.
func Match(node Node, entity *fastjson.Value) bool {
	if node == nil {
		return true // no filter means match all
	}

	switch n := node.(type) {
	case BinaryExpr:
		return evalBinary(n, entity)
	case NotExpr:
		return !Match(n.Expr, entity)
	case CompareExpr:
		return evalCompare(n, entity)
	default:
		return false
	}
}

func evalBinary(expr BinaryExpr, entity *fastjson.Value) bool {
	switch expr.Op {
	case "and":
		return Match(expr.Left, entity) && Match(expr.Right, entity)
	case "or":
		return Match(expr.Left, entity) || Match(expr.Right, entity)
	default:
		return false
	}
}

// evalCompare compares a property with a literal. Missing properties and type
// mismatches never match.
func evalCompare(expr CompareExpr, entity *fastjson.Value) bool {
	prop := entity.Get(expr.Property)
	if prop == nil || prop.Type() == fastjson.TypeNull {
		return false
	}

	var c int
	switch expr.Value.Kind {
	case LiteralString:
		if prop.Type() != fastjson.TypeString {
			return false
		}
		c = strings.Compare(string(prop.GetStringBytes()), expr.Value.Str)
	case LiteralGuid:
		if prop.Type() != fastjson.TypeString {
			return false
		}
		c = strings.Compare(strings.ToLower(string(prop.GetStringBytes())), strings.ToLower(expr.Value.Str))
	case LiteralNumber:
		n, ok := number(prop)
		if !ok {
			return false
		}
		c = compareFloat(n, expr.Value.Num)
	case LiteralBool:
		var b bool
		switch prop.Type() {
		case fastjson.TypeTrue:
			b = true
		case fastjson.TypeFalse:
			b = false
		default:
			return false
		}
		c = compareBool(b, expr.Value.Bool)
	case LiteralDateTime:
		if prop.Type() != fastjson.TypeString {
			return false
		}
		t, err := time.Parse(time.RFC3339Nano, string(prop.GetStringBytes()))
		if err != nil {
			return false
		}
		c = t.Compare(expr.Value.Time)
	default:
		return false
	}

	switch expr.Op {
	case "eq":
		return c == 0
	case "ne":
		return c != 0
	case "gt":
		return c > 0
	case "ge":
		return c >= 0
	case "lt":
		return c < 0
	case "le":
		return c <= 0
	default:
		return false
	}
}

// number reads a numeric property. Int64 values travel as strings on the wire.
func number(v *fastjson.Value) (float64, bool) {
	switch v.Type() {
	case fastjson.TypeNumber:
		n, err := v.Float64()
		return n, err == nil
	case fastjson.TypeString:
		n, err := strconv.ParseFloat(string(v.GetStringBytes()), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}
