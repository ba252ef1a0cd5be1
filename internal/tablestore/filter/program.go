package filter

import (
	"fmt"

	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// Program is a compiled query: a filter plus an optional projection.
// It is safe for concurrent use.
type Program struct {
	root     Node
	selected []string
}

// Compile parses filter and records the projected property names.
// An empty selection keeps every property.
func Compile(filter string, selected []string) (*Program, error) {
	root, err := Parse(filter)
	if err != nil {
		return nil, err
	}
	return &Program{root: root, selected: selected}, nil
}

// Apply evaluates the filter against an entity body. When it matches, the projected
// body is returned with ok set.
func (p *Program) Apply(body []byte) (out []byte, ok bool, err error) {
	parser := parserPool.Get()
	defer parserPool.Put(parser)

	v, err := parser.ParseBytes(body)
	if err != nil {
		return nil, false, fmt.Errorf("parse stored entity: %w", err)
	}
	if !Match(p.root, v) {
		return nil, false, nil
	}
	if len(p.selected) == 0 {
		return append([]byte(nil), body...), true, nil
	}

	var a fastjson.Arena
	projected := a.NewObject()
	for _, name := range p.selected {
		if field := v.Get(name); field != nil {
			projected.Set(name, field)
		}
	}
	return projected.MarshalTo(nil), true, nil
}

// PartitionKey returns the partition an "and"-chain of the filter pins down with
// "PartitionKey eq '<value>'", letting stores narrow their scan.
func (p *Program) PartitionKey() (string, bool) {
	return partitionKey(p.root)
}

func partitionKey(n Node) (string, bool) {
	switch e := n.(type) {
	case CompareExpr:
		if e.Property == "PartitionKey" && e.Op == "eq" && e.Value.Kind == LiteralString {
			return e.Value.Str, true
		}
	case BinaryExpr:
		if e.Op != "and" {
			return "", false
		}
		if pk, ok := partitionKey(e.Left); ok {
			return pk, true
		}
		return partitionKey(e.Right)
	}
	return "", false
}
