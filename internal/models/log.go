package models

import (
	"sort"
	"time"

	"go-tablelogger/internal/tablestore"
)

// LogRecord is one structured log event as emitted by a logger, before it is mapped
// to storage. It is treated as immutable once built.
type LogRecord struct {
	EventTime      time.Time
	NodeName       string
	LogLevel       int
	LogLevelString string
	LogName        string
	EventID        int
	Message        string
	Exception      any // nil when the event carries no error
	Scopes         []Scope
}

// ScopeKind tags the variant held by a Scope.
type ScopeKind int

const (
	ScopeKindMap ScopeKind = iota + 1
	ScopeKindPair
	ScopeKindOpaque
)

// KeyValue is one entry of a map or pair scope.
type KeyValue struct {
	Key   string
	Value any
}

// Scope is ambient context active when a record was emitted: an ordered list of
// key/value pairs, a single pair, or an opaque value without keys.
type Scope struct {
	kind  ScopeKind
	pairs []KeyValue
	value any
}

// MapScope builds a keyed scope. Pairs keep their order; later keys win when flattened.
func MapScope(pairs ...KeyValue) Scope {
	return Scope{kind: ScopeKindMap, pairs: pairs}
}

// ScopeFromMap builds a keyed scope from m with keys in sorted order.
func ScopeFromMap(m map[string]any) Scope {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, KeyValue{Key: k, Value: m[k]})
	}
	return MapScope(pairs...)
}

// PairScope builds a scope holding a single key/value pair.
func PairScope(key string, value any) Scope {
	return Scope{kind: ScopeKindPair, pairs: []KeyValue{{Key: key, Value: value}}}
}

// OpaqueScope builds a scope around a value that has no keys.
func OpaqueScope(value any) Scope {
	return Scope{kind: ScopeKindOpaque, value: value}
}

func (s Scope) Kind() ScopeKind { return s.kind }

// Pairs returns the entries of a map or pair scope.
func (s Scope) Pairs() []KeyValue { return s.pairs }

// Value returns the payload of an opaque scope.
func (s Scope) Value() any { return s.value }

// LogEntity is the stored form of a LogRecord. The partition key is the node name.
type LogEntity struct {
	tablestore.TableEntity
	LogLevel       int       `json:"LogLevel"`
	LogName        string    `json:"LogName"`
	EventId        int       `json:"EventId"`
	Message        string    `json:"Message"`
	LogLevelString string    `json:"LogLevelString"`
	Data           string    `json:"Data"`
	Exception      string    `json:"Exception,omitempty"`
	RequestId      string    `json:"RequestId,omitempty"`
	CorrelationId  string    `json:"CorrelationId,omitempty"`
	EventTime      time.Time `json:"EventTime"`
}

// NodeName reports the node that emitted the entry.
func (e *LogEntity) NodeName() string { return e.PartitionKey }
