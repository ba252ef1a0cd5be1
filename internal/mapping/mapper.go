// Package mapping turns structured log records into table entities.
package mapping

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go-tablelogger/internal/models"
)

// Scope keys with special treatment while flattening.
const (
	OriginalFormatKey = "{OriginalFormat}"
	RequestIDKey      = "RequestId"
	CorrelationIDKey  = "CorrelationId"
)

// ErrMapping is returned when a record cannot be converted, typically because a scope
// value failed to render as text.
var ErrMapping = errors.New("log record mapping failed")

// Mapper converts LogRecords to LogEntities. It is safe for concurrent use when its
// RowKeyGenerator is.
type Mapper struct {
	rowKeys RowKeyGenerator
}

// NewMapper returns a Mapper that takes row keys from rowKeys, or from a randomly
// seeded RandomRowKeys when rowKeys is nil.
func NewMapper(rowKeys RowKeyGenerator) *Mapper {
	if rowKeys == nil {
		rowKeys = NewRandomRowKeys(nil)
	}
	return &Mapper{rowKeys: rowKeys}
}

// Map builds the entity for one record. Scopes are flattened into Data in a single pass
// that also picks up RequestId and CorrelationId; the last occurrence of a key wins.
func (m *Mapper) Map(record models.LogRecord) (*models.LogEntity, error) {
	e := &models.LogEntity{
		LogLevel:       record.LogLevel,
		LogName:        record.LogName,
		EventId:        record.EventID,
		Message:        record.Message,
		LogLevelString: record.LogLevelString,
		EventTime:      record.EventTime,
	}
	e.PartitionKey = record.NodeName
	e.RowKey = m.rowKeys.Next(record.EventTime)
	e.Timestamp = record.EventTime

	if record.Exception != nil {
		exc, err := MarshalException(record.Exception)
		if err != nil {
			return nil, fmt.Errorf("%w: exception: %v", ErrMapping, err)
		}
		e.Exception = exc
	}

	data := make(map[string]string)
	opaque := 0
	for i, scope := range record.Scopes {
		switch scope.Kind() {
		case models.ScopeKindMap, models.ScopeKindPair:
			for _, kv := range scope.Pairs() {
				if kv.Key == OriginalFormatKey {
					continue
				}
				s, err := stringify(kv.Value)
				if err != nil {
					return nil, fmt.Errorf("%w: scope key %q: %v", ErrMapping, kv.Key, err)
				}
				data[kv.Key] = s
				switch kv.Key {
				case RequestIDKey:
					e.RequestId = s
				case CorrelationIDKey:
					e.CorrelationId = s
				}
			}
		case models.ScopeKindOpaque:
			s, err := stringify(scope.Value())
			if err != nil {
				return nil, fmt.Errorf("%w: scope %d: %v", ErrMapping, i, err)
			}
			data["scope:"+strconv.Itoa(opaque)] = s
			opaque++
		default:
			return nil, fmt.Errorf("%w: scope %d has no kind", ErrMapping, i)
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrMapping, err)
	}
	e.Data = string(b)
	return e, nil
}

// MapAll maps records in order and stops at the first failure.
func (m *Mapper) MapAll(records []models.LogRecord) ([]*models.LogEntity, error) {
	out := make([]*models.LogEntity, 0, len(records))
	for _, r := range records {
		e, err := m.Map(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// stringify renders a scope value. A method that panics, such as String on a nil
// pointer receiver, fails the value instead of the caller.
func stringify(v any) (s string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s, err = "", fmt.Errorf("render %T: panic: %v", v, rec)
		}
	}()
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	case error:
		return x.Error(), nil
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(x), nil
	}
}
