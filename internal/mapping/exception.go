package mapping

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// MarshalException renders an exception value as JSON. Reference cycles are broken by
// dropping the property or element that would lead back to a value on the current path.
// Errors render as {"Type","Message","Fields","InnerError"}; joined errors use "InnerErrors".
func MarshalException(exception any) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = "", fmt.Errorf("render %T: panic: %v", exception, rec)
		}
	}()
	w := walker{path: make(map[visit]struct{})}
	tree, _ := w.walk(reflect.ValueOf(exception))
	b, err := json.Marshal(tree)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type visit struct {
	typ reflect.Type
	ptr uintptr
}

type walker struct {
	path map[visit]struct{}
}

// walk converts v into a JSON-encodable tree. ok is false when v closes a cycle.
func (w *walker) walk(v reflect.Value) (out any, ok bool) {
	if !v.IsValid() {
		return nil, true
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return w.walk(v.Elem())
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, true
		}
		if v.Kind() != reflect.Slice || v.Len() > 0 {
			key := visit{typ: v.Type(), ptr: v.Pointer()}
			if _, seen := w.path[key]; seen {
				return nil, false
			}
			w.path[key] = struct{}{}
			defer delete(w.path, key)
		}
	}

	if v.CanInterface() {
		switch x := v.Interface().(type) {
		case json.Marshaler, encoding.TextMarshaler:
			return x, true
		case error:
			return w.walkError(v, x), true
		}
	}

	switch v.Kind() {
	case reflect.Pointer:
		return w.walk(v.Elem())
	case reflect.Struct:
		return w.walkStruct(v, false), true
	case reflect.Map:
		m := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if val, ok := w.walk(iter.Value()); ok {
				m[stringKey(iter.Key())] = val
			}
		}
		return m, true
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 && v.CanInterface() {
			return v.Interface(), true
		}
		items := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if val, ok := w.walk(v.Index(i)); ok {
				items = append(items, val)
			}
		}
		return items, true
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v.Complex()), true
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return nonFinite(f), true
		}
	}
	if v.CanInterface() {
		return v.Interface(), true
	}
	return nil, false
}

func (w *walker) walkError(v reflect.Value, err error) map[string]any {
	out := map[string]any{
		"Type":    v.Type().String(),
		"Message": err.Error(),
	}
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		if fields := w.walkStruct(v, true); len(fields) > 0 {
			out["Fields"] = fields
		}
	}

	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			if rendered, ok := w.walk(reflect.ValueOf(inner)); ok {
				out["InnerError"] = rendered
			}
		}
	case interface{ Unwrap() []error }:
		var inners []any
		for _, inner := range u.Unwrap() {
			if rendered, ok := w.walk(reflect.ValueOf(inner)); ok {
				inners = append(inners, rendered)
			}
		}
		if len(inners) > 0 {
			out["InnerErrors"] = inners
		}
	}
	return out
}

// walkStruct renders exported fields. skipErrors leaves out error-typed fields, which
// an error already exposes through Unwrap.
func (w *walker) walkStruct(v reflect.Value, skipErrors bool) map[string]any {
	t := v.Type()
	m := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("json") == "-" {
			continue
		}
		if skipErrors && f.Type == errorType {
			continue
		}
		if val, ok := w.walk(v.Field(i)); ok {
			m[f.Name] = val
		}
	}
	return m
}

func stringKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if s, err := stringify(k.Interface()); err == nil {
			return s
		}
	}
	return k.String()
}

// nonFinite names the float values JSON cannot carry as numbers.
func nonFinite(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	default:
		return "-Infinity"
	}
}
