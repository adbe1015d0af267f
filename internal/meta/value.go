// Package meta holds the JSON value type stored in metadata columns.
//
// Value is a closed union: null, bool, number, string, list or map. Types
// that end up in metadata provide their own conversion to Value instead of
// being reflected over at write time.
package meta

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is immutable once built; With returns a modified copy.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []Value
	m    map[string]Value
}

func Null() Value               { return Value{} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Number(n float64) Value    { return Value{kind: KindNumber, n: n} }
func Int(n int) Value           { return Value{kind: KindNumber, n: float64(n)} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func List(items ...Value) Value { return Value{kind: KindList, l: append([]Value(nil), items...)} }

// Map copies fields into a new map value.
func Map(fields map[string]Value) Value {
	m := make(map[string]Value, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return Value{kind: KindMap, m: m}
}

// OptString is String(*s), or Null when s is nil.
func OptString(s *string) Value {
	if s == nil {
		return Null()
	}
	return String(*s)
}

// StringOrNull maps the empty string to Null.
func StringOrNull(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)  { return v.s, v.kind == KindString }
func (v Value) AsList() ([]Value, bool)   { return v.l, v.kind == KindList }
func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// Get looks a key up in a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	f, ok := v.m[key]
	return f, ok
}

// With returns a map value with key set. Non-map values are replaced by a
// fresh map.
func (v Value) With(key string, val Value) Value {
	m := make(map[string]Value, len(v.m)+1)
	if v.kind == KindMap {
		for k, f := range v.m {
			m[k] = f
		}
	}
	m[key] = val
	return Value{kind: KindMap, m: m}
}

// Keys returns the keys of a map value in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("meta: unknown kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := fromDecoded(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// fromDecoded converts the fixed set of types encoding/json produces.
func fromDecoded(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindList, l: items}, nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Value{kind: KindMap, m: fields}, nil
	default:
		return Value{}, fmt.Errorf("meta: unexpected decoded type %T", raw)
	}
}

// Value implements driver.Valuer so a Value can be written to a JSONB column.
// The text form is used because drivers send []byte as bytea.
func (v Value) Value() (driver.Value, error) {
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB columns.
func (v *Value) Scan(src interface{}) error {
	switch t := src.(type) {
	case nil:
		*v = Null()
		return nil
	case []byte:
		return v.UnmarshalJSON(t)
	case string:
		return v.UnmarshalJSON([]byte(t))
	default:
		return fmt.Errorf("meta: cannot scan %T", src)
	}
}
