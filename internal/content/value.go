// Package content models knowledge payloads as a tagged variant over the
// JSON data kinds. Object key order is preserved on decode and reproduced on
// encode, so any text rendered from a Value is byte-stable across round trips.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the variant.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the kind name for diagnostics.
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
	}
	return "unknown"
}

// Value is an immutable JSON-like value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number // source literal, preserved for stable re-encoding
	str  string
	list []Value
	keys []string
	vals map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a numeric literal.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatFloat(n, 'g', -1, 64))}
}

// Int wraps an integer literal.
func Int(n int64) Value {
	return Value{kind: KindNumber, num: json.Number(strconv.FormatInt(n, 10))}
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// List wraps a sequence of values.
func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// Map builds an ordered map value. Pairs must alternate string keys and
// Values; a duplicate key overwrites in place, keeping the first position.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap creates an empty ordered map builder.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Set adds or replaces a key, preserving first-insertion order.
func (m *Map) Set(key string, v Value) *Map {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
	return m
}

// Value seals the builder into a map Value.
func (m *Map) Value() Value {
	return Value{kind: KindMap, keys: m.keys, vals: m.vals}
}

// Kind returns the variant discriminator.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsEmpty reports whether the value is null, an empty string, an empty list,
// or an empty map. Used to decide whether a knowledge category is absent.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == ""
	case KindList:
		return len(v.list) == 0
	case KindMap:
		return len(v.keys) == 0
	}
	return false
}

// Bool returns the boolean payload (false for other kinds).
func (v Value) Bool() bool { return v.b }

// Str returns the string payload (empty for other kinds).
func (v Value) Str() string { return v.str }

// Num returns the numeric payload as float64 (0 for other kinds).
func (v Value) Num() float64 {
	f, _ := v.num.Float64()
	return f
}

// Literal returns the scalar's source text: the original numeric literal,
// "true"/"false" for booleans, the raw string for strings, "" for null.
func (v Value) Literal() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return string(v.num)
	case KindString:
		return v.str
	}
	return ""
}

// Items returns the list elements (nil for other kinds).
func (v Value) Items() []Value { return v.list }

// Keys returns map keys in insertion order (nil for other kinds).
func (v Value) Keys() []string { return v.keys }

// Get returns the value for a map key; the null value when absent.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Value{}
	}
	return v.vals[key]
}

// Len returns the element count for lists and maps, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.keys)
	}
	return 0
}

// FromJSON decodes a JSON document into a Value, preserving object key order
// and numeric literals.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	// Reject trailing garbage after the first document
	if _, err := dec.Token(); err == nil {
		return Value{}, fmt.Errorf("unexpected trailing content after JSON value")
	}
	return v, nil
}

// MustFromJSON is FromJSON for literals known to be valid; it panics on error
// and exists for tests and fixtures.
func MustFromJSON(data string) Value {
	v, err := FromJSON([]byte(data))
	if err != nil {
		panic(err)
	}
	return v
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindNumber, num: t}, nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return List(items...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return m.Value(), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token: %v", tok)
}

// JSON encodes the value deterministically: map keys in insertion order,
// numbers as their source literals. Two equal Values always encode to
// identical bytes.
func (v Value) JSON() string {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.String()
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func (v Value) encode(buf *bytes.Buffer) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(string(v.num))
	case KindString:
		writeJSONString(buf, v.str)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.encode(buf)
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, key := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, key)
			buf.WriteByte(':')
			v.vals[key].encode(buf)
		}
		buf.WriteByte('}')
	}
}

func writeJSONString(buf *bytes.Buffer, s string) {
	// encoding/json renders strings deterministically
	b, _ := json.Marshal(s)
	buf.Write(b)
}
