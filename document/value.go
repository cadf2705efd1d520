// Package document implements a tagged JSON value representation used to
// carry decoded event fields without losing field order or numeric text
// precision, the way a generic map[string]any would.
package document

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a sum type over the JSON value shapes a decoded event field can
// take. Numbers are kept as their decimal text and marshaled verbatim, never
// passing through float64; integers wider than 32 bits (u64/u128/i64/i128)
// are carried as String values instead (see Number).
type Value struct {
	kind   Kind
	b      bool
	num    string
	str    string
	arr    []Value
	fields []Field
}

// Field is one entry of an ordered object value.
type Field struct {
	Name  string
	Value Value
}

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number stores a pre-formatted decimal string and marshals as a bare JSON
// number. Reserved for widths that fit a JSON number without precision loss
// (u8/u16/u32/i8/i16/i32); wider integers (u64/u128/i64/i128) are carried
// as String values instead, avoiding float64 truncation for those widths.
func Number(decimal string) Value { return Value{kind: KindNumber, num: decimal} }

func NumberFromInt64(v int64) Value { return Number(strconv.FormatInt(v, 10)) }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Array(items []Value) Value { return Value{kind: KindArray, arr: items} }

func Object(fields []Field) Value { return Value{kind: KindObject, fields: fields} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Fields returns the ordered fields of an object value, or nil otherwise.
func (v Value) Fields() []Field { return v.fields }

// Items returns the elements of an array value, or nil otherwise.
func (v Value) Items() []Value { return v.arr }

// Text returns the raw string payload of a string value, the decimal
// text of a number value, or "" otherwise.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		return []byte(v.num), nil
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		buf := []byte{'['}
		for i, item := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}
		buf = append(buf, ']')
		return buf, nil
	case KindObject:
		buf := []byte{'{'}
		for i, f := range v.fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			name, err := json.Marshal(f.Name)
			if err != nil {
				return nil, err
			}
			buf = append(buf, name...)
			buf = append(buf, ':')
			val, err := f.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, val...)
		}
		buf = append(buf, '}')
		return buf, nil
	default:
		return nil, fmt.Errorf("document: unknown value kind %d", v.kind)
	}
}
