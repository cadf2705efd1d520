// Package idl loads Anchor-style IDL schemas and resolves Anchor event
// discriminators against them. It mirrors the shape of an on-chain program's
// published interface description closely enough to drive the decoder
// without depending on the Anchor client library itself.
package idl

import (
	"fmt"
)

// FieldType is a recursive type expression parsed from either the textual
// grammar (option<T>, vec<T>, [T; N], bare names) or one of the two JSON
// object forms ({"array": [T, N]}, {"defined": {"name": "X"}}).
type FieldType struct {
	Kind FieldTypeKind

	// Primitive holds the bare type name (u8, u64, string, publicKey, ...)
	// when Kind == KindPrimitive.
	Primitive string

	// Elem is the element type for Option, Vec and Array.
	Elem *FieldType

	// ArrayLen is the fixed length for Kind == KindArray.
	ArrayLen int

	// DefinedName names a StructDecl in the owning Program when
	// Kind == KindDefined.
	DefinedName string
}

type FieldTypeKind int

const (
	KindPrimitive FieldTypeKind = iota
	KindOption
	KindVec
	KindArray
	KindDefined
)

func Primitive(name string) FieldType { return FieldType{Kind: KindPrimitive, Primitive: name} }

func Option(elem FieldType) FieldType { return FieldType{Kind: KindOption, Elem: &elem} }

func Vec(elem FieldType) FieldType { return FieldType{Kind: KindVec, Elem: &elem} }

func Array(elem FieldType, n int) FieldType {
	return FieldType{Kind: KindArray, Elem: &elem, ArrayLen: n}
}

func Defined(name string) FieldType { return FieldType{Kind: KindDefined, DefinedName: name} }

func (t FieldType) String() string {
	switch t.Kind {
	case KindPrimitive:
		return t.Primitive
	case KindOption:
		return fmt.Sprintf("option<%s>", t.Elem.String())
	case KindVec:
		return fmt.Sprintf("vec<%s>", t.Elem.String())
	case KindArray:
		return fmt.Sprintf("[%s; %d]", t.Elem.String(), t.ArrayLen)
	case KindDefined:
		return fmt.Sprintf("defined<%s>", t.DefinedName)
	default:
		return "unknown"
	}
}

// Field is one named, typed member of an event or defined struct.
type Field struct {
	Name string
	Type FieldType
}

// EventDecl is one Anchor event declaration within a program's IDL. Fields
// is resolved at index time: if the declaration has no inline fields, a
// same-named struct from the program's type table is lifted in instead;
// if neither resolves, Fields stays empty and decoding falls back to hex.
type EventDecl struct {
	Name          string
	Fields        []Field
	Discriminator [8]byte
}

// StructDecl is a named composite type referenced by other fields via
// {"defined": {"name": ...}}.
type StructDecl struct {
	Name   string
	Fields []Field
}

// Program is one loaded IDL: the events and defined types published for a
// single on-chain program address.
type Program struct {
	Address string
	Version string
	Name    string
	Events  []EventDecl
	Structs map[string]StructDecl

	eventsByDiscriminator map[[8]byte]*EventDecl
}

func (p *Program) index() {
	p.eventsByDiscriminator = make(map[[8]byte]*EventDecl, len(p.Events))
	for i := range p.Events {
		ev := &p.Events[i]
		ev.Discriminator = Discriminator(ev.Name)
		if len(ev.Fields) == 0 {
			if s, ok := p.Structs[ev.Name]; ok {
				ev.Fields = s.Fields
			}
		}
		p.eventsByDiscriminator[ev.Discriminator] = ev
	}
}

// EventByDiscriminator resolves a decoded 8-byte prefix to its event
// declaration, implementing the lookup step of the decode pipeline.
func (p *Program) EventByDiscriminator(disc [8]byte) (*EventDecl, bool) {
	ev, ok := p.eventsByDiscriminator[disc]
	return ev, ok
}

// ResolveStruct looks up a defined-type reference by name, returning false
// if the IDL never declared it (a malformed-schema condition the decoder
// surfaces as a decode error rather than a panic).
func (p *Program) ResolveStruct(name string) (StructDecl, bool) {
	s, ok := p.Structs[name]
	return s, ok
}
