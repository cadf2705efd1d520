package idl

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// ParseFieldType parses a type expression in any of the three forms the
// schema grammar accepts:
//
//	"u64"                        bare primitive or defined name
//	"option<T>" / "vec<T>"       textual wrappers
//	"[T; N]"                     textual fixed array
//	{"array": ["u8", 32]}        JSON object fixed array
//	{"defined": {"name": "X"}}   JSON object defined-type reference
func ParseFieldType(raw json.RawMessage) (FieldType, error) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 {
		return FieldType{}, fmt.Errorf("idl: empty type expression")
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return FieldType{}, fmt.Errorf("idl: invalid type string: %w", err)
		}
		return parseTypeString(s)
	}

	if trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return FieldType{}, fmt.Errorf("idl: invalid type object: %w", err)
		}
		return parseTypeObject(obj)
	}

	return FieldType{}, fmt.Errorf("idl: unsupported type expression: %s", trimmed)
}

func parseTypeString(s string) (FieldType, error) {
	switch {
	case strings.HasPrefix(s, "option<") && strings.HasSuffix(s, ">"):
		inner := s[len("option<") : len(s)-1]
		elem, err := parseTypeString(inner)
		if err != nil {
			return FieldType{}, err
		}
		return Option(elem), nil

	case strings.HasPrefix(s, "vec<") && strings.HasSuffix(s, ">"):
		inner := s[len("vec<") : len(s)-1]
		elem, err := parseTypeString(inner)
		if err != nil {
			return FieldType{}, err
		}
		return Vec(elem), nil

	case strings.HasPrefix(s, "[") && strings.Contains(s, ";"):
		body := s[1 : len(s)-1]
		parts := strings.SplitN(body, ";", 2)
		if len(parts) != 2 {
			return FieldType{}, fmt.Errorf("idl: invalid array type: %s", s)
		}
		inner, err := parseTypeString(strings.TrimSpace(parts[0]))
		if err != nil {
			return FieldType{}, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return FieldType{}, fmt.Errorf("idl: invalid array length in %q: %w", s, err)
		}
		return Array(inner, n), nil

	default:
		// Bare primitive name or defined-type reference. Disambiguation
		// between the two happens at resolution time, against the
		// owning program's set of known primitives and declared structs.
		return Primitive(s), nil
	}
}

func parseTypeObject(obj map[string]json.RawMessage) (FieldType, error) {
	if arr, ok := obj["array"]; ok {
		var pair []json.RawMessage
		if err := json.Unmarshal(arr, &pair); err != nil || len(pair) != 2 {
			return FieldType{}, fmt.Errorf("idl: invalid array object form")
		}
		elem, err := ParseFieldType(pair[0])
		if err != nil {
			return FieldType{}, err
		}
		var n int
		if err := json.Unmarshal(pair[1], &n); err != nil {
			return FieldType{}, fmt.Errorf("idl: invalid array length: %w", err)
		}
		return Array(elem, n), nil
	}

	if def, ok := obj["defined"]; ok {
		var named struct {
			Name string `json:"name"`
		}
		// Anchor IDLs have used both {"defined": "Name"} and
		// {"defined": {"name": "Name"}} across versions; accept both.
		var plain string
		if err := json.Unmarshal(def, &plain); err == nil && plain != "" {
			return Defined(plain), nil
		}
		if err := json.Unmarshal(def, &named); err != nil || named.Name == "" {
			return FieldType{}, fmt.Errorf("idl: invalid defined type object form")
		}
		return Defined(named.Name), nil
	}

	return FieldType{}, fmt.Errorf("idl: unsupported type object: %v", obj)
}

// schemaFile is the on-disk JSON shape of one IDL file.
type schemaFile struct {
	Version string            `json:"version"`
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Events  []schemaEvent     `json:"events"`
	Types   []schemaStruct    `json:"types"`
}

type schemaEvent struct {
	Name   string         `json:"name"`
	Fields []schemaField  `json:"fields"`
}

type schemaStruct struct {
	Name   string        `json:"name"`
	Fields []schemaField `json:"fields"`
}

type schemaField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

func parseFields(raw []schemaField) ([]Field, error) {
	fields := make([]Field, 0, len(raw))
	for _, f := range raw {
		t, err := ParseFieldType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("idl: field %q: %w", f.Name, err)
		}
		fields = append(fields, Field{Name: f.Name, Type: t})
	}
	return fields, nil
}

// ParseProgram parses one IDL JSON document into a Program.
func ParseProgram(data []byte) (*Program, error) {
	var sf schemaFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("idl: invalid IDL document: %w", err)
	}
	if sf.Address == "" {
		return nil, fmt.Errorf("idl: IDL document missing address")
	}

	p := &Program{
		Address: sf.Address,
		Version: sf.Version,
		Name:    sf.Name,
		Structs: make(map[string]StructDecl, len(sf.Types)),
	}

	for _, t := range sf.Types {
		fields, err := parseFields(t.Fields)
		if err != nil {
			return nil, fmt.Errorf("idl: type %q: %w", t.Name, err)
		}
		p.Structs[t.Name] = StructDecl{Name: t.Name, Fields: fields}
	}

	for _, e := range sf.Events {
		fields, err := parseFields(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("idl: event %q: %w", e.Name, err)
		}
		p.Events = append(p.Events, EventDecl{Name: e.Name, Fields: fields})
	}

	p.index()
	return p, nil
}
