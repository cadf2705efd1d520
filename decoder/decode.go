package decoder

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"unicode/utf8"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"

	"github.com/solindex/soltrace/document"
	"github.com/solindex/soltrace/idl"
)

// maxDefinedDepth bounds defined-type recursion so a cyclic schema (A
// defined as containing B, B containing A) fails fast instead of
// recursing forever.
const maxDefinedDepth = 32

type cursor struct {
	data   []byte
	offset int
}

func (c *cursor) remaining() int { return len(c.data) - c.offset }

func (c *cursor) take(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, c.remaining())
	}
	b := c.data[c.offset : c.offset+n]
	c.offset += n
	return b, nil
}

// Decode decodes data against an ordered field list, returning the decoded
// fields as an ordered document.Value object. Every byte of data must be
// consumed by exactly the declared fields: bytes left over after the last
// field are ErrDataLengthMismatch, and a field that runs past the end of
// data is ErrTruncated.
func Decode(program *idl.Program, fields []idl.Field, data []byte) (document.Value, error) {
	cur := &cursor{data: data}
	out := make([]document.Field, 0, len(fields))

	for _, f := range fields {
		v, err := decodeType(cur, f.Type, program, 0)
		if err != nil {
			return document.Value{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out = append(out, document.Field{Name: f.Name, Value: v})
	}

	if cur.offset != len(data) {
		return document.Value{}, fmt.Errorf("%w: decoded %d bytes, data is %d bytes",
			ErrDataLengthMismatch, cur.offset, len(data))
	}

	return document.Object(out), nil
}

func decodeType(cur *cursor, t idl.FieldType, program *idl.Program, depth int) (document.Value, error) {
	switch t.Kind {
	case idl.KindOption:
		return decodeOption(cur, *t.Elem, program, depth)
	case idl.KindVec:
		return decodeVec(cur, *t.Elem, program, depth)
	case idl.KindArray:
		return decodeArray(cur, *t.Elem, t.ArrayLen, program, depth)
	case idl.KindDefined:
		return decodeDefined(cur, t.DefinedName, program, depth)
	case idl.KindPrimitive:
		return decodePrimitive(cur, t.Primitive, program, depth)
	default:
		return document.Value{}, fmt.Errorf("%w: %s", ErrUnknownType, t.String())
	}
}

func decodeOption(cur *cursor, inner idl.FieldType, program *idl.Program, depth int) (document.Value, error) {
	tag, err := cur.take(1)
	if err != nil {
		return document.Value{}, fmt.Errorf("option tag: %w", err)
	}
	if tag[0] == 0 {
		return document.Null(), nil
	}
	return decodeType(cur, inner, program, depth)
}

func decodeVec(cur *cursor, inner idl.FieldType, program *idl.Program, depth int) (document.Value, error) {
	lenBytes, err := cur.take(4)
	if err != nil {
		return document.Value{}, fmt.Errorf("vec length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBytes)
	items := make([]document.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := decodeType(cur, inner, program, depth)
		if err != nil {
			return document.Value{}, fmt.Errorf("vec element %d: %w", i, err)
		}
		items = append(items, v)
	}
	return document.Array(items), nil
}

func decodeArray(cur *cursor, inner idl.FieldType, n int, program *idl.Program, depth int) (document.Value, error) {
	if n < 0 {
		return document.Value{}, fmt.Errorf("%w: negative array length", ErrUnknownType)
	}
	items := make([]document.Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := decodeType(cur, inner, program, depth)
		if err != nil {
			return document.Value{}, fmt.Errorf("array element %d: %w", i, err)
		}
		items = append(items, v)
	}
	return document.Array(items), nil
}

func decodeDefined(cur *cursor, name string, program *idl.Program, depth int) (document.Value, error) {
	if depth >= maxDefinedDepth {
		return document.Value{}, fmt.Errorf("%w: %q at depth %d", ErrRecursionTooDeep, name, depth)
	}
	if program == nil {
		return document.Value{}, fmt.Errorf("%w: defined type %q (no program context)", ErrUnknownType, name)
	}
	decl, ok := program.ResolveStruct(name)
	if !ok {
		return document.Value{}, fmt.Errorf("%w: defined type %q not declared", ErrUnknownType, name)
	}

	out := make([]document.Field, 0, len(decl.Fields))
	for _, f := range decl.Fields {
		v, err := decodeType(cur, f.Type, program, depth+1)
		if err != nil {
			return document.Value{}, fmt.Errorf("%s.%s: %w", name, f.Name, err)
		}
		out = append(out, document.Field{Name: f.Name, Value: v})
	}
	return document.Object(out), nil
}

func decodePrimitive(cur *cursor, name string, program *idl.Program, depth int) (document.Value, error) {
	switch name {
	case "bool":
		b, err := cur.take(1)
		if err != nil {
			return document.Value{}, fmt.Errorf("bool: %w", err)
		}
		return document.Bool(b[0] != 0), nil

	case "string":
		return decodeString(cur)

	case "bytes":
		return decodeBytes(cur)

	case "publicKey", "pubkey", "Pubkey":
		return decodePublicKey(cur)
	}

	if width := widthBytes(name); width > 0 {
		return decodeInteger(cur, name, width)
	}

	// Not a recognized primitive: treat as a bare defined-type reference
	// (the textual grammar can't tell "u64" from "SomeStruct" apart
	// syntactically, so unknown names fall through to struct lookup).
	return decodeDefined(cur, name, program, depth)
}

func decodeInteger(cur *cursor, name string, width int) (document.Value, error) {
	b, err := cur.take(width)
	if err != nil {
		return document.Value{}, fmt.Errorf("%s: %w", name, err)
	}

	if width == 16 {
		if isSigned(name) {
			return document.String(decodeI128(b).String()), nil
		}
		return document.String(decodeU128(b).String()), nil
	}

	var raw uint64
	switch width {
	case 1:
		raw = uint64(b[0])
	case 2:
		raw = uint64(binary.LittleEndian.Uint16(b))
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(b))
	case 8:
		raw = binary.LittleEndian.Uint64(b)
	}

	if !isSigned(name) {
		if fitsNativeJSONNumber(name) {
			return document.Number(strconv.FormatUint(raw, 10)), nil
		}
		return document.String(strconv.FormatUint(raw, 10)), nil
	}

	signed := signExtend(raw, width)
	if fitsNativeJSONNumber(name) {
		return document.Number(strconv.FormatInt(signed, 10)), nil
	}
	return document.String(strconv.FormatInt(signed, 10)), nil
}

func signExtend(raw uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(raw))
	case 2:
		return int64(int16(raw))
	case 4:
		return int64(int32(raw))
	case 8:
		return int64(raw)
	default:
		return int64(raw)
	}
}

func decodeU128(b []byte) *uint256.Int {
	var be [32]byte
	for i := 0; i < 16; i++ {
		be[31-i] = b[i]
	}
	return new(uint256.Int).SetBytes(be[:])
}

func decodeI128(b []byte) *big.Int {
	var be [16]byte
	for i := 0; i < 16; i++ {
		be[15-i] = b[i]
	}
	v := new(big.Int).SetBytes(be[:])
	if b[15]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		v.Sub(v, mod)
	}
	return v
}

func decodeString(cur *cursor) (document.Value, error) {
	lenBytes, err := cur.take(4)
	if err != nil {
		return document.Value{}, fmt.Errorf("string length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBytes)
	content, err := cur.take(int(n))
	if err != nil {
		return document.Value{}, fmt.Errorf("string content: %w", err)
	}
	if !utf8.Valid(content) {
		return document.Value{}, ErrInvalidUTF8
	}
	return document.String(string(content)), nil
}

func decodeBytes(cur *cursor) (document.Value, error) {
	lenBytes, err := cur.take(4)
	if err != nil {
		return document.Value{}, fmt.Errorf("bytes length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBytes)
	content, err := cur.take(int(n))
	if err != nil {
		return document.Value{}, fmt.Errorf("bytes content: %w", err)
	}
	return document.String(hex.EncodeToString(content)), nil
}

func decodePublicKey(cur *cursor) (document.Value, error) {
	b, err := cur.take(32)
	if err != nil {
		return document.Value{}, fmt.Errorf("publicKey: %w", err)
	}
	return document.String(base58.Encode(b)), nil
}
