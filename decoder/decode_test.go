package decoder

import (
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solindex/soltrace/document"
	"github.com/solindex/soltrace/idl"
)

func field(name string, t idl.FieldType) idl.Field { return idl.Field{Name: name, Type: t} }

func TestDecode_U32AndU64Widths(t *testing.T) {
	fields := []idl.Field{
		field("small", idl.Primitive("u32")),
		field("big", idl.Primitive("u64")),
	}
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 42)
	binary.LittleEndian.PutUint64(data[4:12], 18446744073709551615) // max u64

	v, err := Decode(nil, fields, data)
	require.NoError(t, err)

	fs := v.Fields()
	require.Len(t, fs, 2)
	assert.Equal(t, document.KindNumber, fs[0].Value.Kind())
	assert.Equal(t, "42", fs[0].Value.Text())
	assert.Equal(t, document.KindString, fs[1].Value.Kind())
	assert.Equal(t, "18446744073709551615", fs[1].Value.Text())
}

func TestDecode_OptionPresentAndAbsent(t *testing.T) {
	fields := []idl.Field{field("maybe", idl.Option(idl.Primitive("u64")))}

	absent := []byte{0}
	v, err := Decode(nil, fields, absent)
	require.NoError(t, err)
	assert.True(t, v.Fields()[0].Value.IsNull())

	present := make([]byte, 9)
	present[0] = 1
	binary.LittleEndian.PutUint64(present[1:], 7)
	v, err = Decode(nil, fields, present)
	require.NoError(t, err)
	assert.Equal(t, "7", v.Fields()[0].Value.Text())
}

func TestDecode_FixedArray_StringAndObjectFormsAgree(t *testing.T) {
	strForm, err := idl.ParseFieldType([]byte(`"[u8; 4]"`))
	require.NoError(t, err)
	objForm, err := idl.ParseFieldType([]byte(`{"array": ["u8", 4]}`))
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4}

	v1, err := Decode(nil, []idl.Field{field("a", strForm)}, data)
	require.NoError(t, err)
	v2, err := Decode(nil, []idl.Field{field("a", objForm)}, data)
	require.NoError(t, err)

	assert.Equal(t, v1.Fields()[0].Value.Items(), v2.Fields()[0].Value.Items())
}

func TestDecode_EmptyVec(t *testing.T) {
	fields := []idl.Field{field("items", idl.Vec(idl.Primitive("u32")))}
	data := []byte{0, 0, 0, 0}

	v, err := Decode(nil, fields, data)
	require.NoError(t, err)
	assert.Empty(t, v.Fields()[0].Value.Items())
}

func TestDecode_PublicKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	fields := []idl.Field{field("owner", idl.Primitive("publicKey"))}

	v, err := Decode(nil, fields, raw)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(raw), v.Fields()[0].Value.Text())
}

func TestDecode_U128RoundTrip(t *testing.T) {
	fields := []idl.Field{field("amount", idl.Primitive("u128"))}
	data := make([]byte, 16)
	data[15] = 0x01 // top byte set -> value = 2^120

	v, err := Decode(nil, fields, data)
	require.NoError(t, err)
	assert.Equal(t, "1329227995784915872903807060280344576", v.Fields()[0].Value.Text())
}

func TestDecode_I128Negative(t *testing.T) {
	fields := []idl.Field{field("delta", idl.Primitive("i128"))}
	data := make([]byte, 16)
	for i := range data {
		data[i] = 0xff // -1 in two's complement
	}

	v, err := Decode(nil, fields, data)
	require.NoError(t, err)
	assert.Equal(t, "-1", v.Fields()[0].Value.Text())
}

func TestDecode_DataLengthMismatch(t *testing.T) {
	fields := []idl.Field{field("amount", idl.Primitive("u32"))}
	data := []byte{1, 2, 3, 4, 5} // one extra byte

	_, err := Decode(nil, fields, data)
	assert.ErrorIs(t, err, ErrDataLengthMismatch)
}

func TestDecode_TruncatedInput(t *testing.T) {
	fields := []idl.Field{field("amount", idl.Primitive("u64"))}
	data := []byte{1, 2, 3}

	_, err := Decode(nil, fields, data)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecode_DefinedTypeResolution(t *testing.T) {
	program := &idl.Program{
		Structs: map[string]idl.StructDecl{
			"Meta": {Fields: []idl.Field{
				field("label", idl.Primitive("u8")),
			}},
		},
	}
	fields := []idl.Field{field("meta", idl.Defined("Meta"))}

	v, err := Decode(program, fields, []byte{9})
	require.NoError(t, err)
	inner := v.Fields()[0].Value
	assert.Equal(t, document.KindObject, inner.Kind())
	assert.Equal(t, "9", inner.Fields()[0].Value.Text())
}

func TestDecode_UnknownDefinedTypeErrors(t *testing.T) {
	fields := []idl.Field{field("meta", idl.Defined("Missing"))}
	_, err := Decode(&idl.Program{Structs: map[string]idl.StructDecl{}}, fields, []byte{9})
	assert.ErrorIs(t, err, ErrUnknownType)
}
