package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsignedVarintRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 300, 16384, 1 << 28, 0xFFFFFFFF}
	for _, v := range cases {
		w := NewWriter(8)
		w.WriteUnsignedVarint(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadUnsignedVarint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, r.Remaining())
	}
}

func TestSignedVarintRoundTrip(t *testing.T) {
	cases := []int64{0, -1, 1, -64, 64, 1 << 20, -(1 << 20)}
	for _, v := range cases {
		w := NewWriter(8)
		w.WriteSignedVarint(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadSignedVarint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestCompactStringRoundTrip(t *testing.T) {
	w := NewWriter(16)
	w.WriteCompactString("hello")
	r := NewReader(w.Bytes())
	got, err := r.ReadCompactString()
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestCompactStringEmpty(t *testing.T) {
	w := NewWriter(4)
	w.WriteCompactString("")
	r := NewReader(w.Bytes())
	got, err := r.ReadCompactString()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestCompactNullableStringDistinguishesNullFromEmpty(t *testing.T) {
	w := NewWriter(4)
	w.WriteCompactNullableString(nil)
	r := NewReader(w.Bytes())
	_, isNull, err := r.ReadCompactNullableString()
	require.NoError(t, err)
	assert.True(t, isNull)

	empty := ""
	w2 := NewWriter(4)
	w2.WriteCompactNullableString(&empty)
	r2 := NewReader(w2.Bytes())
	s, isNull2, err2 := r2.ReadCompactNullableString()
	require.NoError(t, err2)
	assert.False(t, isNull2)
	assert.Equal(t, "", s)
}

func TestCompactArrayLengthNullIsMinusOne(t *testing.T) {
	w := NewWriter(4)
	w.WriteCompactArrayLength(-1)
	r := NewReader(w.Bytes())
	n, err := r.ReadCompactArrayLength()
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestUUIDRoundTrip(t *testing.T) {
	var u UUID
	for i := range u {
		u[i] = byte(i)
	}
	w := NewWriter(16)
	w.WriteUUID(u)
	r := NewReader(w.Bytes())
	got, err := r.ReadUUID()
	require.NoError(t, err)
	assert.Equal(t, u, got)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f", got.String())
}

func TestUUIDIsZero(t *testing.T) {
	var zero UUID
	assert.True(t, zero.IsZero())
	zero[5] = 1
	assert.False(t, zero.IsZero())
}

func TestTagBufferEmpty(t *testing.T) {
	w := NewWriter(1)
	w.WriteTagBuffer()
	assert.Equal(t, []byte{0x00}, w.Bytes())

	r := NewReader(w.Bytes())
	tags, err := r.ReadTagBuffer()
	require.NoError(t, err)
	assert.Equal(t, 0, tags.Len())
}

func TestShortBufferErrors(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadI32()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortBuffer)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "i32", de.Field)
}

func TestFrameResponsePrefixesTotalLength(t *testing.T) {
	header := []byte{0, 0, 0, 1}
	body := []byte{0xAA, 0xBB}
	out := FrameResponse(header, body)
	require.Len(t, out, 4+len(header)+len(body))
	assert.Equal(t, []byte{0, 0, 0, 6}, out[:4])
}
