package heap

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtang613/goclr/pkg/clr/tables"
)

func TestCompressedUint(t *testing.T) {
	// examples from ECMA-335 §II.23.2
	tests := []struct {
		value   uint32
		encoded []byte
	}{
		{0x03, []byte{0x03}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x80, 0x80}},
		{0x2E57, []byte{0xAE, 0x57}},
		{0x3FFF, []byte{0xBF, 0xFF}},
		{0x4000, []byte{0xC0, 0x00, 0x40, 0x00}},
		{0x1FFFFFFF, []byte{0xDF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.encoded, AppendCompressedUint(nil, tc.value), "0x%X", tc.value)
		v, n, err := ReadCompressedUint(tc.encoded)
		require.NoError(t, err)
		assert.Equal(t, tc.value, v)
		assert.Equal(t, len(tc.encoded), n)
	}

	for _, bad := range [][]byte{nil, {0x80}, {0xC0, 0, 0}, {0xE0, 0, 0, 0}} {
		_, _, err := ReadCompressedUint(bad)
		assert.True(t, errors.Is(err, tables.ErrBadImageFormat), "% X", bad)
	}
	assert.Panics(t, func() { AppendCompressedUint(nil, 0x20000000) })
}

func TestStrings(t *testing.T) {
	b := NewStringBuilder()
	assert.Equal(t, tables.StringIndex(0), b.Add(""))
	sys := b.Add("System")
	obj := b.Add("Object")
	assert.Equal(t, sys, b.Add("System"), "dedup")
	assert.Equal(t, tables.StringIndex(1), sys)
	assert.Equal(t, tables.StringIndex(8), obj)
	assert.Zero(t, len(b.Bytes())%4)
	assert.Equal(t, uint32(len(b.Bytes())), b.Size())

	h := NewStringHeap(b.Bytes())
	for want, idx := range map[string]tables.StringIndex{"": 0, "System": sys, "Object": obj} {
		got, err := h.Get(idx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := h.Get(tables.StringIndex(h.Size()))
	assert.True(t, errors.Is(err, tables.ErrBadImageFormat))
	_, err = NewStringHeap([]byte{0, 'a', 'b'}).Get(1)
	assert.True(t, errors.Is(err, tables.ErrBadImageFormat), "missing terminator")
}

func TestBlobs(t *testing.T) {
	b := NewBlobBuilder()
	assert.Equal(t, tables.BlobIndex(0), b.Add(nil))
	sig := b.Add([]byte{0x20, 0x00, 0x01})
	big := make([]byte, 300)
	for i := range big {
		big[i] = byte(i)
	}
	bigIdx := b.Add(big)
	assert.Equal(t, sig, b.Add([]byte{0x20, 0x00, 0x01}))

	h := NewBlobHeap(b.Bytes())
	got, err := h.Get(sig)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x20, 0x00, 0x01}, got)
	got, err = h.Get(bigIdx)
	require.NoError(t, err)
	assert.Equal(t, big, got)
	got, err = h.Get(0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewBlobHeap([]byte{0, 5, 1, 2}).Get(1)
	assert.True(t, errors.Is(err, tables.ErrBadImageFormat))
}

func TestGuids(t *testing.T) {
	u := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	b := NewGuidBuilder()
	assert.Equal(t, tables.GuidIndex(0), b.Add(uuid.Nil))
	i := b.Add(u)
	j := b.Add(uuid.New())
	assert.Equal(t, tables.GuidIndex(1), i)
	assert.Equal(t, tables.GuidIndex(2), j)
	assert.Equal(t, i, b.Add(u))

	// on-disk order swaps the first three fields
	assert.Equal(t, []byte{0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66, 0x88, 0x99}, b.Bytes()[:10])

	h := NewGuidHeap(b.Bytes())
	assert.Equal(t, 2, h.Len())
	got, err := h.Get(i)
	require.NoError(t, err)
	assert.Equal(t, u, got)
	got, err = h.Get(0)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got)

	_, err = h.Get(3)
	assert.True(t, errors.Is(err, tables.ErrBadImageFormat))
}

func TestUserStrings(t *testing.T) {
	b := NewUserStringBuilder()
	hello := b.Add("Hello")
	quote := b.Add("it's")
	wide := b.Add("héllo wörld ✓")
	assert.Equal(t, hello, b.Add("Hello"))
	assert.Equal(t, uint32(1), hello)

	data := b.Bytes()
	// length 11 = 5 UTF-16 units + flag byte
	assert.Equal(t, byte(11), data[hello])
	assert.Equal(t, byte(0), data[hello+11], "plain ASCII")
	assert.Equal(t, byte(1), data[quote+9], "apostrophe sets the flag")

	h := NewUserStringHeap(data)
	for want, off := range map[string]uint32{"Hello": hello, "it's": quote, "héllo wörld ✓": wide, "": 0} {
		got, err := h.Get(off)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, tables.Token(0x70000001), Token(hello))
}
