package codec

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packUnpack(t *testing.T, in []byte) []byte {
	t.Helper()
	units := make([]uint16, PackedLen(len(in)))
	require.Equal(t, len(units), Pack(units, in))
	out := make([]byte, len(in))
	require.Equal(t, len(in), Unpack(out, units))
	return out
}

func TestPackLayout(t *testing.T) {
	units := make([]uint16, 2)
	Pack(units, []byte{0x12, 0x34, 0xab})
	assert.Equal(t, []uint16{0x1234, 0xab00}, units)
}

func TestPackRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
	}{
		{"empty", []byte{}},
		{"one byte", []byte{0xff}},
		{"even", []byte{1, 2, 3, 4}},
		{"odd", []byte{1, 2, 3}},
		{"trailing zero even", []byte{1, 2, 3, 0}},
		{"trailing zero odd", []byte{1, 2, 0}},
		{"all zero", make([]byte, 9)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.in, packUnpack(t, tc.in))
		})
	}
}

func TestPackEveryLength(t *testing.T) {
	src := make([]byte, 2048)
	for i := range src {
		src[i] = byte(i*7 + 3)
	}
	for n := 0; n <= len(src); n += 37 {
		if got := packUnpack(t, src[:n]); !bytes.Equal(got, src[:n]) {
			t.Fatalf("length %d did not round trip", n)
		}
	}
}

// A payload ending in a real zero and a shorter odd payload pack to the same
// units; only the out-of-band length tells them apart.
func TestPaddingIsNotPayload(t *testing.T) {
	a := make([]uint16, 2)
	b := make([]uint16, 2)
	Pack(a, []byte{1, 2, 3, 0})
	Pack(b, []byte{1, 2, 3})
	require.Equal(t, a, b)

	outA := make([]byte, 4)
	outB := make([]byte, 3)
	Unpack(outA, a)
	Unpack(outB, b)
	assert.Equal(t, []byte{1, 2, 3, 0}, outA)
	assert.Equal(t, []byte{1, 2, 3}, outB)
}

func TestUnpackShortSource(t *testing.T) {
	out := make([]byte, 6)
	assert.Equal(t, 2, Unpack(out, []uint16{0x0102}))
	assert.Equal(t, []byte{1, 2, 0, 0, 0, 0}, out)
}

func TestUnpackInPlace(t *testing.T) {
	for _, in := range [][]byte{{}, {9}, {1, 2}, {1, 2, 3}, {0xde, 0xad, 0xbe, 0xef, 0}} {
		buf := make([]byte, 2*PackedLen(len(in)))
		Pack(Units(buf), in)
		UnpackInPlace(buf, len(in))
		assert.Equal(t, in, buf[:len(in)])
	}
}

func TestUnits(t *testing.T) {
	assert.Nil(t, Units(nil))
	buf := make([]byte, 6)
	u := Units(buf)
	require.Len(t, u, 3)
	u[1] = 0xffff
	assert.Equal(t, []byte{0, 0, 0xff, 0xff, 0, 0}, buf)
}

func TestUTF16(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		units int
	}{
		{"empty", "", 0},
		{"ascii", "hunter2", 7},
		{"bmp", "pässwörd€", 9},
		{"astral", "key🔑", 5},
		{"nul bytes", "a\x00b", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := []byte(tc.text)
			require.Equal(t, tc.units, UTF16Len(text))

			units := make([]uint16, tc.units)
			require.Equal(t, tc.units, EncodeUTF16(units, text))

			out := make([]byte, MaxUTF8PerUnit*len(units))
			n := DecodeUTF16(out, units)
			assert.Equal(t, tc.text, string(out[:n]))
		})
	}
}

func TestDecodeUTF16LoneSurrogates(t *testing.T) {
	units := []uint16{'a', 0xd83d, 'b', 0xdd11}
	out := make([]byte, MaxUTF8PerUnit*len(units))
	n := DecodeUTF16(out, units)
	got := string(out[:n])
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "a�b�", got)
}

func TestBigEndian(t *testing.T) {
	units := []uint16{0x0102, 0xfffe, 0x0000}
	b := make([]byte, 2*len(units))
	PutBigEndian(b, units)
	assert.Equal(t, []byte{0x01, 0x02, 0xff, 0xfe, 0x00, 0x00}, b)

	back := make([]uint16, len(units))
	ReadBigEndian(back, b)
	assert.Equal(t, units, back)
}
