package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		units int
	}{
		{"empty", "", 0},
		{"ascii", `{"event":"start"}`, 17},
		{"latin", "café", 4},
		{"cyrillic", "привет", 6},
		{"astral", "ok 🎉", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Encode(tt.in)
			assert.Len(t, w, tt.units)
			assert.Equal(t, tt.units, Units(tt.in))
			assert.Equal(t, tt.in, Decode(w))
		})
	}
}

func TestEncode_SurrogatePair(t *testing.T) {
	w := Encode("🎉")
	require.Len(t, w, 2)
	assert.Equal(t, uint16(0xD83C), w[0])
	assert.Equal(t, uint16(0xDF89), w[1])
}

func TestDecode_StopsAtNUL(t *testing.T) {
	w := append(Encode("abc"), 0, 'x', 'y')
	assert.Equal(t, "abc", Decode(w))
	assert.Equal(t, "", Decode([]uint16{0, 'a'}))
	assert.Equal(t, "", Decode(nil))
}

func TestDecode_LoneSurrogate(t *testing.T) {
	got := Decode([]uint16{'a', 0xD800, 'b'})
	assert.True(t, strings.HasPrefix(got, "a"))
	assert.True(t, strings.HasSuffix(got, "b"))
	assert.Contains(t, got, "�")
}

func TestEncodeZ(t *testing.T) {
	w := EncodeZ("hi")
	assert.Equal(t, []uint16{'h', 'i', 0}, w)
	assert.Equal(t, "hi", Decode(w))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abc", 3, "abc"},
		{"cut", "abcdef", 4, "abcd"},
		{"zero", "abc", 0, ""},
		{"negative", "abc", -1, ""},
		{"multibyte", "ééé", 2, "éé"},
		{"no split pair", "a🎉", 2, "a"},
		{"pair fits", "a🎉", 3, "a🎉"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.max))
		})
	}
}

func TestTruncate_URLLimit(t *testing.T) {
	long := strings.Repeat("u", MaxURLUnits+100)
	assert.Equal(t, MaxURLUnits, Units(Truncate(long, MaxURLUnits)))
}

func TestCopyZ(t *testing.T) {
	t.Run("fits", func(t *testing.T) {
		buf := make([]uint16, 8)
		n := CopyZ(buf, "hello")
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", Decode(buf))
	})

	t.Run("truncates", func(t *testing.T) {
		buf := make([]uint16, 4)
		n := CopyZ(buf, "hello")
		assert.Equal(t, 3, n)
		assert.Equal(t, uint16(0), buf[3])
		assert.Equal(t, "hel", Decode(buf))
	})

	t.Run("empty buffer", func(t *testing.T) {
		assert.Equal(t, -1, CopyZ(nil, "x"))
	})

	t.Run("only terminator", func(t *testing.T) {
		buf := []uint16{'z'}
		assert.Equal(t, 0, CopyZ(buf, "x"))
		assert.Equal(t, uint16(0), buf[0])
	})
}
