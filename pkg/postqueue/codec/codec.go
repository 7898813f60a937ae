// Package codec converts between Go strings and the UTF-16 wide strings
// used at the host boundary.
//
// Wide strings are little-endian UTF-16 code units. Input may be
// NUL-terminated; everything from the first NUL on is ignored. Invalid
// sequences in either direction are replaced with U+FFFD.
package codec

import (
	"encoding/binary"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Limits applied to host arguments, in UTF-16 code units.
const (
	MaxURLUnits  = 2048
	MaxBodyUnits = 8192
)

var wide encoding.Encoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode converts s to UTF-16 code units without a terminating NUL.
func Encode(s string) []uint16 {
	if s == "" {
		return []uint16{}
	}

	b, err := wide.NewEncoder().Bytes([]byte(s))
	if err != nil {
		// The UTF-16 encoder substitutes invalid input instead of failing;
		// fall back to the rune-level conversion just in case.
		return utf16.Encode([]rune(s))
	}

	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return units
}

// EncodeZ converts s to UTF-16 code units followed by a NUL terminator.
func EncodeZ(s string) []uint16 {
	return append(Encode(s), 0)
}

// Decode converts UTF-16 code units to a string, stopping at the first NUL.
func Decode(w []uint16) string {
	w = cutNUL(w)
	if len(w) == 0 {
		return ""
	}

	b := make([]byte, 2*len(w))
	for i, u := range w {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}

	out, err := wide.NewDecoder().Bytes(b)
	if err != nil {
		return string(utf16.Decode(w))
	}
	return string(out)
}

// Units returns the length of s in UTF-16 code units.
func Units(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

// Truncate shortens s to at most maxUnits UTF-16 code units.
// A surrogate pair is never split.
func Truncate(s string, maxUnits int) string {
	if maxUnits <= 0 {
		return ""
	}

	n := 0
	for i, r := range s {
		u := runeUnits(r)
		if n+u > maxUnits {
			return s[:i]
		}
		n += u
	}
	return s
}

// CopyZ writes s into dst as a NUL-terminated wide string, truncating to
// fit. It returns the number of code units written before the NUL, or -1
// if dst has no room for the terminator.
func CopyZ(dst []uint16, s string) int {
	if len(dst) == 0 {
		return -1
	}

	units := Encode(Truncate(s, len(dst)-1))
	n := copy(dst, units)
	dst[n] = 0
	return n
}

func cutNUL(w []uint16) []uint16 {
	for i, u := range w {
		if u == 0 {
			return w[:i]
		}
	}
	return w
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	// Invalid runes are encoded as U+FFFD.
	return 1
}
