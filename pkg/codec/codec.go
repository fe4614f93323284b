// Package codec packs byte payloads into 16-bit code units and converts
// between UTF-8 text and UTF-16 code units.
//
// Code units are the at-rest shape of every secret. Unit i of a packed
// payload is (b[2i] << 8) | b[2i+1]; an odd trailing byte is paired with a
// zero. The payload length travels out of band, so a real trailing zero byte
// is never confused with padding.
//
// None of the functions allocate; callers pass destination memory, usually a
// locked region.
package codec

import (
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"
	"unsafe"
)

// MaxUTF8PerUnit bounds the UTF-8 bytes produced per decoded code unit.
const MaxUTF8PerUnit = 3

// PackedLen is the number of code units needed to pack n bytes.
func PackedLen(n int) int { return (n + 1) / 2 }

// Pack packs src into dst and returns the number of units written.
// dst must hold at least PackedLen(len(src)) units.
func Pack(dst []uint16, src []byte) int {
	n := PackedLen(len(src))
	_ = dst[:n]
	full := len(src) / 2
	for i := 0; i < full; i++ {
		dst[i] = uint16(src[2*i])<<8 | uint16(src[2*i+1])
	}
	if len(src)%2 == 1 {
		dst[n-1] = uint16(src[len(src)-1]) << 8
	}
	return n
}

// Unpack fills dst from packed units. The length of dst selects the payload
// length, dropping the padding byte of an odd payload. It returns the number
// of bytes written, which is short only when src holds fewer units than dst
// needs.
func Unpack(dst []byte, src []uint16) int {
	n := min(len(dst), 2*len(src))
	for i := 0; i < n; i++ {
		u := src[i/2]
		if i%2 == 0 {
			dst[i] = byte(u >> 8)
		} else {
			dst[i] = byte(u)
		}
	}
	return n
}

// UnpackInPlace turns the PackedLen(n) native-order units stored at the start
// of buf into the n payload bytes, in the same memory.
func UnpackInPlace(buf []byte, n int) {
	units := Units(buf[:2*PackedLen(n)])
	for i := range units {
		u := units[i]
		buf[2*i] = byte(u >> 8)
		buf[2*i+1] = byte(u)
	}
}

// Units views buf as native-order code units. len(buf) must be even and buf
// must be 2-byte aligned, which holds for locked regions of even size.
func Units(buf []byte) []uint16 {
	if len(buf) < 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&buf[0])), len(buf)/2)
}

// UTF16Len counts the UTF-16 code units needed for UTF-8 text.
func UTF16Len(text []byte) int {
	n := 0
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
		text = text[size:]
	}
	return n
}

// EncodeUTF16 writes the UTF-16 form of valid UTF-8 text into dst and returns
// the number of units written. dst must hold UTF16Len(text) units.
func EncodeUTF16(dst []uint16, text []byte) int {
	n := 0
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		if utf16.RuneLen(r) == 2 {
			r1, r2 := utf16.EncodeRune(r)
			dst[n], dst[n+1] = uint16(r1), uint16(r2)
			n += 2
		} else {
			dst[n] = uint16(r)
			n++
		}
		text = text[size:]
	}
	return n
}

// DecodeUTF16 writes the UTF-8 form of units into dst and returns the number
// of bytes written. Unpaired surrogates decode to U+FFFD. dst must hold
// MaxUTF8PerUnit*len(units) bytes.
func DecodeUTF16(dst []byte, units []uint16) int {
	n := 0
	for i := 0; i < len(units); i++ {
		r := rune(units[i])
		if utf16.IsSurrogate(r) {
			dec := utf8.RuneError
			if i+1 < len(units) {
				dec = utf16.DecodeRune(r, rune(units[i+1]))
			}
			if dec != utf8.RuneError {
				i++
			}
			r = dec
		}
		n += utf8.EncodeRune(dst[n:], r)
	}
	return n
}

// PutBigEndian writes units into dst as big-endian pairs. dst must hold
// 2*len(units) bytes.
func PutBigEndian(dst []byte, units []uint16) {
	for i, u := range units {
		binary.BigEndian.PutUint16(dst[2*i:], u)
	}
}

// ReadBigEndian fills dst from big-endian pairs in src.
func ReadBigEndian(dst []uint16, src []byte) {
	for i := range dst {
		dst[i] = binary.BigEndian.Uint16(src[2*i:])
	}
}
