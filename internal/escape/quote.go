// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

package escape

import (
	"unicode/utf8"

	"go4.org/mem"
)

var controlEsc = [...]byte{
	'\b': 'b',
	'\f': 'f',
	'\n': 'n',
	'\r': 'r',
	'\t': 't',
	' ':  ' ', // sentinel
}

var hexDigit = []byte("0123456789abcdef")

// Append appends the JSON encoding of src to dst, without enclosing quotation
// marks, and returns the extended slice. Invalid UTF-8 is encoded as the
// Unicode replacement rune.
func Append(dst []byte, src mem.RO) []byte {
	for src.Len() != 0 {
		if i := plainPrefix(src); i > 0 {
			dst = mem.Append(dst, src.SliceTo(i))
			src = src.SliceFrom(i)
			continue
		}

		r, n := mem.DecodeRune(src)
		src = src.SliceFrom(n)
		switch {
		case r < ' ':
			if b := controlEsc[r]; b != 0 {
				dst = append(dst, '\\', b)
			} else {
				dst = append(dst, '\\', 'u', '0', '0', hexDigit[r>>4], hexDigit[r&15])
			}
		case r == '\\', r == '"':
			dst = append(dst, '\\', byte(r))
		case r == utf8.RuneError, r == '\u2028', r == '\u2029':
			dst = append(dst, '\\', 'u', hexDigit[r>>12&15], hexDigit[r>>8&15], hexDigit[r>>4&15], hexDigit[r&15])
		default:
			dst = utf8.AppendRune(dst, r)
		}
	}
	return dst
}

// plainPrefix returns the length of the longest prefix of src that consists of
// ASCII bytes needing no escape.
func plainPrefix(src mem.RO) int {
	for i := range src.Len() {
		if b := src.At(i); b < ' ' || b == '"' || b == '\\' || b >= utf8.RuneSelf {
			return i
		}
	}
	return src.Len()
}
