// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package escape handles quoting and unquoting of JSON strings.
package escape

import (
	"errors"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"go4.org/mem"
)

// Unquote decodes a byte slice containing the JSON encoding of a string. The
// input must have the enclosing double quotation marks already removed.
//
// Escape sequences are replaced with their unescaped equivalents, and a
// UTF-16 surrogate pair written as two \u escapes is combined into a single
// rune. Invalid escapes and unpaired surrogates are replaced by the Unicode
// replacement rune. Unquote reports an error for an incomplete escape
// sequence.
func Unquote(src mem.RO) ([]byte, error) {
	dec := make([]byte, 0, src.Len())
	for {
		i := mem.IndexByte(src, '\\')
		if i < 0 {
			return mem.Append(dec, src), nil
		}
		dec = mem.Append(dec, src.SliceTo(i))

		r, rest, err := decodeEscape(src.SliceFrom(i + 1))
		if err != nil {
			return nil, err
		}
		dec = utf8.AppendRune(dec, r)
		src = rest
	}
}

// decodeEscape decodes the escape sequence at the front of src, which begins
// just after a backslash. It returns the decoded rune and the remainder of
// src following the sequence.
func decodeEscape(src mem.RO) (rune, mem.RO, error) {
	if src.Len() == 0 {
		return 0, src, errors.New("incomplete escape sequence")
	}
	r, n := mem.DecodeRune(src)
	if n == 0 {
		n++
	}
	src = src.SliceFrom(n)
	switch r {
	case '"', '\\', '/':
		return r, src, nil
	case 'b':
		return '\b', src, nil
	case 'f':
		return '\f', src, nil
	case 'n':
		return '\n', src, nil
	case 'r':
		return '\r', src, nil
	case 't':
		return '\t', src, nil
	case 'u':
		v, rest, err := decodeHex4(src)
		if err != nil {
			return 0, src, err
		} else if v < 0 {
			return utf8.RuneError, rest, nil
		}
		if !utf16.IsSurrogate(v) {
			return v, rest, nil
		}

		// A high surrogate combines with an immediately following low
		// surrogate. Anything else leaves it unpaired.
		if rest.Len() >= 2 && rest.At(0) == '\\' && rest.At(1) == 'u' {
			lo, tail, err := decodeHex4(rest.SliceFrom(2))
			if err != nil {
				return 0, src, err
			}
			if c := utf16.DecodeRune(v, lo); c != utf8.RuneError {
				return c, tail, nil
			}
		}
		return utf8.RuneError, rest, nil
	default:
		return utf8.RuneError, src, nil
	}
}

// decodeHex4 decodes four hex digits at the front of src. It returns -1 if
// the digits are not valid hex.
func decodeHex4(src mem.RO) (rune, mem.RO, error) {
	if src.Len() < 4 {
		return 0, src, errors.New("incomplete Unicode escape")
	}
	v, err := parseHex(src.SliceTo(4))
	if err != nil {
		return -1, src.SliceFrom(4), nil
	}
	return rune(v), src.SliceFrom(4), nil
}

func parseHex(data mem.RO) (int64, error) {
	var v int64
	for i := 0; i < data.Len(); i++ {
		b := data.At(i)
		v <<= 4
		if '0' <= b && b <= '9' {
			v += int64(b - '0')
		} else if 'a' <= b && b <= 'f' {
			v += int64(b - 'a' + 10)
		} else if 'A' <= b && b <= 'F' {
			v += int64(b - 'A' + 10)
		} else {
			return 0, fmt.Errorf("invalid hex digit %q", b)
		}
	}
	return v, nil
}
