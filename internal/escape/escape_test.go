// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

package escape_test

import (
	"testing"

	"github.com/creachadair/jbind/internal/escape"
	"go4.org/mem"
)

func TestAppend(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{`a "b" \c`, `a \"b\" \\c`},
		{"\b\f\n\r\t", `\b\f\n\r\t`},
		{"\x00\x1f", `\u0000\u001f`},
		{"café \U0001F600", "café \U0001F600"},
		{"\u2028\u2029", `\u2028\u2029`},
		{"bad \xff byte", `bad \ufffd byte`},
	}
	for _, test := range tests {
		got := string(escape.Append([]byte("<"), mem.S(test.input)))
		if want := "<" + test.want; got != want {
			t.Errorf("Append(%q): got %#q, want %#q", test.input, got, want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{
		"",
		"hello, world",
		"tab\there \"quoted\" back\\slash",
		"\x01\x02 controls \x7f",
		"é世\U0001F600",
		"\u2028 separators \u2029",
	} {
		enc := escape.Append(nil, mem.S(s))
		dec, err := escape.Unquote(mem.B(enc))
		if err != nil {
			t.Errorf("Unquote(%#q): unexpected error: %v", enc, err)
		} else if string(dec) != s {
			t.Errorf("Round trip %q: got %q via %#q", s, dec, enc)
		}
	}
}
