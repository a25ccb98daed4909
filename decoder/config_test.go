// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package decoder_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/creachadair/jbind/decoder"
	"github.com/creachadair/jbind/readstack"
	"github.com/google/go-cmp/cmp"
)

func mustLoadConfig(t *testing.T, input string) *decoder.Config {
	t.Helper()
	cfg, err := decoder.LoadConfig(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadConfig: unexpected error: %v", err)
	}
	return cfg
}

func mustOptions(t *testing.T, cfg *decoder.Config) []decoder.Option {
	t.Helper()
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options: unexpected error: %v", err)
	}
	return opts
}

func TestLoadConfig(t *testing.T) {
	got := mustLoadConfig(t, `
max_depth: 12
strict: true
case_insensitive: true
terminal: [scalar, Dynamic, sequence]
exclude:
  - $..password
  - $.meta
`)
	want := &decoder.Config{
		MaxDepth:        12,
		Strict:          true,
		CaseInsensitive: true,
		Terminal:        []string{"scalar", "Dynamic", "sequence"},
		Exclude:         []string{"$..password", "$.meta"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadConfig (-want, +got):\n%s", diff)
	}

	if got := mustLoadConfig(t, ""); !cmp.Equal(got, &decoder.Config{}) {
		t.Errorf("LoadConfig empty: got %+v, want empty", got)
	}

	if cfg, err := decoder.LoadConfig(strings.NewReader("bogus: 1\n")); err == nil {
		t.Errorf("LoadConfig unknown field: got %+v, want error", cfg)
	}
}

func TestConfigOptions(t *testing.T) {
	t.Run("Invalid", func(t *testing.T) {
		for _, cfg := range []*decoder.Config{
			{Terminal: []string{"nonesuch"}},
			{Terminal: []string{"invalid"}},
			{Exclude: []string{"no.root"}},
			{Exclude: []string{"$.a[1"}},
		} {
			if opts, err := cfg.Options(); err == nil {
				t.Errorf("Options %+v: got %d options, want error", cfg, len(opts))
			}
		}
	})

	t.Run("Strict", func(t *testing.T) {
		opts := mustOptions(t, mustLoadConfig(t, "strict: true\n"))
		var v struct {
			N []int `json:"n"`
		}
		err := decodeString(t, `{"n": {"a": 1}}`, &v, opts...)
		var merr *decoder.MismatchError
		if !errors.As(err, &merr) {
			t.Errorf("Decode: got %v, want *MismatchError", err)
		}
	})

	t.Run("Exclude", func(t *testing.T) {
		opts := mustOptions(t, mustLoadConfig(t, "exclude: ['$..password']\n"))
		type login struct {
			User     string `json:"user"`
			Password string `json:"password"`
		}
		var got struct {
			Login login `json:"login"`
		}
		if err := decodeString(t, `{"login": {"user": "u", "password": "p"}}`, &got, opts...); err != nil {
			t.Fatalf("Decode: unexpected error: %v", err)
		}
		if diff := cmp.Diff(login{User: "u"}, got.Login); diff != "" {
			t.Errorf("Decode (-want, +got):\n%s", diff)
		}
	})

	t.Run("Terminal", func(t *testing.T) {
		var v struct {
			Tags []string `json:"tags"`
		}
		const input = `{"tags": ["a", 1]}`

		// Piecewise, the error is attributed to the element.
		err := decodeString(t, input, &v)
		var perr *readstack.PathError
		if !errors.As(err, &perr) || perr.Path.String() != "$.tags[1]" {
			t.Errorf("Decode piecewise: got %v, want error at $.tags[1]", err)
		}

		// As a terminal, the whole sequence is converted at once.
		opts := mustOptions(t, mustLoadConfig(t, "terminal: [sequence]\n"))
		err = decodeString(t, input, &v, opts...)
		if !errors.As(err, &perr) || perr.Path.String() != "$.tags" {
			t.Errorf("Decode terminal: got %v, want error at $.tags", err)
		}
		if err := decodeString(t, `{"tags": ["a", "b"]}`, &v, opts...); err != nil {
			t.Errorf("Decode terminal: unexpected error: %v", err)
		} else if diff := cmp.Diff([]string{"a", "b"}, v.Tags); diff != "" {
			t.Errorf("Tags (-want, +got):\n%s", diff)
		}
	})

	t.Run("MaxDepth", func(t *testing.T) {
		opts := mustOptions(t, mustLoadConfig(t, "max_depth: 2\n"))
		err := decodeString(t, `[[[1]]]`, new([][][]int), opts...)
		var derr *readstack.DepthError
		if !errors.As(err, &derr) || derr.Max != 2 {
			t.Errorf("Decode: got %v, want *DepthError", err)
		}
	})

	t.Run("Comments", func(t *testing.T) {
		opts := mustOptions(t, mustLoadConfig(t, "comments: true\ntrailing_commas: true\n"))
		var got []int
		if err := decodeString(t, "[1, /* two */ 2,]", &got, opts...); err != nil {
			t.Fatalf("Decode: unexpected error: %v", err)
		}
		if diff := cmp.Diff([]int{1, 2}, got); diff != "" {
			t.Errorf("Decode (-want, +got):\n%s", diff)
		}
	})
}
