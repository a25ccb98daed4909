package jpath_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/creachadair/jbind/jpath"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
	}{
		{"$.store.book[*]..author"},
		{"$..author"},
		{"$.store.*"},
		{"$.store..price"},
		{"$..book[2]"},
		{"$..book[(@.length-1)]"},
		{"$..book[-1:]"},
		{"$..book[0,1]"},
		{"$..book[:2]"},
		{"$..book[?(@.isbn)]"},
		{"$..book[?(@price<10)]"},
		{"$..*"},
		{"$['apple sauce'].pearPlum..'cherry apple'"},
		{"$[a][1:3][b]['c d e']"},
	}
	for _, test := range tests {
		e, err := jpath.Parse(test.input)
		if err != nil {
			t.Errorf("Parse %q: %v", test.input, err)
			continue
		}

		want := test.input
		if got := e.String(); got != want {
			t.Errorf("Parse %q:\n got %q\nwant %q", test.input, got, want)
		}
	}
}

func TestConstruct(t *testing.T) {
	tests := []struct {
		steps jpath.Expr
		want  string
	}{
		{nil, "$"},
		{jpath.Expr{jpath.Key("items"), jpath.At(2), jpath.Key("name")}, "$.items[2].name"},
		{jpath.Expr{jpath.Key("odd key")}, "$['odd key']"},
		{jpath.Expr{jpath.Key("2nd")}, "$['2nd']"},
		{jpath.Expr{jpath.Key("it's")}, `$['it\'s']`},
		{jpath.Expr{jpath.At(0), jpath.At(1)}, "$[0][1]"},
	}
	for _, test := range tests {
		if got := test.steps.String(); got != test.want {
			t.Errorf("String: got %q, want %q", got, test.want)
		}
	}
}

func TestMatch(t *testing.T) {
	path := func(steps ...jpath.Step) jpath.Expr { return steps }
	k, i := jpath.Key, jpath.At

	tests := []struct {
		pattern string
		path    jpath.Expr
		want    bool
	}{
		{"$", path(), true},
		{"$", path(k("a")), false},
		{"$.a", path(k("a")), true},
		{"$.a", path(k("b")), false},
		{"$.a", path(k("a"), k("b")), false},
		{"$.a.b", path(k("a"), k("b")), true},
		{"$['odd key']", path(k("odd key")), true},
		{"$[a]", path(k("a")), true},
		{"$.*", path(k("x")), true},
		{"$.*", path(i(3)), true},
		{"$[*].id", path(i(3), k("id")), true},
		{"$.items[2]", path(k("items"), i(2)), true},
		{"$.items[2]", path(k("items"), i(1)), false},
		{"$.items[0,2]", path(k("items"), i(2)), true},
		{"$.items[1:3]", path(k("items"), i(2)), true},
		{"$.items[1:3]", path(k("items"), i(3)), false},
		{"$.items[:2]", path(k("items"), i(0)), true},
		{"$.items[1:]", path(k("items"), i(9)), true},
		{"$.items[-1:]", path(k("items"), i(9)), false},
		{"$..secret", path(k("secret")), true},
		{"$..secret", path(k("a"), i(4), k("secret")), true},
		{"$..secret", path(k("a"), k("secret"), k("b")), false},
		{"$..secret.b", path(k("a"), k("secret"), k("b")), true},
		{"$..*", path(k("a"), i(0)), true},
		{"$.items[?(@.x)]", path(k("items"), i(0)), false},
		{"$.items", path(k("items"), i(0)), false},
	}
	for _, test := range tests {
		e, err := jpath.Parse(test.pattern)
		if err != nil {
			t.Fatalf("Parse %q: %v", test.pattern, err)
		}
		if got := e.Match(test.path); got != test.want {
			t.Errorf("Match(%q, %q): got %v, want %v", test.pattern, test.path, got, test.want)
		}
	}
}

func TestParseSteps(t *testing.T) {
	e, err := jpath.Parse("$.a['b c'][3]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := jpath.Expr{
		{Op: jpath.Member, Arg1: "a", Arg2: "name"},
		{Op: jpath.QName, Arg1: "b c"},
		{Op: jpath.Index, Arg1: "3"},
	}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Errorf("Parse (-want, +got):\n%s", diff)
	}
	if _, err := jpath.Parse("a.b"); err == nil {
		t.Error("Parse without root: got nil error")
	}
}
