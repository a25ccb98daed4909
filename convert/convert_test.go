// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package convert_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/creachadair/jbind/ast"
	"github.com/creachadair/jbind/convert"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func mustParse(t *testing.T, input string) ast.Value {
	t.Helper()
	v, err := ast.ParseSingle(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse %q: %v", input, err)
	}
	return v
}

// run converts input into a new value of type T.
func run[T any](t *testing.T, c convert.Converter, input string) (T, error) {
	t.Helper()
	var out T
	err := c.Convert(mustParse(t, input), reflect.ValueOf(&out).Elem())
	return out, err
}

func check[T any](t *testing.T, c convert.Converter, input string, want T) {
	t.Helper()
	got, err := run[T](t, c, input)
	if err != nil {
		t.Errorf("Convert %q: unexpected error: %v", input, err)
	} else if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Convert %q (-want, +got):\n%s", input, diff)
	}
}

func checkErr[T any](t *testing.T, c convert.Converter, input string, want error) {
	t.Helper()
	_, err := run[T](t, c, input)
	var cerr *convert.Error
	if !errors.As(err, &cerr) {
		t.Errorf("Convert %q: got %v, want *convert.Error", input, err)
	} else if want != nil && !errors.Is(err, want) {
		t.Errorf("Convert %q: got %v, want %v", input, err, want)
	}
}

func TestScalars(t *testing.T) {
	check(t, convert.Bool, `true`, true)
	check(t, convert.Bool, `null`, false)
	check(t, convert.Int, `-25`, -25)
	check(t, convert.Int, `127`, int8(127))
	check(t, convert.Uint, `300`, uint16(300))
	check(t, convert.Float, `1.5e3`, 1500.0)
	check(t, convert.Float, `7`, float32(7))
	check(t, convert.String, `"a\tb c"`, "a\tb c")
	check(t, convert.Bytes, `"aGVsbG8="`, []byte("hello"))

	checkErr[bool](t, convert.Bool, `1`, convert.ErrMismatch)
	checkErr[int](t, convert.Int, `1.5`, convert.ErrMismatch)
	checkErr[int8](t, convert.Int, `128`, convert.ErrOverflow)
	checkErr[int64](t, convert.Int, `99999999999999999999`, convert.ErrOverflow)
	checkErr[uint](t, convert.Uint, `-1`, convert.ErrMismatch)
	checkErr[float32](t, convert.Float, `1e300`, convert.ErrOverflow)
	checkErr[string](t, convert.String, `15`, convert.ErrMismatch)
	checkErr[[]byte](t, convert.Bytes, `"not base64!"`, nil)
	checkErr[int](t, convert.Int, `[1, 2]`, convert.ErrMismatch)
}

type upper string

func (u *upper) UnmarshalJSON(data []byte) error {
	*u = upper(strings.ToUpper(string(data)))
	return nil
}

func TestText(t *testing.T) {
	check(t, convert.Text, `"2021-06-01T10:00:00Z"`, time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC))
	checkErr[time.Time](t, convert.Text, `"yesterday"`, nil)
	checkErr[time.Time](t, convert.Text, `true`, convert.ErrMismatch)

	id := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	check(t, convert.UUID, `"f47ac10b-58cc-4372-a567-0e02b2c3d479"`, id)
	checkErr[uuid.UUID](t, convert.UUID, `"f47ac10b"`, nil)

	// The unmarshaler receives the compact rendering of the whole value.
	check(t, convert.JSON, `{ "a" : [1, true] }`, upper(`{"A":[1,TRUE]}`))

	check(t, convert.Std, `{"x": [1, 2]}`, struct{ X []int }{X: []int{1, 2}})
}

func TestAny(t *testing.T) {
	check[any](t, convert.Any, `{"a": [1, 2.5, "x", null, false], "b": {}}`, map[string]any{
		"a": []any{1.0, 2.5, "x", nil, false},
		"b": map[string]any{},
	})
	check[any](t, convert.Any, `null`, nil)
	check(t, convert.Any, `[true]`, []any{true})
	checkErr[[]any](t, convert.Any, `{}`, convert.ErrMismatch)

	v := mustParse(t, `{"p": [1]}`)
	var got ast.Value
	if err := convert.Tree.Convert(v, reflect.ValueOf(&got).Elem()); err != nil {
		t.Fatalf("Tree: unexpected error: %v", err)
	}
	if got != v {
		t.Errorf("Tree: got %v, want %v", got, v)
	}
}

type color int

func (c *color) UnmarshalText(text []byte) error {
	switch string(text) {
	case "red":
		*c = 1
	case "blue":
		*c = 2
	default:
		return errors.New("unknown color")
	}
	return nil
}

func TestKey(t *testing.T) {
	key := func(name string, dst any) error {
		return convert.Key(name, reflect.ValueOf(dst).Elem())
	}
	var s string
	var z int16
	var u uint8
	var c color
	if err := key("hello", &s); err != nil || s != "hello" {
		t.Errorf("Key string: got %q, %v", s, err)
	}
	if err := key("-12", &z); err != nil || z != -12 {
		t.Errorf("Key int16: got %d, %v", z, err)
	}
	if err := key("200", &u); err != nil || u != 200 {
		t.Errorf("Key uint8: got %d, %v", u, err)
	}
	if err := key("blue", &c); err != nil || c != 2 {
		t.Errorf("Key color: got %d, %v", c, err)
	}
	if err := key("300", &u); !errors.Is(err, convert.ErrOverflow) {
		t.Errorf("Key uint8 overflow: got %v, want %v", err, convert.ErrOverflow)
	}
	if err := key("green", &c); err == nil {
		t.Error("Key color: got nil error for unknown name")
	}
	var f float64
	if err := key("1.5", &f); !errors.Is(err, convert.ErrMismatch) {
		t.Errorf("Key float64: got %v, want %v", err, convert.ErrMismatch)
	}
}

func TestErrorText(t *testing.T) {
	_, err := run[int](t, convert.Int, `"`+strings.Repeat("x", 60)+`"`)
	var cerr *convert.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("Convert: got %v, want *convert.Error", err)
	}
	if got := len(cerr.Text); got != 43 {
		t.Errorf("Error text length: got %d, want 43", got)
	}
	if cerr.Type != reflect.TypeFor[int]() {
		t.Errorf("Error type: got %v, want int", cerr.Type)
	}
}
