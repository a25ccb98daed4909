// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package shape_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/jbind/ast"
	"github.com/creachadair/jbind/convert"
	"github.com/creachadair/jbind/shape"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type bag struct{ items []string }

func (b *bag) Add(s string) { b.items = append(b.items, s) }

type ledger struct{ total map[string]int }

func (l *ledger) Add(k string, v int) error { l.total[k] += v; return nil }

type frozenList struct{ vals []int }

func (f *frozenList) FromSlice(vs []int) error { f.vals = vs; return nil }

type pairs struct{ keys, vals []string }

func (p *pairs) FromPairs(ks, vs []string) error { p.keys, p.vals = ks, vs; return nil }

type raw string

func (r *raw) UnmarshalJSON(data []byte) error { *r = raw(data); return nil }

type Point struct {
	X, Y int
}

type Base struct {
	ID   int    `json:"id"`
	Note string `json:"note"`
}

type record struct {
	Base
	*Point
	Name    string `json:"name"`
	Note    string `json:"note"` // shadows Base.Note
	Secret  string `json:"-"`
	Version int    `json:"version,readonly"`
	hidden  int
}

func TestClassify(t *testing.T) {
	r := shape.NewRegistry()
	tests := []struct {
		value any
		want  shape.Shape
	}{
		{new(any), shape.Dynamic},
		{new(ast.Value), shape.Dynamic},
		{raw(""), shape.Scalar},
		{time.Time{}, shape.Scalar},
		{[]byte(nil), shape.Scalar},
		{frozenList{}, shape.Sequence},
		{pairs{}, shape.Map},
		{bag{}, shape.Sequence},
		{ledger{}, shape.Map},
		{[]int(nil), shape.Sequence},
		{[3]int{}, shape.Sequence},
		{map[string]bool(nil), shape.Map},
		{map[int]string(nil), shape.Map},
		{Point{}, shape.Object},
		{true, shape.Scalar},
		{int16(0), shape.Scalar},
		{uint(0), shape.Scalar},
		{float32(0), shape.Scalar},
		{"", shape.Scalar},
		{new(*int), shape.Scalar}, // pointers are removed
	}
	for _, test := range tests {
		typ := reflect.TypeOf(test.value)
		d, err := r.Resolve(typ)
		if err != nil {
			t.Errorf("Resolve %v: unexpected error: %v", typ, err)
			continue
		}
		if d.Shape != test.want {
			t.Errorf("Resolve %v: got %v, want %v", typ, d.Shape, test.want)
		}
		if (d.Shape == shape.Object) == (d.Whole != nil) {
			t.Errorf("Resolve %v: whole property is %v for shape %v", typ, d.Whole, d.Shape)
		}
	}
}

func TestStrategies(t *testing.T) {
	r := shape.NewRegistry()
	resolve := func(v any) *shape.Descriptor {
		t.Helper()
		d, err := r.Resolve(reflect.TypeOf(v))
		if err != nil {
			t.Fatalf("Resolve %T: %v", v, err)
		}
		return d
	}

	if d := resolve([]int(nil)); !d.InPlace || d.Build != nil || d.AddResolver != nil {
		t.Errorf("Slice: want in-place only, got %+v", d)
	}
	if d := resolve([3]int{}); !d.Fixed || d.MaxLen != 3 || d.Build == nil || d.InPlace {
		t.Errorf("Array: want fixed staged, got %+v", d)
	}
	if d := resolve(frozenList{}); d.Build == nil || d.ElemType != reflect.TypeFor[int]() {
		t.Errorf("FromSlice: want staged int, got %+v", d)
	}
	if d := resolve(pairs{}); d.BuildMap == nil || d.KeyType != reflect.TypeFor[string]() {
		t.Errorf("FromPairs: want staged map, got %+v", d)
	}

	t.Run("Add", func(t *testing.T) {
		d := resolve(bag{})
		target := reflect.New(d.Type).Elem()
		add, err := d.AddResolver(target)
		if err != nil {
			t.Fatalf("AddResolver: %v", err)
		}
		for _, s := range []string{"a", "b"} {
			if err := add(reflect.ValueOf(s)); err != nil {
				t.Fatalf("Add %q: %v", s, err)
			}
		}
		if diff := cmp.Diff([]string{"a", "b"}, target.Interface().(bag).items); diff != "" {
			t.Errorf("Items (-want, +got):\n%s", diff)
		}
		if _, err := d.AddResolver(reflect.ValueOf(bag{})); err == nil {
			t.Error("AddResolver on unaddressable instance: got nil error")
		}
	})

	t.Run("Set", func(t *testing.T) {
		d := resolve(ledger{})
		target := reflect.ValueOf(&ledger{total: map[string]int{}}).Elem()
		set, err := d.SetResolver(target)
		if err != nil {
			t.Fatalf("SetResolver: %v", err)
		}
		set(reflect.ValueOf("x"), reflect.ValueOf(2))
		set(reflect.ValueOf("x"), reflect.ValueOf(3))
		if got := target.Interface().(ledger).total["x"]; got != 5 {
			t.Errorf("Total: got %d, want 5", got)
		}
	})

	t.Run("BuildArray", func(t *testing.T) {
		d := resolve([3]int{})
		v, err := d.Build(reflect.ValueOf([]int{4, 5}))
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if got := v.Interface().([3]int); got != [3]int{4, 5, 0} {
			t.Errorf("Build: got %v, want [4 5 0]", got)
		}
		if _, err := d.Build(reflect.ValueOf([]int{1, 2, 3, 4})); err == nil {
			t.Error("Build with too many elements: got nil error")
		}
	})
}

func TestProperties(t *testing.T) {
	d, err := shape.NewRegistry().Resolve(reflect.TypeFor[record]())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	type prop struct {
		Name     string
		Index    []int
		ReadOnly bool
	}
	var got []prop
	for i, p := range d.Properties {
		if p.Ordinal != i {
			t.Errorf("Property %q: ordinal %d, want %d", p.Name, p.Ordinal, i)
		}
		if p.Owner != d.Type {
			t.Errorf("Property %q: owner %v, want %v", p.Name, p.Owner, d.Type)
		}
		got = append(got, prop{p.Name, p.Index, p.ReadOnly})
	}
	want := []prop{
		{"id", []int{0, 0}, false},
		{"X", []int{1, 0}, false},
		{"Y", []int{1, 1}, false},
		{"name", []int{2}, false},
		{"note", []int{3}, false},
		{"version", []int{5}, true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Properties (-want, +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	r := shape.NewRegistry()
	d, err := r.Resolve(reflect.TypeFor[record]())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if p, _ := d.Lookup([]byte("name"), 0, false); p.Name != "name" {
		t.Errorf("Lookup name: got %q", p.Name)
	}
	if p, _ := d.Lookup([]byte("NAME"), 0, false); p != shape.Missing {
		t.Errorf("Lookup NAME: got %q, want missing", p.Name)
	}
	if p, _ := d.Lookup([]byte("NAME"), 0, true); p.Name != "name" {
		t.Errorf("Lookup NAME folded: got %q", p.Name)
	}
	if !shape.Missing.ReadOnly {
		t.Error("Missing property should be read-only")
	}

	// After remembering an order, lookups in that order advance the cursor
	// one step at a time.
	d.Remember([]int{3, 0, 5})
	if diff := cmp.Diff([]int{3, 0, 5}, d.Order()); diff != "" {
		t.Errorf("Order (-want, +got):\n%s", diff)
	}
	cursor := 0
	for i, name := range []string{"name", "id", "version"} {
		p, next := d.Lookup([]byte(name), cursor, false)
		if p.Name != name || next != i+1 {
			t.Errorf("Lookup %q at %d: got %q, %d; want %q, %d", name, cursor, p.Name, next, name, i+1)
		}
		cursor = next
	}

	// A property outside the remembered order is still found.
	if p, next := d.Lookup([]byte("X"), 1, false); p.Name != "X" || next != 1 {
		t.Errorf("Lookup X: got %q, %d", p.Name, next)
	}
}

func TestLookupFoldPrefersExact(t *testing.T) {
	type pair struct {
		Lo int `json:"a"`
		Up int `json:"A"`
	}
	d, err := shape.NewRegistry().Resolve(reflect.TypeFor[pair]())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	check := func(name, want string) {
		t.Helper()
		if p, _ := d.Lookup([]byte(name), 0, true); p.Name != want {
			t.Errorf("Lookup %q folded: got %q, want %q", name, p.Name, want)
		}
	}
	check("a", "a")
	check("A", "A")

	// A remembered order that puts the other property first does not change
	// the preference for an exact match.
	d.Remember([]int{0, 1})
	check("A", "A")
	d.Remember([]int{1, 0})
	check("a", "a")
}

func TestConcurrentResolve(t *testing.T) {
	r := shape.NewRegistry()
	var wg sync.WaitGroup
	got := make([]*shape.Descriptor, 16)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := r.Resolve(reflect.TypeFor[map[string][]record]())
			if err != nil {
				t.Errorf("Resolve: %v", err)
			}
			got[i] = d
		}()
	}
	wg.Wait()
	for _, d := range got[1:] {
		if d != got[0] {
			t.Fatal("Resolve returned distinct descriptors for the same type")
		}
	}
}

type node struct {
	Value int     `json:"value"`
	Kids  []*node `json:"kids"`
}

func TestErrors(t *testing.T) {
	r := shape.NewRegistry()
	for _, typ := range []reflect.Type{
		reflect.TypeFor[chan int](),
		reflect.TypeFor[func()](),
		reflect.TypeFor[error](),
		reflect.TypeFor[map[Point]int](),
		reflect.TypeFor[complex128](),
	} {
		_, err := r.Resolve(typ)
		var rerr *shape.ResolutionError
		if !errors.As(err, &rerr) {
			t.Errorf("Resolve %v: got %v, want *ResolutionError", typ, err)
		} else if rerr.Type != typ {
			t.Errorf("Resolve %v: error names %v", typ, rerr.Type)
		}
	}

	// Recursive types are described one level at a time.
	d, err := r.Resolve(reflect.TypeFor[node]())
	if err != nil {
		t.Fatalf("Resolve node: %v", err)
	}
	if d.Properties[1].Type != reflect.TypeFor[[]*node]() {
		t.Errorf("Kids type: got %v", d.Properties[1].Type)
	}
}

func TestDefault(t *testing.T) {
	d, err := shape.Default.Resolve(reflect.TypeFor[uuid.UUID]())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Shape != shape.Scalar || d.Convert == nil {
		t.Errorf("UUID: got %v", d)
	}

	// A registered converter takes precedence over method-based rules.
	r := shape.NewRegistry()
	r.Register(reflect.TypeFor[[]int](), convert.Func(func(src ast.Value, dst reflect.Value) error {
		return json.Unmarshal([]byte(src.JSON()), dst.Addr().Interface())
	}))
	if d, err := r.Resolve(reflect.TypeFor[[]int]()); err != nil || d.Shape != shape.Scalar {
		t.Errorf("Registered: got %v, %v", d, err)
	}
}

func TestShapeSet(t *testing.T) {
	s := shape.SetOf(shape.Scalar, shape.Map)
	for _, v := range []shape.Shape{shape.Scalar, shape.Map} {
		if !s.Has(v) {
			t.Errorf("Set %v: missing %v", s, v)
		}
	}
	if s.Has(shape.Object) {
		t.Errorf("Set %v: unexpectedly has object", s)
	}
	if got, want := s.Add(shape.Dynamic).String(), "{scalar,map,dynamic}"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	if !shape.DefaultTerminal.Has(shape.Dynamic) || shape.DefaultTerminal.Has(shape.Sequence) {
		t.Errorf("DefaultTerminal: got %v", shape.DefaultTerminal)
	}

	for _, name := range []string{"scalar", "Object", "DYNAMIC"} {
		if _, err := shape.ParseShape(name); err != nil {
			t.Errorf("ParseShape %q: %v", name, err)
		}
	}
	if _, err := shape.ParseShape("invalid"); err == nil {
		t.Error("ParseShape invalid: got nil error")
	}
}
