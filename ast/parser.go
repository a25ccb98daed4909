// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package ast

import (
	"errors"
	"fmt"
	"io"

	"github.com/creachadair/jbind"
)

// Parse parses and returns the JSON values from r. In case of error, any
// complete values already parsed are returned along with the error.
func Parse(r io.Reader) ([]Value, error) {
	b := new(Builder)
	st := jbind.NewStream(r)
	var vs []Value
	for {
		if err := st.ParseOne(b); err == io.EOF {
			return vs, nil
		} else if err != nil {
			return vs, err
		}
		v := b.Result()
		if v == nil {
			return vs, errors.New("incomplete value")
		}
		vs = append(vs, v)
		b.Reset()
	}
}

// ParseSingle parses a single JSON value from r. It is an error if r holds
// anything other than exactly one value.
func ParseSingle(r io.Reader) (Value, error) {
	vs, err := Parse(r)
	if err != nil {
		return nil, err
	} else if len(vs) != 1 {
		return nil, fmt.Errorf("got %d values, want 1", len(vs))
	}
	return vs[0], nil
}

// FromAnchor constructs a datum for the scalar token at loc.
// The result does not alias the text of loc.
func FromAnchor(loc jbind.Anchor) (Value, error) {
	span := loc.Location().Span
	return newDatum(loc.Token(), datum{pos: span.Pos, end: span.End, text: loc.Copy()})
}

func newDatum(tok jbind.Token, d datum) (Value, error) {
	switch tok {
	case jbind.String:
		return &String{datum: d}, nil
	case jbind.Integer:
		return &Integer{datum: d}, nil
	case jbind.Number:
		return &Number{datum: d}, nil
	case jbind.True, jbind.False:
		return &Bool{datum: d, value: tok == jbind.True}, nil
	case jbind.Null:
		return &Null{datum: d}, nil
	default:
		return nil, fmt.Errorf("unknown value %v", tok)
	}
}

// A Builder implements the jbind.Handler interface to construct an abstract
// syntax tree for one JSON value at a time. The builder keeps its partial
// tree on an explicit stack, so events may be delivered to it incrementally
// by any producer.
type Builder struct {
	stk  []Value
	open int // number of unclosed objects, arrays, and members
	tbuf [][]byte
}

// Result returns the completed value, or nil if no value has been completed
// since the last Reset.
func (b *Builder) Result() Value {
	if b.open != 0 || len(b.stk) != 1 {
		return nil
	}
	return b.stk[0]
}

// Reset discards any partial or completed value. Interned text buffers are
// not reused, since completed values may still refer to them.
func (b *Builder) Reset() {
	clear(b.stk)
	b.stk = b.stk[:0]
	b.open = 0
	b.tbuf = nil
}

// intern interns a copy of text and returns a slice of the copy.  Allocations
// are batched to reduce allocation overhead.
func (b *Builder) intern(text []byte) []byte {
	const bufBlockBytes = 8192

	if len(text) >= bufBlockBytes {
		return append([]byte(nil), text...)
	}

	i := 0
	for i < len(b.tbuf) {
		if len(b.tbuf[i])+len(text) < cap(b.tbuf[i]) {
			break
		}
		i++
	}
	if i == len(b.tbuf) {
		b.tbuf = append(b.tbuf, make([]byte, 0, bufBlockBytes))
	}
	s := len(b.tbuf[i])
	b.tbuf[i] = append(b.tbuf[i], text...)
	return b.tbuf[i][s : s+len(text) : s+len(text)]
}

func (b *Builder) reduce(end int) {
	b.open--
	v := b.pop()
	switch t := v.(type) {
	case *Object:
		t.end = end
	case *Array:
		t.end = end
	}
	b.reduceValue(v)
}

func (b *Builder) reduceValue(v Value) {
	if len(b.stk) == 0 {
		b.push(v)
		return
	}
	switch prev := b.top().(type) {
	case *Member:
		prev.Value = v
		prev.end = v.Span().End
	case *Object:
		// already in the object
	case *Array:
		prev.Values = append(prev.Values, v)
	}
}

func (b *Builder) top() Value { return b.stk[len(b.stk)-1] }

func (b *Builder) pop() Value {
	last := b.top()
	b.stk[len(b.stk)-1] = nil
	b.stk = b.stk[:len(b.stk)-1]
	return last
}

func (b *Builder) push(v Value) { b.stk = append(b.stk, v) }

func (b *Builder) begin(v Value) {
	b.open++
	b.push(v)
}

// BeginObject implements part of the jbind.Handler interface.
func (b *Builder) BeginObject(loc jbind.Anchor) error {
	b.begin(&Object{pos: loc.Location().Pos})
	return nil
}

// EndObject implements part of the jbind.Handler interface.
func (b *Builder) EndObject(loc jbind.Anchor) error {
	if _, ok := b.current().(*Object); !ok {
		return errors.New("unbalanced end of object")
	}
	b.reduce(loc.Location().End)
	return nil
}

// BeginArray implements part of the jbind.Handler interface.
func (b *Builder) BeginArray(loc jbind.Anchor) error {
	b.begin(&Array{pos: loc.Location().Pos})
	return nil
}

// EndArray implements part of the jbind.Handler interface.
func (b *Builder) EndArray(loc jbind.Anchor) error {
	if _, ok := b.current().(*Array); !ok {
		return errors.New("unbalanced end of array")
	}
	b.reduce(loc.Location().End)
	return nil
}

// BeginMember implements part of the jbind.Handler interface.
func (b *Builder) BeginMember(loc jbind.Anchor) error {
	// The object this member belongs to is atop the stack.  Add a pointer to
	// the new member into its collection eagerly, so that when reducing the
	// stack after the value is known, we don't have to reduce multiple times.
	obj, ok := b.current().(*Object)
	if !ok {
		return errors.New("member outside of object")
	}
	key, err := jbind.UnquoteText(loc.Text())
	if err != nil {
		return fmt.Errorf("invalid member key: %w", err)
	}
	mem := &Member{pos: loc.Location().Pos, Key: string(key)}
	obj.Members = append(obj.Members, mem)
	b.begin(mem)
	return nil
}

// EndMember implements part of the jbind.Handler interface.
func (b *Builder) EndMember(loc jbind.Anchor) error {
	if m, ok := b.current().(*Member); !ok || m.Value == nil {
		return errors.New("incomplete member")
	}
	b.open--
	b.pop()
	return nil
}

// Value implements part of the jbind.Handler interface.
func (b *Builder) Value(loc jbind.Anchor) error {
	span := loc.Location().Span
	v, err := newDatum(loc.Token(), datum{pos: span.Pos, end: span.End, text: b.intern(loc.Text())})
	if err != nil {
		return err
	}
	if b.open == 0 && len(b.stk) != 0 {
		return errors.New("value follows a complete value")
	}
	b.reduceValue(v)
	return nil
}

// EndOfInput implements part of the jbind.Handler interface.
func (b *Builder) EndOfInput(loc jbind.Anchor) {}

// current returns the innermost open value, or nil.
func (b *Builder) current() Value {
	if b.open == 0 || len(b.stk) == 0 {
		return nil
	}
	return b.top()
}
