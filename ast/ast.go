// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

// Package ast defines an abstract syntax tree for JSON values,
// and a builder that constructs syntax trees from stream events.
//
// Syntax trees are how the binding layer hands composite input to a value
// converter in one piece: a slot whose destination type is dynamic receives
// the complete subtree rather than a position in the middle of the stream.
package ast

import (
	"strconv"
	"strings"

	"github.com/creachadair/jbind"
)

// A Value is an arbitrary JSON value.
type Value interface {
	// Span reports the location of the value in its source, if known.
	Span() jbind.Span

	// JSON renders the value as compact JSON text.
	JSON() string
}

// A Datum is a Value with a text representation.
type Datum interface {
	Value
	Text() string
}

func newSpan(pos, end int) jbind.Span { return jbind.Span{Pos: pos, End: end} }

// An Object is a collection of key-value members.
type Object struct {
	pos, end int
	Members  []*Member
}

// Span satisfies the Value interface.
func (o *Object) Span() jbind.Span { return newSpan(o.pos, o.end) }

// JSON satisfies the Value interface.
func (o *Object) JSON() string {
	var sb strings.Builder
	writeJSON(&sb, o)
	return sb.String()
}

// Find returns the first member of o with the given key, or nil.
func (o *Object) Find(key string) *Member {
	for _, m := range o.Members {
		if m.Key == key {
			return m
		}
	}
	return nil
}

// A Member is a single key-value pair belonging to an Object.
type Member struct {
	pos, end int

	Key   string // unescaped
	Value Value
}

// Field constructs a new member with the given key and value.
func Field(key string, val Value) *Member { return &Member{Key: key, Value: val} }

// Span satisfies the Value interface.
func (m *Member) Span() jbind.Span { return newSpan(m.pos, m.end) }

// JSON satisfies the Value interface.
func (m *Member) JSON() string {
	var sb strings.Builder
	writeJSON(&sb, m)
	return sb.String()
}

// An Array is a sequence of values.
type Array struct {
	pos, end int

	Values []Value
}

// Span satisfies the Value interface.
func (a *Array) Span() jbind.Span { return newSpan(a.pos, a.end) }

// JSON satisfies the Value interface.
func (a *Array) JSON() string {
	var sb strings.Builder
	writeJSON(&sb, a)
	return sb.String()
}

type datum struct {
	pos, end int
	text     []byte
}

// Span satisfies the Value interface.
func (d datum) Span() jbind.Span { return newSpan(d.pos, d.end) }

// Text satisfies the Datum interface.
func (d datum) Text() string { return string(d.text) }

// JSON satisfies the Value interface. The text of a datum is its JSON.
func (d datum) JSON() string { return string(d.text) }

// An Integer is an integer value.
type Integer struct{ datum }

// NewInt constructs an Integer with value z.
func NewInt(z int64) *Integer {
	return &Integer{datum{text: strconv.AppendInt(nil, z, 10)}}
}

// Int64 reports the value of z as an int64.
func (z *Integer) Int64() (int64, error) { return strconv.ParseInt(string(z.text), 10, 64) }

// Uint64 reports the value of z as a uint64.
func (z *Integer) Uint64() (uint64, error) { return strconv.ParseUint(string(z.text), 10, 64) }

// Float64 reports the value of z as a float64.
func (z *Integer) Float64() (float64, error) { return strconv.ParseFloat(string(z.text), 64) }

// A Number is a floating-point value.
type Number struct{ datum }

// NewFloat constructs a Number with value f.
func NewFloat(f float64) *Number {
	return &Number{datum{text: strconv.AppendFloat(nil, f, 'g', -1, 64)}}
}

// Float64 reports the value of n as a float64.
func (n *Number) Float64() (float64, error) { return strconv.ParseFloat(string(n.text), 64) }

// A Bool is a Boolean constant, true or false.
type Bool struct {
	datum
	value bool
}

// NewBool constructs a Bool with value ok.
func NewBool(ok bool) *Bool {
	return &Bool{datum: datum{text: []byte(strconv.FormatBool(ok))}, value: ok}
}

// Value reports the truth value of b.
func (b *Bool) Value() bool { return b.value }

// A String is a string value. Its text is the quoted JSON source.
type String struct{ datum }

// NewString constructs a String whose unescaped value is s.
func NewString(s string) *String { return &String{datum{text: []byte(jbind.Quote(s))}} }

// Unescape returns the decoded value of s.
func (s *String) Unescape() (string, error) {
	dec, err := jbind.UnquoteText(s.text)
	if err != nil {
		return "", err
	}
	return string(dec), nil
}

// Null represents the null constant.
type Null struct{ datum }

// NewNull constructs a Null value.
func NewNull() *Null { return &Null{datum{text: []byte("null")}} }

func writeJSON(sb *strings.Builder, v Value) {
	switch t := v.(type) {
	case *Object:
		sb.WriteByte('{')
		for i, m := range t.Members {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, m)
		}
		sb.WriteByte('}')
	case *Member:
		sb.WriteString(jbind.Quote(t.Key))
		sb.WriteByte(':')
		if t.Value == nil {
			sb.WriteString("null")
		} else {
			writeJSON(sb, t.Value)
		}
	case *Array:
		sb.WriteByte('[')
		for i, elt := range t.Values {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, elt)
		}
		sb.WriteByte(']')
	default:
		sb.WriteString(v.JSON())
	}
}
