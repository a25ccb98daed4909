// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

// Package shape describes Go types to the decoder.
//
// A Descriptor classifies a type as one of a closed set of shapes, and
// records what the decoder needs to populate a value of that type: its
// properties, its element type, and the functions that add to or construct
// it. Descriptors are immutable once published by a Registry, and may be
// shared by any number of concurrent decodes.
package shape

import (
	"fmt"
	"strings"
)

// A Shape classifies how a type is populated from JSON.
type Shape byte

// Constants defining the valid Shape values.
const (
	Invalid  Shape = iota // not a valid shape
	Scalar                // a single value, populated by a converter
	Sequence              // an ordered collection of elements
	Map                   // a collection of key-value entries
	Object                // a value with named properties
	Dynamic               // a value whose shape is known only from the input
)

var shapeStr = [...]string{
	Invalid:  "invalid",
	Scalar:   "scalar",
	Sequence: "sequence",
	Map:      "map",
	Object:   "object",
	Dynamic:  "dynamic",
}

func (s Shape) String() string {
	if int(s) >= len(shapeStr) {
		return shapeStr[Invalid]
	}
	return shapeStr[s]
}

// ParseShape returns the Shape with the given name, ignoring case.
func ParseShape(name string) (Shape, error) {
	for i, s := range shapeStr {
		if i != int(Invalid) && strings.EqualFold(s, name) {
			return Shape(i), nil
		}
	}
	return Invalid, fmt.Errorf("unknown shape %q", name)
}

// A Set is a set of shapes.
type Set uint8

// SetOf returns a Set containing the specified shapes.
func SetOf(ss ...Shape) Set {
	var out Set
	for _, s := range ss {
		out |= 1 << s
	}
	return out
}

// Has reports whether s contains v.
func (s Set) Has(v Shape) bool { return s&(1<<v) != 0 }

// Add returns a copy of s with v added.
func (s Set) Add(v Shape) Set { return s | 1<<v }

func (s Set) String() string {
	var names []string
	for i := Scalar; i <= Dynamic; i++ {
		if s.Has(i) {
			names = append(names, i.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}

// DefaultTerminal is the default set of shapes that are read as a single
// unit by a converter, rather than being populated piecewise.
var DefaultTerminal = SetOf(Scalar, Dynamic)
