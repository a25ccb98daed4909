// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

// Package convert implements value converters, which turn a JSON syntax tree
// into a typed Go value.
//
// A converter is always handed a complete value: a scalar datum, or a whole
// object or array subtree. Converters never observe a partially-read input.
package convert

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/creachadair/jbind/ast"
)

// A Converter populates dst from the JSON value src. The dst value must be
// addressable and settable. A Converter that receives a JSON null should
// leave dst unchanged unless its type gives null a meaning.
type Converter interface {
	Convert(src ast.Value, dst reflect.Value) error
}

// Func adapts a function to the Converter interface.
type Func func(src ast.Value, dst reflect.Value) error

// Convert implements the Converter interface.
func (f Func) Convert(src ast.Value, dst reflect.Value) error { return f(src, dst) }

var (
	// ErrMismatch is reported when a value has the wrong JSON type for the
	// destination.
	ErrMismatch = errors.New("convert: value has the wrong type")

	// ErrOverflow is reported when a number does not fit the destination.
	ErrOverflow = errors.New("convert: value out of range")
)

// Error is the concrete type of errors reported by the converters in this
// package.
type Error struct {
	Type reflect.Type // the destination type
	Text string       // the JSON text of the source, possibly truncated
	Err  error        // the underlying error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("cannot convert %s to %v: %v", e.Text, e.Type, e.Err)
}

// Unwrap supports error wrapping.
func (e *Error) Unwrap() error { return e.Err }

const maxErrorText = 40

func newError(src ast.Value, dst reflect.Type, err error) *Error {
	var text string
	if src != nil {
		text = src.JSON()
		if len(text) > maxErrorText {
			text = text[:maxErrorText] + "..."
		}
	}
	return &Error{Type: dst, Text: text, Err: err}
}

func mismatch(src ast.Value, dst reflect.Value) error {
	return newError(src, dst.Type(), ErrMismatch)
}

func isNull(src ast.Value) bool {
	_, ok := src.(*ast.Null)
	return ok
}
