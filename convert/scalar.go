// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package convert

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"

	"github.com/creachadair/jbind/ast"
	"github.com/google/uuid"
)

var (
	// Bool converts true and false to a bool kind.
	Bool Converter = Func(convertBool)

	// Int converts integers to a signed integer kind.
	Int Converter = Func(convertInt)

	// Uint converts non-negative integers to an unsigned integer kind.
	Uint Converter = Func(convertUint)

	// Float converts numbers to a floating-point kind.
	Float Converter = Func(convertFloat)

	// String converts strings to a string kind.
	String Converter = Func(convertString)

	// Bytes converts base64-encoded strings to a byte slice.
	Bytes Converter = Func(convertBytes)

	// Text converts strings via the encoding.TextUnmarshaler implementation
	// of the destination.
	Text Converter = Func(convertText)

	// JSON converts any value via the json.Unmarshaler implementation of the
	// destination, which receives the compact rendering of the value.
	JSON Converter = Func(convertJSON)

	// Std converts any value with the standard library's json.Unmarshal.
	// It is used for composite destinations that are configured to be read
	// as a single unit.
	Std Converter = Func(convertStd)

	// UUID converts strings to a uuid.UUID.
	UUID Converter = Func(convertUUID)
)

func convertBool(src ast.Value, dst reflect.Value) error {
	switch t := src.(type) {
	case *ast.Bool:
		dst.SetBool(t.Value())
		return nil
	case *ast.Null:
		return nil
	}
	return mismatch(src, dst)
}

func convertInt(src ast.Value, dst reflect.Value) error {
	switch t := src.(type) {
	case *ast.Integer:
		v, err := t.Int64()
		if err != nil {
			return newError(src, dst.Type(), ErrOverflow)
		} else if dst.OverflowInt(v) {
			return newError(src, dst.Type(), ErrOverflow)
		}
		dst.SetInt(v)
		return nil
	case *ast.Null:
		return nil
	}
	return mismatch(src, dst)
}

func convertUint(src ast.Value, dst reflect.Value) error {
	switch t := src.(type) {
	case *ast.Integer:
		v, err := t.Uint64()
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return newError(src, dst.Type(), ErrOverflow)
			}
			return newError(src, dst.Type(), ErrMismatch) // e.g., negative
		} else if dst.OverflowUint(v) {
			return newError(src, dst.Type(), ErrOverflow)
		}
		dst.SetUint(v)
		return nil
	case *ast.Null:
		return nil
	}
	return mismatch(src, dst)
}

func convertFloat(src ast.Value, dst reflect.Value) error {
	var v float64
	var err error
	switch t := src.(type) {
	case *ast.Integer:
		v, err = t.Float64()
	case *ast.Number:
		v, err = t.Float64()
	case *ast.Null:
		return nil
	default:
		return mismatch(src, dst)
	}
	if err != nil || dst.OverflowFloat(v) {
		return newError(src, dst.Type(), ErrOverflow)
	}
	dst.SetFloat(v)
	return nil
}

// unescape returns the decoded text of a string value.
func unescape(src ast.Value, dst reflect.Value) (string, error) {
	s, ok := src.(*ast.String)
	if !ok {
		return "", mismatch(src, dst)
	}
	text, err := s.Unescape()
	if err != nil {
		return "", newError(src, dst.Type(), err)
	}
	return text, nil
}

func convertString(src ast.Value, dst reflect.Value) error {
	if isNull(src) {
		return nil
	}
	text, err := unescape(src, dst)
	if err != nil {
		return err
	}
	dst.SetString(text)
	return nil
}

func convertBytes(src ast.Value, dst reflect.Value) error {
	if isNull(src) {
		dst.SetBytes(nil)
		return nil
	}
	text, err := unescape(src, dst)
	if err != nil {
		return err
	}
	dec, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return newError(src, dst.Type(), err)
	}
	dst.SetBytes(dec)
	return nil
}

func convertText(src ast.Value, dst reflect.Value) error {
	if isNull(src) {
		return nil
	}
	text, err := unescape(src, dst)
	if err != nil {
		return err
	}
	u, ok := dst.Addr().Interface().(encoding.TextUnmarshaler)
	if !ok {
		return mismatch(src, dst)
	}
	if err := u.UnmarshalText([]byte(text)); err != nil {
		return newError(src, dst.Type(), err)
	}
	return nil
}

func convertJSON(src ast.Value, dst reflect.Value) error {
	u, ok := dst.Addr().Interface().(json.Unmarshaler)
	if !ok {
		return mismatch(src, dst)
	}
	if err := u.UnmarshalJSON([]byte(src.JSON())); err != nil {
		return newError(src, dst.Type(), err)
	}
	return nil
}

func convertStd(src ast.Value, dst reflect.Value) error {
	if err := json.Unmarshal([]byte(src.JSON()), dst.Addr().Interface()); err != nil {
		return newError(src, dst.Type(), err)
	}
	return nil
}

func convertUUID(src ast.Value, dst reflect.Value) error {
	if isNull(src) {
		return nil
	}
	text, err := unescape(src, dst)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(text)
	if err != nil {
		return newError(src, dst.Type(), err)
	}
	dst.Set(reflect.ValueOf(id).Convert(dst.Type()))
	return nil
}
