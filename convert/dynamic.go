// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package convert

import (
	"encoding"
	"reflect"
	"strconv"

	"github.com/creachadair/jbind/ast"
)

var (
	// Any converts any value to a dynamically-typed Go value: objects become
	// map[string]any, arrays []any, numbers float64, strings string, Booleans
	// bool, and null a nil interface.
	Any Converter = Func(convertAny)

	// Tree stores the syntax tree of the value itself into an ast.Value.
	Tree Converter = Func(convertTree)
)

func convertAny(src ast.Value, dst reflect.Value) error {
	v, err := ToAny(src)
	if err != nil {
		return newError(src, dst.Type(), err)
	}
	if v == nil {
		dst.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(dst.Type()) {
		return mismatch(src, dst)
	}
	dst.Set(rv)
	return nil
}

// ToAny converts a syntax tree to the equivalent dynamically-typed Go value,
// as described for the Any converter.
func ToAny(src ast.Value) (any, error) {
	switch t := src.(type) {
	case *ast.Object:
		m := make(map[string]any, len(t.Members))
		for _, mem := range t.Members {
			v, err := ToAny(mem.Value)
			if err != nil {
				return nil, err
			}
			m[mem.Key] = v
		}
		return m, nil
	case *ast.Array:
		vs := make([]any, len(t.Values))
		for i, elt := range t.Values {
			v, err := ToAny(elt)
			if err != nil {
				return nil, err
			}
			vs[i] = v
		}
		return vs, nil
	case *ast.Integer:
		return t.Float64()
	case *ast.Number:
		return t.Float64()
	case *ast.String:
		return t.Unescape()
	case *ast.Bool:
		return t.Value(), nil
	case *ast.Null, nil:
		return nil, nil
	}
	return nil, ErrMismatch
}

func convertTree(src ast.Value, dst reflect.Value) error {
	rv := reflect.ValueOf(src)
	if !rv.Type().AssignableTo(dst.Type()) {
		return mismatch(src, dst)
	}
	dst.Set(rv)
	return nil
}

// Key converts the unescaped name of an object member to a map key in dst.
// The key type must implement encoding.TextUnmarshaler, or have string or
// integer kind.
func Key(name string, dst reflect.Value) error {
	src := func() ast.Value { return ast.NewString(name) }
	if u, ok := dst.Addr().Interface().(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(name)); err != nil {
			return newError(src(), dst.Type(), err)
		}
		return nil
	}
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(name)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(name, 10, 64)
		if err != nil || dst.OverflowInt(v) {
			return newError(src(), dst.Type(), ErrOverflow)
		}
		dst.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		v, err := strconv.ParseUint(name, 10, 64)
		if err != nil || dst.OverflowUint(v) {
			return newError(src(), dst.Type(), ErrOverflow)
		}
		dst.SetUint(v)
	default:
		return mismatch(src(), dst)
	}
	return nil
}
