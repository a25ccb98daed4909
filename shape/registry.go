// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package shape

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/creachadair/jbind/ast"
	"github.com/creachadair/jbind/convert"
	"github.com/google/uuid"
)

// A Registry is a memoizing Provider that describes Go types by reflection.
// It is safe for concurrent use by multiple goroutines.
//
// A type is classified by the first of these rules that applies:
//
//   - A type with a registered converter is a Scalar.
//   - The types any and ast.Value are Dynamic.
//   - A json.Unmarshaler or encoding.TextUnmarshaler is a Scalar.
//   - A []byte is a Scalar, encoded as base64.
//   - A type with a method FromSlice([]E) error is a Sequence built from
//     staged elements.
//   - A type with a method FromPairs([]K, []V) error is a Map built from
//     staged entries.
//   - A type with a method Add(E) is a Sequence populated by that method.
//   - A type with a method Add(K, V) is a Map populated by that method.
//   - A slice is a Sequence populated in place.
//   - An array is a Sequence built from staged elements, and may not receive
//     more elements than its length.
//   - A map is a Map populated in place. Its keys must have string or integer
//     kind, or implement encoding.TextUnmarshaler.
//   - A struct is an Object whose properties are its exported fields.
//   - A bool, integer, float, or string kind is a Scalar.
//
// Methods are found in the method set of the pointer to the type. An Add
// method may return nothing or an error.
//
// Struct fields are named by their json tags, as in encoding/json. A field
// tagged "-" is omitted, and the tag option "readonly" describes a field
// whose input is consumed but never stored. Fields of embedded structs
// without a name are promoted into the embedding struct.
type Registry struct {
	mu     sync.Mutex // serializes construction and registration
	custom map[reflect.Type]convert.Converter
	cache  sync.Map // map[reflect.Type]*Descriptor
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{custom: make(map[reflect.Type]convert.Converter)}
}

// Default is the registry used when no other is specified. It has a converter
// registered for uuid.UUID.
var Default = func() *Registry {
	r := NewRegistry()
	r.Register(reflect.TypeFor[uuid.UUID](), convert.UUID)
	return r
}()

// Register installs c as the converter for values of type t, which is
// thereafter described as a Scalar. Register replaces any previous
// descriptor for t.
func (r *Registry) Register(t reflect.Type, c convert.Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[t] = c
	r.cache.Delete(t)
}

// Resolve implements the Provider interface.
func (r *Registry) Resolve(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, &ResolutionError{Reason: "nil type"}
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if d, ok := r.cache.Load(t); ok {
		return d.(*Descriptor), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.cache.Load(t); ok {
		return d.(*Descriptor), nil // lost a race
	}
	d, err := r.describe(t)
	if err != nil {
		return nil, err
	}
	r.cache.Store(t, d)
	return d, nil
}

var (
	anyType       = reflect.TypeFor[any]()
	astValueType  = reflect.TypeFor[ast.Value]()
	errorType     = reflect.TypeFor[error]()
	jsonUnmarshal = reflect.TypeFor[json.Unmarshaler]()
	textUnmarshal = reflect.TypeFor[encoding.TextUnmarshaler]()
)

func (r *Registry) describe(t reflect.Type) (*Descriptor, error) {
	d := &Descriptor{Type: t}
	pt := reflect.PointerTo(t)

	if c, ok := r.custom[t]; ok {
		d.Shape, d.Convert = Scalar, c
	} else if t == anyType {
		d.Shape, d.Convert = Dynamic, convert.Any
		d.Forms = map[Shape]reflect.Type{
			Object:   reflect.TypeFor[map[string]any](),
			Sequence: reflect.TypeFor[[]any](),
		}
	} else if t == astValueType {
		d.Shape, d.Convert = Dynamic, convert.Tree
	} else if pt.Implements(jsonUnmarshal) {
		d.Shape, d.Convert = Scalar, convert.JSON
	} else if pt.Implements(textUnmarshal) {
		d.Shape, d.Convert = Scalar, convert.Text
	} else if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		d.Shape, d.Convert = Scalar, convert.Bytes
	} else if m, ok := method(pt, "FromSlice", 1, true); ok && m.Type.In(1).Kind() == reflect.Slice {
		d.Shape, d.ElemType = Sequence, m.Type.In(1).Elem()
		build := buildFrom(t, "FromSlice", m.Type.In(1))
		d.Build = func(elems reflect.Value) (reflect.Value, error) { return build(elems) }
	} else if m, ok := method(pt, "FromPairs", 2, true); ok &&
		m.Type.In(1).Kind() == reflect.Slice && m.Type.In(2).Kind() == reflect.Slice {
		d.Shape, d.KeyType, d.ElemType = Map, m.Type.In(1).Elem(), m.Type.In(2).Elem()
		build := buildFrom(t, "FromPairs", m.Type.In(1), m.Type.In(2))
		d.BuildMap = func(keys, vals reflect.Value) (reflect.Value, error) { return build(keys, vals) }
	} else if m, ok := method(pt, "Add", 1, false); ok {
		d.Shape, d.ElemType = Sequence, m.Type.In(1)
		d.AddResolver = func(target reflect.Value) (AddFunc, error) {
			call, err := resolveMethod(target, "Add")
			if err != nil {
				return nil, err
			}
			return func(elem reflect.Value) error { return call(elem) }, nil
		}
	} else if m, ok := method(pt, "Add", 2, false); ok {
		d.Shape, d.KeyType, d.ElemType = Map, m.Type.In(1), m.Type.In(2)
		d.SetResolver = func(target reflect.Value) (SetFunc, error) {
			call, err := resolveMethod(target, "Add")
			if err != nil {
				return nil, err
			}
			return func(key, val reflect.Value) error { return call(key, val) }, nil
		}
	} else {
		switch t.Kind() {
		case reflect.Slice:
			d.Shape, d.ElemType, d.InPlace = Sequence, t.Elem(), true
		case reflect.Array:
			d.Shape, d.ElemType = Sequence, t.Elem()
			d.Fixed, d.MaxLen = true, t.Len()
			d.Build = buildArray(t)
		case reflect.Map:
			d.Shape, d.KeyType, d.ElemType, d.InPlace = Map, t.Key(), t.Elem(), true
		case reflect.Struct:
			d.Shape = Object
			d.Properties = structProperties(t)
		case reflect.Bool:
			d.Shape, d.Convert = Scalar, convert.Bool
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			d.Shape, d.Convert = Scalar, convert.Int
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			d.Shape, d.Convert = Scalar, convert.Uint
		case reflect.Float32, reflect.Float64:
			d.Shape, d.Convert = Scalar, convert.Float
		case reflect.String:
			d.Shape, d.Convert = Scalar, convert.String
		default:
			return nil, &ResolutionError{Type: t, Reason: fmt.Sprintf("unsupported kind %v", t.Kind())}
		}
	}

	if d.Shape == Map {
		if !validKey(d.KeyType) {
			return nil, &ResolutionError{Type: t, Reason: fmt.Sprintf("unsupported key type %v", d.KeyType)}
		}
		d.KeyConvert = convert.Key
	}
	if d.Shape != Object {
		d.Whole = &Property{Ordinal: -1, Type: t, Whole: true}
	}
	return d, nil
}

// method reports whether pt has a method with the given name and number of
// parameters (not counting the receiver). If mustErr, the method must return
// exactly an error; otherwise it may return nothing or an error.
func method(pt reflect.Type, name string, nin int, mustErr bool) (reflect.Method, bool) {
	m, ok := pt.MethodByName(name)
	if !ok || m.Type.NumIn() != nin+1 {
		return m, false
	}
	switch m.Type.NumOut() {
	case 0:
		return m, !mustErr
	case 1:
		return m, m.Type.Out(0) == errorType
	}
	return m, false
}

// resolveMethod returns a function that calls the named method of target.
func resolveMethod(target reflect.Value, name string) (func(...reflect.Value) error, error) {
	if !target.CanAddr() {
		return nil, fmt.Errorf("instance of %v is not addressable", target.Type())
	}
	mv := target.Addr().MethodByName(name)
	if !mv.IsValid() {
		return nil, fmt.Errorf("instance of %v has no %s method", target.Type(), name)
	}
	return func(args ...reflect.Value) error { return callErr(mv.Call(args)) }, nil
}

func callErr(out []reflect.Value) error {
	if len(out) == 0 || out[0].IsNil() {
		return nil
	}
	return out[0].Interface().(error)
}

// buildFrom returns a bulk constructor that calls the named method on a new
// value of type t with staged slices converted to the parameter types.
func buildFrom(t reflect.Type, name string, params ...reflect.Type) func(...reflect.Value) (reflect.Value, error) {
	return func(args ...reflect.Value) (reflect.Value, error) {
		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			in[i] = arg.Convert(params[i])
		}
		v := reflect.New(t)
		if err := callErr(v.MethodByName(name).Call(in)); err != nil {
			return reflect.Value{}, err
		}
		return v.Elem(), nil
	}
}

// buildArray returns a bulk constructor for array type t.
func buildArray(t reflect.Type) func(reflect.Value) (reflect.Value, error) {
	return func(elems reflect.Value) (reflect.Value, error) {
		if elems.Len() > t.Len() {
			return reflect.Value{}, fmt.Errorf("%d elements exceed length %d", elems.Len(), t.Len())
		}
		v := reflect.New(t).Elem()
		reflect.Copy(v, elems)
		return v, nil
	}
}

func validKey(t reflect.Type) bool {
	if reflect.PointerTo(t).Implements(textUnmarshal) {
		return true
	}
	switch t.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

type fieldInfo struct {
	*Property
	depth int
}

// structProperties returns the properties of struct type t in declaration
// order, with the fields of untagged embedded structs promoted. When several
// fields share a name, the least deeply embedded one wins, and among those
// the first declared.
func structProperties(t reflect.Type) []*Property {
	var all []fieldInfo
	visited := map[reflect.Type]bool{t: true}

	var walk func(st reflect.Type, index []int, depth int)
	walk = func(st reflect.Type, index []int, depth int) {
		for i := range st.NumField() {
			f := st.Field(i)
			tag := f.Tag.Get("json")
			if tag == "-" {
				continue
			}
			name, opts, _ := strings.Cut(tag, ",")
			idx := append(slices.Clip(index), i)

			if f.Anonymous && name == "" {
				ft := f.Type
				if ft.Kind() == reflect.Pointer {
					if !f.IsExported() {
						continue // cannot allocate through an unexported pointer
					}
					ft = ft.Elem()
				}
				if ft.Kind() == reflect.Struct {
					if !visited[ft] {
						visited[ft] = true
						walk(ft, idx, depth+1)
						delete(visited, ft)
					}
					continue
				}
			}
			if !f.IsExported() {
				continue
			}
			if name == "" {
				name = f.Name
			}
			all = append(all, fieldInfo{
				Property: &Property{
					Name:     name,
					Index:    idx,
					Type:     f.Type,
					Owner:    t,
					ReadOnly: hasOption(opts, "readonly"),
				},
				depth: depth,
			})
		}
	}
	walk(t, nil, 0)

	best := make(map[string]int)
	for _, fi := range all {
		if d, ok := best[fi.Name]; !ok || fi.depth < d {
			best[fi.Name] = fi.depth
		}
	}
	var props []*Property
	for _, fi := range all {
		if d, ok := best[fi.Name]; ok && d == fi.depth {
			delete(best, fi.Name) // keep only the first at the winning depth
			fi.Ordinal = len(props)
			props = append(props, fi.Property)
		}
	}
	return props
}

func hasOption(opts, want string) bool {
	for opt := range strings.SplitSeq(opts, ",") {
		if strings.TrimSpace(opt) == want {
			return true
		}
	}
	return false
}
