// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package shape

import (
	"fmt"
	"reflect"
	"slices"
	"sync/atomic"

	"github.com/creachadair/jbind/convert"

	"go4.org/mem"
)

// An AddFunc adds a single element to a sequence.
type AddFunc func(elem reflect.Value) error

// A SetFunc sets a single entry of a map.
type SetFunc func(key, val reflect.Value) error

// A Descriptor describes how to populate values of a single Go type.
// A Descriptor must not be modified once it has been published.
type Descriptor struct {
	Type  reflect.Type // the described type, with pointers removed
	Shape Shape

	// Sequence and Map shapes.
	ElemType   reflect.Type                              // element or map value type
	KeyType    reflect.Type                              // map key type
	KeyConvert func(name string, dst reflect.Value) error // map key converter
	MaxLen     int                                       // if Fixed, the maximum element count
	Fixed      bool                                      // the sequence has a fixed capacity

	// InPlace reports that a fresh value of Type can be populated directly,
	// by append for a sequence or by assignment for a map.
	InPlace bool

	// Build, if set, constructs a sequence from a slice of staged elements.
	Build func(elems reflect.Value) (reflect.Value, error)

	// BuildMap, if set, constructs a map from parallel slices of staged keys
	// and values.
	BuildMap func(keys, vals reflect.Value) (reflect.Value, error)

	// AddResolver, if set, resolves an add function for a sequence instance.
	AddResolver func(target reflect.Value) (AddFunc, error)

	// SetResolver, if set, resolves a set function for a map instance.
	SetResolver func(target reflect.Value) (SetFunc, error)

	// Object shape: properties in declaration order.
	Properties []*Property

	// Scalar and Dynamic shapes.
	Convert convert.Converter

	// Forms gives concrete types for a Dynamic shape, keyed by the shape of
	// the input. A Dynamic descriptor without forms is always read whole.
	Forms map[Shape]reflect.Type

	// Whole is a synthetic property standing for the entire value, for all
	// shapes other than Object.
	Whole *Property

	order atomic.Pointer[[]int] // recently observed property order
}

func (d *Descriptor) String() string { return fmt.Sprintf("%v %v", d.Shape, d.Type) }

// maxOrderCache bounds the number of property positions remembered for a
// type.
const maxOrderCache = 64

// Lookup returns the property whose name matches name, or Missing. If fold
// is true and no property name matches exactly, names are compared without
// regard to case.
//
// The cursor is the position in the remembered order of the property
// following the last one found in the current object, or 0 at the start of
// an object. Lookup returns the cursor to use for the next lookup in the same
// object. When the input presents members in the same order as the last one
// remembered, each lookup succeeds on its first comparison.
func (d *Descriptor) Lookup(name []byte, cursor int, fold bool) (*Property, int) {
	if p, next := d.lookup(name, cursor, false); p != Missing || !fold {
		return p, next
	}
	return d.lookup(name, cursor, true)
}

// lookup is Lookup with a single rule for comparing names.
func (d *Descriptor) lookup(name []byte, cursor int, fold bool) (*Property, int) {
	if order := d.order.Load(); order != nil {
		n := len(*order)
		for i := range n {
			j := (cursor + i) % n
			if p := d.Properties[(*order)[j]]; p.matches(name, fold) {
				return p, j + 1
			}
		}
	}
	for _, p := range d.Properties {
		if p.matches(name, fold) {
			return p, cursor
		}
	}
	return Missing, cursor
}

// Remember records the ordinals of the properties seen in one object, in
// input order, so that a later Lookup for this type can find them first.
func (d *Descriptor) Remember(refs []int) {
	if len(refs) == 0 {
		return
	}
	if len(refs) > maxOrderCache {
		refs = refs[:maxOrderCache]
	}
	if old := d.order.Load(); old != nil && slices.Equal(*old, refs) {
		return
	}
	cp := slices.Clone(refs)
	d.order.Store(&cp)
}

// Order returns a copy of the remembered property order, or nil.
func (d *Descriptor) Order() []int {
	if order := d.order.Load(); order != nil {
		return slices.Clone(*order)
	}
	return nil
}

// A Property describes one named member of an object type, or the synthetic
// whole value of a non-object type.
type Property struct {
	Name    string       // the JSON member name
	Ordinal int          // offset in the Properties of the owner
	Index   []int        // field index path, for reflect.Value.FieldByIndex
	Type    reflect.Type // the declared type of the property
	Owner   reflect.Type // the type containing the property

	// ReadOnly properties are described but never populated. Their values
	// are consumed and discarded.
	ReadOnly bool

	// Whole marks the synthetic whole-value property.
	Whole bool
}

func (p *Property) matches(name []byte, fold bool) bool {
	if fold {
		return mem.EqualFold(mem.B(name), mem.S(p.Name))
	}
	return mem.B(name).EqualString(p.Name)
}

// Missing is the property reported by Lookup for names that do not match any
// property of the object. It is read-only, so its values are discarded.
var Missing = &Property{Name: "<missing>", Ordinal: -1, ReadOnly: true}

// ReadOnly is implemented by collection types that may refuse population.
// A collection whose ReadOnly method reports true cannot be populated in
// place.
type ReadOnly interface {
	ReadOnly() bool
}

var readOnlyType = reflect.TypeFor[ReadOnly]()

// IsReadOnly reports whether v implements ReadOnly and reports true.
func IsReadOnly(v reflect.Value) bool {
	if !v.IsValid() {
		return false
	}
	if v.Type().Implements(readOnlyType) {
		return v.Interface().(ReadOnly).ReadOnly()
	}
	if v.CanAddr() && reflect.PointerTo(v.Type()).Implements(readOnlyType) {
		return v.Addr().Interface().(ReadOnly).ReadOnly()
	}
	return false
}

// A Provider resolves descriptors for Go types.
type Provider interface {
	// Resolve returns the descriptor for t. Pointer types resolve to the
	// descriptor of their base type. If t cannot be described, Resolve
	// reports an error of concrete type *ResolutionError.
	Resolve(t reflect.Type) (*Descriptor, error)
}

// ResolutionError is reported when a type has no descriptor.
type ResolutionError struct {
	Type   reflect.Type
	Reason string
}

// Error satisfies the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot describe type %v: %s", e.Type, e.Reason)
}
