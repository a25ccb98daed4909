// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package readstack

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/creachadair/jbind"
	"github.com/creachadair/jbind/ast"
	"github.com/creachadair/jbind/convert"
	"github.com/creachadair/jbind/jpath"
	"github.com/creachadair/jbind/shape"
)

// A Phase records which part of its value a Frame is populating.
type Phase byte

// Constants defining the valid Phase values.
const (
	Start    Phase = iota // initialized; the value has not begun
	Open                  // a composite is open, between members or elements
	Property              // an object member is named, awaiting its value
	Key                   // a map key is pending, awaiting its value
	Capture               // a value is being read as a unit
	Closed                // the value is complete
)

var phaseStr = [...]string{"start", "open", "property", "key", "capture", "closed"}

func (p Phase) String() string {
	if int(p) >= len(phaseStr) {
		return "invalid"
	}
	return phaseStr[p]
}

// A Strategy is the way a Frame adds elements or entries to its collection.
type Strategy byte

// Constants defining the valid Strategy values.
const (
	None     Strategy = iota // not a collection, or not yet resolved
	Append                   // populate the target in place
	Callable                 // call a resolved add or set function
	Staged                   // buffer, then construct when the collection closes
)

var strategyStr = [...]string{"none", "append", "callable", "staged"}

func (s Strategy) String() string {
	if int(s) >= len(strategyStr) {
		return "invalid"
	}
	return strategyStr[s]
}

// maxRefs bounds the number of property references a frame records for the
// order cache of its descriptor.
const maxRefs = 64

// A Frame is the state of one level of nesting in the value being decoded.
// The zero Frame is ready for Initialize.
type Frame struct {
	Target reflect.Value     // the value under construction; invalid while staged
	Desc   *shape.Descriptor // the descriptor of Target; nil when drained
	Prop   *shape.Property   // the current property, or nil
	Name   string            // the current member name or map key, unescaped
	Drain  bool              // input at this level is consumed and discarded

	decl     reflect.Type // the declared type of the value, with pointers
	raw      []byte       // raw text of the current member name
	provider shape.Provider
	terminal shape.Set
	fold     bool

	owner  reflect.Type // the type whose member holds this value, or nil
	member string       // the name of that member

	phase    Phase
	resume   Phase // the phase to restore after a capture
	strategy Strategy
	add      shape.AddFunc
	set      shape.SetFunc
	skip     bool // the current member is skipped by policy

	elem     *shape.Descriptor // element or map value descriptor
	propDesc *shape.Descriptor // descriptor for the type of Prop
	key      reflect.Value     // pending map key
	index    int               // number of elements completed

	staging reflect.Value // staged elements or map values
	keys    reflect.Value // staged map keys

	cursor int   // position in the property order cache
	refs   []int // ordinals of properties seen in this object

	depth   int          // nesting depth of the capture in progress
	builder *ast.Builder // nil if the capture discards its input
}

// Initialize resolves the descriptor for t from p and prepares f to read a
// value of that type. A descriptor of any shape other than Object has its
// whole-value property made current, so that a bare value is read through
// the same machinery as a property.
func (f *Frame) Initialize(t reflect.Type, p shape.Provider) error {
	d, err := p.Resolve(t)
	if err != nil {
		return err
	}
	var elem *shape.Descriptor
	if d.Shape == shape.Sequence || d.Shape == shape.Map {
		elem, err = p.Resolve(d.ElemType)
		if err != nil {
			return err
		}
	}
	f.Desc, f.provider, f.elem, f.decl = d, p, elem, t
	if d.Shape != shape.Object {
		f.Prop, f.propDesc = d.Whole, d
	}
	f.phase = Start
	return nil
}

// Phase reports the current phase of f.
func (f *Frame) Phase() Phase { return f.phase }

// Strategy reports the population strategy resolved for f.
func (f *Frame) Strategy() Strategy { return f.strategy }

// Index reports the number of elements or entries completed in f.
func (f *Frame) Index() int { return f.index }

// RawName returns the raw text of the current member name, or nil.
func (f *Frame) RawName() []byte { return f.raw }

// Staged returns the staging buffers of f. Both are invalid unless the
// strategy of f is Staged; keys is valid only for a map.
func (f *Frame) Staged() (keys, vals reflect.Value) { return f.keys, f.staging }

// ClassifyPosition reports whether the value at the current position is
// terminal, meaning that it is read as a single unit and handed whole to a
// converter, rather than populated by a frame of its own.
func (f *Frame) ClassifyPosition() bool {
	if f.Drain {
		return true
	}
	var d *shape.Descriptor
	switch {
	case f.strategy == Staged && (f.phase == Open || f.phase == Key):
		d = f.elem
	case f.Prop == nil:
		d = f.Desc
	default:
		d = f.propDesc
	}
	return f.isTerminal(d)
}

func (f *Frame) isTerminal(d *shape.Descriptor) bool {
	if d.Shape == shape.Dynamic && len(d.Forms) == 0 {
		return true // no concrete form to populate piecewise
	}
	return f.terminal.Has(d.Shape)
}

// ShouldSkipCurrentMember reports whether the value at the current position
// must be consumed and discarded.
func (f *Frame) ShouldSkipCurrentMember() bool {
	return f.Drain || f.skip || (f.Prop != nil && f.Prop.ReadOnly)
}

// Slot reports the declared type and descriptor of the value expected at the
// current position.
func (f *Frame) Slot() (reflect.Type, *shape.Descriptor) {
	switch {
	case f.phase == Start || (f.phase == Capture && f.resume == Start):
		return f.decl, f.Desc
	case f.Desc.Shape == shape.Sequence || f.Desc.Shape == shape.Map:
		return f.Desc.ElemType, f.elem
	}
	return f.Prop.Type, f.propDesc
}

// Position reports the path step for the current position of f, if any.
func (f *Frame) Position() (jpath.Step, bool) {
	if f.Desc == nil {
		return jpath.Step{}, false
	}
	phase := f.phase
	if phase == Capture {
		phase = f.resume
	}
	switch {
	case phase == Property || phase == Key:
		return jpath.Key(f.Name), true
	case phase == Open && f.Desc.Shape == shape.Sequence:
		return jpath.At(f.index), true
	}
	return jpath.Step{}, false
}

// memberLabel describes the current position for error messages.
func (f *Frame) memberLabel() string {
	if step, ok := f.Position(); ok {
		return jpath.Expr{step}.String()[1:]
	}
	return ""
}

// Open begins populating a composite value in a fresh target, resolving the
// population strategy for a sequence or map.
func (f *Frame) Open() error {
	target := reflect.New(f.Desc.Type).Elem()
	switch f.Desc.Shape {
	case shape.Sequence:
		if err := f.ResolveSequenceStrategy(target); err != nil {
			return err
		}
		f.Prop, f.propDesc = f.elem.Whole, f.elem
	case shape.Map:
		if err := f.ResolveMapStrategy(target); err != nil {
			return err
		}
		f.Prop, f.propDesc = nil, nil
	case shape.Object:
		f.Target = target
		f.Prop, f.propDesc = nil, nil
	default:
		return fmt.Errorf("cannot open %v", f.Desc)
	}
	f.phase = Open
	return nil
}

// BeginDrain marks f as drained and open, so that the rest of its value is
// consumed and discarded.
func (f *Frame) BeginDrain() {
	f.Drain = true
	f.phase = Open
}

// ResolveSequenceStrategy decides how elements will be added to target, a
// fresh or supplied instance of the sequence type. The choice is made once,
// in order of preference: staged construction, a resolved add function,
// and in-place append. It reports *UnsupportedCollectionError if there is no
// viable strategy, and in that case target is not modified.
func (f *Frame) ResolveSequenceStrategy(target reflect.Value) error {
	d := f.Desc
	switch {
	case d.Build != nil:
		f.Target = reflect.Value{} // materialized from the staging buffer at close
		f.staging = newStaging(f.elem, d.ElemType)
		f.strategy = Staged
	case d.AddResolver != nil:
		add, err := d.AddResolver(target)
		if err != nil {
			return f.unsupported(err.Error())
		}
		f.Target, f.add, f.strategy = target, add, Callable
	case d.InPlace:
		if shape.IsReadOnly(target) {
			return f.unsupported("collection is read-only")
		}
		f.Target, f.strategy = target, Append
	default:
		return f.unsupported("no way to add elements")
	}
	return nil
}

// ResolveMapStrategy decides how entries will be added to target, as
// ResolveSequenceStrategy does for sequences.
func (f *Frame) ResolveMapStrategy(target reflect.Value) error {
	d := f.Desc
	switch {
	case d.BuildMap != nil:
		f.Target = reflect.Value{}
		f.keys = reflect.MakeSlice(reflect.SliceOf(d.KeyType), 0, 4)
		f.staging = newStaging(f.elem, d.ElemType)
		f.strategy = Staged
	case d.SetResolver != nil:
		set, err := d.SetResolver(target)
		if err != nil {
			return f.unsupported(err.Error())
		}
		f.Target, f.set, f.strategy = target, set, Callable
	case d.InPlace:
		if shape.IsReadOnly(target) {
			return f.unsupported("collection is read-only")
		}
		if target.IsNil() {
			target.Set(reflect.MakeMap(target.Type()))
		}
		f.Target, f.strategy = target, Append
	default:
		return f.unsupported("no way to add entries")
	}
	return nil
}

// newStaging returns an empty staging buffer for elements of type t. The
// buffer is typed when the elements are scalars, and holds values of any
// type otherwise.
func newStaging(elem *shape.Descriptor, t reflect.Type) reflect.Value {
	if elem.Shape != shape.Scalar {
		t = reflect.TypeFor[any]()
	}
	return reflect.MakeSlice(reflect.SliceOf(t), 0, 4)
}

func (f *Frame) unsupported(reason string) error {
	return &UnsupportedCollectionError{
		Type:   f.Desc.Type,
		Elem:   f.Desc.ElemType,
		Owner:  f.owner,
		Member: f.member,
		Reason: reason,
	}
}

// SetProperty makes the object member whose raw (quoted) name is raw the
// current property, and returns its property. A name that matches no
// property yields shape.Missing. The descriptor of the property is not
// resolved until ResolveProperty is called.
func (f *Frame) SetProperty(raw []byte) (*shape.Property, error) {
	name, err := jbind.UnquoteText(raw)
	if err != nil {
		return nil, err
	}
	p, next := f.Desc.Lookup(name, f.cursor, f.fold)
	f.Name, f.raw, f.Prop, f.propDesc = string(name), slices.Clone(raw), p, nil
	f.phase = Property
	if p != shape.Missing {
		f.cursor = next
		if len(f.refs) < maxRefs {
			f.refs = append(f.refs, p.Ordinal)
		}
	}
	return p, nil
}

// ResolveProperty resolves the descriptor of the current property. It must
// be called after SetProperty unless the member is skipped.
func (f *Frame) ResolveProperty() error {
	if f.Prop == nil || f.propDesc != nil {
		return nil
	}
	d, err := f.provider.Resolve(f.Prop.Type)
	if err != nil {
		return err
	}
	f.propDesc = d
	return nil
}

// SkipMember marks the current member as skipped by policy.
func (f *Frame) SkipMember() { f.skip = true }

// SetKey converts the raw (quoted) member name raw to a key of the map and
// makes it pending. It is an error if a key is already pending.
func (f *Frame) SetKey(raw []byte) error {
	if f.key.IsValid() {
		return errors.New("map key is already pending")
	}
	name, err := jbind.UnquoteText(raw)
	if err != nil {
		return err
	}
	k := reflect.New(f.Desc.KeyType).Elem()
	if err := f.Desc.KeyConvert(string(name), k); err != nil {
		return err
	}
	f.key, f.Name, f.raw = k, string(name), slices.Clone(raw)
	f.Prop, f.propDesc = f.elem.Whole, f.elem
	f.phase = Key
	return nil
}

// ReadValue converts src, a complete value, and stores it at the current
// position. A converter is chosen from the descriptor of the position;
// composite values without one are decoded by the standard library.
func (f *Frame) ReadValue(src ast.Value) error {
	t, d := f.Slot()
	if _, ok := src.(*ast.Null); ok {
		switch t.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice:
			return f.Store(reflect.Zero(t))
		}
	}
	c := d.Convert
	if c == nil {
		c = convert.Std
	}
	v := reflect.New(d.Type).Elem()
	if err := c.Convert(src, v); err != nil {
		return err
	}
	return f.Store(v)
}

// StoreNull stores a null at the current position. Destinations that can
// be nil are set to nil; other destinations of an object are left unchanged,
// and elements and entries receive their zero value.
func (f *Frame) StoreNull() error {
	t, _ := f.Slot()
	if f.phase == Property {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		default:
			return nil
		}
	}
	return f.Store(reflect.Zero(t))
}

// Store folds v into the target at the current position: the property of an
// object, the next element of a sequence, the pending entry of a map, or the
// whole value of a frame that has not begun. The type of v must be the
// declared type of the position or its base type.
func (f *Frame) Store(v reflect.Value) error {
	if f.phase == Start {
		f.Target = reflect.New(f.decl).Elem()
		if err := Assign(f.Target, v); err != nil {
			return err
		}
		f.phase = Closed
		return nil
	}

	switch f.Desc.Shape {
	case shape.Object:
		if f.Prop == nil || f.Prop.Whole || f.Prop == shape.Missing {
			return errors.New("no property is current")
		}
		return Assign(fieldOf(f.Target, f.Prop.Index), v)

	case shape.Sequence:
		e := reflect.New(f.Desc.ElemType).Elem()
		if err := Assign(e, v); err != nil {
			return err
		}
		switch f.strategy {
		case Append:
			f.Target.Set(reflect.Append(f.Target, e))
		case Callable:
			if err := f.add(e); err != nil {
				return err
			}
		case Staged:
			if f.Desc.Fixed && f.staging.Len() >= f.Desc.MaxLen {
				return f.unsupported(fmt.Sprintf("more than %d elements", f.Desc.MaxLen))
			}
			f.staging = reflect.Append(f.staging, e)
		default:
			return fmt.Errorf("unresolved strategy %v", f.strategy)
		}
		f.index++
		return nil

	case shape.Map:
		if !f.key.IsValid() {
			return errors.New("no map key is pending")
		}
		e := reflect.New(f.Desc.ElemType).Elem()
		if err := Assign(e, v); err != nil {
			return err
		}
		switch f.strategy {
		case Append:
			f.Target.SetMapIndex(f.key, e)
		case Callable:
			if err := f.set(f.key, e); err != nil {
				return err
			}
		case Staged:
			f.keys = reflect.Append(f.keys, f.key)
			f.staging = reflect.Append(f.staging, e)
		default:
			return fmt.Errorf("unresolved strategy %v", f.strategy)
		}
		f.key = reflect.Value{}
		f.index++
		return nil
	}
	return fmt.Errorf("cannot store into %v", f.Desc)
}

// Discard records that the value at the current position was consumed
// without being stored.
func (f *Frame) Discard() {
	if f.Desc == nil {
		return
	}
	switch f.Desc.Shape {
	case shape.Sequence:
		f.index++
	case shape.Map:
		f.key = reflect.Value{}
	}
}

// BeginCapture starts reading a composite value at the current position as a
// single unit. If keep is false, the value is discarded.
func (f *Frame) BeginCapture(keep bool) {
	f.resume, f.phase, f.depth = f.phase, Capture, 0
	if keep {
		f.builder = new(ast.Builder)
	}
}

// Capture delivers one event to the capture in progress, and reports whether
// the captured value is complete.
func (f *Frame) Capture(ev Event, loc jbind.Anchor) (bool, error) {
	switch ev {
	case BeginObject, BeginArray:
		f.depth++
	case EndObject, EndArray:
		f.depth--
	}
	if f.builder != nil {
		if err := ev.Deliver(f.builder, loc); err != nil {
			return false, err
		}
	}
	return f.depth == 0, nil
}

// EndCapture ends the capture in progress and returns the captured value, or
// nil if it was discarded.
func (f *Frame) EndCapture() ast.Value {
	var v ast.Value
	if f.builder != nil {
		v = f.builder.Result()
		f.builder = nil
	}
	f.phase, f.resume, f.depth = f.resume, Start, 0
	return v
}

// FinishSequenceValue completes the sequence of f and returns the value to
// fold into the parent: the target itself if elements were added in place or
// by an add function, otherwise a new value built from the staged elements.
func (f *Frame) FinishSequenceValue() (reflect.Value, error) {
	f.phase = Closed
	if f.strategy != Staged {
		return f.Target, nil
	}
	if f.Desc.Build == nil {
		return reflect.Value{}, f.unsupported("construction unsupported")
	}
	v, err := f.Desc.Build(typedSlice(f.staging, f.Desc.ElemType))
	if err != nil {
		return reflect.Value{}, fmt.Errorf("construct %v: %w", f.Desc.Type, err)
	}
	f.Target = v
	return v, nil
}

// FinishMapValue completes the map of f, as FinishSequenceValue does for a
// sequence.
func (f *Frame) FinishMapValue() (reflect.Value, error) {
	f.phase = Closed
	if f.strategy != Staged {
		return f.Target, nil
	}
	if f.Desc.BuildMap == nil {
		return reflect.Value{}, f.unsupported("construction unsupported")
	}
	v, err := f.Desc.BuildMap(f.keys, typedSlice(f.staging, f.Desc.ElemType))
	if err != nil {
		return reflect.Value{}, fmt.Errorf("construct %v: %w", f.Desc.Type, err)
	}
	f.Target = v
	return v, nil
}

// typedSlice returns the staged elements in buf as a slice of t.
func typedSlice(buf reflect.Value, t reflect.Type) reflect.Value {
	if buf.Type().Elem() == t {
		return buf
	}
	out := reflect.MakeSlice(reflect.SliceOf(t), buf.Len(), buf.Len())
	for i := range buf.Len() {
		if e := buf.Index(i).Elem(); e.IsValid() {
			out.Index(i).Set(e)
		}
	}
	return out
}

// EndProperty clears the state of the current member, element, or entry.
func (f *Frame) EndProperty() {
	f.Name, f.raw, f.skip = "", nil, false
	f.key = reflect.Value{}
	if f.Desc != nil && f.Desc.Shape == shape.Sequence && f.phase != Closed {
		f.Prop, f.propDesc = f.elem.Whole, f.elem
	} else {
		f.Prop, f.propDesc = nil, nil
	}
	if f.phase == Property || f.phase == Key {
		f.phase = Open
	}
}

// EndObject clears the state of the composite value of f once it has
// closed, and records the order of the properties seen for later lookups.
// The descriptor and the completed target are retained.
func (f *Frame) EndObject() {
	if f.Desc != nil && f.Desc.Shape == shape.Object {
		f.Desc.Remember(f.refs)
	}
	f.phase = Closed
	f.EndProperty()
	f.strategy, f.add, f.set = None, nil, nil
	f.staging, f.keys = reflect.Value{}, reflect.Value{}
	f.cursor, f.refs, f.index = 0, nil, 0
	f.depth, f.builder = 0, nil
}

// Reset clears f completely, leaving it indistinguishable from a zero Frame.
func (f *Frame) Reset() { *f = Frame{} }

// Assign stores v into dst, allocating through pointers as needed. The type
// of v must be assignable to dst or to a type dst points to.
func Assign(dst, v reflect.Value) error {
	for {
		if v.Type().AssignableTo(dst.Type()) {
			dst.Set(v)
			return nil
		}
		if dst.Kind() != reflect.Pointer {
			return fmt.Errorf("cannot assign %v to %v", v.Type(), dst.Type())
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}
}

// fieldOf returns the field of struct v at index, allocating embedded
// pointers as needed.
func fieldOf(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}
