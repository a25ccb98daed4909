// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

// Package decoder binds streams of JSON parse events to Go values.
//
// A Decoder implements the jbind.Handler interface, so it can be driven by a
// jbind.Stream or by any other source of events. The Decoder keeps all of its
// state on an explicit readstack.Stack rather than on the call stack, so the
// events of a value may be delivered across any number of calls, and the
// caller may stop delivering them at any point.
//
// Decoding builds a fresh value. The value is stored into the caller's
// destination only when the whole input value has been decoded without
// error, by a call to Finish. Decode and Reader do this automatically.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/creachadair/jbind"
	"github.com/creachadair/jbind/ast"
	"github.com/creachadair/jbind/readstack"
	"github.com/creachadair/jbind/shape"
)

var (
	// ErrInvalidTarget is reported when the destination is not a non-nil pointer.
	ErrInvalidTarget = errors.New("decoder: target must be a non-nil pointer")

	// ErrIncomplete is reported by Finish if the value is not complete.
	ErrIncomplete = errors.New("decoder: value is incomplete")

	// ErrCommitted is reported by Finish if the value was already committed.
	ErrCommitted = errors.New("decoder: value already committed")

	// ErrTrailingData is reported when input follows a complete value.
	ErrTrailingData = errors.New("decoder: unexpected data after value")
)

// MismatchError reports an input value whose kind does not match the shape of
// its destination, when strict matching is enabled.
type MismatchError struct {
	Type reflect.Type // the declared type of the destination
	Got  string       // the kind of input value
}

// Error satisfies the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("cannot decode %s into %v", e.Got, e.Type)
}

// UnknownMemberError reports an object member that matches no property, when
// unknown members are disallowed.
type UnknownMemberError struct {
	Type reflect.Type // the object type
	Name string       // the member name, unescaped
}

// Error satisfies the error interface.
func (e *UnknownMemberError) Error() string {
	return fmt.Sprintf("unknown member %q for %v", e.Name, e.Type)
}

// A Decoder decodes the events of a single JSON value into a Go value.
type Decoder struct {
	ctx   context.Context
	dst   reflect.Value // the pointer given to New
	opts  *options
	stack *readstack.Stack
	pool  *readstack.Pool // if non-nil, stack is returned here on completion

	result    reflect.Value
	done      bool
	committed bool
	err       error
}

// New constructs a Decoder that decodes one value into *v, which must be a
// non-nil pointer. The ctx governs the whole decoding: once it ends, every
// later event reports its error.
func New(ctx context.Context, v any, opts ...Option) (*Decoder, error) {
	o := newOptions(opts)
	return newDecoder(ctx, v, o, readstack.NewStack(o.provider, o.stackConfig()), nil)
}

func newDecoder(ctx context.Context, v any, o *options, s *readstack.Stack, pool *readstack.Pool) (*Decoder, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, ErrInvalidTarget
	}
	d := &Decoder{ctx: ctx, dst: rv, opts: o, stack: s, pool: pool}
	if _, err := s.Init(rv.Type().Elem()); err != nil {
		d.release()
		return nil, err
	}
	return d, nil
}

// Done reports whether a complete value has been decoded.
func (d *Decoder) Done() bool { return d.done }

// Err reports the error that stopped decoding, or nil.
func (d *Decoder) Err() error { return d.err }

// Finish stores the decoded value into the destination given to New. It
// reports an error without modifying the destination if decoding failed or
// is not complete. A value is committed at most once.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	} else if d.committed {
		return ErrCommitted
	} else if !d.done {
		return ErrIncomplete
	}
	dst := d.dst.Elem()
	if !d.result.IsValid() {
		dst.SetZero()
	} else if err := readstack.Assign(dst, d.result); err != nil {
		return err
	}
	d.committed = true
	d.result = reflect.Value{}
	d.release()
	return nil
}

// release returns the stack of d to its pool, if it has one.
func (d *Decoder) release() {
	if d.pool != nil && d.stack != nil {
		d.pool.Put(d.stack)
	}
	d.stack = nil
}

func (d *Decoder) logf(msg string, args ...any) {
	if d.opts.logger != nil {
		d.opts.logger.Printf("decoder: "+msg, args...)
	}
}

// check reports an error if d may not accept another event.
func (d *Decoder) check() error {
	if d.err != nil {
		return d.err
	}
	if err := d.ctx.Err(); err != nil {
		d.err = err
		return err
	}
	if d.done {
		d.err = ErrTrailingData
		return d.err
	}
	return nil
}

// fail records err, annotated with the current path, as the error that
// stopped decoding. It returns nil if err == nil.
func (d *Decoder) fail(err error) error {
	if err == nil {
		return nil
	}
	d.err = d.stack.Wrap(err)
	return d.err
}

// complete records v as the decoded root value and empties the stack.
func (d *Decoder) complete(v reflect.Value) {
	d.result, d.done = v, true
	for d.stack.Depth() > 0 {
		d.stack.Pop()
	}
}

// BeginObject implements part of the jbind.Handler interface.
func (d *Decoder) BeginObject(loc jbind.Anchor) error {
	return d.begin(readstack.BeginObject, shape.Object, loc)
}

// BeginArray implements part of the jbind.Handler interface.
func (d *Decoder) BeginArray(loc jbind.Anchor) error {
	return d.begin(readstack.BeginArray, shape.Sequence, loc)
}

// EndObject implements part of the jbind.Handler interface.
func (d *Decoder) EndObject(loc jbind.Anchor) error { return d.end(readstack.EndObject, loc) }

// EndArray implements part of the jbind.Handler interface.
func (d *Decoder) EndArray(loc jbind.Anchor) error { return d.end(readstack.EndArray, loc) }

func (d *Decoder) begin(ev readstack.Event, kind shape.Shape, loc jbind.Anchor) error {
	if err := d.check(); err != nil {
		return err
	}
	f := d.stack.Current()
	if f.Phase() == readstack.Capture {
		return d.capture(ev, loc)
	}
	root := f.Phase() == readstack.Start
	if !root && f.ShouldSkipCurrentMember() {
		_, err := d.stack.PushDrained()
		return d.fail(err)
	}
	if f.ClassifyPosition() {
		f.BeginCapture(true)
		return d.capture(ev, loc)
	}

	t, sd := f.Slot()
	if sd.Shape == shape.Dynamic {
		t = sd.Forms[kind]
	} else if sd.Shape != kind && !(kind == shape.Object && sd.Shape == shape.Map) {
		got := "array"
		if kind == shape.Object {
			got = "object"
		}
		return d.mismatch(f, t, got, true)
	}

	if root {
		if sd.Shape == shape.Dynamic {
			// Replace the root frame with one for the concrete form.
			d.stack.Reset()
			nf, err := d.stack.Init(t)
			if err != nil {
				return d.fail(err)
			}
			f = nf
		}
		return d.fail(f.Open())
	}
	child, err := d.stack.Push(t)
	if err != nil {
		return d.fail(err)
	}
	return d.fail(child.Open())
}

// mismatch handles an input value that does not fit the slot of f, whose
// declared type is t. A composite value is drained.
func (d *Decoder) mismatch(f *readstack.Frame, t reflect.Type, got string, composite bool) error {
	if d.opts.strict {
		return d.fail(&MismatchError{Type: t, Got: got})
	}
	d.logf("discarding %s at %v: does not match %v", got, d.stack.Path(), t)
	if !composite {
		if f.Phase() == readstack.Start {
			d.complete(reflect.Value{})
		} else {
			f.Discard()
		}
		return nil
	}
	if f.Phase() == readstack.Start {
		f.BeginDrain()
		return nil
	}
	_, err := d.stack.PushDrained()
	return d.fail(err)
}

func (d *Decoder) end(ev readstack.Event, loc jbind.Anchor) error {
	if err := d.check(); err != nil {
		return err
	}
	f := d.stack.Current()
	if f.Phase() == readstack.Capture {
		return d.capture(ev, loc)
	}

	var v reflect.Value
	var err error
	switch {
	case f.Drain:
		// Nothing to fold into the parent.
	case f.Desc.Shape == shape.Sequence:
		v, err = f.FinishSequenceValue()
	case f.Desc.Shape == shape.Map:
		v, err = f.FinishMapValue()
	default:
		v = f.Target
		f.EndObject()
	}
	if err != nil {
		return d.fail(err)
	}

	drained := f.Drain
	d.stack.Pop()
	if d.stack.Depth() == 0 {
		d.complete(v)
		return nil
	}
	parent := d.stack.Current()
	if drained {
		parent.Discard()
		return nil
	}
	return d.fail(parent.Store(v))
}

// capture delivers an event to the capture in progress in the current frame.
// When the captured value is complete, it is converted and stored.
func (d *Decoder) capture(ev readstack.Event, loc jbind.Anchor) error {
	done, err := d.stack.Capture(ev, loc)
	if err != nil || !done {
		return d.fail(err)
	}
	f := d.stack.Current()
	src := f.EndCapture()
	if src == nil {
		return nil // discarded
	}
	root := f.Phase() == readstack.Start
	if err := f.ReadValue(src); err != nil {
		return d.fail(err)
	}
	if root {
		d.complete(f.Target)
	}
	return nil
}

// BeginMember implements part of the jbind.Handler interface.
func (d *Decoder) BeginMember(loc jbind.Anchor) error {
	if err := d.check(); err != nil {
		return err
	}
	f := d.stack.Current()
	if f.Phase() == readstack.Capture {
		return d.capture(readstack.BeginMember, loc)
	} else if f.Drain {
		return nil
	}

	if f.Desc.Shape == shape.Map {
		return d.fail(f.SetKey(loc.Text()))
	}
	p, err := f.SetProperty(loc.Text())
	if err != nil {
		return d.fail(err)
	}
	switch {
	case p == shape.Missing:
		if d.opts.disallowUnknown {
			return d.fail(&UnknownMemberError{Type: f.Desc.Type, Name: f.Name})
		}
		d.logf("skipping unknown member %v", d.stack.Path())
		return nil
	case p.ReadOnly:
		d.logf("skipping read-only member %v", d.stack.Path())
		return nil
	case d.excluded():
		f.SkipMember()
		d.logf("skipping excluded member %v", d.stack.Path())
		return nil
	}
	return d.fail(f.ResolveProperty())
}

// excluded reports whether the current path matches an exclusion.
func (d *Decoder) excluded() bool {
	if len(d.opts.exclude) == 0 {
		return false
	}
	path := d.stack.Path()
	for _, e := range d.opts.exclude {
		if e.Match(path) {
			return true
		}
	}
	return false
}

// EndMember implements part of the jbind.Handler interface.
func (d *Decoder) EndMember(loc jbind.Anchor) error {
	if err := d.check(); err != nil {
		return err
	}
	f := d.stack.Current()
	if f.Phase() == readstack.Capture {
		return d.capture(readstack.EndMember, loc)
	} else if !f.Drain {
		f.EndProperty()
	}
	return nil
}

// Value implements part of the jbind.Handler interface.
func (d *Decoder) Value(loc jbind.Anchor) error {
	if err := d.check(); err != nil {
		return err
	}
	f := d.stack.Current()
	if f.Phase() == readstack.Capture {
		return d.capture(readstack.Value, loc)
	}
	root := f.Phase() == readstack.Start
	if !root && f.ShouldSkipCurrentMember() {
		return nil
	}

	src, err := ast.FromAnchor(loc)
	if err != nil {
		return d.fail(err)
	}
	t, sd := f.Slot()
	switch {
	case f.ClassifyPosition() || sd.Shape == shape.Dynamic:
		err = f.ReadValue(src)
	case loc.Token() == jbind.Null:
		err = f.StoreNull()
	default:
		return d.mismatch(f, t, loc.Token().String(), false)
	}
	if err != nil {
		return d.fail(err)
	}
	if root {
		d.complete(f.Target)
	}
	return nil
}

// EndOfInput implements part of the jbind.Handler interface.
func (d *Decoder) EndOfInput(loc jbind.Anchor) {}

// Decode decodes a single JSON value from r into *v, which must be a non-nil
// pointer. It is an error if r contains anything after the value. If r is
// empty, Decode reports io.EOF. On error, *v is not modified.
func Decode(ctx context.Context, r io.Reader, v any, opts ...Option) error {
	rd := NewReader(r, opts...)
	d, err := newDecoder(ctx, v, rd.opts, rd.pool.Get(), rd.pool)
	if err != nil {
		return err
	}
	defer d.release()
	if err := rd.st.ParseOne(d); err != nil {
		return err
	} else if err := rd.expectEOF(); err != nil {
		return err
	}
	return d.Finish()
}

// A Reader decodes a stream of concatenated JSON values.
type Reader struct {
	st   *jbind.Stream
	opts *options
	pool *readstack.Pool
	err  error
}

// NewReader constructs a Reader that consumes input from r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	o := newOptions(opts)
	st := jbind.NewStream(r)
	st.AllowComments(o.comments)
	st.AllowTrailingCommas(o.trailingCommas)
	return &Reader{st: st, opts: o, pool: readstack.NewPool(o.provider, o.stackConfig())}
}

// Decode decodes the next value from the input into *v, which must be a
// non-nil pointer. It returns io.EOF when no values remain. On error, *v is
// not modified, and the Reader reports the same error for all later calls.
func (r *Reader) Decode(ctx context.Context, v any) error {
	if r.err != nil {
		return r.err
	}
	d, err := newDecoder(ctx, v, r.opts, r.pool.Get(), r.pool)
	if err != nil {
		return err
	}
	defer d.release()
	if err := r.st.ParseOne(d); err != nil {
		if err != io.EOF {
			r.err = err
		}
		return err
	}
	if err := d.Finish(); err != nil {
		r.err = err
		return err
	}
	return nil
}

// expectEOF reports an error if any input remains.
func (r *Reader) expectEOF() error {
	err := r.st.ParseOne(trailing{})
	if err == io.EOF {
		return nil
	} else if err == nil {
		return ErrTrailingData
	}
	return err
}

// trailing is a jbind.Handler that rejects any value.
type trailing struct{}

func (trailing) BeginObject(jbind.Anchor) error { return ErrTrailingData }
func (trailing) EndObject(jbind.Anchor) error   { return ErrTrailingData }
func (trailing) BeginArray(jbind.Anchor) error  { return ErrTrailingData }
func (trailing) EndArray(jbind.Anchor) error    { return ErrTrailingData }
func (trailing) BeginMember(jbind.Anchor) error { return ErrTrailingData }
func (trailing) EndMember(jbind.Anchor) error   { return ErrTrailingData }
func (trailing) Value(jbind.Anchor) error       { return ErrTrailingData }
func (trailing) EndOfInput(jbind.Anchor)        {}
