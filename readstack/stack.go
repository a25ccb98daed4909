// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

// Package readstack implements the explicit state stack used to decode JSON
// events into Go values without recursion.
//
// A Stack holds one Frame per level of nesting in the value being decoded.
// Frames live in an arena owned by the Stack and are reused as the decoder
// descends and returns, so that decoding a value does not allocate a frame
// per composite. Because all of the decoder's state is held in the Stack,
// decoding can be suspended between any two events and resumed later.
//
// Pointers to frames returned by a Stack are valid only until the next call
// to Push, which may move the arena.
package readstack

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/creachadair/jbind"
	"github.com/creachadair/jbind/jpath"
	"github.com/creachadair/jbind/shape"
)

// DefaultMaxDepth is the default limit on the nesting depth of a Stack.
const DefaultMaxDepth = 64

// Config carries settings for a Stack.
type Config struct {
	// MaxDepth bounds the nesting depth of values, counting captured values.
	// If MaxDepth ≤ 0, DefaultMaxDepth is used.
	MaxDepth int

	// Terminal is the set of shapes read as a single unit and handed to a
	// converter. Scalar is always terminal. If zero, shape.DefaultTerminal
	// is used.
	Terminal shape.Set

	// FoldNames, if true, matches member names to properties without regard
	// to case.
	FoldNames bool
}

func (c Config) normalize() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Terminal == 0 {
		c.Terminal = shape.DefaultTerminal
	}
	c.Terminal = c.Terminal.Add(shape.Scalar)
	return c
}

// A Stack is a stack of frames for decoding one value at a time.
// A Stack is not safe for concurrent use.
type Stack struct {
	provider shape.Provider
	cfg      Config
	frames   []Frame // arena; frames at and above depth are zero
	depth    int
}

// NewStack constructs an empty Stack that resolves types with p.
func NewStack(p shape.Provider, cfg Config) *Stack {
	return &Stack{provider: p, cfg: cfg.normalize()}
}

// Config returns the effective configuration of s.
func (s *Stack) Config() Config { return s.cfg }

// Depth reports the number of frames on s.
func (s *Stack) Depth() int { return s.depth }

// Current returns the topmost frame of s, or nil if s is empty.
func (s *Stack) Current() *Frame {
	if s.depth == 0 {
		return nil
	}
	return &s.frames[s.depth-1]
}

// Init pushes the root frame for a value of type t. It panics if s is not
// empty.
func (s *Stack) Init(t reflect.Type) (*Frame, error) {
	if s.depth != 0 {
		panic("readstack: Init on a non-empty stack")
	}
	return s.Push(t)
}

// Push pushes and initializes a frame for a value of type t. If the current
// frame is drained, the new frame is drained too and t is ignored. If Push
// fails, s is unchanged.
func (s *Stack) Push(t reflect.Type) (*Frame, error) {
	f, err := s.next()
	if err != nil {
		return nil, err
	}
	if !f.Drain {
		if err := f.Initialize(t, s.provider); err != nil {
			f.Reset()
			return nil, err
		}
	} else {
		f.phase = Open
	}
	s.depth++
	return f, nil
}

// PushDrained pushes a frame whose value is consumed and discarded.
func (s *Stack) PushDrained() (*Frame, error) {
	f, err := s.next()
	if err != nil {
		return nil, err
	}
	f.BeginDrain()
	s.depth++
	return f, nil
}

// next prepares the frame above the current one, without pushing it.
func (s *Stack) next() (*Frame, error) {
	if s.depth >= s.cfg.MaxDepth {
		return nil, &DepthError{Max: s.cfg.MaxDepth}
	}
	if s.depth == len(s.frames) {
		s.frames = append(s.frames, Frame{})
	}
	f := &s.frames[s.depth]
	f.terminal, f.fold = s.cfg.Terminal, s.cfg.FoldNames
	if s.depth > 0 {
		parent := &s.frames[s.depth-1]
		f.Drain = parent.Drain
		if parent.Desc != nil {
			f.owner, f.member = parent.Desc.Type, parent.memberLabel()
		}
	}
	return f, nil
}

// Pop removes the topmost frame of s and returns a copy of it. The arena
// slot is reset for reuse. Pop panics if s is empty.
func (s *Stack) Pop() Frame {
	if s.depth == 0 {
		panic("readstack: pop of empty stack")
	}
	s.depth--
	f := s.frames[s.depth]
	s.frames[s.depth].Reset()
	return f
}

// Reset discards all frames of s, retaining the arena.
func (s *Stack) Reset() {
	for i := range s.depth {
		s.frames[i].Reset()
	}
	s.depth = 0
}

// Capture delivers one event to the capture in progress in the current
// frame, and reports whether the captured value is complete. It reports
// *DepthError if the capture nests too deeply.
func (s *Stack) Capture(ev Event, loc jbind.Anchor) (bool, error) {
	f := s.Current()
	done, err := f.Capture(ev, loc)
	if err != nil {
		return false, err
	}
	// A capture that began at Start holds the value of f itself, so f is not
	// counted apart from the captured levels.
	outer := s.depth
	if f.resume == Start {
		outer--
	}
	if outer+f.depth > s.cfg.MaxDepth {
		return false, &DepthError{Max: s.cfg.MaxDepth}
	}
	return done, nil
}

// Path returns the path from the root to the current position of s.
func (s *Stack) Path() jpath.Expr {
	var path jpath.Expr
	for i := range s.depth {
		if step, ok := s.frames[i].Position(); ok {
			path = append(path, step)
		}
	}
	return path
}

// Wrap annotates err with the current path of s. If err is nil or already
// carries a path, it is returned unchanged.
func (s *Stack) Wrap(err error) error {
	if err == nil {
		return nil
	} else if _, ok := err.(*PathError); ok {
		return err
	}
	return &PathError{Path: s.Path(), Err: err}
}

// A Pool is a pool of stacks that share a provider and configuration.
type Pool struct {
	p    shape.Provider
	cfg  Config
	pool sync.Pool
}

// NewPool constructs a Pool of stacks that resolve types with p.
func NewPool(p shape.Provider, cfg Config) *Pool {
	return &Pool{p: p, cfg: cfg.normalize()}
}

// Get returns an empty stack from the pool, or a new one.
func (p *Pool) Get() *Stack {
	if s, ok := p.pool.Get().(*Stack); ok {
		return s
	}
	return &Stack{provider: p.p, cfg: p.cfg}
}

// Put resets s and returns it to the pool.
func (p *Pool) Put(s *Stack) {
	s.Reset()
	p.pool.Put(s)
}

// PathError reports an error at a position in the input.
type PathError struct {
	Path jpath.Expr // the path to the value where the error occurred
	Err  error      // the underlying error
}

// Error satisfies the error interface.
func (e *PathError) Error() string { return fmt.Sprintf("%v: %v", e.Path, e.Err) }

// Unwrap supports error wrapping.
func (e *PathError) Unwrap() error { return e.Err }

// DepthError reports that the input nests more deeply than permitted.
type DepthError struct {
	Max int // the depth limit
}

// Error satisfies the error interface.
func (e *DepthError) Error() string {
	return fmt.Sprintf("maximum nesting depth %d exceeded", e.Max)
}

// UnsupportedCollectionError reports that a collection cannot be populated.
type UnsupportedCollectionError struct {
	Type   reflect.Type // the declared type of the collection
	Elem   reflect.Type // the element or map value type
	Owner  reflect.Type // the type whose member holds the collection, or nil
	Member string       // the path step of the member in Owner, e.g. ".name"
	Reason string
}

// Error satisfies the error interface.
func (e *UnsupportedCollectionError) Error() string {
	where := ""
	if e.Owner != nil {
		where = fmt.Sprintf(" in %v%s", e.Owner, e.Member)
	}
	return fmt.Sprintf("unsupported collection %v of %v%s: %s", e.Type, e.Elem, where, e.Reason)
}
