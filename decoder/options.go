// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package decoder

import (
	"github.com/creachadair/jbind/jpath"
	"github.com/creachadair/jbind/readstack"
	"github.com/creachadair/jbind/shape"
)

// Logger represents the logging contract consumed by a decoder.
type Logger interface {
	Printf(string, ...any)
}

// An Option configures a Decoder or a Reader.
type Option func(*options)

type options struct {
	provider        shape.Provider
	maxDepth        int
	terminal        shape.Set
	fold            bool
	strict          bool
	disallowUnknown bool
	comments        bool
	trailingCommas  bool
	exclude         []jpath.Expr
	logger          Logger
}

func newOptions(opts []Option) *options {
	o := &options{provider: shape.Default}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) stackConfig() readstack.Config {
	return readstack.Config{
		MaxDepth:  o.maxDepth,
		Terminal:  o.terminal,
		FoldNames: o.fold,
	}
}

// WithRegistry sets the provider used to describe Go types.
// The default is shape.Default.
func WithRegistry(p shape.Provider) Option {
	return func(o *options) {
		if p != nil {
			o.provider = p
		}
	}
}

// WithMaxDepth sets the maximum nesting depth of a decoded value.
// If n ≤ 0, readstack.DefaultMaxDepth is used.
func WithMaxDepth(n int) Option { return func(o *options) { o.maxDepth = n } }

// WithTerminal sets the shapes that are read as a single unit and handed to a
// converter, instead of being populated piecewise. Scalars are always
// terminal.
func WithTerminal(s shape.Set) Option { return func(o *options) { o.terminal = s } }

// WithCaseInsensitive enables matching member names to properties without
// regard to case.
func WithCaseInsensitive(ok bool) Option { return func(o *options) { o.fold = ok } }

// WithStrict makes a value whose kind does not match its destination an error
// of type *MismatchError. By default such values are discarded.
func WithStrict(ok bool) Option { return func(o *options) { o.strict = ok } }

// WithDisallowUnknown makes a member that matches no property an error of
// type *UnknownMemberError. By default such members are discarded.
func WithDisallowUnknown(ok bool) Option { return func(o *options) { o.disallowUnknown = ok } }

// WithExclude discards the values of object members whose paths match any of
// the given expressions.
func WithExclude(paths ...jpath.Expr) Option {
	return func(o *options) { o.exclude = append(o.exclude, paths...) }
}

// WithComments enables line and block comments in the input of a Reader.
func WithComments(ok bool) Option { return func(o *options) { o.comments = ok } }

// WithTrailingCommas permits a comma after the last member of an object or
// the last element of an array in the input of a Reader.
func WithTrailingCommas(ok bool) Option { return func(o *options) { o.trailingCommas = ok } }

// WithLogger sets the logger used for diagnostic messages about discarded
// input. By default nothing is logged.
func WithLogger(logger Logger) Option { return func(o *options) { o.logger = logger } }
