// Copyright (C) 2021 Michael J. Fromberger. All Rights Reserved.

package readstack

import (
	"fmt"

	"github.com/creachadair/jbind"
)

// An Event identifies one of the methods of a jbind.Handler.
type Event byte

// Constants defining the valid Event values.
const (
	BeginObject Event = iota + 1
	EndObject
	BeginArray
	EndArray
	BeginMember
	EndMember
	Value
)

var eventStr = [...]string{
	BeginObject: "BeginObject",
	EndObject:   "EndObject",
	BeginArray:  "BeginArray",
	EndArray:    "EndArray",
	BeginMember: "BeginMember",
	EndMember:   "EndMember",
	Value:       "Value",
}

func (e Event) String() string {
	if e == 0 || int(e) >= len(eventStr) {
		return fmt.Sprintf("Event(%d)", e)
	}
	return eventStr[e]
}

// Deliver calls the method of h corresponding to e with loc.
func (e Event) Deliver(h jbind.Handler, loc jbind.Anchor) error {
	switch e {
	case BeginObject:
		return h.BeginObject(loc)
	case EndObject:
		return h.EndObject(loc)
	case BeginArray:
		return h.BeginArray(loc)
	case EndArray:
		return h.EndArray(loc)
	case BeginMember:
		return h.BeginMember(loc)
	case EndMember:
		return h.EndMember(loc)
	case Value:
		return h.Value(loc)
	}
	return fmt.Errorf("invalid event %v", e)
}
