// Package jpath implements a minimal JSONPath expression parser.
package jpath

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

/*
Grammar:

  expr = root steps
  root = "$"
 steps = step [steps]
  step = "." name
  step = ".." name
  step = "[" value "]"
  step = "[" slice "]"
  name = WORD
  name = "'" QTEXT "'"
  name = "*"
 value = name
 value = INDEX
 value = script
 value = filter
 slice = INDEX ":" INDEX
script = "(" TEXT ")"
filter = "?(" TEXT ")"

  WORD = RE `\w+`
 QTEXT = RE `([^']|\\')*`
 INDEX = RE `-?\d+`
  TEXT = { all text with nested parentheses }

Source:
  https://www.ietf.org/archive/id/draft-goessner-dispatch-jsonpath-00.html
*/

// An Expr is a parsed JSONPath expression.
type Expr []Step

// Parse parses s as a JSONPath expression.
func Parse(s string) (Expr, error) {
	st, _, err := parseExpr(s)
	if err != nil {
		return Expr{}, err
	}
	return st, nil
}

func (e Expr) String() string {
	var buf strings.Builder
	buf.WriteString("$")
	for _, s := range e {
		switch s.Op {
		case Member, Recur:
			if s.Arg2 == "qname" {
				fmt.Fprintf(&buf, "%s'%s'", s.Op, quoteName(s.Arg1))
			} else {
				fmt.Fprint(&buf, s.Op, s.Arg1)
			}

		case Slice:
			fmt.Fprintf(&buf, "[%s:%s]", s.Arg1, s.Arg2)

		case Script:
			fmt.Fprintf(&buf, "[(%s)]", s.Arg1)

		case Filter:
			fmt.Fprintf(&buf, "[?(%s)]", s.Arg1)

		default:
			if s.Op == QName {
				fmt.Fprintf(&buf, "['%s']", quoteName(s.Arg1))
			} else {
				fmt.Fprintf(&buf, "[%s]", s.Arg1)
			}
		}
	}
	return buf.String()
}

// Key returns a step selecting the object member with the given name. Names
// that are not plain identifiers are rendered in bracket notation.
func Key(name string) Step {
	if identRE.MatchString(name) {
		return Step{Op: Member, Arg1: name, Arg2: Name.String()}
	}
	return Step{Op: QName, Arg1: name}
}

// At returns a step selecting the array element at offset i.
func At(i int) Step { return Step{Op: Index, Arg1: strconv.Itoa(i)} }

// Match reports whether path is selected by e. The path must consist only of
// member and index steps, as constructed by Key and At; e may use
// wildcards, recursive descent, index lists, and slices with non-negative
// bounds. Filters and scripts never match.
func (e Expr) Match(path Expr) bool {
	if len(e) == 0 {
		return len(path) == 0
	}
	head := e[0]
	if head.Op == Recur {
		// Recursive descent: try to match the name at every depth.
		for i := range path {
			if matchStep(head, path[i]) && e[1:].Match(path[i+1:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 || !matchStep(head, path[0]) {
		return false
	}
	return e[1:].Match(path[1:])
}

// matchStep reports whether the pattern step p selects the concrete step c.
func matchStep(p, c Step) bool {
	name, idx, isIndex := concrete(c)
	switch p.Op {
	case Member, Recur:
		if p.Arg2 == Wildcard.String() {
			return true
		}
		return !isIndex && p.Arg1 == name
	case Name, QName:
		return !isIndex && p.Arg1 == name
	case Wildcard:
		return true
	case Index:
		if !isIndex {
			return false
		}
		for elt := range strings.SplitSeq(p.Arg1, ",") {
			if v, err := strconv.Atoi(elt); err == nil && v == idx {
				return true
			}
		}
		return false
	case Slice:
		if !isIndex {
			return false
		}
		lo, hi := 0, -1
		if p.Arg1 != "" {
			v, err := strconv.Atoi(p.Arg1)
			if err != nil || v < 0 {
				return false
			}
			lo = v
		}
		if p.Arg2 != "" {
			v, err := strconv.Atoi(p.Arg2)
			if err != nil || v < 0 {
				return false
			}
			hi = v
		}
		return idx >= lo && (hi < 0 || idx < hi)
	}
	return false
}

// concrete decodes a member or index step.
func concrete(s Step) (name string, idx int, isIndex bool) {
	if s.Op == Index {
		v, err := strconv.Atoi(s.Arg1)
		if err == nil {
			return "", v, true
		}
		return "", -1, true
	}
	return s.Arg1, 0, false
}

func quoteName(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func parseExpr(s string) ([]Step, string, error) {
	t, ok := strings.CutPrefix(s, "$")
	if !ok {
		return nil, s, errors.New("missing root marker")
	}
	return parseSteps(t)
}

func parseSteps(s string) (steps []Step, rest string, _ error) {
	for s != "" {
		step, rest, err := parseStep(s)
		if err != nil {
			return nil, s, err
		}
		steps = append(steps, step)
		s = rest
	}
	return steps, s, nil
}

func parseStep(s string) (_ Step, rest string, _ error) {
	if t, ok := strings.CutPrefix(s, ".."); ok {
		kind, name, u, err := parseName(t)
		if err != nil {
			return Step{}, s, fmt.Errorf("invalid ..name: %w", err)
		}
		return Step{Op: Recur, Arg1: name, Arg2: kind.String()}, u, nil
	}
	if t, ok := strings.CutPrefix(s, "."); ok {
		kind, name, u, err := parseName(t)
		if err != nil {
			return Step{}, s, fmt.Errorf("invalid .name: %w", err)
		}
		return Step{Op: Member, Arg1: name, Arg2: kind.String()}, u, nil
	}
	if t, ok := strings.CutPrefix(s, "["); ok {
		kind, val, u, err := parseValue(t)
		if err != nil {
			return Step{}, t, err
		}
		out := Step{Op: kind, Arg1: val}
		if out.Op == Slice {
			arg2, rest, err := parseIndex(u)
			if err == nil {
				out.Arg2 = arg2
				u = rest
			} else if out.Arg1 == "" {
				return Step{}, u, errors.New("invalid slice")
			}
		}
		u, ok := strings.CutPrefix(u, "]")
		if !ok {
			return Step{}, u, errors.New("missing close bracket")
		}
		return out, u, nil
	}
	return Step{}, s, errors.New("invalid path step")
}

func parseName(s string) (kind Op, name, rest string, _ error) {
	if t, ok := strings.CutPrefix(s, "*"); ok {
		return Wildcard, "*", t, nil
	}
	if m := wordRE.FindStringSubmatch(s); m != nil {
		return Name, m[1], s[len(m[0]):], nil
	}
	if m := quoteRE.FindStringSubmatch(s); m != nil {
		return QName, m[1], s[len(m[0]):], nil
	}
	return Invalid, "", s, errors.New("invalid name")
}

func parseIndex(s string) (text, rest string, _ error) {
	if m := indexRE.FindStringSubmatch(s); m != nil {
		return m[1], s[len(m[0]):], nil
	}
	return "", "", errors.New("invalid index")
}

func parseValue(s string) (kind Op, value, rest string, _ error) {
	if t, ok := strings.CutPrefix(s, "?("); ok {
		text, rest, err := parseScript(t)
		return Filter, text, rest, err
	}
	if t, ok := strings.CutPrefix(s, "("); ok {
		text, rest, err := parseScript(t)
		return Script, text, rest, err
	}
	if text, rest, err := parseIndex(s); err == nil {
		if u, ok := strings.CutPrefix(rest, ":"); ok {
			return Slice, text, u, nil
		}
		return Index, text, rest, nil
	}
	if u, ok := strings.CutPrefix(s, ":"); ok {
		return Slice, "", u, nil
	}
	if kind, text, rest, err := parseName(s); err == nil {
		return kind, text, rest, nil
	}
	return Invalid, "", s, fmt.Errorf("invalid value: %q", s)
}

func parseScript(s string) (text, rest string, _ error) {
	i, np := 0, 1
	for i < len(s) {
		if s[i] == ')' {
			np--
			if np == 0 {
				break
			}
		} else if s[i] == '(' {
			np++
		}
		i++
	}
	if np > 0 {
		return "", s, errors.New("unbalanced parentheses")
	}
	return s[:i], s[i+1:], nil
}

var (
	wordRE  = regexp.MustCompile(`^(\w+)`)
	indexRE = regexp.MustCompile(`^(-?\d+(?:,-?\d+)*)`)
	quoteRE = regexp.MustCompile(`^'([^\']*)'`)
	identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// An Op is a path operator.
type Op byte

const (
	Invalid  Op = iota // invalid operator
	Member             // member lookup (.)
	Index              // array index lookup
	Slice              // array slice
	Wildcard           // wildcard expansion (*)
	Name               // unquoted name expansion
	QName              // quoted name expansion
	Recur              // recur operator
	Filter             // filter operator
	Script             // script operator
)

var opText = map[Op]string{
	Invalid:  "invalid",
	Member:   ".",
	Index:    "index",
	Slice:    "slice",
	Wildcard: "*",
	Name:     "name",
	QName:    "qname",
	Recur:    "..",
	Filter:   "?(...)",
	Script:   "(...)",
}

func (o Op) String() string {
	if s, ok := opText[o]; ok {
		return s
	}
	return opText[Invalid]
}

// A Step is a single step of a JSONPath expression.
type Step struct {
	Op   Op
	Arg1 string
	Arg2 string
}
