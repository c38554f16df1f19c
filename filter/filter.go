// Package filter implements attribute predicate trees that are evaluated against the
// decoded fields of a stored object.
package filter

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Filter is a node in a predicate tree.
//
// Each node holds a predicate over a single attribute and an ordered list of children.
// A child is combined with the result accumulated so far using its own combinator.
type Filter struct {
	attr     string
	pred     Predicate
	negated  bool
	or       bool
	children []*Filter
}

// Where returns a filter that matches when pred matches the value of attr.
func Where(attr string, pred Predicate) *Filter {
	return &Filter{attr: attr, pred: pred}
}

// And appends child so that it is combined with the result so far using AND.
func (f *Filter) And(child *Filter) *Filter {
	child.or = false
	f.children = append(f.children, child)
	return f
}

// Or appends child so that it is combined with the result so far using OR.
func (f *Filter) Or(child *Filter) *Filter {
	child.or = true
	f.children = append(f.children, child)
	return f
}

// AndWhere is shorthand for f.And(Where(attr, pred)).
func (f *Filter) AndWhere(attr string, pred Predicate) *Filter {
	return f.And(Where(attr, pred))
}

// OrWhere is shorthand for f.Or(Where(attr, pred)).
func (f *Filter) OrWhere(attr string, pred Predicate) *Filter {
	return f.Or(Where(attr, pred))
}

// Not negates the whole tree in place.
//
// The predicate of every node is inverted and the combinator of every descendant is
// flipped, so the result of Evaluate is inverted for any attributes that cover Required.
func (f *Filter) Not() *Filter {
	f.negated = !f.negated
	for _, c := range f.children {
		c.or = !c.or
		c.Not()
	}
	return f
}

// Clone returns a deep copy of the tree.
func (f *Filter) Clone() *Filter {
	out := &Filter{
		attr:     f.attr,
		pred:     f.pred,
		negated:  f.negated,
		or:       f.or,
		children: make([]*Filter, len(f.children)),
	}
	for i, c := range f.children {
		out.children[i] = c.Clone()
	}
	return out
}

// Required returns the sorted names of all attributes referenced by the tree.
func (f *Filter) Required() []string {
	set := make(map[string]struct{})
	f.required(set)
	return slices.Sorted(maps.Keys(set))
}

func (f *Filter) required(set map[string]struct{}) {
	set[f.attr] = struct{}{}
	for _, c := range f.children {
		c.required(set)
	}
}

// Evaluate returns true if the tree matches attrs.
//
// Evaluation never fails: a node whose required attributes are missing or whose predicate
// returns an error or panics does not match.
func (f *Filter) Evaluate(attrs map[string]any) bool {
	for _, name := range f.Required() {
		if _, ok := attrs[name]; !ok {
			return false
		}
	}
	match, err := f.apply(attrs[f.attr])
	if err != nil {
		return false
	}
	for _, c := range f.children {
		if c.or {
			match = match || c.Evaluate(attrs)
		} else {
			match = match && c.Evaluate(attrs)
		}
	}
	return match
}

func (f *Filter) apply(value any) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predicate on %s panicked: %v", f.attr, r)
		}
	}()
	match, err = f.pred(value)
	if err != nil {
		return false, err
	}
	return match != f.negated, nil
}

func (f *Filter) String() string {
	var b strings.Builder
	f.describe(&b)
	return b.String()
}

func (f *Filter) describe(b *strings.Builder) {
	if len(f.children) > 0 {
		b.WriteByte('(')
	}
	if f.negated {
		b.WriteString("not ")
	}
	b.WriteString(f.attr)
	for _, c := range f.children {
		if c.or {
			b.WriteString(" or ")
		} else {
			b.WriteString(" and ")
		}
		c.describe(b)
	}
	if len(f.children) > 0 {
		b.WriteByte(')')
	}
}
