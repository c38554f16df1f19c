package codec

import (
	"fmt"
	"reflect"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/nasdf/jvivo/schema"
)

// Stream decodes values of type T from a parsed JSON node.
type Stream[T any] struct {
	node   datamodel.Node
	schema *schema.Schema
}

// NewStream returns a stream over n.
func NewStream[T any](n datamodel.Node) (*Stream[T], error) {
	s, err := schema.For[T]()
	if err != nil {
		return nil, err
	}
	return &Stream[T]{node: n, schema: s}, nil
}

// ParseStream parses data and returns a stream over the result.
func ParseStream[T any](data []byte) (*Stream[T], error) {
	n, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewStream[T](n)
}

// Node returns the underlying JSON node.
func (s *Stream[T]) Node() datamodel.Node {
	return s.node
}

// Schema returns the schema of T.
func (s *Stream[T]) Schema() *schema.Schema {
	return s.schema
}

// Instance decodes the node as a single T.
func (s *Stream[T]) Instance() (T, error) {
	var out T
	v, err := Decode(s.node, s.schema)
	if err != nil {
		return out, err
	}
	return v.Interface().(T), nil
}

// Collection decodes the node as a list of T.
func (s *Stream[T]) Collection() ([]T, error) {
	if s.node.IsNull() {
		return nil, nil
	}
	if s.node.Kind() != datamodel.Kind_List {
		return nil, fmt.Errorf("%w: cannot decode %s into a collection of %s", ErrUnsupportedShape, s.node.Kind(), s.schema)
	}
	out := make([]T, 0, s.node.Length())
	iter := s.node.ListIterator()
	for !iter.Done() {
		i, n, err := iter.Next()
		if err != nil {
			return nil, err
		}
		v, err := Decode(n, s.schema)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out = append(out, v.Interface().(T))
	}
	return out, nil
}

// RelevantFields decodes only the named top level fields of an object node.
//
// Names that are unknown, excluded or absent from the node are left out of the result.
func (s *Stream[T]) RelevantFields(names ...string) (map[string]any, error) {
	return RelevantFields(s.node, s.schema, names...)
}

// RelevantFields decodes only the named top level fields of the object node n described by s.
func RelevantFields(n datamodel.Node, s *schema.Schema, names ...string) (map[string]any, error) {
	obj := s.Deref()
	if obj.Kind() != schema.KindObject {
		return nil, fmt.Errorf("%w: %s has no fields", ErrUnsupportedShape, s)
	}
	if n.Kind() != datamodel.Kind_Map {
		return nil, shapeError(n, obj)
	}
	entries, err := mapEntries(n)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		f, ok := obj.Field(name)
		if !ok || f.Excluded {
			continue
		}
		v, ok := entries[name]
		if !ok {
			continue
		}
		value, err := Decode(v, f.Schema)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = valueOf(value)
	}
	return out, nil
}

// valueOf returns the interface value of v with nil pointers, slices and maps reported
// as an untyped nil.
func valueOf(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}

// StreamMap decodes the node of s as a map from K to T.
func StreamMap[K comparable, T any](s *Stream[T]) (map[K]T, error) {
	ms, err := schema.For[map[K]T]()
	if err != nil {
		return nil, err
	}
	v, err := Decode(s.node, ms)
	if err != nil {
		return nil, err
	}
	return v.Interface().(map[K]T), nil
}
