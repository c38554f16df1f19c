// Package ordered provides an insertion ordered map that the codec encodes with its
// entries in insertion order.
package ordered

import (
	"iter"
	"reflect"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Reflective is implemented by ordered map types so the codec can build and walk them
// without knowing their type parameters.
type Reflective interface {
	// KeyType returns the type of the map keys.
	KeyType() reflect.Type
	// ValueType returns the type of the map values.
	ValueType() reflect.Type
	// IsNil returns true if the map was never initialized.
	IsNil() bool
	// Len returns the number of entries.
	Len() int
	// RangeValues calls fn for every entry in insertion order until fn returns false.
	RangeValues(fn func(k, v reflect.Value) bool)
	// Reset replaces the contents with an empty initialized map.
	Reset()
	// SetValue stores the entry, keeping the position of an existing key.
	SetValue(k, v reflect.Value)
}

// Map is an insertion ordered map. The zero value is an absent (nil) map.
type Map[K comparable, V any] struct {
	m *orderedmap.OrderedMap[K, V]
}

// New returns an empty initialized map.
func New[K comparable, V any]() Map[K, V] {
	return Map[K, V]{m: orderedmap.New[K, V]()}
}

// Set stores the value for key.
func (m *Map[K, V]) Set(key K, value V) {
	if m.m == nil {
		m.m = orderedmap.New[K, V]()
	}
	m.m.Set(key, value)
}

// Get returns the value for key.
func (m Map[K, V]) Get(key K) (V, bool) {
	if m.m == nil {
		var zero V
		return zero, false
	}
	return m.m.Get(key)
}

// Delete removes key and returns true if it was present.
func (m Map[K, V]) Delete(key K) bool {
	if m.m == nil {
		return false
	}
	_, ok := m.m.Delete(key)
	return ok
}

// Len returns the number of entries.
func (m Map[K, V]) Len() int {
	if m.m == nil {
		return 0
	}
	return m.m.Len()
}

// IsNil returns true if the map was never initialized.
func (m Map[K, V]) IsNil() bool {
	return m.m == nil
}

// All returns an iterator over the entries in insertion order.
func (m Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m.m == nil {
			return
		}
		for pair := m.m.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Keys returns the keys in insertion order.
func (m Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	for k := range m.All() {
		keys = append(keys, k)
	}
	return keys
}

// Equal returns true if both maps hold the same entries in the same order.
//
// It is picked up by go-cmp when comparing values that contain maps.
func (m Map[K, V]) Equal(other Map[K, V]) bool {
	if m.IsNil() || other.IsNil() {
		return m.IsNil() == other.IsNil()
	}
	if m.Len() != other.Len() {
		return false
	}
	a, b := m.m.Oldest(), other.m.Oldest()
	for ; a != nil && b != nil; a, b = a.Next(), b.Next() {
		if a.Key != b.Key || !reflect.DeepEqual(a.Value, b.Value) {
			return false
		}
	}
	return true
}

func (m *Map[K, V]) KeyType() reflect.Type {
	return reflect.TypeFor[K]()
}

func (m *Map[K, V]) ValueType() reflect.Type {
	return reflect.TypeFor[V]()
}

func (m *Map[K, V]) RangeValues(fn func(k, v reflect.Value) bool) {
	for k, v := range m.All() {
		if !fn(reflect.ValueOf(&k).Elem(), reflect.ValueOf(&v).Elem()) {
			return
		}
	}
}

func (m *Map[K, V]) Reset() {
	m.m = orderedmap.New[K, V]()
}

func (m *Map[K, V]) SetValue(k, v reflect.Value) {
	m.Set(k.Interface().(K), v.Interface().(V))
}

var _ Reflective = (*Map[string, any])(nil)
