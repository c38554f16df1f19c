package schema

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/nasdf/jvivo/ordered"
)

// TagName is the struct tag that controls field eligibility.
const TagName = "jvivo"

var (
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	orderedType         = reflect.TypeFor[ordered.Reflective]()
	charType            = reflect.TypeFor[Char]()
	emptyStructType     = reflect.TypeFor[struct{}]()
)

// typeSystem contains every schema derived during the lifetime of the process.
var typeSystem = struct {
	mu    sync.Mutex
	types map[reflect.Type]*Schema
	names map[reflect.Type]string
}{
	types: make(map[reflect.Type]*Schema),
	names: make(map[reflect.Type]string),
}

// For returns the schema for the type T.
func For[T any]() (*Schema, error) {
	return Of(reflect.TypeFor[T]())
}

// MustFor is like For but panics if the schema cannot be derived.
func MustFor[T any]() *Schema {
	s, err := For[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// Register pins the schema name of the type T. It must be called before the schema
// of T is first derived.
func Register[T any](name string) error {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	typeSystem.mu.Lock()
	defer typeSystem.mu.Unlock()

	if s, ok := typeSystem.types[t]; ok && s.name != name {
		return fmt.Errorf("schema for %s already derived with name %s", t, s.name)
	}
	typeSystem.names[t] = name
	return nil
}

// Of returns the schema for the given type.
//
// Schemas are derived once and cached, so every call for the same type returns the same *Schema.
func Of(t reflect.Type) (*Schema, error) {
	typeSystem.mu.Lock()
	defer typeSystem.mu.Unlock()

	if s, ok := typeSystem.types[t]; ok {
		return s, nil
	}
	pending := make(map[reflect.Type]*Schema)
	s, err := spawn(t, pending)
	if err != nil {
		return nil, err
	}
	for typ, ps := range pending {
		typeSystem.types[typ] = ps
	}
	return s, nil
}

func spawn(t reflect.Type, pending map[reflect.Type]*Schema) (*Schema, error) {
	if s, ok := typeSystem.types[t]; ok {
		return s, nil
	}
	if s, ok := pending[t]; ok {
		return s, nil
	}
	switch {
	case reflect.PointerTo(t).Implements(orderedType) && t.Kind() == reflect.Struct:
		return spawnOrderedMap(t, pending)
	case t.Implements(textMarshalerType) && reflect.PointerTo(t).Implements(textUnmarshalerType) && t.Kind() != reflect.Pointer:
		return remember(t, &Schema{kind: KindScalar, scalar: Text, typ: t}, pending), nil
	}
	switch t.Kind() {
	case reflect.Pointer:
		return spawnPointer(t, pending)
	case reflect.Bool:
		return spawnScalar(t, Bool, pending), nil
	case reflect.Int:
		return spawnScalar(t, Int, pending), nil
	case reflect.Int8:
		return spawnScalar(t, Int8, pending), nil
	case reflect.Int16:
		return spawnScalar(t, Int16, pending), nil
	case reflect.Int32:
		if t == charType {
			return spawnScalar(t, CharScalar, pending), nil
		}
		return spawnScalar(t, Int32, pending), nil
	case reflect.Int64:
		return spawnScalar(t, Int64, pending), nil
	case reflect.Uint:
		return spawnScalar(t, Uint, pending), nil
	case reflect.Uint8:
		return spawnScalar(t, Uint8, pending), nil
	case reflect.Uint16:
		return spawnScalar(t, Uint16, pending), nil
	case reflect.Uint32:
		return spawnScalar(t, Uint32, pending), nil
	case reflect.Uint64:
		return spawnScalar(t, Uint64, pending), nil
	case reflect.Float32:
		return spawnScalar(t, Float32, pending), nil
	case reflect.Float64:
		return spawnScalar(t, Float64, pending), nil
	case reflect.String:
		return spawnScalar(t, String, pending), nil
	case reflect.Array:
		return spawnContainer(t, KindArray, false, pending)
	case reflect.Slice:
		return spawnContainer(t, KindList, true, pending)
	case reflect.Map:
		if t.Elem() == emptyStructType {
			return spawnContainer(t, KindSet, true, pending)
		}
		return spawnMap(t, pending)
	case reflect.Struct:
		return spawnStruct(t, pending)
	default:
		return nil, fmt.Errorf("%w: %s has kind %s", ErrUnsupportedShape, t, t.Kind())
	}
}

func remember(t reflect.Type, s *Schema, pending map[reflect.Type]*Schema) *Schema {
	pending[t] = s
	return s
}

func spawnScalar(t reflect.Type, scalar Scalar, pending map[reflect.Type]*Schema) *Schema {
	return remember(t, &Schema{kind: KindScalar, scalar: scalar, typ: t}, pending)
}

func spawnPointer(t reflect.Type, pending map[reflect.Type]*Schema) (*Schema, error) {
	if t.Elem().Kind() == reflect.Pointer {
		return nil, fmt.Errorf("%w: %s is a pointer to a pointer", ErrUnsupportedShape, t)
	}
	s := remember(t, &Schema{nullable: true, typ: t}, pending)
	inner, err := spawn(t.Elem(), pending)
	if err != nil {
		return nil, err
	}
	s.deref = inner
	return s, nil
}

func spawnContainer(t reflect.Type, kind Kind, nullable bool, pending map[reflect.Type]*Schema) (*Schema, error) {
	s := remember(t, &Schema{kind: kind, nullable: nullable, typ: t}, pending)
	elem, err := spawn(elemType(t, kind), pending)
	if err != nil {
		return nil, err
	}
	s.elem = elem
	return s, nil
}

func elemType(t reflect.Type, kind Kind) reflect.Type {
	if kind == KindSet {
		return t.Key()
	}
	return t.Elem()
}

func spawnMap(t reflect.Type, pending map[reflect.Type]*Schema) (*Schema, error) {
	s := remember(t, &Schema{kind: KindMap, nullable: true, typ: t}, pending)
	key, err := spawn(t.Key(), pending)
	if err != nil {
		return nil, err
	}
	elem, err := spawn(t.Elem(), pending)
	if err != nil {
		return nil, err
	}
	s.key = key
	s.elem = elem
	return s, nil
}

func spawnOrderedMap(t reflect.Type, pending map[reflect.Type]*Schema) (*Schema, error) {
	s := remember(t, &Schema{kind: KindMap, nullable: true, ordered: true, typ: t}, pending)
	om := reflect.New(t).Interface().(ordered.Reflective)
	key, err := spawn(om.KeyType(), pending)
	if err != nil {
		return nil, err
	}
	elem, err := spawn(om.ValueType(), pending)
	if err != nil {
		return nil, err
	}
	s.key = key
	s.elem = elem
	return s, nil
}

func spawnStruct(t reflect.Type, pending map[reflect.Type]*Schema) (*Schema, error) {
	s := remember(t, &Schema{kind: KindObject, name: typeName(t), typ: t}, pending)
	fields := make([]Field, 0, t.NumField())
	names := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, opts, tagged := parseTag(sf)
		if !sf.IsExported() {
			if tagged && name != "-" {
				return nil, fmt.Errorf("%w: %s.%s is unexported", ErrAccess, t, sf.Name)
			}
			continue
		}
		if name == "-" {
			fields = append(fields, Field{Name: sf.Name, Excluded: true, Index: i})
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if other, ok := names[name]; ok {
			return nil, fmt.Errorf("%w: %s.%s and %s.%s share the key %q", ErrUnsupportedShape, t, other, t, sf.Name, name)
		}
		names[name] = sf.Name
		fs, err := spawn(sf.Type, pending)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t, sf.Name, err)
		}
		fields = append(fields, Field{
			Name:     name,
			Schema:   fs,
			ReadOnly: opts == "readonly",
			Index:    i,
		})
	}
	s.fields = fields
	return s, nil
}

func parseTag(sf reflect.StructField) (name, opts string, ok bool) {
	tag, ok := sf.Tag.Lookup(TagName)
	if !ok {
		return "", "", false
	}
	name, opts, _ = strings.Cut(tag, ",")
	return name, opts, true
}

// typeName must be called with typeSystem.mu held.
func typeName(t reflect.Type) string {
	if name, ok := typeSystem.names[t]; ok {
		return name
	}
	return TypeName(t)
}
