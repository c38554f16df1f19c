package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrConstruction is returned when an object cannot be constructed.
	ErrConstruction = errors.New("object construction failed")
	// ErrAccess is returned when a field cannot be read or written.
	ErrAccess = errors.New("field access failed")
	// ErrUnsupportedShape is returned when a type has no supported schema.
	ErrUnsupportedShape = errors.New("unsupported generic shape")
)

// Kind is the shape of a Schema.
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindArray
	KindList
	KindSet
	KindMap
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindArray:
		return "Array"
	case KindList:
		return "List"
	case KindSet:
		return "Set"
	case KindMap:
		return "Map"
	case KindObject:
		return "Object"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Scalar is the kind of a scalar value.
type Scalar uint8

const (
	Bool Scalar = iota + 1
	Int
	Int8
	Int16
	Int32
	Int64
	Uint
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	CharScalar
	String
	Text
)

var scalarNames = map[Scalar]string{
	Bool:       "bool",
	Int:        "int",
	Int8:       "int8",
	Int16:      "int16",
	Int32:      "int32",
	Int64:      "int64",
	Uint:       "uint",
	Uint8:      "uint8",
	Uint16:     "uint16",
	Uint32:     "uint32",
	Uint64:     "uint64",
	Float32:    "float32",
	Float64:    "float64",
	CharScalar: "char",
	String:     "string",
	Text:       "text",
}

func (s Scalar) String() string {
	if name, ok := scalarNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Scalar(%d)", s)
}

// IsInteger returns true for the signed and unsigned integer kinds.
func (s Scalar) IsInteger() bool {
	return s >= Int && s <= Uint64
}

// IsUnsigned returns true for the unsigned integer kinds.
func (s Scalar) IsUnsigned() bool {
	return s >= Uint && s <= Uint64
}

// IsFloat returns true for the floating point kinds.
func (s Scalar) IsFloat() bool {
	return s == Float32 || s == Float64
}

// Char is a single unicode code point carried as a one character JSON string.
//
// A plain rune is an int32 and is carried as a number.
type Char rune

// Named is implemented by types that provide their own stable schema name.
type Named interface {
	SchemaName() string
}

// Initializer is implemented by pointers to types that need more than the zero value
// to be constructed. Init is called on the zero value before any field is decoded.
type Initializer interface {
	Init() error
}

// Field is a single field of an Object schema.
type Field struct {
	// Name is the JSON key of the field.
	Name string
	// Schema describes the field value.
	Schema *Schema
	// Excluded fields are never encoded or decoded.
	Excluded bool
	// ReadOnly fields are encoded but never decoded.
	ReadOnly bool
	// Index is the struct field index of the field.
	Index int
}

// Schema describes the shape of a value and drives encoding and decoding.
type Schema struct {
	kind     Kind
	scalar   Scalar
	nullable bool
	ordered  bool
	name     string
	elem     *Schema
	key      *Schema
	fields   []Field
	typ      reflect.Type
	deref    *Schema
}

// base returns the schema of the pointed-to type for pointer schemas.
func (s *Schema) base() *Schema {
	if s.deref != nil {
		return s.deref
	}
	return s
}

// Kind returns the shape of the schema.
func (s *Schema) Kind() Kind { return s.base().kind }

// Scalar returns the scalar kind of a Scalar schema.
func (s *Schema) Scalar() Scalar { return s.base().scalar }

// Nullable returns true if values of this schema can be absent.
func (s *Schema) Nullable() bool { return s.nullable }

// Ordered returns true for Map schemas that keep insertion order.
func (s *Schema) Ordered() bool { return s.base().ordered }

// Name returns the fully-qualified type name of an Object schema.
func (s *Schema) Name() string { return s.base().name }

// Elem returns the element schema of Array, List and Set schemas and the value schema of Map schemas.
func (s *Schema) Elem() *Schema { return s.base().elem }

// Key returns the key schema of a Map schema.
func (s *Schema) Key() *Schema { return s.base().key }

// Fields returns the fields of an Object schema in declaration order.
func (s *Schema) Fields() []Field { return s.base().fields }

// Type returns the Go type described by this schema.
func (s *Schema) Type() reflect.Type { return s.typ }

// IsPointer returns true if the Go type is a pointer to the type described by Deref.
func (s *Schema) IsPointer() bool { return s.deref != nil }

// Deref returns the schema of the pointed-to type, or s itself if s is not a pointer schema.
func (s *Schema) Deref() *Schema { return s.base() }

// Field returns the field with the given JSON name.
//
// An excluded field is only returned when no encoded field has that name.
func (s *Schema) Field(name string) (Field, bool) {
	var excluded *Field
	for i, f := range s.base().fields {
		switch {
		case f.Name != name:
		case !f.Excluded:
			return f, true
		case excluded == nil:
			excluded = &s.base().fields[i]
		}
	}
	if excluded != nil {
		return *excluded, true
	}
	return Field{}, false
}

// Arity returns the number of type parameters of a container schema.
func (s *Schema) Arity() int {
	switch s.Kind() {
	case KindArray, KindList, KindSet:
		return 1
	case KindMap:
		return 2
	default:
		return 0
	}
}

func (s *Schema) String() string {
	var b strings.Builder
	s.describe(&b, map[*Schema]bool{})
	return b.String()
}

func (s *Schema) describe(b *strings.Builder, seen map[*Schema]bool) {
	if s.deref != nil {
		b.WriteByte('*')
		s = s.deref
	}
	switch s.kind {
	case KindScalar:
		b.WriteString(s.scalar.String())
	case KindArray, KindList, KindSet:
		b.WriteString(s.kind.String())
		b.WriteByte('(')
		s.elem.describe(b, seen)
		b.WriteByte(')')
	case KindMap:
		if s.ordered {
			b.WriteString("Ordered")
		}
		b.WriteString("Map(")
		s.key.describe(b, seen)
		b.WriteString(", ")
		s.elem.describe(b, seen)
		b.WriteByte(')')
	case KindObject:
		b.WriteString(s.name)
		if seen[s] {
			return
		}
		seen[s] = true
		b.WriteByte('{')
		for i, f := range s.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			if f.Excluded {
				b.WriteString(" -")
				continue
			}
			b.WriteByte(' ')
			f.Schema.describe(b, seen)
		}
		b.WriteByte('}')
	}
}

// TypeName returns the fully-qualified name for the given type.
//
// Slashes in the import path are replaced with dots so the name is usable as a single
// directory name.
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if n, ok := reflect.New(t).Interface().(Named); ok {
		return n.SchemaName()
	}
	if t.PkgPath() == "" {
		return strings.ReplaceAll(t.String(), "/", ".")
	}
	return strings.ReplaceAll(t.PkgPath()+"."+t.Name(), "/", ".")
}
