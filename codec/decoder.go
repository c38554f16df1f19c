package codec

import (
	"encoding"
	"fmt"
	"io"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/nasdf/jvivo/ordered"
	"github.com/nasdf/jvivo/schema"
)

var setMember = reflect.ValueOf(struct{}{})

type Decoder struct {
	r io.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r}
}

// Decode reads one JSON value and stores it in the value pointed to by ptr.
func (d *Decoder) Decode(ptr any) error {
	n, err := ParseReader(d.r)
	if err != nil {
		return err
	}
	return DecodeInto(n, ptr)
}

// DecodeInto decodes n into the value pointed to by ptr.
//
// ptr is left untouched when decoding fails.
func DecodeInto(n datamodel.Node, ptr any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer, got %T", ErrAccess, ptr)
	}
	s, err := schema.Of(rv.Type().Elem())
	if err != nil {
		return err
	}
	value, err := Decode(n, s)
	if err != nil {
		return err
	}
	rv.Elem().Set(value)
	return nil
}

// Decode returns a new value of the type described by s built from n.
func Decode(n datamodel.Node, s *schema.Schema) (reflect.Value, error) {
	value := reflect.New(s.Type()).Elem()
	if err := decodeValue(n, s, value); err != nil {
		return reflect.Value{}, err
	}
	return value, nil
}

// decodeValue stores the value of n in dst. Containers and objects are built in a
// fresh location and only assigned to dst once they are complete.
func decodeValue(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	if n.IsNull() {
		if !s.Nullable() {
			return fmt.Errorf("%w: null is not a valid %s", ErrFormat, s)
		}
		dst.SetZero()
		return nil
	}
	if s.IsPointer() {
		ptr := reflect.New(s.Type().Elem())
		if err := decodeValue(n, s.Deref(), ptr.Elem()); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	}
	switch s.Kind() {
	case schema.KindScalar:
		return decodeScalar(n, s, dst)
	case schema.KindArray:
		return decodeArray(n, s, dst)
	case schema.KindList:
		return decodeList(n, s, dst)
	case schema.KindSet:
		return decodeSet(n, s, dst)
	case schema.KindMap:
		if s.Ordered() {
			return decodeOrderedMap(n, s, dst)
		}
		return decodeMap(n, s, dst)
	case schema.KindObject:
		return decodeObject(n, s, dst)
	default:
		return fmt.Errorf("%w: no decoder for %s", ErrUnsupportedShape, s)
	}
}

func decodeScalar(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	switch sc := s.Scalar(); {
	case sc == schema.Bool:
		v, err := n.AsBool()
		if err != nil {
			return kindError(n, s)
		}
		dst.SetBool(v)
		return nil
	case sc.IsUnsigned():
		v, err := asInteger(n, s)
		if err != nil {
			return err
		}
		if v < 0 || dst.OverflowUint(uint64(v)) {
			return fmt.Errorf("%w: %d overflows %s", ErrFormat, v, sc)
		}
		dst.SetUint(uint64(v))
		return nil
	case sc.IsInteger():
		v, err := asInteger(n, s)
		if err != nil {
			return err
		}
		if dst.OverflowInt(v) {
			return fmt.Errorf("%w: %d overflows %s", ErrFormat, v, sc)
		}
		dst.SetInt(v)
		return nil
	case sc.IsFloat():
		v, err := asFloat(n, s)
		if err != nil {
			return err
		}
		if dst.OverflowFloat(v) {
			return fmt.Errorf("%w: %v overflows %s", ErrFormat, v, sc)
		}
		dst.SetFloat(v)
		return nil
	case sc == schema.CharScalar:
		v, err := n.AsString()
		if err != nil {
			return kindError(n, s)
		}
		if utf8.RuneCountInString(v) != 1 {
			return fmt.Errorf("%w: %q is not a single char", ErrFormat, v)
		}
		r, _ := utf8.DecodeRuneInString(v)
		dst.SetInt(int64(r))
		return nil
	case sc == schema.String:
		v, err := n.AsString()
		if err != nil {
			return kindError(n, s)
		}
		dst.SetString(v)
		return nil
	case sc == schema.Text:
		v, err := n.AsString()
		if err != nil {
			return kindError(n, s)
		}
		if err := dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scalar %s", ErrUnsupportedShape, sc)
	}
}

func asInteger(n datamodel.Node, s *schema.Schema) (int64, error) {
	switch n.Kind() {
	case datamodel.Kind_Int:
		return n.AsInt()
	case datamodel.Kind_Float:
		f, err := n.AsFloat()
		if err != nil {
			return 0, err
		}
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrFormat, f)
		}
		return int64(f), nil
	default:
		return 0, kindError(n, s)
	}
}

func asFloat(n datamodel.Node, s *schema.Schema) (float64, error) {
	switch n.Kind() {
	case datamodel.Kind_Int:
		v, err := n.AsInt()
		return float64(v), err
	case datamodel.Kind_Float:
		return n.AsFloat()
	default:
		return 0, kindError(n, s)
	}
}

func kindError(n datamodel.Node, s *schema.Schema) error {
	return fmt.Errorf("%w: cannot decode %s into %s", ErrFormat, n.Kind(), s)
}

func shapeError(n datamodel.Node, s *schema.Schema) error {
	return fmt.Errorf("%w: cannot decode %s into %s", ErrUnsupportedShape, n.Kind(), s)
}

func decodeArray(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	if n.Kind() != datamodel.Kind_List {
		return shapeError(n, s)
	}
	if int(n.Length()) != dst.Len() {
		return fmt.Errorf("%w: expected %d elements, got %d", ErrFormat, dst.Len(), n.Length())
	}
	array := reflect.New(s.Type()).Elem()
	iter := n.ListIterator()
	for !iter.Done() {
		i, v, err := iter.Next()
		if err != nil {
			return err
		}
		if err := decodeValue(v, s.Elem(), array.Index(int(i))); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	dst.Set(array)
	return nil
}

func decodeList(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	if n.Kind() != datamodel.Kind_List {
		return shapeError(n, s)
	}
	list := reflect.MakeSlice(s.Type(), int(n.Length()), int(n.Length()))
	iter := n.ListIterator()
	for !iter.Done() {
		i, v, err := iter.Next()
		if err != nil {
			return err
		}
		if err := decodeValue(v, s.Elem(), list.Index(int(i))); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	dst.Set(list)
	return nil
}

func decodeSet(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	if n.Kind() != datamodel.Kind_List {
		return shapeError(n, s)
	}
	set := reflect.MakeMapWithSize(s.Type(), int(n.Length()))
	iter := n.ListIterator()
	for !iter.Done() {
		i, v, err := iter.Next()
		if err != nil {
			return err
		}
		elem, err := Decode(v, s.Elem())
		if err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
		set.SetMapIndex(elem, setMember)
	}
	dst.Set(set)
	return nil
}

// decodeEntries calls fn with the decoded key and value of every map entry.
//
// Keys were written as the quoted JSON text of the key, so each key string is parsed
// again and decoded against the key schema.
func decodeEntries(n datamodel.Node, s *schema.Schema, fn func(k, v reflect.Value)) error {
	if n.Kind() != datamodel.Kind_Map {
		return shapeError(n, s)
	}
	iter := n.MapIterator()
	for !iter.Done() {
		k, v, err := iter.Next()
		if err != nil {
			return err
		}
		text, err := k.AsString()
		if err != nil {
			return err
		}
		keyNode, err := Parse([]byte(text))
		if err != nil {
			return fmt.Errorf("key %q: %w", text, err)
		}
		key, err := Decode(keyNode, s.Key())
		if err != nil {
			return fmt.Errorf("key %q: %w", text, err)
		}
		value, err := Decode(v, s.Elem())
		if err != nil {
			return fmt.Errorf("key %q: %w", text, err)
		}
		fn(key, value)
	}
	return nil
}

func decodeMap(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	m := reflect.MakeMapWithSize(s.Type(), int(n.Length()))
	err := decodeEntries(n, s, func(k, v reflect.Value) {
		m.SetMapIndex(k, v)
	})
	if err != nil {
		return err
	}
	dst.Set(m)
	return nil
}

func decodeOrderedMap(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	ptr := reflect.New(s.Type())
	om := ptr.Interface().(ordered.Reflective)
	om.Reset()
	if err := decodeEntries(n, s, om.SetValue); err != nil {
		return err
	}
	dst.Set(ptr.Elem())
	return nil
}

// decodeObject constructs the zero value of the object, runs its initializer and then
// decodes every eligible field present in n. Absent fields keep their default.
func decodeObject(n datamodel.Node, s *schema.Schema, dst reflect.Value) error {
	if n.Kind() != datamodel.Kind_Map {
		return shapeError(n, s)
	}
	obj, err := construct(s)
	if err != nil {
		return err
	}
	entries, err := mapEntries(n)
	if err != nil {
		return err
	}
	for _, f := range s.Fields() {
		if f.Excluded || f.ReadOnly {
			continue
		}
		v, ok := entries[f.Name]
		if !ok {
			continue
		}
		field := obj.Field(f.Index)
		if !field.CanSet() {
			return fmt.Errorf("%w: %s.%s", ErrAccess, s.Name(), f.Name)
		}
		if err := decodeValue(v, f.Schema, field); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	dst.Set(obj)
	return nil
}

// construct returns the addressable zero value of an object schema.
func construct(s *schema.Schema) (reflect.Value, error) {
	ptr := reflect.New(s.Type())
	if init, ok := ptr.Interface().(schema.Initializer); ok {
		if err := init.Init(); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %s: %w", ErrConstruction, s.Name(), err)
		}
	}
	return ptr.Elem(), nil
}

func mapEntries(n datamodel.Node) (map[string]datamodel.Node, error) {
	entries := make(map[string]datamodel.Node, n.Length())
	iter := n.MapIterator()
	for !iter.Done() {
		k, v, err := iter.Next()
		if err != nil {
			return nil, err
		}
		key, err := k.AsString()
		if err != nil {
			return nil, err
		}
		entries[key] = v
	}
	return entries, nil
}
