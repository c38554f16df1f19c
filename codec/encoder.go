package codec

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding"
	"fmt"
	"io"
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/ipld/go-ipld-prime/codec/json"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/nasdf/jvivo/ordered"
	"github.com/nasdf/jvivo/schema"
)

type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{bufio.NewWriter(w)}
}

func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Encode writes the JSON text of value using the schema derived from its type.
func (e *Encoder) Encode(value any) error {
	if value == nil {
		return e.EncodeNull()
	}
	v := reflect.ValueOf(value)
	s, err := schema.Of(v.Type())
	if err != nil {
		return err
	}
	return e.EncodeValue(v, s)
}

// EncodeValue writes the JSON text of v as described by s.
func (e *Encoder) EncodeValue(v reflect.Value, s *schema.Schema) error {
	if s.IsPointer() {
		if v.IsNil() {
			return e.EncodeNull()
		}
		v, s = v.Elem(), s.Deref()
	}
	switch s.Kind() {
	case schema.KindScalar:
		return e.EncodeScalar(v, s)
	case schema.KindArray, schema.KindList:
		return e.EncodeList(v, s)
	case schema.KindSet:
		return e.EncodeSet(v, s)
	case schema.KindMap:
		if s.Ordered() {
			return e.EncodeOrderedMap(v, s)
		}
		return e.EncodeMap(v, s)
	case schema.KindObject:
		return e.EncodeObject(v, s)
	default:
		return fmt.Errorf("%w: no encoder for %s", ErrUnsupportedShape, s)
	}
}

func (e *Encoder) EncodeNull() error {
	_, err := e.w.WriteString("null")
	return err
}

func (e *Encoder) EncodeScalar(v reflect.Value, s *schema.Schema) error {
	switch sc := s.Scalar(); {
	case sc == schema.Bool:
		_, err := e.w.WriteString(strconv.FormatBool(v.Bool()))
		return err
	case sc.IsUnsigned():
		// JSON integers are read back as int64
		if v.Uint() > math.MaxInt64 {
			return fmt.Errorf("%w: %d overflows a JSON integer", ErrFormat, v.Uint())
		}
		_, err := e.w.WriteString(strconv.FormatUint(v.Uint(), 10))
		return err
	case sc.IsInteger():
		_, err := e.w.WriteString(strconv.FormatInt(v.Int(), 10))
		return err
	case sc.IsFloat():
		return e.EncodeFloat(v.Float(), v.Type().Bits())
	case sc == schema.CharScalar:
		r := rune(v.Int())
		if !utf8.ValidRune(r) {
			return fmt.Errorf("%w: invalid char %d", ErrFormat, r)
		}
		return e.EncodeString(string(r))
	case sc == schema.String:
		return e.EncodeString(v.String())
	case sc == schema.Text:
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return e.EncodeString(string(text))
	default:
		return fmt.Errorf("%w: unknown scalar %s", ErrUnsupportedShape, sc)
	}
}

func (e *Encoder) EncodeFloat(value float64, bits int) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %v has no JSON representation", ErrFormat, value)
	}
	_, err := e.w.WriteString(strconv.FormatFloat(value, 'g', -1, bits))
	return err
}

// EncodeString writes value as a quoted and escaped JSON string.
func (e *Encoder) EncodeString(value string) error {
	return json.Encode(basicnode.NewString(value), e.w)
}

func (e *Encoder) EncodeList(v reflect.Value, s *schema.Schema) error {
	if v.Kind() == reflect.Slice && v.IsNil() {
		return e.EncodeNull()
	}
	if err := e.w.WriteByte('['); err != nil {
		return err
	}
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := e.EncodeValue(v.Index(i), s.Elem()); err != nil {
			return err
		}
	}
	return e.w.WriteByte(']')
}

// EncodeSet writes the set elements sorted by their JSON text so equal sets are equal text.
func (e *Encoder) EncodeSet(v reflect.Value, s *schema.Schema) error {
	if v.IsNil() {
		return e.EncodeNull()
	}
	elems := make([]string, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		text, err := encodeText(iter.Key(), s.Elem())
		if err != nil {
			return err
		}
		elems = append(elems, text)
	}
	slices.Sort(elems)

	if err := e.w.WriteByte('['); err != nil {
		return err
	}
	for i, text := range elems {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := e.w.WriteString(text); err != nil {
			return err
		}
	}
	return e.w.WriteByte(']')
}

// EncodeMap writes the entries sorted by their encoded key text.
//
// Keys are encoded to JSON text and that text is written as a quoted string key.
func (e *Encoder) EncodeMap(v reflect.Value, s *schema.Schema) error {
	if v.IsNil() {
		return e.EncodeNull()
	}
	type entry struct {
		key   string
		value reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := encodeText(iter.Key(), s.Key())
		if err != nil {
			return err
		}
		entries = append(entries, entry{key, iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.key, b.key)
	})

	if err := e.w.WriteByte('{'); err != nil {
		return err
	}
	for i, ent := range entries {
		if err := e.writeEntry(i, ent.key, ent.value, s.Elem()); err != nil {
			return err
		}
	}
	return e.w.WriteByte('}')
}

// EncodeOrderedMap writes the entries of an ordered map in insertion order.
func (e *Encoder) EncodeOrderedMap(v reflect.Value, s *schema.Schema) error {
	if !v.CanAddr() {
		tmp := reflect.New(v.Type()).Elem()
		tmp.Set(v)
		v = tmp
	}
	om := v.Addr().Interface().(ordered.Reflective)
	if om.IsNil() {
		return e.EncodeNull()
	}
	if err := e.w.WriteByte('{'); err != nil {
		return err
	}
	var i int
	var err error
	om.RangeValues(func(k, val reflect.Value) bool {
		var key string
		key, err = encodeText(k, s.Key())
		if err != nil {
			return false
		}
		err = e.writeEntry(i, key, val, s.Elem())
		i++
		return err == nil
	})
	if err != nil {
		return err
	}
	return e.w.WriteByte('}')
}

func (e *Encoder) writeEntry(i int, key string, value reflect.Value, s *schema.Schema) error {
	if i > 0 {
		if err := e.w.WriteByte(','); err != nil {
			return err
		}
	}
	if err := e.EncodeString(key); err != nil {
		return err
	}
	if err := e.w.WriteByte(':'); err != nil {
		return err
	}
	return e.EncodeValue(value, s)
}

// EncodeObject writes every non-excluded field, using null for absent values.
func (e *Encoder) EncodeObject(v reflect.Value, s *schema.Schema) error {
	if err := e.w.WriteByte('{'); err != nil {
		return err
	}
	var i int
	for _, f := range s.Fields() {
		if f.Excluded {
			continue
		}
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := e.EncodeString(f.Name); err != nil {
			return err
		}
		if err := e.w.WriteByte(':'); err != nil {
			return err
		}
		if err := e.EncodeValue(v.Field(f.Index), f.Schema); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		i++
	}
	return e.w.WriteByte('}')
}

// encodeText returns the JSON text of v.
func encodeText(v reflect.Value, s *schema.Schema) (string, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.EncodeValue(v, s); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
