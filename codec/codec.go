// Package codec converts Go values to JSON text and JSON nodes back to Go values using
// the schema derived from their type.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/ipld/go-ipld-prime/codec/json"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/nasdf/jvivo/schema"
)

var (
	// ErrFormat is returned when JSON text or a value cannot be represented.
	ErrFormat = errors.New("invalid format")

	ErrConstruction     = schema.ErrConstruction
	ErrAccess           = schema.ErrAccess
	ErrUnsupportedShape = schema.ErrUnsupportedShape
)

// Marshal returns the JSON text of v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalSchema returns the JSON text of v as described by s.
func MarshalSchema(v any, s *schema.Schema) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return []byte("null"), nil
	}
	if rv.Type() != s.Type() {
		return nil, fmt.Errorf("%w: %T does not match %s", ErrUnsupportedShape, v, s)
	}
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.EncodeValue(rv, s); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses data and stores the result in the value pointed to by ptr.
func Unmarshal(data []byte, ptr any) error {
	n, err := Parse(data)
	if err != nil {
		return err
	}
	return DecodeInto(n, ptr)
}

// Parse returns the JSON node of data.
func Parse(data []byte) (datamodel.Node, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader reads a single JSON value from r.
func ParseReader(r io.Reader) (datamodel.Node, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := json.Decode(nb, r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return nb.Build(), nil
}
