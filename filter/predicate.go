package filter

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
)

// ErrTypeMismatch is returned by a predicate when the attribute value has an unexpected type.
var ErrTypeMismatch = errors.New("type mismatch")

// Predicate reports whether a decoded attribute value matches.
//
// A predicate returns ErrTypeMismatch when it cannot be applied to the value.
type Predicate func(value any) (bool, error)

const (
	equalOp          = "eq"
	notEqualOp       = "neq"
	greaterOp        = "gt"
	greaterOrEqualOp = "gte"
	lessOp           = "lt"
	lessOrEqualOp    = "lte"
	inOp             = "in"
	notInOp          = "nin"
	nullOp           = "null"
)

// as returns value as a T, following a non-nil pointer to a T.
func as[T any](value any) (T, error) {
	if v, ok := value.(T); ok {
		return v, nil
	}
	var zero T
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		if v, ok := rv.Elem().Interface().(T); ok {
			return v, nil
		}
	}
	return zero, fmt.Errorf("%w: expected %s, got %T", ErrTypeMismatch, reflect.TypeFor[T](), value)
}

// Eq matches values equal to want.
func Eq[T comparable](want T) Predicate {
	return func(value any) (bool, error) {
		v, err := as[T](value)
		if err != nil {
			return false, err
		}
		return v == want, nil
	}
}

// Ne matches values not equal to want.
func Ne[T comparable](want T) Predicate {
	return func(value any) (bool, error) {
		v, err := as[T](value)
		if err != nil {
			return false, err
		}
		return v != want, nil
	}
}

func compare[T cmp.Ordered](bound T, ok func(int) bool) Predicate {
	return func(value any) (bool, error) {
		v, err := as[T](value)
		if err != nil {
			return false, err
		}
		return ok(cmp.Compare(v, bound)), nil
	}
}

// Gt matches values greater than bound.
func Gt[T cmp.Ordered](bound T) Predicate {
	return compare(bound, func(c int) bool { return c > 0 })
}

// Gte matches values greater than or equal to bound.
func Gte[T cmp.Ordered](bound T) Predicate {
	return compare(bound, func(c int) bool { return c >= 0 })
}

// Lt matches values less than bound.
func Lt[T cmp.Ordered](bound T) Predicate {
	return compare(bound, func(c int) bool { return c < 0 })
}

// Lte matches values less than or equal to bound.
func Lte[T cmp.Ordered](bound T) Predicate {
	return compare(bound, func(c int) bool { return c <= 0 })
}

// In matches values equal to any of values.
func In[T comparable](values ...T) Predicate {
	return func(value any) (bool, error) {
		v, err := as[T](value)
		if err != nil {
			return false, err
		}
		return slices.Contains(values, v), nil
	}
}

// Func matches values for which fn returns true.
func Func[T any](fn func(T) bool) Predicate {
	return func(value any) (bool, error) {
		v, err := as[T](value)
		if err != nil {
			return false, err
		}
		return fn(v), nil
	}
}

// IsNull matches absent values.
func IsNull() Predicate {
	return func(value any) (bool, error) {
		return value == nil, nil
	}
}

// Op returns the predicate for the named operator applied to an untyped operand, as
// produced by decoding configuration or test files.
//
// Numbers of any Go numeric type are compared by value, so an int attribute can be
// matched against a float64 operand.
func Op(name string, operand any) (Predicate, error) {
	switch name {
	case equalOp:
		return func(value any) (bool, error) {
			c, err := compareAny(value, operand)
			return err == nil && c == 0, err
		}, nil
	case notEqualOp:
		return func(value any) (bool, error) {
			c, err := compareAny(value, operand)
			return err == nil && c != 0, err
		}, nil
	case greaterOp:
		return orderOp(operand, func(c int) bool { return c > 0 })
	case greaterOrEqualOp:
		return orderOp(operand, func(c int) bool { return c >= 0 })
	case lessOp:
		return orderOp(operand, func(c int) bool { return c < 0 })
	case lessOrEqualOp:
		return orderOp(operand, func(c int) bool { return c <= 0 })
	case inOp, notInOp:
		operands, ok := operand.([]any)
		if !ok {
			return nil, fmt.Errorf("operator %s requires a list operand, got %T", name, operand)
		}
		want := name == inOp
		return func(value any) (bool, error) {
			for _, o := range operands {
				c, err := compareAny(value, o)
				if err != nil {
					return false, err
				}
				if c == 0 {
					return want, nil
				}
			}
			return !want, nil
		}, nil
	case nullOp:
		return func(value any) (bool, error) {
			isNull, ok := operand.(bool)
			if !ok {
				isNull = true
			}
			return (value == nil) == isNull, nil
		}, nil
	default:
		return nil, fmt.Errorf("invalid filter operator %s", name)
	}
}

func orderOp(operand any, ok func(int) bool) (Predicate, error) {
	if _, isBool := operand.(bool); isBool {
		return nil, fmt.Errorf("%w: booleans are not ordered", ErrTypeMismatch)
	}
	return func(value any) (bool, error) {
		c, err := compareAny(value, operand)
		if err != nil {
			return false, err
		}
		return ok(c), nil
	}, nil
}

// compareAny compares two untyped scalars of the same family.
func compareAny(a, b any) (int, error) {
	a, b = deref(a), deref(b)
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		if !ok {
			break
		}
		if av == bv {
			return 0, nil
		}
		if !av {
			return -1, nil
		}
		return 1, nil
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		return cmp.Compare(av, bv), nil
	default:
		if c, ok := compareIntegers(a, b); ok {
			return c, nil
		}
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if aok && bok {
			return cmp.Compare(af, bf), nil
		}
	}
	return 0, fmt.Errorf("%w: cannot compare %T with %T", ErrTypeMismatch, a, b)
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}

// compareIntegers compares a and b exactly when both are integers.
func compareIntegers(a, b any) (int, bool) {
	ai, au, aok := toInteger(a)
	bi, bu, bok := toInteger(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case au && bu:
		return cmp.Compare(uint64(ai), uint64(bi)), true
	case au:
		if uint64(ai) > math.MaxInt64 || bi < 0 {
			return 1, true
		}
	case bu:
		if uint64(bi) > math.MaxInt64 || ai < 0 {
			return -1, true
		}
	}
	return cmp.Compare(ai, bi), true
}

// toInteger returns the bits of an integer value and whether it is unsigned.
func toInteger(v any) (bits int64, unsigned, ok bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint()), true, true
	default:
		return 0, false, false
	}
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
