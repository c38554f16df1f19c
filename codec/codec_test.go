package codec

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nasdf/jvivo/ordered"
	"github.com/nasdf/jvivo/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int
	Y int
}

type address struct {
	Street string
	Zip    *int
}

type person struct {
	Name    string
	Age     uint8
	Address *address
	Tags    []string
	Scores  map[string]float64
	Parent  *person
}

type account struct {
	ID       string `jvivo:"id"`
	Password string `jvivo:"-"`
	Created  int    `jvivo:"created,readonly"`
	Note     *string
}

type counter struct {
	Count int
	Step  int
}

func (c *counter) Init() error {
	c.Step = 1
	return nil
}

type broken struct {
	A int
}

func (b *broken) Init() error {
	return errors.New("boom")
}

type labelKey struct {
	Labels [2][2]string
}

type labelIndex struct {
	Name   string
	Counts map[labelKey]int
}

type sharedKey struct {
	A int `jvivo:"x"`
	B int `jvivo:"x"`
}

type hidden struct {
	visible int `jvivo:"visible"`
}

type withFunc struct {
	Callback func()
}

type menu struct {
	Items ordered.Map[string, int]
}

func intPtr(v int) *int {
	return &v
}

var roundTripInput = []any{
	true,
	int(-42),
	int8(math.MinInt8),
	int16(math.MaxInt16),
	int32(-7),
	int64(math.MaxInt64),
	int64(math.MinInt64),
	uint(7),
	uint8(math.MaxUint8),
	uint16(math.MaxUint16),
	uint32(math.MaxUint32),
	uint64(math.MaxInt64),
	float32(1.5),
	float64(3.14),
	float64(-0.001),
	float64(2),
	"",
	"hello \"world\"\n\ttabbed \\ slash",
	"日本語",
	schema.Char('x'),
	schema.Char('é'),
	time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
	[3]int{1, 2, 3},
	[]string{},
	[]string{"a", "b"},
	[][]int{{1}, {2, 3}, {}},
	map[string]struct{}{"a": {}, "b": {}},
	map[int]struct{}{},
	map[string]int{"one": 1, "two": 2},
	map[int]string{1: "one", 2: "two"},
	map[point]string{{1, 2}: "a", {3, 4}: "b"},
	map[string][]int{"x": {1, 2}, "y": nil},
	point{X: 1, Y: -1},
	&point{X: 5},
	person{
		Name:    "Ann",
		Age:     31,
		Address: &address{Street: "Main", Zip: intPtr(12345)},
		Tags:    []string{"a", "b"},
		Scores:  map[string]float64{"math": 9.5},
		Parent:  &person{Name: "Bea", Tags: []string{}},
	},
	[]*person{{Name: "Cid"}, nil},
	map[labelKey]int{
		{Labels: [2][2]string{{"a", "b"}, {"c", "d"}}}: 1,
		{Labels: [2][2]string{{"e", "f"}, {"g", "h"}}}: 2,
	},
}

func TestRoundTrip(t *testing.T) {
	for _, expect := range roundTripInput {
		data, err := Marshal(expect)
		require.NoError(t, err, "marshal %T", expect)

		ptr := reflect.New(reflect.TypeOf(expect))
		err = Unmarshal(data, ptr.Interface())
		require.NoError(t, err, "unmarshal %T from %s", expect, data)

		if diff := cmp.Diff(expect, ptr.Elem().Interface()); diff != "" {
			t.Errorf("round trip of %T mismatch (-want +got):\n%s", expect, diff)
		}
	}
}

func TestRoundTripOrderedMap(t *testing.T) {
	expect := menu{Items: ordered.New[string, int]()}
	expect.Items.Set("soup", 4)
	expect.Items.Set("bread", 2)
	expect.Items.Set("apple", 1)

	data, err := Marshal(expect)
	require.NoError(t, err)
	assert.Equal(t, `{"Items":{"\"soup\"":4,"\"bread\"":2,"\"apple\"":1}}`, string(data))

	var actual menu
	require.NoError(t, Unmarshal(data, &actual))
	assert.Equal(t, []string{"soup", "bread", "apple"}, actual.Items.Keys())
	assert.True(t, expect.Items.Equal(actual.Items))

	var absent menu
	data, err = Marshal(absent)
	require.NoError(t, err)
	assert.Equal(t, `{"Items":null}`, string(data))
}

func TestEncodeDecodeStream(t *testing.T) {
	var buffer bytes.Buffer
	enc := NewEncoder(&buffer)
	dec := NewDecoder(&buffer)

	expect := person{Name: "Dee", Tags: []string{"x"}}
	require.NoError(t, enc.Encode(expect))
	require.NoError(t, enc.Flush())

	var actual person
	require.NoError(t, dec.Decode(&actual))
	assert.Equal(t, expect, actual)
}

func TestMarshalText(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		expect string
	}{
		{"nil", nil, `null`},
		{"bool", false, `false`},
		{"int", -3, `-3`},
		{"float", 0.1, `0.1`},
		{"integral float", 2.0, `2`},
		{"float32", float32(0.1), `0.1`},
		{"char", schema.Char('z'), `"z"`},
		{"rune", 'z', `122`},
		{"string", "a", `"a"`},
		{"nil pointer", (*point)(nil), `null`},
		{"nil slice", []int(nil), `null`},
		{"empty slice", []int{}, `[]`},
		{"nil map", map[string]int(nil), `null`},
		{"empty map", map[string]int{}, `{}`},
		{"array", [2]bool{true, false}, `[true,false]`},
		{"set", map[int]struct{}{3: {}, 1: {}, 2: {}}, `[1,2,3]`},
		{"int keys", map[int]string{2: "b", 1: "a"}, `{"1":"a","2":"b"}`},
		{"string keys", map[string]int{"b": 2, "a": 1}, `{"\"a\"":1,"\"b\"":2}`},
		{"object", point{X: 1, Y: 2}, `{"X":1,"Y":2}`},
		{"absent fields", address{}, `{"Street":"","Zip":null}`},
		{"tags", account{ID: "x", Password: "secret", Created: 5}, `{"id":"x","created":5,"Note":null}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := Marshal(test.value)
			require.NoError(t, err)
			assert.Equal(t, test.expect, string(data))
		})
	}
}

func TestMarshalSetIsDeterministic(t *testing.T) {
	set := map[string]struct{}{"c": {}, "a": {}, "b": {}, "d": {}}
	first, err := Marshal(set)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		data, err := Marshal(set)
		require.NoError(t, err)
		assert.Equal(t, first, data)
	}
	assert.Equal(t, `["a","b","c","d"]`, string(first))
}

func TestCompositeKeyIsDoubleEncoded(t *testing.T) {
	first := labelKey{Labels: [2][2]string{{"a", "b"}, {"c", "d"}}}
	second := labelKey{Labels: [2][2]string{{"a", "b"}, {"c", "e"}}}
	index := labelIndex{Name: "idx", Counts: map[labelKey]int{first: 7, second: 9}}

	data, err := Marshal(index)
	require.NoError(t, err)

	n, err := Parse(data)
	require.NoError(t, err)
	counts, err := n.LookupByString("Counts")
	require.NoError(t, err)
	require.EqualValues(t, 2, counts.Length())

	keys := make(map[string]int64)
	iter := counts.MapIterator()
	for !iter.Done() {
		k, v, err := iter.Next()
		require.NoError(t, err)
		text, err := k.AsString()
		require.NoError(t, err)
		count, err := v.AsInt()
		require.NoError(t, err)
		keys[text] = count
	}
	assert.Equal(t, map[string]int64{
		`{"Labels":[["a","b"],["c","d"]]}`: 7,
		`{"Labels":[["a","b"],["c","e"]]}`: 9,
	}, keys)

	var actual labelIndex
	require.NoError(t, Unmarshal(data, &actual))
	assert.Equal(t, index, actual)
	assert.Equal(t, 7, actual.Counts[first])
	assert.Equal(t, 9, actual.Counts[second])
}

func TestUnmarshalObject(t *testing.T) {
	t.Run("absent keys keep defaults", func(t *testing.T) {
		var c counter
		require.NoError(t, Unmarshal([]byte(`{"Count":3}`), &c))
		assert.Equal(t, counter{Count: 3, Step: 1}, c)
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		var p point
		require.NoError(t, Unmarshal([]byte(`{"X":1,"Z":9}`), &p))
		assert.Equal(t, point{X: 1}, p)
	})

	t.Run("excluded and readonly fields are not decoded", func(t *testing.T) {
		var a account
		require.NoError(t, Unmarshal([]byte(`{"id":"y","created":9,"Password":"q","Note":"hi"}`), &a))
		assert.Equal(t, "y", a.ID)
		assert.Equal(t, "", a.Password)
		assert.Equal(t, 0, a.Created)
		require.NotNil(t, a.Note)
		assert.Equal(t, "hi", *a.Note)
	})

	t.Run("null clears reference fields", func(t *testing.T) {
		p := person{Tags: []string{"a"}, Address: &address{}}
		require.NoError(t, Unmarshal([]byte(`{"Name":"x","Tags":null,"Address":null}`), &p))
		assert.Nil(t, p.Tags)
		assert.Nil(t, p.Address)
	})

	t.Run("failed decode leaves target untouched", func(t *testing.T) {
		a := account{ID: "keep"}
		err := Unmarshal([]byte(`{"id":"new","Note":5}`), &a)
		require.ErrorIs(t, err, ErrFormat)
		assert.Equal(t, account{ID: "keep"}, a)
	})

	t.Run("integral floats decode into integers", func(t *testing.T) {
		var p point
		require.NoError(t, Unmarshal([]byte(`{"X":2.0,"Y":-1}`), &p))
		assert.Equal(t, point{X: 2, Y: -1}, p)
	})
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		target any
		expect error
	}{
		{"invalid json", `{"X":`, new(point), ErrFormat},
		{"null scalar", `null`, new(int), ErrFormat},
		{"null struct", `null`, new(point), ErrFormat},
		{"null array", `null`, new([2]int), ErrFormat},
		{"string into int", `"1"`, new(int), ErrFormat},
		{"fraction into int", `1.5`, new(int), ErrFormat},
		{"int8 overflow", `300`, new(int8), ErrFormat},
		{"negative uint", `-1`, new(uint), ErrFormat},
		{"float32 overflow", `1e300`, new(float32), ErrFormat},
		{"long char", `"ab"`, new(schema.Char), ErrFormat},
		{"empty char", `""`, new(schema.Char), ErrFormat},
		{"bad text", `"yesterday"`, new(time.Time), ErrFormat},
		{"array length", `[1,2]`, new([3]int), ErrFormat},
		{"bad key", `{"x":1}`, new(map[int]int), ErrFormat},
		{"list into object", `[1,2]`, new(point), ErrUnsupportedShape},
		{"object into list", `{"a":1}`, new([]int), ErrUnsupportedShape},
		{"list into map", `[1]`, new(map[string]int), ErrUnsupportedShape},
		{"object into set", `{}`, new(map[int]struct{}), ErrUnsupportedShape},
		{"failing init", `{"A":1}`, new(broken), ErrConstruction},
		{"unsupported field", `{}`, new(withFunc), ErrUnsupportedShape},
		{"unexported tagged field", `{}`, new(hidden), ErrAccess},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Unmarshal([]byte(test.data), test.target)
			assert.ErrorIs(t, err, test.expect)
		})
	}
}

func TestMarshalErrors(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		expect error
	}{
		{"nan", math.NaN(), ErrFormat},
		{"inf", math.Inf(1), ErrFormat},
		{"nested nan", map[string]float64{"x": math.Inf(-1)}, ErrFormat},
		{"invalid char", schema.Char(-1), ErrFormat},
		{"channel", make(chan int), ErrUnsupportedShape},
		{"func field", withFunc{}, ErrUnsupportedShape},
		{"interface", []any{1}, ErrUnsupportedShape},
		{"complex", complex(1, 2), ErrUnsupportedShape},
		{"unexported tagged field", hidden{}, ErrAccess},
		{"uint64 above int64", uint64(math.MaxInt64) + 1, ErrFormat},
		{"uint64 map key", map[uint64]int{math.MaxUint64: 1}, ErrFormat},
		{"shared key", sharedKey{1, 2}, ErrUnsupportedShape},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Marshal(test.value)
			assert.ErrorIs(t, err, test.expect)
		})
	}
}

func TestMarshalSchema(t *testing.T) {
	s := schema.MustFor[point]()

	data, err := MarshalSchema(point{X: 3, Y: 4}, s)
	require.NoError(t, err)
	assert.Equal(t, `{"X":3,"Y":4}`, string(data))

	_, err = MarshalSchema(address{}, s)
	assert.ErrorIs(t, err, ErrUnsupportedShape)
}

func TestDecode(t *testing.T) {
	n, err := Parse([]byte(`[[1,2],[3]]`))
	require.NoError(t, err)

	v, err := Decode(n, schema.MustFor[[][]int]())
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3}}, v.Interface())

	_, err = Decode(n, schema.MustFor[[]string]())
	assert.ErrorIs(t, err, ErrFormat)
}

func TestStreamInstance(t *testing.T) {
	stream, err := ParseStream[person]([]byte(`{"Name":"Eve","Age":40,"Tags":["a"]}`))
	require.NoError(t, err)

	p, err := stream.Instance()
	require.NoError(t, err)
	assert.Equal(t, person{Name: "Eve", Age: 40, Tags: []string{"a"}}, p)
}

func TestStreamCollection(t *testing.T) {
	stream, err := ParseStream[point]([]byte(`[{"X":1,"Y":2},{"X":3,"Y":4}]`))
	require.NoError(t, err)

	points, err := stream.Collection()
	require.NoError(t, err)
	assert.Equal(t, []point{{1, 2}, {3, 4}}, points)

	stream, err = ParseStream[point]([]byte(`{"X":1}`))
	require.NoError(t, err)

	_, err = stream.Collection()
	assert.ErrorIs(t, err, ErrUnsupportedShape)
}

func TestStreamMap(t *testing.T) {
	expect := map[string]point{"a": {1, 2}, "b": {3, 4}}
	data, err := Marshal(expect)
	require.NoError(t, err)

	stream, err := ParseStream[point](data)
	require.NoError(t, err)

	actual, err := StreamMap[string](stream)
	require.NoError(t, err)
	assert.Equal(t, expect, actual)
}

func TestStreamRelevantFields(t *testing.T) {
	stream, err := ParseStream[account]([]byte(`{"id":"x","created":5,"Note":null,"Password":"p"}`))
	require.NoError(t, err)

	fields, err := stream.RelevantFields("id", "created", "Note", "Password", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "x", "created": 5, "Note": nil}, fields)

	stream, err = ParseStream[account]([]byte(`{"id":"x"}`))
	require.NoError(t, err)

	fields, err = stream.RelevantFields("id", "created")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "x"}, fields)

	stream, err = ParseStream[account]([]byte(`{"id":1}`))
	require.NoError(t, err)

	_, err = stream.RelevantFields("id")
	assert.ErrorIs(t, err, ErrFormat)
}
