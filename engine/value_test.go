package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	row := obj(
		"name", "ada",
		"person", map[string]any{
			"address": map[string]any{"city": "London"},
			"tags":    []any{"x", "y"},
		},
		"nothing", nil,
	)

	for _, tc := range []struct {
		path string
		want Value
	}{
		{"name", String("ada")},
		{"person.address.city", String("London")},
		{"person.tags.1", String("y")},
		{"person.tags.7", Null()},
		{"person.missing.city", Null()},
		{"name.deeper", Null()},
		{"nothing", Null()},
		{"", Null()},
	} {
		t.Run(tc.path, func(t *testing.T) {
			assert.True(t, tc.want.Equal(Resolve(row, tc.path)), "got %v", Resolve(row, tc.path))
		})
	}

	_, ok := ParsePath("nothing").Lookup(row)
	assert.True(t, ok, "present null is found")
	_, ok = ParsePath("absent").Lookup(row)
	assert.False(t, ok)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(10).Equal(Float(10)))
	assert.False(t, Int(10).Equal(String("10")))
	assert.False(t, Bool(true).Equal(Int(1)))
	assert.True(t, Null().Equal(Null()))
	assert.True(t, Array(Int(1), String("a")).Equal(Array(Float(1), String("a"))))
	assert.False(t, obj("a", 1).Equal(obj("a", 1, "b", 2)))

	// Integers beyond 2^53 stay exact.
	big := int64(1)<<60 + 1
	assert.False(t, Int(big).Equal(Int(big-1)))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "10", Int(10).String())
	assert.Equal(t, "1.5", Float(1.5).String())
	assert.Equal(t, "20", Float(20).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, `[1,"a"]`, Array(Int(1), String("a")).String())
}

func TestFromAnyJSONNumber(t *testing.T) {
	var decoded any
	dec := json.NewDecoder(strings.NewReader(`{"n": 9007199254740993, "f": 1.25}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&decoded))

	v := FromAny(decoded)
	n, ok := Resolve(v, "n").AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), n)
	assert.Equal(t, KindFloat, Resolve(v, "f").Kind())
}

func TestValueMarshalJSON(t *testing.T) {
	b, err := json.Marshal(obj("a", 1, "b", []any{true, nil}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":[true,null]}`, string(b))
}
