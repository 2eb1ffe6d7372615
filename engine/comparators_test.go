package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOperator(t *testing.T) {
	for alias, want := range map[string]Operator{
		">": OpGreater, "ge": OpGreaterEqual, "<": OpLess, "<=": OpLessEqual,
		"==": OpEqual, "=": OpEqual, "<>": OpNotEqual, "!=": OpNotEqual,
		"in": OpOneOf, "starts_with": OpStartsWith, "ENDSWITH": OpEndsWith,
	} {
		got, ok := ParseOperator(alias)
		assert.True(t, ok, alias)
		assert.Equal(t, want, got, alias)
	}
	_, ok := ParseOperator("contains-ish")
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	for _, tc := range []struct {
		name string
		op   Operator
		lhs  Value
		rhs  Value
		want bool
	}{
		{"eq int", OpEqual, Int(10), Int(10), true},
		{"eq int float", OpEqual, Int(10), Float(10.0), true},
		{"eq no coercion", OpEqual, Int(10), String("10"), false},
		{"ne same type", OpNotEqual, String("a"), String("b"), true},
		{"ne equal", OpNotEqual, Int(1), Int(1), false},
		{"ne mismatched types", OpNotEqual, Int(1), String("1"), false},
		{"ne null", OpNotEqual, Null(), Int(1), false},
		{"lt int", OpLess, Int(5), Int(20), true},
		{"lt mixed numeric", OpLess, Float(4.5), Int(5), true},
		{"lt strings", OpLess, String("001"), String("100"), true},
		{"lt bools", OpLess, Bool(false), Bool(true), true},
		{"lt mismatch", OpLess, String("5"), Int(20), false},
		{"lt null", OpLess, Null(), Int(20), false},
		{"ge equal", OpGreaterEqual, Int(20), Int(20), true},
		{"gt", OpGreater, Float(1.1), Float(1.0), true},
		{"le", OpLessEqual, Int(21), Int(20), false},
		{"like contains", OpLike, String("hello world"), String("lo w"), true},
		{"like prefix", OpLike, String("hello"), String("he%"), true},
		{"like prefix miss", OpLike, String("hello"), String("lo%"), false},
		{"like suffix", OpLike, String("hello"), String("%llo"), true},
		{"like both", OpLike, String("hello"), String("%ell%"), true},
		{"like non string", OpLike, Int(10), String("1"), false},
		{"not_like", OpNotLike, String("hello"), String("xyz"), true},
		{"not_like non string", OpNotLike, Int(1), String("x"), false},
		{"startswith", OpStartsWith, String("hello"), String("he"), true},
		{"endswith", OpEndsWith, String("hello"), String("he"), false},
		{"one_of hit", OpOneOf, Int(2), Array(Int(1), Int(2)), true},
		{"one_of miss", OpOneOf, Int(3), Array(Int(1), Int(2)), false},
		{"one_of scalar rhs", OpOneOf, Int(1), Int(1), false},
		{"between ints", OpBetween, Int(5), Array(Int(1), Int(10)), true},
		{"between inclusive", OpBetween, Int(10), Array(Int(1), Int(10)), true},
		{"between floats", OpBetween, Float(0.5), Array(Int(0), Int(1)), true},
		{"between strings", OpBetween, String("b"), Array(String("a"), String("c")), true},
		{"between outside", OpBetween, Int(11), Array(Int(1), Int(10)), false},
		{"between bad bounds", OpBetween, Int(5), Array(Int(1)), false},
		{"between mismatch", OpBetween, String("5"), Array(Int(1), Int(10)), false},
		{"is_null", OpIsNull, Null(), Null(), true},
		{"is_null value", OpIsNull, Int(0), Null(), false},
		{"not_null", OpNotNull, String(""), Null(), true},
		{"unknown", Operator("regex"), String("a"), String("a"), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(tc.op, tc.lhs, tc.rhs))
		})
	}
}

func TestCompareFold(t *testing.T) {
	assert.False(t, Compare(OpEqual, String("Alpha"), String("alpha")))
	assert.True(t, CompareFold(OpEqual, String("Alpha"), String("alpha")))
	assert.True(t, CompareFold(OpLike, String("Hello World"), String("WORLD")))

	// one_of and between ignore case the same way scalar equality does.
	assert.True(t, CompareFold(OpOneOf, String("Red"), Array(String("RED"), String("blue"))))
	assert.False(t, Compare(OpOneOf, String("Red"), Array(String("RED"), String("blue"))))
	assert.True(t, CompareFold(OpBetween, String("b"), Array(String("A"), String("C"))))
	assert.False(t, Compare(OpBetween, String("b"), Array(String("A"), String("C"))))

	// Non-strings are untouched.
	assert.True(t, CompareFold(OpOneOf, Int(1), Array(Int(1), String("X"))))
}
