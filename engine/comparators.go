package engine

import (
	"strings"

	"golang.org/x/text/cases"
)

// ============================================================================
// COMPARATORS — Type-directed binary predicates
// ============================================================================
// Every comparator is pure and fail-closed: operands of kinds it cannot
// compare yield false. There is no cross-type coercion except within the
// numeric family (int, float).
// ============================================================================

// Operator is the canonical name of a leaf comparison.
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "ne"
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "ge"
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "le"
	OpLike         Operator = "like"
	OpNotLike      Operator = "not_like"
	OpStartsWith   Operator = "startswith"
	OpEndsWith     Operator = "endswith"
	OpOneOf        Operator = "one_of"
	OpBetween      Operator = "between"
	OpIsNull       Operator = "is_null"
	OpNotNull      Operator = "not_null"
)

var operatorAliases = map[string]Operator{
	">":           OpGreater,
	"gt":          OpGreater,
	">=":          OpGreaterEqual,
	"ge":          OpGreaterEqual,
	"<":           OpLess,
	"lt":          OpLess,
	"<=":          OpLessEqual,
	"le":          OpLessEqual,
	"==":          OpEqual,
	"=":           OpEqual,
	"eq":          OpEqual,
	"!=":          OpNotEqual,
	"<>":          OpNotEqual,
	"ne":          OpNotEqual,
	"like":        OpLike,
	"not_like":    OpNotLike,
	"startswith":  OpStartsWith,
	"starts_with": OpStartsWith,
	"endswith":    OpEndsWith,
	"ends_with":   OpEndsWith,
	"in":          OpOneOf,
	"one_of":      OpOneOf,
	"between":     OpBetween,
	"is_null":     OpIsNull,
	"not_null":    OpNotNull,
}

// ParseOperator maps an operator literal or alias to its canonical form.
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// Comparator is a binary predicate over two values.
type Comparator func(lhs, rhs Value) bool

var comparators = map[Operator]Comparator{
	OpEqual:        equal,
	OpNotEqual:     notEqual,
	OpGreater:      ordered(func(c int) bool { return c > 0 }),
	OpGreaterEqual: ordered(func(c int) bool { return c >= 0 }),
	OpLess:         ordered(func(c int) bool { return c < 0 }),
	OpLessEqual:    ordered(func(c int) bool { return c <= 0 }),
	OpLike:         like,
	OpNotLike:      notLike,
	OpStartsWith:   stringPredicate(strings.HasPrefix),
	OpEndsWith:     stringPredicate(strings.HasSuffix),
	OpOneOf:        oneOf,
	OpBetween:      between,
	OpIsNull:       func(lhs, _ Value) bool { return lhs.IsNull() },
	OpNotNull:      func(lhs, _ Value) bool { return !lhs.IsNull() },
}

// Compare applies op to the operands. Unknown operators are false.
func Compare(op Operator, lhs, rhs Value) bool {
	cmp, ok := comparators[op]
	if !ok {
		return false
	}
	return cmp(lhs, rhs)
}

// CompareFold is Compare with string operands case-folded first. String
// elements of an array rhs are folded as well, so one_of and between ignore
// case the same way scalar equality does.
func CompareFold(op Operator, lhs, rhs Value) bool {
	f := newFolder()
	return Compare(op, f.value(lhs), f.value(rhs))
}

// ----------------------------------------------------------------------------

func equal(lhs, rhs Value) bool { return lhs.Equal(rhs) }

// notEqual is true only for two values of one comparable family that differ.
func notEqual(lhs, rhs Value) bool {
	if !sameFamily(lhs, rhs) {
		return false
	}
	return !lhs.Equal(rhs)
}

func ordered(accept func(int) bool) Comparator {
	return func(lhs, rhs Value) bool {
		c, ok := order(lhs, rhs)
		return ok && accept(c)
	}
}

func stringPredicate(fn func(s, affix string) bool) Comparator {
	return func(lhs, rhs Value) bool {
		s, ok := lhs.AsString()
		if !ok {
			return false
		}
		pattern, ok := rhs.AsString()
		if !ok {
			return false
		}
		return fn(s, pattern)
	}
}

// like matches with SQL-style % anchors: "%x%" contains, "x%" prefix,
// "%x" suffix. A pattern without % is a substring match.
func like(lhs, rhs Value) bool {
	s, ok := lhs.AsString()
	if !ok {
		return false
	}
	pattern, ok := rhs.AsString()
	if !ok {
		return false
	}
	lead := strings.HasPrefix(pattern, "%")
	trail := len(pattern) > 1 && strings.HasSuffix(pattern, "%")
	core := strings.TrimSuffix(strings.TrimPrefix(pattern, "%"), "%")
	switch {
	case lead && !trail:
		return strings.HasSuffix(s, core)
	case trail && !lead:
		return strings.HasPrefix(s, core)
	default:
		return strings.Contains(s, core)
	}
}

func notLike(lhs, rhs Value) bool {
	if lhs.Kind() != KindString || rhs.Kind() != KindString {
		return false
	}
	return !like(lhs, rhs)
}

func oneOf(lhs, rhs Value) bool {
	items, ok := rhs.AsArray()
	if !ok {
		return false
	}
	for _, item := range items {
		if lhs.Equal(item) {
			return true
		}
	}
	return false
}

// between is inclusive on both bounds, which must be ordered against lhs.
func between(lhs, rhs Value) bool {
	bounds, ok := rhs.AsArray()
	if !ok || len(bounds) != 2 {
		return false
	}
	lo, ok := order(bounds[0], lhs)
	if !ok || lo > 0 {
		return false
	}
	hi, ok := order(lhs, bounds[1])
	return ok && hi <= 0
}

// ----------------------------------------------------------------------------

// order compares two mutually ordered values: numbers, strings, booleans
// (false < true). The bool is false for any other pairing.
func order(a, b Value) (int, bool) {
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		return cmp3(a.i < b.i, a.i > b.i), true
	case a.IsNumeric() && b.IsNumeric():
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		return cmp3(x < y, x > y), true
	case a.kind == KindString && b.kind == KindString:
		return strings.Compare(a.s, b.s), true
	case a.kind == KindBool && b.kind == KindBool:
		return cmp3(!a.b && b.b, a.b && !b.b), true
	}
	return 0, false
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func sameFamily(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a.kind == b.kind && a.kind != KindNull
}

// folder lower-cases strings for case-insensitive comparison. A Caser keeps
// state, so each evaluation owns one.
type folder struct {
	caser cases.Caser
}

func newFolder() *folder {
	return &folder{caser: cases.Fold()}
}

func (f *folder) string(s string) string { return f.caser.String(s) }

func (f *folder) value(v Value) Value {
	switch v.kind {
	case KindString:
		return String(f.string(v.s))
	case KindArray:
		folded := make([]Value, len(v.arr))
		for i, item := range v.arr {
			if item.kind == KindString {
				item = String(f.string(item.s))
			}
			folded[i] = item
		}
		return Array(folded...)
	}
	return v
}
