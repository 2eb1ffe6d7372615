package engine

import (
	"strings"

	"github.com/pkg/errors"
)

// ============================================================================
// INTENT — decoding Value documents into typed stage intents
// ============================================================================
// Shapes:
//
//	filter:       [leaf, ...]                       implicit AND (legacy)
//	              {"operator": "and", "expressions": [...]}
//	leaf:         {"field": "a.b", "operator": "<", "value": 20}
//	fuzzy_filter: {"fields": [...], "exclude": [...], "value": "abc"}
//	sort:         [{"name": "code", "direction": "desc", "type": "duration"}]
//	group:        ["value", "isActive"]
//	aggregates:   {"min": "value"} or [{"agg": "min", "field": "value"}]
//
// A missing required key is a MalformedIntent. An unknown leaf operator is
// not: that leaf evaluates false.
// ============================================================================

// Intent is a full perspective request. Nil/empty stages are skipped.
type Intent struct {
	Filter        Expression
	Fuzzy         *FuzzyFilter
	CaseSensitive *bool // nil defers to WithCaseSensitive
	Sort          []SortKey
	Group         []string
	Aggregates    AggregateIntent
}

// ParseIntent decodes a perspective intent object.
func ParseIntent(v Value, opts ...Option) (Intent, error) {
	cfg := applyOptions(opts)
	var in Intent
	obj, ok := v.AsObject()
	if !ok {
		return in, intentErr("perspective", "", "intent must be an object")
	}
	var err error
	if f, ok := present(obj, "filter"); ok {
		if in.Filter, err = parseFilter(f, cfg.MaxDepth); err != nil {
			return in, err
		}
	}
	if f, ok := present(obj, "fuzzy_filter"); ok {
		if in.Fuzzy, err = ParseFuzzyFilter(f); err != nil {
			return in, err
		}
	}
	if cs, ok := present(obj, "case_sensitive"); ok {
		b, isBool := cs.AsBool()
		if !isBool {
			return in, intentErr("perspective", "case_sensitive", "must be a boolean")
		}
		in.CaseSensitive = &b
	}
	if s, ok := present(obj, "sort"); ok {
		if in.Sort, err = ParseSortKeys(s); err != nil {
			return in, err
		}
	}
	if g, ok := present(obj, "group"); ok {
		if in.Group, err = ParseGroupFields(g); err != nil {
			return in, err
		}
	}
	agg, ok := present(obj, "aggregates")
	if !ok {
		agg, ok = present(obj, "aggregate")
	}
	if ok {
		if in.Aggregates, err = ParseAggregateIntent(agg); err != nil {
			return in, err
		}
	}
	return in, nil
}

// present returns obj[key] unless it is missing or null.
func present(obj map[string]Value, key string) (Value, bool) {
	v, ok := obj[key]
	if !ok || v.IsNull() {
		return Null(), false
	}
	return v, true
}

// ----------------------------------------------------------------------------
// filter

// ParseFilter decodes a filter: an array of expressions (implicit AND) or a
// single expression object.
func ParseFilter(v Value, opts ...Option) (Expression, error) {
	return parseFilter(v, applyOptions(opts).MaxDepth)
}

func parseFilter(v Value, limit int) (Expression, error) {
	if items, ok := v.AsArray(); ok {
		children, err := parseExpressions(items, 2, limit)
		if err != nil {
			return nil, err
		}
		return &And{Children: children}, nil
	}
	return parseExpression(v, 1, limit)
}

func parseExpressions(items []Value, depth, limit int) ([]Expression, error) {
	out := make([]Expression, len(items))
	for i, item := range items {
		e, err := parseExpression(item, depth, limit)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func parseExpression(v Value, depth, limit int) (Expression, error) {
	if depth > limit {
		return nil, errors.Wrapf(ErrMaxDepth, "filter nesting limit %d", limit)
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, intentErr("filter", "", "expression must be an object")
	}
	opVal, ok := present(obj, "operator")
	if !ok {
		return nil, intentErr("filter", "operator", "required")
	}
	op, ok := opVal.AsString()
	if !ok {
		return nil, intentErr("filter", "operator", "must be a string")
	}

	if exprs, ok := obj["expressions"]; ok {
		items, ok := exprs.AsArray()
		if !ok {
			return nil, intentErr("filter", "expressions", "must be an array")
		}
		children, err := parseExpressions(items, depth+1, limit)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(op)) {
		case "and", "&&":
			return &And{Children: children}, nil
		case "or", "||":
			return &Or{Children: children}, nil
		case "not", "!":
			return &Not{Children: children}, nil
		}
		return nil, intentErr("filter", "operator", "unknown logical operator "+op)
	}

	fieldVal, ok := present(obj, "field")
	if !ok {
		return nil, intentErr("filter", "field", "required")
	}
	field, ok := fieldVal.AsString()
	if !ok || field == "" {
		return nil, intentErr("filter", "field", "must be a non-empty string")
	}
	return NewLeaf(field, op, obj["value"]), nil
}

// ParseFuzzyFilter decodes {fields|include, exclude, value}.
func ParseFuzzyFilter(v Value) (*FuzzyFilter, error) {
	obj, ok := v.AsObject()
	if !ok {
		return nil, intentErr("fuzzy_filter", "", "must be an object")
	}
	val, ok := present(obj, "value")
	if !ok || !isScalar(val) {
		return nil, intentErr("fuzzy_filter", "value", "required scalar")
	}
	f := &FuzzyFilter{Value: val.String()}
	var err error
	for _, key := range []string{"fields", "include"} {
		if list, ok := present(obj, key); ok && len(f.Fields) == 0 {
			if f.Fields, err = stringList("fuzzy_filter", key, list); err != nil {
				return nil, err
			}
		}
	}
	if list, ok := present(obj, "exclude"); ok {
		if f.Exclude, err = stringList("fuzzy_filter", "exclude", list); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func stringList(stage, key string, v Value) ([]string, error) {
	items, ok := v.AsArray()
	if !ok {
		return nil, intentErr(stage, key, "must be an array of strings")
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.AsString()
		if !ok {
			return nil, intentErr(stage, key, "must be an array of strings")
		}
		out[i] = s
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// sort, group

// ParseSortKeys decodes an array of sort keys. A bare string sorts ascending.
func ParseSortKeys(v Value) ([]SortKey, error) {
	items, ok := v.AsArray()
	if !ok {
		return nil, intentErr("sort", "", "must be an array")
	}
	keys := make([]SortKey, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok && s != "" {
			keys = append(keys, SortKey{Field: s})
			continue
		}
		obj, ok := item.AsObject()
		if !ok {
			return nil, intentErr("sort", "", "key must be a string or an object")
		}
		name, _ := firstString(obj, "name", "field")
		if name == "" {
			return nil, intentErr("sort", "name", "required")
		}
		key := SortKey{Field: name}
		if dir, ok := firstString(obj, "direction"); ok {
			switch strings.ToLower(dir) {
			case "", "asc", "ascending":
			case "desc", "dec", "descending":
				key.Direction = Descending
			default:
				return nil, intentErr("sort", "direction", "unknown direction "+dir)
			}
		}
		if t, ok := firstString(obj, "type"); ok && strings.EqualFold(t, string(KeyDuration)) {
			key.Type = KeyDuration
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func firstString(obj map[string]Value, names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := obj[n]; ok {
			if s, ok := v.AsString(); ok {
				return s, true
			}
		}
	}
	return "", false
}

// ParseGroupFields decodes the list of group fields.
func ParseGroupFields(v Value) ([]string, error) {
	fields, err := stringList("group", "", v)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f == "" {
			return nil, intentErr("group", "", "field names must be non-empty")
		}
	}
	return fields, nil
}

// ----------------------------------------------------------------------------
// aggregates, unique

// ParseAggregateIntent decodes an aggregate map or list. Map keys are read in
// sorted order since a Value object has none of its own; decoders that keep
// document order rewrite maps into the list form.
func ParseAggregateIntent(v Value) (AggregateIntent, error) {
	if obj, ok := v.AsObject(); ok {
		intent := make(AggregateIntent, 0, len(obj))
		for _, name := range v.Keys() {
			spec, err := aggregateSpec(name, obj[name])
			if err != nil {
				return nil, err
			}
			intent = append(intent, spec)
		}
		return intent, nil
	}
	items, ok := v.AsArray()
	if !ok {
		return nil, intentErr("aggregates", "", "must be an object or an array")
	}
	intent := make(AggregateIntent, 0, len(items))
	for _, item := range items {
		obj, ok := item.AsObject()
		if !ok {
			return nil, intentErr("aggregates", "", "entry must be an object")
		}
		name, ok := firstString(obj, "agg")
		if !ok {
			return nil, intentErr("aggregates", "agg", "required")
		}
		spec, err := aggregateSpec(name, obj["field"])
		if err != nil {
			return nil, err
		}
		intent = append(intent, spec)
	}
	return intent, nil
}

func aggregateSpec(name string, field Value) (AggregateSpec, error) {
	kind, ok := ParseAggregateKind(name)
	if !ok {
		return AggregateSpec{}, intentErr("aggregates", name, "unknown aggregator")
	}
	f, ok := field.AsString()
	if !ok || f == "" {
		return AggregateSpec{}, intentErr("aggregates", name, "field must be a non-empty string")
	}
	return AggregateSpec{Kind: kind, Field: f}, nil
}

// ParseUniqueFields decodes [{"name": "a", "type": "long"}, "b", ...].
func ParseUniqueFields(v Value) ([]UniqueField, error) {
	items, ok := v.AsArray()
	if !ok {
		return nil, intentErr("unique", "", "must be an array")
	}
	out := make([]UniqueField, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok && s != "" {
			out = append(out, UniqueField{Field: s, Type: UniqueString})
			continue
		}
		obj, ok := item.AsObject()
		if !ok {
			return nil, intentErr("unique", "", "field must be a string or an object")
		}
		name, _ := firstString(obj, "name", "field")
		if name == "" {
			return nil, intentErr("unique", "name", "required")
		}
		typ, _ := firstString(obj, "type")
		t, ok := ParseUniqueType(typ)
		if !ok {
			return nil, intentErr("unique", "type", "unknown type "+typ)
		}
		out = append(out, UniqueField{Field: name, Type: t})
	}
	return out, nil
}
