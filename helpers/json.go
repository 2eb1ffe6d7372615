package helpers

import (
	"encoding/json"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/spektr-org/perspective/engine"
	"github.com/spektr-org/perspective/schema"
)

// ============================================================================
// JSON HELPER — Decodes rows and intents into engine Values
// ============================================================================
// Consumer reads the payload from wherever it lives (file, HTTP body, queue).
// This helper converts the raw bytes into Values. Integers stay exact:
// numbers are decoded as literals and only fall back to float64 when they
// are not integral.
// ============================================================================

var jsonAPI = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// DecodeRowsJSON decodes a JSON array of rows.
func DecodeRowsJSON(r io.Reader) ([]engine.Value, error) {
	var raw []any
	if err := jsonAPI.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding JSON rows")
	}
	return toRows(raw), nil
}

// DecodeJSON decodes any JSON document into a Value.
func DecodeJSON(data []byte) (engine.Value, error) {
	var raw any
	if err := jsonAPI.Unmarshal(data, &raw); err != nil {
		return engine.Null(), errors.Wrap(err, "decoding JSON")
	}
	return engine.FromAny(normalize(raw)), nil
}

// UnmarshalJSON decodes data into a typed target such as schema.Overrides.
func UnmarshalJSON(data []byte, v any) error {
	return errors.Wrap(jsonAPI.Unmarshal(data, v), "decoding JSON")
}

// DecodeIntentJSON validates and decodes a perspective intent. Aggregate
// objects are rewritten into the list form so their key order survives.
func DecodeIntentJSON(data []byte) (engine.Value, error) {
	if err := schema.ValidateIntentJSON(data); err != nil {
		return engine.Null(), err
	}
	var doc map[string]any
	if err := jsonAPI.Unmarshal(data, &doc); err != nil {
		return engine.Null(), errors.Wrap(err, "decoding JSON intent")
	}
	for _, key := range aggregateKeys {
		if _, isObject := doc[key].(map[string]any); !isObject {
			continue
		}
		ordered, err := orderedAggregatesJSON(data, key)
		if err != nil {
			return engine.Null(), err
		}
		doc[key] = ordered
	}
	return engine.FromAny(normalize(doc)), nil
}

// DecodeUniqueFieldsJSON validates and decodes a unique-values field list.
func DecodeUniqueFieldsJSON(data []byte) (engine.Value, error) {
	var doc any
	if err := jsonAPI.Unmarshal(data, &doc); err != nil {
		return engine.Null(), errors.Wrap(err, "decoding JSON unique fields")
	}
	if err := schema.ValidateUniqueFields(doc); err != nil {
		return engine.Null(), err
	}
	return engine.FromAny(normalize(doc)), nil
}

// orderedAggregatesJSON walks the top-level object of data and returns the
// entries of key as [{agg, field}] in document order.
func orderedAggregatesJSON(data []byte, key string) ([]any, error) {
	iter := jsonAPI.BorrowIterator(data)
	defer jsonAPI.ReturnIterator(iter)

	var out []any
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		if field != key {
			it.Skip()
			return true
		}
		it.ReadObjectCB(func(it *jsoniter.Iterator, agg string) bool {
			out = append(out, map[string]any{"agg": agg, "field": it.ReadString()})
			return true
		})
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, errors.Wrapf(iter.Error, "reading %s", key)
	}
	return out, nil
}

// EncodeJSON writes v as JSON, indented when pretty is set.
func EncodeJSON(w io.Writer, v any, pretty bool) error {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = jsonAPI.MarshalIndent(v, "", "  ")
	} else {
		b, err = jsonAPI.Marshal(v)
	}
	if err != nil {
		return errors.Wrap(err, "encoding JSON")
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

var aggregateKeys = []string{"aggregates", "aggregate"}

func toRows(raw []any) []engine.Value {
	rows := make([]engine.Value, len(raw))
	for i, r := range raw {
		rows[i] = engine.FromAny(normalize(r))
	}
	return rows
}

// normalize rewrites map[any]any (non-string YAML keys) into map[string]any
// and number literals into json.Number.
func normalize(x any) any {
	switch t := x.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[keyString(k)] = normalize(v)
		}
		return out
	case map[string]any:
		for k, v := range t {
			t[k] = normalize(v)
		}
		return t
	case []any:
		for i, v := range t {
			t[i] = normalize(v)
		}
		return t
	case jsoniter.Number:
		return json.Number(t)
	}
	return x
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return engine.FromAny(k).String()
}
