package helpers

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/spektr-org/perspective/engine"
	"github.com/spektr-org/perspective/schema"
)

// ============================================================================
// YAML HELPER — Hand-written intents and fixtures
// ============================================================================
// YAML is the format people write intents in by hand. Decoding goes through
// yaml.Node so mapping order is still available when it matters (aggregate
// maps). Encoding re-reads the JSON form of a result as YAML, which keeps
// the key order chosen by each type's JSON encoder.
// ============================================================================

// DecodeRowsYAML decodes a YAML sequence of rows.
func DecodeRowsYAML(r io.Reader) ([]engine.Value, error) {
	var raw []any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding YAML rows")
	}
	return toRows(raw), nil
}

// DecodeIntentYAML validates and decodes a perspective intent.
func DecodeIntentYAML(data []byte) (engine.Value, error) {
	root, err := documentRoot(data)
	if err != nil {
		return engine.Null(), err
	}
	doc := map[string]any{}
	if root != nil {
		if err := root.Decode(&doc); err != nil {
			return engine.Null(), &engine.IntentError{Stage: "perspective", Reason: err.Error()}
		}
	}
	normalize(doc)
	if err := schema.ValidateIntent(doc); err != nil {
		return engine.Null(), err
	}
	for _, key := range aggregateKeys {
		if _, isObject := doc[key].(map[string]any); isObject {
			doc[key] = orderedAggregatesYAML(root, key)
		}
	}
	return engine.FromAny(doc), nil
}

// DecodeUniqueFieldsYAML validates and decodes a unique-values field list.
func DecodeUniqueFieldsYAML(data []byte) (engine.Value, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return engine.Null(), errors.Wrap(err, "decoding YAML unique fields")
	}
	doc = normalize(doc)
	if err := schema.ValidateUniqueFields(doc); err != nil {
		return engine.Null(), err
	}
	return engine.FromAny(doc), nil
}

// EncodeYAML writes v as block-style YAML.
func EncodeYAML(w io.Writer, v any) error {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding YAML")
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return errors.Wrap(err, "encoding YAML")
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return errors.Wrap(err, "encoding YAML")
	}
	return enc.Close()
}

// documentRoot returns the top mapping node, or nil for an empty document.
func documentRoot(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, &engine.IntentError{Stage: "perspective", Reason: err.Error()}
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return node.Content[0], nil
	}
	return &node, nil
}

func orderedAggregatesYAML(root *yaml.Node, key string) []any {
	var out []any
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != key {
			continue
		}
		entries := root.Content[i+1].Content
		for j := 0; j+1 < len(entries); j += 2 {
			out = append(out, map[string]any{"agg": entries[j].Value, "field": entries[j+1].Value})
		}
	}
	return out
}

// blockStyle clears flow and quoting styles so the encoder picks block
// layout and quotes only where a plain scalar would change type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
