package schema

import (
	"github.com/spektr-org/perspective/engine"
)

// ============================================================================
// SCHEMA — Describes the fields of a dataset for intents and unique values
// ============================================================================
// Auto-discovered from rows (Discover) and optionally adjusted by the caller
// (Refine). Consumers use it to build unique-value requests, to pick sort
// key types, and to offer only the aggregators a field can feed.
// ============================================================================

// Config describes the discovered shape of a dataset.
type Config struct {
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Rows         int         `json:"rows"`
	Fields       []FieldMeta `json:"fields"`
	DiscoveredAt string      `json:"discoveredAt,omitempty"`
	RefinedAt    string      `json:"refinedAt,omitempty"`

	// Fields skipped during auto-discovery
	Skipped []SkippedField `json:"skipped,omitempty"`
}

// FieldMeta describes one dotted field path.
type FieldMeta struct {
	Key             string            `json:"key"`
	DisplayName     string            `json:"displayName"`
	Description     string            `json:"description,omitempty"`
	Type            engine.UniqueType `json:"type"`
	SampleValues    []string          `json:"sampleValues"`
	Groupable       bool              `json:"groupable"`
	Aggregations    []string          `json:"aggregations,omitempty"`
	CardinalityHint string            `json:"cardinalityHint,omitempty"` // "low", "medium", "high"
	UniqueCount     int               `json:"uniqueCount"`
	NullCount       int               `json:"nullCount"`
}

// SkippedField records why a field was excluded during auto-discovery.
type SkippedField struct {
	Field       string `json:"field"`
	Reason      string `json:"reason"`
	Recoverable bool   `json:"recoverable"` // Can be restored through Refine
}

// aggregationsFor lists the aggregators a field of type t can feed.
func aggregationsFor(t engine.UniqueType) []string {
	switch t {
	case engine.UniqueLong, engine.UniqueNumber:
		return []string{"sum", "min", "max", "ave", "count"}
	case engine.UniqueDuration:
		return []string{"sum:duration", "ave:duration", "min:duration", "max:duration", "count"}
	case engine.UniqueDate:
		return []string{"min:date", "max:date", "count"}
	}
	return []string{"count"}
}

// Field returns the metadata for key.
func (c Config) Field(key string) (FieldMeta, bool) {
	for _, f := range c.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// FieldKeys returns all field keys in discovery order.
func (c Config) FieldKeys() []string {
	keys := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		keys[i] = f.Key
	}
	return keys
}

// UniqueFields returns a unique-values request covering every groupable
// field, typed as discovered.
func (c Config) UniqueFields() []engine.UniqueField {
	out := make([]engine.UniqueField, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Groupable {
			out = append(out, engine.UniqueField{Field: f.Key, Type: f.Type})
		}
	}
	return out
}

// SortKey builds a sort key for field, declaring duration placement when the
// field holds ISO-8601 durations.
func (c Config) SortKey(field string, dir engine.Direction) engine.SortKey {
	key := engine.SortKey{Field: field, Direction: dir}
	if f, ok := c.Field(field); ok && f.Type == engine.UniqueDuration {
		key.Type = engine.KeyDuration
	}
	return key
}
