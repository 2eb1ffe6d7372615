package schema

import (
	"time"

	"github.com/pkg/errors"

	"github.com/spektr-org/perspective/engine"
)

// ============================================================================
// REFINE — Caller corrections applied to a discovered schema
// ============================================================================
//
// Discovery is heuristic. Refine lets the consumer fix what it got wrong
// (a numeric code that should group as a string, a duration column stored
// with a custom prefix, a skipped column that is actually useful) without
// re-running discovery. The draft is never mutated.
//
// Rules:
//   - Overrides cannot rename keys or add fields that were never seen
//   - A type override recomputes the aggregators the field offers
//   - Recover restores a skipped field only when it is marked recoverable
// ============================================================================

// FieldOverride replaces selected properties of one field. Zero values are
// left alone.
type FieldOverride struct {
	Key         string            `json:"key" yaml:"key"`
	DisplayName string            `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Type        engine.UniqueType `json:"type,omitempty" yaml:"type,omitempty"`
	Groupable   *bool             `json:"groupable,omitempty" yaml:"groupable,omitempty"`
}

// Overrides collects every correction for one dataset.
type Overrides struct {
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldOverride `json:"fields,omitempty" yaml:"fields,omitempty"`
	Recover     []string        `json:"recover,omitempty" yaml:"recover,omitempty"`
}

// Refine returns a copy of draft with o applied.
func Refine(draft *Config, o Overrides) (*Config, error) {
	if draft == nil {
		return nil, errors.New("draft schema is nil")
	}
	result := deepCopyConfig(draft)

	if o.Name != "" {
		result.Name = o.Name
	}
	if o.Description != "" {
		result.Description = o.Description
	}

	// 1. Recover skipped fields first so overrides can target them
	for _, key := range o.Recover {
		if err := result.recover(key); err != nil {
			return nil, err
		}
	}

	// 2. Field overrides
	for _, fo := range o.Fields {
		idx := -1
		for i := range result.Fields {
			if result.Fields[i].Key == fo.Key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errors.Errorf("override for unknown field %q", fo.Key)
		}
		f := &result.Fields[idx]
		if fo.DisplayName != "" {
			f.DisplayName = fo.DisplayName
		}
		if fo.Description != "" {
			f.Description = fo.Description
		}
		if fo.Type != "" {
			t, ok := engine.ParseUniqueType(string(fo.Type))
			if !ok {
				return nil, errors.Errorf("field %q: unknown type %q", fo.Key, fo.Type)
			}
			f.Type = t
			f.Aggregations = aggregationsFor(t)
		}
		if fo.Groupable != nil {
			f.Groupable = *fo.Groupable
		}
	}

	result.RefinedAt = time.Now().UTC().Format(time.RFC3339)
	return result, nil
}

func (c *Config) recover(key string) error {
	for i, s := range c.Skipped {
		if s.Field != key {
			continue
		}
		if !s.Recoverable {
			return errors.Errorf("field %q cannot be recovered: %s", key, s.Reason)
		}
		c.Skipped = append(c.Skipped[:i], c.Skipped[i+1:]...)
		c.Fields = append(c.Fields, FieldMeta{
			Key:          key,
			DisplayName:  toDisplayName(key),
			Type:         engine.UniqueString,
			SampleValues: []string{},
			Groupable:    true,
			Aggregations: aggregationsFor(engine.UniqueString),
		})
		return nil
	}
	return errors.Errorf("field %q was not skipped", key)
}

// ============================================================================
// HELPERS
// ============================================================================

func deepCopyConfig(src *Config) *Config {
	dst := &Config{
		Name:         src.Name,
		Description:  src.Description,
		Rows:         src.Rows,
		DiscoveredAt: src.DiscoveredAt,
		RefinedAt:    src.RefinedAt,
	}

	// Deep copy fields
	dst.Fields = make([]FieldMeta, len(src.Fields))
	for i, f := range src.Fields {
		dst.Fields[i] = f
		dst.Fields[i].SampleValues = append([]string(nil), f.SampleValues...)
		dst.Fields[i].Aggregations = append([]string(nil), f.Aggregations...)
	}

	// Deep copy skipped fields
	dst.Skipped = make([]SkippedField, len(src.Skipped))
	copy(dst.Skipped, src.Skipped)

	return dst
}
