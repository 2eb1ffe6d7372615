package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/perspective/engine"
)

func TestValidateIntentJSON(t *testing.T) {
	valid := []string{
		`{}`,
		`{"filter": [{"field": "value", "operator": "<", "value": 20}]}`,
		`{"filter": {"operator": "or", "expressions": [
			{"field": "code", "operator": "==", "value": "A"},
			{"operator": "not", "expressions": [{"field": "isActive", "operator": "==", "value": true}]}
		]}}`,
		`{"sort": ["code", {"name": "wait", "type": "duration", "direction": "desc"}]}`,
		`{"group": ["status", "meta.grade"], "aggregates": {"sum": "value", "count": "status"}}`,
		`{"aggregate": [{"agg": "min:date", "field": "created"}], "case_sensitive": true}`,
		`{"fuzzy_filter": {"exclude": ["id"], "value": "ali"}}`,
		`{"filter": null, "sort": null}`,
	}
	for _, doc := range valid {
		assert.NoError(t, ValidateIntentJSON([]byte(doc)), doc)
	}

	invalid := map[string]string{
		"not an object":         `[1, 2]`,
		"leaf without field":    `{"filter": [{"operator": "==", "value": 1}]}`,
		"missing operator":      `{"filter": [{"field": "a", "value": 1}]}`,
		"sort key without name": `{"sort": [{"direction": "asc"}]}`,
		"group not strings":     `{"group": [1]}`,
		"aggregate entry":       `{"aggregates": [{"agg": "sum"}]}`,
		"case_sensitive":        `{"case_sensitive": "yes"}`,
		"fuzzy without value":   `{"fuzzy_filter": {"fields": ["a"]}}`,
	}
	for name, doc := range invalid {
		t.Run(name, func(t *testing.T) {
			err := ValidateIntentJSON([]byte(doc))
			require.Error(t, err)
			assert.True(t, engine.IsMalformedIntent(err))
			var ie *engine.IntentError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, "perspective", ie.Stage)
		})
	}

	err := ValidateIntentJSON([]byte(`{"filter": [`))
	assert.True(t, engine.IsMalformedIntent(err))
}

func TestValidateIntentDecoded(t *testing.T) {
	doc := map[string]any{
		"filter": []any{map[string]any{"field": "qty", "operator": ">", "value": 3}},
		"sort":   []any{"qty"},
	}
	assert.NoError(t, ValidateIntent(doc))

	doc["group"] = "status"
	assert.True(t, engine.IsMalformedIntent(ValidateIntent(doc)))
}

func TestValidateUniqueFields(t *testing.T) {
	assert.NoError(t, ValidateUniqueFields([]any{"name", map[string]any{"name": "qty", "type": "long"}}))

	err := ValidateUniqueFields([]any{map[string]any{"name": "qty", "type": "decimal"}})
	var ie *engine.IntentError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "unique", ie.Stage)

	assert.Error(t, ValidateUniqueFields(map[string]any{"name": "qty"}))
}
