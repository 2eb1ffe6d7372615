package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/perspective/engine"
)

func draftConfig() *Config {
	return &Config{
		Name: "Auto-discovered Dataset",
		Rows: 3,
		Fields: []FieldMeta{
			{Key: "code", DisplayName: "Code", Type: engine.UniqueLong, Groupable: true,
				Aggregations: aggregationsFor(engine.UniqueLong), SampleValues: []string{"1", "2"}},
			{Key: "wait", DisplayName: "Wait", Type: engine.UniqueString, Groupable: true,
				Aggregations: aggregationsFor(engine.UniqueString)},
		},
		Skipped: []SkippedField{
			{Field: "meta.deep", Reason: "Nested deeper than one level", Recoverable: true},
			{Field: "notes", Reason: "All values are empty/null"},
		},
	}
}

func TestRefine(t *testing.T) {
	draft := draftConfig()
	no := false
	got, err := Refine(draft, Overrides{
		Name:    "tickets",
		Recover: []string{"meta.deep"},
		Fields: []FieldOverride{
			{Key: "code", Type: engine.UniqueString, Groupable: &no},
			{Key: "wait", Type: "duration", DisplayName: "Waiting time"},
			{Key: "meta.deep", Description: "raw payload"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "tickets", got.Name)
	assert.NotEmpty(t, got.RefinedAt)

	code, _ := got.Field("code")
	assert.Equal(t, engine.UniqueString, code.Type)
	assert.False(t, code.Groupable)
	assert.Equal(t, []string{"count"}, code.Aggregations)

	wait, _ := got.Field("wait")
	assert.Equal(t, engine.UniqueDuration, wait.Type)
	assert.Equal(t, "Waiting time", wait.DisplayName)
	assert.Contains(t, wait.Aggregations, "max:duration")

	deep, ok := got.Field("meta.deep")
	require.True(t, ok)
	assert.Equal(t, "raw payload", deep.Description)
	assert.Len(t, got.Skipped, 1)

	// The draft is untouched.
	assert.Equal(t, "Auto-discovered Dataset", draft.Name)
	orig, _ := draft.Field("code")
	assert.Equal(t, engine.UniqueLong, orig.Type)
	assert.Len(t, draft.Skipped, 2)
	assert.Empty(t, draft.RefinedAt)
}

func TestRefineErrors(t *testing.T) {
	_, err := Refine(nil, Overrides{})
	assert.Error(t, err)

	for name, o := range map[string]Overrides{
		"unknown field":   {Fields: []FieldOverride{{Key: "nope", DisplayName: "x"}}},
		"unknown type":    {Fields: []FieldOverride{{Key: "code", Type: "decimal"}}},
		"not recoverable": {Recover: []string{"notes"}},
		"never skipped":   {Recover: []string{"code"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Refine(draftConfig(), o)
			assert.Error(t, err)
		})
	}
}
