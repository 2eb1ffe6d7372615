package schema

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/perspective/engine"
)

// ============================================================================
// DISCOVERY TESTS
// ============================================================================

// ticketRows is a small issue-tracker export.
func ticketRows() *engine.SliceView {
	statuses := []string{"Done", "To Do", "In Progress"}
	rows := make([]engine.Value, 0, 12)
	for i := 0; i < 12; i++ {
		row := map[string]any{
			"key":       fmt.Sprintf("PROJ-%03d", 100+i),
			"status":    statuses[i%3],
			"points":    []int{1, 2, 3, 5, 8}[i%5],
			"hours":     float64(i) + 0.5,
			"blocked":   i%4 == 0,
			"elapsed":   []string{"PT1H", "P1D", "PT30M", "P2DT4H"}[i%4],
			"created":   fmt.Sprintf("2026-01-%02d", i+1),
			"labels":    []any{"ui"},
			"assignee":  map[string]any{"name": []string{"alice", "bob"}[i%2], "team": "core"},
			"notes":     nil,
			"sprintRef": "Sprint 17",
		}
		if i == 3 {
			row["points"] = nil
		}
		rows = append(rows, engine.FromAny(row))
	}
	return engine.NewSliceView(rows)
}

func TestDiscoverTypes(t *testing.T) {
	config, err := Discover(ticketRows())
	require.NoError(t, err)
	assert.Equal(t, 12, config.Rows)
	assert.Equal(t, "Auto-discovered Dataset", config.Name)
	assert.NotEmpty(t, config.DiscoveredAt)

	want := map[string]engine.UniqueType{
		"key":           engine.UniqueString,
		"status":        engine.UniqueString,
		"points":        engine.UniqueLong,
		"hours":         engine.UniqueNumber,
		"blocked":       engine.UniqueBoolean,
		"elapsed":       engine.UniqueDuration,
		"created":       engine.UniqueDate,
		"assignee.name": engine.UniqueString,
		"assignee.team": engine.UniqueString,
		"sprintRef":     engine.UniqueString,
	}
	for key, typ := range want {
		f, ok := config.Field(key)
		require.True(t, ok, key)
		assert.Equal(t, typ, f.Type, key)
	}
	assert.Len(t, config.Fields, len(want))
}

func TestDiscoverSkipped(t *testing.T) {
	config, err := Discover(ticketRows())
	require.NoError(t, err)

	reasons := map[string]SkippedField{}
	for _, s := range config.Skipped {
		reasons[s.Field] = s
	}
	require.Contains(t, reasons, "labels")
	require.Contains(t, reasons, "notes")
	assert.False(t, reasons["notes"].Recoverable)
	_, ok := config.Field("assignee")
	assert.False(t, ok, "objects are described through their children")
}

func TestDiscoverClassification(t *testing.T) {
	config, err := Discover(ticketRows())
	require.NoError(t, err)

	key, _ := config.Field("key")
	assert.False(t, key.Groupable, "unique per row")
	assert.Equal(t, "medium", key.CardinalityHint)

	status, _ := config.Field("status")
	assert.True(t, status.Groupable)
	assert.Equal(t, "low", status.CardinalityHint)
	assert.Equal(t, []string{"Done", "In Progress", "To Do"}, status.SampleValues)
	assert.Equal(t, []string{"count"}, status.Aggregations)

	points, _ := config.Field("points")
	assert.Equal(t, 1, points.NullCount)
	assert.Contains(t, points.Aggregations, "ave")

	elapsed, _ := config.Field("elapsed")
	assert.Contains(t, elapsed.Aggregations, "sum:duration")
	assert.Equal(t, "Elapsed", elapsed.DisplayName)

	name, _ := config.Field("assignee.name")
	assert.Equal(t, "Assignee Name", name.DisplayName)
}

func TestDiscoverHelpers(t *testing.T) {
	config, err := Discover(ticketRows(), DiscoverOptions{Name: "tickets", SampleSize: 4})
	require.NoError(t, err)
	assert.Equal(t, "tickets", config.Name)
	assert.Equal(t, 12, config.Rows)

	status, _ := config.Field("status")
	assert.Equal(t, 3, status.UniqueCount)

	uf := config.UniqueFields()
	for _, f := range uf {
		meta, ok := config.Field(f.Field)
		require.True(t, ok)
		assert.True(t, meta.Groupable)
		assert.Equal(t, meta.Type, f.Type)
	}

	assert.Equal(t, engine.KeyDuration, config.SortKey("elapsed", engine.Descending).Type)
	assert.Equal(t, engine.KeyPlain, config.SortKey("status", engine.Ascending).Type)
	assert.Equal(t, engine.Descending, config.SortKey("elapsed", engine.Descending).Direction)
}

func TestDiscoverLogsAndEmpty(t *testing.T) {
	_, err := Discover(engine.NewSliceView(nil))
	require.ErrorIs(t, err, ErrNoRows)

	var buf bytes.Buffer
	_, err = Discover(ticketRows(), DiscoverOptions{Logger: log.NewLogfmtLogger(&buf)})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "msg=\"schema discovered\"")
}

func TestDetectType(t *testing.T) {
	for name, tc := range map[string]struct {
		values []engine.Value
		want   engine.UniqueType
	}{
		"ints":       {[]engine.Value{engine.Int(1), engine.Int(2)}, engine.UniqueLong},
		"mixed nums": {[]engine.Value{engine.Int(1), engine.Float(2.5)}, engine.UniqueNumber},
		"bools":      {[]engine.Value{engine.Bool(true)}, engine.UniqueBoolean},
		"durations":  {[]engine.Value{engine.String("PT1H"), engine.String("P1Y2M")}, engine.UniqueDuration},
		"dates":      {[]engine.Value{engine.String("2024-02-01"), engine.String("2024/03/05 10:00:00")}, engine.UniqueDate},
		"words":      {[]engine.Value{engine.String("P"), engine.String("pear")}, engine.UniqueString},
		"bare year":  {[]engine.Value{engine.String("2024")}, engine.UniqueString},
		"mostly ints": {[]engine.Value{
			engine.Int(1), engine.Int(2), engine.Int(3), engine.Int(4), engine.String("n/a?"),
		}, engine.UniqueLong},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectType(tc.values))
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"story_points", "Story Points"},
		{"status", "Status"},
		{"isActive", "Is Active"},
		{"meta.grade", "Meta Grade"},
		{"time-spent", "Time Spent"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, toDisplayName(tt.input), tt.input)
	}
}
