package schema

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/spektr-org/perspective/engine"
)

// ============================================================================
// AUTO-DISCOVERY — Heuristic Field Classification
// ============================================================================
// Inspects decoded rows through a RowView and generates a schema.Config.
//
// Classification pipeline per field:
//   1. Collect field paths (top level, plus one level into objects)
//   2. Sample values → detect type (boolean, long, number, duration, date, string)
//   3. Type + cardinality → groupable or not, aggregators offered
//   4. Skip fields with nothing to offer (all null, arrays, deep objects)
// ============================================================================

// ErrNoRows is returned when there is nothing to inspect.
var ErrNoRows = errors.New("dataset has no rows")

// DiscoverOptions controls discovery behavior.
type DiscoverOptions struct {
	SampleSize int        // Max rows to inspect (0 = all). Default: 1000
	Name       string     // Dataset name override
	Logger     log.Logger // Optional; defaults to a no-op logger
}

// DefaultDiscoverOptions returns sensible defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		SampleSize: 1000,
	}
}

// Discover generates a schema.Config by inspecting the rows of view.
func Discover(view engine.RowView, opts ...DiscoverOptions) (*Config, error) {
	opt := DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	logger := opt.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	total := view.Len()
	if total == 0 {
		return nil, ErrNoRows
	}
	limit := total
	if opt.SampleSize > 0 && opt.SampleSize < limit {
		limit = opt.SampleSize
	}

	// 1. Collect field paths in first-encounter order
	paths := collectPaths(view, limit)

	// 2. Analyze each field
	config := &Config{
		Name: opt.Name,
		Rows: total,
	}
	if config.Name == "" {
		config.Name = "Auto-discovered Dataset"
	}
	for _, p := range paths {
		col := analyzeField(view, p, limit)
		if col.skipReason != "" {
			config.Skipped = append(config.Skipped, SkippedField{
				Field:       col.key,
				Reason:      col.skipReason,
				Recoverable: col.recoverable,
			})
			continue
		}
		config.Fields = append(config.Fields, col.toField())
	}
	config.DiscoveredAt = time.Now().UTC().Format(time.RFC3339)

	level.Debug(logger).Log("msg", "schema discovered", "rows", total, "sampled", limit,
		"fields", len(config.Fields), "skipped", len(config.Skipped))
	return config, nil
}

// collectPaths lists top-level keys and, for object-valued keys, their
// direct children.
func collectPaths(view engine.RowView, limit int) []string {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for i := 0; i < limit; i++ {
		for _, k := range view.Keys(i) {
			v, _ := view.Lookup(i, engine.Path{k})
			if v.Kind() != engine.KindObject {
				add(k)
				continue
			}
			for _, child := range v.Keys() {
				add(k + "." + child)
			}
		}
	}
	return paths
}

// ============================================================================
// FIELD ANALYSIS
// ============================================================================

type fieldAnalysis struct {
	key         string
	fieldType   engine.UniqueType
	skipReason  string
	recoverable bool
	groupable   bool

	// Stats
	uniqueCount int
	totalCount  int
	nullCount   int
	sampleVals  []string

	cardinalityHint string
}

// analyzeField inspects every sampled value of one field and classifies it.
func analyzeField(view engine.RowView, key string, limit int) fieldAnalysis {
	col := fieldAnalysis{
		key:        key,
		totalCount: limit,
	}
	path := engine.ParsePath(key)

	values := make([]engine.Value, 0, limit)
	uniqueSet := make(map[string]bool)
	for i := 0; i < limit; i++ {
		v, ok := view.Lookup(i, path)
		if !ok || isEmpty(v) {
			col.nullCount++
			continue
		}
		values = append(values, v)
		uniqueSet[v.String()] = true
	}
	col.uniqueCount = len(uniqueSet)

	if len(values) == 0 {
		col.skipReason = "All values are empty/null"
		return col
	}
	for _, v := range values {
		switch v.Kind() {
		case engine.KindArray:
			col.skipReason = "Array values cannot be grouped or aggregated"
			return col
		case engine.KindObject:
			col.skipReason = "Nested deeper than one level"
			col.recoverable = true
			return col
		}
	}

	col.sampleVals = collectSamples(uniqueSet, 10)
	col.fieldType = detectType(values)
	col.classify()

	switch {
	case col.uniqueCount <= 10:
		col.cardinalityHint = "low"
	case col.uniqueCount <= 100:
		col.cardinalityHint = "medium"
	default:
		col.cardinalityHint = "high"
	}
	return col
}

// classify decides whether grouping by the field is useful.
func (col *fieldAnalysis) classify() {
	col.groupable = true
	switch col.fieldType {
	case engine.UniqueString:
		if col.uniqueCount == col.totalCount && col.totalCount > 10 {
			// Every value unique → likely an identifier or free text
			col.groupable = false
			return
		}
		if col.uniqueCount > col.totalCount/2 && col.uniqueCount > 50 {
			col.groupable = false
		}
	case engine.UniqueLong:
		if col.uniqueCount == col.totalCount && col.totalCount > 10 {
			col.groupable = false
		}
	case engine.UniqueNumber, engine.UniqueDate:
		// Continuous values make poor group keys unless they repeat a lot
		ratio := float64(col.uniqueCount) / float64(col.totalCount)
		col.groupable = col.uniqueCount < 20 || ratio < 0.3
	}
}

func (col *fieldAnalysis) toField() FieldMeta {
	return FieldMeta{
		Key:             col.key,
		DisplayName:     toDisplayName(col.key),
		Type:            col.fieldType,
		SampleValues:    col.sampleVals,
		Groupable:       col.groupable,
		Aggregations:    aggregationsFor(col.fieldType),
		CardinalityHint: col.cardinalityHint,
		UniqueCount:     col.uniqueCount,
		NullCount:       col.nullCount,
	}
}

// ============================================================================
// TYPE DETECTION
// ============================================================================

// detectType inspects values to determine the field type.
// Requires 80%+ of non-null values to match for anything but string.
func detectType(values []engine.Value) engine.UniqueType {
	if len(values) == 0 {
		return engine.UniqueString
	}

	var boolCount, intCount, floatCount, durationCount, dateCount int
	for _, v := range values {
		switch v.Kind() {
		case engine.KindBool:
			boolCount++
		case engine.KindInt:
			intCount++
		case engine.KindFloat:
			floatCount++
		case engine.KindString:
			s, _ := v.AsString()
			switch {
			case isDuration(s):
				durationCount++
			case isDate(s):
				dateCount++
			}
		}
	}

	threshold := int(float64(len(values)) * 0.8)
	if threshold == 0 {
		threshold = 1
	}

	switch {
	case boolCount >= threshold:
		return engine.UniqueBoolean
	case intCount >= threshold:
		return engine.UniqueLong
	case intCount+floatCount >= threshold:
		return engine.UniqueNumber
	case durationCount >= threshold:
		return engine.UniqueDuration
	case dateCount >= threshold:
		return engine.UniqueDate
	}
	return engine.UniqueString
}

func isEmpty(v engine.Value) bool {
	if v.IsNull() {
		return true
	}
	s, ok := v.AsString()
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	return s == "" || s == "null" || s == "NULL" || s == "N/A" || s == "n/a"
}

func isDuration(s string) bool {
	if !strings.HasPrefix(s, "P") {
		return false
	}
	_, err := engine.ParseDuration(s)
	return err == nil
}

// isDate accepts anything dateparse reads that carries a date part. Bare
// numbers are left to the numeric checks.
func isDate(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 6 || strings.IndexFunc(s, unicode.IsDigit) < 0 {
		return false
	}
	if strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return false
	}
	_, err := dateparse.ParseIn(s, time.UTC)
	return err == nil
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// toDisplayName cleans a field path for human display.
// "story_points" → "Story Points", "meta.grade" → "Meta Grade", "isActive" → "Is Active"
func toDisplayName(s string) string {
	var spaced strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			prev := rune(s[i-1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				spaced.WriteRune(' ')
			}
		}
		switch r {
		case '_', '-', '.':
			spaced.WriteRune(' ')
		default:
			spaced.WriteRune(r)
		}
	}

	words := strings.Fields(spaced.String())
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// collectSamples picks up to maxSamples representative values.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}

	// Sort for deterministic output
	sort.Strings(samples)

	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}
