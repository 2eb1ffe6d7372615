package engine

import (
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-kit/log/level"
)

// ============================================================================
// AGGREGATORS — Running accumulators over a row subset
// ============================================================================
// The set of aggregators is closed: AggregateKind names every one and
// NewAggregator is the only constructor.
//
// Sentinels on an empty input: sum is 0, count is an empty breakdown,
// min/max/ave are null. Nulls feed 0 into sum and ave and are skipped by
// min and max. Values of the wrong kind are skipped.
// ============================================================================

// AggregateKind identifies an aggregator.
type AggregateKind int

const (
	AggSum AggregateKind = iota
	AggMin
	AggMax
	AggAverage
	AggCount
	AggSumDuration
	AggAverageDuration
	AggMinDuration
	AggMaxDuration
	AggMinDate
	AggMaxDate
)

var aggregateNames = map[AggregateKind]string{
	AggSum:             "sum",
	AggMin:             "min",
	AggMax:             "max",
	AggAverage:         "ave",
	AggCount:           "count",
	AggSumDuration:     "sum:duration",
	AggAverageDuration: "ave:duration",
	AggMinDuration:     "min:duration",
	AggMaxDuration:     "max:duration",
	AggMinDate:         "min:date",
	AggMaxDate:         "max:date",
}

var aggregateKinds = func() map[string]AggregateKind {
	m := make(map[string]AggregateKind, len(aggregateNames))
	for k, name := range aggregateNames {
		m[name] = k
	}
	return m
}()

func (k AggregateKind) String() string { return aggregateNames[k] }

// ParseAggregateKind resolves "sum", "min:duration" and the like.
func ParseAggregateKind(name string) (AggregateKind, bool) {
	k, ok := aggregateKinds[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// DateLayout is the output format of min:date and max:date.
const DateLayout = "2006/01/02 15:04:05"

// Aggregator accumulates values one at a time.
type Aggregator interface {
	Add(v Value)
	Value() Value
}

// NewAggregator returns a fresh accumulator of kind k.
func NewAggregator(k AggregateKind) Aggregator {
	switch k {
	case AggSum:
		return &sumAgg{}
	case AggAverage:
		return &sumAgg{average: true}
	case AggMin:
		return &extremeAgg{want: -1}
	case AggMax:
		return &extremeAgg{want: 1}
	case AggCount:
		return &countAgg{buckets: make(map[countKey]int)}
	case AggSumDuration:
		return &durationSumAgg{}
	case AggAverageDuration:
		return &durationSumAgg{average: true}
	case AggMinDuration:
		return &durationExtremeAgg{min: true}
	case AggMaxDuration:
		return &durationExtremeAgg{}
	case AggMinDate:
		return &dateAgg{min: true}
	case AggMaxDate:
		return &dateAgg{}
	}
	return nil
}

// ----------------------------------------------------------------------------
// numbers

// sumAgg stays in int64 until a float arrives or the sum would overflow.
type sumAgg struct {
	average bool
	isFloat bool
	i       int64
	f       float64
	n       int
}

func (a *sumAgg) Add(v Value) {
	switch v.Kind() {
	case KindNull:
	case KindInt:
		if !a.isFloat {
			s := a.i + v.i
			if (s > a.i) == (v.i > 0) {
				a.i = s
				break
			}
			a.isFloat, a.f = true, float64(a.i)
		}
		a.f += float64(v.i)
	case KindFloat:
		if !a.isFloat {
			a.isFloat, a.f = true, float64(a.i)
		}
		a.f += v.f
	default:
		return
	}
	a.n++
}

func (a *sumAgg) Value() Value {
	if a.average {
		if a.n == 0 {
			return Null()
		}
		if a.isFloat {
			return Float(a.f / float64(a.n))
		}
		return Float(float64(a.i) / float64(a.n))
	}
	if a.isFloat {
		return Float(a.f)
	}
	return Int(a.i)
}

// extremeAgg keeps the winning value itself, so ints stay ints.
type extremeAgg struct {
	want int // -1 min, 1 max
	best Value
	seen bool
}

func (a *extremeAgg) Add(v Value) {
	if !v.IsNumeric() {
		return
	}
	if f, _ := v.AsFloat(); math.IsNaN(f) {
		return
	}
	if !a.seen {
		a.best, a.seen = v, true
		return
	}
	if c, _ := order(v, a.best); c == a.want {
		a.best = v
	}
}

func (a *extremeAgg) Value() Value {
	if !a.seen {
		return Null()
	}
	return a.best
}

// ----------------------------------------------------------------------------
// count

type countKey struct {
	kind Kind
	key  string
}

// countAgg is a cardinality breakdown in first-encounter order.
type countAgg struct {
	buckets map[countKey]int
	order   []countKey
	values  []Value
}

func (a *countAgg) Add(v Value) {
	k := countKey{kind: v.Kind(), key: v.String()}
	if v.IsNumeric() {
		k.kind = KindFloat
		f, _ := v.AsFloat()
		k.key = formatFloat(f)
	}
	if _, ok := a.buckets[k]; !ok {
		a.order = append(a.order, k)
		a.values = append(a.values, v)
	}
	a.buckets[k]++
}

func (a *countAgg) Value() Value {
	out := make([]Value, len(a.order))
	for i, k := range a.order {
		out[i] = Object(map[string]Value{
			"value": a.values[i],
			"count": Int(int64(a.buckets[k])),
		})
	}
	return Array(out...)
}

// ----------------------------------------------------------------------------
// durations

// durationSumAgg reports seconds. Null is PT0S; unparseable values are skipped.
type durationSumAgg struct {
	average bool
	total   float64
	n       int
}

func (a *durationSumAgg) Add(v Value) {
	d, err := DurationOf(v)
	if err != nil {
		return
	}
	a.total += d.TotalSeconds()
	a.n++
}

func (a *durationSumAgg) Value() Value {
	if !a.average {
		return Float(a.total)
	}
	if a.n == 0 {
		return Null()
	}
	return Float(a.total / float64(a.n))
}

// durationExtremeAgg reports the winning literal, chosen by Place.
type durationExtremeAgg struct {
	min  bool
	best Duration
	lit  string
	seen bool
}

func (a *durationExtremeAgg) Add(v Value) {
	s, ok := v.AsString()
	if !ok {
		return
	}
	d, err := ParseDuration(s)
	if err != nil {
		return
	}
	if !a.seen {
		a.best, a.lit, a.seen = d, s, true
		return
	}
	if d == a.best {
		return
	}
	// Place(x, y) == Before means y is the larger.
	if (a.min && Place(d, a.best) == Before) || (!a.min && Place(a.best, d) == Before) {
		a.best, a.lit = d, s
	}
}

func (a *durationExtremeAgg) Value() Value {
	if !a.seen {
		return Null()
	}
	return String(a.lit)
}

// ----------------------------------------------------------------------------
// dates

type dateAgg struct {
	min  bool
	best time.Time
	seen bool
}

func (a *dateAgg) Add(v Value) {
	s, ok := v.AsString()
	if !ok || s == "" {
		return
	}
	t, ok := parseDate(s)
	if !ok {
		return
	}
	if !a.seen || (a.min && t.Before(a.best)) || (!a.min && t.After(a.best)) {
		a.best, a.seen = t, true
	}
}

// parseDate reads a date literal in any layout dateparse knows, as UTC.
func parseDate(s string) (time.Time, bool) {
	t, err := dateparse.ParseIn(s, time.UTC)
	return t, err == nil
}

func (a *dateAgg) Value() Value {
	if !a.seen {
		return Null()
	}
	return String(a.best.UTC().Format(DateLayout))
}

// ============================================================================
// AGGREGATE — one pass, every aggregator
// ============================================================================

// AggregateSpec pairs an aggregator with the field that feeds it.
type AggregateSpec struct {
	Kind  AggregateKind
	Field string
}

// AggregateIntent is an ordered list of aggregators. Output follows its order.
type AggregateIntent []AggregateSpec

// AggregateValue is one aggregator's result.
type AggregateValue struct {
	Agg   string `json:"agg"`
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Aggregate runs intent over subset (or every row). A row missing a field
// does not feed that field's aggregator.
func Aggregate(view RowView, intent AggregateIntent, subset []int, opts ...Option) ([]AggregateValue, error) {
	idx, err := workingSet(view, subset)
	if err != nil {
		return nil, err
	}
	return aggregateStage(view, intent, idx, applyOptions(opts))
}

func aggregateStage(view RowView, intent AggregateIntent, idx []int, cfg *config) ([]AggregateValue, error) {
	start := time.Now()
	out, err := aggregateIndices(view, intent, idx)
	if err != nil {
		return nil, err
	}
	cfg.Metrics.observeStage("aggregate", start, len(idx))
	level.Debug(cfg.Logger).Log("msg", "stage complete", "stage", "aggregate", "rows_in", len(idx), "aggregates", len(out))
	return out, nil
}

// aggregateIndices assumes idx is already validated.
func aggregateIndices(view RowView, intent AggregateIntent, idx []int) ([]AggregateValue, error) {
	aggs := make([]Aggregator, len(intent))
	paths := make([]Path, len(intent))
	for i, spec := range intent {
		aggs[i] = NewAggregator(spec.Kind)
		if aggs[i] == nil {
			return nil, intentErr("aggregates", spec.Field, "unknown aggregator")
		}
		paths[i] = ParsePath(spec.Field)
	}
	for _, row := range idx {
		for i, p := range paths {
			if v, ok := view.Lookup(row, p); ok {
				aggs[i].Add(v)
			}
		}
	}
	out := make([]AggregateValue, len(intent))
	for i, spec := range intent {
		out[i] = AggregateValue{Agg: spec.Kind.String(), Field: spec.Field, Value: aggs[i].Value()}
	}
	return out, nil
}
