package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log/level"
)

// UniqueType tells the unique-values engine how to read bucket keys back
// and how to order them.
type UniqueType string

const (
	UniqueString   UniqueType = "string"
	UniqueLong     UniqueType = "long"
	UniqueNumber   UniqueType = "number"
	UniqueBoolean  UniqueType = "boolean"
	UniqueDuration UniqueType = "duration"
	UniqueDate     UniqueType = "date"
)

// ParseUniqueType accepts the names above; empty means string.
func ParseUniqueType(s string) (UniqueType, bool) {
	switch t := UniqueType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return UniqueString, true
	case UniqueString, UniqueLong, UniqueNumber, UniqueBoolean, UniqueDuration, UniqueDate:
		return t, true
	}
	return "", false
}

// UniqueField names a field and its type.
type UniqueField struct {
	Field string     `json:"name" yaml:"name"`
	Type  UniqueType `json:"type" yaml:"type"`
}

// UniqueValue is one distinct value and how many rows hold it.
type UniqueValue struct {
	Value Value `json:"value"`
	Count int   `json:"count"`
}

// UniqueResult maps each requested field to its distinct values.
type UniqueResult map[string][]UniqueValue

// Unique counts the distinct values of every field over subset (or every
// row). Null, missing and empty strings share one bucket, always last.
func Unique(view RowView, fields []UniqueField, subset []int, opts ...Option) (UniqueResult, error) {
	idx, err := workingSet(view, subset)
	if err != nil {
		return nil, err
	}
	return uniqueIndices(view, fields, idx, applyOptions(opts))
}

type uniqueBucket struct {
	key   string
	count int
}

func uniqueIndices(view RowView, fields []UniqueField, idx []int, cfg *config) (UniqueResult, error) {
	start := time.Now()
	result := make(UniqueResult, len(fields))
	for _, f := range fields {
		if f.Field == "" {
			return nil, intentErr("unique", "name", "required")
		}
		p := ParsePath(f.Field)
		counts := make(map[string]*uniqueBucket)
		var buckets []*uniqueBucket
		nulls := 0
		for _, row := range idx {
			v, _ := view.Lookup(row, p)
			if v.IsNull() || (v.Kind() == KindString && v.s == "") {
				nulls++
				continue
			}
			key := v.String()
			b, ok := counts[key]
			if !ok {
				b = &uniqueBucket{key: key}
				counts[key] = b
				buckets = append(buckets, b)
			}
			b.count++
		}
		result[f.Field] = uniqueValues(f.Type, buckets, nulls)
	}
	cfg.Metrics.observeStage("unique", start, len(idx))
	level.Debug(cfg.Logger).Log("msg", "stage complete", "stage", "unique", "rows_in", len(idx), "fields", len(fields))
	return result, nil
}

func uniqueValues(t UniqueType, buckets []*uniqueBucket, nulls int) []UniqueValue {
	type entry struct {
		out    UniqueValue
		sort   Value
		dur    Duration
		durOK  bool
		date   time.Time
		dateOK bool
	}
	entries := make([]entry, len(buckets))
	for i, b := range buckets {
		e := entry{out: UniqueValue{Value: typedKey(t, b.key), Count: b.count}}
		e.sort = e.out.Value
		switch t {
		case UniqueDuration:
			e.dur, e.durOK = parseDurationOK(b.key)
		case UniqueDate:
			e.date, e.dateOK = parseDate(b.key)
		}
		if e.sort.Kind() == KindObject {
			e.sort = String(b.key)
		}
		entries[i] = e
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		var c int
		switch t {
		case UniqueDuration:
			c = compareDurations(a.dur, a.durOK, b.dur, b.durOK)
		case UniqueDate:
			c = compareDates(a.date, a.dateOK, b.date, b.dateOK)
		}
		if c == 0 {
			c = compareValues(a.sort, b.sort)
		}
		return c < 0
	})

	out := make([]UniqueValue, 0, len(entries)+1)
	for _, e := range entries {
		out = append(out, e.out)
	}
	if nulls > 0 {
		out = append(out, UniqueValue{Value: Null(), Count: nulls})
	}
	return out
}

// compareDates orders by instant; unparseable dates rank last.
func compareDates(a time.Time, aok bool, b time.Time, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	return a.Compare(b)
}

// typedKey reads a bucket key back as t. Keys that do not parse stay strings.
func typedKey(t UniqueType, key string) Value {
	switch t {
	case UniqueLong:
		if i, err := strconv.ParseInt(key, 10, 64); err == nil {
			return Int(i)
		}
	case UniqueNumber:
		if f, err := strconv.ParseFloat(key, 64); err == nil {
			return Float(f)
		}
	case UniqueBoolean:
		if b, err := strconv.ParseBool(key); err == nil {
			return Bool(b)
		}
	case UniqueDuration:
		if d, err := ParseDuration(key); err == nil {
			return Object(map[string]Value{
				"duration": String(d.Format()),
				"iso":      String(key),
			})
		}
	}
	return String(key)
}

func parseDurationOK(s string) (Duration, bool) {
	d, err := ParseDuration(s)
	return d, err == nil
}
