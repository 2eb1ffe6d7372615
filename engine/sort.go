package engine

import (
	"sort"
	"time"

	"github.com/go-kit/log/level"
)

// ============================================================================
// SORT — Stable multi-key ordering of row indices
// ============================================================================
// Keys are tried in order; a tie falls through to the next key and
// exhausting the keys keeps the original relative order.
//
// Plain keys: mutually ordered values compare naturally. Anything else is
// ranked by kind (bool, number, string, array, object, null), so null sorts
// last ascending. Descending reverses the whole relation.
//
// Duration keys compare by Place. Identical components tie; values that do
// not parse rank after those that do.
// ============================================================================

// Direction of a sort key.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// KeyType selects the comparison used for a sort key.
type KeyType string

const (
	KeyPlain    KeyType = ""
	KeyDuration KeyType = "duration"
)

// SortKey is one level of a multi-key sort.
type SortKey struct {
	Field     string
	Type      KeyType
	Direction Direction
}

// Sort orders subset (or every row) by keys. The input slice is not modified.
func Sort(view RowView, keys []SortKey, subset []int, opts ...Option) ([]int, error) {
	idx, err := workingSet(view, subset)
	if err != nil {
		return nil, err
	}
	return sortIndices(view, keys, idx, applyOptions(opts)), nil
}

// sortColumn holds one key's values for every candidate, resolved once.
type sortColumn struct {
	key       SortKey
	values    []Value
	durations []Duration
	parsed    []bool
}

// sortIndices orders validated indices.
func sortIndices(view RowView, keys []SortKey, idx []int, cfg *config) []int {
	if len(keys) == 0 || len(idx) < 2 {
		return idx
	}
	start := time.Now()

	// Columns are addressed by position in idx, which moves during sorting,
	// so sort a permutation of positions instead.
	cols := make([]sortColumn, len(keys))
	for k, key := range keys {
		col := sortColumn{key: key, values: make([]Value, len(idx))}
		p := ParsePath(key.Field)
		for pos, row := range idx {
			col.values[pos], _ = view.Lookup(row, p)
		}
		if key.Type == KeyDuration {
			col.durations = make([]Duration, len(idx))
			col.parsed = make([]bool, len(idx))
			for pos, v := range col.values {
				d, err := DurationOf(v)
				col.durations[pos], col.parsed[pos] = d, err == nil
			}
		}
		cols[k] = col
	}

	perm := make([]int, len(idx))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(x, y int) bool {
		a, b := perm[x], perm[y]
		for k := range cols {
			if c := cols[k].compare(a, b); c != 0 {
				return c < 0
			}
		}
		return false
	})

	out := make([]int, len(idx))
	for i, pos := range perm {
		out[i] = idx[pos]
	}
	cfg.Metrics.observeStage("sort", start, len(idx))
	level.Debug(cfg.Logger).Log("msg", "stage complete", "stage", "sort", "rows_in", len(idx), "rows_out", len(out), "keys", len(keys))
	return out
}

func (c *sortColumn) compare(a, b int) int {
	var r int
	if c.key.Type == KeyDuration {
		r = compareDurations(c.durations[a], c.parsed[a], c.durations[b], c.parsed[b])
	} else {
		r = compareValues(c.values[a], c.values[b])
	}
	if c.key.Direction == Descending {
		return -r
	}
	return r
}

func compareDurations(a Duration, aok bool, b Duration, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	case a == b:
		return 0
	case Place(a, b) == Before:
		return -1
	}
	return 1
}

// compareValues is the plain-key ordering described above.
func compareValues(a, b Value) int {
	if a.Equal(b) {
		return 0
	}
	if c, ok := order(a, b); ok {
		return c
	}
	return cmp3(kindRank(a) < kindRank(b), kindRank(a) > kindRank(b))
}

func kindRank(v Value) int {
	switch v.Kind() {
	case KindBool:
		return 0
	case KindInt, KindFloat:
		return 1
	case KindString:
		return 2
	case KindArray:
		return 3
	case KindObject:
		return 4
	}
	return 5
}
