package engine

import (
	"strings"
	"time"

	"github.com/go-kit/log/level"
)

// FuzzyFilter keeps rows where any of Fields contains Value, ignoring case.
// Scalars are matched on their string form; null and containers never match.
// When Fields is empty the fields are the first row's keys minus Exclude.
type FuzzyFilter struct {
	Fields  []string
	Exclude []string
	Value   string
}

func (f *FuzzyFilter) fields(view RowView, candidates []int) []Path {
	names := f.Fields
	if len(names) == 0 && len(candidates) > 0 {
		skip := make(map[string]bool, len(f.Exclude))
		for _, e := range f.Exclude {
			skip[e] = true
		}
		for _, k := range view.Keys(candidates[0]) {
			if !skip[k] {
				names = append(names, k)
			}
		}
	}
	paths := make([]Path, len(names))
	for i, n := range names {
		paths[i] = ParsePath(n)
	}
	return paths
}

// FuzzyMatch returns the indices of rows matching f, in original order.
func FuzzyMatch(view RowView, f FuzzyFilter, opts ...Option) ([]int, error) {
	idx, err := workingSet(view, nil)
	if err != nil {
		return nil, err
	}
	return fuzzyIndices(view, &f, idx, applyOptions(opts)), nil
}

func fuzzyIndices(view RowView, f *FuzzyFilter, candidates []int, cfg *config) []int {
	start := time.Now()
	fold := newFolder()
	needle := fold.string(f.Value)
	paths := f.fields(view, candidates)

	out := make([]int, 0, len(candidates))
	for _, i := range candidates {
		for _, p := range paths {
			v, ok := view.Lookup(i, p)
			if !ok || !isScalar(v) {
				continue
			}
			if strings.Contains(fold.string(v.String()), needle) {
				out = append(out, i)
				break
			}
		}
	}
	cfg.Metrics.observeStage("fuzzy_filter", start, len(candidates))
	level.Debug(cfg.Logger).Log("msg", "stage complete", "stage", "fuzzy_filter", "rows_in", len(candidates), "rows_out", len(out))
	return out
}

func isScalar(v Value) bool {
	switch v.Kind() {
	case KindBool, KindInt, KindFloat, KindString:
		return true
	}
	return false
}
