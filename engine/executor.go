package engine

import (
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// ============================================================================
// EXECUTOR — Perspective orchestration + Value-intent entry points
// ============================================================================
// Entry point: Execute(intent, view, subset, opts...)
//
// Pipeline (fixed order):
//   1. Working set: subset validated, then fuzzy filter, then filter
//   2. Sort
//   3. Group (aggregates attached to every node when also requested)
//   4. Else aggregate
//
// Row indices are the only thing passed between stages. Exactly one result
// shape comes back per call.
// ============================================================================

// ResultKind names the shape held by a Perspective.
type ResultKind string

const (
	ResultRows       ResultKind = "rows"
	ResultGroup      ResultKind = "group"
	ResultAggregates ResultKind = "aggregates"
)

// Perspective is the result of a full intent.
type Perspective struct {
	Kind       ResultKind
	Rows       []int
	Group      *GroupNode
	Aggregates []AggregateValue
}

// MarshalJSON encodes only the populated shape. A group is wrapped under its
// root key.
func (p *Perspective) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ResultGroup:
		return jsonAPI.Marshal(map[string]*GroupNode{RootValue: p.Group})
	case ResultAggregates:
		return jsonAPI.Marshal(p.Aggregates)
	}
	rows := p.Rows
	if rows == nil {
		rows = []int{}
	}
	return jsonAPI.Marshal(rows)
}

// Execute runs intent over subset (or every row) of view.
func Execute(intent Intent, view RowView, subset []int, opts ...Option) (*Perspective, error) {
	cfg := applyOptions(opts)
	if intent.CaseSensitive != nil {
		cfg.CaseSensitive = *intent.CaseSensitive
	}
	if len(intent.Group) > cfg.MaxDepth {
		return nil, errors.Wrapf(ErrMaxDepth, "%d group fields, limit %d", len(intent.Group), cfg.MaxDepth)
	}
	start := time.Now()

	// 1. Working set
	rows, err := workingSet(view, subset)
	if err != nil {
		return nil, err
	}
	in := len(rows)
	if intent.Fuzzy != nil {
		rows = fuzzyIndices(view, intent.Fuzzy, rows, cfg)
	}
	if intent.Filter != nil {
		if rows, err = filterIndices(view, intent.Filter, rows, cfg); err != nil {
			return nil, err
		}
	}
	if len(intent.Sort) == 0 && len(intent.Group) == 0 && len(intent.Aggregates) == 0 {
		return finish(cfg, start, in, &Perspective{Kind: ResultRows, Rows: rows}), nil
	}

	// 2. Sort
	if len(intent.Sort) > 0 {
		rows = sortIndices(view, intent.Sort, rows, cfg)
	}
	if len(intent.Group) == 0 && len(intent.Aggregates) == 0 {
		return finish(cfg, start, in, &Perspective{Kind: ResultRows, Rows: rows}), nil
	}

	// 3. Group
	if len(intent.Group) > 0 {
		root := groupIndices(view, intent.Group, rows, cfg)
		if len(intent.Aggregates) > 0 {
			if err := AttachAggregates(root, intent.Aggregates, view, WithLogger(cfg.Logger), WithMetrics(cfg.Metrics)); err != nil {
				return nil, err
			}
		}
		return finish(cfg, start, in, &Perspective{Kind: ResultGroup, Group: root}), nil
	}

	// 4. Aggregate
	values, err := aggregateStage(view, intent.Aggregates, rows, cfg)
	if err != nil {
		return nil, err
	}
	return finish(cfg, start, in, &Perspective{Kind: ResultAggregates, Aggregates: values}), nil
}

func finish(cfg *config, start time.Time, rowsIn int, p *Perspective) *Perspective {
	cfg.Metrics.observeStage("perspective", start, rowsIn)
	level.Debug(cfg.Logger).Log("msg", "perspective built", "kind", p.Kind, "rows_in", rowsIn, "duration", time.Since(start))
	return p
}

// ============================================================================
// VALUE-INTENT ENTRY POINTS
// ============================================================================
// Each decodes its intent, counts a rejected intent in the metrics, and runs
// the typed stage.

// BuildPerspective decodes intent and runs Execute.
func BuildPerspective(intent Value, view RowView, subset []int, opts ...Option) (*Perspective, error) {
	cfg := applyOptions(opts)
	in, err := ParseIntent(intent, opts...)
	if err != nil {
		return nil, rejected(cfg, err)
	}
	return Execute(in, view, subset, opts...)
}

// FilterData returns the rows passing intent, a filter array or expression.
func FilterData(intent Value, view RowView, caseSensitive bool, opts ...Option) ([]int, error) {
	cfg := applyOptions(opts)
	cfg.CaseSensitive = caseSensitive
	expr, err := parseFilter(intent, cfg.MaxDepth)
	if err != nil {
		return nil, rejected(cfg, err)
	}
	idx, err := workingSet(view, nil)
	if err != nil {
		return nil, err
	}
	return filterIndices(view, expr, idx, cfg)
}

// SortData orders subset (or every row) by an array of sort keys.
func SortData(intent Value, view RowView, subset []int, opts ...Option) ([]int, error) {
	cfg := applyOptions(opts)
	keys, err := ParseSortKeys(intent)
	if err != nil {
		return nil, rejected(cfg, err)
	}
	return Sort(view, keys, subset, opts...)
}

// GroupData groups subset (or every row) by an array of field names.
func GroupData(fields Value, view RowView, subset []int, opts ...Option) (*GroupNode, error) {
	cfg := applyOptions(opts)
	names, err := ParseGroupFields(fields)
	if err != nil {
		return nil, rejected(cfg, err)
	}
	return Group(view, names, subset, opts...)
}

// AggregateRows runs an aggregate map or list over subset (or every row).
func AggregateRows(intent Value, view RowView, subset []int, opts ...Option) ([]AggregateValue, error) {
	cfg := applyOptions(opts)
	agg, err := ParseAggregateIntent(intent)
	if err != nil {
		return nil, rejected(cfg, err)
	}
	return Aggregate(view, agg, subset, opts...)
}

// UniqueValues counts distinct values for an array of unique fields.
func UniqueValues(fields Value, view RowView, subset []int, opts ...Option) (UniqueResult, error) {
	cfg := applyOptions(opts)
	uf, err := ParseUniqueFields(fields)
	if err != nil {
		return nil, rejected(cfg, err)
	}
	return Unique(view, uf, subset, opts...)
}

// InFilter tests a single row against a filter array or expression.
func InFilter(intent Value, row Value, caseSensitive bool, opts ...Option) (bool, error) {
	cfg := applyOptions(opts)
	expr, err := parseFilter(intent, cfg.MaxDepth)
	if err != nil {
		return false, rejected(cfg, err)
	}
	return Evaluate(expr, row, caseSensitive), nil
}

func rejected(cfg *config, err error) error {
	stage := "intent"
	var ie *IntentError
	if errors.As(err, &ie) {
		stage = ie.Stage
	}
	cfg.Metrics.intentError(stage)
	level.Debug(cfg.Logger).Log("msg", "intent rejected", "stage", stage, "err", err)
	return err
}
