package engine

import (
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// ============================================================================
// FILTER — Boolean expression trees over rows
// ============================================================================
// Leaf compares one field against a literal. And/Or short-circuit; Not is a
// negated And. A missing field resolves to Null. An unknown operator makes
// its leaf false.
//
// Single pass over the candidate indices, output in candidate order.
// ============================================================================

// Expression is a node of a filter tree: *Leaf, *And, *Or or *Not.
type Expression interface {
	eval(e *evaluator, view RowView, i int) bool
	// within reports whether the node nests at most limit levels deep. It
	// stops descending once the limit is spent.
	within(limit int) bool
}

// Leaf compares the value at Field against Value. Build it with NewLeaf.
type Leaf struct {
	Field    string
	Operator string // as written; aliases are accepted
	Value    Value

	path  Path
	op    Operator
	known bool
}

// NewLeaf builds a leaf comparison.
func NewLeaf(field, operator string, value Value) *Leaf {
	op, known := ParseOperator(operator)
	return &Leaf{
		Field:    field,
		Operator: operator,
		Value:    value,
		path:     ParsePath(field),
		op:       op,
		known:    known,
	}
}

// And is true when every child is true. Empty is true.
type And struct{ Children []Expression }

// Or is true when any child is true. Empty is false.
type Or struct{ Children []Expression }

// Not is true when the children, taken as an And, are false.
type Not struct{ Children []Expression }

func (l *Leaf) eval(e *evaluator, view RowView, i int) bool {
	if !l.known {
		return false
	}
	lhs, _ := view.Lookup(i, l.path)
	if e.fold != nil {
		return Compare(l.op, e.fold.value(lhs), e.literal(l))
	}
	return Compare(l.op, lhs, l.Value)
}

func (a *And) eval(e *evaluator, view RowView, i int) bool {
	for _, c := range a.Children {
		if !c.eval(e, view, i) {
			return false
		}
	}
	return true
}

func (o *Or) eval(e *evaluator, view RowView, i int) bool {
	for _, c := range o.Children {
		if c.eval(e, view, i) {
			return true
		}
	}
	return false
}

func (n *Not) eval(e *evaluator, view RowView, i int) bool {
	return !(&And{Children: n.Children}).eval(e, view, i)
}

func (l *Leaf) within(limit int) bool { return limit >= 1 }
func (a *And) within(limit int) bool  { return childrenWithin(a.Children, limit) }
func (o *Or) within(limit int) bool   { return childrenWithin(o.Children, limit) }
func (n *Not) within(limit int) bool  { return childrenWithin(n.Children, limit) }

func childrenWithin(children []Expression, limit int) bool {
	if limit < 1 {
		return false
	}
	for _, c := range children {
		if !c.within(limit - 1) {
			return false
		}
	}
	return true
}

// evaluator carries per-call state. fold is nil in case-sensitive mode.
type evaluator struct {
	fold     *folder
	literals map[*Leaf]Value
}

func newEvaluator(caseSensitive bool) *evaluator {
	if caseSensitive {
		return &evaluator{}
	}
	return &evaluator{fold: newFolder(), literals: make(map[*Leaf]Value)}
}

// literal returns the leaf's folded literal, folding it once per call.
func (e *evaluator) literal(l *Leaf) Value {
	if v, ok := e.literals[l]; ok {
		return v
	}
	v := e.fold.value(l.Value)
	e.literals[l] = v
	return v
}

// ============================================================================
// ENTRY POINTS
// ============================================================================

// Filter returns the indices of rows in view for which expr holds, in
// original order. A nil expr passes every row.
func Filter(view RowView, expr Expression, opts ...Option) ([]int, error) {
	idx, err := workingSet(view, nil)
	if err != nil {
		return nil, err
	}
	return filterIndices(view, expr, idx, applyOptions(opts))
}

// Evaluate tests expr against a single object row.
func Evaluate(expr Expression, row Value, caseSensitive bool) bool {
	if expr == nil {
		return true
	}
	return expr.eval(newEvaluator(caseSensitive), NewSliceView([]Value{row}), 0)
}

// filterIndices evaluates expr over validated candidates.
func filterIndices(view RowView, expr Expression, candidates []int, cfg *config) ([]int, error) {
	if expr == nil {
		return candidates, nil
	}
	if !expr.within(cfg.MaxDepth) {
		return nil, errors.Wrapf(ErrMaxDepth, "filter nesting limit %d", cfg.MaxDepth)
	}
	start := time.Now()
	e := newEvaluator(cfg.CaseSensitive)
	out := make([]int, 0, len(candidates))
	for _, i := range candidates {
		if expr.eval(e, view, i) {
			out = append(out, i)
		}
	}
	cfg.Metrics.observeStage("filter", start, len(candidates))
	level.Debug(cfg.Logger).Log("msg", "stage complete", "stage", "filter", "rows_in", len(candidates), "rows_out", len(out))
	return out, nil
}
