package engine

import (
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ============================================================================
// GROUPING — Recursive multi-level tree of row indices
// ============================================================================
// Pass 1 inserts every row: one level per group field, keyed by the field's
// string form ("none" for null or missing). At the last field the row index
// is appended to that node's Rows.
// Pass 2 fills counts bottom-up.
//
// Interior nodes hold Children, leaves hold Rows, never both.
// ============================================================================

// RootValue is the Value of the root node.
const RootValue = "root"

// NoneKey is the group key for null and missing values.
const NoneKey = "none"

// GroupNode is one level of a grouping tree.
type GroupNode struct {
	ID    string
	Value string
	// ChildCount is the number of children, or the number of rows on a leaf.
	ChildCount int
	RowCount   int
	Children   map[string]*GroupNode
	Rows       []int
	Aggregates []AggregateValue

	order []string // child keys in first-encounter order
}

func newGroupNode(value string) *GroupNode {
	return &GroupNode{ID: uuid.NewString(), Value: value}
}

// IsLeaf reports whether the node holds rows rather than children.
func (n *GroupNode) IsLeaf() bool { return n.Children == nil }

// Keys returns child keys in the order rows first produced them.
func (n *GroupNode) Keys() []string { return n.order }

// Child returns the child at key, or nil.
func (n *GroupNode) Child(key string) *GroupNode {
	if n.Children == nil {
		return nil
	}
	return n.Children[key]
}

func (n *GroupNode) child(key string) *GroupNode {
	if n.Children == nil {
		n.Children = make(map[string]*GroupNode)
	}
	c, ok := n.Children[key]
	if !ok {
		c = newGroupNode(key)
		n.Children[key] = c
		n.order = append(n.order, key)
	}
	return c
}

// GroupKey is the string a value groups under.
func GroupKey(v Value) string {
	if v.IsNull() {
		return NoneKey
	}
	return v.String()
}

// Group builds the tree for subset (or every row) over fields.
func Group(view RowView, fields []string, subset []int, opts ...Option) (*GroupNode, error) {
	cfg := applyOptions(opts)
	if len(fields) > cfg.MaxDepth {
		return nil, errors.Wrapf(ErrMaxDepth, "%d group fields, limit %d", len(fields), cfg.MaxDepth)
	}
	idx, err := workingSet(view, subset)
	if err != nil {
		return nil, err
	}
	return groupIndices(view, fields, idx, cfg), nil
}

// groupIndices builds the tree over validated indices.
func groupIndices(view RowView, fields []string, idx []int, cfg *config) *GroupNode {
	start := time.Now()

	root := newGroupNode(RootValue)
	if len(fields) == 0 {
		root.Rows = idx
	} else {
		root.Children = make(map[string]*GroupNode)
		paths := make([]Path, len(fields))
		for i, f := range fields {
			paths[i] = ParsePath(f)
		}
		// Keys are derived once per row and field.
		keys := make([]string, len(paths))
		for _, row := range idx {
			for depth, p := range paths {
				v, _ := view.Lookup(row, p)
				keys[depth] = GroupKey(v)
			}
			node := root
			for _, key := range keys {
				node = node.child(key)
			}
			node.Rows = append(node.Rows, row)
		}
	}
	countTree(root)

	cfg.Metrics.observeStage("group", start, len(idx))
	level.Debug(cfg.Logger).Log("msg", "stage complete", "stage", "group", "rows_in", len(idx), "groups", root.ChildCount)
	return root
}

// countTree is pass 2.
func countTree(n *GroupNode) {
	if n.IsLeaf() {
		n.ChildCount = len(n.Rows)
		n.RowCount = len(n.Rows)
		return
	}
	n.ChildCount = len(n.Children)
	n.RowCount = 0
	for _, c := range n.Children {
		countTree(c)
		n.RowCount += c.RowCount
	}
}

// GroupRows flattens every leaf's rows under n, children in key order.
func GroupRows(n *GroupNode) []int {
	if n == nil {
		return nil
	}
	out := make([]int, 0, n.RowCount)
	var walk func(*GroupNode)
	walk = func(node *GroupNode) {
		if node.IsLeaf() {
			out = append(out, node.Rows...)
			return
		}
		for _, k := range node.order {
			walk(node.Children[k])
		}
	}
	walk(n)
	return out
}

// AttachAggregates computes intent over every node's membership, children
// before parents.
func AttachAggregates(root *GroupNode, intent AggregateIntent, view RowView, opts ...Option) error {
	if root == nil {
		return nil
	}
	cfg := applyOptions(opts)
	start := time.Now()
	var walk func(*GroupNode) error
	walk = func(n *GroupNode) error {
		for _, k := range n.order {
			if err := walk(n.Children[k]); err != nil {
				return err
			}
		}
		values, err := aggregateIndices(view, intent, GroupRows(n))
		if err != nil {
			return err
		}
		n.Aggregates = values
		return nil
	}
	if err := walk(root); err != nil {
		return err
	}
	cfg.Metrics.observeStage("attach_aggregates", start, root.RowCount)
	return nil
}

// MarshalJSON writes the node with children in first-encounter order.
func (n *GroupNode) MarshalJSON() ([]byte, error) {
	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)
	n.writeJSON(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func (n *GroupNode) writeJSON(s *jsoniter.Stream) {
	s.WriteObjectStart()
	s.WriteObjectField("id")
	s.WriteString(n.ID)
	s.WriteMore()
	s.WriteObjectField("value")
	s.WriteString(n.Value)
	s.WriteMore()
	s.WriteObjectField("child_count")
	s.WriteInt(n.ChildCount)
	s.WriteMore()
	s.WriteObjectField("row_count")
	s.WriteInt(n.RowCount)
	s.WriteMore()
	if n.IsLeaf() {
		s.WriteObjectField("rows")
		rows := n.Rows
		if rows == nil {
			rows = []int{}
		}
		s.WriteVal(rows)
	} else {
		s.WriteObjectField("children")
		s.WriteObjectStart()
		for i, k := range n.order {
			if i > 0 {
				s.WriteMore()
			}
			s.WriteObjectField(k)
			n.Children[k].writeJSON(s)
		}
		s.WriteObjectEnd()
	}
	if n.Aggregates != nil {
		s.WriteMore()
		s.WriteObjectField("aggregates")
		s.WriteVal(n.Aggregates)
	}
	s.WriteObjectEnd()
}
