package engine

import (
	"bytes"
	"encoding/json"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupData(t *testing.T) {
	root, err := GroupData(Array(String("value"), String("isActive")), scenarioView(), nil)
	require.NoError(t, err)

	assert.Equal(t, RootValue, root.Value)
	assert.Equal(t, 3, root.ChildCount)
	assert.Equal(t, 5, root.RowCount)
	assert.Equal(t, []string{"10", "20", "5"}, root.Keys())
	assert.Equal(t, 2, root.Child("10").ChildCount)
	assert.Equal(t, 2, root.Child("20").Child("true").ChildCount)
	assert.Equal(t, []int{2, 3}, root.Child("20").Child("true").Rows)
	assert.Equal(t, []int{4}, root.Child("5").Child("false").Rows)
	assert.Nil(t, root.Child("20").Child("false"))
	assert.NotEmpty(t, root.ID)
	assert.NotEqual(t, root.ID, root.Child("10").ID)
}

func TestGroupInvariants(t *testing.T) {
	view := NewSliceView([]Value{
		obj("a", "x", "b", 1, "c", true),
		obj("a", "y", "b", 1, "c", false),
		obj("a", "x", "b", 2),
		obj("a", nil, "b", 2, "c", true),
		obj("b", 1.5, "c", true),
		obj("a", "x", "b", 1, "c", true),
		obj("a", "y", "b", 3, "c", false),
	})
	for _, subset := range [][]int{nil, {6, 0, 3}, {2}} {
		root, err := Group(view, []string{"a", "b", "c"}, subset)
		require.NoError(t, err)

		want := subset
		if want == nil {
			want = []int{0, 1, 2, 3, 4, 5, 6}
		}
		got := GroupRows(root)
		assert.ElementsMatch(t, want, got, "every row lands in exactly one leaf")
		checkCounts(t, root)
	}
}

// checkCounts asserts the count invariants and that a node has children or
// rows, never both.
func checkCounts(t *testing.T, n *GroupNode) int {
	t.Helper()
	if n.IsLeaf() {
		assert.Empty(t, n.Children)
		assert.Equal(t, len(n.Rows), n.RowCount, n.Value)
		assert.Equal(t, len(n.Rows), n.ChildCount, n.Value)
		return n.RowCount
	}
	assert.Nil(t, n.Rows, n.Value)
	assert.Equal(t, len(n.Children), n.ChildCount, n.Value)
	sum := 0
	for _, k := range n.Keys() {
		sum += checkCounts(t, n.Children[k])
	}
	assert.Equal(t, sum, n.RowCount, n.Value)
	return n.RowCount
}

func TestGroupNullKeysAsNone(t *testing.T) {
	view := NewSliceView([]Value{obj("a", nil), obj("b", 1), obj("a", 2.5), obj("a", false)})
	root, err := Group(view, []string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{NoneKey, "2.5", "false"}, root.Keys())
	assert.Equal(t, []int{0, 1}, root.Child(NoneKey).Rows)
}

func TestGroupLeafOrderFollowsInput(t *testing.T) {
	view := scenarioView()
	sorted, err := Sort(view, []SortKey{{Field: "code", Direction: Descending}}, nil)
	require.NoError(t, err)
	root, err := Group(view, []string{"value"}, sorted)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "20", "10"}, root.Keys())
	assert.Equal(t, []int{3, 2}, root.Child("20").Rows)
	assert.Equal(t, []int{4, 3, 2, 1, 0}, GroupRows(root))
}

func TestGroupEdgeCases(t *testing.T) {
	root, err := Group(NewSliceView(nil), []string{"a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, root.ChildCount)
	assert.Equal(t, 0, root.RowCount)
	assert.Empty(t, GroupRows(root))

	root, err = Group(scenarioView(), nil, []int{1, 2})
	require.NoError(t, err)
	assert.True(t, root.IsLeaf())
	assert.Equal(t, []int{1, 2}, root.Rows)

	_, err = Group(scenarioView(), []string{"a", "b", "c"}, nil, WithMaxDepth(2))
	require.ErrorIs(t, err, ErrMaxDepth)

	_, err = Group(scenarioView(), []string{"value"}, []int{-1})
	assert.True(t, IsOutOfRange(err))

	_, err = GroupData(Array(Int(1)), scenarioView(), nil)
	assert.True(t, IsMalformedIntent(err))
}

func TestAttachAggregates(t *testing.T) {
	view := scenarioView()
	root, err := Group(view, []string{"isActive"}, nil)
	require.NoError(t, err)
	intent := AggregateIntent{{Kind: AggSum, Field: "value"}, {Kind: AggMax, Field: "value"}}
	require.NoError(t, AttachAggregates(root, intent, view))

	sums := map[string]int64{}
	var walk func(*GroupNode)
	walk = func(n *GroupNode) {
		require.Len(t, n.Aggregates, 2, n.Value)
		sums[n.Value] = mustInt(t, n.Aggregates[0].Value)
		for _, k := range n.Keys() {
			walk(n.Children[k])
		}
	}
	walk(root)
	assert.Equal(t, map[string]int64{RootValue: 65, "true": 50, "false": 15}, sums)
	assert.Equal(t, int64(20), mustInt(t, root.Child("true").Aggregates[1].Value))
	assert.Equal(t, int64(10), mustInt(t, root.Child("false").Aggregates[1].Value))
}

func TestGroupNodeJSON(t *testing.T) {
	root, err := Group(scenarioView(), []string{"isActive", "code"}, []int{0, 1, 4})
	require.NoError(t, err)
	b, err := json.Marshal(root)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	stripIDs(decoded)

	want := map[string]any{
		"value": "root", "child_count": 2.0, "row_count": 3.0,
		"children": map[string]any{
			"true": map[string]any{
				"value": "true", "child_count": 1.0, "row_count": 1.0,
				"children": map[string]any{
					"A": map[string]any{"value": "A", "child_count": 1.0, "row_count": 1.0, "rows": []any{0.0}},
				},
			},
			"false": map[string]any{
				"value": "false", "child_count": 2.0, "row_count": 2.0,
				"children": map[string]any{
					"B": map[string]any{"value": "B", "child_count": 1.0, "row_count": 1.0, "rows": []any{1.0}},
					"E": map[string]any{"value": "E", "child_count": 1.0, "row_count": 1.0, "rows": []any{4.0}},
				},
			},
		},
	}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Fatalf("group json mismatch (-want +got):\n%s", diff)
	}

	// Children are written in first-encounter order.
	keys := childKeyOrder(t, b)
	assert.Equal(t, []string{"true", "false"}, keys)
}

func stripIDs(node map[string]any) {
	delete(node, "id")
	if children, ok := node["children"].(map[string]any); ok {
		for _, c := range children {
			stripIDs(c.(map[string]any))
		}
	}
}

func childKeyOrder(t *testing.T, b []byte) []string {
	t.Helper()
	var top struct {
		Children json.RawMessage `json:"children"`
	}
	require.NoError(t, json.Unmarshal(b, &top))
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(top.Children, &raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	// Order by position in the encoded object.
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Index(top.Children, []byte(`"`+keys[i]+`":`)) < bytes.Index(top.Children, []byte(`"`+keys[j]+`":`))
	})
	return keys
}
