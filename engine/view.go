package engine

// ============================================================================
// ROW VIEW — Zero-Copy Row Access Interface
// ============================================================================
// The engine never owns caller data. It reads through this interface and
// passes row indices between stages.
//
// Implementations:
//   SliceView      wraps []Value rows (decoded JSON/YAML, ad-hoc)
//   DomainView[T]  reads typed structs via accessor functions (zero-copy)
//
// A view must not change while a call is reading it.
// ============================================================================

// RowView provides indexed access to a row collection.
// The engine calls Lookup in tight loops; keep implementations fast.
type RowView interface {
	Len() int
	// Lookup resolves p on row i. The bool is false when the field is missing.
	Lookup(i int, p Path) (Value, bool)
	// Keys lists the top-level field names of row i.
	Keys(i int) []string
}

// ============================================================================
// SLICE VIEW — wraps []Value
// ============================================================================

// SliceView wraps a slice of object Values as a RowView.
type SliceView struct {
	rows []Value
}

// NewSliceView creates a RowView over rows. Non-object rows resolve every
// path to missing.
func NewSliceView(rows []Value) *SliceView {
	return &SliceView{rows: rows}
}

func (v *SliceView) Len() int { return len(v.rows) }

func (v *SliceView) Lookup(i int, p Path) (Value, bool) {
	if i < 0 || i >= len(v.rows) {
		return Null(), false
	}
	return p.Lookup(v.rows[i])
}

func (v *SliceView) Keys(i int) []string {
	if i < 0 || i >= len(v.rows) {
		return nil
	}
	return v.rows[i].Keys()
}

// Row returns row i.
func (v *SliceView) Row(i int) Value {
	if i < 0 || i >= len(v.rows) {
		return Null()
	}
	return v.rows[i]
}

// ============================================================================
// DOMAIN ADAPTER — Zero-copy typed struct access
// ============================================================================
//
// Usage:
//
//	adapter := engine.NewDomainAdapter[Ticket]().
//	    Field("status", func(t Ticket) engine.Value { return engine.String(t.Status) }).
//	    Field("elapsed", func(t Ticket) engine.Value { return engine.String(t.ElapsedISO) })
//
//	view := adapter.Bind(tickets)
//	rows, _ := engine.Filter(view, expr)
//
// The first path segment selects the accessor; remaining segments walk into
// the Value it returns.
// ============================================================================

// DomainAdapter builds a RowView from typed structs.
// Declare once, bind many times.
type DomainAdapter[T any] struct {
	order  []string
	fields map[string]func(T) Value
}

// NewDomainAdapter creates a new adapter for type T.
func NewDomainAdapter[T any]() *DomainAdapter[T] {
	return &DomainAdapter[T]{
		fields: make(map[string]func(T) Value),
	}
}

// Field registers a field accessor.
func (a *DomainAdapter[T]) Field(name string, fn func(T) Value) *DomainAdapter[T] {
	if _, exists := a.fields[name]; !exists {
		a.order = append(a.order, name)
	}
	a.fields[name] = fn
	return a
}

// Bind creates a RowView from a data slice. Zero-copy: holds a reference.
func (a *DomainAdapter[T]) Bind(data []T) *DomainView[T] {
	return &DomainView[T]{
		data:   data,
		fields: a.fields,
		keys:   a.order,
	}
}

// DomainView reads typed struct fields via registered accessor functions.
type DomainView[T any] struct {
	data   []T
	fields map[string]func(T) Value
	keys   []string
}

func (v *DomainView[T]) Len() int { return len(v.data) }

func (v *DomainView[T]) Lookup(i int, p Path) (Value, bool) {
	if i < 0 || i >= len(v.data) || len(p) == 0 {
		return Null(), false
	}
	fn, ok := v.fields[p[0]]
	if !ok {
		return Null(), false
	}
	val := fn(v.data[i])
	if len(p) == 1 {
		return val, true
	}
	return p[1:].Lookup(val)
}

func (v *DomainView[T]) Keys(int) []string { return v.keys }

// ============================================================================
// INDEX HELPERS
// ============================================================================

// workingSet validates subset against view and returns the indices to read.
// An empty subset means every row.
func workingSet(view RowView, subset []int) ([]int, error) {
	n := view.Len()
	if len(subset) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, idx := range subset {
		if idx < 0 || idx >= n {
			return nil, &RangeError{Index: idx, Len: n}
		}
	}
	out := make([]int, len(subset))
	copy(out, subset)
	return out, nil
}
