// Package perspective is an embeddable in-memory query engine for rows of
// loosely typed values. Perspective, in short: the same rows seen through a
// filter, a sort, a grouping or an aggregate.
//
// Usage:
//
//	import "github.com/spektr-org/perspective/engine"
//
//	view := engine.NewSliceView(rows)
//	p, err := engine.BuildPerspective(intent, view, nil,
//	    engine.WithLogger(logger),
//	    engine.WithMaxDepth(32),
//	)
//
// The engine takes an intent (filter, fuzzy_filter, sort, group, aggregates)
// and a row view, and returns row indices, a group tree, or aggregate values.
// It never copies rows and never reaches outside the process.
//
// Decoding JSON or YAML into engine values is handled by the helpers package;
// field discovery and intent validation by the schema package. The server
// package and cmd/perspective expose the same operations over HTTP and the
// command line.
package perspective
