package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/spektr-org/perspective/engine"
	"github.com/spektr-org/perspective/helpers"
	"github.com/spektr-org/perspective/schema"
)

// ============================================================================
// OUTPUT — json, pretty, yaml, text
// ============================================================================

// uniqueOutput keeps the requested field order for text output; the JSON
// forms are the plain result map.
type uniqueOutput struct {
	fields []engine.UniqueField
	result engine.UniqueResult
}

func (a *app) write(w io.Writer, v any) error {
	payload := v
	if u, ok := v.(uniqueOutput); ok {
		payload = u.result
	}
	switch format := strings.ToLower(a.v.GetString("output.format")); format {
	case "json", "":
		return helpers.EncodeJSON(w, payload, false)
	case "pretty":
		return helpers.EncodeJSON(w, payload, true)
	case "yaml", "yml":
		return helpers.EncodeYAML(w, payload)
	case "text":
		return writeText(w, v)
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch t := v.(type) {
	case *engine.Perspective:
		textPerspective(tw, t)
	case uniqueOutput:
		textUnique(tw, t)
	case *schema.Config:
		textSchema(tw, t)
	case []durationLine:
		for _, d := range t {
			fmt.Fprintf(tw, "%s\t%s\n", d.ISO, d.Duration)
		}
	default:
		return errors.Errorf("no text form for %T", v)
	}
	return tw.Flush()
}

func textPerspective(w io.Writer, p *engine.Perspective) {
	switch p.Kind {
	case engine.ResultGroup:
		textGroup(w, p.Group, 0)
	case engine.ResultAggregates:
		textAggregates(w, p.Aggregates, "")
	default:
		fmt.Fprintf(w, "%s rows\n", humanize.Comma(int64(len(p.Rows))))
		for _, r := range p.Rows {
			fmt.Fprintf(w, "  %d\n", r)
		}
	}
}

func textGroup(w io.Writer, n *engine.GroupNode, depth int) {
	pad := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s%s\t%s rows\n", pad, n.Value, humanize.Comma(int64(n.RowCount)))
	textAggregates(w, n.Aggregates, pad+"  ")
	for _, k := range n.Keys() {
		textGroup(w, n.Child(k), depth+1)
	}
}

func textAggregates(w io.Writer, values []engine.AggregateValue, pad string) {
	for _, a := range values {
		fmt.Fprintf(w, "%s%s(%s)\t%s\n", pad, a.Agg, a.Field, textValue(a.Value))
	}
}

func textUnique(w io.Writer, u uniqueOutput) {
	for _, f := range u.fields {
		values := u.result[f.Field]
		fmt.Fprintf(w, "%s (%s)\t%s distinct\n", f.Field, f.Type, humanize.Comma(int64(len(values))))
		for _, uv := range values {
			fmt.Fprintf(w, "  %s\t%s\n", textValue(uv.Value), humanize.Comma(int64(uv.Count)))
		}
	}
}

func textSchema(w io.Writer, c *schema.Config) {
	fmt.Fprintf(w, "%s\t%s rows\t%d fields\n", c.Name, humanize.Comma(int64(c.Rows)), len(c.Fields))
	for _, f := range c.Fields {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s distinct\t%s\n", f.Key, f.Type, f.CardinalityHint,
			humanize.Comma(int64(f.UniqueCount)), strings.Join(f.Aggregations, ","))
	}
	for _, s := range c.Skipped {
		fmt.Fprintf(w, "  %s\tskipped\t%s\n", s.Field, s.Reason)
	}
}

// textValue prints floats with thousands separators and everything else in
// its natural string form.
func textValue(v engine.Value) string {
	switch v.Kind() {
	case engine.KindNull:
		return "null"
	case engine.KindInt:
		i, _ := v.AsInt()
		return humanize.Comma(i)
	case engine.KindFloat:
		f, _ := v.AsFloat()
		return humanize.Commaf(f)
	case engine.KindArray:
		items, _ := v.AsArray()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = textValue(item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return v.String()
}
