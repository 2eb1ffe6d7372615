package engine

import (
	"strconv"
	"strings"

	"github.com/grafana/regexp"
	"github.com/pkg/errors"
)

// ============================================================================
// DURATIONS — ISO-8601 "PnYnMnDTnHnMnS"
// ============================================================================
// Seconds use a fixed calendar: 30-day months, 12-month (360-day) years.
// Sum and average of durations depend on it, so it must not become
// calendar-accurate.
// ============================================================================

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	daysPerMonth     = 30
	daysPerYear      = 12 * daysPerMonth
)

// ZeroDuration is the literal used for null durations.
const ZeroDuration = "PT0S"

var durationRE = regexp.MustCompile(
	`^P(?:(\d+(?:[.,]\d+)?)Y)?(?:(\d+(?:[.,]\d+)?)M)?(?:(\d+(?:[.,]\d+)?)D)?` +
		`(?:T(?:(\d+(?:[.,]\d+)?)H)?(?:(\d+(?:[.,]\d+)?)M)?(?:(\d+(?:[.,]\d+)?)S)?)?$`)

// Duration holds the components of an ISO-8601 duration as written.
type Duration struct {
	Years   float64
	Months  float64
	Days    float64
	Hours   float64
	Minutes float64
	Seconds float64
}

// ParseDuration parses the ISO-8601 subset PnYnMnDTnHnMnS.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	m := durationRE.FindStringSubmatch(s)
	if m == nil {
		return Duration{}, &DurationParseError{Input: s, Reason: "does not match PnYnMnDTnHnMnS"}
	}
	if s == "P" || strings.HasSuffix(s, "T") {
		return Duration{}, &DurationParseError{Input: s, Reason: "no components"}
	}
	var parts [6]float64
	for i, lit := range m[1:] {
		if lit == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.Replace(lit, ",", ".", 1), 64)
		if err != nil {
			return Duration{}, &DurationParseError{Input: s, Reason: err.Error()}
		}
		parts[i] = f
	}
	return Duration{
		Years:   parts[0],
		Months:  parts[1],
		Days:    parts[2],
		Hours:   parts[3],
		Minutes: parts[4],
		Seconds: parts[5],
	}, nil
}

// DurationOf parses a Value holding a duration literal. Null is PT0S.
func DurationOf(v Value) (Duration, error) {
	switch v.Kind() {
	case KindNull:
		return Duration{}, nil
	case KindString:
		return ParseDuration(v.s)
	}
	return Duration{}, &DurationParseError{Input: v.String(), Reason: "not a string"}
}

func (d Duration) components() [6]float64 {
	return [6]float64{d.Years, d.Months, d.Days, d.Hours, d.Minutes, d.Seconds}
}

// TotalSeconds converts d using 30-day months and 360-day years.
func (d Duration) TotalSeconds() float64 {
	days := d.Years*daysPerYear + d.Months*daysPerMonth + d.Days
	return days*secondsPerDay + d.Hours*secondsPerHour + d.Minutes*secondsPerMinute + d.Seconds
}

// Format renders "day:hour:minute:second", folding years and months into days.
func (d Duration) Format() string {
	days := d.Years*daysPerYear + d.Months*daysPerMonth + d.Days
	return strings.Join([]string{
		formatFloat(days),
		formatFloat(d.Hours),
		formatFloat(d.Minutes),
		formatFloat(d.Seconds),
	}, ":")
}

// ParseClock reads the "day:hour:minute:second" form produced by Format.
func ParseClock(s string) (Duration, error) {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) != 4 {
		return Duration{}, &DurationParseError{Input: s, Reason: "want day:hour:minute:second"}
	}
	var parts [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil || n < 0 {
			return Duration{}, &DurationParseError{Input: s, Reason: "component " + strconv.Itoa(i) + " is not a non-negative number"}
		}
		parts[i] = n
	}
	return Duration{Days: parts[0], Hours: parts[1], Minutes: parts[2], Seconds: parts[3]}, nil
}

// ============================================================================
// PLACEMENT
// ============================================================================

// Placement is an ordering verdict of one value against a reference.
type Placement int

const (
	Before Placement = iota
	After
)

func (p Placement) String() string {
	if p == Before {
		return "before"
	}
	return "after"
}

// Place compares components year→second. The first unequal component
// decides: a larger evaluate is Before, a smaller one After. Identical
// durations are After.
func Place(reference, evaluate Duration) Placement {
	ref, ev := reference.components(), evaluate.components()
	for i := range ref {
		if ev[i] != ref[i] {
			if ev[i] > ref[i] {
				return Before
			}
			return After
		}
	}
	return After
}

// PlaceISO is Place over duration literals. Null operands are PT0S.
func PlaceISO(reference, evaluate Value) (Placement, error) {
	ref, err := DurationOf(reference)
	if err != nil {
		return After, err
	}
	ev, err := DurationOf(evaluate)
	if err != nil {
		return After, err
	}
	return Place(ref, ev), nil
}

// ============================================================================
// DISPLAY CONVERSION
// ============================================================================

// ISO8601ToString converts a duration literal to "day:hour:minute:second".
func ISO8601ToString(iso string) (string, error) {
	d, err := ParseDuration(iso)
	if err != nil {
		return "", err
	}
	return d.Format(), nil
}

// ISO8601ToStringBatch converts every element. With an empty path each element
// is a duration literal; otherwise each element is an object row and path is
// rewritten on a copy. Rows missing path are returned unchanged. Null
// durations format as PT0S.
func ISO8601ToStringBatch(values []Value, path string) ([]Value, error) {
	out := make([]Value, len(values))
	p := ParsePath(path)
	for i, v := range values {
		if len(p) == 0 {
			s, err := formatDurationValue(v)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			out[i] = String(s)
			continue
		}
		field, ok := p.Lookup(v)
		if !ok {
			out[i] = v
			continue
		}
		s, err := formatDurationValue(field)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d field %s", i, path)
		}
		out[i] = withPath(v, p, String(s))
	}
	return out, nil
}

func formatDurationValue(v Value) (string, error) {
	d, err := DurationOf(v)
	if err != nil {
		return "", err
	}
	return d.Format(), nil
}

// withPath returns a copy of row with p set to val. Containers along the
// path are copied; the rest is shared.
func withPath(row Value, p Path, val Value) Value {
	if len(p) == 0 {
		return val
	}
	switch row.kind {
	case KindObject:
		fields := make(map[string]Value, len(row.obj))
		for k, v := range row.obj {
			fields[k] = v
		}
		fields[p[0]] = withPath(row.obj[p[0]], p[1:], val)
		return Object(fields)
	case KindArray:
		idx, err := strconv.Atoi(p[0])
		if err != nil || idx < 0 || idx >= len(row.arr) {
			return row
		}
		items := make([]Value, len(row.arr))
		copy(items, row.arr)
		items[idx] = withPath(row.arr[idx], p[1:], val)
		return Array(items...)
	}
	return row
}
