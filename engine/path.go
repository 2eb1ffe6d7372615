package engine

import (
	"strconv"
	"strings"
)

// Path is a dotted field path split into segments. A numeric segment indexes
// into an array.
type Path []string

// ParsePath splits "person.address.city" into segments.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

func (p Path) String() string { return strings.Join(p, ".") }

// Lookup walks the path from row. The bool is false when any segment is
// missing; a present field holding null returns (Null, true).
func (p Path) Lookup(row Value) (Value, bool) {
	if len(p) == 0 {
		return Null(), false
	}
	cur := row
	for _, seg := range p {
		switch cur.kind {
		case KindObject:
			next, ok := cur.obj[seg]
			if !ok {
				return Null(), false
			}
			cur = next
		case KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return Null(), false
			}
			cur = cur.arr[idx]
		default:
			return Null(), false
		}
	}
	return cur, true
}

// Resolve returns the value at a plain or dotted path, or Null when any
// segment is missing. It never fails.
func Resolve(row Value, path string) Value {
	v, _ := ParsePath(path).Lookup(row)
	return v
}
