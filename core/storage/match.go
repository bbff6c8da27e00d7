package storage

import (
	"reflect"
	"strconv"
	"time"

	"github.com/artpar/apigen/core/validation"
)

// Match reports whether rec satisfies every predicate of q. Used by
// adapters that filter in process.
func Match(rec Record, q Query) bool {
	for key, want := range q {
		got, present := rec[key]
		if ops, ok := validation.OperatorMap(want); ok {
			for op, operand := range ops {
				if !matchOp(got, present, op, operand) {
					return false
				}
			}
			continue
		}
		if !present || !Equal(got, want) {
			return false
		}
	}
	return true
}

func matchOp(got any, present bool, op string, operand any) bool {
	switch op {
	case "$ne":
		return !present || !Equal(got, operand)
	case "$in":
		return present && inList(got, operand)
	case "$nin":
		return !present || !inList(got, operand)
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false
		}
		c, ok := Compare(got, operand)
		if !ok {
			return false
		}
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	default:
		// $eq and anything unrecognized.
		return present && Equal(got, operand)
	}
}

func inList(v, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return Equal(v, list)
	}
	for _, item := range items {
		if Equal(v, item) {
			return true
		}
	}
	return false
}

// Equal compares two field values. Numbers compare by value regardless of
// Go type, times by instant, maps and slices structurally.
func Equal(a, b any) bool {
	if fa, ok := validation.Float(a); ok {
		fb, ok := validation.Float(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	switch a.(type) {
	case map[string]any, []any:
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// Compare orders two numbers, two times or two strings. ok is false for
// any other pairing.
func Compare(a, b any) (int, bool) {
	if fa, ok := validation.Float(a); ok {
		fb, ok := validation.Float(b)
		if !ok {
			return 0, false
		}
		return cmp(fa < fb, fa > fb), true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return cmp(ta.Before(tb), ta.After(tb)), true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return cmp(sa < sb, sa > sb), true
	}
	return 0, false
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}

// IDString formats an adapter-native id for paths and messages.
func IDString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	}
	if f, ok := validation.Float(v); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return ""
}
