package sqlite

import (
	"sort"
	"strconv"
	"strings"

	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/core/validation"
)

// buildWhere translates a regularized query into a WHERE clause. The
// clause is empty for an empty query. Semantics follow storage.Match: an
// absent (NULL) column satisfies $ne and $nin and fails everything else.
func buildWhere(s schema.Schema, q storage.Query) (string, []any) {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		conds []string
		args  []any
	)
	for _, key := range keys {
		t := s[key].Type
		col := quote(key)
		value := q[key]

		ops, isOps := validation.OperatorMap(value)
		if !isOps {
			if value == nil {
				conds = append(conds, col+" IS NULL")
				continue
			}
			conds = append(conds, col+" = ?")
			args = append(args, encodeFor(key, t, value))
			continue
		}

		names := make([]string, 0, len(ops))
		for op := range ops {
			names = append(names, op)
		}
		sort.Strings(names)

		for _, op := range names {
			cond, opArgs := buildOp(key, t, op, ops[op])
			conds = append(conds, cond)
			args = append(args, opArgs...)
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func buildOp(key string, t schema.FieldType, op string, operand any) (string, []any) {
	col := quote(key)

	switch op {
	case "$gt", "$gte", "$lt", "$lte":
		if !orderable(key, t, operand) {
			return "0", nil
		}
		sqlOp := map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}[op]
		return col + " " + sqlOp + " ?", []any{encodeFor(key, t, operand)}
	case "$in", "$nin":
		list, ok := operand.([]any)
		if !ok {
			list = []any{operand}
		}
		if len(list) == 0 {
			if op == "$in" {
				return "0", nil
			}
			return "1", nil
		}
		args := make([]any, len(list))
		for i, v := range list {
			args[i] = encodeFor(key, t, v)
		}
		in := col + " IN (" + placeholders(len(list)) + ")"
		if op == "$in" {
			return in, args
		}
		return "(" + col + " IS NULL OR NOT " + in + ")", args
	case "$ne":
		return "(" + col + " IS NULL OR " + col + " <> ?)", []any{encodeFor(key, t, operand)}
	default:
		// $eq and anything unrecognized.
		return col + " = ?", []any{encodeFor(key, t, operand)}
	}
}

// orderable reports whether operand has the runtime type of the column,
// so SQLite's cross-type ordering never leaks into results.
func orderable(key string, t schema.FieldType, operand any) bool {
	if key == storage.FieldID {
		_, ok := validation.Float(operand)
		return ok
	}
	switch t {
	case schema.FieldTypeNumber, schema.FieldTypeString, schema.FieldTypeDate:
		return validation.Matches(operand, t)
	}
	return false
}

func encodeFor(key string, t schema.FieldType, v any) any {
	if key == storage.FieldID {
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		if f, ok := validation.Float(v); ok && f == float64(int64(f)) {
			return int64(f)
		}
		return v
	}
	return encode(t, v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
