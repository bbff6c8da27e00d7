package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/core/validation"
)

var knownOps = map[string]bool{
	"$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$ne": true, "$eq": true,
}

// toFilter translates a regularized query into a BSON filter. "id" becomes
// "_id" with hex values turned into ObjectIDs; unknown operators become $eq.
func toFilter(q storage.Query) bson.M {
	filter := make(bson.M, len(q))
	for key, value := range q {
		field := key
		conv := func(v any) any { return v }
		if key == storage.FieldID {
			field = "_id"
			conv = toObjectID
		}

		ops, isOps := validation.OperatorMap(value)
		if !isOps {
			filter[field] = conv(value)
			continue
		}

		translated := make(bson.M, len(ops))
		for op, operand := range ops {
			if !knownOps[op] {
				op = "$eq"
			}
			if op == "$in" || op == "$nin" {
				list, ok := operand.([]any)
				if !ok {
					list = []any{operand}
				}
				out := make(bson.A, len(list))
				for i, v := range list {
					out[i] = conv(v)
				}
				translated[op] = out
				continue
			}
			translated[op] = conv(operand)
		}
		filter[field] = translated
	}
	return filter
}

// toObjectID converts a hex id. Anything else is kept and simply matches
// no document.
func toObjectID(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return s
	}
	return oid
}

// toRecord turns a stored document into a record: _id becomes a hex "id",
// driver types become the engine's runtime types.
func toRecord(doc bson.M) storage.Record {
	rec := make(storage.Record, len(doc))
	for k, v := range doc {
		switch k {
		case "_id":
			if oid, ok := v.(primitive.ObjectID); ok {
				rec[storage.FieldID] = oid.Hex()
			} else {
				rec[storage.FieldID] = normalize(v)
			}
		case "__v", storage.FieldID:
		default:
			rec[k] = normalize(v)
		}
	}
	return rec
}

func normalize(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.A:
		return normalizeSlice(t)
	case []any:
		return normalizeSlice(t)
	case bson.M:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = normalize(e)
	}
	return out
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, e := range in {
		out[k] = normalize(e)
	}
	return out
}
