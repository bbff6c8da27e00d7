package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
)

// maxBodyBytes bounds request bodies read by the channel.
const maxBodyBytes = 1 << 20

// input is the sanitized request payload.
type input struct {
	query storage.Query
	body  map[string]any
}

type inputKey struct{}

func inputFrom(r *http.Request) *input {
	if in, ok := r.Context().Value(inputKey{}).(*input); ok {
		return in
	}
	return &input{query: storage.Query{}, body: map[string]any{}}
}

// sanitizeInput parses the query string and JSON body, removes keys that
// look like query operators, and strips client-supplied ids from the body.
func (c *Channel) sanitizeInput(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(r)
		if err != nil {
			c.errors.Write(w, r, err)
			return
		}

		in := &input{
			query: sanitizeQuery(r.URL.Query()),
			body:  stripInviolables(sanitizeMap(body)),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), inputKey{}, in)))
	})
}

// decodeBody reads a JSON object body. An empty body is an empty object.
func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return map[string]any{}, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apierr.BadRequest("read body: %v", err)
	}
	if len(data) > maxBodyBytes {
		return nil, apierr.BadRequest("request body too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return nil, apierr.BadRequest("invalid JSON at offset %d", syntax.Offset)
		}
		return nil, apierr.BadRequest("invalid JSON: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, apierr.BadRequest("request body must be a JSON object")
	}
	return obj, nil
}

// sanitizeQuery flattens query parameters into equality predicates. The
// first value of a repeated parameter wins. Operator-looking keys are
// dropped, so operators can never arrive over the query string.
func sanitizeQuery(values map[string][]string) storage.Query {
	q := make(storage.Query, len(values))
	for key, vals := range values {
		if len(vals) == 0 || isOperatorKey(key) {
			continue
		}
		q[key] = vals[0]
	}
	return q
}

// isOperatorKey matches "$op" keys and bracketed forms such as "a[$gt]".
func isOperatorKey(key string) bool {
	return strings.HasPrefix(key, "$") || strings.Contains(key, "[$")
}

// sanitizeMap returns a copy of m with every "$"-prefixed key removed, at
// any depth.
func sanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.HasPrefix(k, "$") {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return sanitizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}

// stripInviolables removes client-supplied identifiers from a write body.
func stripInviolables(body map[string]any) map[string]any {
	delete(body, storage.FieldID)
	delete(body, "_id")
	return body
}
