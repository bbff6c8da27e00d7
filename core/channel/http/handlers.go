package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/apigen/core/model"
	"github.com/artpar/apigen/core/registry"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
)

func (c *Channel) standardHandler(rt registry.Route) http.HandlerFunc {
	switch rt.Op {
	case model.OpFind:
		return c.handleFind(rt.Model)
	case model.OpFindByID:
		return c.handleGet(rt.Model)
	case model.OpCreate:
		return c.handleCreate(rt.Model)
	case model.OpUpdate:
		return c.handleUpdate(rt.Model)
	case model.OpDelete:
		return c.handleDelete(rt.Model)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		c.errors.Write(w, r, apierr.Internal("no handler for %s", rt.Op))
	}
}

// handleFind handles GET /api/<model>. A query with a malformed id cannot
// match anything and answers an empty list without touching storage.
func (c *Channel) handleFind(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := c.reg.Get(name)
		if !ok {
			c.errors.Write(w, r, notFound(name, ""))
			return
		}
		in := inputFrom(r)
		if !m.HasValidID(in.query) {
			writeJSON(w, http.StatusOK, []storage.Record{})
			return
		}

		res, err := m.Rest(r.Context(), model.OpFind, model.Call{Query: in.query})
		if err != nil {
			c.errors.Write(w, r, err)
			return
		}
		if res == nil {
			res = []storage.Record{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleGet handles GET /api/<model>/{id}.
func (c *Channel) handleGet(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, id, ok := c.lookup(w, r, name)
		if !ok {
			return
		}
		res, err := m.Rest(r.Context(), model.OpFindByID, model.Call{ID: id})
		if err != nil {
			c.errors.Write(w, r, err)
			return
		}
		if res == nil {
			c.errors.Write(w, r, notFound(name, id))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleCreate handles POST /api/<model>.
func (c *Channel) handleCreate(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := c.reg.Get(name)
		if !ok {
			c.errors.Write(w, r, notFound(name, ""))
			return
		}
		res, err := m.Rest(r.Context(), model.OpCreate, model.Call{Data: inputFrom(r).body})
		if err != nil {
			c.errors.Write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleUpdate handles PATCH /api/<model>/{id}.
func (c *Channel) handleUpdate(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, id, ok := c.lookup(w, r, name)
		if !ok {
			return
		}
		res, err := m.Rest(r.Context(), model.OpUpdate, model.Call{ID: id, Data: inputFrom(r).body})
		if err != nil {
			c.errors.Write(w, r, err)
			return
		}
		if res == nil {
			c.errors.Write(w, r, notFound(name, id))
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleDelete handles DELETE /api/<model>/{id}. A missing record is a
// zero count, not an error.
func (c *Channel) handleDelete(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, id, ok := c.lookup(w, r, name)
		if !ok {
			return
		}
		res, err := m.Rest(r.Context(), model.OpDelete, model.Call{ID: id})
		if err != nil {
			c.errors.Write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleEndpoint runs a custom endpoint with path parameters and body.
func (c *Channel) handleEndpoint(ep *model.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]string)
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				params[key] = rctx.URLParams.Values[i]
			}
		}

		res, err := ep.Handle(r.Context(), params, inputFrom(r).body)
		if err != nil {
			c.errors.Write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// lookup resolves the model and id of a keyed route, writing a not-found
// error when either is unusable.
func (c *Channel) lookup(w http.ResponseWriter, r *http.Request, name string) (*model.Model, string, bool) {
	m, ok := c.reg.Get(name)
	if !ok {
		c.errors.Write(w, r, notFound(name, ""))
		return nil, "", false
	}
	id := chi.URLParam(r, storage.FieldID)
	if !m.HasValidID(storage.Query{storage.FieldID: id}) {
		c.errors.Write(w, r, notFound(name, id))
		return nil, "", false
	}
	return m, id, true
}

func notFound(name, id string) error {
	if id == "" {
		return apierr.NotFound(`Resource "%s" not found.`, name)
	}
	return storage.NotFound(name, id)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
