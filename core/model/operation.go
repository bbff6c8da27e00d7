package model

import (
	"context"
	"time"

	"github.com/artpar/apigen/core/hooks"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
	"github.com/artpar/apigen/pkg/deepcopy"
)

// Op names one of the eight CRUD operations.
type Op string

const (
	OpFind       Op = "find"
	OpFindOne    Op = "findOne"
	OpFindByID   Op = "findById"
	OpCreate     Op = "create"
	OpUpdate     Op = "update"
	OpUpdateMany Op = "updateMany"
	OpDelete     Op = "delete"
	OpDeleteMany Op = "deleteMany"
)

// operation describes how an Op is wrapped.
type operation struct {
	op Op

	// event is the hook event run around the call. Empty means the call
	// goes straight to the adapter.
	event hooks.Event

	// isNew is reported to save hooks.
	isNew bool

	// keyed operations address one record by id.
	keyed bool

	// returnsRecords results are filtered of hidden fields by Rest.
	returnsRecords bool
}

var operations = map[Op]operation{
	OpFind:       {op: OpFind, event: hooks.Find, returnsRecords: true},
	OpFindOne:    {op: OpFindOne, event: hooks.Find, returnsRecords: true},
	OpFindByID:   {op: OpFindByID, event: hooks.Find, keyed: true, returnsRecords: true},
	OpCreate:     {op: OpCreate, event: hooks.Save, isNew: true, returnsRecords: true},
	OpUpdate:     {op: OpUpdate, event: hooks.Save, keyed: true, returnsRecords: true},
	OpUpdateMany: {op: OpUpdateMany},
	OpDelete:     {op: OpDelete, event: hooks.Delete, keyed: true},
	OpDeleteMany: {op: OpDeleteMany},
}

// Ops lists every operation in table order.
func Ops() []Op {
	return []Op{OpFind, OpFindOne, OpFindByID, OpCreate, OpUpdate, OpUpdateMany, OpDelete, OpDeleteMany}
}

// Call carries the arguments of one operation. Which fields are read
// depends on the operation: ID for findById/update/delete, Query for
// find/findOne/updateMany/deleteMany, Data for create/update/updateMany.
type Call struct {
	ID    string
	Query storage.Query
	Data  storage.Record
}

func (c Call) clone() Call {
	return Call{
		ID:    c.ID,
		Query: deepcopy.Map(c.Query),
		Data:  deepcopy.Map(c.Data),
	}
}

// Context is the state threaded through one hook pipeline run. Before
// hooks may rewrite Query and Data; the rewritten values become the
// adapter call's arguments. After hooks see the adapter's result in Data
// and may replace it.
type Context struct {
	ModelName string
	Model     *Model
	Method    Op
	IsNew     bool
	TraceID   string

	// Query is the find predicate, or {"id": id} for keyed operations.
	Query storage.Query

	// Data is the write payload before the call and the result after it.
	Data any

	// State is scratch space shared by the hooks of one call.
	State map[string]any
}

// Record returns Data as a record, or nil when it holds something else.
func (c *Context) Record() storage.Record {
	rec, _ := c.Data.(storage.Record)
	return rec
}

// Invoke runs op with the model's hooks and returns its raw result: a
// storage.Record, []storage.Record, storage.Count or nil.
func (m *Model) Invoke(ctx context.Context, op Op, call Call) (any, error) {
	desc, ok := operations[op]
	if !ok {
		return nil, apierr.Usage("unknown operation %q", op)
	}

	start := time.Now()
	traceID := m.ids.New()
	res, status, err := m.invoke(ctx, desc, call.clone(), traceID)
	elapsed := time.Since(start)

	if m.recorder != nil {
		m.recorder.ObserveOperation(m.name, string(op), status, elapsed)
	}
	ev := m.log.Debug().
		Str("model", m.name).
		Str("operation", string(op)).
		Str("trace_id", traceID).
		Dur("duration", elapsed)
	if err != nil {
		ev = ev.Err(err).Str("status", status)
	}
	ev.Msg("model operation")

	return res, err
}

// Operation outcomes reported to the Recorder.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusRejected = "rejected"
)

func (m *Model) invoke(ctx context.Context, desc operation, call Call, traceID string) (any, string, error) {
	if desc.event == "" {
		res, err := m.exec(ctx, desc.op, call)
		return res, outcome(err), err
	}

	hc := &Context{
		ModelName: m.name,
		Model:     m,
		Method:    desc.op,
		IsNew:     desc.isNew,
		TraceID:   traceID,
		Query:     queryContext(desc, call),
		Data:      dataContext(desc, call),
		State:     make(map[string]any),
	}

	if err := hooks.Run(ctx, hc, m.hooks.List(hooks.Key{Phase: hooks.Before, Event: desc.event})); err != nil {
		return nil, StatusRejected, err
	}

	call, err := applyContext(desc, call, hc)
	if err != nil {
		return nil, StatusError, err
	}

	res, err := m.exec(ctx, desc.op, call)
	if err != nil {
		return nil, StatusError, err
	}

	hc.Data = res
	if err := hooks.Run(ctx, hc, m.hooks.List(hooks.Key{Phase: hooks.After, Event: desc.event})); err != nil {
		return nil, StatusRejected, err
	}
	return hc.Data, StatusOK, nil
}

func outcome(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

func queryContext(desc operation, call Call) storage.Query {
	if desc.keyed {
		return storage.Query{storage.FieldID: call.ID}
	}
	if call.Query == nil {
		return storage.Query{}
	}
	return call.Query
}

func dataContext(desc operation, call Call) any {
	if desc.op == OpCreate || desc.op == OpUpdate {
		if call.Data == nil {
			return storage.Record{}
		}
		return call.Data
	}
	return nil
}

// applyContext turns what the before hooks left in hc back into call
// arguments.
func applyContext(desc operation, call Call, hc *Context) (Call, error) {
	if desc.keyed {
		if v, ok := hc.Query[storage.FieldID]; ok {
			call.ID = storage.IDString(v)
		}
	} else {
		call.Query = hc.Query
	}

	if desc.op == OpCreate || desc.op == OpUpdate {
		switch data := hc.Data.(type) {
		case nil:
			call.Data = storage.Record{}
		case storage.Record:
			call.Data = data
		default:
			return call, apierr.Internal("before %s hook left data of type %T", desc.event, hc.Data)
		}
	}
	return call, nil
}

// exec calls the adapter. Records are normalized so a miss is an untyped
// nil.
func (m *Model) exec(ctx context.Context, op Op, call Call) (any, error) {
	switch op {
	case OpFind, OpFindOne, OpFindByID:
		f, ok := m.coll.(storage.Finder)
		if !ok {
			return nil, m.unsupported(op)
		}
		switch op {
		case OpFind:
			recs, err := f.Find(ctx, call.Query)
			if err != nil {
				return nil, err
			}
			if recs == nil {
				recs = []storage.Record{}
			}
			return recs, nil
		case OpFindOne:
			return record(f.FindOne(ctx, call.Query))
		default:
			return record(f.FindByID(ctx, call.ID))
		}
	case OpCreate:
		c, ok := m.coll.(storage.Creator)
		if !ok {
			return nil, m.unsupported(op)
		}
		return record(c.Create(ctx, call.Data))
	case OpUpdate:
		u, ok := m.coll.(storage.Updater)
		if !ok {
			return nil, m.unsupported(op)
		}
		return record(u.Update(ctx, call.ID, call.Data))
	case OpUpdateMany:
		u, ok := m.coll.(storage.BulkUpdater)
		if !ok {
			return nil, m.unsupported(op)
		}
		return count(u.UpdateMany(ctx, call.Query, call.Data))
	case OpDelete:
		d, ok := m.coll.(storage.Deleter)
		if !ok {
			return nil, m.unsupported(op)
		}
		return count(d.Delete(ctx, call.ID))
	case OpDeleteMany:
		d, ok := m.coll.(storage.BulkDeleter)
		if !ok {
			return nil, m.unsupported(op)
		}
		return count(d.DeleteMany(ctx, call.Query))
	}
	return nil, apierr.Usage("unknown operation %q", op)
}

func (m *Model) unsupported(op Op) error {
	return apierr.Unsupported("%s is not supported by adapter %s", op, m.adapter.Name())
}

func record(rec storage.Record, err error) (any, error) {
	if err != nil || rec == nil {
		return nil, err
	}
	return rec, nil
}

func count(c storage.Count, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Rest is Invoke for HTTP-facing callers: hidden fields are stripped from
// operations that return records.
func (m *Model) Rest(ctx context.Context, op Op, call Call) (any, error) {
	res, err := m.Invoke(ctx, op, call)
	if err != nil {
		return nil, err
	}
	if operations[op].returnsRecords {
		return m.FilterHidden(res), nil
	}
	return res, nil
}

// FilterHidden returns a copy of v without hidden fields. v may be a
// record or a list of records; anything else is returned as is.
func (m *Model) FilterHidden(v any) any {
	if len(m.derived.Hidden) == 0 {
		return v
	}
	switch t := v.(type) {
	case storage.Record:
		return m.filterRecord(t)
	case []storage.Record:
		out := make([]storage.Record, len(t))
		for i, rec := range t {
			out[i] = m.filterRecord(rec)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = m.FilterHidden(e)
		}
		return out
	default:
		return v
	}
}

func (m *Model) filterRecord(rec storage.Record) storage.Record {
	if rec == nil {
		return nil
	}
	out := make(storage.Record, len(rec))
	for k, v := range rec {
		if !m.derived.IsHidden(k) {
			out[k] = v
		}
	}
	return out
}

// Find returns every record matching q.
func (m *Model) Find(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	res, err := m.Invoke(ctx, OpFind, Call{Query: q})
	if err != nil {
		return nil, err
	}
	return asRecords(OpFind, res)
}

// FindOne returns the first record matching q, or nil.
func (m *Model) FindOne(ctx context.Context, q storage.Query) (storage.Record, error) {
	res, err := m.Invoke(ctx, OpFindOne, Call{Query: q})
	if err != nil {
		return nil, err
	}
	return asRecord(OpFindOne, res)
}

// FindByID returns the record with id, or nil.
func (m *Model) FindByID(ctx context.Context, id string) (storage.Record, error) {
	res, err := m.Invoke(ctx, OpFindByID, Call{ID: id})
	if err != nil {
		return nil, err
	}
	return asRecord(OpFindByID, res)
}

// Create stores data as a new record.
func (m *Model) Create(ctx context.Context, data storage.Record) (storage.Record, error) {
	res, err := m.Invoke(ctx, OpCreate, Call{Data: data})
	if err != nil {
		return nil, err
	}
	return asRecord(OpCreate, res)
}

// Update merges data onto the record with id.
func (m *Model) Update(ctx context.Context, id string, data storage.Record) (storage.Record, error) {
	res, err := m.Invoke(ctx, OpUpdate, Call{ID: id, Data: data})
	if err != nil {
		return nil, err
	}
	return asRecord(OpUpdate, res)
}

// UpdateMany applies data to every record matching q. No hooks run.
func (m *Model) UpdateMany(ctx context.Context, q storage.Query, data storage.Record) (storage.Count, error) {
	res, err := m.Invoke(ctx, OpUpdateMany, Call{Query: q, Data: data})
	if err != nil {
		return storage.Count{}, err
	}
	return asCount(OpUpdateMany, res)
}

// Delete removes the record with id.
func (m *Model) Delete(ctx context.Context, id string) (storage.Count, error) {
	res, err := m.Invoke(ctx, OpDelete, Call{ID: id})
	if err != nil {
		return storage.Count{}, err
	}
	return asCount(OpDelete, res)
}

// DeleteMany removes every record matching q. No hooks run.
func (m *Model) DeleteMany(ctx context.Context, q storage.Query) (storage.Count, error) {
	res, err := m.Invoke(ctx, OpDeleteMany, Call{Query: q})
	if err != nil {
		return storage.Count{}, err
	}
	return asCount(OpDeleteMany, res)
}

func asRecord(op Op, v any) (storage.Record, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case storage.Record:
		return t, nil
	}
	return nil, shapeError(op, v)
}

func asRecords(op Op, v any) ([]storage.Record, error) {
	switch t := v.(type) {
	case nil:
		return []storage.Record{}, nil
	case []storage.Record:
		return t, nil
	case []any:
		out := make([]storage.Record, len(t))
		for i, e := range t {
			rec, ok := e.(storage.Record)
			if !ok {
				return nil, shapeError(op, v)
			}
			out[i] = rec
		}
		return out, nil
	}
	return nil, shapeError(op, v)
}

func asCount(op Op, v any) (storage.Count, error) {
	if c, ok := v.(storage.Count); ok {
		return c, nil
	}
	return storage.Count{}, shapeError(op, v)
}

func shapeError(op Op, v any) error {
	return apierr.Internal("%s: hook returned %T", op, v)
}
