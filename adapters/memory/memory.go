// Package memory provides an in-process storage adapter. Records live in
// slices guarded by a mutex per collection; ids are per-collection int64
// sequences taken from an atomic counter, so concurrent writers never
// share an id.
package memory

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/deepcopy"
	"github.com/artpar/apigen/ports"
)

const idPattern = `[0-9]+`

var idRegex = storage.AnchoredID(idPattern)

// Adapter is the in-memory storage adapter.
type Adapter struct {
	clock ports.Clock

	mu          sync.RWMutex
	collections map[string]*Collection
}

// New creates an in-memory adapter. A nil clock uses the wall clock.
func New(c ports.Clock) *Adapter {
	if c == nil {
		c = clock.Real{}
	}
	return &Adapter{
		clock:       c,
		collections: make(map[string]*Collection),
	}
}

// Name implements storage.Adapter.
func (a *Adapter) Name() string { return "memory" }

// IDType implements storage.Adapter.
func (a *Adapter) IDType() schema.FieldType { return schema.FieldTypeNumber }

// IDPathRegex implements storage.Adapter.
func (a *Adapter) IDPathRegex() string { return idPattern }

// Connect is a no-op; the store exists from New.
func (a *Adapter) Connect(ctx context.Context) error { return nil }

// Close discards every collection.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collections = make(map[string]*Collection)
	return nil
}

// DropDatabase empties every collection and resets its id sequence.
// Registered collections stay usable.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.collections {
		c.mu.Lock()
		c.records = nil
		c.seq.Store(0)
		c.mu.Unlock()
	}
	return nil
}

// HasValidID implements storage.Adapter.
func (a *Adapter) HasValidID(q storage.Query) bool {
	return storage.HasValidID(idRegex, q)
}

// AddModel registers a collection. Re-adding a name replaces its schema
// and keeps its records.
func (a *Adapter) AddModel(ctx context.Context, name string, s schema.Schema) error {
	s = s.Clone()
	s[storage.FieldID] = schema.Field{Type: a.IDType()}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.collections[name]; ok {
		c.mu.Lock()
		c.schema = s
		c.mu.Unlock()
		return nil
	}
	a.collections[name] = &Collection{name: name, schema: s, clock: a.clock}
	return nil
}

// Collection implements storage.Adapter.
func (a *Adapter) Collection(name string) (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.collections[name]
	if !ok {
		return nil, storage.ErrUnknownCollection(name)
	}
	return c, nil
}

// RandomID returns an id above every id issued so far.
func (a *Adapter) RandomID() string {
	a.mu.RLock()
	var highest int64
	for _, c := range a.collections {
		if n := c.seq.Load(); n > highest {
			highest = n
		}
	}
	a.mu.RUnlock()
	return strconv.FormatInt(highest+1+rand.Int64N(100), 10)
}

var _ storage.Adapter = (*Adapter)(nil)

// Collection holds the records of one model.
type Collection struct {
	name  string
	clock ports.Clock
	seq   atomic.Int64

	mu      sync.RWMutex
	schema  schema.Schema
	records []storage.Record
}

var _ storage.Collection = (*Collection)(nil)

// Find returns copies of every record matching q.
func (c *Collection) Find(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q = storage.PrepareQuery(c.schema, q)
	var out []storage.Record
	for _, rec := range c.records {
		if storage.Match(rec, q) {
			out = append(out, deepcopy.Map(rec))
		}
	}
	return out, nil
}

// FindOne returns a copy of the first record matching q.
func (c *Collection) FindOne(ctx context.Context, q storage.Query) (storage.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q = storage.PrepareQuery(c.schema, q)
	for _, rec := range c.records {
		if storage.Match(rec, q) {
			return deepcopy.Map(rec), nil
		}
	}
	return nil, nil
}

// FindByID returns a copy of the record with id.
func (c *Collection) FindByID(ctx context.Context, id string) (storage.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(id); i >= 0 {
		return deepcopy.Map(c.records[i]), nil
	}
	return nil, nil
}

// Create inserts data and returns the stored record.
func (c *Collection) Create(ctx context.Context, data storage.Record) (storage.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := storage.PrepareCreate(c.schema, data)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckUnique(c.schema, rec, c.records, nil); err != nil {
		return nil, err
	}

	rec = deepcopy.Map(rec)
	rec[storage.FieldID] = c.seq.Add(1)
	rec[storage.FieldCreated] = clock.Stamp(c.clock)
	c.records = append(c.records, rec)
	return deepcopy.Map(rec), nil
}

// Update merges data onto the record with id.
func (c *Collection) Update(ctx context.Context, id string, data storage.Record) (storage.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, storage.NotFound(c.name, id)
	}

	patch := storage.PrepareUpdate(c.schema, data)
	patch[storage.FieldModified] = clock.Stamp(c.clock)
	target := map[string]bool{storage.IDString(c.records[i][storage.FieldID]): true}
	if err := storage.CheckUnique(c.schema, patch, c.records, target); err != nil {
		return nil, err
	}

	for k, v := range patch {
		c.records[i][k] = deepcopy.Value(v)
	}
	return deepcopy.Map(c.records[i]), nil
}

// UpdateMany applies data to every record matching q.
func (c *Collection) UpdateMany(ctx context.Context, q storage.Query, data storage.Record) (storage.Count, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q = storage.PrepareQuery(c.schema, q)
	if err := storage.CheckQuery("updateMany", q); err != nil {
		return storage.Count{}, err
	}

	targets := make(map[string]bool)
	var matched []int
	for i, rec := range c.records {
		if storage.Match(rec, q) {
			matched = append(matched, i)
			targets[storage.IDString(rec[storage.FieldID])] = true
		}
	}
	if len(matched) == 0 {
		return storage.Count{}, nil
	}

	patch := storage.PrepareUpdate(c.schema, data)
	patch[storage.FieldModified] = clock.Stamp(c.clock)
	if err := storage.CheckUnique(c.schema, patch, c.records, targets); err != nil {
		return storage.Count{}, err
	}

	for _, i := range matched {
		for k, v := range patch {
			c.records[i][k] = deepcopy.Value(v)
		}
	}
	return storage.Count{Count: int64(len(matched))}, nil
}

// Delete removes the record with id. An unknown id deletes nothing.
func (c *Collection) Delete(ctx context.Context, id string) (storage.Count, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return storage.Count{}, nil
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	return storage.Count{Count: 1}, nil
}

// DeleteMany removes every record matching q.
func (c *Collection) DeleteMany(ctx context.Context, q storage.Query) (storage.Count, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q = storage.PrepareQuery(c.schema, q)
	if err := storage.CheckQuery("deleteMany", q); err != nil {
		return storage.Count{}, err
	}

	kept := c.records[:0]
	var removed int64
	for _, rec := range c.records {
		if storage.Match(rec, q) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	clear(c.records[len(kept):])
	c.records = kept
	return storage.Count{Count: removed}, nil
}

// indexOf locates id; callers hold c.mu.
func (c *Collection) indexOf(id string) int {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return -1
	}
	for i, rec := range c.records {
		if rec[storage.FieldID] == n {
			return i
		}
	}
	return -1
}
