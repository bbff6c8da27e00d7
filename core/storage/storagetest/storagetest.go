// Package storagetest is the contract suite every storage adapter must
// pass. Adapter packages call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/apigen/core/convention"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/pkg/apierr"
)

// Factory returns a connected adapter with no collections. The suite drops
// the database and closes the adapter when each subtest ends.
type Factory func(t *testing.T) storage.Adapter

const collection = "widget"

// Schema is the model every scenario runs against.
func Schema() schema.Schema {
	return schema.Merge(convention.Base(), schema.Schema{
		"name":   {Type: schema.FieldTypeString, Required: true},
		"sku":    {Type: schema.FieldTypeString, Unique: true},
		"qty":    {Type: schema.FieldTypeNumber, Default: 1},
		"active": {Type: schema.FieldTypeBoolean},
		"tags":   {Type: schema.FieldTypeArray},
		"meta":   {Type: schema.FieldTypeObject},
		"due":    {Type: schema.FieldTypeDate},
		"secret": {Type: schema.FieldTypeString, Hidden: true},
	})
}

// Run executes the contract suite.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, a storage.Adapter, c storage.Collection)
	}{
		{"CreateThenFindByID", testCreateThenFindByID},
		{"CreateDefaultsAndRequired", testCreateDefaultsAndRequired},
		{"CreateUnique", testCreateUnique},
		{"FindOperators", testFindOperators},
		{"FindOneNoMatch", testFindOneNoMatch},
		{"UpdateMerges", testUpdateMerges},
		{"UpdateUnknownID", testUpdateUnknownID},
		{"UpdateMany", testUpdateMany},
		{"BulkRequiresQuery", testBulkRequiresQuery},
		{"Delete", testDelete},
		{"DeleteMany", testDeleteMany},
		{"IDValidity", testIDValidity},
		{"DropDatabase", testDropDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			a := factory(t)
			t.Cleanup(func() {
				_ = a.DropDatabase(ctx)
				_ = a.Close(ctx)
			})

			require.NoError(t, a.AddModel(ctx, collection, Schema()))
			raw, err := a.Collection(collection)
			require.NoError(t, err)
			c, ok := raw.(storage.Collection)
			require.True(t, ok, "%s collection must implement every capability", a.Name())

			tt.fn(t, a, c)
		})
	}
}

func create(t *testing.T, c storage.Collection, data storage.Record) storage.Record {
	t.Helper()
	rec, err := c.Create(context.Background(), data)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func idOf(t *testing.T, rec storage.Record) string {
	t.Helper()
	id := storage.IDString(rec[storage.FieldID])
	require.NotEmpty(t, id, "record has no usable id: %#v", rec)
	return id
}

func names(recs []storage.Record) []any {
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		out = append(out, r["name"])
	}
	return out
}

func testCreateThenFindByID(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	due := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	rec := create(t, c, storage.Record{
		"name":   "Crud",
		"secret": "s",
		"active": true,
		"tags":   []any{"a", "b"},
		"meta":   map[string]any{"k": "v"},
		"due":    due,
		"ignore": "dropped",
	})

	assert.Equal(t, "Crud", rec["name"])
	assert.Equal(t, "s", rec["secret"])
	assert.NotContains(t, rec, "ignore")
	assert.True(t, a.HasValidID(storage.Query{"id": idOf(t, rec)}))
	created, ok := rec[storage.FieldCreated].(time.Time)
	require.True(t, ok, "created = %T", rec[storage.FieldCreated])
	assert.False(t, created.IsZero())

	got, err := c.FindByID(ctx, idOf(t, rec))
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, idOf(t, rec), idOf(t, got))
	for _, field := range []string{"name", "secret", "active", "tags", "meta"} {
		assert.Equal(t, rec[field], got[field], field)
	}
	assert.True(t, due.Equal(got["due"].(time.Time)), "due = %v", got["due"])
	assert.True(t, created.Equal(got[storage.FieldCreated].(time.Time)))
	assert.Equal(t, 1.0, got["qty"])
}

func testCreateDefaultsAndRequired(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()

	rec := create(t, c, storage.Record{"name": "n", "qty": "7"})
	assert.Equal(t, 7.0, rec["qty"], "numeric strings are cast")

	_, err := c.Create(ctx, storage.Record{"qty": 3})
	assert.True(t, apierr.Is(err, apierr.KindValidation), "missing required: %v", err)

	_, err = c.Create(ctx, storage.Record{"unknown": 1})
	assert.True(t, apierr.Is(err, apierr.KindValidation), "no valid property: %v", err)

	_, err = c.Create(ctx, storage.Record{"id": a.RandomID(), "created": "x"})
	assert.True(t, apierr.Is(err, apierr.KindValidation), "adapter fields are not writable: %v", err)
}

func testCreateUnique(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()

	first := create(t, c, storage.Record{"name": "one", "sku": "A-1"})
	_, err := c.Create(ctx, storage.Record{"name": "two", "sku": "A-1"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindValidation), "err = %v", err)

	second := create(t, c, storage.Record{"name": "two", "sku": "B-1"})
	_, err = c.Update(ctx, idOf(t, second), storage.Record{"sku": "A-1"})
	assert.True(t, apierr.Is(err, apierr.KindValidation), "update collision: %v", err)

	_, err = c.Update(ctx, idOf(t, first), storage.Record{"sku": "A-1"})
	assert.NoError(t, err, "rewriting a record's own value is not a collision")
}

func testFindOperators(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	create(t, c, storage.Record{"name": "a", "qty": 1, "due": day(1)})
	create(t, c, storage.Record{"name": "b", "qty": 2, "due": day(2)})
	create(t, c, storage.Record{"name": "c", "qty": 3, "due": day(3)})

	tests := []struct {
		name  string
		query storage.Query
		want  []any
	}{
		{"literal", storage.Query{"name": "b"}, []any{"b"}},
		{"cast literal", storage.Query{"qty": "3"}, []any{"c"}},
		{"$in", storage.Query{"name": map[string]any{"$in": []any{"a", "c"}}}, []any{"a", "c"}},
		{"$nin", storage.Query{"name": map[string]any{"$nin": []any{"a", "c"}}}, []any{"b"}},
		{"$gt", storage.Query{"qty": map[string]any{"$gt": 1}}, []any{"b", "c"}},
		{"$gte", storage.Query{"qty": map[string]any{"$gte": 2}}, []any{"b", "c"}},
		{"$lt", storage.Query{"qty": map[string]any{"$lt": 2}}, []any{"a"}},
		{"$lte", storage.Query{"qty": map[string]any{"$lte": "2"}}, []any{"a", "b"}},
		{"range", storage.Query{"qty": map[string]any{"$gt": 1, "$lt": 3}}, []any{"b"}},
		{"$ne", storage.Query{"name": map[string]any{"$ne": "a"}}, []any{"b", "c"}},
		{"$eq", storage.Query{"name": map[string]any{"$eq": "a"}}, []any{"a"}},
		{"unknown operator is equality", storage.Query{"name": map[string]any{"$like": "a"}}, []any{"a"}},
		{"date ordering", storage.Query{"due": map[string]any{"$gte": "2024-01-02T00:00:00Z"}}, []any{"b", "c"}},
		{"empty query", storage.Query{}, []any{"a", "b", "c"}},
		{"undeclared keys ignored", storage.Query{"access_token": "x"}, []any{"a", "b", "c"}},
		{"no match", storage.Query{"name": "zzz"}, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Find(ctx, tt.query)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, names(got))
		})
	}
}

func testFindOneNoMatch(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	create(t, c, storage.Record{"name": "only"})

	got, err := c.FindOne(ctx, storage.Query{"name": "missing"})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.FindOne(ctx, storage.Query{"name": "only"})
	require.NoError(t, err)
	assert.Equal(t, "only", got["name"])

	got, err = c.FindByID(ctx, a.RandomID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testUpdateMerges(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	rec := create(t, c, storage.Record{"name": "before", "qty": 4})

	got, err := c.Update(ctx, idOf(t, rec), storage.Record{"name": "after", "bogus": true})
	require.NoError(t, err)
	assert.Equal(t, "after", got["name"])
	assert.Equal(t, 4.0, got["qty"])
	assert.NotContains(t, got, "bogus")
	_, ok := got[storage.FieldModified].(time.Time)
	assert.True(t, ok, "modified = %T", got[storage.FieldModified])

	stored, err := c.FindByID(ctx, idOf(t, rec))
	require.NoError(t, err)
	assert.Equal(t, "after", stored["name"])
}

func testUpdateUnknownID(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	create(t, c, storage.Record{"name": "keep"})

	_, err := c.Update(ctx, a.RandomID(), storage.Record{"name": "changed"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindNotFound), "err = %v", err)
	assert.Contains(t, err.Error(), `Resource "widget" with id`)

	all, err := c.Find(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Equal(t, []any{"keep"}, names(all))
}

func testUpdateMany(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	create(t, c, storage.Record{"name": "a", "qty": 1})
	create(t, c, storage.Record{"name": "b", "qty": 1})
	create(t, c, storage.Record{"name": "c", "qty": 2})

	n, err := c.UpdateMany(ctx, storage.Query{"qty": 9}, storage.Record{"active": true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n.Count)

	n, err = c.UpdateMany(ctx, storage.Query{"qty": 1}, storage.Record{"active": true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.Count)

	active, err := c.Find(ctx, storage.Query{"active": true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"a", "b"}, names(active))

	_, err = c.UpdateMany(ctx, storage.Query{"qty": 1}, storage.Record{"sku": "same"})
	assert.True(t, apierr.Is(err, apierr.KindValidation), "one unique value on two records: %v", err)
}

func testBulkRequiresQuery(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	create(t, c, storage.Record{"name": "x"})

	_, err := c.UpdateMany(ctx, storage.Query{}, storage.Record{"name": "y"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindUsage))
	assert.Equal(t, "Model.updateMany requires query object argument", err.Error())

	_, err = c.DeleteMany(ctx, nil)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindUsage))
	assert.Equal(t, "Model.deleteMany requires query object argument", err.Error())
}

func testDelete(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	rec := create(t, c, storage.Record{"name": "gone"})

	n, err := c.Delete(ctx, a.RandomID())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n.Count)

	n, err = c.Delete(ctx, idOf(t, rec))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.Count)

	got, err := c.FindByID(ctx, idOf(t, rec))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testDeleteMany(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	ids := make([]any, 0, 3)
	for _, name := range []string{"a", "b", "c"} {
		ids = append(ids, idOf(t, create(t, c, storage.Record{"name": name})))
	}

	n, err := c.DeleteMany(ctx, storage.Query{"id": map[string]any{"$in": ids[:2]}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.Count)

	left, err := c.Find(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Equal(t, []any{"c"}, names(left))
}

func testIDValidity(t *testing.T, a storage.Adapter, c storage.Collection) {
	assert.True(t, a.HasValidID(storage.Query{}))
	assert.True(t, a.HasValidID(storage.Query{"id": a.RandomID()}))
	assert.True(t, a.HasValidID(storage.Query{"id": map[string]any{"$in": []any{a.RandomID()}}}))
	assert.False(t, a.HasValidID(storage.Query{"id": "not an id"}))
	assert.False(t, a.HasValidID(storage.Query{"id": map[string]any{"$in": []any{a.RandomID(), "zz"}}}))
}

func testDropDatabase(t *testing.T, a storage.Adapter, c storage.Collection) {
	ctx := context.Background()
	create(t, c, storage.Record{"name": "x"})

	require.NoError(t, a.DropDatabase(ctx))
	require.NoError(t, a.AddModel(ctx, collection, Schema()))
	raw, err := a.Collection(collection)
	require.NoError(t, err)

	all, err := raw.(storage.Collection).Find(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
