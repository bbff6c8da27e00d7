package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/core/storage/storagetest"
)

func openTestAdapter(t *testing.T, dsn string) *Adapter {
	t.Helper()
	a := New(dsn, nil)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return a
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return openTestAdapter(t, filepath.Join(t.TempDir(), "contract.db"))
	})
}

func TestContract_InMemory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return openTestAdapter(t, ":memory:")
	})
}

func TestBuildCreateTableSQL(t *testing.T) {
	s := schema.Schema{
		"id":     {Type: schema.FieldTypeNumber},
		"title":  {Type: schema.FieldTypeString, Required: true, Default: "it's"},
		"score":  {Type: schema.FieldTypeNumber, Default: 2},
		"done":   {Type: schema.FieldTypeBoolean, Default: false},
		"due":    {Type: schema.FieldTypeDate},
		"extras": {Type: schema.FieldTypeObject, Default: map[string]any{}},
	}

	got := BuildCreateTableSQL("task", s)
	want := []string{
		`CREATE TABLE IF NOT EXISTS "task"`,
		`"id" INTEGER PRIMARY KEY AUTOINCREMENT`,
		`"title" TEXT NOT NULL DEFAULT 'it''s'`,
		`"score" REAL DEFAULT 2`,
		`"done" INTEGER DEFAULT 0`,
		`"due" TEXT`,
		`"extras" TEXT`,
	}
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("CREATE TABLE missing %q:\n%s", w, got)
		}
	}
	if strings.Contains(got, `"extras" TEXT DEFAULT`) {
		t.Error("object defaults are not rendered into DDL")
	}
	if strings.Count(got, `"id"`) != 1 {
		t.Errorf("id column declared more than once:\n%s", got)
	}
}

func TestBuildIndexSQL(t *testing.T) {
	s := schema.Schema{
		"email": {Type: schema.FieldTypeString, Unique: true},
		"name":  {Type: schema.FieldTypeString},
	}
	got := BuildIndexSQL("user", s)
	if len(got) != 1 {
		t.Fatalf("got %d indexes, want 1", len(got))
	}
	if got[0] != `CREATE UNIQUE INDEX IF NOT EXISTS "uniq_user_email" ON "user"("email")` {
		t.Errorf("index = %s", got[0])
	}
}

func TestBuildWhere(t *testing.T) {
	s := schema.Schema{
		"id":   {Type: schema.FieldTypeNumber},
		"name": {Type: schema.FieldTypeString},
		"n":    {Type: schema.FieldTypeNumber},
	}

	tests := []struct {
		name  string
		q     storage.Query
		where string
		args  int
	}{
		{"empty", storage.Query{}, "", 0},
		{"literal", storage.Query{"name": "a"}, ` WHERE "name" = ?`, 1},
		{"null literal", storage.Query{"name": nil}, ` WHERE "name" IS NULL`, 0},
		{"range", storage.Query{"n": map[string]any{"$gt": 1.0, "$lte": 5.0}}, ` WHERE "n" > ? AND "n" <= ?`, 2},
		{"in", storage.Query{"id": map[string]any{"$in": []any{1.0, 2.0}}}, ` WHERE "id" IN (?, ?)`, 2},
		{"empty in", storage.Query{"id": map[string]any{"$in": []any{}}}, ` WHERE 0`, 0},
		{"nin", storage.Query{"name": map[string]any{"$nin": []any{"a"}}}, ` WHERE ("name" IS NULL OR NOT "name" IN (?))`, 1},
		{"ne", storage.Query{"name": map[string]any{"$ne": "a"}}, ` WHERE ("name" IS NULL OR "name" <> ?)`, 1},
		{"unknown op", storage.Query{"name": map[string]any{"$regex": "a"}}, ` WHERE "name" = ?`, 1},
		{"cross-type ordering", storage.Query{"n": map[string]any{"$gt": "x"}}, ` WHERE 0`, 0},
		{"sorted keys", storage.Query{"name": "a", "id": 1.0}, ` WHERE "id" = ? AND "name" = ?`, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildWhere(s, tt.q)
			if where != tt.where {
				t.Errorf("where = %q, want %q", where, tt.where)
			}
			if len(args) != tt.args {
				t.Errorf("got %d args, want %d", len(args), tt.args)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 8000000, time.FixedZone("X", 7200))

	enc := encode(schema.FieldTypeDate, ts).(string)
	if enc != "2024-03-04T03:06:07.008000000Z" {
		t.Errorf("date encoding = %q", enc)
	}
	if back := decode(schema.FieldTypeDate, enc).(time.Time); !back.Equal(ts) {
		t.Errorf("date round trip = %v, want %v", back, ts)
	}

	if encode(schema.FieldTypeBoolean, true) != 1 || decode(schema.FieldTypeBoolean, int64(0)) != false {
		t.Error("booleans are stored as integers")
	}
	if decode(schema.FieldTypeNumber, int64(3)) != 3.0 {
		t.Error("integers read back from REAL columns become float64")
	}

	obj := decode(schema.FieldTypeObject, []byte(`{"a":[1,"b"]}`)).(map[string]any)
	if obj["a"].([]any)[1] != "b" {
		t.Errorf("object decode = %#v", obj)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")
	s := storagetest.Schema()

	a := openTestAdapter(t, path)
	if err := a.AddModel(ctx, "widget", s); err != nil {
		t.Fatalf("AddModel failed: %v", err)
	}
	raw, _ := a.Collection("widget")
	rec, err := raw.(storage.Collection).Create(ctx, storage.Record{"name": "kept", "tags": []any{"x"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	a.Close(ctx)

	b := openTestAdapter(t, path)
	defer b.Close(ctx)
	if err := b.AddModel(ctx, "widget", s); err != nil {
		t.Fatalf("AddModel after reopen failed: %v", err)
	}
	raw, _ = b.Collection("widget")
	got, err := raw.(storage.Collection).FindByID(ctx, storage.IDString(rec["id"]))
	if err != nil || got == nil {
		t.Fatalf("FindByID after reopen = %v, %v", got, err)
	}
	if got["name"] != "kept" || got["tags"].([]any)[0] != "x" {
		t.Errorf("record after reopen = %#v", got)
	}
}

func TestAddModel_RequiresConnect(t *testing.T) {
	a := New(":memory:", nil)
	if err := a.AddModel(context.Background(), "x", schema.Schema{}); err == nil {
		t.Error("AddModel before Connect should fail")
	}
}
