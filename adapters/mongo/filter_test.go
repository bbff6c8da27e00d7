package mongo

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/artpar/apigen/core/storage"
)

func TestConfig_ConnectionURI(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Host: "db", Port: 27017, Database: "app"}, "mongodb://db:27017/app"},
		{Config{Host: "db", Database: "app"}, "mongodb://db/app"},
		{Config{URI: "mongodb://u:p@h/x", Host: "ignored"}, "mongodb://u:p@h/x"},
	}
	for _, tt := range tests {
		if got := tt.cfg.ConnectionURI(); got != tt.want {
			t.Errorf("ConnectionURI() = %q, want %q", got, tt.want)
		}
	}
}

func TestConfig_DatabaseName(t *testing.T) {
	if got := (Config{URI: "mongodb://h:1/fromuri"}).DatabaseName(); got != "fromuri" {
		t.Errorf("database from URI = %q", got)
	}
	if got := (Config{URI: "mongodb://h:1/fromuri", Database: "explicit"}).DatabaseName(); got != "explicit" {
		t.Errorf("explicit database = %q", got)
	}
	if got := (Config{URI: "mongodb://h:1"}).DatabaseName(); got != DefaultDatabase {
		t.Errorf("fallback database = %q", got)
	}
}

func TestToFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	other := primitive.NewObjectID()

	got := toFilter(storage.Query{
		"id":   map[string]any{"$in": []any{oid.Hex(), other.Hex(), "bogus"}},
		"name": "bob",
		"age":  map[string]any{"$gt": 3.0, "$regex": "x"},
		"tags": map[string]any{"$nin": "solo"},
	})

	want := bson.M{
		"_id":  bson.M{"$in": bson.A{oid, other, "bogus"}},
		"name": "bob",
		"age":  bson.M{"$gt": 3.0, "$eq": "x"},
		"tags": bson.M{"$nin": bson.A{"solo"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toFilter() =\n%#v\nwant\n%#v", got, want)
	}

	literal := toFilter(storage.Query{"id": oid.Hex()})
	if literal["_id"] != oid {
		t.Errorf("literal id = %#v", literal["_id"])
	}
}

func TestToRecord(t *testing.T) {
	oid := primitive.NewObjectID()
	when := time.Date(2024, 1, 2, 3, 4, 5, 6000000, time.UTC)

	rec := toRecord(bson.M{
		"_id":     oid,
		"__v":     int32(0),
		"name":    "n",
		"qty":     int32(4),
		"big":     int64(5),
		"created": primitive.NewDateTimeFromTime(when),
		"tags":    primitive.A{"a", int32(1)},
		"meta":    bson.M{"k": bson.D{{Key: "d", Value: int64(2)}}},
	})

	if rec["id"] != oid.Hex() {
		t.Errorf("id = %#v", rec["id"])
	}
	for _, k := range []string{"_id", "__v"} {
		if _, ok := rec[k]; ok {
			t.Errorf("%s should be stripped", k)
		}
	}
	if rec["qty"] != 4.0 || rec["big"] != 5.0 {
		t.Errorf("numbers = %#v, %#v", rec["qty"], rec["big"])
	}
	if !rec["created"].(time.Time).Equal(when) {
		t.Errorf("created = %v", rec["created"])
	}
	if !reflect.DeepEqual(rec["tags"], []any{"a", 1.0}) {
		t.Errorf("tags = %#v", rec["tags"])
	}
	meta := rec["meta"].(map[string]any)
	if meta["k"].(map[string]any)["d"] != 2.0 {
		t.Errorf("meta = %#v", meta)
	}
}

func TestHasValidID(t *testing.T) {
	a := New(Config{}, nil)
	if !a.HasValidID(storage.Query{"id": a.RandomID()}) {
		t.Error("RandomID should be valid")
	}
	if a.HasValidID(storage.Query{"id": "123"}) {
		t.Error("short ids are invalid")
	}
	if a.HasValidID(storage.Query{"_id": "zz"}) {
		t.Error("native id key is checked too")
	}
	if a.IDPathRegex() != `[a-fA-F0-9]{24}` || a.IDType() != "string" {
		t.Error("unexpected id format")
	}
}

func TestAddModel_RequiresConnect(t *testing.T) {
	a := New(Config{Host: "localhost"}, nil)
	if err := a.AddModel(context.Background(), "x", nil); err == nil {
		t.Error("AddModel before Connect should fail")
	}
}
