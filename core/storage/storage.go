// Package storage defines the contract every storage adapter implements.
// Adapters own connection lifecycle, id generation and id format; a model
// only ever talks to the Collection an adapter hands back for its name.
package storage

import (
	"context"
	"regexp"

	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/pkg/apierr"
)

// Record is a stored document: declared fields plus the adapter-assigned
// id, created and modified.
type Record = map[string]any

// Query is a flat predicate map. A value is either a literal compared for
// equality or an operator map such as {"$gt": 3}.
type Query = map[string]any

// Count is the result of bulk operations and single deletes.
type Count struct {
	Count int64 `json:"count"`
}

// Adapter is a storage backend.
type Adapter interface {
	// Name identifies the adapter in configuration ("memory", "mongo", ...).
	Name() string

	// IDType is the schema type of the injected id field.
	IDType() schema.FieldType

	// IDPathRegex matches a well-formed id. It is unanchored so the route
	// builder can embed it in path patterns.
	IDPathRegex() string

	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	DropDatabase(ctx context.Context) error

	// HasValidID reports whether every id-shaped value in q is well formed.
	// A query without an id is valid.
	HasValidID(q Query) bool

	// AddModel materializes the collection for name. s already contains
	// the base fields; the adapter injects id itself.
	AddModel(ctx context.Context, name string, s schema.Schema) error

	// Collection returns the collection materialized by AddModel. The
	// returned value implements some or all of the capability interfaces.
	Collection(name string) (any, error)

	// RandomID returns an id in the adapter's format that is unlikely to
	// exist. Used by tests.
	RandomID() string
}

// Finder reads records. FindOne and FindByID return nil, nil on no match.
type Finder interface {
	Find(ctx context.Context, q Query) ([]Record, error)
	FindOne(ctx context.Context, q Query) (Record, error)
	FindByID(ctx context.Context, id string) (Record, error)
}

// Creator inserts records.
type Creator interface {
	Create(ctx context.Context, data Record) (Record, error)
}

// Updater merges data onto one record. An unknown id is a NotFound error.
type Updater interface {
	Update(ctx context.Context, id string, data Record) (Record, error)
}

// BulkUpdater applies data to every record matching a non-empty query.
type BulkUpdater interface {
	UpdateMany(ctx context.Context, q Query, data Record) (Count, error)
}

// Deleter removes one record. An unknown id yields a zero count.
type Deleter interface {
	Delete(ctx context.Context, id string) (Count, error)
}

// BulkDeleter removes every record matching a non-empty query.
type BulkDeleter interface {
	DeleteMany(ctx context.Context, q Query) (Count, error)
}

// Collection is a store with every capability.
type Collection interface {
	Finder
	Creator
	Updater
	BulkUpdater
	Deleter
	BulkDeleter
}

// CheckQuery rejects empty bulk queries. method is the model method name
// reported to the caller, e.g. "updateMany".
func CheckQuery(method string, q Query) error {
	if len(q) == 0 {
		return apierr.Usage("Model.%s requires query object argument", method)
	}
	return nil
}

// NotFound is the error returned for an id-keyed operation with no match.
func NotFound(model, id string) error {
	return apierr.NotFound(`Resource "%s" with id %s not found.`, model, id)
}

// ErrUnknownCollection is returned by Collection for a name that was never
// passed to AddModel.
func ErrUnknownCollection(name string) error {
	return apierr.Internal("collection %q is not registered", name)
}

// HasValidID checks the id-shaped values of q against pattern, which is
// anchored here. Operator operands and $in/$nin lists are checked element
// by element. Non-string ids are formatted before matching.
func HasValidID(pattern *regexp.Regexp, q Query) bool {
	v, ok := q["id"]
	if !ok {
		return true
	}
	return validIDValue(pattern, v)
}

func validIDValue(pattern *regexp.Regexp, v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, operand := range t {
			if !validIDValue(pattern, operand) {
				return false
			}
		}
		return true
	case []any:
		for _, e := range t {
			if !validIDValue(pattern, e) {
				return false
			}
		}
		return true
	default:
		return pattern.MatchString(IDString(v))
	}
}

// AnchoredID compiles an unanchored id regex for whole-value matching.
func AnchoredID(pattern string) *regexp.Regexp {
	return regexp.MustCompile("^(?:" + pattern + ")$")
}
