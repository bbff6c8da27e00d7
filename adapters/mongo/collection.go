package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/ports"
)

// Collection is one MongoDB collection.
type Collection struct {
	coll   *mongo.Collection
	name   string
	schema schema.Schema
	clock  ports.Clock
}

var _ storage.Collection = (*Collection)(nil)

// Find returns every document matching q in insertion order.
func (c *Collection) Find(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	filter := toFilter(storage.PrepareQuery(c.schema, q))
	cur, err := c.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	out := make([]storage.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toRecord(doc))
	}
	return out, nil
}

// FindOne returns the first document matching q.
func (c *Collection) FindOne(ctx context.Context, q storage.Query) (storage.Record, error) {
	filter := toFilter(storage.PrepareQuery(c.schema, q))
	return c.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// FindByID returns the document with id.
func (c *Collection) FindByID(ctx context.Context, id string) (storage.Record, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return c.findOne(ctx, bson.M{"_id": oid})
}

func (c *Collection) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (storage.Record, error) {
	var doc bson.M
	err := c.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	return toRecord(doc), nil
}

// Create inserts data and returns the stored document.
func (c *Collection) Create(ctx context.Context, data storage.Record) (storage.Record, error) {
	rec, err := storage.PrepareCreate(c.schema, data)
	if err != nil {
		return nil, err
	}
	if err := c.checkUnique(ctx, rec, nil); err != nil {
		return nil, err
	}

	now := clock.Stamp(c.clock)
	doc := bson.M(rec)
	oid := primitive.NewObjectID()
	doc["_id"] = oid
	doc[storage.FieldCreated] = now
	doc[storage.FieldModified] = now

	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return nil, c.writeError("insert", err)
	}
	return c.findOne(ctx, bson.M{"_id": oid})
}

// Update sets data on the document with id and returns the result.
func (c *Collection) Update(ctx context.Context, id string, data storage.Record) (storage.Record, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, storage.NotFound(c.name, id)
	}

	patch := storage.PrepareUpdate(c.schema, data)
	patch[storage.FieldModified] = clock.Stamp(c.clock)
	if err := c.checkUnique(ctx, patch, []primitive.ObjectID{oid}); err != nil {
		return nil, err
	}

	var doc bson.M
	err = c.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M(patch)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.NotFound(c.name, id)
	}
	if err != nil {
		return nil, c.writeError("update", err)
	}
	return toRecord(doc), nil
}

// UpdateMany sets data on every document matching q. The count is the
// number of matched documents.
func (c *Collection) UpdateMany(ctx context.Context, q storage.Query, data storage.Record) (storage.Count, error) {
	q = storage.PrepareQuery(c.schema, q)
	if err := storage.CheckQuery("updateMany", q); err != nil {
		return storage.Count{}, err
	}

	ids, err := c.matchingIDs(ctx, toFilter(q))
	if err != nil || len(ids) == 0 {
		return storage.Count{}, err
	}

	patch := storage.PrepareUpdate(c.schema, data)
	patch[storage.FieldModified] = clock.Stamp(c.clock)
	if err := c.checkUnique(ctx, patch, ids); err != nil {
		return storage.Count{}, err
	}

	res, err := c.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M(patch)},
	)
	if err != nil {
		return storage.Count{}, c.writeError("update", err)
	}
	return storage.Count{Count: res.MatchedCount}, nil
}

// Delete removes the document with id.
func (c *Collection) Delete(ctx context.Context, id string) (storage.Count, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return storage.Count{}, nil
	}
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return storage.Count{}, fmt.Errorf("delete %s: %w", c.name, err)
	}
	return storage.Count{Count: res.DeletedCount}, nil
}

// DeleteMany removes every document matching q.
func (c *Collection) DeleteMany(ctx context.Context, q storage.Query) (storage.Count, error) {
	q = storage.PrepareQuery(c.schema, q)
	if err := storage.CheckQuery("deleteMany", q); err != nil {
		return storage.Count{}, err
	}
	res, err := c.coll.DeleteMany(ctx, toFilter(q))
	if err != nil {
		return storage.Count{}, fmt.Errorf("delete %s: %w", c.name, err)
	}
	return storage.Count{Count: res.DeletedCount}, nil
}

func (c *Collection) matchingIDs(ctx context.Context, filter bson.M) ([]primitive.ObjectID, error) {
	cur, err := c.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	defer cur.Close(ctx)

	var docs []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("find %s: %w", c.name, err)
	}
	ids := make([]primitive.ObjectID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// checkUnique is a pre-check ahead of the unique indexes so collisions
// report which field failed. It is not atomic with the write; the index
// catches what slips through.
func (c *Collection) checkUnique(ctx context.Context, data storage.Record, targets []primitive.ObjectID) error {
	for _, field := range c.schema.Unique() {
		value, ok := data[field]
		if !ok {
			continue
		}
		if len(targets) > 1 {
			return storage.UniqueViolation(field)
		}

		filter := bson.M{field: value}
		if len(targets) == 1 {
			filter["_id"] = bson.M{"$ne": targets[0]}
		}
		n, err := c.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("unique check %s.%s: %w", c.name, field, err)
		}
		if n > 0 {
			return storage.UniqueViolation(field)
		}
	}
	return nil
}

func (c *Collection) writeError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return storage.UniqueViolation(c.duplicateField(err))
	}
	return fmt.Errorf("%s %s: %w", op, c.name, err)
}

// duplicateField finds the unique field named in a duplicate key error,
// falling back to the collection name.
func (c *Collection) duplicateField(err error) string {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			for _, field := range c.schema.Unique() {
				if containsIndexKey(e.Message, field) {
					return field
				}
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		for _, field := range c.schema.Unique() {
			if containsIndexKey(ce.Message, field) {
				return field
			}
		}
	}
	return c.name
}

// containsIndexKey matches the "dup key: { field: ... }" part of a
// duplicate key message.
func containsIndexKey(msg, field string) bool {
	return strings.Contains(msg, "dup key: { "+field+":")
}
