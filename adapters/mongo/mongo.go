// Package mongo provides a storage adapter backed by MongoDB. Documents use
// the native ObjectID primary key; records leaving the adapter carry it as
// a hex string in "id" and never expose "_id".
package mongo

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/ports"
)

const idPattern = `[a-fA-F0-9]{24}`

var idRegex = storage.AnchoredID(idPattern)

// DefaultDatabase is used when neither the config nor the URI names one.
const DefaultDatabase = "apigen"

// Config holds connection parameters. URI wins over Host/Port.
type Config struct {
	URI      string
	Host     string
	Port     int
	Database string
}

// ConnectionURI returns URI, or mongodb://host[:port]/database.
func (c Config) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	host := c.Host
	if c.Port > 0 {
		host += ":" + strconv.Itoa(c.Port)
	}
	return "mongodb://" + host + "/" + c.Database
}

// DatabaseName returns the configured database, else the one in the URI.
func (c Config) DatabaseName() string {
	if c.Database != "" {
		return c.Database
	}
	if cs, err := connstring.ParseAndValidate(c.ConnectionURI()); err == nil && cs.Database != "" {
		return cs.Database
	}
	return DefaultDatabase
}

// Adapter is the MongoDB storage adapter.
type Adapter struct {
	cfg   Config
	clock ports.Clock

	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
	colls  map[string]*Collection
}

// New creates an adapter. A nil clock uses the wall clock.
func New(cfg Config, c ports.Clock) *Adapter {
	if c == nil {
		c = clock.Real{}
	}
	return &Adapter{
		cfg:   cfg,
		clock: c,
		colls: make(map[string]*Collection),
	}
}

// Name implements storage.Adapter.
func (a *Adapter) Name() string { return "mongo" }

// IDType implements storage.Adapter.
func (a *Adapter) IDType() schema.FieldType { return schema.FieldTypeString }

// IDPathRegex implements storage.Adapter.
func (a *Adapter) IDPathRegex() string { return idPattern }

// Connect dials the server and pings the primary.
func (a *Adapter) Connect(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(a.cfg.ConnectionURI()))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping mongo: %w", err)
	}

	a.mu.Lock()
	a.client = client
	a.db = client.Database(a.cfg.DatabaseName())
	a.mu.Unlock()
	return nil
}

// Close disconnects the client.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(ctx)
	a.client, a.db = nil, nil
	a.colls = make(map[string]*Collection)
	return err
}

// DropDatabase drops the database and recreates the unique indexes of
// every registered collection.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil
	}
	if err := a.db.Drop(ctx); err != nil {
		return fmt.Errorf("drop database: %w", err)
	}
	for _, c := range a.colls {
		if err := c.ensureIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HasValidID implements storage.Adapter.
func (a *Adapter) HasValidID(q storage.Query) bool {
	if v, ok := q["_id"]; ok && !storage.HasValidID(idRegex, storage.Query{"id": v}) {
		return false
	}
	return storage.HasValidID(idRegex, q)
}

// AddModel registers the collection and creates its unique indexes.
func (a *Adapter) AddModel(ctx context.Context, name string, s schema.Schema) error {
	s = s.Clone()
	s[storage.FieldID] = schema.Field{Type: a.IDType()}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return fmt.Errorf("mongo: add model %s: not connected", name)
	}
	c := &Collection{
		coll:   a.db.Collection(name),
		name:   name,
		schema: s,
		clock:  a.clock,
	}
	if err := c.ensureIndexes(ctx); err != nil {
		return err
	}
	a.colls[name] = c
	return nil
}

// Collection implements storage.Adapter.
func (a *Adapter) Collection(name string) (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.colls[name]
	if !ok {
		return nil, storage.ErrUnknownCollection(name)
	}
	return c, nil
}

// RandomID returns a fresh ObjectID in hex.
func (a *Adapter) RandomID() string {
	return primitive.NewObjectID().Hex()
}

var _ storage.Adapter = (*Adapter)(nil)

func (c *Collection) ensureIndexes(ctx context.Context) error {
	unique := c.schema.Unique()
	if len(unique) == 0 {
		return nil
	}
	models := make([]mongo.IndexModel, 0, len(unique))
	for _, field := range unique {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		})
	}
	if _, err := c.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes on %s: %w", c.name, err)
	}
	return nil
}
