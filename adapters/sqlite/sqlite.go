// Package sqlite provides a storage adapter backed by an embedded SQLite
// database. Each model gets a table with one typed column per field.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/ports"
)

const idPattern = `[0-9]+`

var idRegex = storage.AnchoredID(idPattern)

// Adapter is the SQLite storage adapter.
type Adapter struct {
	dsn   string
	clock ports.Clock

	mu     sync.RWMutex
	db     *sql.DB
	tables map[string]*Collection
}

// New creates an adapter for the database file at dsn. ":memory:" opens a
// private in-memory database. A nil clock uses the wall clock.
func New(dsn string, c ports.Clock) *Adapter {
	if c == nil {
		c = clock.Real{}
	}
	return &Adapter{
		dsn:    dsn,
		clock:  c,
		tables: make(map[string]*Collection),
	}
}

// Name implements storage.Adapter.
func (a *Adapter) Name() string { return "sqlite" }

// IDType implements storage.Adapter.
func (a *Adapter) IDType() schema.FieldType { return schema.FieldTypeNumber }

// IDPathRegex implements storage.Adapter.
func (a *Adapter) IDPathRegex() string { return idPattern }

// Connect opens the database in WAL mode.
func (a *Adapter) Connect(ctx context.Context) error {
	sep := "?"
	if strings.Contains(a.dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", a.dsn+sep+"_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if a.dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("set pragma: %w", err)
		}
	}

	a.mu.Lock()
	a.db = db
	a.mu.Unlock()
	return nil
}

// Close closes the database.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.tables = make(map[string]*Collection)
	return err
}

// DropDatabase drops and recreates every registered table, which also
// resets id sequences.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.tables {
		if _, err := a.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(c.name)); err != nil {
			return fmt.Errorf("drop table %s: %w", c.name, err)
		}
		if err := createTable(ctx, a.db, c.name, c.schema); err != nil {
			return err
		}
	}
	return nil
}

// HasValidID implements storage.Adapter.
func (a *Adapter) HasValidID(q storage.Query) bool {
	return storage.HasValidID(idRegex, q)
}

// AddModel creates the table for name if it does not exist. Existing
// tables are used as they are.
func (a *Adapter) AddModel(ctx context.Context, name string, s schema.Schema) error {
	s = s.Clone()
	s[storage.FieldID] = schema.Field{Type: a.IDType()}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return fmt.Errorf("sqlite: add model %s: not connected", name)
	}
	if err := createTable(ctx, a.db, name, s); err != nil {
		return err
	}
	a.tables[name] = &Collection{
		db:      a.db,
		name:    name,
		schema:  s,
		columns: s.Names(),
		clock:   a.clock,
	}
	return nil
}

// Collection implements storage.Adapter.
func (a *Adapter) Collection(name string) (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.tables[name]
	if !ok {
		return nil, storage.ErrUnknownCollection(name)
	}
	return c, nil
}

// RandomID returns an id above every id issued so far.
func (a *Adapter) RandomID() string {
	a.mu.RLock()
	db := a.db
	a.mu.RUnlock()

	var highest int64
	if db != nil {
		// sqlite_sequence only exists once an AUTOINCREMENT table has been
		// created; an error just means nothing was issued yet.
		_ = db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM sqlite_sequence").Scan(&highest)
	}
	return strconv.FormatInt(highest+1+rand.Int64N(100), 10)
}

// DB returns the underlying connection, nil before Connect.
func (a *Adapter) DB() *sql.DB {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db
}

var _ storage.Adapter = (*Adapter)(nil)
