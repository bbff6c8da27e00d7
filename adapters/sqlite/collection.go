package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/artpar/apigen/adapters/clock"
	"github.com/artpar/apigen/core/schema"
	"github.com/artpar/apigen/core/storage"
	"github.com/artpar/apigen/ports"
)

// Collection is one model table.
type Collection struct {
	db      *sql.DB
	name    string
	schema  schema.Schema
	columns []string
	clock   ports.Clock
}

var _ storage.Collection = (*Collection)(nil)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Find returns every row matching q in id order.
func (c *Collection) Find(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	where, args := buildWhere(c.schema, storage.PrepareQuery(c.schema, q))
	return c.selectRows(ctx, c.db, where+" ORDER BY "+quote(storage.FieldID), args)
}

// FindOne returns the first row matching q.
func (c *Collection) FindOne(ctx context.Context, q storage.Query) (storage.Record, error) {
	where, args := buildWhere(c.schema, storage.PrepareQuery(c.schema, q))
	recs, err := c.selectRows(ctx, c.db, where+" ORDER BY "+quote(storage.FieldID)+" LIMIT 1", args)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// FindByID returns the row with id.
func (c *Collection) FindByID(ctx context.Context, id string) (storage.Record, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}
	return c.byID(ctx, c.db, n)
}

// Create inserts data. The uniqueness check and the insert share a
// transaction.
func (c *Collection) Create(ctx context.Context, data storage.Record) (storage.Record, error) {
	rec, err := storage.PrepareCreate(c.schema, data)
	if err != nil {
		return nil, err
	}
	now := clock.Stamp(c.clock)
	rec[storage.FieldCreated] = now
	rec[storage.FieldModified] = now

	var out storage.Record
	err = c.inTx(ctx, func(tx *sql.Tx) error {
		if err := c.checkUnique(ctx, tx, rec, nil); err != nil {
			return err
		}

		cols, vals := c.encodeRecord(rec)
		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			quote(c.name), strings.Join(cols, ", "), placeholders(len(cols)),
		), vals...)
		if err != nil {
			return c.writeError("insert", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		out, err = c.byID(ctx, tx, id)
		return err
	})
	return out, err
}

// Update merges data onto the row with id.
func (c *Collection) Update(ctx context.Context, id string, data storage.Record) (storage.Record, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, storage.NotFound(c.name, id)
	}

	patch := storage.PrepareUpdate(c.schema, data)
	patch[storage.FieldModified] = clock.Stamp(c.clock)

	var out storage.Record
	err = c.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := c.byID(ctx, tx, n)
		if err != nil {
			return err
		}
		if existing == nil {
			return storage.NotFound(c.name, id)
		}
		if err := c.checkUnique(ctx, tx, patch, []int64{n}); err != nil {
			return err
		}
		if err := c.update(ctx, tx, patch, []int64{n}); err != nil {
			return err
		}
		out, err = c.byID(ctx, tx, n)
		return err
	})
	return out, err
}

// UpdateMany applies data to every row matching q.
func (c *Collection) UpdateMany(ctx context.Context, q storage.Query, data storage.Record) (storage.Count, error) {
	q = storage.PrepareQuery(c.schema, q)
	if err := storage.CheckQuery("updateMany", q); err != nil {
		return storage.Count{}, err
	}

	patch := storage.PrepareUpdate(c.schema, data)
	patch[storage.FieldModified] = clock.Stamp(c.clock)

	var count int64
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		ids, err := c.matchingIDs(ctx, tx, q)
		if err != nil || len(ids) == 0 {
			return err
		}
		if err := c.checkUnique(ctx, tx, patch, ids); err != nil {
			return err
		}
		if err := c.update(ctx, tx, patch, ids); err != nil {
			return err
		}
		count = int64(len(ids))
		return nil
	})
	return storage.Count{Count: count}, err
}

// Delete removes the row with id.
func (c *Collection) Delete(ctx context.Context, id string) (storage.Count, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return storage.Count{}, nil
	}
	return c.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(c.name), quote(storage.FieldID)), n)
}

// DeleteMany removes every row matching q.
func (c *Collection) DeleteMany(ctx context.Context, q storage.Query) (storage.Count, error) {
	q = storage.PrepareQuery(c.schema, q)
	if err := storage.CheckQuery("deleteMany", q); err != nil {
		return storage.Count{}, err
	}
	where, args := buildWhere(c.schema, q)
	return c.exec(ctx, "DELETE FROM "+quote(c.name)+where, args...)
}

func (c *Collection) exec(ctx context.Context, query string, args ...any) (storage.Count, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.Count{}, fmt.Errorf("delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.Count{}, fmt.Errorf("delete: %w", err)
	}
	return storage.Count{Count: affected}, nil
}

func (c *Collection) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *Collection) byID(ctx context.Context, q querier, id int64) (storage.Record, error) {
	recs, err := c.selectRows(ctx, q, " WHERE "+quote(storage.FieldID)+" = ?", []any{id})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (c *Collection) selectRows(ctx context.Context, q querier, tail string, args []any) ([]storage.Record, error) {
	cols := make([]string, len(c.columns))
	for i, col := range c.columns {
		cols[i] = quote(col)
	}

	rows, err := q.QueryContext(ctx, "SELECT "+strings.Join(cols, ", ")+" FROM "+quote(c.name)+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		values := make([]any, len(c.columns))
		dest := make([]any, len(c.columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.name, err)
		}
		out = append(out, c.decodeRow(values))
	}
	return out, rows.Err()
}

// decodeRow builds a record from scanned columns. NULL columns are left
// out so absent fields stay absent.
func (c *Collection) decodeRow(values []any) storage.Record {
	rec := make(storage.Record, len(values))
	for i, col := range c.columns {
		if values[i] == nil {
			continue
		}
		if col == storage.FieldID {
			rec[col] = values[i]
			continue
		}
		rec[col] = decode(c.schema[col].Type, values[i])
	}
	return rec
}

func (c *Collection) encodeRecord(rec storage.Record) ([]string, []any) {
	names := make([]string, 0, len(rec))
	for _, col := range c.columns {
		if _, ok := rec[col]; ok && col != storage.FieldID {
			names = append(names, col)
		}
	}
	cols := make([]string, len(names))
	vals := make([]any, len(names))
	for i, name := range names {
		cols[i] = quote(name)
		vals[i] = encode(c.schema[name].Type, rec[name])
	}
	return cols, vals
}

func (c *Collection) update(ctx context.Context, tx *sql.Tx, patch storage.Record, ids []int64) error {
	cols, vals := c.encodeRecord(patch)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	for _, id := range ids {
		vals = append(vals, id)
	}

	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s IN (%s)",
		quote(c.name), strings.Join(sets, ", "), quote(storage.FieldID), placeholders(len(ids)),
	), vals...)
	if err != nil {
		return c.writeError("update", err)
	}
	return nil
}

func (c *Collection) matchingIDs(ctx context.Context, tx *sql.Tx, q storage.Query) ([]int64, error) {
	where, args := buildWhere(c.schema, q)
	rows, err := tx.QueryContext(ctx, "SELECT "+quote(storage.FieldID)+" FROM "+quote(c.name)+where, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", c.name, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// checkUnique fails when data collides on a unique field with a row other
// than targets.
func (c *Collection) checkUnique(ctx context.Context, tx *sql.Tx, data storage.Record, targets []int64) error {
	for _, field := range c.schema.Unique() {
		value, ok := data[field]
		if !ok {
			continue
		}
		if len(targets) > 1 {
			return storage.UniqueViolation(field)
		}

		query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", quote(c.name), quote(field))
		args := []any{encode(c.schema[field].Type, value)}
		if len(targets) == 1 {
			query += " AND " + quote(storage.FieldID) + " <> ?"
			args = append(args, targets[0])
		}

		var one int
		err := tx.QueryRowContext(ctx, query+" LIMIT 1", args...).Scan(&one)
		switch {
		case err == nil:
			return storage.UniqueViolation(field)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("unique check %s.%s: %w", c.name, field, err)
		}
	}
	return nil
}

// writeError maps a constraint failure that slipped past checkUnique to
// the same validation error.
func (c *Collection) writeError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		// Message form: "UNIQUE constraint failed: widget.sku".
		msg := sqliteErr.Error()
		if i := strings.LastIndex(msg, "."); i >= 0 {
			return storage.UniqueViolation(msg[i+1:])
		}
		return storage.UniqueViolation(c.name)
	}
	return fmt.Errorf("%s %s: %w", op, c.name, err)
}
