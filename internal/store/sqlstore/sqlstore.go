// internal/store/sqlstore/sqlstore.go
//
// MySQL-backed document store.
//
// Context
// -------
// Production deployments keep documents in one `document` table: a
// UUID primary key, the owning collection name, and the document body
// in a JSON column.  Rows are fetched per collection and evaluated by
// the shared engine in internal/store, so query semantics match the
// in-memory backend exactly; only uniqueness probes are pushed down
// into SQL (JSON_EXTRACT on the unique field).
//
// Schema
// ------
//	CREATE TABLE document (
//	    id         CHAR(36)     NOT NULL PRIMARY KEY,
//	    collection VARCHAR(64)  NOT NULL,
//	    doc        JSON         NOT NULL,
//	    created_at DATETIME(6)  NOT NULL,
//	    updated_at DATETIME(6)  NOT NULL,
//	    KEY idx_collection (collection)
//	);
//
// Notes
// -----
// • The MySQL driver also serves MariaDB and Cockroach on the MySQL
//   wire protocol.
// • Driver duplicate-entry errors (1062) are mapped to
//   *store.DuplicateError so callers never see driver shapes.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/yanizio/recordapi/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// mysqlDuplicateEntry is the server error number for a violated unique
// key.
const mysqlDuplicateEntry = 1062

// Open returns a *sqlx.DB with conservative pool defaults: 15 max open,
// 5 idle, 30-minute connection lifetime.  Pings before returning so
// bootstrap fails fast.
func Open(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(dsn, 15, 5)
}

// OpenWithOptions lets callers tune pool sizes.
func OpenWithOptions(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// Store hands out collection views over one shared *sqlx.DB and keeps
// the descriptor registry used to strip protected fields from
// populated references.
type Store struct {
	db    *sqlx.DB
	mu    sync.RWMutex
	descs map[string]*store.Descriptor
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, descs: make(map[string]*store.Descriptor)}
}

// Collection returns the view for d.  Views are cheap; callers may
// create them per request or hold one.
func (s *Store) Collection(d *store.Descriptor) *Collection {
	s.mu.Lock()
	s.descs[d.Collection] = d
	s.mu.Unlock()
	return &Collection{db: s.db, desc: d, owner: s}
}

func (s *Store) descriptor(collection string) *store.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.descs[collection]
}

// Collection is one collection's view over the document table.
type Collection struct {
	db    *sqlx.DB
	desc  *store.Descriptor
	owner *Store
}

var _ store.Collection = (*Collection)(nil)

// Descriptor implements store.Collection.
func (c *Collection) Descriptor() *store.Descriptor { return c.desc }

// Count implements store.Collection.
func (c *Collection) Count(ctx context.Context, filter store.Cond) (int, error) {
	docs, err := c.fetchAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		if store.Matches(doc, filter, c.desc) {
			n++
		}
	}
	return n, nil
}

// Find implements store.Collection.
func (c *Collection) Find(ctx context.Context, plan *store.QueryPlan) ([]store.Record, error) {
	docs, err := c.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]store.Record, 0, len(docs))
	for _, doc := range docs {
		if store.Matches(doc, plan.Filter, c.desc) {
			matched = append(matched, doc)
		}
	}
	store.SortRecords(matched, plan.Sort)
	matched = store.Paginate(matched, plan.Page)

	out := make([]store.Record, 0, len(matched))
	for _, doc := range matched {
		if err := c.populate(ctx, doc, plan.Populate); err != nil {
			return nil, err
		}
		out = append(out, store.ApplyProjection(doc, plan.Projection))
	}
	return out, nil
}

// Insert implements store.Collection.
func (c *Collection) Insert(ctx context.Context, fields store.Record) (store.Record, error) {
	doc := make(store.Record, len(fields)+3)
	for k, v := range fields {
		doc[k] = v
	}
	doc[store.FieldID] = uuid.NewString()
	store.Touch(doc, time.Now())

	if dup, err := c.conflicts(ctx, doc, ""); err != nil {
		return nil, err
	} else if len(dup) > 0 {
		return nil, &store.DuplicateError{Fields: dup}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	const q = `
        INSERT INTO document (id, collection, doc, created_at, updated_at)
        VALUES (?, ?, ?, NOW(6), NOW(6))`
	if _, err := c.db.ExecContext(ctx, q, doc[store.FieldID], c.desc.Collection, raw); err != nil {
		// The pre-insert probe can lose a race; map the driver's
		// duplicate-entry error the same way.
		if isDuplicateEntry(err) {
			return nil, c.duplicateError(ctx, doc, "")
		}
		return nil, err
	}
	return doc, nil
}

// FindByID implements store.Collection.
func (c *Collection) FindByID(ctx context.Context, id string, proj store.Projection, populate []string) (store.Record, error) {
	doc, err := c.fetchOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.populate(ctx, doc, populate); err != nil {
		return nil, err
	}
	return store.ApplyProjection(doc, proj), nil
}

// FindByIDAndUpdate implements store.Collection.
func (c *Collection) FindByIDAndUpdate(ctx context.Context, id string, fields store.Record, populate []string) (store.Record, error) {
	doc, err := c.fetchOne(ctx, id)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	if dup, err := c.conflicts(ctx, doc, id); err != nil {
		return nil, err
	} else if len(dup) > 0 {
		return nil, &store.DuplicateError{Fields: dup}
	}
	doc[store.FieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE document SET doc = ?, updated_at = NOW(6) WHERE id = ? AND collection = ?`
	if _, err := c.db.ExecContext(ctx, q, raw, id, c.desc.Collection); err != nil {
		if isDuplicateEntry(err) {
			return nil, c.duplicateError(ctx, doc, id)
		}
		return nil, err
	}
	if err := c.populate(ctx, doc, populate); err != nil {
		return nil, err
	}
	return doc, nil
}

// FindByIDAndDelete implements store.Collection.
func (c *Collection) FindByIDAndDelete(ctx context.Context, id string) (store.Record, error) {
	doc, err := c.fetchOne(ctx, id)
	if err != nil {
		return nil, err
	}
	const q = `DELETE FROM document WHERE id = ? AND collection = ?`
	if _, err := c.db.ExecContext(ctx, q, id, c.desc.Collection); err != nil {
		return nil, err
	}
	return doc, nil
}

//
// ── internals ───────────────────────────────────────────────────────────
//

func (c *Collection) fetchAll(ctx context.Context) ([]store.Record, error) {
	const q = `SELECT doc FROM document WHERE collection = ? ORDER BY id`
	var rows [][]byte
	if err := c.db.SelectContext(ctx, &rows, q, c.desc.Collection); err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(rows))
	for _, raw := range rows {
		var doc store.Record
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *Collection) fetchOne(ctx context.Context, id string) (store.Record, error) {
	const q = `SELECT doc FROM document WHERE id = ? AND collection = ? LIMIT 1`
	var raw []byte
	if err := c.db.GetContext(ctx, &raw, q, id, c.desc.Collection); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoDocument
		}
		return nil, err
	}
	var doc store.Record
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// conflicts probes each unique field for another document already
// holding doc's value.
func (c *Collection) conflicts(ctx context.Context, doc store.Record, selfID string) ([]string, error) {
	var dup []string
	for _, field := range c.desc.UniqueFields {
		val, ok := doc[field]
		if !ok || val == nil {
			continue
		}
		const q = `
            SELECT id FROM document
            WHERE collection = ?
              AND JSON_UNQUOTE(JSON_EXTRACT(doc, ?)) = ?
            LIMIT 1`
		var id string
		err := c.db.GetContext(ctx, &id, q, c.desc.Collection, "$."+field, val)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if id != selfID {
			dup = append(dup, field)
		}
	}
	return dup, nil
}

// populate expands declared reference fields by primary-key lookup.
func (c *Collection) populate(ctx context.Context, doc store.Record, fields []string) error {
	for _, field := range fields {
		ref, ok := c.desc.References[field]
		if !ok {
			continue
		}
		id, ok := doc[field].(string)
		if !ok || id == "" {
			continue
		}
		const q = `SELECT doc FROM document WHERE id = ? AND collection = ? LIMIT 1`
		var raw []byte
		err := c.db.GetContext(ctx, &raw, q, id, ref)
		if errors.Is(err, sql.ErrNoRows) {
			continue // dangling reference; leave the id in place
		}
		if err != nil {
			return err
		}
		var target store.Record
		if err := json.Unmarshal(raw, &target); err != nil {
			return err
		}
		if c.owner != nil {
			if refDesc := c.owner.descriptor(ref); refDesc != nil {
				target = store.Public(target, refDesc)
			}
		}
		doc[field] = target
	}
	return nil
}

// duplicateError re-probes after a driver 1062 so the conflict names
// only the offending fields.  When the re-probe cannot identify them
// (probe error, or the other writer already changed the row) every
// unique field is reported.
func (c *Collection) duplicateError(ctx context.Context, doc store.Record, selfID string) *store.DuplicateError {
	if dup, err := c.conflicts(ctx, doc, selfID); err == nil && len(dup) > 0 {
		return &store.DuplicateError{Fields: dup}
	}
	return &store.DuplicateError{Fields: c.desc.UniqueFields}
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
