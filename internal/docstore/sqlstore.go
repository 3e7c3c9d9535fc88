package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect adapts the document table to a SQL engine.
type Dialect interface {
	Name() string
	Schema() string
	// Rebind rewrites ? placeholders for the engine.
	Rebind(query string) string
	// LockSuffix is appended to a row read inside an update transaction.
	LockSuffix() string
	// Where renders equality filters on the JSON data column.
	Where(filters []Filter) (string, []any, error)
}

// PostgresDialect stores documents in a JSONB column and filters with
// containment, which compares JSON types exactly.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Schema() string {
	return `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		revision BIGINT NOT NULL,
		data JSONB NOT NULL,
		PRIMARY KEY (collection, id)
	)`
}

func (PostgresDialect) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (PostgresDialect) LockSuffix() string { return " FOR UPDATE" }

func (PostgresDialect) Where(filters []Filter) (string, []any, error) {
	var clauses []string
	var args []any
	contain := map[string]any{}
	for _, f := range filters {
		if !fieldName.MatchString(f.Field) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
		}
		if f.Value == nil {
			clauses = append(clauses, fmt.Sprintf("COALESCE(data->'%s', 'null'::jsonb) = 'null'::jsonb", f.Field))
			continue
		}
		contain[f.Field] = f.Value
	}
	if len(contain) > 0 {
		raw, err := json.Marshal(contain)
		if err != nil {
			return "", nil, fmt.Errorf("encode filters: %w", err)
		}
		clauses = append(clauses, "data @> ?::jsonb")
		args = append(args, string(raw))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// SQLiteDialect stores documents as JSON text and filters with json_extract.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Schema() string {
	return `CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		revision INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`
}

func (SQLiteDialect) Rebind(query string) string { return query }

func (SQLiteDialect) LockSuffix() string { return "" }

func (SQLiteDialect) Where(filters []Filter) (string, []any, error) {
	var clauses []string
	var args []any
	for _, f := range filters {
		if !fieldName.MatchString(f.Field) {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
		}
		expr := fmt.Sprintf("json_extract(data, '$.%s')", f.Field)
		switch v := f.Value.(type) {
		case nil:
			clauses = append(clauses, expr+" IS NULL")
		case bool:
			// json_extract yields 1/0 for JSON booleans
			clauses = append(clauses, expr+" = ?")
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		default:
			clauses = append(clauses, expr+" = ?")
			args = append(args, v)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return PostgresDialect{}, nil
	case "sqlite":
		return SQLiteDialect{}, nil
	}
	return nil, fmt.Errorf("no document dialect for driver %q", driver)
}

// SQLStore keeps every collection in one documents table keyed by
// (collection, id), with the document body as JSON.
type SQLStore struct {
	db           *sql.DB
	dialect      Dialect
	logger       *slog.Logger
	maxBatchSize int
	now          func() time.Time
}

// NewSQLStore creates the documents table if needed and returns a store on db.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, maxBatchSize int, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if _, err := db.ExecContext(ctx, dialect.Schema()); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	logger.Debug("document store ready", slog.String("dialect", dialect.Name()))
	return &SQLStore{db: db, dialect: dialect, logger: logger, maxBatchSize: maxBatchSize, now: time.Now}, nil
}

func (s *SQLStore) stamp() Timestamp { return TimestampFromTime(s.now()) }

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	q := s.dialect.Rebind(`SELECT revision, data FROM documents WHERE collection = ? AND id = ?`)
	var rev int64
	var raw []byte
	err := s.db.QueryRowContext(ctx, q, collection, id).Scan(&rev, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, unavailable("get "+collection, err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Document{}, false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Document{ID: id, Revision: rev, Fields: fields}, true, nil
}

func (s *SQLStore) Create(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(resolveFields(fields, s.stamp()))
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	q := s.dialect.Rebind(`INSERT INTO documents (collection, id, revision, data) VALUES (?, ?, 1, ?)
		ON CONFLICT (collection, id) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, q, collection, id, string(raw))
	if err != nil {
		return unavailable("create "+collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("create "+collection, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	return nil
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(resolveFields(fields, s.stamp()))
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := s.db.ExecContext(ctx, s.upsertQuery(), collection, id, string(raw)); err != nil {
		return unavailable("set "+collection, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, m Mutation) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, unavailable("update "+collection, err)
	}
	defer tx.Rollback()

	q := s.dialect.Rebind(`SELECT revision, data FROM documents WHERE collection = ? AND id = ?` + s.dialect.LockSuffix())
	var rev int64
	var raw []byte
	err = tx.QueryRowContext(ctx, q, collection, id).Scan(&rev, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Document{}, unavailable("update "+collection, err)
	}
	if m.ExpectRevision != 0 && m.ExpectRevision != rev {
		return Document{}, fmt.Errorf("%s/%s at revision %d, expected %d: %w",
			collection, id, rev, m.ExpectRevision, ErrRevisionMismatch)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if err := applyMutation(fields, m, s.stamp()); err != nil {
		return Document{}, err
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	upd := s.dialect.Rebind(`UPDATE documents SET data = ?, revision = ? WHERE collection = ? AND id = ? AND revision = ?`)
	res, err := tx.ExecContext(ctx, upd, string(encoded), rev+1, collection, id, rev)
	if err != nil {
		return Document{}, unavailable("update "+collection, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Document{}, fmt.Errorf("%s/%s changed during update: %w", collection, id, ErrRevisionMismatch)
	}
	if err := tx.Commit(); err != nil {
		return Document{}, unavailable("update "+collection, err)
	}
	// re-decode so the caller sees the stored representation
	stored, err := decodeFields(encoded)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Revision: rev + 1, Fields: stored}, nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	q := s.dialect.Rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`)
	if _, err := s.db.ExecContext(ctx, q, collection, id); err != nil {
		return unavailable("delete "+collection, err)
	}
	return nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	where, args, err := s.dialect.Where(filters)
	if err != nil {
		return nil, err
	}
	q := `SELECT id, revision, data FROM documents WHERE collection = ?`
	if where != "" {
		q += " AND " + where
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q), append([]any{collection}, args...)...)
	if err != nil {
		return nil, unavailable("query "+collection, err)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var d Document
		var raw []byte
		if err := rows.Scan(&d.ID, &d.Revision, &raw); err != nil {
			return nil, unavailable("query "+collection, err)
		}
		if d.Fields, err = decodeFields(raw); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, d.ID, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query "+collection, err)
	}
	return out, nil
}

func (s *SQLStore) Commit(ctx context.Context, batch Batch) error {
	if err := checkBatch(batch, s.maxBatchSize); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("commit", err)
	}
	defer tx.Rollback()

	now := s.stamp()
	del := s.dialect.Rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`)
	for _, w := range batch {
		switch w.Op {
		case OpSet:
			raw, err := json.Marshal(resolveFields(w.Fields, now))
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", w.Collection, w.ID, err)
			}
			if _, err := tx.ExecContext(ctx, s.upsertQuery(), w.Collection, w.ID, string(raw)); err != nil {
				return unavailable("commit", err)
			}
		case OpDelete:
			if _, err := tx.ExecContext(ctx, del, w.Collection, w.ID); err != nil {
				return unavailable("commit", err)
			}
		default:
			return fmt.Errorf("unknown batch op %d", w.Op)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *SQLStore) MaxBatchSize() int { return s.maxBatchSize }

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close is a no-op; the connection pool belongs to the caller.
func (s *SQLStore) Close() error { return nil }

func (s *SQLStore) upsertQuery() string {
	return s.dialect.Rebind(`INSERT INTO documents (collection, id, revision, data) VALUES (?, ?, 1, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, revision = documents.revision + 1`)
}

func decodeFields(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}
