package store

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/matthewbaird/formdesigner/internal/types"
)

const formsTable = "forms"

var formColumns = []string{
	"id", "name", "description", "fields", "context_inputs",
	"created_at", "updated_at",
}

// SQLiteStore keeps forms in a SQLite table. Field lists and context inputs
// are stored as JSON text.
type SQLiteStore struct {
	db *stdsql.DB
}

// NewSQLiteStore wraps db. Call Migrate before first use.
func NewSQLiteStore(db *stdsql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the forms table if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS forms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		fields TEXT NOT NULL DEFAULT '[]',
		context_inputs TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		inserted_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating forms table: %w", err)
	}
	return nil
}

func builder() *sql.DialectBuilder {
	return sql.Dialect(dialect.SQLite)
}

func (s *SQLiteStore) List(ctx context.Context) ([]StoredForm, error) {
	query, args := builder().
		Select(formColumns...).
		From(sql.Table(formsTable)).
		OrderBy("inserted_at").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying forms: %w", err)
	}
	defer rows.Close()

	var out []StoredForm
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (StoredForm, error) {
	query, args := builder().
		Select(formColumns...).
		From(sql.Table(formsTable)).
		Where(sql.EQ("id", id)).
		Query()
	row := s.db.QueryRowContext(ctx, query, args...)
	f, err := scanForm(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return StoredForm{}, ErrNotFound
	}
	return f, err
}

func (s *SQLiteStore) Insert(ctx context.Context, f StoredForm) error {
	fields, inputs, err := encodeJSONColumns(f)
	if err != nil {
		return err
	}
	query, args := builder().
		Insert(formsTable).
		Columns(append(formColumns, "inserted_at")...).
		Values(f.ID, f.Name, f.Description, fields, inputs, f.CreatedAt, f.UpdatedAt, time.Now().UnixNano()).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting form %s: %w", f.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, f StoredForm) error {
	fields, inputs, err := encodeJSONColumns(f)
	if err != nil {
		return err
	}
	query, args := builder().
		Update(formsTable).
		Set("name", f.Name).
		Set("description", f.Description).
		Set("fields", fields).
		Set("context_inputs", inputs).
		Set("created_at", f.CreatedAt).
		Set("updated_at", f.UpdatedAt).
		Where(sql.EQ("id", f.ID)).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating form %s: %w", f.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	query, args := builder().
		Delete(formsTable).
		Where(sql.EQ("id", id)).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("deleting form %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting form %s: %w", id, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForm(r rowScanner) (StoredForm, error) {
	var (
		f              StoredForm
		fields, inputs string
	)
	if err := r.Scan(&f.ID, &f.Name, &f.Description, &fields, &inputs, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return StoredForm{}, err
		}
		return StoredForm{}, fmt.Errorf("scanning form: %w", err)
	}
	f.Fields = []schema.Entry{}
	if err := json.Unmarshal([]byte(fields), &f.Fields); err != nil {
		return StoredForm{}, fmt.Errorf("decoding fields of form %s: %w", f.ID, err)
	}
	var ci []types.ContextInput
	if err := json.Unmarshal([]byte(inputs), &ci); err != nil {
		return StoredForm{}, fmt.Errorf("decoding context inputs of form %s: %w", f.ID, err)
	}
	if len(ci) > 0 {
		f.ContextInputs = ci
	}
	return f, nil
}

func encodeJSONColumns(f StoredForm) (string, string, error) {
	entries := f.Fields
	if entries == nil {
		entries = []schema.Entry{}
	}
	fields, err := json.Marshal(entries)
	if err != nil {
		return "", "", fmt.Errorf("encoding fields of form %s: %w", f.ID, err)
	}
	ci := f.ContextInputs
	if ci == nil {
		ci = []types.ContextInput{}
	}
	inputs, err := json.Marshal(ci)
	if err != nil {
		return "", "", fmt.Errorf("encoding context inputs of form %s: %w", f.ID, err)
	}
	return string(fields), string(inputs), nil
}
