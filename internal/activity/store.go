package activity

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/formdesigner/internal/types"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity, newest first.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search matches summaries case-insensitively.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

const entriesTable = "activity_entries"

var entryColumns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "source_refs", "summary", "category", "actor", "payload",
}

// SQLiteStore implements Store on a SQLite table. occurred_at is stored as
// Unix nanoseconds so ordering and range filters stay numeric.
type SQLiteStore struct {
	db *stdsql.DB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db *stdsql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// CreateTable creates the activity_entries table and its indexes.
func (s *SQLiteStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS activity_entries (
			event_id            TEXT NOT NULL,
			event_type          TEXT NOT NULL,
			occurred_at         INTEGER NOT NULL,
			indexed_entity_type TEXT NOT NULL,
			indexed_entity_id   TEXT NOT NULL,
			entity_role         TEXT NOT NULL,
			source_refs         TEXT NOT NULL DEFAULT '[]',
			summary             TEXT NOT NULL,
			category            TEXT NOT NULL,
			actor               TEXT NOT NULL DEFAULT '',
			payload             TEXT,
			PRIMARY KEY (indexed_entity_type, indexed_entity_id, occurred_at, event_id)
		);

		CREATE INDEX IF NOT EXISTS idx_activity_entity_time
			ON activity_entries (indexed_entity_type, indexed_entity_id, occurred_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating activity table: %w", err)
	}
	return nil
}

// WriteEntries inserts activity entries, ignoring duplicates.
func (s *SQLiteStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := sql.Dialect(dialect.SQLite).Insert(entriesTable).Columns(entryColumns...)
	for _, e := range entries {
		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UnixNano(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refsJSON), e.Summary, e.Category, e.Actor, payload,
		)
	}
	query, args := ins.OnConflict(sql.DoNothing()).Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLiteStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	filters := func() []*sql.Predicate {
		preds := []*sql.Predicate{
			sql.EQ("indexed_entity_type", entityType),
			sql.EQ("indexed_entity_id", entityID),
		}
		if opts.Since != nil {
			preds = append(preds, sql.GTE("occurred_at", opts.Since.UnixNano()))
		}
		if opts.Until != nil {
			preds = append(preds, sql.LTE("occurred_at", opts.Until.UnixNano()))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, sql.In("category", anySlice(opts.Categories)...))
		}
		if len(opts.EventTypes) > 0 {
			preds = append(preds, sql.In("event_type", anySlice(opts.EventTypes)...))
		}
		return preds
	}

	page := filters()
	if opts.Cursor != "" {
		if cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			page = append(page, sql.LT("occurred_at", cursorTime.UnixNano()))
		}
	}
	limit := opts.limit()
	query, args := sql.Dialect(dialect.SQLite).
		Select(entryColumns...).
		From(sql.Table(entriesTable)).
		Where(sql.And(page...)).
		OrderBy(sql.Desc("occurred_at")).
		Limit(limit + 1). // one extra for the cursor
		Query()
	entries, err := s.scan(ctx, query, args)
	if err != nil {
		return nil, "", 0, err
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}

	total, err := s.count(ctx, filters())
	if err != nil {
		return nil, "", 0, err
	}
	return entries, nextCursor, total, nil
}

// Search matches summaries case-insensitively.
func (s *SQLiteStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	filters := func() []*sql.Predicate {
		preds := []*sql.Predicate{sql.ContainsFold("summary", query)}
		if opts.EntityType != "" {
			preds = append(preds, sql.EQ("indexed_entity_type", opts.EntityType))
		}
		if opts.Since != nil {
			preds = append(preds, sql.GTE("occurred_at", opts.Since.UnixNano()))
		}
		if len(opts.Categories) > 0 {
			preds = append(preds, sql.In("category", anySlice(opts.Categories)...))
		}
		return preds
	}

	q, args := sql.Dialect(dialect.SQLite).
		Select(entryColumns...).
		From(sql.Table(entriesTable)).
		Where(sql.And(filters()...)).
		OrderBy(sql.Desc("occurred_at")).
		Limit(opts.limit()).
		Query()
	entries, err := s.scan(ctx, q, args)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.count(ctx, filters())
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLiteStore) count(ctx context.Context, preds []*sql.Predicate) (int, error) {
	query, args := sql.Dialect(dialect.SQLite).
		Select(sql.Count("*")).
		From(sql.Table(entriesTable)).
		Where(sql.And(preds...)).
		Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) scan(ctx context.Context, query string, args []any) ([]types.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var (
			e        types.ActivityEntry
			occurred int64
			refsJSON string
			payload  stdsql.NullString
		)
		err := rows.Scan(
			&e.EventID, &e.EventType, &occurred, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refsJSON, &e.Summary, &e.Category, &e.Actor, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.OccurredAt = time.Unix(0, occurred).UTC()
		if refsJSON != "" {
			_ = json.Unmarshal([]byte(refsJSON), &e.SourceRefs)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
