// Package store provides the path-keyed document store backing the service.
//
// # Design
//
// Documents live in a single Postgres table keyed by slash-separated paths
// (reports/{id}, users/{uid}, public_data_cache/{feed}/data, ...). Values are
// JSONB. Multi-document updates are issued as one pgx batch inside a
// transaction so related fields (a report's confidence score, level, and
// breakdown) can never be observed torn. Writes are last-write-wins; the
// service layer accepts that and keeps history logs append-only.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides document operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromURL creates a new store by connecting to the given database URL.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// RAW DOCUMENT OPERATIONS
// =============================================================================

// Get returns the raw document at path, or nil if none exists.
func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE path = $1`, path).Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetJSON loads and unmarshals the document at path. It returns false when
// the document does not exist.
func (s *Store) GetJSON(ctx context.Context, path string, v any) (bool, error) {
	doc, err := s.Get(ctx, path)
	if err != nil {
		return false, err
	}
	if doc == nil {
		return false, nil
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return false, fmt.Errorf("decoding document %s: %w", path, err)
	}
	return true, nil
}

// Set upserts the document at path.
func (s *Store) Set(ctx context.Context, path string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", path, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (path, doc, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, path, doc)
	return err
}

// SetBatch upserts every document in one transaction. This is the multi-path
// write primitive: either all paths update or none do.
func (s *Store) SetBatch(ctx context.Context, docs map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	// Deterministic order keeps concurrent batches from deadlocking.
	paths := make([]string, 0, len(docs))
	for path := range docs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		doc, err := json.Marshal(docs[path])
		if err != nil {
			return fmt.Errorf("encoding document %s: %w", path, err)
		}
		batch.Queue(`
			INSERT INTO documents (path, doc, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
		`, path, doc)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for range paths {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete removes the document at path. Deleting a missing document is not an
// error.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path)
	return err
}

// DeleteBatch removes every path in one transaction.
func (s *Store) DeleteBatch(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE path = ANY($1)`, paths)
	return err
}

// ListPrefix returns every document whose path starts with prefix + "/",
// keyed by the remainder of the path.
func (s *Store) ListPrefix(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT path, doc FROM documents WHERE path LIKE $1
	`, prefix+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var path string
		var doc []byte
		if err := rows.Scan(&path, &doc); err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(path, prefix+"/")] = doc
	}
	return out, rows.Err()
}

// KeysPrefix returns the relative keys under prefix without loading the
// documents.
func (s *Store) KeysPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT path FROM documents WHERE path LIKE $1`, prefix+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		keys = append(keys, strings.TrimPrefix(path, prefix+"/"))
	}
	return keys, rows.Err()
}

// =============================================================================
// COUNTERS
// =============================================================================

// IncrementBounded atomically increments the integer counter at path if its
// current value is below limit. It returns the post-increment value and
// whether the increment was admitted.
func (s *Store) IncrementBounded(ctx context.Context, path string, limit int) (int, bool, error) {
	var value int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (path, doc, updated_at)
		VALUES ($1, '1'::jsonb, now())
		ON CONFLICT (path) DO UPDATE
			SET doc = to_jsonb((documents.doc #>> '{}')::int + 1), updated_at = now()
			WHERE (documents.doc #>> '{}')::int < $2
		RETURNING (doc #>> '{}')::int
	`, path, limit).Scan(&value)
	if err == pgx.ErrNoRows {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// GetCounter returns the integer counter at path, zero when absent.
func (s *Store) GetCounter(ctx context.Context, path string) (int, error) {
	var value int
	err := s.pool.QueryRow(ctx,
		`SELECT (doc #>> '{}')::int FROM documents WHERE path = $1`, path).Scan(&value)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return value, err
}

// =============================================================================
// APPEND-ONLY LOGS
// =============================================================================

// Append adds an entry under the log at basePath using a time-ordered key.
// Entries are never rewritten.
func (s *Store) Append(ctx context.Context, basePath string, v any) (string, error) {
	key := fmt.Sprintf("%d", time.Now().UTC().UnixNano())
	if err := s.Set(ctx, basePath+"/"+key, v); err != nil {
		return "", err
	}
	return key, nil
}
