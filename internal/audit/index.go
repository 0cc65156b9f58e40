package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Index is a derived, rebuildable sqlite cache over the ndjson segments,
// giving O(log n) tail/range queries instead of scanning segment files.
// It is never the source of truth for the hash chain — Verify always reads
// the ndjson files directly — and can be deleted and rebuilt at any time.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) a sqlite index at path and rebuilds it from
// store's ndjson segments. Pass ":memory:" for a process-local, throwaway
// index.
func OpenIndex(ctx context.Context, path string, store *Store) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit index: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			timestamp_ms  INTEGER NOT NULL,
			type          TEXT NOT NULL,
			session_id    TEXT,
			agent_id      TEXT,
			hash          TEXT NOT NULL,
			previous_hash TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp_ms);
		CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit index schema: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.rebuild(ctx, store); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// rebuild truncates and repopulates the index from the store's current
// on-disk segments. Called once at startup; the ndjson files remain
// authoritative, so a stale or corrupt index is always safe to discard.
func (idx *Index) rebuild(ctx context.Context, store *Store) error {
	if _, err := idx.db.ExecContext(ctx, "DELETE FROM entries"); err != nil {
		return fmt.Errorf("clearing audit index: %w", err)
	}

	paths, err := store.segmentPaths()
	if err != nil {
		return err
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning audit index rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO entries (id, timestamp_ms, type, session_id, agent_id, hash, previous_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing audit index insert: %w", err)
	}
	defer stmt.Close()

	for _, path := range paths {
		lines, _, err := readSegmentLines(path)
		if err != nil {
			return err
		}
		for _, line := range lines {
			entry, err := unmarshalLine(line)
			if err != nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx, entry.ID, entry.Timestamp.UnixMilli(), string(entry.Type),
				entry.SessionID, entry.AgentID, entry.Hash, entry.PreviousHash); err != nil {
				return fmt.Errorf("indexing audit entry %s: %w", entry.ID, err)
			}
		}
	}
	return tx.Commit()
}

// IndexedTail returns the IDs of the last n entries via the sqlite index,
// without re-scanning segment files. Callers that need full Entry bodies
// still read them from the ndjson segments (via Store.EntryByID) keyed by ID;
// the index exists to make "which IDs" fast, not to replace the ndjson
// payload.
func (idx *Index) IndexedTail(ctx context.Context, n int) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM entries ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying audit index tail: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning audit index row: %w", err)
		}
		ids = append(ids, id)
	}
	// Reverse to chronological order, matching Store.Tail's contract.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, rows.Err()
}

// RangeBySession returns the IDs of every entry carrying the given session
// ID, in chronological order.
func (idx *Index) RangeBySession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id FROM entries WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying audit index by session: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning audit index row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying sqlite database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
