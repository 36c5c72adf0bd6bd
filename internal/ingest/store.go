package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/db"
)

// Document is one registered corpus document.
type Document struct {
	ID           string            `json:"id"`
	Collection   access.Collection `json:"collection"`
	Name         string            `json:"name"`
	Path         string            `json:"path"`
	ContentHash  string            `json:"content_hash"`
	ChunkCount   int               `json:"chunk_count"`
	UploaderRole string            `json:"uploader_role"`
	IndexedAt    time.Time         `json:"indexed_at"`
}

// LedgerEntry is one row of the incremental ingest ledger.
type LedgerEntry struct {
	Path        string
	Collection  access.Collection
	ContentHash string
}

// CollectionStat aggregates registry counts for one collection.
type CollectionStat struct {
	Collection access.Collection `json:"collection"`
	Documents  int               `json:"documents"`
	Chunks     int               `json:"chunks"`
}

// Store persists the document registry and the content-hash ledger that
// drives incremental re-ingestion. Both live in SQLite so the ingest CLI
// and the server share one view of the corpus.
type Store struct {
	db *db.DB
}

// NewStore creates a new ingest store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Ledger returns every ledger entry, keyed for change detection.
func (s *Store) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, collection, content_hash FROM ingest_state`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading ingest ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.Path, &e.Collection, &e.ContentHash); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordDocument upserts the registry row and ledger entry for one
// ingested file in a single transaction.
func (s *Store) RecordDocument(ctx context.Context, f FileInfo, chunkCount int, uploaderRole string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, collection, name, path, content_hash, chunk_count, uploader_role, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection, path) DO UPDATE SET
		   content_hash = excluded.content_hash,
		   chunk_count = excluded.chunk_count,
		   uploader_role = excluded.uploader_role,
		   indexed_at = excluded.indexed_at`,
		uuid.New().String(), f.Department, documentName(f.RelPath), f.RelPath,
		f.ContentHash, chunkCount, uploaderRole, now,
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", f.RelPath, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ingest_state (path, collection, content_hash, indexed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   collection = excluded.collection,
		   content_hash = excluded.content_hash,
		   indexed_at = excluded.indexed_at`,
		f.RelPath, f.Department, f.ContentHash, now,
	)
	if err != nil {
		return fmt.Errorf("upserting ledger entry %s: %w", f.RelPath, err)
	}

	return tx.Commit()
}

// RemoveDocument deletes the registry row and ledger entry for a file that
// no longer exists in the corpus.
func (s *Store) RemoveDocument(ctx context.Context, relPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, relPath); err != nil {
		return fmt.Errorf("deleting document %s: %w", relPath, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ingest_state WHERE path = ?`, relPath); err != nil {
		return fmt.Errorf("deleting ledger entry %s: %w", relPath, err)
	}

	return tx.Commit()
}

// ListDocuments returns the registered documents in the given collections,
// ordered by collection then name. An empty collection list yields nothing.
func (s *Store) ListDocuments(ctx context.Context, collections []access.Collection) ([]Document, error) {
	if len(collections) == 0 {
		return []Document{}, nil
	}

	placeholders := strings.Repeat("?,", len(collections))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(collections))
	for i, c := range collections {
		args[i] = c
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection, name, path, content_hash, chunk_count, uploader_role, indexed_at
		 FROM documents WHERE collection IN (`+placeholders+`)
		 ORDER BY collection, name`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Collection, &d.Name, &d.Path, &d.ContentHash,
			&d.ChunkCount, &d.UploaderRole, &d.IndexedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Stats aggregates document and chunk counts per collection.
func (s *Store) Stats(ctx context.Context) ([]CollectionStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, COUNT(*), COALESCE(SUM(chunk_count), 0)
		 FROM documents GROUP BY collection ORDER BY collection`,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating document stats: %w", err)
	}
	defer rows.Close()

	stats := []CollectionStat{}
	for rows.Next() {
		var st CollectionStat
		if err := rows.Scan(&st.Collection, &st.Documents, &st.Chunks); err != nil {
			return nil, fmt.Errorf("scanning collection stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// documentName derives a display name from the corpus-relative path.
func documentName(relPath string) string {
	if idx := strings.LastIndexByte(relPath, '/'); idx >= 0 {
		return relPath[idx+1:]
	}
	return relPath
}
