// Package store is the per-case vector index: a persistent map from chunk
// id to (embedding, file name) backed by SQLite and sqlite-vec, opened once
// per case under a sanitized case-derived file name.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrChunkNotFound names a chunk id that has no row in this case's vector
// index. No Store method returns it: Delete skips ids that have no row.
var ErrChunkNotFound = errors.New("store: chunk not found")

// Match is one result of a vector query: a chunk id, its owning file, and
// the raw distance sqlite-vec reports (monotonically increasing with
// dissimilarity — callers convert to a similarity score).
type Match struct {
	ChunkID  string
	FileName string
	Distance float64
}

// VectorChunk is one chunk's embedding plus enough identity to look it up
// and to cascade-delete it with its document.
type VectorChunk struct {
	ChunkID  string
	FileName string
	Vector   []float32
}

// Store wraps one case's SQLite vector-index database.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

var caseFileSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// sanitizeCaseID maps a case id to an alphanumeric+underscore namespace,
// truncated to keep file names portable.
func sanitizeCaseID(caseID string) string {
	s := caseFileSanitizer.ReplaceAllString(caseID, "_")
	const maxLen = 64
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// New opens (creating if necessary) the vector-index database for one case
// under baseDir, named from a sanitized form of caseID.
func New(baseDir, caseID string, embeddingDim int) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating vector store directory: %w", err)
	}
	dbPath := filepath.Join(baseDir, sanitizeCaseID(caseID)+".db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// Add inserts chunks with their embeddings. Documents are upserted
// implicitly so a later DeleteDocument can cascade.
func (s *Store) Add(ctx context.Context, chunks []VectorChunk) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range chunks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (file_name) VALUES (?)
				ON CONFLICT(file_name) DO UPDATE SET file_name = excluded.file_name
			`, c.FileName); err != nil {
				return fmt.Errorf("upserting document %s: %w", c.FileName, err)
			}
			var docID int64
			row := tx.QueryRowContext(ctx, "SELECT id FROM documents WHERE file_name = ?", c.FileName)
			if err := row.Scan(&docID); err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx, `
				INSERT INTO chunks (chunk_id, document_id, file_name) VALUES (?, ?, ?)
			`, c.ChunkID, docID, c.FileName)
			if err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ChunkID, err)
			}
			rowid, err := res.LastInsertId()
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_chunks (rowid, embedding) VALUES (?, ?)",
				rowid, serializeFloat32(c.Vector)); err != nil {
				return fmt.Errorf("inserting embedding for %s: %w", c.ChunkID, err)
			}
		}
		return nil
	})
}

// Delete removes chunks by id from both the chunk table and the vector
// index.
func (s *Store) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range chunkIDs {
			var rowid int64
			err := tx.QueryRowContext(ctx, "SELECT rowid FROM chunks WHERE chunk_id = ?", id).Scan(&rowid)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks WHERE rowid = ?", rowid); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE rowid = ?", rowid); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDocument removes every chunk belonging to fileName, along with its
// document row, and returns the deleted chunk ids.
func (s *Store) DeleteDocument(ctx context.Context, fileName string) ([]string, error) {
	var ids []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT rowid, chunk_id FROM chunks WHERE file_name = ?", fileName)
		if err != nil {
			return err
		}
		var rowids []int64
		for rows.Next() {
			var rowid int64
			var chunkID string
			if err := rows.Scan(&rowid, &chunkID); err != nil {
				rows.Close()
				return err
			}
			rowids = append(rowids, rowid)
			ids = append(ids, chunkID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, rowid := range rowids {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks WHERE rowid = ?", rowid); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_name = ?", fileName); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE file_name = ?", fileName); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Query runs a KNN search and returns up to k matches ordered by ascending
// distance.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.file_name, v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("store: querying vector index: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.FileName, &m.Distance); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Count returns the number of chunks currently indexed.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// ListDocuments returns every distinct file name with chunks in this case.
func (s *Store) ListDocuments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_name FROM documents ORDER BY file_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
