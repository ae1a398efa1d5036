package store

import "fmt"

// schemaSQL returns the base DDL for one case's vector-index database: a
// documents table for cascade bookkeeping, a chunks table mapping each
// opaque chunk id to an integer rowid, and a vec0 virtual table keyed by
// that same rowid. There is no chunks_fts table here — the lexical index
// is specified as per-case in-memory, never persisted (see package
// lexical), so persisting a full-text index would contradict that.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name TEXT NOT NULL UNIQUE,
	ocr_applied INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS chunks (
	rowid INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id TEXT NOT NULL UNIQUE,
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_file_name ON chunks(file_name);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
	embedding float[%d]
);
`, embeddingDim)
}
