// Package provenance tracks the mapping from a client document to the
// chunks extracted from it, and from each chunk back to a human-verifiable
// location in that document. It is the on-disk substrate the citation
// validator checks quoted excerpts against: a chunk's stored text must
// never change after it is written.
package provenance

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrChunkNotFound is returned when a chunk id has no entry in the index.
var ErrChunkNotFound = errors.New("provenance: chunk not found")

// ErrDocumentNotFound is returned when a file name has no entry in the index.
var ErrDocumentNotFound = errors.New("provenance: document not found")

const (
	indexFileName = "document_index.json"
	rawTextDir    = "raw_text"
	previewChars  = 200
)

// ChunkProvenance points from a chunk back to the smallest meaningful unit
// of its source document: exactly one of PageNum or ParaIdx is set (both
// 1-indexed), plus a character span and an OCR flag. The chunker fills the
// span with the chunk text's own extent (0 to its length), not an offset
// into the source.
type ChunkProvenance struct {
	ChunkID   string `json:"chunk_id"`
	FileName  string `json:"file_name"`
	PageNum   *int   `json:"page_num,omitempty"`
	ParaIdx   *int   `json:"para_idx,omitempty"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
	OCR       bool   `json:"ocr"`
}

// Chunk is the atomic unit of client evidence: verbatim text plus the
// provenance pointing back to where it came from.
type Chunk struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	Provenance ChunkProvenance `json:"provenance"`
}

// documentEntry records the chunks produced from one source file.
type documentEntry struct {
	ChunkCount int      `json:"chunk_count"`
	ChunkIDs   []string `json:"chunk_ids"`
	OCRApplied bool     `json:"ocr_applied"`
	IndexedAt  string   `json:"indexed_at"`
}

// chunkEntry is a ChunkProvenance plus a short preview of its text, stored
// inline in the index so callers can skim content without reading the full
// raw_text shard.
type chunkEntry struct {
	ChunkProvenance
	TextPreview string `json:"text_preview"`
}

// index is the on-disk shape of document_index.json.
type index struct {
	Documents map[string]documentEntry `json:"documents"`
	Chunks    map[string]chunkEntry    `json:"chunks"`
}

func newIndex() *index {
	return &index{Documents: map[string]documentEntry{}, Chunks: map[string]chunkEntry{}}
}

// Store persists the chunk/provenance index and the verbatim chunk text for
// one case directory.
type Store struct {
	caseDir string
}

// New returns a Store rooted at caseDir. caseDir must already have been
// validated by the caller (see package caseid).
func New(caseDir string) *Store {
	return &Store{caseDir: caseDir}
}

func (s *Store) indexPath() string {
	return filepath.Join(s.caseDir, indexFileName)
}

func (s *Store) rawTextPath(chunkID string) string {
	return filepath.Join(s.caseDir, rawTextDir, chunkID+".txt")
}

func (s *Store) load() (*index, error) {
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return newIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("provenance: reading index: %w", err)
	}
	idx := newIndex()
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("provenance: parsing index: %w", err)
	}
	if idx.Documents == nil {
		idx.Documents = map[string]documentEntry{}
	}
	if idx.Chunks == nil {
		idx.Chunks = map[string]chunkEntry{}
	}
	return idx, nil
}

// save writes idx atomically: write to a temp file in the same directory,
// then rename into place, so a crash never leaves a half-written index.
func (s *Store) save(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("provenance: marshaling index: %w", err)
	}
	if err := os.MkdirAll(s.caseDir, 0o755); err != nil {
		return fmt.Errorf("provenance: creating case dir: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("provenance: writing temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		return fmt.Errorf("provenance: renaming index into place: %w", err)
	}
	return nil
}

// IndexDocument records a freshly chunked document: it writes each chunk's
// verbatim text to raw_text/<chunk_id>.txt and updates the index, all under
// one atomic index rewrite.
func (s *Store) IndexDocument(fileName string, chunks []Chunk, ocrApplied bool) error {
	if err := os.MkdirAll(filepath.Join(s.caseDir, rawTextDir), 0o755); err != nil {
		return fmt.Errorf("provenance: creating raw_text dir: %w", err)
	}

	idx, err := s.load()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if err := os.WriteFile(s.rawTextPath(c.ID), []byte(c.Text), 0o644); err != nil {
			return fmt.Errorf("provenance: writing chunk text %s: %w", c.ID, err)
		}
		idx.Chunks[c.ID] = chunkEntry{ChunkProvenance: c.Provenance, TextPreview: preview(c.Text)}
		ids = append(ids, c.ID)
	}

	idx.Documents[fileName] = documentEntry{
		ChunkCount: len(chunks),
		ChunkIDs:   ids,
		OCRApplied: ocrApplied,
		IndexedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	return s.save(idx)
}

func preview(text string) string {
	if len(text) <= previewChars {
		return text
	}
	return text[:previewChars]
}

// GetChunkProvenance returns the stored provenance for a chunk id.
func (s *Store) GetChunkProvenance(chunkID string) (ChunkProvenance, error) {
	idx, err := s.load()
	if err != nil {
		return ChunkProvenance{}, err
	}
	e, ok := idx.Chunks[chunkID]
	if !ok {
		return ChunkProvenance{}, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	return e.ChunkProvenance, nil
}

// GetChunkText reads the verbatim text stored for a chunk id.
func (s *Store) GetChunkText(chunkID string) (string, error) {
	data, err := os.ReadFile(s.rawTextPath(chunkID))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	if err != nil {
		return "", fmt.Errorf("provenance: reading chunk text: %w", err)
	}
	return string(data), nil
}

// GetChunksByIDs loads full Chunk values (provenance + text) for each id, in
// the order given. Missing ids are skipped rather than failing the batch.
func (s *Store) GetChunksByIDs(ids []string) ([]Chunk, error) {
	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		e, ok := idx.Chunks[id]
		if !ok {
			continue
		}
		text, err := s.GetChunkText(id)
		if err != nil {
			return nil, err
		}
		out = append(out, Chunk{ID: id, Text: text, Provenance: e.ChunkProvenance})
	}
	return out, nil
}

// ChunksByFile returns every chunk belonging to fileName, ordered as they
// were indexed.
func (s *Store) ChunksByFile(fileName string) ([]Chunk, error) {
	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	doc, ok := idx.Documents[fileName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, fileName)
	}
	return s.GetChunksByIDs(doc.ChunkIDs)
}

// GetRawText concatenates a document's chunk text in order, optionally
// restricted to a single page.
func (s *Store) GetRawText(fileName string, page *int) (string, error) {
	chunks, err := s.ChunksByFile(fileName)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range chunks {
		if page != nil && (c.Provenance.PageNum == nil || *c.Provenance.PageNum != *page) {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Text)
	}
	return b.String(), nil
}

// ListDocuments returns every indexed file name, sorted.
func (s *Store) ListDocuments() ([]string, error) {
	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idx.Documents))
	for name := range idx.Documents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetAllChunkIDs returns every chunk id currently indexed, in no particular
// order.
func (s *Store) GetAllChunkIDs() ([]string, error) {
	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(idx.Chunks))
	for id := range idx.Chunks {
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteDocument removes a document's entry and cascades to its chunk
// entries and raw_text shards. Returns the deleted chunk ids so the caller
// can also drop them from the vector and lexical indices.
func (s *Store) DeleteDocument(fileName string) ([]string, error) {
	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	doc, ok := idx.Documents[fileName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, fileName)
	}

	for _, id := range doc.ChunkIDs {
		delete(idx.Chunks, id)
		if err := os.Remove(s.rawTextPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("provenance: removing chunk text %s: %w", id, err)
		}
	}
	delete(idx.Documents, fileName)

	if err := s.save(idx); err != nil {
		return nil, err
	}
	return doc.ChunkIDs, nil
}

// NewChunkID returns a fresh short identifier, unique within a case with
// overwhelming probability: the first 12 hex characters of a random UUIDv4.
func NewChunkID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
