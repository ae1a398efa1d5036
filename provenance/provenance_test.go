package provenance

import (
	"os"
	"path/filepath"
	"testing"
)

func page(n int) *int { return &n }

func TestIndexDocumentAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	chunks := []Chunk{
		{ID: "c1", Text: "The client started employment on 15 March 2023.", Provenance: ChunkProvenance{ChunkID: "c1", FileName: "contract.docx", ParaIdx: page(3)}},
		{ID: "c2", Text: "Further terms follow in paragraph four.", Provenance: ChunkProvenance{ChunkID: "c2", FileName: "contract.docx", ParaIdx: page(4)}},
	}

	if err := s.IndexDocument("contract.docx", chunks, false); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "raw_text", "c1.txt")); err != nil {
		t.Fatalf("expected raw_text shard: %v", err)
	}

	text, err := s.GetChunkText("c1")
	if err != nil {
		t.Fatalf("GetChunkText: %v", err)
	}
	if text != chunks[0].Text {
		t.Fatalf("text = %q, want %q", text, chunks[0].Text)
	}

	prov, err := s.GetChunkProvenance("c1")
	if err != nil {
		t.Fatalf("GetChunkProvenance: %v", err)
	}
	if prov.FileName != "contract.docx" || prov.ParaIdx == nil || *prov.ParaIdx != 3 {
		t.Fatalf("unexpected provenance: %+v", prov)
	}

	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0] != "contract.docx" {
		t.Fatalf("docs = %v", docs)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	chunks := []Chunk{
		{ID: "c1", Text: "one", Provenance: ChunkProvenance{ChunkID: "c1", FileName: "doc.pdf", PageNum: page(1)}},
	}
	if err := s.IndexDocument("doc.pdf", chunks, true); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteDocument("doc.pdf")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "c1" {
		t.Fatalf("deleted = %v", deleted)
	}

	if _, err := os.Stat(filepath.Join(dir, "raw_text", "c1.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected raw_text shard removed, err = %v", err)
	}

	if _, err := s.GetChunkProvenance("c1"); err == nil {
		t.Fatal("expected chunk provenance to be gone after delete")
	}

	ids, err := s.GetAllChunkIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no chunk ids left, got %v", ids)
	}
}

func TestGetRawTextFiltersByPage(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	chunks := []Chunk{
		{ID: "c1", Text: "page one text", Provenance: ChunkProvenance{ChunkID: "c1", FileName: "doc.pdf", PageNum: page(1)}},
		{ID: "c2", Text: "page two text", Provenance: ChunkProvenance{ChunkID: "c2", FileName: "doc.pdf", PageNum: page(2)}},
	}
	if err := s.IndexDocument("doc.pdf", chunks, false); err != nil {
		t.Fatal(err)
	}

	text, err := s.GetRawText("doc.pdf", page(2))
	if err != nil {
		t.Fatal(err)
	}
	if text != "page two text" {
		t.Fatalf("text = %q", text)
	}
}

func TestNewChunkIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewChunkID()
		if len(id) != 12 {
			t.Fatalf("expected 12-char id, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
