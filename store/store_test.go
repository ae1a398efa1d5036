package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func vec(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestSanitizeCaseID(t *testing.T) {
	got := sanitizeCaseID("smith-v-acme.2024")
	if got != "smith_v_acme_2024" {
		t.Fatalf("sanitizeCaseID = %q", got)
	}
}

func TestAddQueryAndCount(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "smith-v-acme", 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	err = s.Add(context.Background(), []VectorChunk{
		{ChunkID: "c1", FileName: "contract.pdf", Vector: vec(4, 0.1)},
		{ChunkID: "c2", FileName: "contract.pdf", Vector: vec(4, 0.9)},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}

	matches, err := s.Query(context.Background(), vec(4, 0.1), 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ChunkID != "c1" {
		t.Fatalf("closest match = %q, want c1", matches[0].ChunkID)
	}

	docs, err := s.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0] != "contract.pdf" {
		t.Fatalf("docs = %v", docs)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "case1", 3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Add(context.Background(), []VectorChunk{
		{ChunkID: "a", FileName: "doc.pdf", Vector: vec(3, 0.5)},
		{ChunkID: "b", FileName: "doc.pdf", Vector: vec(3, 0.6)},
		{ChunkID: "c", FileName: "other.pdf", Vector: vec(3, 0.7)},
	}); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteDocument(context.Background(), "doc.pdf")
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted = %v", deleted)
	}

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Count after delete = %d, want 1", n)
	}
}

func TestDeleteByIDs(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "case2", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Add(context.Background(), []VectorChunk{
		{ChunkID: "x", FileName: "f.pdf", Vector: vec(2, 0.1)},
		{ChunkID: "y", FileName: "f.pdf", Vector: vec(2, 0.2)},
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

func TestNewCreatesSeparateFilesPerCase(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, "case-one", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s1.Close()
	s2, err := New(dir, "case-two", 2)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	p1 := filepath.Join(dir, sanitizeCaseID("case-one")+".db")
	p2 := filepath.Join(dir, sanitizeCaseID("case-two")+".db")
	if p1 == p2 {
		t.Fatal("expected distinct db files per case")
	}
	for _, p := range []string{p1, p2} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected db file %s to exist: %v", p, err)
		}
	}
}
