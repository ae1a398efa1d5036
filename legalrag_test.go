package legalrag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/legalrag/caseid"
	"github.com/brunobiangulo/legalrag/provenance"
	"github.com/brunobiangulo/legalrag/store"

	"github.com/brunobiangulo/legalrag/llm"
)

// fakeLLM is a deterministic stand-in for a real provider: Embed always
// returns the same fixed-dimension vector (so every chunk/query lands at
// distance zero in the vector store) and Chat replays a scripted queue of
// responses, repeating the last one once exhausted.
type fakeLLM struct {
	dim       int
	responses []string
	calls     int
}

func (f *fakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return &llm.ChatResponse{Content: resp}, nil
}

func (f *fakeLLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		for j := range v {
			v[j] = 0.1
		}
		out[i] = v
	}
	return out, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CasesDir = filepath.Join(dir, "cases")
	cfg.LegalCacheDir = filepath.Join(dir, "legal_cache")
	cfg.VectorStoreDir = filepath.Join(dir, "vectors")
	cfg.EmbeddingDim = 4
	return cfg
}

func newTestEngine(t *testing.T, responses ...string) *Engine {
	t.Helper()
	cfg := testConfig(t)
	fake := &fakeLLM{dim: cfg.EmbeddingDim, responses: responses}
	e, err := NewWithProviders(cfg, Providers{Embed: fake, Chat: fake}, nil)
	if err != nil {
		t.Fatalf("NewWithProviders: %v", err)
	}
	return e
}

// seedCase creates caseID's directory and indexes one chunk directly into
// its provenance and vector stores, bypassing the chunker so the test does
// not depend on real PDF/DOCX extraction.
func seedCase(t *testing.T, e *Engine, caseID, fileName, text string, page int) {
	t.Helper()
	h, err := e.ensureCase(caseID)
	if err != nil {
		t.Fatalf("ensureCase: %v", err)
	}
	p := page
	chunk := provenance.Chunk{
		ID:   fileName + "_c1",
		Text: text,
		Provenance: provenance.ChunkProvenance{
			ChunkID:  fileName + "_c1",
			FileName: fileName,
			PageNum:  &p,
		},
	}
	if err := h.provenance.IndexDocument(fileName, []provenance.Chunk{chunk}, false); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	vec := make([]float32, e.cfg.EmbeddingDim)
	for i := range vec {
		vec[i] = 0.1
	}
	if err := h.vector.Add(context.Background(), []store.VectorChunk{
		{ChunkID: chunk.ID, FileName: fileName, Vector: vec},
	}); err != nil {
		t.Fatalf("vector.Add: %v", err)
	}
	e.lex.Invalidate(caseID)
}

func TestNewWithProvidersRequiresBothProviders(t *testing.T) {
	cfg := testConfig(t)
	if _, err := NewWithProviders(cfg, Providers{}, nil); err == nil {
		t.Fatal("expected an error when no providers are given")
	}
	fake := &fakeLLM{dim: cfg.EmbeddingDim}
	if _, err := NewWithProviders(cfg, Providers{Embed: fake}, nil); err == nil {
		t.Fatal("expected an error when Chat is missing")
	}
}

func TestAskEndToEndWithSeededEvidence(t *testing.T) {
	e := newTestEngine(t, `The dismissal was lawful. [Source: contract.pdf, page 3] "gross misconduct justifies summary dismissal"`)
	seedCase(t, e, "smith-v-acme", "contract.pdf", "gross misconduct justifies summary dismissal", 3)

	resp, err := e.Ask(context.Background(), "smith-v-acme", "Was the dismissal fair?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !resp.CitationsValid {
		t.Fatalf("expected valid citations, got errors: %v", resp.ValidationErrors)
	}
	if len(resp.ClientEvidence) == 0 {
		t.Fatal("expected retrieved client evidence")
	}
}

func TestAskCaseNotFoundWhenNeverIngested(t *testing.T) {
	e := newTestEngine(t, "irrelevant")
	_, err := e.Ask(context.Background(), "never-created", "What happened?")
	if !errors.Is(err, ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}

func TestIngestRejectsUnsupportedFormat(t *testing.T) {
	e := newTestEngine(t, "irrelevant")
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := e.Ingest(context.Background(), "case1", path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPreparePathRejectsEscape(t *testing.T) {
	e := newTestEngine(t, "irrelevant")
	if _, err := e.PreparePath("case1", "../evil.pdf"); !errors.Is(err, ErrPathValidation) {
		t.Fatalf("expected ErrPathValidation, got %v", err)
	}
}

func TestPreparePathCreatesCaseDirectory(t *testing.T) {
	e := newTestEngine(t, "irrelevant")
	path, err := e.PreparePath("new-case", "doc.pdf")
	if err != nil {
		t.Fatalf("PreparePath: %v", err)
	}
	if filepath.Base(path) != "doc.pdf" {
		t.Fatalf("got %q", path)
	}
	if _, err := caseid.EnsureCaseExists(e.cfg.CasesDir, "new-case"); err != nil {
		t.Fatalf("expected case directory to already exist: %v", err)
	}
}

func TestDeleteAndListDocuments(t *testing.T) {
	e := newTestEngine(t, "irrelevant")
	seedCase(t, e, "case1", "doc.pdf", "some evidence text", 1)

	docs, err := e.ListDocuments("case1")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].FileName != "doc.pdf" {
		t.Fatalf("got %v", docs)
	}

	if err := e.Delete(context.Background(), "case1", "doc.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	docs, err = e.ListDocuments("case1")
	if err != nil {
		t.Fatalf("ListDocuments after delete: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents after delete, got %v", docs)
	}
}

func TestDeleteUnknownDocumentFails(t *testing.T) {
	e := newTestEngine(t, "irrelevant")
	seedCase(t, e, "case1", "doc.pdf", "some evidence text", 1)

	err := e.Delete(context.Background(), "case1", "missing.pdf")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestCloseClosesOpenCases(t *testing.T) {
	e := newTestEngine(t, "irrelevant")
	seedCase(t, e, "case1", "doc.pdf", "evidence", 1)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
