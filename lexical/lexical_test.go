package lexical

import (
	"testing"

	"github.com/brunobiangulo/legalrag/provenance"
)

func chunk(id, fileName, text string) provenance.Chunk {
	return provenance.Chunk{
		ID:   id,
		Text: text,
		Provenance: provenance.ChunkProvenance{
			ChunkID:  id,
			FileName: fileName,
		},
	}
}

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	got := Tokenize("Redundancy Pay! (Section 135)")
	want := []string{"redundancy", "pay", "section", "135"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	chunks := []provenance.Chunk{
		chunk("c1", "contract.pdf", "The employee was dismissed for gross misconduct."),
		chunk("c2", "contract.pdf", "Annual leave accrues at twenty-eight days per year."),
		chunk("c3", "contract.pdf", "Gross misconduct includes theft and violence in the workplace."),
	}
	ix := NewIndexer(func(caseID string) ([]provenance.Chunk, error) { return chunks, nil })

	results, err := ix.Search("case1", "gross misconduct", 10, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (leave chunk should score zero)", len(results))
	}
	for _, r := range results {
		if r.Chunk.ID == "c2" {
			t.Fatal("unrelated chunk should not match")
		}
	}
}

func TestSearchAppliesPerDocumentCap(t *testing.T) {
	var chunks []provenance.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, chunk(string(rune('a'+i)), "doc.pdf", "termination clause termination clause"))
	}
	// Unrelated chunks keep "termination" in fewer than half the chunks, so
	// its idf is positive and the doc.pdf hits score above zero.
	for i := 0; i < 6; i++ {
		chunks = append(chunks, chunk(string(rune('A'+i)), "other.pdf", "annual leave entitlement"))
	}
	ix := NewIndexer(func(caseID string) ([]provenance.Chunk, error) { return chunks, nil })

	results, err := ix.Search("case1", "termination", 10, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (per-doc cap)", len(results))
	}
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	chunks := []provenance.Chunk{chunk("c1", "doc.pdf", "some text")}
	ix := NewIndexer(func(caseID string) ([]provenance.Chunk, error) { return chunks, nil })

	results, err := ix.Search("case1", "   ", 10, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for empty query, got %v", results)
	}
}

func TestInvalidateRebuilds(t *testing.T) {
	calls := 0
	chunks := []provenance.Chunk{chunk("c1", "doc.pdf", "redundancy payment")}
	ix := NewIndexer(func(caseID string) ([]provenance.Chunk, error) {
		calls++
		return chunks, nil
	})

	if _, err := ix.Search("case1", "redundancy", 5, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Search("case1", "redundancy", 5, 3); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected lazy build to run once, ran %d times", calls)
	}

	ix.Invalidate("case1")
	if _, err := ix.Search("case1", "redundancy", 5, 3); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected rebuild after invalidate, calls = %d", calls)
	}
}

func TestSearchEmptyCaseReturnsNothing(t *testing.T) {
	ix := NewIndexer(func(caseID string) ([]provenance.Chunk, error) { return nil, nil })
	results, err := ix.Search("empty-case", "anything", 5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}
