package retrieval

import (
	"testing"

	"github.com/brunobiangulo/legalrag/provenance"
)

func chunk(id, file, text string) provenance.Chunk {
	return provenance.Chunk{ID: id, Text: text, Provenance: provenance.ChunkProvenance{ChunkID: id, FileName: file}}
}

func TestMinMaxNormalize(t *testing.T) {
	norm := minMaxNormalize(map[string]float64{"a": 1, "b": 3, "c": 5})
	if norm["a"] != 0 || norm["c"] != 1 {
		t.Fatalf("unexpected normalization: %v", norm)
	}
	if norm["b"] != 0.5 {
		t.Fatalf("midpoint should normalize to 0.5, got %v", norm["b"])
	}
}

func TestMinMaxNormalizeCollapsesWhenEqual(t *testing.T) {
	pos := minMaxNormalize(map[string]float64{"a": 2, "b": 2})
	if pos["a"] != 1 || pos["b"] != 1 {
		t.Fatalf("equal positive scores should collapse to 1.0: %v", pos)
	}
	zero := minMaxNormalize(map[string]float64{"a": 0, "b": 0})
	if zero["a"] != 0 {
		t.Fatalf("equal zero scores should collapse to 0.0: %v", zero)
	}
}

func TestFuseUnionsBothSides(t *testing.T) {
	lexNorm := map[string]float64{"a": 1.0}
	vecNorm := map[string]float64{"b": 1.0}
	lexChunks := map[string]provenance.Chunk{"a": chunk("a", "f1.pdf", "one")}
	vecChunks := map[string]provenance.Chunk{"b": chunk("b", "f1.pdf", "two")}

	out := fuse([]string{"a", "b"}, lexNorm, vecNorm, lexChunks, vecChunks, 0.5, 0.5)
	if len(out) != 2 {
		t.Fatalf("got %d fused results, want 2", len(out))
	}
	for _, r := range out {
		if r.Score != 0.5 {
			t.Fatalf("chunk missing from one side should score 0.5 (half weight), got %v", r.Score)
		}
	}
}

// TestFuseTiedScoresPreserveInsertionOrder pins down the documented fusion
// boundary property: when every fused score ties, sort.SliceStable must not
// reorder the results, so the caller-supplied ids order (first-seen across
// the lexical-then-vector result lists) survives unchanged. Repeated calls
// with the same inputs must produce byte-identical output order every time,
// which catches any regression back to ranging an unordered id map.
func TestFuseTiedScoresPreserveInsertionOrder(t *testing.T) {
	ids := []string{"c", "a", "d", "b"}
	lexNorm := map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5, "d": 0.5}
	vecNorm := map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5, "d": 0.5}
	chunks := map[string]provenance.Chunk{
		"a": chunk("a", "f.pdf", "a"),
		"b": chunk("b", "f.pdf", "b"),
		"c": chunk("c", "f.pdf", "c"),
		"d": chunk("d", "f.pdf", "d"),
	}

	want := []string{"c", "a", "d", "b"}
	for i := 0; i < 20; i++ {
		out := fuse(ids, lexNorm, vecNorm, chunks, chunks, 0.5, 0.5)
		if len(out) != len(want) {
			t.Fatalf("run %d: got %d results, want %d", i, len(out), len(want))
		}
		for j, r := range out {
			if r.Chunk.ID != want[j] {
				t.Fatalf("run %d: tied scores did not preserve insertion order, got %v", i, resultIDs(out))
			}
		}
	}
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}

func TestCapPerDocument(t *testing.T) {
	results := []Result{
		chunkResult("a", "f.pdf", 0.9),
		chunkResult("b", "f.pdf", 0.8),
		chunkResult("c", "f.pdf", 0.7),
		chunkResult("d", "f.pdf", 0.6),
	}
	capped := capPerDocument(results, 3)
	if len(capped) != 3 {
		t.Fatalf("got %d, want 3", len(capped))
	}
}

func TestDedupeJaccard(t *testing.T) {
	results := []Result{
		{Chunk: chunk("a", "f.pdf", "the quick brown fox jumps over the lazy dog near the river bank"), Score: 0.9},
		{Chunk: chunk("b", "f.pdf", "the quick brown fox jumps over a lazy dog near the river bank"), Score: 0.8},
		{Chunk: chunk("c", "f.pdf", "completely unrelated text about redundancy pay"), Score: 0.7},
	}
	deduped := dedupeJaccard(results, 0.9)
	if len(deduped) != 2 {
		t.Fatalf("got %d results, want 2 (near-duplicate dropped)", len(deduped))
	}
	if deduped[0].Chunk.ID != "a" {
		t.Fatalf("higher-scoring duplicate should be kept, got %s", deduped[0].Chunk.ID)
	}
}

func TestJaccard(t *testing.T) {
	a := map[string]struct{}{"x": {}, "y": {}}
	b := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	if got := jaccard(a, b); got < 0.66 || got > 0.67 {
		t.Fatalf("jaccard = %v, want ~0.667", got)
	}
	if jaccard(map[string]struct{}{}, b) != 0 {
		t.Fatal("empty set should yield 0 similarity")
	}
}

func chunkResult(id, file string, score float64) Result {
	return Result{Chunk: chunk(id, file, "text "+id), Score: score}
}
