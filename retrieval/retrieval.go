// Package retrieval is the hybrid retriever: it fans out to the lexical and
// vector indices concurrently, then fuses, caps, and deduplicates their
// results into one ranked chunk list.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brunobiangulo/legalrag/lexical"
	"github.com/brunobiangulo/legalrag/llm"
	"github.com/brunobiangulo/legalrag/provenance"
	"github.com/brunobiangulo/legalrag/store"
)

// Config holds the retrieval engine's default weights and caps.
type Config struct {
	WeightLexical   float64
	WeightVector    float64
	MaxChunksPerDoc int
	DedupeThreshold float64
}

// DefaultConfig returns sensible defaults: equal-weighted fusion, cap 3,
// dedupe threshold 0.9.
func DefaultConfig() Config {
	return Config{WeightLexical: 0.5, WeightVector: 0.5, MaxChunksPerDoc: 3, DedupeThreshold: 0.9}
}

// Options configures a single search call; zero fields fall back to the
// engine's Config.
type Options struct {
	K               int
	WeightLexical   float64
	WeightVector    float64
	MaxChunksPerDoc int
	DedupeThreshold float64
}

// Result is one fused chunk: the chunk's text/provenance plus its final
// score in [0,1].
type Result struct {
	Chunk provenance.Chunk
	Score float64
}

// Trace records a search's breakdown, useful for logging and tests.
type Trace struct {
	LexicalResults int
	VectorResults  int
	FusedResults   int
	ElapsedMs      int64
}

// ChunkLoader resolves chunk ids returned by the vector index back to full
// chunk values (text + provenance).
type ChunkLoader interface {
	GetChunksByIDs(ids []string) ([]provenance.Chunk, error)
}

// Engine performs hybrid retrieval over one case's lexical and vector
// indices.
type Engine struct {
	vec      *store.Store
	lex      *lexical.Indexer
	embedder llm.Provider
	chunks   ChunkLoader
	caseID   string
	cfg      Config
}

// New returns an Engine bound to one case's vector store, lexical indexer,
// and provenance chunk loader.
func New(vec *store.Store, lex *lexical.Indexer, embedder llm.Provider, chunks ChunkLoader, caseID string, cfg Config) *Engine {
	return &Engine{vec: vec, lex: lex, embedder: embedder, chunks: chunks, caseID: caseID, cfg: cfg}
}

func (o Options) withDefaults(cfg Config) Options {
	if o.K == 0 {
		o.K = 8
	}
	if o.WeightLexical == 0 && o.WeightVector == 0 {
		o.WeightLexical, o.WeightVector = cfg.WeightLexical, cfg.WeightVector
	}
	if o.MaxChunksPerDoc == 0 {
		o.MaxChunksPerDoc = cfg.MaxChunksPerDoc
	}
	if o.DedupeThreshold == 0 {
		o.DedupeThreshold = cfg.DedupeThreshold
	}
	return o
}

// Search fuses lexical and vector retrieval: fetch top-3k from each side,
// independently min-max normalize, union by chunk id, weighted-sum fuse,
// sort, cap per document, Jaccard-dedupe, truncate to k.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, *Trace, error) {
	opts = opts.withDefaults(e.cfg)
	start := time.Now()
	fetchK := opts.K * 3

	type sideResult struct {
		order  []string // chunk ids in the order the underlying search returned them
		scores map[string]float64
		chunks map[string]provenance.Chunk
		err    error
	}

	lexCh := make(chan sideResult, 1)
	vecCh := make(chan sideResult, 1)

	go func() {
		res, err := e.lex.Search(e.caseID, query, fetchK, 0)
		if err != nil {
			lexCh <- sideResult{err: err}
			return
		}
		order := make([]string, 0, len(res))
		scores := make(map[string]float64, len(res))
		chunks := make(map[string]provenance.Chunk, len(res))
		for _, r := range res {
			order = append(order, r.Chunk.ID)
			scores[r.Chunk.ID] = r.Score
			chunks[r.Chunk.ID] = r.Chunk
		}
		lexCh <- sideResult{order: order, scores: scores, chunks: chunks}
	}()

	go func() {
		order, scores, chunks, err := e.vectorSearch(ctx, query, fetchK)
		vecCh <- sideResult{order: order, scores: scores, chunks: chunks, err: err}
	}()

	lexRes := <-lexCh
	vecRes := <-vecCh

	trace := &Trace{LexicalResults: len(lexRes.scores), VectorResults: len(vecRes.scores)}

	if lexRes.err != nil {
		slog.Warn("retrieval: lexical search failed", "error", lexRes.err)
	}
	if vecRes.err != nil {
		slog.Warn("retrieval: vector search failed", "error", vecRes.err)
	}
	if lexRes.err != nil && vecRes.err != nil {
		return nil, trace, fmt.Errorf("retrieval: both lexical and vector search failed: lexical=%v vector=%v", lexRes.err, vecRes.err)
	}

	lexNorm := minMaxNormalize(lexRes.scores)
	vecNorm := minMaxNormalize(vecRes.scores)

	ids := make([]string, 0, len(lexRes.order)+len(vecRes.order))
	seen := make(map[string]struct{}, len(lexRes.order)+len(vecRes.order))
	for _, id := range lexRes.order {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range vecRes.order {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	fused := fuse(ids, lexNorm, vecNorm, lexRes.chunks, vecRes.chunks, opts.WeightLexical, opts.WeightVector)
	fused = capPerDocument(fused, opts.MaxChunksPerDoc)
	fused = dedupeJaccard(fused, opts.DedupeThreshold)
	if len(fused) > opts.K {
		fused = fused[:opts.K]
	}

	trace.FusedResults = len(fused)
	trace.ElapsedMs = time.Since(start).Milliseconds()
	return fused, trace, nil
}

// KeywordOnly bypasses vector search entirely: lexical results, capped and
// deduplicated, with no fusion.
func (e *Engine) KeywordOnly(ctx context.Context, query string, opts Options) ([]Result, error) {
	opts = opts.withDefaults(e.cfg)
	res, err := e.lex.Search(e.caseID, query, opts.K*3, 0)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, r := range res {
		out = append(out, Result{Chunk: r.Chunk, Score: r.Score})
	}
	out = capPerDocument(out, opts.MaxChunksPerDoc)
	out = dedupeJaccard(out, opts.DedupeThreshold)
	if len(out) > opts.K {
		out = out[:opts.K]
	}
	return out, nil
}

// VectorOnly bypasses lexical search entirely: vector results, capped and
// deduplicated, with no fusion.
func (e *Engine) VectorOnly(ctx context.Context, query string, opts Options) ([]Result, error) {
	opts = opts.withDefaults(e.cfg)
	order, scores, chunks, err := e.vectorSearch(ctx, query, opts.K*3)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(order))
	for _, id := range order {
		out = append(out, Result{Chunk: chunks[id], Score: scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	out = capPerDocument(out, opts.MaxChunksPerDoc)
	out = dedupeJaccard(out, opts.DedupeThreshold)
	if len(out) > opts.K {
		out = out[:opts.K]
	}
	return out, nil
}

// vectorSearch embeds the query, runs a KNN search, resolves hits back to
// full chunks, and converts sqlite-vec's monotonically-increasing distance
// to a similarity score via 1/(1+d). The returned order slice preserves the
// store's ascending-distance result order (best match first).
func (e *Engine) vectorSearch(ctx context.Context, query string, k int) ([]string, map[string]float64, map[string]provenance.Chunk, error) {
	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, nil, nil, fmt.Errorf("embedding query: empty vector returned")
	}

	matches, err := e.vec.Query(ctx, embeddings[0], k)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("vector query: %w", err)
	}
	if len(matches) == 0 {
		return nil, map[string]float64{}, map[string]provenance.Chunk{}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ChunkID
	}
	chunkList, err := e.chunks.GetChunksByIDs(ids)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading matched chunks: %w", err)
	}
	chunkByID := make(map[string]provenance.Chunk, len(chunkList))
	for _, c := range chunkList {
		chunkByID[c.ID] = c
	}

	order := make([]string, 0, len(matches))
	scores := make(map[string]float64, len(matches))
	chunks := make(map[string]provenance.Chunk, len(matches))
	for _, m := range matches {
		c, ok := chunkByID[m.ChunkID]
		if !ok {
			continue
		}
		order = append(order, m.ChunkID)
		scores[m.ChunkID] = 1.0 / (1.0 + m.Distance)
		chunks[m.ChunkID] = c
	}
	return order, scores, chunks, nil
}

// minMaxNormalize scales scores into [0,1]. When every score is equal, the
// whole set collapses to 1.0 if the common value is positive, else 0.0.
func minMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return map[string]float64{}
	}
	min, max := minMax(scores)
	out := make(map[string]float64, len(scores))
	if max == min {
		v := 0.0
		if max > 0 {
			v = 1.0
		}
		for id := range scores {
			out[id] = v
		}
		return out
	}
	for id, s := range scores {
		out[id] = (s - min) / (max - min)
	}
	return out
}

func minMax(scores map[string]float64) (min, max float64) {
	first := true
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

// fuse computes each id's weighted-sum score and sorts by score, descending.
// ids must already be deduplicated and ordered (first-seen order across the
// lexical-then-vector result lists) so that sort.SliceStable's tie-break on
// equal scores falls back to that order rather than map iteration order. A
// chunk absent from one side contributes 0 on that side.
func fuse(ids []string, lexNorm, vecNorm map[string]float64, lexChunks, vecChunks map[string]provenance.Chunk, wLex, wVec float64) []Result {
	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		score := wLex*lexNorm[id] + wVec*vecNorm[id]
		chunk, ok := lexChunks[id]
		if !ok {
			chunk = vecChunks[id]
		}
		out = append(out, Result{Chunk: chunk, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// capPerDocument walks results in order, keeping at most maxPerDoc per file
// name.
func capPerDocument(results []Result, maxPerDoc int) []Result {
	if maxPerDoc <= 0 {
		return results
	}
	counts := map[string]int{}
	var out []Result
	for _, r := range results {
		file := r.Chunk.Provenance.FileName
		if counts[file] >= maxPerDoc {
			continue
		}
		counts[file]++
		out = append(out, r)
	}
	return out
}

// dedupeJaccard walks results in order, dropping any result whose
// token-set Jaccard similarity with an already-kept result is at or above
// threshold. Every pair is compared; shorter chunks are not short-circuited.
func dedupeJaccard(results []Result, threshold float64) []Result {
	var kept []Result
	var keptTokens []map[string]struct{}

	for _, r := range results {
		tokens := tokenSet(r.Chunk.Text)
		dup := false
		for _, existing := range keptTokens {
			if jaccard(tokens, existing) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, r)
			keptTokens = append(keptTokens, tokens)
		}
	}
	return kept
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range lexical.Tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
