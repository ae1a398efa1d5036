// Package lexical is the per-case in-memory BM25 keyword index: lazily
// built from the chunk store, invalidated on any mutation, and never
// persisted to disk.
package lexical

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/brunobiangulo/legalrag/provenance"
)

// BM25 Okapi parameters, matching the defaults of the reference
// implementation this package is grounded on.
const (
	k1      = 1.5
	b       = 0.75
	epsilon = 0.25
)

// Result is one scored hit: the chunk plus its raw BM25 score.
type Result struct {
	Chunk provenance.Chunk
	Score float64
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text and splits on runs of non-alphanumeric
// characters, with no stemming.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// index is one case's built BM25 state.
type index struct {
	chunks    []provenance.Chunk
	postings  []map[string]int // per-document term frequency
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// Indexer owns a per-case lazily built index, invalidated by mutation.
// Safe for concurrent use.
type Indexer struct {
	mu     sync.Mutex
	built  map[string]*index
	loader func(caseID string) ([]provenance.Chunk, error)
}

// NewIndexer returns an Indexer that rebuilds a case's index by calling
// loader, which should return every chunk currently stored for that case.
func NewIndexer(loader func(caseID string) ([]provenance.Chunk, error)) *Indexer {
	return &Indexer{built: map[string]*index{}, loader: loader}
}

// Invalidate drops the cached index for a case; the next Search rebuilds
// it from the chunk store.
func (ix *Indexer) Invalidate(caseID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.built, caseID)
}

func (ix *Indexer) ensureBuilt(caseID string) (*index, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if idx, ok := ix.built[caseID]; ok {
		return idx, nil
	}

	chunks, err := ix.loader(caseID)
	if err != nil {
		return nil, err
	}

	idx := build(chunks)
	ix.built[caseID] = idx
	return idx, nil
}

func build(chunks []provenance.Chunk) *index {
	idx := &index{chunks: chunks}
	if len(chunks) == 0 {
		idx.idf = map[string]float64{}
		return idx
	}

	docFreq := map[string]int{}
	totalLen := 0

	for _, c := range chunks {
		tokens := Tokenize(c.Text)
		tf := map[string]int{}
		for _, t := range tokens {
			tf[t]++
		}
		idx.postings = append(idx.postings, tf)
		idx.docLens = append(idx.docLens, len(tokens))
		totalLen += len(tokens)

		for term := range tf {
			docFreq[term]++
		}
	}
	idx.avgDocLen = float64(totalLen) / float64(len(chunks))

	idx.idf = computeIDF(docFreq, len(chunks))
	return idx
}

// computeIDF follows BM25Okapi's convention: negative raw idf values
// (terms appearing in more than half the corpus) are floored to
// epsilon * avgIDF, where avgIDF is the sum of the positive idf values
// divided by the number of distinct terms, so common terms contribute a
// small non-negative weight instead of penalizing matches. When no term
// has a positive idf (every term is in more than half the corpus), the
// floor is zero.
func computeIDF(docFreq map[string]int, n int) map[string]float64 {
	idf := make(map[string]float64, len(docFreq))
	var sumPositive float64
	negatives := []string{}

	for term, df := range docFreq {
		v := math.Log(float64(n)-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idf[term] = v
		if v < 0 {
			negatives = append(negatives, term)
		} else {
			sumPositive += v
		}
	}

	avgIDF := 0.0
	if len(idf) > 0 {
		avgIDF = sumPositive / float64(len(idf))
	}
	for _, term := range negatives {
		idf[term] = epsilon * avgIDF
	}
	return idf
}

func (idx *index) score(queryTokens []string) []float64 {
	scores := make([]float64, len(idx.chunks))
	for i, tf := range idx.postings {
		docLen := float64(idx.docLens[i])
		var s float64
		for _, term := range queryTokens {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			termIDF := idx.idf[term]
			denom := f + k1*(1-b+b*docLen/idx.avgDocLen)
			s += termIDF * (f * (k1 + 1)) / denom
		}
		scores[i] = s
	}
	return scores
}

// Search runs a BM25 query against case's index (building it if necessary),
// returning up to topK chunks in descending score order with at most
// maxPerDoc hits from any one file name. Zero-score hits are filtered.
func (ix *Indexer) Search(caseID, query string, topK, maxPerDoc int) ([]Result, error) {
	idx, err := ix.ensureBuilt(caseID)
	if err != nil {
		return nil, err
	}
	if len(idx.chunks) == 0 {
		return nil, nil
	}

	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	scores := idx.score(queryTokens)

	type scored struct {
		chunk provenance.Chunk
		score float64
	}
	var ranked []scored
	for i, s := range scores {
		if s > 0 {
			ranked = append(ranked, scored{chunk: idx.chunks[i], score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	docCounts := map[string]int{}
	var out []Result
	for _, r := range ranked {
		if len(out) >= topK {
			break
		}
		file := r.chunk.Provenance.FileName
		if maxPerDoc > 0 && docCounts[file] >= maxPerDoc {
			continue
		}
		docCounts[file]++
		out = append(out, Result{Chunk: r.chunk, Score: r.score})
	}
	return out, nil
}
