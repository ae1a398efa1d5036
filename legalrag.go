// Package legalrag is the per-case legal research assistant: it combines a
// client's uploaded documents with whitelisted legal web sources into a
// single grounded-answering engine, enforcing that every factual claim in a
// generated answer carries a citation that is mechanically verified against
// immutable, on-disk evidence before the answer is returned.
package legalrag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/brunobiangulo/legalrag/answer"
	"github.com/brunobiangulo/legalrag/caseid"
	"github.com/brunobiangulo/legalrag/chunker"
	"github.com/brunobiangulo/legalrag/citation"
	"github.com/brunobiangulo/legalrag/lexical"
	"github.com/brunobiangulo/legalrag/legalsource"
	"github.com/brunobiangulo/legalrag/llm"
	"github.com/brunobiangulo/legalrag/provenance"
	"github.com/brunobiangulo/legalrag/retrieval"
	"github.com/brunobiangulo/legalrag/session"
	"github.com/brunobiangulo/legalrag/store"
)

// Document summarizes one ingested client file.
type Document struct {
	FileName   string `json:"file_name"`
	ChunkCount int    `json:"chunk_count"`
	OCRApplied bool   `json:"ocr_applied"`
}

// caseHandle is one case's opened stores and derived engines, kept alive for
// the lifetime of the process so a SQLite connection and BM25 index aren't
// rebuilt on every request.
type caseHandle struct {
	dir        string
	provenance *provenance.Store
	vector     *store.Store
	retriever  *retrieval.Engine
	validator  *citation.Validator
	answerEng  *answer.Engine
}

// Engine is the façade over every per-case and shared component: provenance
// and vector storage, the lexical index, the hybrid retriever, the legal
// source fetcher and cache, the citation validator, and the answer engine.
type Engine struct {
	cfg Config

	embedLLM llm.Provider
	chatLLM  llm.Provider
	chunkr   *chunker.Chunker

	whitelist    legalsource.Whitelist
	legalCache   *legalsource.Cache
	legalFetcher *legalsource.Fetcher
	legalSearch  *legalsource.Searcher

	summarizer session.Summarizer

	lex *lexical.Indexer

	mu    sync.Mutex
	cases map[string]*caseHandle
}

// New wires together every shared and per-case component from a single
// Config, creating CasesDir, LegalCacheDir, and VectorStoreDir if they do
// not already exist. summarizer may be nil: session context is then
// treated as empty and the answer engine never calls Update.
func New(cfg Config, summarizer session.Summarizer) (*Engine, error) {
	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("legalrag: creating embedding provider: %w", err)
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("legalrag: creating chat provider: %w", err)
	}

	return NewWithProviders(cfg, Providers{Embed: embedLLM, Chat: chatLLM}, summarizer)
}

// Providers holds the external capabilities an Engine is built from: the
// embedding and chat LLMs. Tests substitute fakes for both, bypassing
// New's network-backed provider construction entirely.
type Providers struct {
	Embed llm.Provider
	Chat  llm.Provider
}

// NewWithProviders wires an Engine from already-constructed LLM providers,
// for callers (tests, or hosts with their own provider lifecycle) that don't
// want New's llm.NewProvider dispatch. Config.Embedding.Provider and
// Config.Chat.Provider are ignored; every other Config field still applies.
func NewWithProviders(cfg Config, providers Providers, summarizer session.Summarizer) (*Engine, error) {
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}
	if providers.Embed == nil || providers.Chat == nil {
		return nil, fmt.Errorf("legalrag: both Providers.Embed and Providers.Chat are required")
	}

	for _, dir := range []string{cfg.CasesDir, cfg.LegalCacheDir, cfg.VectorStoreDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("legalrag: creating %s: %w", dir, err)
		}
	}

	chunkr := chunker.New(chunker.Config{
		TargetWords:      cfg.ChunkTargetWords,
		OverlapWords:     cfg.ChunkOverlapWords,
		OCRTextThreshold: cfg.OCRTextThreshold,
	}, nil, nil, nil, slog.Default())

	whitelist := legalsource.NewWhitelist(cfg.WhitelistDomains)
	legalCache := legalsource.NewCache(cfg.LegalCacheDir)
	legalFetcher := legalsource.NewFetcher(whitelist, legalCache, nil)
	legalSearch := legalsource.NewSearcher(legalFetcher, slog.Default())

	e := &Engine{
		cfg:          cfg,
		embedLLM:     providers.Embed,
		chatLLM:      providers.Chat,
		chunkr:       chunkr,
		whitelist:    whitelist,
		legalCache:   legalCache,
		legalFetcher: legalFetcher,
		legalSearch:  legalSearch,
		summarizer:   summarizer,
		cases:        map[string]*caseHandle{},
	}
	e.lex = lexical.NewIndexer(e.loadCaseChunks)
	return e, nil
}

// loadCaseChunks is the lexical.Indexer's rebuild callback: every chunk
// currently stored for caseID, read back from its provenance index.
func (e *Engine) loadCaseChunks(caseID string) ([]provenance.Chunk, error) {
	h, err := e.getCase(caseID)
	if err != nil {
		return nil, err
	}
	ids, err := h.provenance.GetAllChunkIDs()
	if err != nil {
		return nil, err
	}
	return h.provenance.GetChunksByIDs(ids)
}

// getCase resolves caseID to its directory (rejecting path escapes and
// symlinks), opening and caching its provenance store, vector store,
// retriever, validator, and answer engine on first use.
func (e *Engine) getCase(caseID string) (*caseHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.cases[caseID]; ok {
		return h, nil
	}

	dir, err := caseid.EnsureCaseExists(e.cfg.CasesDir, caseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaseNotFound, err)
	}

	return e.openCase(caseID, dir)
}

// ensureCase behaves like getCase but creates the case directory if it does
// not already exist, for use by the one operation that may be a case's
// first touch: document upload.
func (e *Engine) ensureCase(caseID string) (*caseHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.cases[caseID]; ok {
		return h, nil
	}

	dir, err := caseid.ResolveCaseDir(e.cfg.CasesDir, caseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPathValidation, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("legalrag: creating case directory: %w", err)
	}

	return e.openCase(caseID, dir)
}

// openCase builds a caseHandle for an already-resolved directory. Callers
// must hold e.mu.
func (e *Engine) openCase(caseID, dir string) (*caseHandle, error) {
	provStore := provenance.New(dir)

	vecStore, err := store.New(e.cfg.VectorStoreDir, caseID, e.cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("legalrag: opening vector store for case %s: %w", caseID, err)
	}

	retriever := retrieval.New(vecStore, e.lex, e.embedLLM, provStore, caseID, retrieval.Config{
		WeightLexical:   e.cfg.WeightLexical,
		WeightVector:    e.cfg.WeightVector,
		MaxChunksPerDoc: e.cfg.MaxChunksPerDoc,
		DedupeThreshold: e.cfg.DedupeSimilarityThreshold,
	})

	validator := citation.NewValidator(provStore, e.legalCache, e.whitelist)

	answerEng := answer.New(retriever, e.legalSearch, validator, e.chatLLM, e.whitelist, e.summarizer, answer.Config{
		TopK:               e.cfg.HybridSearchTopK,
		MaxLegalSnapshots:  e.cfg.MaxLegalSnapshots,
		MaxCitationRetries: e.cfg.MaxCitationRetries,
		Temperature:        e.cfg.Temperature,
		Model:              e.cfg.Chat.Model,
		MaxLegalExcerpt:    3000,
	})

	h := &caseHandle{
		dir:        dir,
		provenance: provStore,
		vector:     vecStore,
		retriever:  retriever,
		validator:  validator,
		answerEng:  answerEng,
	}
	e.cases[caseID] = h
	return h, nil
}

// PreparePath resolves and creates the case directory for caseID (if it
// does not already exist) and returns the path at which a file named
// fileName should be written before being passed to Ingest. It rejects any
// file name that escapes the case directory or names a symlink.
func (e *Engine) PreparePath(caseID, fileName string) (string, error) {
	if _, err := e.ensureCase(caseID); err != nil {
		return "", err
	}
	dir, err := caseid.ResolveCaseDir(e.cfg.CasesDir, caseID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathValidation, err)
	}
	path, err := caseid.ResolveFilePath(dir, fileName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathValidation, err)
	}
	return path, nil
}

// Ingest validates and chunks a document, writes its chunks' verbatim text
// and provenance, embeds and indexes them for vector search, and invalidates
// the case's lexical index so the next query rebuilds it. The file must
// already be present at path (within the case directory); Ingest does not
// move or copy it.
func (e *Engine) Ingest(ctx context.Context, caseID, path string) (Document, error) {
	h, err := e.ensureCase(caseID)
	if err != nil {
		return Document{}, err
	}

	fileName := filepath.Base(path)
	if err := caseid.ValidateFileName(fileName); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrPathValidation, err)
	}

	chunks, err := e.chunkr.Chunk(ctx, path)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	ocrApplied := false
	for _, c := range chunks {
		if c.Provenance.OCR {
			ocrApplied = true
			break
		}
	}

	vectors, err := e.embedChunks(ctx, chunks)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	// Evidence is written only once every chunk has an embedding, so a
	// failed embed call leaves neither index touched and the upload fails
	// atomically.
	if err := h.provenance.IndexDocument(fileName, chunks, ocrApplied); err != nil {
		return Document{}, fmt.Errorf("legalrag: indexing document provenance: %w", err)
	}
	if err := h.vector.Add(ctx, vectors); err != nil {
		return Document{}, fmt.Errorf("legalrag: indexing document vectors: %w", err)
	}

	e.lex.Invalidate(caseID)

	slog.Info("legalrag: document ingested",
		"case", caseID, "file", fileName, "chunks", len(chunks), "ocr_applied", ocrApplied)

	return Document{FileName: fileName, ChunkCount: len(chunks), OCRApplied: ocrApplied}, nil
}

// embedChunks embeds every chunk's text and pairs each embedding with its
// chunk and file identity for the vector store.
func (e *Engine) embedChunks(ctx context.Context, chunks []provenance.Chunk) ([]store.VectorChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := e.embedLLM.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	out := make([]store.VectorChunk, len(chunks))
	for i, c := range chunks {
		out[i] = store.VectorChunk{ChunkID: c.ID, FileName: c.Provenance.FileName, Vector: embeddings[i]}
	}
	return out, nil
}

// Ask runs the 2-phase grounded-answer pipeline for one case: hybrid
// retrieval (plus legal source search when the question reads as legal),
// LLM generation, and citation validation with bounded retry.
func (e *Engine) Ask(ctx context.Context, caseID, question string) (*answer.Response, error) {
	h, err := e.getCase(caseID)
	if err != nil {
		return nil, err
	}
	return h.answerEng.Generate(ctx, caseID, question, true)
}

// QuickAsk runs the same pipeline without legal source retrieval, for
// callers that want a fast response grounded only in client evidence.
func (e *Engine) QuickAsk(ctx context.Context, caseID, question string) (string, error) {
	h, err := e.getCase(caseID)
	if err != nil {
		return "", err
	}
	return h.answerEng.QuickAnswer(ctx, caseID, question)
}

// Delete removes a document and its chunks from both the provenance index
// and the vector store, and invalidates the case's lexical index.
func (e *Engine) Delete(ctx context.Context, caseID, fileName string) error {
	h, err := e.getCase(caseID)
	if err != nil {
		return err
	}
	if _, err := h.provenance.DeleteDocument(fileName); err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	}
	if _, err := h.vector.DeleteDocument(ctx, fileName); err != nil {
		return fmt.Errorf("legalrag: deleting document vectors: %w", err)
	}
	e.lex.Invalidate(caseID)
	return nil
}

// ListDocuments returns every file name currently ingested for a case.
func (e *Engine) ListDocuments(caseID string) ([]Document, error) {
	h, err := e.getCase(caseID)
	if err != nil {
		return nil, err
	}
	names, err := h.provenance.ListDocuments()
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(names))
	for _, name := range names {
		chunks, err := h.provenance.ChunksByFile(name)
		if err != nil {
			continue
		}
		ocr := false
		for _, c := range chunks {
			if c.Provenance.OCR {
				ocr = true
				break
			}
		}
		docs = append(docs, Document{FileName: name, ChunkCount: len(chunks), OCRApplied: ocr})
	}
	return docs, nil
}

// ListLegalSnapshots returns every legal source snapshot currently cached,
// across all domains.
func (e *Engine) ListLegalSnapshots() ([]legalsource.Snapshot, error) {
	return e.legalCache.List()
}

// Close releases every open per-case vector store connection.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, h := range e.cases {
		if err := h.vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
