// Package answer is the 2-phase RAG answer engine: Phase A retrieves client
// evidence and, for legal-sounding questions, legal snapshots; Phase B
// builds a source-constrained prompt, calls the LLM, parses citations out
// of the response, and validates them, retrying with an escalating
// stricter prompt up to a bounded number of attempts.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/brunobiangulo/legalrag/citation"
	"github.com/brunobiangulo/legalrag/legalsource"
	"github.com/brunobiangulo/legalrag/llm"
	"github.com/brunobiangulo/legalrag/retrieval"
	"github.com/brunobiangulo/legalrag/session"
)

// legalKeywords triggers the legal-source fetch in Phase A: a
// case-insensitive substring match against the question.
var legalKeywords = []string{
	"law", "legal", "regulation", "rule", "act", "statute",
	"immigration", "visa", "tribunal", "court", "judgment",
}

// Config holds the engine's tunables; all are read from configuration, not
// fixed in code.
type Config struct {
	TopK              int
	MaxLegalSnapshots int
	MaxCitationRetries int
	Temperature       float64
	Model             string
	MaxLegalExcerpt   int
}

// DefaultConfig returns sensible defaults: top_k=8, 3 legal snapshots, 2
// retries (3 attempts total), temperature 0.3, 3000-char legal excerpts.
func DefaultConfig() Config {
	return Config{
		TopK:               8,
		MaxLegalSnapshots:  3,
		MaxCitationRetries: 2,
		Temperature:        0.3,
		MaxLegalExcerpt:    3000,
	}
}

// Response is a generated answer plus its evidence and validation outcome.
type Response struct {
	Answer           string
	ClientEvidence   []retrieval.Result
	LegalSources     []legalsource.Snapshot
	Citations        []citation.Citation
	CitationsValid   bool
	ValidationErrors []string
}

// Retriever is the hybrid retrieval dependency; satisfied by
// *retrieval.Engine.
type Retriever interface {
	Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, *retrieval.Trace, error)
}

// LegalSearcher is the query-to-sources dependency; satisfied by
// *legalsource.Searcher.
type LegalSearcher interface {
	Search(ctx context.Context, query string, maxPerSite int) []legalsource.Snapshot
}

// Engine ties together retrieval, legal search, the LLM, and citation
// validation for one case.
type Engine struct {
	retriever  Retriever
	searcher   LegalSearcher
	validator  *citation.Validator
	llmClient  llm.Provider
	whitelist  legalsource.Whitelist
	summarizer session.Summarizer
	cfg        Config
}

// New returns an Engine. summarizer may be nil, in which case session
// context is treated as empty and updates are skipped.
func New(retriever Retriever, searcher LegalSearcher, validator *citation.Validator, llmClient llm.Provider, whitelist legalsource.Whitelist, summarizer session.Summarizer, cfg Config) *Engine {
	return &Engine{
		retriever:  retriever,
		searcher:   searcher,
		validator:  validator,
		llmClient:  llmClient,
		whitelist:  whitelist,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

func needsLegalSources(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range legalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (e *Engine) sessionContext(caseID string) string {
	if e.summarizer == nil {
		return ""
	}
	ctx, err := e.summarizer.ContextFor(caseID)
	if err != nil {
		return ""
	}
	return ctx
}

// Generate runs Phase A retrieval and Phase B generation-with-validation.
// includeLegalSources lets callers (e.g. QuickAnswer) skip the legal fetch
// entirely regardless of keyword detection.
func (e *Engine) Generate(ctx context.Context, caseID, question string, includeLegalSources bool) (*Response, error) {
	sessionCtx := e.sessionContext(caseID)

	clientEvidence, _, err := e.retriever.Search(ctx, question, retrieval.Options{K: e.cfg.TopK})
	if err != nil {
		return nil, fmt.Errorf("answer: retrieval failed: %w", err)
	}

	var legalSources []legalsource.Snapshot
	if includeLegalSources && needsLegalSources(question) && e.searcher != nil {
		legalSources = e.searcher.Search(ctx, question, e.cfg.MaxLegalSnapshots)
		if len(legalSources) > e.cfg.MaxLegalSnapshots {
			legalSources = legalSources[:e.cfg.MaxLegalSnapshots]
		}
	}

	basePrompt := e.buildSystemPrompt(clientEvidence, legalSources, sessionCtx)
	evidencePresent := len(clientEvidence) > 0 || len(legalSources) > 0

	var (
		answerText       string
		citations        []citation.Citation
		validationErrors []string
	)

	for attempt := 0; attempt <= e.cfg.MaxCitationRetries; attempt++ {
		prompt := basePrompt
		if attempt > 0 && len(validationErrors) > 0 {
			prompt = buildStricterPrompt(basePrompt, validationErrors)
		}

		resp, err := e.llmClient.Chat(ctx, llm.ChatRequest{
			Model:       e.cfg.Model,
			Temperature: e.cfg.Temperature,
			Messages: []llm.Message{
				{Role: "system", Content: prompt},
				{Role: "user", Content: question},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("answer: llm call failed: %w", err)
		}
		answerText = resp.Content

		citations = citation.Parse(answerText, legalSources)

		var ok bool
		if evidencePresent && len(citations) == 0 {
			ok = false
			validationErrors = []string{"No citations found despite available evidence."}
		} else {
			ok, validationErrors = e.validator.AllValid(citations)
		}

		if ok {
			e.updateSession(caseID, clientEvidence, legalSources)
			return &Response{
				Answer:         answerText,
				ClientEvidence: clientEvidence,
				LegalSources:   legalSources,
				Citations:      citations,
				CitationsValid: true,
			}, nil
		}
	}

	return &Response{
		Answer:           answerText + "\n\nWarning: some citations could not be verified.",
		ClientEvidence:   clientEvidence,
		LegalSources:     legalSources,
		Citations:        citations,
		CitationsValid:   false,
		ValidationErrors: validationErrors,
	}, nil
}

func (e *Engine) updateSession(caseID string, clientEvidence []retrieval.Result, legalSources []legalsource.Snapshot) {
	if e.summarizer == nil {
		return
	}
	n := len(clientEvidence)
	if n > 5 {
		n = 5
	}
	facts := make([]string, n)
	for i := 0; i < n; i++ {
		text := clientEvidence[i].Chunk.Text
		if len(text) > 200 {
			text = text[:200]
		}
		facts[i] = text
	}
	ids := make([]string, len(legalSources))
	for i, s := range legalSources {
		ids[i] = s.ID
	}
	_ = e.summarizer.Update(caseID, facts, ids)
}

// QuickAnswer generates an answer without legal-source retrieval, for
// callers that want a fast response without the extra fetch round-trip.
// Citations are still parsed and validated against client evidence.
func (e *Engine) QuickAnswer(ctx context.Context, caseID, question string) (string, error) {
	resp, err := e.Generate(ctx, caseID, question, false)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// EvidenceItem is one piece of evidence formatted for display.
type EvidenceItem struct {
	SourceType string
	FileName   string
	PageNum    *int
	URL        string
	Domain     string
	Excerpt    string
}

// FormatEvidence flattens a Response's client and legal evidence into a
// single display-ready list.
func FormatEvidence(resp *Response) []EvidenceItem {
	var items []EvidenceItem
	for _, r := range resp.ClientEvidence {
		excerpt := r.Chunk.Text
		if len(excerpt) > 300 {
			excerpt = excerpt[:300] + "..."
		}
		items = append(items, EvidenceItem{
			SourceType: "client",
			FileName:   r.Chunk.Provenance.FileName,
			PageNum:    r.Chunk.Provenance.PageNum,
			Excerpt:    excerpt,
		})
	}
	for _, s := range resp.LegalSources {
		items = append(items, EvidenceItem{
			SourceType: "legal",
			URL:        s.URL,
			Domain:     s.Domain,
			Excerpt:    s.Excerpt(),
		})
	}
	return items
}
