// Package chunker turns an extracted client document into a list of
// provenance-carrying chunks: a word-based sliding window over PDF pages or
// DOCX paragraph groups, with a soft OCR-recovery pass on sparse PDFs.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/legalrag/extract"
	"github.com/brunobiangulo/legalrag/provenance"
)

// ErrUnsupportedFormat is returned for any source extension other than
// .pdf or .docx.
var ErrUnsupportedFormat = errors.New("chunker: unsupported format")

// Config controls the chunking behaviour. Zero values are replaced by
// DefaultConfig's defaults.
type Config struct {
	// TargetWords is the target chunk size in words.
	TargetWords int
	// OverlapWords is the trailing overlap carried into the next chunk.
	OverlapWords int
	// OCRTextThreshold is the average extracted-characters-per-page below
	// which OCR is invoked before re-extracting a PDF.
	OCRTextThreshold int
	// DOCXSoftBudgetWords is the word count at which a run of accumulated
	// DOCX paragraphs is emitted as one unit before sliding-window chunking.
	DOCXSoftBudgetWords int
}

// DefaultConfig returns sensible default chunking parameters.
func DefaultConfig() Config {
	return Config{
		TargetWords:         500,
		OverlapWords:        80,
		OCRTextThreshold:    100,
		DOCXSoftBudgetWords: 600,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TargetWords == 0 {
		c.TargetWords = d.TargetWords
	}
	if c.OverlapWords == 0 {
		c.OverlapWords = d.OverlapWords
	}
	if c.OCRTextThreshold == 0 {
		c.OCRTextThreshold = d.OCRTextThreshold
	}
	if c.DOCXSoftBudgetWords == 0 {
		c.DOCXSoftBudgetWords = d.DOCXSoftBudgetWords
	}
	return c
}

// Chunker turns a source file into provenance.Chunk values.
type Chunker struct {
	cfg  Config
	pdf  extract.PDFExtractor
	docx extract.DOCXExtractor
	ocr  extract.OCRInvoker
	log  *slog.Logger
}

// New returns a Chunker. pdf/docx/ocr may be nil to use the package's
// native default implementations.
func New(cfg Config, pdf extract.PDFExtractor, docx extract.DOCXExtractor, ocr extract.OCRInvoker, log *slog.Logger) *Chunker {
	if pdf == nil {
		pdf = extract.NativePDF{}
	}
	if docx == nil {
		docx = extract.NativeDOCX{}
	}
	if ocr == nil {
		ocr = extract.OCRMyPDF{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chunker{cfg: cfg.withDefaults(), pdf: pdf, docx: docx, ocr: ocr, log: log}
}

// Chunk extracts and chunks path according to its extension.
func (c *Chunker) Chunk(ctx context.Context, path string) ([]provenance.Chunk, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return c.chunkPDF(ctx, path)
	case ".docx":
		return c.chunkDOCX(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func (c *Chunker) chunkPDF(ctx context.Context, path string) ([]provenance.Chunk, error) {
	fileName := filepath.Base(path)

	pages, err := c.pdf.ExtractPages(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("chunker: extracting pdf pages: %w", err)
	}

	ocrApplied := false
	if needsOCR(pages, c.cfg.OCRTextThreshold) {
		if err := c.ocr.Run(ctx, path); err != nil {
			c.log.Warn("ocr unavailable, continuing without it", "file", fileName, "error", err)
		} else {
			reExtracted, err := c.pdf.ExtractPages(ctx, path)
			if err != nil {
				c.log.Warn("re-extraction after ocr failed, keeping original text", "file", fileName, "error", err)
			} else {
				pages = reExtracted
				ocrApplied = true
			}
		}
	}

	var chunks []provenance.Chunk
	for _, page := range pages {
		pageNum := page.Number
		for _, win := range slidingWindow(page.Text, c.cfg.TargetWords, c.cfg.OverlapWords) {
			chunks = append(chunks, c.newChunk(win, fileName, &pageNum, nil, ocrApplied))
		}
	}
	return chunks, nil
}

func (c *Chunker) chunkDOCX(ctx context.Context, path string) ([]provenance.Chunk, error) {
	fileName := filepath.Base(path)

	paragraphs, err := c.docx.ExtractParagraphs(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("chunker: extracting docx paragraphs: %w", err)
	}

	groups := groupParagraphs(paragraphs, c.cfg.DOCXSoftBudgetWords)

	var chunks []provenance.Chunk
	for _, g := range groups {
		paraIdx := g.firstIndex + 1 // 1-indexed
		text := strings.Join(g.paragraphs, "\n\n")
		for _, win := range slidingWindow(text, c.cfg.TargetWords, c.cfg.OverlapWords) {
			chunks = append(chunks, c.newChunk(win, fileName, nil, &paraIdx, false))
		}
	}
	return chunks, nil
}

func (c *Chunker) newChunk(text, fileName string, pageNum, paraIdx *int, ocr bool) provenance.Chunk {
	id := provenance.NewChunkID()
	return provenance.Chunk{
		ID:   id,
		Text: text,
		Provenance: provenance.ChunkProvenance{
			ChunkID:  id,
			FileName: fileName,
			PageNum:  pageNum,
			ParaIdx:  paraIdx,
			// CharStart/CharEnd span the whole chunk text as a placeholder;
			// they are not computed from the source document's original
			// offsets, so callers should treat them as a hint, not a byte
			// range into the source file.
			CharStart: 0,
			CharEnd:   len(text),
			OCR:       ocr,
		},
	}
}

// needsOCR reports whether the average extracted characters per page falls
// below threshold. An empty page set also triggers OCR.
func needsOCR(pages []extract.Page, threshold int) bool {
	if len(pages) == 0 {
		return true
	}
	total := 0
	for _, p := range pages {
		total += len(p.Text)
	}
	avg := total / len(pages)
	return avg < threshold
}

type paragraphGroup struct {
	paragraphs []string
	firstIndex int // 0-indexed position of the first paragraph in the source
}

// groupParagraphs accumulates consecutive non-empty paragraphs until the
// running word count reaches budget, then starts a new group.
func groupParagraphs(paragraphs []string, budget int) []paragraphGroup {
	var groups []paragraphGroup
	var cur []string
	curWords := 0
	firstIdx := 0

	flush := func() {
		if len(cur) > 0 {
			groups = append(groups, paragraphGroup{paragraphs: cur, firstIndex: firstIdx})
			cur = nil
			curWords = 0
		}
	}

	for i, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if len(cur) == 0 {
			firstIdx = i
		}
		cur = append(cur, p)
		curWords += len(strings.Fields(p))
		if curWords >= budget {
			flush()
		}
	}
	flush()
	return groups
}

// slidingWindow splits text into overlapping word windows of targetWords
// with overlapWords carried into the next window. A text shorter than
// targetWords emits a single chunk.
func slidingWindow(text string, targetWords, overlapWords int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= targetWords {
		return []string{strings.Join(words, " ")}
	}

	step := targetWords - overlapWords
	if step <= 0 {
		step = targetWords
	}

	var windows []string
	for start := 0; start < len(words); start += step {
		end := start + targetWords
		if end > len(words) {
			end = len(words)
		}
		windows = append(windows, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return windows
}
