// Package extract defines the narrow interfaces the chunker uses to pull
// readable text out of client documents, plus concrete default
// implementations for PDF and DOCX. These are the "File I/O primitives"
// the core specifies at an interface only — consumers may substitute their
// own extractor (a commercial OCR pipeline, a different PDF library) behind
// the same contract.
package extract

import "context"

// Page is one page of extracted PDF text.
type Page struct {
	Number int // 1-indexed
	Text   string
}

// PDFExtractor pulls per-page plain text out of a PDF file.
type PDFExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]Page, error)
}

// DOCXExtractor pulls the ordered, non-empty paragraphs out of a DOCX file.
type DOCXExtractor interface {
	ExtractParagraphs(ctx context.Context, path string) ([]string, error)
}

// OCRInvoker runs OCR over a PDF file in place, so a subsequent
// PDFExtractor.ExtractPages call picks up a text layer. Implementations
// that have no OCR binary available should return ErrOCRUnavailable rather
// than an opaque error, so callers can treat it as non-fatal.
type OCRInvoker interface {
	Run(ctx context.Context, path string) error
}
