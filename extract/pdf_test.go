package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNativePDFOpenInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-pdf.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := (NativePDF{}).ExtractPages(context.Background(), path); err == nil {
		t.Fatal("expected error opening a non-PDF file")
	}
}

// TestNativePDFExtractPages exercises real page extraction against a fixture
// PDF when one is available; it is skipped in environments without one
// rather than shipping a synthetic PDF byte stream in source.
func TestNativePDFExtractPages(t *testing.T) {
	pdfPath := os.Getenv("LEGALRAG_TEST_PDF")
	if pdfPath == "" {
		t.Skip("no fixture PDF available — set LEGALRAG_TEST_PDF to run")
	}
	if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
		t.Skipf("PDF not found at %s", pdfPath)
	}

	pages, err := (NativePDF{}).ExtractPages(context.Background(), pdfPath)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) == 0 {
		t.Fatal("expected at least one page")
	}
	for _, p := range pages {
		if p.Number < 1 {
			t.Fatalf("page number should be 1-indexed, got %d", p.Number)
		}
	}
}
