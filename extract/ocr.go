package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrOCRUnavailable means no OCR binary is installed. Callers treat this as
// non-fatal: the document is indexed with whatever text was already
// extracted, per the "OCR failures never fail an upload" policy.
var ErrOCRUnavailable = errors.New("extract: ocr unavailable")

// ErrOCRTimeout means the OCR invocation exceeded its deadline.
var ErrOCRTimeout = errors.New("extract: ocr timed out")

const ocrTimeout = 300 * time.Second

// ocrmypdfExitNoTextFound is ocrmypdf's exit code when --skip-text finds
// nothing to do because the document already has enough text; that is a
// successful no-op, not a failure.
const ocrmypdfExitNoTextFound = 6

// OCRMyPDF invokes the ocrmypdf CLI in place on a PDF, adding a text layer
// over scanned pages.
type OCRMyPDF struct {
	// Binary overrides the executable name, for tests. Defaults to
	// "ocrmypdf" when empty.
	Binary string
}

func (o OCRMyPDF) binary() string {
	if o.Binary != "" {
		return o.Binary
	}
	return "ocrmypdf"
}

func (o OCRMyPDF) Run(ctx context.Context, path string) error {
	bin := o.binary()
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%w: %s not on PATH", ErrOCRUnavailable, bin)
	}

	ctx, cancel := context.WithTimeout(ctx, ocrTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, "--skip-text", "--optimize", "1", path, path)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: after %s", ErrOCRTimeout, ocrTimeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == ocrmypdfExitNoTextFound {
			return nil
		}
		return fmt.Errorf("extract: running ocrmypdf: %w", err)
	}
	return nil
}
