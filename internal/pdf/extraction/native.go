package extraction

import (
	"io"
	"log/slog"

	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/pdf/acroform"
)

// PDFFormReader implements NativeFormReader using the pdfcpu object model
type PDFFormReader struct {
	logger *slog.Logger
}

// NewPDFFormReader creates a new native form reader
func NewPDFFormReader(logger *slog.Logger) *PDFFormReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFFormReader{logger: logger}
}

// ReadControls implements NativeFormReader
func (r *PDFFormReader) ReadControls(rs io.ReadSeeker) ([]form.Control, error) {
	ctx, err := acroform.ReadContext(rs)
	if err != nil {
		return nil, err
	}

	f, err := acroform.Read(ctx)
	if err != nil {
		return nil, err
	}
	if f == nil {
		r.logger.Debug("document has no interactive form")
		return nil, nil
	}

	controls := f.Controls()
	r.logger.Debug("interactive form read", "controls", len(controls))
	return controls, nil
}
