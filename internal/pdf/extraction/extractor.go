package extraction

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/a3tai/mcp-form-filler/internal/document"
	"github.com/a3tai/mcp-form-filler/internal/form"
)

// Result is the raw content extracted from one document
type Result struct {
	Text  string         `json:"text"`
	Words []form.WordBox `json:"words,omitempty"`
	// SourceWidth and SourceHeight are the coordinate space of Words, zero when unknown
	SourceWidth  float64 `json:"source_width,omitempty"`
	SourceHeight float64 `json:"source_height,omitempty"`
	Pages        int     `json:"pages"`
	Method       string  `json:"method"`
}

// TextExtractor turns a document into text and positioned words
type TextExtractor interface {
	Extract(ctx context.Context, doc *document.Document) (*Result, error)
}

// NativeFormReader lists the interactive controls of a PDF. A nil slice means the document has no
// interactive form.
type NativeFormReader interface {
	ReadControls(rs io.ReadSeeker) ([]form.Control, error)
}

// Dispatcher routes documents to the extractor for their kind
type Dispatcher struct {
	pdf    TextExtractor
	image  TextExtractor
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. Either extractor may be nil when that kind is unsupported.
func NewDispatcher(pdf, image TextExtractor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{pdf: pdf, image: image, logger: logger}
}

// Extract implements TextExtractor
func (d *Dispatcher) Extract(ctx context.Context, doc *document.Document) (*Result, error) {
	var x TextExtractor
	switch doc.Kind {
	case document.KindPDF:
		x = d.pdf
	case document.KindImage:
		x = d.image
	}
	if x == nil {
		return nil, fmt.Errorf("no extractor for %s documents", doc.Kind)
	}

	res, err := x.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("document text extracted",
		"name", doc.Name,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"words", len(res.Words),
	)
	return res, nil
}
