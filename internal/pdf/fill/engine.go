// Package fill renders collected values back onto the source document, either through its native
// form controls, flattened into the page afterwards, or as a text overlay on the page.
package fill

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-form-filler/internal/document"
	ferrors "github.com/a3tai/mcp-form-filler/internal/errors"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/pdf/acroform"
	"github.com/a3tai/mcp-form-filler/internal/pdf/security"
)

// Strategy names the way values were written
type Strategy string

const (
	StrategyNative  Strategy = "native-form"
	StrategyOverlay Strategy = "overlay"
)

// DefaultAuthor is stamped into the document info when none is configured
const DefaultAuthor = "mcp-form-filler"

// Output is a rendered document
type Output struct {
	Data     []byte   `json:"-"`
	Strategy Strategy `json:"strategy"`
	// Written lists fields whose value made it onto the document
	Written []string `json:"written"`
	// Skipped lists fields with a value that could not be placed
	Skipped []string `json:"skipped,omitempty"`
}

// Engine fills documents
type Engine struct {
	author string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithAuthor sets the Author stamped into filled documents
func WithAuthor(author string) Option {
	return func(e *Engine) {
		if author != "" {
			e.author = author
		}
	}
}

// WithClock replaces time.Now for the CreationDate stamp
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a fill engine
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{author: DefaultAuthor, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fill renders values onto doc and returns the serialised PDF
func (e *Engine) Fill(ctx context.Context, doc *document.Document, schema *form.Schema, values map[string]string) ([]byte, error) {
	out, err := e.Render(ctx, doc, schema, values)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Render is Fill with a report of what was written. It never mutates schema or values.
func (e *Engine) Render(ctx context.Context, doc *document.Document, schema *form.Schema, values map[string]string) (*Output, error) {
	if doc == nil {
		return nil, ferrors.DocumentFillFailed(fmt.Errorf("document has been released"))
	}
	if schema == nil {
		return nil, ferrors.DocumentFillFailed(fmt.Errorf("schema is required"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := e.render(ctx, doc, schema, values)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ferrors.DocumentFillFailed(err).WithContext(doc.Name)
	}

	e.logger.Info("document filled",
		"name", doc.Name,
		"strategy", out.Strategy,
		"written", len(out.Written),
		"skipped", len(out.Skipped),
		"bytes", len(out.Data))
	return out, nil
}

func (e *Engine) render(ctx context.Context, doc *document.Document, schema *form.Schema, values map[string]string) (*Output, error) {
	var (
		pdfCtx *model.Context
		af     *acroform.Form
		ov     *overlay
		err    error
		out    = &Output{Strategy: StrategyOverlay}
	)

	if doc.IsPDF() {
		pdfCtx, err = acroform.ReadContext(doc.Reader())
		if err != nil {
			return nil, err
		}
		perms, encrypted, err := security.ReadPermissions(pdfCtx)
		if err != nil {
			return nil, err
		}
		if encrypted && !perms.AllowsFill(schema.IsNativeForm()) {
			return nil, fmt.Errorf("document permissions do not allow filling (granted: %s)", perms)
		}
		if schema.IsNativeForm() {
			if af, err = acroform.Read(pdfCtx); err != nil {
				return nil, err
			}
			if af == nil {
				e.logger.Warn("native form has no controls, using overlay", "name", doc.Name)
			}
		}
		if ov, err = newPDFOverlay(pdfCtx); err != nil {
			return nil, err
		}
	} else {
		if ov, err = newImageOverlay(doc); err != nil {
			return nil, err
		}
		pdfCtx = ov.ctx
	}

	if af != nil {
		out.Strategy = StrategyNative
		if out.Written, out.Skipped, err = fillNative(ctx, af, schema, values); err != nil {
			return nil, err
		}
		if err := flatten(ov, af); err != nil {
			return nil, err
		}
	} else if out.Written, out.Skipped, err = ov.draw(ctx, schema, values); err != nil {
		return nil, err
	}

	if err := ov.commit(); err != nil {
		return nil, err
	}

	if err := e.stampInfo(pdfCtx, doc); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := api.WriteContext(pdfCtx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

// stampInfo records Title, Author and CreationDate in the document information dictionary
func (e *Engine) stampInfo(ctx *model.Context, doc *document.Document) error {
	title := strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))
	if title == "" {
		title = "Form"
	}
	entries := map[string]types.Object{
		"Title":        acroform.EncodeString(title + " (filled)"),
		"Author":       acroform.EncodeString(e.author),
		"CreationDate": types.StringLiteral(PDFDate(e.now())),
	}

	if ctx.Info != nil {
		d, err := ctx.DereferenceDict(*ctx.Info)
		if err == nil && d != nil {
			for k, v := range entries {
				d[k] = v
			}
			return nil
		}
	}

	d := types.Dict{}
	for k, v := range entries {
		d[k] = v
	}
	ref, err := ctx.IndRefForNewObject(d)
	if err != nil {
		return fmt.Errorf("failed to add info dictionary: %w", err)
	}
	ctx.Info = ref
	return nil
}

// PDFDate formats t as a PDF date string in UTC
func PDFDate(t time.Time) string {
	return t.UTC().Format("D:20060102150405Z")
}
