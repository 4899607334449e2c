package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/a3tai/mcp-form-filler/internal/document"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/geometry"
)

// OCRConfig configures the tesseract extractor
type OCRConfig struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Lang      string // default "eng"
	PSM       int    // page segmentation mode, 0 leaves the tesseract default
}

// OCRExtractor recognises words in raster images with tesseract
type OCRExtractor struct {
	cfg    OCRConfig
	runner Runner
	logger *slog.Logger
}

// NewOCRExtractor creates a tesseract-backed extractor. A nil runner executes real commands.
func NewOCRExtractor(cfg OCRConfig, runner Runner, logger *slog.Logger) *OCRExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &OCRExtractor{cfg: cfg, runner: runner, logger: logger}
}

// Extract implements TextExtractor. Word boxes are in image pixels.
func (e *OCRExtractor) Extract(ctx context.Context, doc *document.Document) (*Result, error) {
	path, cleanup, err := e.inputPath(doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := []string{path, "stdout", "-l", e.cfg.Lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	text, words := ParseTSV(string(out))
	e.logger.Debug("image recognised", "name", doc.Name, "words", len(words))

	return &Result{
		Text:         text,
		Words:        words,
		SourceWidth:  float64(doc.Width),
		SourceHeight: float64(doc.Height),
		Pages:        1,
		Method:       "image-ocr",
	}, nil
}

// inputPath returns a file tesseract can read, writing the bytes out when the document has no path
func (e *OCRExtractor) inputPath(doc *document.Document) (string, func(), error) {
	if doc.Path != "" {
		if _, err := os.Stat(doc.Path); err == nil {
			return doc.Path, func() {}, nil
		}
	}

	tmpDir, err := os.MkdirTemp("", "formfill-ocr-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create OCR workspace: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	ext := strings.TrimPrefix(doc.MediaType, "image/")
	p := filepath.Join(tmpDir, "page."+ext)
	if err := os.WriteFile(p, doc.Data, 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write OCR input: %w", err)
	}
	return p, cleanup, nil
}

// TSV columns: level page_num block_num par_num line_num word_num left top width height conf text
const (
	tsvColumns  = 12
	tsvWordRow  = "5"
	colPage     = 1
	colLine     = 4
	colLeft     = 6
	colTop      = 7
	colWidth    = 8
	colHeight   = 9
	colConf     = 10
	colText     = 11
	noConfValue = "-1"
)

// ParseTSV rebuilds lines and word boxes from tesseract TSV output
func ParseTSV(tsv string) (string, []form.WordBox) {
	var words []form.WordBox
	var lines []string
	var current []string
	lastKey := ""

	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < tsvColumns || cols[0] != tsvWordRow {
			continue
		}
		txt := strings.TrimSpace(cols[colText])
		if txt == "" || cols[colConf] == noConfValue {
			continue
		}

		key := strings.Join(cols[colPage:colLine+1], "/")
		if key != lastKey && len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
		lastKey = key
		current = append(current, txt)

		page, _ := strconv.Atoi(cols[colPage])
		words = append(words, form.WordBox{
			Text: txt,
			Box: geometry.Box{
				X:      atof(cols[colLeft]),
				Y:      atof(cols[colTop]),
				Width:  atof(cols[colWidth]),
				Height: atof(cols[colHeight]),
			},
			Page: page,
		})
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}

	return strings.Join(lines, "\n"), words
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
