package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/mcp-form-filler/internal/document"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/geometry"
	"github.com/ledongthuc/pdf"
)

const (
	// US Letter, used when a page has no usable MediaBox
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0

	rowTolerance      = 2.0
	wordGapFactor     = 0.25
	estimatedAdvance  = 0.5
	maxTextSize       = 10 * 1024 * 1024
	maxParentTraverse = 10
)

// PDFTextExtractor reads text and glyph positions from digitally authored PDFs
type PDFTextExtractor struct {
	logger *slog.Logger
}

// NewPDFTextExtractor creates a new PDF text extractor
func NewPDFTextExtractor(logger *slog.Logger) *PDFTextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFTextExtractor{logger: logger}
}

type glyph struct {
	x, y, w, size float64
	s             string
}

type pageBox struct {
	llx, lly, width, height float64
}

// Extract implements TextExtractor. Word boxes use a top-left origin in page units.
func (e *PDFTextExtractor) Extract(ctx context.Context, doc *document.Document) (*Result, error) {
	reader, err := pdf.NewReader(doc.Reader(), int64(len(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	res := &Result{Pages: reader.NumPage(), Method: "pdf-text"}
	var text strings.Builder

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		box := e.mediaBox(page, pageNum)
		if pageNum == 1 {
			res.SourceWidth, res.SourceHeight = box.width, box.height
		}

		lines, words := e.pageWords(page, pageNum, box)
		if len(lines) == 0 {
			plain, err := e.plainText(page)
			if err != nil {
				e.logger.Warn("page text extraction failed", "page", pageNum, "error", err)
				continue
			}
			lines = strings.Split(plain, "\n")
		}
		res.Words = append(res.Words, words...)

		for _, l := range lines {
			if text.Len()+len(l)+1 > maxTextSize {
				e.logger.Warn("text size limit reached", "page", pageNum, "limit", maxTextSize)
				res.Text = text.String()
				return res, nil
			}
			text.WriteString(l)
			text.WriteByte('\n')
		}
	}

	res.Text = strings.TrimRight(text.String(), "\n")
	return res, nil
}

// pageWords groups the page glyphs into rows and words
func (e *PDFTextExtractor) pageWords(page pdf.Page, pageNum int, box pageBox) (lines []string, words []form.WordBox) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("panic while reading page content", "page", pageNum, "panic", r)
			lines, words = nil, nil
		}
	}()

	var glyphs []glyph
	for _, t := range page.Content().Text {
		if t.S == "" {
			continue
		}
		glyphs = append(glyphs, glyph{x: t.X - box.llx, y: t.Y - box.lly, w: t.W, size: t.FontSize, s: t.S})
	}

	for _, row := range groupRows(glyphs) {
		rowWords := splitWords(row)
		if len(rowWords) == 0 {
			continue
		}
		parts := make([]string, len(rowWords))
		for i, w := range rowWords {
			parts[i] = w.text
			words = append(words, form.WordBox{Text: w.text, Box: w.box(box.height), Page: pageNum})
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return lines, words
}

func (e *PDFTextExtractor) plainText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during text extraction: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// groupRows clusters glyphs sharing a baseline, top row first, each row left to right
func groupRows(glyphs []glyph) [][]glyph {
	if len(glyphs) == 0 {
		return nil
	}
	sorted := make([]glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].y > sorted[j].y
	})

	var rows [][]glyph
	current := []glyph{sorted[0]}
	currentY := sorted[0].y
	for _, g := range sorted[1:] {
		if math.Abs(g.y-currentY) <= rowTolerance {
			current = append(current, g)
			continue
		}
		rows = append(rows, current)
		current = []glyph{g}
		currentY = g.y
	}
	rows = append(rows, current)

	for _, r := range rows {
		sort.SliceStable(r, func(i, j int) bool { return r[i].x < r[j].x })
	}
	return rows
}

type word struct {
	text          string
	x, right      float64
	baseline, max float64
	runes         int
}

func (w word) box(pageHeight float64) geometry.Box {
	width := w.right - w.x
	if width <= 0 {
		width = float64(w.runes) * w.max * estimatedAdvance
	}
	return geometry.Box{
		X:      w.x,
		Y:      pageHeight - (w.baseline + w.max),
		Width:  width,
		Height: w.max,
	}
}

// splitWords breaks a row on whitespace glyphs and on horizontal gaps
func splitWords(row []glyph) []word {
	var out []word
	var cur *word
	var b strings.Builder

	flush := func() {
		if cur != nil {
			cur.text = b.String()
			out = append(out, *cur)
		}
		cur = nil
		b.Reset()
	}

	for _, g := range row {
		if strings.TrimSpace(g.s) == "" {
			flush()
			continue
		}
		if cur != nil && cur.right > cur.x && g.x-cur.right > g.size*wordGapFactor {
			flush()
		}
		if cur == nil {
			cur = &word{x: g.x, right: g.x, baseline: g.y}
		}
		b.WriteString(g.s)
		cur.runes += utf8.RuneCountInString(g.s)
		if end := g.x + g.w; end > cur.right {
			cur.right = end
		}
		if g.size > cur.max {
			cur.max = g.size
		}
	}
	flush()
	return out
}

// mediaBox reads the page MediaBox, walking up the page tree for inherited values
func (e *PDFTextExtractor) mediaBox(page pdf.Page, pageNum int) (box pageBox) {
	box = pageBox{width: defaultPageWidth, height: defaultPageHeight}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("panic while reading MediaBox", "page", pageNum, "panic", r)
			box = pageBox{width: defaultPageWidth, height: defaultPageHeight}
		}
	}()

	current := page.V
	for i := 0; i < maxParentTraverse && !current.IsNull(); i++ {
		if mb := current.Key("MediaBox"); !mb.IsNull() {
			if parsed, ok := parseMediaBox(mb); ok {
				return parsed
			}
		}
		current = current.Key("Parent")
	}

	e.logger.Debug("no MediaBox found, using US Letter", "page", pageNum)
	return box
}

func parseMediaBox(v pdf.Value) (pageBox, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return pageBox{}, false
	}
	var c [4]float64
	for i := 0; i < 4; i++ {
		val := v.Index(i)
		switch val.Kind() {
		case pdf.Integer:
			c[i] = float64(val.Int64())
		case pdf.Real:
			c[i] = val.Float64()
		default:
			return pageBox{}, false
		}
	}
	llx, lly := math.Min(c[0], c[2]), math.Min(c[1], c[3])
	urx, ury := math.Max(c[0], c[2]), math.Max(c[1], c[3])
	if urx <= llx || ury <= lly {
		return pageBox{}, false
	}
	return pageBox{llx: llx, lly: lly, width: urx - llx, height: ury - lly}, true
}
