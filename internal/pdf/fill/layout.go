package fill

import (
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/font"

	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/geometry"
)

// Page geometry in PDF points
const (
	LetterWidth  = 612.0
	LetterHeight = 792.0

	imageMargin  = 36.0
	rightMargin  = 36.0
	bottomMargin = 50.0
	pageInset    = 2.0

	gridX      = 150.0
	gridTop    = 50.0 // distance from the top edge to the first fallback row
	gridStride = 25.0
)

// Faces and sizes used for drawn values
const (
	bodyFont      = "Helvetica"
	bodySize      = 10
	signatureFont = "Helvetica-Oblique"
	signatureSize = 14
	checkFont     = "ZapfDingbats"
	checkSize     = 12
	checkGlyph    = "4"
	ellipsis      = "..."
)

// Rect is an axis-aligned rectangle in page space (bottom-left origin)
type Rect struct {
	X, Y, Width, Height float64
}

// Layout describes where the source raster sits on a page
type Layout struct {
	PageWidth  float64
	PageHeight float64
	// Frame is the page area covered by the source raster: the whole page for PDF sources,
	// the placed image for image sources
	Frame Rect
	// SourceWidth and SourceHeight are the raster dimensions, zero when unknown
	SourceWidth  float64
	SourceHeight float64
}

// PageLayout is the layout of a page that is its own source
func PageLayout(w, h, srcW, srcH float64) Layout {
	return Layout{
		PageWidth:    w,
		PageHeight:   h,
		Frame:        Rect{Width: w, Height: h},
		SourceWidth:  srcW,
		SourceHeight: srcH,
	}
}

// Place returns the draw point for the field at index. Points mapped from coordinates are clamped
// to the page. Fields without coordinates take a row of the fallback grid, and Place reports
// false when that row falls below the bottom margin.
func (l Layout) Place(f form.FormField, index int) (geometry.Point, bool) {
	if f.Coordinates != nil {
		mapped, err := geometry.MapOrIdentity(f.Coordinates.InputBox(), l.SourceWidth, l.SourceHeight, l.Frame.Width, l.Frame.Height)
		if err == nil {
			return geometry.Point{
				X: clamp(l.Frame.X+mapped.X, pageInset, l.PageWidth-pageInset),
				Y: clamp(l.Frame.Y+mapped.Y-bodySize, pageInset, l.PageHeight-bodySize),
			}, true
		}
	}

	p := geometry.Point{X: gridX, Y: l.PageHeight - gridTop - float64(index)*gridStride}
	if p.Y < bottomMargin {
		return geometry.Point{}, false
	}
	return p, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// FitImage scales a w x h image into the page inside the margins, preserving aspect and centring it
func FitImage(w, h, pageW, pageH float64) Rect {
	availW := pageW - 2*imageMargin
	availH := pageH - 2*imageMargin
	if w <= 0 || h <= 0 {
		return Rect{X: imageMargin, Y: imageMargin, Width: availW, Height: availH}
	}
	s := math.Min(availW/w, availH/h)
	dw, dh := w*s, h*s
	return Rect{X: (pageW - dw) / 2, Y: (pageH - dh) / 2, Width: dw, Height: dh}
}

// Truncate shortens text character by character, appending an ellipsis, until it fits maxWidth
// when set in fontName at size
func Truncate(text, fontName string, size int, maxWidth float64) string {
	if textWidth(text, fontName, size) <= maxWidth {
		return text
	}
	runes := []rune(text)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := string(runes[:n]) + ellipsis
		if textWidth(candidate, fontName, size) <= maxWidth {
			return candidate
		}
	}
	return ""
}

func textWidth(text, fontName string, size int) float64 {
	return font.TextWidth(text, fontName, size)
}
