package fill

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-filler/internal/document"
	ferrors "github.com/a3tai/mcp-form-filler/internal/errors"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/geometry"
	"github.com/a3tai/mcp-form-filler/internal/pdf/acroform"
	"github.com/a3tai/mcp-form-filler/internal/pdf/testpdf"
)

var fixedNow = time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(nil, WithAuthor("Test Author"), WithClock(func() time.Time { return fixedNow }))
}

func loadDoc(t *testing.T, data []byte, name string) *document.Document {
	t.Helper()
	doc, err := document.Load(data, name)
	require.NoError(t, err)
	return doc
}

func pngDoc(t *testing.T, w, h int) *document.Document {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 0})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return loadDoc(t, buf.Bytes(), "scan.png")
}

func painted(t *testing.T, data []byte) string {
	t.Helper()
	content, err := testpdf.Painted(data)
	require.NoError(t, err)
	return content
}

// requireFlattened checks that no interactive form or widget annotation is left in data
func requireFlattened(t *testing.T, data []byte) *model.Context {
	t.Helper()
	ctx, err := acroform.ReadContext(bytes.NewReader(data))
	require.NoError(t, err)
	af, err := acroform.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, af, "interactive form is removed")

	pages, err := collectPages(ctx)
	require.NoError(t, err)
	for _, p := range pages {
		_, found := p.dict.Find("Annots")
		require.False(t, found, "widget annotations are removed")
	}
	return ctx
}

func infoString(t *testing.T, ctx *model.Context, key string) string {
	t.Helper()
	require.NotNil(t, ctx.Info)
	d, err := ctx.DereferenceDict(*ctx.Info)
	require.NoError(t, err)
	obj, ok := d.Find(key)
	require.True(t, ok, key)
	s, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	require.NoError(t, err)
	return s
}

func TestFill_NativeRoundTrip(t *testing.T) {
	doc := loadDoc(t, testpdf.FormPDF(
		testpdf.Field{Name: "full_name", Kind: testpdf.Text},
		testpdf.Field{Name: "Name", Kind: testpdf.Text},
		testpdf.Field{Name: "newsletter", Kind: testpdf.Checkbox},
		testpdf.Field{Name: "gender", Kind: testpdf.Radio, Options: []string{"Female", "Male"}},
		testpdf.Field{Name: "country", Kind: testpdf.Combo, Options: []string{"Canada", "France"}},
		testpdf.Field{Name: "unused", Kind: testpdf.Text},
	), "application.pdf")

	schema := form.NewSchema([]form.FormField{
		{ID: "field_1", Label: "Full Name", Type: form.TypeName, SourceFieldName: "full_name", Required: true},
		{ID: "field_2", Label: "Newsletter", Type: form.TypeCheckbox, SourceFieldName: "newsletter", Required: true},
		{ID: "field_3", Label: "Gender", Type: form.TypeCheckbox, SourceFieldName: "gender", Required: true},
		{ID: "field_4", Label: "Country", Type: form.TypeText, SourceFieldName: "country", Required: true},
		{ID: "field_5", Label: "Unmatched Thing", Type: form.TypeText, Required: true},
		{ID: "field_6", Label: "Unused", Type: form.TypeText, SourceFieldName: "unused", Required: true},
	}, true, 0, 0)
	values := map[string]string{
		"field_1": "Ada Lovelace",
		"field_2": "X",
		"field_3": "male",
		"field_4": "France",
		"field_5": "ignored",
	}
	before := map[string]string{}
	for k, v := range values {
		before[k] = v
	}

	out, err := newTestEngine().Render(context.Background(), doc, schema, values)
	require.NoError(t, err)
	assert.Equal(t, StrategyNative, out.Strategy)
	assert.Equal(t, []string{"field_1", "field_2", "field_3", "field_4"}, out.Written)
	assert.Equal(t, []string{"field_5"}, out.Skipped)
	assert.Equal(t, before, values)

	ctx := requireFlattened(t, out.Data)
	content := painted(t, out.Data)
	assert.Contains(t, content, "(Ada Lovelace) Tj")
	assert.Contains(t, content, "(France) Tj")
	assert.Contains(t, content, "(4) Tj", "checked box appearance")
	assert.Contains(t, content, "(l) Tj", "selected radio appearance")
	assert.NotContains(t, content, "ignored")
	assert.Equal(t, 1, strings.Count(content, "(Ada Lovelace) Tj"), "exact source name wins over loose label match")
	assert.Contains(t, content, "/FFWidget1 Do")

	assert.Equal(t, "application (filled)", infoString(t, ctx, "Title"))
	assert.Equal(t, "Test Author", infoString(t, ctx, "Author"))
	assert.True(t, strings.HasPrefix(infoString(t, ctx, "CreationDate"), "D:"))
}

func TestFill_NativeLooseLabelMatch(t *testing.T) {
	doc := loadDoc(t, testpdf.FormPDF(
		testpdf.Field{Name: "Name", Kind: testpdf.Text},
		testpdf.Field{Name: "agree", Kind: testpdf.Checkbox},
	), "form.pdf")
	schema := form.NewSchema([]form.FormField{
		{ID: "field_1", Label: "Full Name", Type: form.TypeName, Required: true},
		{ID: "field_2", Label: "I Agree", Type: form.TypeCheckbox, Required: true},
	}, true, 0, 0)

	data, err := newTestEngine().Fill(context.Background(), doc, schema, map[string]string{
		"field_1": "Grace Hopper",
		"field_2": "no",
	})
	require.NoError(t, err)

	requireFlattened(t, data)
	content := painted(t, data)
	assert.Contains(t, content, "(Grace Hopper) Tj")
	assert.NotContains(t, content, "(4) Tj", "unchecked box keeps its Off appearance")
}

func TestFill_NativeKeepsPrefilledValues(t *testing.T) {
	doc := loadDoc(t, testpdf.FormPDF(
		testpdf.Field{Name: "name", Kind: testpdf.Text},
		testpdf.Field{Name: "reference", Kind: testpdf.Text, Value: "REF-42"},
		testpdf.Field{Name: "country", Kind: testpdf.Combo, Options: []string{"Canada", "France"}},
	), "form.pdf")
	schema := form.NewSchema([]form.FormField{
		{ID: "field_1", Label: "Name", Type: form.TypeName, SourceFieldName: "name", Required: true},
		{ID: "field_2", Label: "Country", Type: form.TypeText, SourceFieldName: "country", Required: true},
	}, true, 0, 0)

	out, err := newTestEngine().Render(context.Background(), doc, schema, map[string]string{
		"field_1": "Ada",
		"field_2": "canada",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"field_1", "field_2"}, out.Written)

	requireFlattened(t, out.Data)
	content := painted(t, out.Data)
	assert.Contains(t, content, "(Ada) Tj")
	assert.Contains(t, content, "(REF-42) Tj")
	assert.Contains(t, content, "(Canada) Tj")
	assert.Contains(t, content, "(Application form) Tj", "original page content is kept")
}

func TestFill_NativeFlagWithoutControlsFallsBackToOverlay(t *testing.T) {
	doc := loadDoc(t, testpdf.TextLines("Name: ____"), "plain.pdf")
	schema := form.NewSchema([]form.FormField{
		{ID: "field_1", Label: "Name", Type: form.TypeName, Required: true},
	}, true, 0, 0)

	out, err := newTestEngine().Render(context.Background(), doc, schema, map[string]string{"field_1": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, StrategyOverlay, out.Strategy)
	assert.Equal(t, []string{"field_1"}, out.Written)
}

func TestOverlay_FallbackGrid(t *testing.T) {
	ctx, err := acroform.ReadContext(bytes.NewReader(testpdf.TextLines("Intro")))
	require.NoError(t, err)
	ov, err := newPDFOverlay(ctx)
	require.NoError(t, err)

	schema := form.NewSchema([]form.FormField{
		{ID: "field_1", Label: "Name", Type: form.TypeName},
		{ID: "field_2", Label: "Email", Type: form.TypeEmail},
		{ID: "field_3", Label: "Phone", Type: form.TypePhone},
	}, false, 0, 0)

	drawn, skipped, err := ov.draw(context.Background(), schema, map[string]string{
		"field_1": "Ada",
		"field_3": "555 010 0199 (home)",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"field_1", "field_3"}, drawn)
	assert.Empty(t, skipped)

	ops := ov.ops[ov.pages[0]].String()
	assert.Contains(t, ops, "BT /FFBody 10 Tf 150 742 Td (Ada) Tj ET")
	assert.Contains(t, ops, `BT /FFBody 10 Tf 150 692 Td (555 010 0199 \(home\)) Tj ET`)
}

func TestFill_OverlayOnPDF(t *testing.T) {
	doc := loadDoc(t, testpdf.TextLines("Full Name: ____", "Signature: ____"), "paper.pdf")
	schema := form.NewSchema([]form.FormField{
		{ID: "field_1", Label: "Full Name", Type: form.TypeName},
		{ID: "field_2", Label: "Signature", Type: form.TypeSignature},
		{ID: "field_3", Label: "Agree", Type: form.TypeCheckbox},
	}, false, 612, 792)

	out, err := newTestEngine().Render(context.Background(), doc, schema, map[string]string{
		"field_1": "Ada Lovelace",
		"field_2": "A. Lovelace",
		"field_3": "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyOverlay, out.Strategy)
	assert.Len(t, out.Written, 3)

	ctx, err := acroform.ReadContext(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 1, ctx.PageCount)
	assert.Equal(t, "paper (filled)", infoString(t, ctx, "Title"))

	pages, err := collectPages(ctx)
	require.NoError(t, err)
	contents, ok := pages[0].dict.Find("Contents")
	require.True(t, ok)
	arr, err := ctx.DereferenceArray(contents)
	require.NoError(t, err)
	assert.Len(t, arr, 3, "wrapped original stream plus overlay")

	res, err := ctx.DereferenceDict(pages[0].dict["Resources"])
	require.NoError(t, err)
	fonts, err := ctx.DereferenceDict(res["Font"])
	require.NoError(t, err)
	for _, name := range []string{"F1", resBody, resSignature, resCheck} {
		_, ok := fonts.Find(name)
		assert.True(t, ok, name)
	}
}

func TestFill_OverlayAnchorNearPageBottom(t *testing.T) {
	doc := loadDoc(t, testpdf.TextLines("Signature: ____"), "consent.pdf")
	schema := form.NewSchema([]form.FormField{
		{
			ID: "field_1", Label: "Signature", Type: form.TypeSignature,
			Coordinates: &form.Coordinates{InputX: 100, InputY: 740, Page: 1},
		},
		{
			ID: "field_2", Label: "Date", Type: form.TypeDate,
			Coordinates: &form.Coordinates{InputX: 400, InputY: 800, Page: 1},
		},
	}, false, 612, 792)

	out, err := newTestEngine().Render(context.Background(), doc, schema, map[string]string{
		"field_1": "A. Lovelace",
		"field_2": "01/02/2024",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"field_1", "field_2"}, out.Written)
	assert.Empty(t, out.Skipped)

	content := painted(t, out.Data)
	assert.Contains(t, content, "BT /FFSig 14 Tf 100 42 Td (A. Lovelace) Tj ET")
	assert.Contains(t, content, "BT /FFBody 10 Tf 400 2 Td (01/02/2024) Tj ET")
}

func TestOverlay_FaceSelection(t *testing.T) {
	ctx, err := acroform.ReadContext(bytes.NewReader(testpdf.TextLines("x")))
	require.NoError(t, err)
	ov, err := newPDFOverlay(ctx)
	require.NoError(t, err)

	schema := form.NewSchema([]form.FormField{
		{ID: "field_1", Label: "Agree", Type: form.TypeCheckbox},
		{ID: "field_2", Label: "Opt in", Type: form.TypeCheckbox},
		{ID: "field_3", Label: "Signature", Type: form.TypeSignature},
	}, false, 0, 0)

	drawn, _, err := ov.draw(context.Background(), schema, map[string]string{
		"field_1": "checked",
		"field_2": "no",
		"field_3": "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"field_1", "field_3"}, drawn)

	ops := ov.ops[ov.pages[0]].String()
	assert.Contains(t, ops, "/FFCheck 12 Tf 150 742 Td (4) Tj")
	assert.NotContains(t, ops, "717")
	assert.Contains(t, ops, "/FFSig 14 Tf 150 692 Td (Ada) Tj")
}

func TestFill_ImageSource(t *testing.T) {
	doc := pngDoc(t, 1000, 2000)
	schema := form.NewSchema([]form.FormField{
		{
			ID: "field_1", Label: "Name", Type: form.TypeName,
			Coordinates: &form.Coordinates{InputX: 500, InputY: 1000, Page: 1},
		},
		{ID: "field_2", Label: "Email", Type: form.TypeEmail},
	}, false, 1000, 2000)

	out, err := newTestEngine().Render(context.Background(), doc, schema, map[string]string{
		"field_1": "Ada",
		"field_2": "ada@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyOverlay, out.Strategy)
	assert.Equal(t, []string{"field_1", "field_2"}, out.Written)

	ctx, err := acroform.ReadContext(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 1, ctx.PageCount)
	assert.Equal(t, "scan (filled)", infoString(t, ctx, "Title"))

	pages, err := collectPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, LetterWidth, pages[0].width)
	assert.Equal(t, LetterHeight, pages[0].height)

	res, err := ctx.DereferenceDict(pages[0].dict["Resources"])
	require.NoError(t, err)
	xobjects, err := ctx.DereferenceDict(res["XObject"])
	require.NoError(t, err)
	_, ok := xobjects.Find(resImage)
	assert.True(t, ok)
}

func TestFill_Errors(t *testing.T) {
	e := newTestEngine()
	schema := form.NewSchema(form.FallbackFields(), false, 0, 0)

	_, err := e.Fill(context.Background(), nil, schema, nil)
	assert.True(t, errors.Is(err, ferrors.ErrDocumentFillFailed))

	broken := &document.Document{Name: "broken.pdf", Kind: document.KindPDF, MediaType: "application/pdf", Data: []byte("%PDF-1.4 garbage")}
	_, err = e.Fill(context.Background(), broken, schema, map[string]string{"field_1": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrDocumentFillFailed))
	assert.Equal(t, "DOCUMENT_FILL_FAILED", ferrors.ReasonOf(err))

	badImage := &document.Document{Name: "x.png", Kind: document.KindImage, MediaType: "image/png", Data: []byte("\x89PNG\r\n\x1a\nnope")}
	_, err = e.Fill(context.Background(), badImage, schema, nil)
	assert.True(t, errors.Is(err, ferrors.ErrDocumentFillFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Fill(ctx, loadDoc(t, testpdf.TextLines("x"), "a.pdf"), schema, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLayout_Place(t *testing.T) {
	page := PageLayout(612, 792, 0, 0)

	tests := []struct {
		name   string
		layout Layout
		field  form.FormField
		index  int
		want   geometry.Point
		ok     bool
	}{
		{name: "grid first row", layout: page, index: 0, want: geometry.Point{X: 150, Y: 742}, ok: true},
		{name: "grid fourth row", layout: page, index: 3, want: geometry.Point{X: 150, Y: 667}, ok: true},
		{name: "grid last row above margin", layout: page, index: 27, want: geometry.Point{X: 150, Y: 67}, ok: true},
		{name: "grid below margin", layout: page, index: 28, ok: false},
		{
			name:   "coordinates with unknown source use page dims",
			layout: page,
			field:  form.FormField{Coordinates: &form.Coordinates{InputX: 100, InputY: 92}},
			want:   geometry.Point{X: 100, Y: 700 - bodySize},
			ok:     true,
		},
		{
			name:   "coordinates scaled from raster",
			layout: PageLayout(612, 792, 1224, 1584),
			field:  form.FormField{Coordinates: &form.Coordinates{InputX: 200, InputY: 200}},
			want:   geometry.Point{X: 100, Y: 692 - bodySize},
			ok:     true,
		},
		{
			name:   "coordinates inside placed image frame",
			layout: Layout{PageWidth: 612, PageHeight: 792, Frame: Rect{X: 50, Y: 100, Width: 500, Height: 600}, SourceWidth: 1000, SourceHeight: 1200},
			field:  form.FormField{Coordinates: &form.Coordinates{InputX: 500, InputY: 600}},
			want:   geometry.Point{X: 300, Y: 400 - bodySize},
			ok:     true,
		},
		{
			name:   "coordinates near the bottom edge",
			layout: page,
			field:  form.FormField{Coordinates: &form.Coordinates{InputX: 10, InputY: 760}},
			want:   geometry.Point{X: 10, Y: 22},
			ok:     true,
		},
		{
			name:   "coordinates off the page are clamped",
			layout: page,
			field:  form.FormField{Coordinates: &form.Coordinates{InputX: 700, InputY: 795}},
			want:   geometry.Point{X: 610, Y: 2},
			ok:     true,
		},
		{
			name:   "coordinates above the top edge are clamped",
			layout: page,
			field:  form.FormField{Coordinates: &form.Coordinates{InputX: 0, InputY: -30}},
			want:   geometry.Point{X: 2, Y: 782},
			ok:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.layout.Place(tt.field, tt.index)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want.X, got.X, 1e-9)
				assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			}
		})
	}
}

func TestFitImage(t *testing.T) {
	tall := FitImage(1000, 2000, LetterWidth, LetterHeight)
	assert.InDelta(t, 720, tall.Height, 1e-9)
	assert.InDelta(t, 360, tall.Width, 1e-9)
	assert.InDelta(t, (612-360)/2.0, tall.X, 1e-9)
	assert.InDelta(t, 36, tall.Y, 1e-9)

	wide := FitImage(3000, 1000, LetterWidth, LetterHeight)
	assert.InDelta(t, 540, wide.Width, 1e-9)
	assert.InDelta(t, 180, wide.Height, 1e-9)
	assert.InDelta(t, 36, wide.X, 1e-9)
	assert.InDelta(t, (792-180)/2.0, wide.Y, 1e-9)

	small := FitImage(10, 10, LetterWidth, LetterHeight)
	assert.InDelta(t, 540, small.Width, 1e-9)
}

func TestTruncate(t *testing.T) {
	short := "Ada"
	assert.Equal(t, short, Truncate(short, bodyFont, bodySize, 200))

	long := strings.Repeat("W", 100)
	got := Truncate(long, bodyFont, bodySize, 100)
	require.True(t, strings.HasSuffix(got, ellipsis))
	assert.LessOrEqual(t, textWidth(got, bodyFont, bodySize), 100.0)
	assert.Greater(t, textWidth(got+"W", bodyFont, bodySize), 100.0)

	assert.Equal(t, "", Truncate(long, bodyFont, bodySize, 1))
}

func TestPlacement(t *testing.T) {
	box := *types.NewRectangle(0, 0, 100, 20)
	rect := *types.NewRectangle(200, 700, 400, 720)
	assert.Equal(t, [4]float64{2, 1, 200, 700}, placement(box, rect))

	shifted := *types.NewRectangle(10, 5, 110, 25)
	assert.Equal(t, [4]float64{2, 1, 180, 695}, placement(shifted, rect))

	empty := *types.NewRectangle(0, 0, 0, 0)
	assert.Equal(t, [4]float64{1, 1, 200, 700}, placement(empty, rect))
}

func TestPDFDate(t *testing.T) {
	assert.Equal(t, "D:20240309143005Z", PDFDate(fixedNow))
}

func TestMatchControl(t *testing.T) {
	fields := []*acroform.Field{{Name: "applicant_name"}, {Name: "Email"}, {Name: "Name"}}

	assert.Equal(t, "Name", MatchControl(fields, form.FormField{Label: "x", SourceFieldName: "Name"}).Name)
	assert.Equal(t, "applicant_name", MatchControl(fields, form.FormField{Label: "Applicant Name"}).Name)
	assert.Equal(t, "Email", MatchControl(fields, form.FormField{Label: "Email Address"}).Name)
	assert.Nil(t, MatchControl(fields, form.FormField{Label: "Phone"}))
	assert.Nil(t, MatchControl(fields, form.FormField{Label: " "}))
}
