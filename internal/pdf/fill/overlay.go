package fill

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-form-filler/internal/document"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/pdf/acroform"
)

// Resource names added to every stamped page
const (
	resBody      = "FFBody"
	resSignature = "FFSig"
	resCheck     = "FFCheck"
	resImage     = "FFImage"
	resWidget    = "FFWidget"
)

// overlay draws values as text on top of the source pages
type overlay struct {
	ctx   *model.Context
	pages []*page
	// frame is the placed image on image sources, nil for PDF sources
	frame    *Rect
	fonts    map[string]types.IndirectRef
	xobjects map[*page]types.Dict
	ops      map[*page]*bytes.Buffer
}

// newPDFOverlay prepares an overlay over the existing pages of ctx
func newPDFOverlay(ctx *model.Context) (*overlay, error) {
	pages, err := collectPages(ctx)
	if err != nil {
		return nil, err
	}
	return &overlay{
		ctx:      ctx,
		pages:    pages,
		xobjects: make(map[*page]types.Dict),
		ops:      make(map[*page]*bytes.Buffer),
	}, nil
}

// newImageOverlay places the image document on a new US-Letter page
func newImageOverlay(doc *document.Document) (*overlay, error) {
	ctx, err := letterContext()
	if err != nil {
		return nil, err
	}
	o, err := newPDFOverlay(ctx)
	if err != nil {
		return nil, err
	}

	ref, w, h, err := model.CreateImageResource(ctx.XRefTable, doc.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}

	p := o.pages[0]
	o.addXObject(p, resImage, *ref)
	frame := FitImage(float64(w), float64(h), p.width, p.height)
	o.frame = &frame
	o.drawXObject(p, resImage, frame.Width, frame.Height, frame.X, frame.Y)
	return o, nil
}

// layout returns the layout of page p for a source of srcW x srcH
func (o *overlay) layout(p *page, srcW, srcH float64) Layout {
	if o.frame != nil {
		return Layout{PageWidth: p.width, PageHeight: p.height, Frame: *o.frame, SourceWidth: srcW, SourceHeight: srcH}
	}
	return PageLayout(p.width, p.height, srcW, srcH)
}

// pageFor returns the page a field is drawn on. Fields without coordinates go on the first page.
func (o *overlay) pageFor(f form.FormField) *page {
	if f.Coordinates == nil || f.Coordinates.Page < 1 {
		return o.pages[0]
	}
	if f.Coordinates.Page > len(o.pages) {
		return o.pages[len(o.pages)-1]
	}
	return o.pages[f.Coordinates.Page-1]
}

// draw stamps every non-empty value and returns the ids of the fields that were drawn and skipped
func (o *overlay) draw(ctx context.Context, schema *form.Schema, values map[string]string) (drawn, skipped []string, err error) {
	srcW, srcH := schema.SourceSize()
	for i, f := range schema.Fields() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		value := strings.TrimSpace(values[f.ID])
		if value == "" {
			continue
		}

		p := o.pageFor(f)
		pt, ok := o.layout(p, srcW, srcH).Place(f, i)
		if !ok {
			skipped = append(skipped, f.ID)
			continue
		}

		buf := o.buffer(p)
		switch f.Type {
		case form.TypeCheckbox:
			if !form.IsTruthy(value) {
				continue
			}
			writeText(buf, resCheck, checkSize, pt.X, pt.Y, checkGlyph)
		case form.TypeSignature:
			writeText(buf, resSignature, signatureSize, pt.X, pt.Y, acroform.WinAnsi(value))
		default:
			text := Truncate(value, bodyFont, bodySize, p.width-pt.X-rightMargin)
			if text == "" {
				skipped = append(skipped, f.ID)
				continue
			}
			writeText(buf, resBody, bodySize, pt.X, pt.Y, acroform.WinAnsi(text))
		}
		drawn = append(drawn, f.ID)
	}
	return drawn, skipped, nil
}

func writeText(buf *bytes.Buffer, fontRes string, size int, x, y float64, encoded string) {
	fmt.Fprintf(buf, "BT /%s %d Tf %s %s Td %s Tj ET\n", fontRes, size, num(x), num(y), acroform.Literal(encoded))
}

// addXObject makes ref available to page p under name
func (o *overlay) addXObject(p *page, name string, ref types.IndirectRef) {
	d, ok := o.xobjects[p]
	if !ok {
		d = types.Dict{}
		o.xobjects[p] = d
	}
	d[name] = ref
}

// drawXObject paints the named XObject on p with the matrix [a 0 0 d e f]
func (o *overlay) drawXObject(p *page, name string, a, d, e, f float64) {
	fmt.Fprintf(o.buffer(p), "q %s 0 0 %s %s %s cm /%s Do Q\n", num(a), num(d), num(e), num(f), name)
}

func (o *overlay) buffer(p *page) *bytes.Buffer {
	buf, ok := o.ops[p]
	if !ok {
		buf = &bytes.Buffer{}
		o.ops[p] = buf
	}
	return buf
}

// commit appends the drawn operators to every touched page
func (o *overlay) commit() error {
	for _, p := range o.pages {
		buf, ok := o.ops[p]
		if !ok || buf.Len() == 0 {
			continue
		}
		if err := o.ensureResources(p); err != nil {
			return err
		}

		pre, err := o.addStream([]byte("q\n"))
		if err != nil {
			return err
		}
		post, err := o.addStream(append([]byte("Q\n0 g\n"), buf.Bytes()...))
		if err != nil {
			return err
		}

		contents := types.Array{*pre}
		existing, err := o.contents(p)
		if err != nil {
			return err
		}
		contents = append(contents, existing...)
		contents = append(contents, *post)
		p.dict["Contents"] = contents
	}
	return nil
}

// contents returns the existing content stream references of p
func (o *overlay) contents(p *page) (types.Array, error) {
	obj, found := p.dict.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}
	switch c := obj.(type) {
	case types.Array:
		return c, nil
	case types.IndirectRef:
		target, err := o.ctx.Dereference(c)
		if err != nil {
			return nil, fmt.Errorf("failed to dereference page contents: %w", err)
		}
		if a, ok := target.(types.Array); ok {
			return a, nil
		}
		return types.Array{c}, nil
	default:
		return nil, fmt.Errorf("unexpected page contents %T", obj)
	}
}

// ensureResources gives p a private resource dictionary carrying our fonts and XObjects
func (o *overlay) ensureResources(p *page) error {
	res := types.Dict{}
	for k, v := range p.resources {
		res[k] = v
	}

	fonts := types.Dict{}
	if obj, ok := res.Find("Font"); ok {
		existing, err := o.ctx.DereferenceDict(obj)
		if err != nil {
			return fmt.Errorf("failed to dereference font resources: %w", err)
		}
		for k, v := range existing {
			fonts[k] = v
		}
	}
	for name, base := range map[string]string{resBody: bodyFont, resSignature: signatureFont, resCheck: checkFont} {
		ref, err := o.font(base)
		if err != nil {
			return err
		}
		fonts[name] = ref
	}
	res["Font"] = fonts

	if extra := o.xobjects[p]; len(extra) > 0 {
		xobjects := types.Dict{}
		if obj, ok := res.Find("XObject"); ok {
			existing, err := o.ctx.DereferenceDict(obj)
			if err != nil {
				return fmt.Errorf("failed to dereference XObject resources: %w", err)
			}
			for k, v := range existing {
				xobjects[k] = v
			}
		}
		for k, v := range extra {
			xobjects[k] = v
		}
		res["XObject"] = xobjects
	}

	p.dict["Resources"] = res
	return nil
}

// font returns a shared reference to a standard Type1 font
func (o *overlay) font(base string) (types.IndirectRef, error) {
	if o.fonts == nil {
		o.fonts = make(map[string]types.IndirectRef)
	}
	if ref, ok := o.fonts[base]; ok {
		return ref, nil
	}
	d := types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(base),
	}
	if base != checkFont {
		d["Encoding"] = types.Name("WinAnsiEncoding")
	}
	ref, err := o.ctx.IndRefForNewObject(d)
	if err != nil {
		return types.IndirectRef{}, fmt.Errorf("failed to add font %s: %w", base, err)
	}
	o.fonts[base] = *ref
	return *ref, nil
}

func (o *overlay) addStream(content []byte) (*types.IndirectRef, error) {
	sd, err := o.ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode stream: %w", err)
	}
	ref, err := o.ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, fmt.Errorf("failed to add stream: %w", err)
	}
	return ref, nil
}

func num(f float64) string {
	return acroform.FormatNumber(f)
}
