package fill

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// page is one leaf of the page tree with its inherited attributes resolved
type page struct {
	dict      types.Dict
	width     float64
	height    float64
	resources types.Dict
}

// collectPages returns the pages of ctx in document order
func collectPages(ctx *model.Context) ([]*page, error) {
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("document has no pages")
	}

	pages := make([]*page, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		d, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if d == nil {
			return nil, fmt.Errorf("page %d not found", i)
		}

		p := &page{dict: d, width: LetterWidth, height: LetterHeight, resources: inh.Resources}
		if mb := inh.MediaBox; mb != nil && mb.Width() > 0 && mb.Height() > 0 {
			p.width, p.height = mb.Width(), mb.Height()
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// letterContext returns a new document with one empty US-Letter page
func letterContext() (*model.Context, error) {
	dim := types.PaperSize["Letter"]
	ctx, err := pdfcpu.CreateContextWithXRefTable(model.NewDefaultConfiguration(), dim)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	pagesRef, err := ctx.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to get page tree: %w", err)
	}
	pagesDict, err := ctx.DereferenceDict(*pagesRef)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference page tree: %w", err)
	}

	pageRef, err := ctx.EmptyPage(pagesRef, types.RectForDim(dim.Width, dim.Height))
	if err != nil {
		return nil, fmt.Errorf("failed to add page: %w", err)
	}
	if err := ctx.SetValid(*pageRef); err != nil {
		return nil, err
	}
	if err := model.AppendPageTree(pageRef, 1, pagesDict); err != nil {
		return nil, fmt.Errorf("failed to append page: %w", err)
	}
	ctx.PageCount++
	return ctx, nil
}
