package fill

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-form-filler/internal/pdf/acroform"
)

// flatten paints the normal appearance of every widget into its page, then drops the widget
// annotations and the interactive form. Values are left as plain page content.
func flatten(o *overlay, af *acroform.Form) error {
	n := 0
	for _, p := range o.pages {
		annots, err := o.annots(p)
		if err != nil {
			return err
		}
		if len(annots) == 0 {
			continue
		}

		var keep types.Array
		for _, obj := range annots {
			d, err := o.ctx.DereferenceDict(obj)
			if err != nil || d == nil || d.Subtype() == nil || *d.Subtype() != "Widget" {
				keep = append(keep, obj)
				continue
			}

			ap, ok, err := af.Appearance(d)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			n++
			name := fmt.Sprintf("%s%d", resWidget, n)
			o.addXObject(p, name, ap.Ref)
			m := placement(ap.Box, ap.Rect)
			o.drawXObject(p, name, m[0], m[1], m[2], m[3])
		}

		if len(keep) == 0 {
			delete(p.dict, "Annots")
		} else {
			p.dict["Annots"] = keep
		}
	}
	return af.Remove()
}

// placement returns the scale and translation [sx sy tx ty] that map box onto rect
func placement(box, rect types.Rectangle) [4]float64 {
	sx, sy := 1.0, 1.0
	if w := box.Width(); w > 0 {
		sx = rect.Width() / w
	}
	if h := box.Height(); h > 0 {
		sy = rect.Height() / h
	}
	return [4]float64{sx, sy, rect.LL.X - box.LL.X*sx, rect.LL.Y - box.LL.Y*sy}
}

// annots returns the annotation array of p
func (o *overlay) annots(p *page) (types.Array, error) {
	obj, found := p.dict.Find("Annots")
	if !found || obj == nil {
		return nil, nil
	}
	a, err := o.ctx.DereferenceArray(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference page annotations: %w", err)
	}
	return a, nil
}
