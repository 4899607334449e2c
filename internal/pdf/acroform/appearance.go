package acroform

import (
	"fmt"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/primitives"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-form-filler/internal/form"
)

// Annotation flags (PDF 32000-1, 12.5.3)
const (
	annotHidden = 1 << 1
	annotNoView = 1 << 5
)

const (
	appearanceFont   = "Helvetica"
	appearanceFontID = "FFHelv"
	autoFontSize     = 12.0
	minFontSize      = 4
	textPadding      = 2.0
)

// Appearance is the normal appearance of one widget, ready to be drawn as a form XObject
type Appearance struct {
	Ref types.IndirectRef
	// Box is the form bounding box after its own matrix, in form space
	Box types.Rectangle
	// Rect is the widget rectangle on the page
	Rect types.Rectangle
}

// BuildAppearances gives every text and choice widget that carries a value but no normal
// appearance a single line appearance set in Helvetica
func (f *Form) BuildAppearances() error {
	for _, fld := range f.Fields {
		if fld.Kind != form.ControlText && fld.Kind != form.ControlDropdown {
			continue
		}
		text := fld.displayValue()
		if text == "" {
			continue
		}
		for _, w := range fld.Widgets {
			if _, found := w.Find("AP"); found {
				continue
			}
			ref, err := f.textAppearance(fld, w, text)
			if err != nil {
				return fmt.Errorf("failed to build appearance for %s: %w", fld.Name, err)
			}
			w["AP"] = types.Dict{"N": *ref}
		}
	}
	return nil
}

// displayValue is the text a viewer shows for the field value
func (fld *Field) displayValue() string {
	if fld.Kind != form.ControlDropdown {
		return fld.Value
	}
	if fld.display != "" {
		return fld.display
	}
	for i, e := range fld.Exports {
		if e == fld.Value && i < len(fld.Options) {
			return fld.Options[i]
		}
	}
	return fld.Value
}

func (f *Form) textAppearance(fld *Field, w types.Dict, text string) (*types.IndirectRef, error) {
	rect, err := f.Rect(w)
	if err != nil {
		return nil, err
	}
	width, height := rect.Width(), rect.Height()

	size := daFontSize(f.defaultAppearance(fld, w))
	if size <= 0 {
		size = math.Min(autoFontSize, height*0.7)
	}
	pt := int(math.Round(size))
	for pt > minFontSize && font.TextWidth(text, appearanceFont, pt) > width-2*textPadding {
		pt--
	}
	if pt < minFontSize {
		pt = minFontSize
	}

	baseline := (height-float64(pt))/2 + 0.22*float64(pt)
	content := fmt.Sprintf("/Tx BMC\nq %s %s %s %s re W n BT /%s %d Tf 0 g %s %s Td %s Tj ET Q\nEMC\n",
		FormatNumber(1), FormatNumber(1), FormatNumber(width-2), FormatNumber(height-2),
		appearanceFontID, pt, FormatNumber(textPadding), FormatNumber(baseline), Literal(WinAnsi(text)))

	fontRef, err := f.helveticaRef()
	if err != nil {
		return nil, err
	}
	return primitives.NewForm(f.ctx.XRefTable, []byte(content), appearanceFontID, fontRef, types.RectForDim(width, height))
}

// defaultAppearance finds the DA string in effect for a widget
func (f *Form) defaultAppearance(fld *Field, w types.Dict) string {
	for _, d := range []types.Dict{w, fld.Dict, f.dict} {
		if s := d.StringEntry("DA"); s != nil {
			return *s
		}
	}
	return ""
}

func (f *Form) helveticaRef() (*types.IndirectRef, error) {
	if f.helvetica != nil {
		return f.helvetica, nil
	}
	ref, err := f.ctx.IndRefForNewObject(types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(appearanceFont),
		"Encoding": types.Name("WinAnsiEncoding"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add appearance font: %w", err)
	}
	f.helvetica = ref
	return ref, nil
}

// Rect returns the normalised rectangle of widget w
func (f *Form) Rect(w types.Dict) (types.Rectangle, error) {
	obj, found := w.Find("Rect")
	if !found {
		return types.Rectangle{}, fmt.Errorf("widget has no Rect")
	}
	a, err := f.ctx.DereferenceArray(obj)
	if err != nil {
		return types.Rectangle{}, fmt.Errorf("failed to dereference Rect: %w", err)
	}
	if len(a) != 4 {
		return types.Rectangle{}, fmt.Errorf("widget Rect has %d entries", len(a))
	}
	r, err := f.ctx.RectForArray(a)
	if err != nil {
		return types.Rectangle{}, err
	}
	return normalise(r.LL.X, r.LL.Y, r.UR.X, r.UR.Y), nil
}

func normalise(x1, y1, x2, y2 float64) types.Rectangle {
	return *types.NewRectangle(math.Min(x1, x2), math.Min(y1, y2), math.Max(x1, x2), math.Max(y1, y2))
}

// Appearance resolves the normal appearance of widget w for its current state. It reports false
// when the widget is hidden or has nothing to draw.
func (f *Form) Appearance(w types.Dict) (*Appearance, bool, error) {
	if flags := w.IntEntry("F"); flags != nil && *flags&(annotHidden|annotNoView) != 0 {
		return nil, false, nil
	}
	apObj, found := w.Find("AP")
	if !found {
		return nil, false, nil
	}
	ap, err := f.ctx.DereferenceDict(apObj)
	if err != nil {
		return nil, false, fmt.Errorf("failed to dereference AP: %w", err)
	}
	if ap == nil {
		return nil, false, nil
	}
	nObj, found := ap.Find("N")
	if !found {
		return nil, false, nil
	}

	ref, ok, err := f.stateStream(w, nObj)
	if err != nil || !ok {
		return nil, false, err
	}
	sd, _, err := f.ctx.DereferenceStreamDict(ref)
	if err != nil {
		return nil, false, fmt.Errorf("failed to dereference appearance stream: %w", err)
	}
	if sd == nil {
		return nil, false, nil
	}

	rect, err := f.Rect(w)
	if err != nil {
		return nil, false, err
	}

	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Form")
	if _, found := sd.Dict.Find("BBox"); !found {
		sd.Dict["BBox"] = types.NewNumberArray(0, 0, rect.Width(), rect.Height())
	}
	if _, found := sd.Dict.Find("Resources"); !found {
		if dr, found := f.dict.Find("DR"); found {
			sd.Dict["Resources"] = dr
		}
	}

	box, err := f.formBox(sd.Dict)
	if err != nil {
		return nil, false, err
	}
	return &Appearance{Ref: ref, Box: box, Rect: rect}, true, nil
}

// stateStream picks the stream of an appearance subdictionary: the stream itself, or the entry
// named by the widget's AS state
func (f *Form) stateStream(w types.Dict, nObj types.Object) (types.IndirectRef, bool, error) {
	if ref, ok := nObj.(types.IndirectRef); ok {
		target, err := f.ctx.Dereference(ref)
		if err != nil {
			return types.IndirectRef{}, false, fmt.Errorf("failed to dereference appearance: %w", err)
		}
		switch t := target.(type) {
		case types.StreamDict:
			return ref, true, nil
		case types.Dict:
			nObj = t
		default:
			return types.IndirectRef{}, false, nil
		}
	}

	states, ok := nObj.(types.Dict)
	if !ok {
		return types.IndirectRef{}, false, nil
	}
	as := w.NameEntry("AS")
	if as == nil {
		return types.IndirectRef{}, false, nil
	}
	obj, found := states.Find(*as)
	if !found {
		return types.IndirectRef{}, false, nil
	}
	ref, ok := obj.(types.IndirectRef)
	return ref, ok, nil
}

// formBox returns the form BBox transformed by the form Matrix
func (f *Form) formBox(d types.Dict) (types.Rectangle, error) {
	bbox, err := f.numbers(d, "BBox", 4)
	if err != nil {
		return types.Rectangle{}, err
	}
	m := []float64{1, 0, 0, 1, 0, 0}
	if _, found := d.Find("Matrix"); found {
		if m, err = f.numbers(d, "Matrix", 6); err != nil {
			return types.Rectangle{}, err
		}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{bbox[0], bbox[1]}, {bbox[2], bbox[1]}, {bbox[0], bbox[3]}, {bbox[2], bbox[3]}} {
		x := m[0]*c[0] + m[2]*c[1] + m[4]
		y := m[1]*c[0] + m[3]*c[1] + m[5]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return normalise(minX, minY, maxX, maxY), nil
}

func (f *Form) numbers(d types.Dict, key string, n int) ([]float64, error) {
	obj, _ := d.Find(key)
	a, err := f.ctx.DereferenceArray(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference %s: %w", key, err)
	}
	if len(a) != n {
		return nil, fmt.Errorf("%s has %d entries, want %d", key, len(a), n)
	}
	out := make([]float64, n)
	for i, o := range a {
		if out[i], err = f.ctx.DereferenceNumber(o); err != nil {
			return nil, fmt.Errorf("invalid %s entry: %w", key, err)
		}
	}
	return out, nil
}

// Remove detaches the interactive form from the catalog
func (f *Form) Remove() error {
	root, err := f.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to get catalog: %w", err)
	}
	delete(root, "AcroForm")
	f.ctx.Form = nil
	return nil
}
