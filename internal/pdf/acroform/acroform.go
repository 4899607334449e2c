// Package acroform walks and edits the interactive form of a PDF through the pdfcpu object model.
package acroform

import (
	"fmt"
	"io"
	"sort"

	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Field flag bits (PDF 32000-1, 12.7.3.1 and 12.7.4)
const (
	flagRadio       = 1 << 15
	flagPushbutton  = 1 << 16
	maxFieldDepth   = 32
	offState        = "Off"
	defaultOnState  = "Yes"
	partialNameJoin = "."
)

// Field is one terminal form field. Dict and Widgets alias objects of the owning context so edits
// are written back with it.
type Field struct {
	Name    string
	Kind    form.ControlKind
	Options []string
	// Exports are the export values for choice options, parallel to Options
	Exports []string
	Value   string
	Dict    types.Dict
	Widgets []types.Dict

	// display is the option text shown for a choice value set through Set
	display string
}

// Control converts the field to its neutral representation
func (f *Field) Control() form.Control {
	return form.Control{
		Name:    f.Name,
		Kind:    f.Kind,
		Options: append([]string(nil), f.Options...),
		Value:   f.Value,
	}
}

// Form is the AcroForm of one document
type Form struct {
	ctx    *model.Context
	dict   types.Dict
	Fields []*Field

	helvetica *types.IndirectRef
}

// ReadContext parses a PDF with relaxed validation
func ReadContext(rs io.ReadSeeker) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}
	return ctx, nil
}

// Read collects the fillable fields of ctx. It returns nil without error when the document has no
// interactive form. Pushbuttons and signature fields are not fillable and are left out.
func Read(ctx *model.Context) (*Form, error) {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroFormDict == nil {
		return nil, nil
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, nil
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	f := &Form{ctx: ctx, dict: acroFormDict}
	for _, obj := range fieldsArray {
		f.walk(obj, "", inherited{}, 0)
	}
	if len(f.Fields) == 0 {
		return nil, nil
	}
	return f, nil
}

// inherited carries the inheritable field attributes down the field tree
type inherited struct {
	ft    string
	flags int
	value types.Object
}

func (f *Form) walk(obj types.Object, parentName string, inh inherited, depth int) {
	if depth > maxFieldDepth {
		return
	}
	d, err := f.ctx.DereferenceDict(obj)
	if err != nil || d == nil {
		return
	}

	name := parentName
	if t, found := d.Find("T"); found {
		if partial, err := f.ctx.DereferenceStringOrHexLiteral(t, model.V10, nil); err == nil && partial != "" {
			if name != "" {
				name += partialNameJoin
			}
			name += partial
		}
	}

	if ft, found := d.Find("FT"); found {
		if n, err := f.ctx.DereferenceName(ft, model.V10, nil); err == nil {
			inh.ft = n.Value()
		}
	}
	if ff, found := d.Find("Ff"); found {
		if i, err := f.ctx.DereferenceInteger(ff); err == nil && i != nil {
			inh.flags = i.Value()
		}
	}
	if v, found := d.Find("V"); found {
		inh.value = v
	}

	kids := f.kids(d)
	if len(kids) > 0 && f.hasChildFields(kids) {
		for _, k := range kids {
			f.walk(k, name, inh, depth+1)
		}
		return
	}

	kind, ok := controlKind(inh.ft, inh.flags)
	if !ok || name == "" {
		return
	}

	field := &Field{Name: name, Kind: kind, Dict: d}
	if len(kids) == 0 {
		field.Widgets = []types.Dict{d}
	} else {
		for _, k := range kids {
			if wd, err := f.ctx.DereferenceDict(k); err == nil && wd != nil {
				field.Widgets = append(field.Widgets, wd)
			}
		}
	}

	switch kind {
	case form.ControlCheckbox, form.ControlRadioGroup:
		field.Options = f.onStates(field.Widgets)
		if inh.value != nil {
			if n, err := f.ctx.DereferenceName(inh.value, model.V10, nil); err == nil && n.Value() != offState {
				field.Value = n.Value()
			}
		}
	case form.ControlDropdown:
		field.Options, field.Exports = f.choiceOptions(d)
		field.Value = f.stringValue(inh.value)
	default:
		field.Value = f.stringValue(inh.value)
	}

	f.Fields = append(f.Fields, field)
}

func controlKind(ft string, flags int) (form.ControlKind, bool) {
	switch ft {
	case "Tx":
		return form.ControlText, true
	case "Ch":
		return form.ControlDropdown, true
	case "Btn":
		switch {
		case flags&flagPushbutton != 0:
			return 0, false
		case flags&flagRadio != 0:
			return form.ControlRadioGroup, true
		default:
			return form.ControlCheckbox, true
		}
	default:
		// Sig and unknown types cannot be filled with a value
		return 0, false
	}
}

func (f *Form) kids(d types.Dict) types.Array {
	obj, found := d.Find("Kids")
	if !found {
		return nil
	}
	arr, err := f.ctx.DereferenceArray(obj)
	if err != nil {
		return nil
	}
	return arr
}

// hasChildFields distinguishes child fields (named) from bare widget annotations
func (f *Form) hasChildFields(kids types.Array) bool {
	for _, k := range kids {
		d, err := f.ctx.DereferenceDict(k)
		if err != nil || d == nil {
			continue
		}
		if _, found := d.Find("T"); found {
			return true
		}
	}
	return false
}

// onStates lists the appearance states other than Off across widgets, in stable order
func (f *Form) onStates(widgets []types.Dict) []string {
	var states []string
	seen := map[string]bool{}
	for _, w := range widgets {
		apObj, found := w.Find("AP")
		if !found {
			continue
		}
		ap, err := f.ctx.DereferenceDict(apObj)
		if err != nil || ap == nil {
			continue
		}
		nObj, found := ap.Find("N")
		if !found {
			continue
		}
		n, err := f.ctx.DereferenceDict(nObj)
		if err != nil || n == nil {
			continue
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k != offState && !seen[k] {
				seen[k] = true
				states = append(states, k)
			}
		}
	}
	return states
}

// choiceOptions returns display values and export values of a choice field
func (f *Form) choiceOptions(d types.Dict) (display, export []string) {
	optObj, found := d.Find("Opt")
	if !found {
		return nil, nil
	}
	optArray, err := f.ctx.DereferenceArray(optObj)
	if err != nil {
		return nil, nil
	}

	for _, opt := range optArray {
		// Options can be strings or arrays of [export_value, display_value]
		if s, err := f.ctx.DereferenceStringOrHexLiteral(opt, model.V10, nil); err == nil {
			display = append(display, s)
			export = append(export, s)
		} else if arr, err := f.ctx.DereferenceArray(opt); err == nil && len(arr) >= 2 {
			e, err1 := f.ctx.DereferenceStringOrHexLiteral(arr[0], model.V10, nil)
			v, err2 := f.ctx.DereferenceStringOrHexLiteral(arr[1], model.V10, nil)
			if err1 == nil && err2 == nil {
				display = append(display, v)
				export = append(export, e)
			}
		}
	}
	return display, export
}

func (f *Form) stringValue(obj types.Object) string {
	if obj == nil {
		return ""
	}
	if s, err := f.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil); err == nil {
		return s
	}
	if n, err := f.ctx.DereferenceName(obj, model.V10, nil); err == nil {
		return n.Value()
	}
	return ""
}

// Controls returns the neutral representation of every field
func (f *Form) Controls() []form.Control {
	if f == nil {
		return nil
	}
	out := make([]form.Control, len(f.Fields))
	for i, fld := range f.Fields {
		out[i] = fld.Control()
	}
	return out
}
