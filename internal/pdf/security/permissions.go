package security

import (
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Permission bits of the encryption dictionary P entry
const (
	bitPrint     = 1 << 2
	bitModify    = 1 << 3
	bitCopy      = 1 << 4
	bitAnnotate  = 1 << 5
	bitFillForms = 1 << 8
)

// Permissions is the subset of PDF user permissions relevant to filling a document
type Permissions struct {
	Print     bool
	Modify    bool
	Copy      bool
	Annotate  bool
	FillForms bool
}

// FullPermissions is what an unencrypted document grants
var FullPermissions = Permissions{Print: true, Modify: true, Copy: true, Annotate: true, FillForms: true}

// FromP decodes the P entry of an encryption dictionary
func FromP(p int32) Permissions {
	return Permissions{
		Print:     p&bitPrint != 0,
		Modify:    p&bitModify != 0,
		Copy:      p&bitCopy != 0,
		Annotate:  p&bitAnnotate != 0,
		FillForms: p&bitFillForms != 0,
	}
}

// AllowsFill reports whether the document may be filled. Interactive forms need the form filling
// or annotation right; drawing answers onto the page needs the modify right.
func (p Permissions) AllowsFill(native bool) bool {
	if native {
		return p.FillForms || p.Annotate
	}
	return p.Modify
}

// String lists the granted rights
func (p Permissions) String() string {
	var parts []string
	for _, r := range []struct {
		ok   bool
		name string
	}{
		{p.Print, "print"},
		{p.Modify, "modify"},
		{p.Copy, "copy"},
		{p.Annotate, "annotate"},
		{p.FillForms, "fill_forms"},
	} {
		if r.ok {
			parts = append(parts, r.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// ReadPermissions returns the user permissions of a parsed PDF. encrypted is false, with full
// permissions, when the document has no encryption dictionary.
func ReadPermissions(ctx *model.Context) (perms Permissions, encrypted bool, err error) {
	if ctx == nil || ctx.Encrypt == nil {
		return FullPermissions, false, nil
	}

	d, err := ctx.DereferenceDict(*ctx.Encrypt)
	if err != nil {
		return Permissions{}, true, fmt.Errorf("read encryption dictionary: %w", err)
	}
	if d == nil {
		return FullPermissions, false, nil
	}

	p := d.IntEntry("P")
	if p == nil {
		return Permissions{}, true, fmt.Errorf("encryption dictionary has no P entry")
	}
	return FromP(int32(*p)), true, nil
}
