package testpdf

import (
	"bytes"
	"errors"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Painted returns the decoded content streams of every page followed by the content of the form
// XObjects each page references
func Painted(data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return "", err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= ctx.PageCount; i++ {
		d, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return "", err
		}
		content, err := ctx.PageContent(d, i)
		if err != nil && !errors.Is(err, model.ErrNoContent) {
			return "", err
		}
		b.Write(content)

		if inh.Resources == nil {
			continue
		}
		obj, found := inh.Resources.Find("XObject")
		if !found {
			continue
		}
		xobjects, err := ctx.DereferenceDict(obj)
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(xobjects))
		for name := range xobjects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sd, _, err := ctx.DereferenceStreamDict(xobjects[name])
			if err != nil {
				return "", err
			}
			if sd == nil || sd.Dict.Subtype() == nil || *sd.Dict.Subtype() != "Form" {
				continue
			}
			if err := sd.Decode(); err != nil {
				return "", err
			}
			b.WriteString("\n")
			b.Write(sd.Content)
		}
	}
	return b.String(), nil
}
