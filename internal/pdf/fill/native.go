package fill

import (
	"context"
	"strings"

	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/pdf/acroform"
)

// fillNative writes values into the interactive controls of af and builds their appearances
func fillNative(ctx context.Context, af *acroform.Form, schema *form.Schema, values map[string]string) (drawn, skipped []string, err error) {
	for _, f := range schema.Fields() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		value := strings.TrimSpace(values[f.ID])
		if value == "" {
			continue
		}

		fld := MatchControl(af.Fields, f)
		if fld == nil || !af.Set(fld, value) {
			skipped = append(skipped, f.ID)
			continue
		}
		drawn = append(drawn, f.ID)
	}

	if err := af.BuildAppearances(); err != nil {
		return nil, nil, err
	}
	return drawn, skipped, nil
}

// MatchControl finds the control for f: by exact source name first, then by case-insensitive
// containment in either direction between control name and field label
func MatchControl(fields []*acroform.Field, f form.FormField) *acroform.Field {
	if f.SourceFieldName != "" {
		for _, fld := range fields {
			if fld.Name == f.SourceFieldName {
				return fld
			}
		}
	}

	label := strings.ToLower(strings.TrimSpace(f.Label))
	if label == "" {
		return nil
	}
	for _, fld := range fields {
		for _, name := range []string{fld.Name, form.HumanizeName(fld.Name)} {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if strings.Contains(name, label) || strings.Contains(label, name) {
				return fld
			}
		}
	}
	return nil
}
