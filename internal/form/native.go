package form

import (
	"strings"
	"unicode"
)

// ExtractNative builds fields straight from interactive form controls. It returns nil when there
// are no controls so callers can fall back to the text heuristics.
func (e *Extractor) ExtractNative(controls []Control) []FormField {
	if len(controls) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	fields := make([]FormField, 0, len(controls))
	for _, c := range controls {
		label := HumanizeName(c.Name)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			e.logger.Debug("skipping duplicate native control label", "control", c.Name, "label", label)
			continue
		}
		seen[key] = true

		fields = append(fields, FormField{
			ID:              fieldID(len(fields)),
			Label:           label,
			Type:            nativeType(c, label),
			Required:        true,
			SourceFieldName: c.Name,
		})
	}

	e.logger.Debug("native form fields extracted", "controls", len(controls), "fields", len(fields))
	return fields
}

func nativeType(c Control, label string) FieldType {
	switch c.Kind {
	case ControlCheckbox, ControlRadioGroup:
		return TypeCheckbox
	case ControlDropdown:
		return TypeText
	}
	if t := Classify(label); t != TypeText {
		return t
	}
	return Classify(c.Name)
}

// HumanizeName turns a control name such as "parent_firstName" into "Parent first Name"
func HumanizeName(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		if r == '_' || r == '-' || r == '.' || unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}

	label := strings.Join(strings.Fields(b.String()), " ")
	if label == "" {
		return ""
	}
	first := []rune(label)
	first[0] = unicode.ToUpper(first[0])
	return string(first)
}
