package acroform

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Set assigns value to the field according to its kind. It reports false when the value does not
// fit the field (no matching option).
func (f *Form) Set(fld *Field, value string) bool {
	switch fld.Kind {
	case form.ControlCheckbox:
		on := defaultOnState
		if len(fld.Options) > 0 {
			on = fld.Options[0]
		}
		state := offState
		if form.IsTruthy(value) {
			state = on
		}
		fld.Dict["V"] = types.Name(state)
		f.setAppearanceState(fld, state)
		fld.Value = ""
		if state != offState {
			fld.Value = state
		}
		return true

	case form.ControlRadioGroup:
		option, ok := matchOption(fld.Options, value)
		if !ok {
			return false
		}
		fld.Dict["V"] = types.Name(option)
		f.setAppearanceState(fld, option)
		fld.Value = option
		return true

	case form.ControlDropdown:
		i, ok := optionIndex(fld.Options, value)
		if !ok {
			return false
		}
		export := fld.Options[i]
		if i < len(fld.Exports) {
			export = fld.Exports[i]
		}
		fld.Dict["V"] = EncodeString(export)
		dropAppearance(fld)
		fld.Value = export
		fld.display = fld.Options[i]
		return true

	default:
		fld.Dict["V"] = EncodeString(value)
		dropAppearance(fld)
		fld.Value = value
		return true
	}
}

// setAppearanceState switches each widget to state when it has an appearance for it, Off otherwise
func (f *Form) setAppearanceState(fld *Field, state string) {
	for _, w := range fld.Widgets {
		as := offState
		if state != offState && f.widgetHasState(w, state) {
			as = state
		}
		w["AS"] = types.Name(as)
	}
}

func (f *Form) widgetHasState(w types.Dict, state string) bool {
	for _, s := range f.onStates([]types.Dict{w}) {
		if s == state {
			return true
		}
	}
	return false
}

// dropAppearance removes stale appearance streams. BuildAppearances draws the new value.
func dropAppearance(fld *Field) {
	for _, w := range fld.Widgets {
		delete(w, "AP")
	}
}

func matchOption(options []string, value string) (string, bool) {
	if i, ok := optionIndex(options, value); ok {
		return options[i], true
	}
	return "", false
}

func optionIndex(options []string, value string) (int, bool) {
	v := strings.TrimSpace(value)
	for i, o := range options {
		if o == v {
			return i, true
		}
	}
	for i, o := range options {
		if strings.EqualFold(o, v) {
			return i, true
		}
	}
	return -1, false
}

// EncodeString returns a PDF text string for s: an escaped literal for ASCII, UTF-16BE hex otherwise
func EncodeString(s string) types.Object {
	ascii := true
	for _, r := range s {
		if r > 0x7e || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			ascii = false
			break
		}
	}
	if ascii {
		return types.StringLiteral(EscapeLiteral(s))
	}

	buf := []byte{0xfe, 0xff}
	for _, u := range utf16.Encode([]rune(s)) {
		buf = append(buf, byte(u>>8), byte(u))
	}
	return types.HexLiteral(strings.ToUpper(hex.EncodeToString(buf)))
}

// EscapeLiteral escapes the delimiters of a PDF literal string
func EscapeLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)
	return r.Replace(s)
}

// String renders a field for logs
func (fld *Field) String() string {
	return fmt.Sprintf("%s(%s)", fld.Name, fld.Kind)
}
