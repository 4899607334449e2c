package form

import (
	"strings"

	"github.com/a3tai/mcp-form-filler/internal/geometry"
)

// FieldType is the closed set of semantic field types
type FieldType string

const (
	TypeName        FieldType = "name"
	TypeEmail       FieldType = "email"
	TypePhone       FieldType = "phone"
	TypeAddress     FieldType = "address"
	TypeDate        FieldType = "date"
	TypeSSN         FieldType = "ssn"
	TypeGender      FieldType = "gender"
	TypeAge         FieldType = "age"
	TypeGrade       FieldType = "grade"
	TypeSchool      FieldType = "school"
	TypeParent      FieldType = "parent"
	TypeOccupation  FieldType = "occupation"
	TypeIncome      FieldType = "income"
	TypeReligion    FieldType = "religion"
	TypeNationality FieldType = "nationality"
	TypeSignature   FieldType = "signature"
	TypeCheckbox    FieldType = "checkbox"
	TypeText        FieldType = "text"
)

// AllTypes lists every field type in declaration order
var AllTypes = []FieldType{
	TypeName, TypeEmail, TypePhone, TypeAddress, TypeDate, TypeSSN, TypeGender, TypeAge,
	TypeGrade, TypeSchool, TypeParent, TypeOccupation, TypeIncome, TypeReligion,
	TypeNationality, TypeSignature, TypeCheckbox, TypeText,
}

// Coordinates locate a field on the source raster
type Coordinates struct {
	Anchor geometry.Box `json:"anchor"`
	InputX float64      `json:"input_x"`
	InputY float64      `json:"input_y"`
	Page   int          `json:"page"`
}

// InputBox returns a zero-size box at the input point, ready for geometry.Map
func (c Coordinates) InputBox() geometry.Box {
	return geometry.Box{X: c.InputX, Y: c.InputY}
}

// FormField is one detected fillable slot
type FormField struct {
	ID              string       `json:"id"`
	Label           string       `json:"label"`
	Type            FieldType    `json:"type"`
	Required        bool         `json:"required"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	SourceFieldName string       `json:"source_field_name,omitempty"`
}

// Schema is the immutable, ordered set of fields detected for one document
type Schema struct {
	fields       []FormField
	isNativeForm bool
	sourceWidth  float64
	sourceHeight float64
}

// NewSchema copies fields into a new schema
func NewSchema(fields []FormField, isNativeForm bool, sourceWidth, sourceHeight float64) *Schema {
	copied := make([]FormField, len(fields))
	for i, f := range fields {
		copied[i] = f
		if f.Coordinates != nil {
			c := *f.Coordinates
			copied[i].Coordinates = &c
		}
	}
	return &Schema{
		fields:       copied,
		isNativeForm: isNativeForm,
		sourceWidth:  sourceWidth,
		sourceHeight: sourceHeight,
	}
}

// Len returns the number of fields
func (s *Schema) Len() int {
	return len(s.fields)
}

// Field returns the field at index i
func (s *Schema) Field(i int) FormField {
	return s.fields[i]
}

// Fields returns a copy of the ordered fields
func (s *Schema) Fields() []FormField {
	out := make([]FormField, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldByID looks a field up by id
func (s *Schema) FieldByID(id string) (FormField, int, bool) {
	for i, f := range s.fields {
		if f.ID == id {
			return f, i, true
		}
	}
	return FormField{}, -1, false
}

// IsNativeForm reports whether the fields came from interactive form controls
func (s *Schema) IsNativeForm() bool {
	return s.isNativeForm
}

// SourceSize returns the source raster dimensions, zero when unknown
func (s *Schema) SourceSize() (width, height float64) {
	return s.sourceWidth, s.sourceHeight
}

// WordBox is one recognized word with its raster bounding box
type WordBox struct {
	Text string       `json:"text"`
	Box  geometry.Box `json:"bounding_box"`
	Page int          `json:"page,omitempty"`
}

// ControlKind tags the kind of a native interactive form control
type ControlKind int

const (
	ControlText ControlKind = iota
	ControlCheckbox
	ControlRadioGroup
	ControlDropdown
)

// String returns the kind tag
func (k ControlKind) String() string {
	switch k {
	case ControlCheckbox:
		return "checkbox"
	case ControlRadioGroup:
		return "radio-group"
	case ControlDropdown:
		return "dropdown"
	default:
		return "text"
	}
}

// Control is a native interactive form control
type Control struct {
	Name    string      `json:"name"`
	Kind    ControlKind `json:"kind"`
	Options []string    `json:"options,omitempty"`
	Value   string      `json:"value,omitempty"`
}

// truthyValues is the fixed set of answers that tick a checkbox
var truthyValues = map[string]bool{
	"yes":     true,
	"true":    true,
	"1":       true,
	"checked": true,
	"x":       true,
}

// IsTruthy reports whether value should tick a checkbox
func IsTruthy(value string) bool {
	return truthyValues[strings.ToLower(strings.TrimSpace(value))]
}
