package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		typ    FieldType
		value  string
		valid  bool
		reason string
	}{
		{"email valid", TypeEmail, "a@b.com", true, ""},
		{"email trimmed", TypeEmail, "  jane.doe@example.org ", true, ""},
		{"email missing at", TypeEmail, "not-an-email", false, ReasonEmail},
		{"email missing dot", TypeEmail, "a@b", false, ReasonEmail},
		{"email with space", TypeEmail, "a b@c.com", false, ReasonEmail},
		{"phone international", TypePhone, "+1 (555) 123-4567", true, ""},
		{"phone plain", TypePhone, "5551234567", true, ""},
		{"phone too short", TypePhone, "555-1234", false, ReasonPhone},
		{"phone letters", TypePhone, "call me 5551234567", false, ReasonPhone},
		{"date slashes", TypeDate, "12/05/2024", true, ""},
		{"date dashes short year", TypeDate, "1-5-24", true, ""},
		{"date not semantically checked", TypeDate, "31/02/2020", true, ""},
		{"date iso rejected", TypeDate, "2024-05-12", false, ReasonDate},
		{"date words rejected", TypeDate, "May 12th", false, ReasonDate},
		{"ssn dashed", TypeSSN, "123-45-6789", true, ""},
		{"ssn bare", TypeSSN, "123456789", true, ""},
		{"ssn wrong grouping", TypeSSN, "12-345-6789", false, ReasonSSN},
		{"name anything", TypeName, "Jane Doe", true, ""},
		{"checkbox anything", TypeCheckbox, "maybe", true, ""},
		{"text anything", TypeText, "42", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.typ, tt.value)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestValidate_EmptyRejectedForEveryType(t *testing.T) {
	for _, typ := range AllTypes {
		for _, v := range []string{"", "   ", "\t\n"} {
			got := Validate(typ, v)
			assert.False(t, got.Valid, "%s %q", typ, v)
			assert.Equal(t, ReasonEmpty, got.Reason)
		}
	}
}

func TestTypeRulesReturnsCopy(t *testing.T) {
	rules := TypeRules()
	rules[0] = TypeRule{Type: TypeText}

	assert.Equal(t, TypeEmail, TypeRules()[0].Type)
	assert.Equal(t, TypeCheckbox, TypeRules()[len(rules)-1].Type)
}
