package form

import "regexp"

// TypeRule pairs a keyword pattern with the field type it implies
type TypeRule struct {
	Type    FieldType
	Pattern *regexp.Regexp
}

// typeRules is evaluated in order and the first match wins. More specific types come before the
// generic ones they overlap with ("Email Address" is an email, "School Name" is a school).
var typeRules = []TypeRule{
	{TypeEmail, regexp.MustCompile(`(?i)\be-?mail\b`)},
	{TypePhone, regexp.MustCompile(`(?i)\b(phone|telephone|tel|mobile|cell|contact\s+(no|number))\b`)},
	{TypeSSN, regexp.MustCompile(`(?i)\b(ssn|social\s+security)\b`)},
	{TypeSignature, regexp.MustCompile(`(?i)\b(signature|signed|sign\s+here)\b`)},
	{TypeDate, regexp.MustCompile(`(?i)\b(date|dob|d\.o\.b|birthday)\b`)},
	{TypeParent, regexp.MustCompile(`(?i)\b(parent|parents|guardian|father|mother)\b`)},
	{TypeSchool, regexp.MustCompile(`(?i)\b(school|college|university|institution)\b`)},
	{TypeName, regexp.MustCompile(`(?i)\b(name|surname|forename)\b`)},
	{TypeAddress, regexp.MustCompile(`(?i)\b(address|street|city|state|zip|postal|postcode)\b`)},
	{TypeGender, regexp.MustCompile(`(?i)\b(gender|sex)\b`)},
	{TypeAge, regexp.MustCompile(`(?i)\bage\b`)},
	{TypeGrade, regexp.MustCompile(`(?i)\b(grade|class|standard)\b`)},
	{TypeOccupation, regexp.MustCompile(`(?i)\b(occupation|profession|job|employer|employment)\b`)},
	{TypeIncome, regexp.MustCompile(`(?i)\b(income|salary|earnings|wages)\b`)},
	{TypeReligion, regexp.MustCompile(`(?i)\b(religion|faith|denomination)\b`)},
	{TypeNationality, regexp.MustCompile(`(?i)\b(nationality|citizenship|citizen)\b`)},
	{TypeCheckbox, regexp.MustCompile(`(?i)(\[\s*[x✓]?\s*\]|\bcheck\s+(one|all|box)\b|\btick\b|\byes\s*/\s*no\b)`)},
}

// TypeRules returns a copy of the ordered classification table
func TypeRules() []TypeRule {
	out := make([]TypeRule, len(typeRules))
	copy(out, typeRules)
	return out
}

// Classify returns the type of the first rule matching s, or TypeText
func Classify(s string) FieldType {
	t, _ := classifyIndex(s)
	return t
}

// classifyIndex also returns the byte offset of the match, -1 when nothing matched
func classifyIndex(s string) (FieldType, int) {
	for _, rule := range typeRules {
		if loc := rule.Pattern.FindStringIndex(s); loc != nil {
			return rule.Type, loc[0]
		}
	}
	return TypeText, -1
}
