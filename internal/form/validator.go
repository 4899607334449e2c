package form

import (
	"regexp"
	"strings"
)

// Rejection reasons returned by Validate
const (
	ReasonEmpty = "empty"
	ReasonEmail = "must look like name@example.com"
	ReasonPhone = "must contain at least 10 digits"
	ReasonDate  = "must look like DD/MM/YYYY"
	ReasonSSN   = "must look like 123-45-6789"
)

const minPhoneDigits = 10

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()+]+$`)
	datePattern  = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-](\d{2}|\d{4})$`)
	ssnPattern   = regexp.MustCompile(`^\d{3}-?\d{2}-?\d{4}$`)
)

// Result is the outcome of validating one answer
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate checks the syntactic shape of raw for the given field type. It never checks semantics:
// 31/02/2020 is a valid date here.
func Validate(t FieldType, raw string) Result {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Result{Reason: ReasonEmpty}
	}

	switch t {
	case TypeEmail:
		if !emailPattern.MatchString(value) {
			return Result{Reason: ReasonEmail}
		}
	case TypePhone:
		if !phonePattern.MatchString(value) || countDigits(value) < minPhoneDigits {
			return Result{Reason: ReasonPhone}
		}
	case TypeDate:
		if !datePattern.MatchString(value) {
			return Result{Reason: ReasonDate}
		}
	case TypeSSN:
		if !ssnPattern.MatchString(value) {
			return Result{Reason: ReasonSSN}
		}
	}

	return Result{Valid: true}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
