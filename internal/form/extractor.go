package form

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minLineLength          = 2
	maxLineLength          = 150
	minLabelLength         = 2
	maxLabelLength         = 80
	secondaryPassThreshold = 5
	secondaryWindow        = 3

	// InputOffset is the horizontal gap, in source units, between a label's anchor and its input point
	InputOffset = 10.0
)

var (
	indicatorPattern    = regexp.MustCompile(`:|_{2,}|[\[(]|[.\-_]{3,}\s*$`)
	leadingCheckbox     = regexp.MustCompile(`^\[\s*[xX✓]?\s*\]\s*(.+)$`)
	enumerationPrefix   = regexp.MustCompile(`^(?:\(?\d{1,3}[.)]|\(?[a-zA-Z][.)]\s|\([a-zA-Z0-9]{1,3}\)|[-•*)])\s*`)
	optionalMarker      = regexp.MustCompile(`(?i)\boptional\b|\bif\s+applicable\b`)
	labelTrailingTrim   = " \t*:;,.-_"
	wordPunctuationTrim = " \t*:;,.-_()[]{}\"'!?"
)

// instructionWords open sentences addressed to the reader, never field labels
var instructionWords = map[string]bool{
	"instructions": true, "note": true, "please": true, "kindly": true,
}

// headingWords only reject a label when nothing but a reference follows them, as in "Section 2"
// or "Page 1 of 3". "Page Number" and "Amount Paid" stay fields.
var headingWords = map[string]bool{
	"section": true, "part": true, "page": true, "form": true,
	"total": true, "subtotal": true, "amount": true,
}

var referenceToken = regexp.MustCompile(`^(?:\d+[a-z]?|[a-z]|[ivx]+)$`)

var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "by": true, "with": true, "from": true, "and": true, "or": true,
	"as": true, "into": true, "per": true,
}

// Extractor infers form fields from extracted document text
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a new field extractor
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// candidate is a field before ids are assigned
type candidate struct {
	label    string
	typ      FieldType
	required bool
}

// Extract detects fields in text. words, when present, are used to anchor each field on the page.
// The result is never empty: the generic fallback schema replaces an empty detection.
func (e *Extractor) Extract(text string, words []WordBox) []FormField {
	lines := splitLines(text)

	seen := make(map[string]bool)
	var candidates []candidate
	add := func(c candidate) bool {
		key := strings.ToLower(c.label)
		if seen[key] {
			return false
		}
		seen[key] = true
		candidates = append(candidates, c)
		return true
	}

	for _, line := range lines {
		if c, ok := primaryCandidate(line); ok {
			add(c)
		}
	}
	primaryCount := len(candidates)

	if primaryCount < secondaryPassThreshold {
		for _, line := range lines {
			if c, ok := secondaryCandidate(line); ok {
				add(c)
			}
		}
	}

	e.logger.Debug("field detection finished",
		"lines", len(lines),
		"primary", primaryCount,
		"secondary", len(candidates)-primaryCount,
		"words", len(words),
	)

	if len(candidates) == 0 {
		e.logger.Debug("no fields detected, using fallback schema")
		return FallbackFields()
	}

	fields := make([]FormField, len(candidates))
	for i, c := range candidates {
		fields[i] = FormField{
			ID:       fieldID(i),
			Label:    c.label,
			Type:     c.typ,
			Required: c.required,
		}
		if len(words) > 0 {
			fields[i].Coordinates = anchorLabel(c.label, words)
		}
	}
	return fields
}

// primaryCandidate looks for a field indicator and takes the text before it as the label
func primaryCandidate(line string) (candidate, bool) {
	n := utf8.RuneCountInString(line)
	if n < minLineLength || n > maxLineLength {
		return candidate{}, false
	}

	body := stripEnumeration(line)

	if m := leadingCheckbox.FindStringSubmatch(body); m != nil {
		label := cleanLabel(m[1])
		if !acceptLabel(label) {
			return candidate{}, false
		}
		return candidate{label: label, typ: TypeCheckbox, required: !optionalMarker.MatchString(line)}, true
	}

	loc := indicatorPattern.FindStringIndex(body)
	if loc == nil {
		return candidate{}, false
	}

	label := cleanLabel(stripEnumeration(body[:loc[0]]))
	if !acceptLabel(label) {
		return candidate{}, false
	}

	typ := Classify(label)
	if typ == TypeText {
		typ = Classify(line)
	}

	return candidate{label: label, typ: typ, required: !optionalMarker.MatchString(line)}, true
}

// secondaryCandidate matches the type table against the raw line and labels the field with the
// words around the matching token
func secondaryCandidate(line string) (candidate, bool) {
	typ, offset := classifyIndex(line)
	if offset < 0 {
		return candidate{}, false
	}

	spans := wordSpans(line)
	center := -1
	for i, s := range spans {
		if offset >= s.start && offset < s.end {
			center = i
			break
		}
		if offset < s.start {
			center = i
			break
		}
	}
	if center < 0 {
		return candidate{}, false
	}

	lo := center - (secondaryWindow-1)/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + secondaryWindow
	if hi > len(spans) {
		hi = len(spans)
	}

	var parts []string
	for _, s := range spans[lo:hi] {
		w := strings.Trim(line[s.start:s.end], wordPunctuationTrim)
		if w != "" {
			parts = append(parts, w)
		}
	}

	label := cleanLabel(strings.Join(parts, " "))
	n := utf8.RuneCountInString(label)
	if n < minLabelLength || n > maxLabelLength {
		return candidate{}, false
	}

	return candidate{label: label, typ: typ, required: !optionalMarker.MatchString(line)}, true
}

type span struct {
	start, end int
}

func wordSpans(s string) []span {
	var spans []span
	start := -1
	for i, r := range s {
		space := r == ' ' || r == '\t'
		switch {
		case space && start >= 0:
			spans = append(spans, span{start, i})
			start = -1
		case !space && start < 0:
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(s)})
	}
	return spans
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func stripEnumeration(s string) string {
	return strings.TrimSpace(enumerationPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
}

func cleanLabel(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), labelTrailingTrim)
	return strings.Join(strings.Fields(s), " ")
}

func acceptLabel(label string) bool {
	n := utf8.RuneCountInString(label)
	if n < minLabelLength || n > maxLabelLength {
		return false
	}

	words := strings.Fields(strings.ToLower(label))
	first := strings.Trim(words[0], wordPunctuationTrim)
	if instructionWords[first] {
		return false
	}
	if headingWords[first] {
		for _, w := range words[1:] {
			w = strings.Trim(w, wordPunctuationTrim)
			if w != "" && !fillerWords[w] && !referenceToken.MatchString(w) {
				return true
			}
		}
		return false
	}

	for _, w := range words {
		if !fillerWords[strings.Trim(w, wordPunctuationTrim)] {
			return true
		}
	}
	return false
}

// anchorLabel finds the first word containing any token of label
func anchorLabel(label string, words []WordBox) *Coordinates {
	var tokens []string
	for _, t := range strings.Fields(strings.ToLower(label)) {
		t = strings.Trim(t, wordPunctuationTrim)
		if utf8.RuneCountInString(t) >= 2 {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	for _, w := range words {
		text := strings.ToLower(w.Text)
		for _, t := range tokens {
			if strings.Contains(text, t) {
				page := w.Page
				if page < 1 {
					page = 1
				}
				return &Coordinates{
					Anchor: w.Box,
					InputX: w.Box.Right() + InputOffset,
					InputY: w.Box.Y,
					Page:   page,
				}
			}
		}
	}
	return nil
}

func fieldID(index int) string {
	return fmt.Sprintf("field_%d", index+1)
}

// FallbackFields returns the generic five-field schema used when nothing was detected
func FallbackFields() []FormField {
	generic := []struct {
		label string
		typ   FieldType
	}{
		{"Full Name", TypeName},
		{"Email Address", TypeEmail},
		{"Phone Number", TypePhone},
		{"Address", TypeAddress},
		{"Date", TypeDate},
	}

	fields := make([]FormField, len(generic))
	for i, g := range generic {
		fields[i] = FormField{
			ID:       fieldID(i),
			Label:    g.label,
			Type:     g.typ,
			Required: true,
		}
	}
	return fields
}
