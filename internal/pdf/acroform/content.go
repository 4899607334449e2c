package acroform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

var daFontSizePattern = regexp.MustCompile(`([0-9]*\.?[0-9]+)\s+Tf`)

// WinAnsi encodes text for the standard Type1 fonts. Characters outside the code page become '?'.
func WinAnsi(text string) string {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return string(out)
}

// Literal returns a PDF string literal for already encoded bytes
func Literal(s string) string {
	buf := make([]byte, 0, len(s)+2)
	buf = append(buf, '(')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(', ')', '\\':
			buf = append(buf, '\\', c)
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		default:
			buf = append(buf, c)
		}
	}
	return string(append(buf, ')'))
}

// FormatNumber formats a coordinate for a content stream
func FormatNumber(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}

// daFontSize reads the font size of a default appearance string. Zero means auto size.
func daFontSize(da string) float64 {
	m := daFontSizePattern.FindStringSubmatch(da)
	if m == nil {
		return 0
	}
	size, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return size
}
