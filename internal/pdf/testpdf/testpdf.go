// Package testpdf builds small, well-formed PDF files for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"strings"
)

// Builder assembles numbered PDF objects and writes a file with a correct xref table
type Builder struct {
	objects []string
}

// Add appends an object body and returns its object number
func (b *Builder) Add(body string) int {
	b.objects = append(b.objects, body)
	return len(b.objects)
}

// Reserve allocates an object number to be filled later with Set
func (b *Builder) Reserve() int {
	return b.Add("null")
}

// Set replaces the body of object n
func (b *Builder) Set(n int, body string) {
	b.objects[n-1] = body
}

// Bytes writes the file with root as the catalog object
func (b *Builder) Bytes(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(b.objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, root, xref)
	return buf.Bytes()
}

// Stream formats a stream object body
func Stream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

func helveticaWidths() string {
	w := make([]string, 0, 95)
	for c := 32; c <= 126; c++ {
		if c == ' ' {
			w = append(w, "278")
			continue
		}
		w = append(w, "556")
	}
	return strings.Join(w, " ")
}

func font(base string) string {
	return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		base, helveticaWidths())
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// Line is a single run of text placed at a baseline position
type Line struct {
	Text string
	X, Y float64
	Size float64
}

// TextPDF returns a one-page US Letter PDF with each line drawn in Helvetica
func TextPDF(lines ...Line) []byte {
	var content strings.Builder
	for _, l := range lines {
		size := l.Size
		if size == 0 {
			size = 12
		}
		fmt.Fprintf(&content, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", size, l.X, l.Y, escape(l.Text))
	}

	b := &Builder{}
	catalog := b.Reserve()
	pages := b.Reserve()
	page := b.Reserve()
	contents := b.Add(Stream(content.String()))
	f := b.Add(font("Helvetica"))

	b.Set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pages))
	b.Set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page))
	b.Set(page, fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>",
		pages, contents, f))
	return b.Bytes(catalog)
}

// TextLines lays out plain strings top to bottom starting one inch from the top-left corner
func TextLines(text ...string) []byte {
	lines := make([]Line, len(text))
	for i, t := range text {
		lines[i] = Line{Text: t, X: 72, Y: 720 - float64(i)*24}
	}
	return TextPDF(lines...)
}

// FieldKind selects the AcroForm field flavour generated by FormPDF
type FieldKind int

const (
	Text FieldKind = iota
	Checkbox
	Radio
	Combo
	PushButton
	Signature
)

// Field describes one AcroForm field
type Field struct {
	Name    string
	Kind    FieldKind
	Options []string
	Value   string
	// Parent nests the field under a non-terminal parent with this partial name
	Parent string
}

// FormPDF returns a one-page PDF with an AcroForm holding fields
func FormPDF(fields ...Field) []byte {
	b := &Builder{}
	catalog := b.Reserve()
	pages := b.Reserve()
	page := b.Reserve()
	contents := b.Add(Stream("BT /Helv 12 Tf 72 740 Td (Application form) Tj ET"))
	helv := b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	zadb := b.Add("<< /Type /Font /Subtype /Type1 /BaseFont /ZapfDingbats >>")

	var topLevel, annots []string
	parents := map[string]int{}
	parentKids := map[string][]string{}
	var parentOrder []string

	for i, f := range fields {
		y := 700 - float64(i)*40
		rect := fmt.Sprintf("[200 %g 400 %g]", y, y+20)
		var body string

		switch f.Kind {
		case Text:
			v := ""
			if f.Value != "" {
				v = fmt.Sprintf(" /V (%s)", escape(f.Value))
			}
			body = fmt.Sprintf("/FT /Tx /Rect %s /DA (/Helv 12 Tf 0 g)%s", rect, v)
		case Checkbox:
			on := b.Add(Stream("q 0 g BT /ZaDb 12 Tf 2 4 Td (4) Tj ET Q"))
			off := b.Add(Stream(""))
			state := "/Off"
			if f.Value != "" {
				state = "/" + f.Value
			}
			body = fmt.Sprintf("/FT /Btn /Rect %s /DA (/ZaDb 12 Tf 0 g) /V %s /AS %s /AP << /N << /Yes %d 0 R /Off %d 0 R >> >>",
				rect, state, state, on, off)
		case Radio:
			var kids []string
			for j, opt := range f.Options {
				on := b.Add(Stream("q 0 g BT /ZaDb 12 Tf 2 4 Td (l) Tj ET Q"))
				off := b.Add(Stream(""))
				as := "/Off"
				if opt == f.Value {
					as = "/" + opt
				}
				kid := b.Reserve()
				x := 200 + float64(j)*40
				b.Set(kid, fmt.Sprintf("<< /Type /Annot /Subtype /Widget /Rect [%g %g %g %g] /P %d 0 R /AS %s /AP << /N << /%s %d 0 R /Off %d 0 R >> >> /Parent %%PARENT%% >>",
					x, y, x+16, y+16, page, as, opt, on, off))
				kids = append(kids, fmt.Sprintf("%d 0 R", kid))
				annots = append(annots, fmt.Sprintf("%d 0 R", kid))
			}
			v := "/Off"
			if f.Value != "" {
				v = "/" + f.Value
			}
			body = fmt.Sprintf("/FT /Btn /Ff %d /V %s /Kids [%s]", 1<<15, v, strings.Join(kids, " "))
		case Combo:
			opts := make([]string, len(f.Options))
			for j, o := range f.Options {
				opts[j] = "(" + escape(o) + ")"
			}
			v := ""
			if f.Value != "" {
				v = fmt.Sprintf(" /V (%s)", escape(f.Value))
			}
			body = fmt.Sprintf("/FT /Ch /Ff %d /Rect %s /DA (/Helv 12 Tf 0 g) /Opt [%s]%s", 1<<17, rect, strings.Join(opts, " "), v)
		case PushButton:
			body = fmt.Sprintf("/FT /Btn /Ff %d /Rect %s", 1<<16, rect)
		case Signature:
			body = fmt.Sprintf("/FT /Sig /Rect %s", rect)
		}

		obj := b.Reserve()
		isWidget := f.Kind != Radio
		head := fmt.Sprintf("<< /T (%s) ", escape(f.Name))
		if isWidget {
			head += fmt.Sprintf("/Type /Annot /Subtype /Widget /P %d 0 R ", page)
			annots = append(annots, fmt.Sprintf("%d 0 R", obj))
		}
		parentRef := ""
		if f.Parent != "" {
			p, ok := parents[f.Parent]
			if !ok {
				p = b.Reserve()
				parents[f.Parent] = p
				parentOrder = append(parentOrder, f.Parent)
				topLevel = append(topLevel, fmt.Sprintf("%d 0 R", p))
			}
			parentKids[f.Parent] = append(parentKids[f.Parent], fmt.Sprintf("%d 0 R", obj))
			parentRef = fmt.Sprintf(" /Parent %d 0 R", p)
		} else {
			topLevel = append(topLevel, fmt.Sprintf("%d 0 R", obj))
		}
		b.Set(obj, head+body+parentRef+" >>")

		if f.Kind == Radio {
			for k := range b.objects {
				b.objects[k] = strings.Replace(b.objects[k], "%PARENT%", fmt.Sprintf("%d 0 R", obj), 1)
			}
		}
	}

	for _, name := range parentOrder {
		b.Set(parents[name], fmt.Sprintf("<< /T (%s) /Kids [%s] >>", escape(name), strings.Join(parentKids[name], " ")))
	}

	acro := b.Add(fmt.Sprintf("<< /Fields [%s] /DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv %d 0 R /ZaDb %d 0 R >> >> >>",
		strings.Join(topLevel, " "), helv, zadb))

	b.Set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R /AcroForm %d 0 R >>", pages, acro))
	b.Set(pages, fmt.Sprintf("<< /Type /Pages /Kids [%d 0 R] /Count 1 >>", page))
	b.Set(page, fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /Helv %d 0 R >> >> /Annots [%s] >>",
		pages, contents, helv, strings.Join(annots, " ")))
	return b.Bytes(catalog)
}
