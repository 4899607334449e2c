package document

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	"github.com/ledongthuc/pdf"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WEBP decoder
)

// Kind is the broad media family of a document
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Document is a source document loaded into memory
type Document struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
	// Width and Height are pixel dimensions for images, zero for PDFs
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Data   []byte `json:"-"`
}

// Reader returns a fresh reader over the document bytes
func (d *Document) Reader() *bytes.Reader {
	return bytes.NewReader(d.Data)
}

// IsPDF reports whether the document is a PDF
func (d *Document) IsPDF() bool {
	return d.Kind == KindPDF
}

var signatures = []struct {
	magic     []byte
	offset    int
	mediaType string
	kind      Kind
}{
	{[]byte("%PDF-"), 0, "application/pdf", KindPDF},
	{[]byte("\x89PNG\r\n\x1a\n"), 0, "image/png", KindImage},
	{[]byte("\xff\xd8\xff"), 0, "image/jpeg", KindImage},
	{[]byte("GIF87a"), 0, "image/gif", KindImage},
	{[]byte("GIF89a"), 0, "image/gif", KindImage},
	{[]byte("II*\x00"), 0, "image/tiff", KindImage},
	{[]byte("MM\x00*"), 0, "image/tiff", KindImage},
	{[]byte("BM"), 0, "image/bmp", KindImage},
	{[]byte("WEBP"), 8, "image/webp", KindImage},
}

// Sniff detects the media type from the leading bytes. ok is false for unsupported content.
func Sniff(head []byte) (mediaType string, kind Kind, ok bool) {
	for _, s := range signatures {
		end := s.offset + len(s.magic)
		if len(head) >= end && bytes.Equal(head[s.offset:end], s.magic) {
			if s.mediaType == "image/webp" && !bytes.HasPrefix(head, []byte("RIFF")) {
				continue
			}
			return s.mediaType, s.kind, true
		}
	}
	return "", "", false
}

// Open validates and loads the file at path. maxSize <= 0 disables the size limit.
func Open(path string, maxSize int64) (*Document, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	doc, err := Load(data, info.Name())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// Load builds a document from raw bytes
func Load(data []byte, name string) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	mediaType, kind, ok := Sniff(data)
	if !ok {
		return nil, fmt.Errorf("unsupported document format")
	}

	doc := &Document{
		Name:      name,
		Kind:      kind,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Data:      data,
	}

	switch kind {
	case KindPDF:
		if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
			return nil, fmt.Errorf("invalid PDF file: %w", err)
		}
	case KindImage:
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("invalid image: %w", err)
		}
		doc.Width, doc.Height = cfg.Width, cfg.Height
	}

	return doc, nil
}

// SupportedMediaTypes lists the media types Open accepts, in detection order
func SupportedMediaTypes() []string {
	seen := make(map[string]bool, len(signatures))
	var out []string
	for _, s := range signatures {
		if !seen[s.mediaType] {
			seen[s.mediaType] = true
			out = append(out, s.mediaType)
		}
	}
	return out
}
