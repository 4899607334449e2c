package document

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-filler/internal/pdf/testpdf"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name      string
		head      []byte
		mediaType string
		kind      Kind
		ok        bool
	}{
		{"pdf", []byte("%PDF-1.7\n"), "application/pdf", KindPDF, true},
		{"png", []byte("\x89PNG\r\n\x1a\n...."), "image/png", KindImage, true},
		{"jpeg", []byte("\xff\xd8\xff\xe0"), "image/jpeg", KindImage, true},
		{"gif", []byte("GIF89a"), "image/gif", KindImage, true},
		{"tiff little endian", []byte("II*\x00"), "image/tiff", KindImage, true},
		{"tiff big endian", []byte("MM\x00*"), "image/tiff", KindImage, true},
		{"bmp", []byte("BM...."), "image/bmp", KindImage, true},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp", KindImage, true},
		{"webp marker without riff", []byte("XXXX\x00\x00\x00\x00WEBP"), "", "", false},
		{"text", []byte("hello world"), "", "", false},
		{"short", []byte("%P"), "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, kind, ok := Sniff(tt.head)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.mediaType, mediaType)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestLoad(t *testing.T) {
	doc, err := Load(testpdf.TextLines("Name: ____"), "form.pdf")
	require.NoError(t, err)
	assert.True(t, doc.IsPDF())
	assert.Equal(t, "application/pdf", doc.MediaType)
	assert.Zero(t, doc.Width)

	img, err := Load(pngBytes(t, 40, 30), "scan.png")
	require.NoError(t, err)
	assert.Equal(t, KindImage, img.Kind)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 30, img.Height)
	assert.Equal(t, int64(len(img.Data)), img.Size)

	_, err = Load(nil, "empty.pdf")
	assert.ErrorContains(t, err, "empty")

	_, err = Load([]byte("plain text"), "notes.txt")
	assert.ErrorContains(t, err, "unsupported document format")

	_, err = Load([]byte("%PDF-1.4\ngarbage"), "broken.pdf")
	assert.ErrorContains(t, err, "invalid PDF file")

	_, err = Load([]byte("\x89PNG\r\n\x1a\ntruncated"), "broken.png")
	assert.ErrorContains(t, err, "invalid image")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "form.pdf")
	require.NoError(t, os.WriteFile(good, testpdf.TextLines("Email: ____"), 0o600))
	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	doc, err := Open(good, 0)
	require.NoError(t, err)
	assert.Equal(t, good, doc.Path)
	assert.Equal(t, "form.pdf", doc.Name)

	tests := []struct {
		name    string
		path    string
		maxSize int64
		want    string
	}{
		{"empty path", "", 0, "path cannot be empty"},
		{"missing", filepath.Join(dir, "missing.pdf"), 0, "does not exist"},
		{"directory", dir, 0, "is a directory"},
		{"empty file", empty, 0, "file is empty"},
		{"too large", good, 10, "file too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path, tt.maxSize)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestStageAndRelease(t *testing.T) {
	ref, err := Stage(bytes.NewReader(pngBytes(t, 8, 8)), "upload.png", 0)
	require.NoError(t, err)

	doc := ref.Document()
	require.NotNil(t, doc)
	assert.Equal(t, "upload.png", doc.Name)
	assert.FileExists(t, doc.Path)
	staged := doc.Path

	require.NoError(t, ref.Release())
	assert.True(t, ref.Released())
	assert.Nil(t, ref.Document())
	assert.NoFileExists(t, staged)
	assert.NoError(t, ref.Release(), "second release is a no-op")
}

func TestStage_RejectsOversizedAndInvalid(t *testing.T) {
	_, err := Stage(strings.NewReader(strings.Repeat("x", 64)), "big.pdf", 16)
	assert.ErrorContains(t, err, "file too large")

	_, err = Stage(strings.NewReader("not a document"), "notes.txt", 0)
	assert.ErrorContains(t, err, "unsupported document format")
}

func TestNewRef_ReleaseLeavesSourceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "form.pdf")
	require.NoError(t, os.WriteFile(path, testpdf.TextLines("Phone: ____"), 0o600))
	doc, err := Open(path, 0)
	require.NoError(t, err)

	ref := NewRef(doc)
	require.NoError(t, ref.Release())
	assert.Nil(t, ref.Document())
	assert.FileExists(t, path)
}

func TestSupportedMediaTypes(t *testing.T) {
	assert.Equal(t, []string{
		"application/pdf", "image/png", "image/jpeg", "image/gif", "image/tiff", "image/bmp", "image/webp",
	}, SupportedMediaTypes())
}
