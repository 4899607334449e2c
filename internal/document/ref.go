package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Ref is a session's handle on its source document. Release frees it exactly once.
type Ref struct {
	doc      *Document
	tempPath string

	mu       sync.RWMutex
	once     sync.Once
	released bool
	err      error
}

// NewRef wraps a document the caller does not own on disk
func NewRef(doc *Document) *Ref {
	return &Ref{doc: doc}
}

// Stage copies r into a temporary file owned by the returned Ref and loads it. The temporary file is
// removed by Release.
func Stage(r io.Reader, name string, maxSize int64) (*Ref, error) {
	tmp, err := os.CreateTemp("", "formfill-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}
	n, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()

	fail := func(err error) (*Ref, error) {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if copyErr != nil {
		return fail(fmt.Errorf("failed to stage document: %w", copyErr))
	}
	if closeErr != nil {
		return fail(fmt.Errorf("failed to stage document: %w", closeErr))
	}
	if maxSize > 0 && n > maxSize {
		return fail(fmt.Errorf("file too large: more than %d bytes", maxSize))
	}

	doc, err := Open(tmpPath, maxSize)
	if err != nil {
		return fail(err)
	}
	doc.Name = name

	return &Ref{doc: doc, tempPath: tmpPath}, nil
}

// Document returns the referenced document, nil after Release
func (r *Ref) Document() *Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.released {
		return nil
	}
	return r.doc
}

// Released reports whether Release has run
func (r *Ref) Released() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}

// Release drops the document and removes any staged copy. Later calls are no-ops returning the
// first call's error.
func (r *Ref) Release() error {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.released = true
		r.doc = nil
		if r.tempPath != "" {
			if err := os.Remove(r.tempPath); err != nil && !os.IsNotExist(err) {
				r.err = fmt.Errorf("failed to remove staged document: %w", err)
			}
		}
	})
	return r.err
}
