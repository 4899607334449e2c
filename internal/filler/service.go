// Package filler orchestrates intake, the question/answer session and export of a filled document.
package filler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/a3tai/mcp-form-filler/internal/document"
	ferrors "github.com/a3tai/mcp-form-filler/internal/errors"
	"github.com/a3tai/mcp-form-filler/internal/export"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/pdf/extraction"
	"github.com/a3tai/mcp-form-filler/internal/pdf/fill"
	"github.com/a3tai/mcp-form-filler/internal/pdf/security"
	"github.com/a3tai/mcp-form-filler/internal/question"
	"github.com/a3tai/mcp-form-filler/internal/session"
)

// ErrIncomplete is returned when exporting a session that still has unanswered fields
var ErrIncomplete = errors.New("session is not complete")

// Defaults applied to zero Config values
const (
	DefaultMaxFileSize = 100 * 1024 * 1024
	DefaultSessionTTL  = 30 * time.Minute
	DefaultWorkers     = 4
)

// Config holds the service limits and directories
type Config struct {
	// DocumentDir confines intake paths; empty disables the check
	DocumentDir string
	// OutputDir receives exported files when no output path is given
	OutputDir   string
	MaxFileSize int64
	SessionTTL  time.Duration
	MaxSessions int
	Workers     int
	Author      string
	OCR         extraction.OCRConfig
}

// Service wires extraction, sessions and the fill engine together
type Service struct {
	cfg       Config
	paths     *security.PathValidator
	extractor extraction.TextExtractor
	forms     extraction.NativeFormReader
	fields    *form.Extractor
	generator question.Generator
	store     *session.MemoryStore
	machine   *session.Machine
	engine    *fill.Engine
	pool      *semaphore.Weighted
	logger    *slog.Logger

	janitorOnce sync.Once
	closeOnce   sync.Once
	stop        chan struct{}
	done        chan struct{}
}

// Option customises a Service
type Option func(*Service)

// WithExtractor replaces the text extractor
func WithExtractor(x extraction.TextExtractor) Option {
	return func(s *Service) { s.extractor = x }
}

// WithFormReader replaces the native form reader
func WithFormReader(r extraction.NativeFormReader) Option {
	return func(s *Service) { s.forms = r }
}

// WithGenerator replaces the question generator
func WithGenerator(g question.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithStore replaces the session store
func WithStore(store *session.MemoryStore) Option {
	return func(s *Service) { s.store = store }
}

// WithEngine replaces the fill engine
func WithEngine(e *fill.Engine) Option {
	return func(s *Service) { s.engine = e }
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a service. Collaborators not supplied through options get their default
// implementation.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = session.DefaultCapacity
	}

	s := &Service{
		cfg:    cfg,
		pool:   semaphore.NewWeighted(int64(cfg.Workers)),
		logger: slog.Default(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.DocumentDir != "" {
		pv, err := security.NewPathValidator(cfg.DocumentDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create path validator: %w", err)
		}
		s.paths = pv
	}
	if s.extractor == nil {
		s.extractor = extraction.NewDispatcher(
			extraction.NewPDFTextExtractor(s.logger),
			extraction.NewOCRExtractor(cfg.OCR, nil, s.logger),
			s.logger,
		)
	}
	if s.forms == nil {
		s.forms = extraction.NewPDFFormReader(s.logger)
	}
	if s.generator == nil {
		s.generator = question.LocalGenerator{}
	}
	if s.store == nil {
		s.store = session.NewMemoryStore(session.WithCapacity(cfg.MaxSessions), session.WithLogger(s.logger))
	}
	if s.engine == nil {
		s.engine = fill.NewEngine(s.logger, fill.WithAuthor(cfg.Author))
	}
	s.fields = form.NewExtractor(s.logger)
	s.machine = session.NewMachine(s.store, s.generator, s.logger)
	return s, nil
}

// IntakeResult describes a new session
type IntakeResult struct {
	SessionID    string           `json:"session_id"`
	Document     string           `json:"document"`
	Kind         document.Kind    `json:"kind"`
	IsNativeForm bool             `json:"is_native_form"`
	Method       string           `json:"method"`
	Fields       []form.FormField `json:"fields"`
	Question     string           `json:"question"`
	FieldID      string           `json:"field_id,omitempty"`
}

// Intake opens the document at path, detects its fields and starts a session. Relative paths are
// taken from the document directory when one is configured.
func (s *Service) Intake(ctx context.Context, path string) (*IntakeResult, error) {
	if s.paths != nil {
		resolved, err := s.paths.Resolve(path)
		if err != nil {
			return nil, fmt.Errorf("security validation failed: %w", err)
		}
		path = resolved
	}
	doc, err := document.Open(path, s.cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, document.NewRef(doc), path)
}

// IntakeReader stages an uploaded document in a temporary file and starts a session on it. The
// staged copy is removed when the session ends.
func (s *Service) IntakeReader(ctx context.Context, r io.Reader, name string) (*IntakeResult, error) {
	ref, err := document.Stage(r, name, s.cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, ref, name)
}

func (s *Service) start(ctx context.Context, ref *document.Ref, source string) (*IntakeResult, error) {
	doc := ref.Document()

	var (
		schema *form.Schema
		method string
	)
	err := s.run(ctx, func(ctx context.Context) error {
		var err error
		schema, method, err = s.detect(ctx, doc)
		return err
	})
	if err != nil {
		_ = ref.Release()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ferrors.ExtractionFailed(source, err)
	}

	sess, err := s.store.Create(schema, ref)
	if err != nil {
		_ = ref.Release()
		return nil, err
	}
	reply, err := s.machine.Start(ctx, sess.ID)
	if err != nil {
		_ = s.store.Dispose(sess.ID)
		return nil, err
	}

	s.logger.Info("session started",
		"session", sess.ID,
		"document", doc.Name,
		"method", method,
		"fields", schema.Len())

	return &IntakeResult{
		SessionID:    sess.ID,
		Document:     doc.Name,
		Kind:         doc.Kind,
		IsNativeForm: schema.IsNativeForm(),
		Method:       method,
		Fields:       schema.Fields(),
		Question:     reply.Message,
		FieldID:      reply.FieldID,
	}, nil
}

// detect builds the schema: native controls first for PDFs, text heuristics otherwise
func (s *Service) detect(ctx context.Context, doc *document.Document) (*form.Schema, string, error) {
	if doc.IsPDF() && s.forms != nil {
		controls, err := s.forms.ReadControls(doc.Reader())
		switch {
		case err != nil:
			s.logger.Warn("failed to read native form, using text heuristics", "document", doc.Name, "error", err)
		case len(controls) > 0:
			if fields := s.fields.ExtractNative(controls); len(fields) > 0 {
				return form.NewSchema(fields, true, 0, 0), "native-form", nil
			}
			s.logger.Warn("native form has no usable controls, using text heuristics", "document", doc.Name, "controls", len(controls))
		}
	}

	res, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, "", err
	}
	fields := s.fields.Extract(res.Text, res.Words)
	return form.NewSchema(fields, false, res.SourceWidth, res.SourceHeight), res.Method, nil
}

// Answer applies one answer to the session
func (s *Service) Answer(ctx context.Context, id, text string) (*session.Reply, error) {
	return s.machine.Submit(ctx, id, text)
}

// StatusResult is a snapshot of a session
type StatusResult struct {
	SessionID string            `json:"session_id"`
	Document  string            `json:"document,omitempty"`
	Cursor    int               `json:"cursor"`
	Total     int               `json:"total"`
	Complete  bool              `json:"complete"`
	Current   *form.FormField   `json:"current_field,omitempty"`
	Fields    []form.FormField  `json:"fields"`
	Values    map[string]string `json:"values"`
	History   []session.Turn    `json:"history"`
	CreatedAt time.Time         `json:"created_at"`
}

// Status returns a snapshot of the session
func (s *Service) Status(id string) (*StatusResult, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{
		SessionID: sess.ID,
		Cursor:    sess.Cursor,
		Total:     sess.Schema.Len(),
		Complete:  sess.Complete,
		Fields:    sess.Schema.Fields(),
		Values:    sess.Values,
		History:   sess.History,
		CreatedAt: sess.CreatedAt,
	}
	if f, ok := sess.CurrentField(); ok {
		res.Current = &f
	}
	if sess.Document != nil {
		if doc := sess.Document.Document(); doc != nil {
			res.Document = doc.Name
		}
	}
	return res, nil
}

// ExportRequest selects where the filled document goes
type ExportRequest struct {
	// Output is the PDF path; empty derives one from the document name inside OutputDir
	Output string
	// Summary also writes an .xlsx answer summary next to the PDF
	Summary bool
}

// ExportResult describes the written files
type ExportResult struct {
	SessionID   string        `json:"session_id"`
	Path        string        `json:"path"`
	SummaryPath string        `json:"summary_path,omitempty"`
	Strategy    fill.Strategy `json:"strategy"`
	Written     []string      `json:"written"`
	Skipped     []string      `json:"skipped,omitempty"`
	Bytes       int           `json:"bytes"`
}

// Export renders the completed session, writes it out and ends the session. A failed render or
// write leaves the session intact so export can be retried.
func (s *Service) Export(ctx context.Context, id string, req ExportRequest) (*ExportResult, error) {
	unlock, err := s.store.Lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !sess.Complete {
		return nil, fmt.Errorf("%w: %d of %d fields answered", ErrIncomplete, sess.Cursor, sess.Schema.Len())
	}
	if sess.Document == nil || sess.Document.Document() == nil {
		return nil, ferrors.DocumentFillFailed(errors.New("document has been released")).WithSession(id)
	}
	doc := sess.Document.Document()

	outPath, err := s.outputPath(req.Output, doc.Name)
	if err != nil {
		return nil, err
	}

	var out *fill.Output
	err = s.run(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.engine.Render(ctx, doc, sess.Schema, sess.Values)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := writeFile(outPath, out.Data); err != nil {
		return nil, ferrors.DocumentFillFailed(err).WithSession(id)
	}

	res := &ExportResult{
		SessionID: id,
		Path:      outPath,
		Strategy:  out.Strategy,
		Written:   out.Written,
		Skipped:   out.Skipped,
		Bytes:     len(out.Data),
	}

	if req.Summary {
		summaryPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".xlsx"
		if err := writeSummary(summaryPath, sess.Schema, sess.Values); err != nil {
			return nil, ferrors.DocumentFillFailed(err).WithSession(id)
		}
		res.SummaryPath = summaryPath
	}

	if err := s.store.Dispose(id); err != nil {
		s.logger.Warn("failed to dispose exported session", "session", id, "error", err)
	}
	s.logger.Info("session exported", "session", id, "path", outPath, "strategy", out.Strategy)
	return res, nil
}

// Dispose ends a session without exporting it
func (s *Service) Dispose(id string) error {
	return s.store.Dispose(id)
}

// Sessions returns the number of live sessions
func (s *Service) Sessions() int {
	return s.store.Len()
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// run executes fn on the worker pool. Waiting for a slot and waiting for the result both honour
// ctx.
func (s *Service) run(ctx context.Context, fn func(context.Context) error) error {
	if err := s.pool.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer s.pool.Release(1)
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) outputPath(requested, docName string) (string, error) {
	if requested == "" {
		base := strings.TrimSuffix(filepath.Base(docName), filepath.Ext(docName))
		if base == "" || base == "." {
			base = "form"
		}
		requested = base + "-filled.pdf"
	}
	if !filepath.IsAbs(requested) && s.cfg.OutputDir != "" {
		requested = filepath.Join(s.cfg.OutputDir, requested)
	}
	if s.paths != nil && s.cfg.OutputDir == "" {
		resolved, err := s.paths.Resolve(requested)
		if err != nil {
			return "", fmt.Errorf("security validation failed: %w", err)
		}
		requested = resolved
	}
	return requested, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeSummary(path string, schema *form.Schema, values map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	if err := export.WriteSummary(f, schema, values); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// StartJanitor disposes sessions idle for longer than the session TTL until Close is called
func (s *Service) StartJanitor() {
	s.janitorOnce.Do(func() {
		interval := s.cfg.SessionTTL / 4
		if interval < time.Second {
			interval = time.Second
		}
		go func() {
			defer close(s.done)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.store.Expire(s.cfg.SessionTTL)
				case <-s.stop:
					return
				}
			}
		}()
	})
}

// Close stops the janitor and disposes every session
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		started := true
		s.janitorOnce.Do(func() { started = false })
		if started {
			<-s.done
		}
		err = s.store.Close()
	})
	return err
}
