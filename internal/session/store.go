package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/mcp-form-filler/internal/document"
	ferrors "github.com/a3tai/mcp-form-filler/internal/errors"
	"github.com/a3tai/mcp-form-filler/internal/form"
)

// DefaultCapacity bounds the number of live sessions kept by a MemoryStore
const DefaultCapacity = 256

// Store persists fill sessions. Mutating calls on one session must be made while holding the
// session lock returned by Lock.
type Store interface {
	Create(schema *form.Schema, doc *document.Ref) (*FillSession, error)
	Get(id string) (*FillSession, error)
	RecordValue(id, fieldID, value string) error
	AppendHistory(id string, turns ...Turn) error
	AdvanceCursor(id string) (int, error)
	MarkComplete(id string) error
	Dispose(id string) error
	Lock(id string) (unlock func(), err error)
}

type entry struct {
	session *FillSession
	lock    sync.Mutex // held for a whole transition
	prev    *entry
	next    *entry
}

// MemoryStore keeps sessions in process memory with LRU eviction
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]*entry
	order    *lruList
	capacity int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a MemoryStore
type Option func(*MemoryStore)

// WithCapacity sets the maximum number of live sessions
func WithCapacity(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMemoryStore creates an empty store
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		items:    make(map[string]*entry),
		order:    newLRUList(),
		capacity: DefaultCapacity,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new session at cursor 0. The least recently used session is disposed when the
// store is full.
func (s *MemoryStore) Create(schema *form.Schema, doc *document.Ref) (*FillSession, error) {
	if schema == nil {
		return nil, errors.New("session schema is required")
	}
	now := s.now()
	sess := &FillSession{
		ID:         uuid.NewString(),
		Schema:     schema,
		Values:     make(map[string]string),
		Complete:   schema.Len() == 0,
		Document:   doc,
		CreatedAt:  now,
		LastAccess: now,
	}
	e := &entry{session: sess}

	s.mu.Lock()
	s.items[sess.ID] = e
	s.order.pushFront(e)
	var evicted *entry
	if len(s.items) > s.capacity {
		evicted = s.order.back()
		s.order.remove(evicted)
		delete(s.items, evicted.session.ID)
	}
	snapshot := sess.clone()
	s.mu.Unlock()

	if evicted != nil {
		s.logger.Warn("session evicted", "session", evicted.session.ID)
		_ = s.release(evicted.session)
	}
	return snapshot, nil
}

// Get returns a snapshot of the session and marks it as recently used
func (s *MemoryStore) Get(id string) (*FillSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	return e.session.clone(), nil
}

// RecordValue stores the accepted value for fieldID
func (s *MemoryStore) RecordValue(id, fieldID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.touch(id)
	if err != nil {
		return err
	}
	e.session.Values[fieldID] = value
	return nil
}

// AppendHistory appends turns to the transcript. Turns without a timestamp get the store clock.
func (s *MemoryStore) AppendHistory(id string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.touch(id)
	if err != nil {
		return err
	}
	for _, t := range turns {
		if t.At.IsZero() {
			t.At = s.now()
		}
		e.session.History = append(e.session.History, t)
	}
	return nil
}

// AdvanceCursor moves the cursor one field forward and returns the new position. The cursor
// never passes the number of fields.
func (s *MemoryStore) AdvanceCursor(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.touch(id)
	if err != nil {
		return 0, err
	}
	if e.session.Cursor < e.session.Schema.Len() {
		e.session.Cursor++
	}
	return e.session.Cursor, nil
}

// MarkComplete flags the session complete. Completion is never undone.
func (s *MemoryStore) MarkComplete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.touch(id)
	if err != nil {
		return err
	}
	e.session.Complete = true
	return nil
}

// Dispose removes the session and releases its document. It does not wait for an in-flight
// transition.
func (s *MemoryStore) Dispose(id string) error {
	s.mu.Lock()
	e, ok := s.items[id]
	if ok {
		s.order.remove(e)
		delete(s.items, id)
	}
	s.mu.Unlock()

	if !ok {
		return ferrors.SessionNotFound(id)
	}
	return s.release(e.session)
}

// Lock acquires the per-session transition lock
func (s *MemoryStore) Lock(id string) (func(), error) {
	s.mu.Lock()
	e, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		return nil, ferrors.SessionNotFound(id)
	}

	e.lock.Lock()

	// the session may have been disposed while we waited
	s.mu.Lock()
	current, ok := s.items[id]
	s.mu.Unlock()
	if !ok || current != e {
		e.lock.Unlock()
		return nil, ferrors.SessionNotFound(id)
	}

	var once sync.Once
	return func() { once.Do(e.lock.Unlock) }, nil
}

// Expire disposes sessions idle for longer than idle and returns their ids. Sessions in the
// middle of a transition are left alone.
func (s *MemoryStore) Expire(idle time.Duration) []string {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var expired []*entry
	for id, e := range s.items {
		if !e.session.LastAccess.Before(cutoff) {
			continue
		}
		if !e.lock.TryLock() {
			continue
		}
		e.lock.Unlock()
		s.order.remove(e)
		delete(s.items, id)
		expired = append(expired, e)
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, e := range expired {
		ids = append(ids, e.session.ID)
		_ = s.release(e.session)
	}
	if len(ids) > 0 {
		s.logger.Info("idle sessions expired", "count", len(ids))
	}
	return ids
}

// Close disposes every session
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	s.items = make(map[string]*entry)
	s.order = newLRUList()
	s.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := s.release(e.session); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len returns the number of live sessions
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// IDs lists live sessions from most to least recently used
func (s *MemoryStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.ids()
}

// touch must be called with s.mu held
func (s *MemoryStore) touch(id string) (*entry, error) {
	e, ok := s.items[id]
	if !ok {
		return nil, ferrors.SessionNotFound(id)
	}
	e.session.LastAccess = s.now()
	s.order.moveToFront(e)
	return e, nil
}

func (s *MemoryStore) release(sess *FillSession) error {
	if sess.Document == nil {
		return nil
	}
	if err := sess.Document.Release(); err != nil {
		s.logger.Warn("failed to release document", "session", sess.ID, "error", err)
		return err
	}
	return nil
}
