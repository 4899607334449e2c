package errors

import (
	"fmt"
	"time"
)

// Kind categorizes failures raised by the form filling core
type Kind int

const (
	KindUnknown Kind = iota
	KindExtractionFailed
	KindEmptySchema
	KindValidationRejected
	KindSessionNotFound
	KindDocumentFillFailed
	KindInvalidGeometry
)

// String returns the stable reason string for the kind
func (k Kind) String() string {
	switch k {
	case KindExtractionFailed:
		return "EXTRACTION_FAILED"
	case KindEmptySchema:
		return "EMPTY_SCHEMA"
	case KindValidationRejected:
		return "VALIDATION_REJECTED"
	case KindSessionNotFound:
		return "SESSION_NOT_FOUND"
	case KindDocumentFillFailed:
		return "DOCUMENT_FILL_FAILED"
	case KindInvalidGeometry:
		return "INVALID_GEOMETRY"
	default:
		return "UNKNOWN"
	}
}

// IsRecoverable reports whether the caller can retry or continue after an error of this kind
func (k Kind) IsRecoverable() bool {
	switch k {
	case KindValidationRejected, KindEmptySchema:
		return true // handled inside the core
	case KindDocumentFillFailed:
		return true // session stays intact, export may be retried
	default:
		return false
	}
}

// FillError is the typed error surfaced at component boundaries
type FillError struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *FillError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause
func (e *FillError) Unwrap() error {
	return e.Cause
}

// Is matches any FillError of the same kind, so sentinels work with errors.Is
func (e *FillError) Is(target error) bool {
	t, ok := target.(*FillError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Reason returns the stable reason string
func (e *FillError) Reason() string {
	return e.Kind.String()
}

// Sentinels for errors.Is matching
var (
	ErrExtractionFailed   = &FillError{Kind: KindExtractionFailed, Message: "text extraction failed"}
	ErrEmptySchema        = &FillError{Kind: KindEmptySchema, Message: "no fields detected"}
	ErrValidationRejected = &FillError{Kind: KindValidationRejected, Message: "value rejected"}
	ErrSessionNotFound    = &FillError{Kind: KindSessionNotFound, Message: "session not found"}
	ErrDocumentFillFailed = &FillError{Kind: KindDocumentFillFailed, Message: "document fill failed"}
	ErrInvalidGeometry    = &FillError{Kind: KindInvalidGeometry, Message: "invalid geometry"}
)

// New creates a FillError of the given kind
func New(kind Kind, message string) *FillError {
	return &FillError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap creates a FillError of the given kind around cause
func Wrap(kind Kind, message string, cause error) *FillError {
	return &FillError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ExtractionFailed wraps a failure of the text extraction collaborator
func ExtractionFailed(path string, cause error) *FillError {
	return Wrap(KindExtractionFailed, "could not extract text", cause).WithContext(path)
}

// SessionNotFound reports an unknown or expired session id
func SessionNotFound(id string) *FillError {
	return New(KindSessionNotFound, "unknown or expired session").WithSession(id)
}

// DocumentFillFailed wraps a failure while rendering the filled document
func DocumentFillFailed(cause error) *FillError {
	return Wrap(KindDocumentFillFailed, "could not render filled document", cause)
}

// InvalidGeometry reports a violated coordinate mapping precondition
func InvalidGeometry(context string) *FillError {
	return New(KindInvalidGeometry, "source dimensions must be positive").WithContext(context)
}

// WithContext adds context to an existing FillError
func (e *FillError) WithContext(context string) *FillError {
	e.Context = context
	return e
}

// WithSession records the session the error belongs to
func (e *FillError) WithSession(id string) *FillError {
	e.SessionID = id
	return e
}

// ReasonOf returns the stable reason string of err, or UNKNOWN when err is not a FillError
func ReasonOf(err error) string {
	for err != nil {
		if fe, ok := err.(*FillError); ok {
			return fe.Reason()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindUnknown.String()
}
