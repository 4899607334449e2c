// Package session tracks fill sessions: the schema being filled, accepted values, the field cursor
// and the conversation transcript.
package session

import (
	"time"

	"github.com/a3tai/mcp-form-filler/internal/document"
	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/question"
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the append-only transcript
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// FillSession is the per-document fill state
type FillSession struct {
	ID         string
	Schema     *form.Schema
	Values     map[string]string
	Cursor     int
	Complete   bool
	History    []Turn
	Document   *document.Ref
	CreatedAt  time.Time
	LastAccess time.Time
}

// CurrentField returns the field at the cursor, false once every field has been answered
func (s *FillSession) CurrentField() (form.FormField, bool) {
	if s.Schema == nil || s.Cursor >= s.Schema.Len() {
		return form.FormField{}, false
	}
	return s.Schema.Field(s.Cursor), true
}

// Messages converts the transcript for the question generator
func (s *FillSession) Messages() []question.Message {
	out := make([]question.Message, len(s.History))
	for i, t := range s.History {
		out[i] = question.Message{Role: string(t.Role), Text: t.Text}
	}
	return out
}

// clone returns a snapshot that shares only the immutable schema and the document reference
func (s *FillSession) clone() *FillSession {
	c := *s
	c.Values = make(map[string]string, len(s.Values))
	for k, v := range s.Values {
		c.Values[k] = v
	}
	c.History = append([]Turn(nil), s.History...)
	return &c
}
