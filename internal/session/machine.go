package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a3tai/mcp-form-filler/internal/form"
	"github.com/a3tai/mcp-form-filler/internal/question"
)

// CompleteMessage is emitted once every field has a value
const CompleteMessage = "All fields are complete. The filled document is ready to export."

// Reply is the outcome of one transition
type Reply struct {
	Message  string `json:"message"`
	Accepted bool   `json:"accepted"`
	FieldID  string `json:"field_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Complete bool   `json:"complete"`
	Cursor   int    `json:"cursor"`
	Total    int    `json:"total"`
}

// Machine drives the Collecting -> Complete state machine of a session, one field at a time
type Machine struct {
	store     Store
	generator question.Generator
	logger    *slog.Logger
}

// NewMachine creates a state machine over store. A nil generator asks with the local wording.
func NewMachine(store Store, generator question.Generator, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if generator == nil {
		generator = question.LocalGenerator{}
	}
	return &Machine{store: store, generator: generator, logger: logger}
}

// Start emits the question for the field at the cursor and records it as an assistant turn
func (m *Machine) Start(ctx context.Context, id string) (*Reply, error) {
	unlock, err := m.store.Lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	reply := &Reply{Cursor: sess.Cursor, Total: sess.Schema.Len(), Complete: sess.Complete}
	if field, ok := sess.CurrentField(); ok {
		reply.Message = m.ask(ctx, sess, field)
		reply.FieldID = field.ID
	} else {
		reply.Message = CompleteMessage
		reply.Complete = true
	}

	if err := m.store.AppendHistory(id, Turn{Role: RoleAssistant, Text: reply.Message}); err != nil {
		return nil, err
	}
	return reply, nil
}

// Submit applies one raw answer to the field at the cursor. A rejected answer is a normal outcome:
// the reply carries the reason and the cursor does not move.
func (m *Machine) Submit(ctx context.Context, id, answer string) (*Reply, error) {
	unlock, err := m.store.Lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	total := sess.Schema.Len()

	field, ok := sess.CurrentField()
	if !ok {
		return &Reply{Message: CompleteMessage, Complete: true, Cursor: sess.Cursor, Total: total}, nil
	}

	userTurn := Turn{Role: RoleUser, Text: answer}

	if res := form.Validate(field.Type, answer); !res.Valid {
		msg := Reprompt(field, res.Reason)
		if err := m.store.AppendHistory(id, userTurn, Turn{Role: RoleAssistant, Text: msg}); err != nil {
			return nil, err
		}
		m.logger.Debug("answer rejected", "session", id, "field", field.ID, "reason", res.Reason)
		return &Reply{
			Message: msg,
			FieldID: field.ID,
			Reason:  res.Reason,
			Cursor:  sess.Cursor,
			Total:   total,
		}, nil
	}
	if err := m.store.RecordValue(id, field.ID, answer); err != nil {
		return nil, err
	}

	cursor, err := m.store.AdvanceCursor(id)
	if err != nil {
		return nil, err
	}

	reply := &Reply{Accepted: true, Cursor: cursor, Total: total}
	if cursor >= total {
		if err := m.store.MarkComplete(id); err != nil {
			return nil, err
		}
		reply.Message = CompleteMessage
		reply.Complete = true
		m.logger.Info("session complete", "session", id, "fields", total)
	} else {
		sess.Cursor = cursor
		sess.Values[field.ID] = answer
		sess.History = append(sess.History, userTurn)

		next := sess.Schema.Field(cursor)
		reply.Message = m.ask(ctx, sess, next)
		reply.FieldID = next.ID
	}

	if err := m.store.AppendHistory(id, userTurn, Turn{Role: RoleAssistant, Text: reply.Message}); err != nil {
		return nil, err
	}
	return reply, nil
}

// ask returns the generated question for field, or the local wording when the generator fails or
// answers about something else
func (m *Machine) ask(ctx context.Context, sess *FillSession, field form.FormField) string {
	req := &question.Request{
		SessionID: sess.ID,
		Field:     field,
		Index:     sess.Cursor,
		Fields:    sess.Schema.Fields(),
		Values:    sess.Values,
		History:   sess.Messages(),
	}

	resp, err := m.generator.Generate(ctx, req)
	switch {
	case err != nil:
		m.logger.Warn("question generation failed", "session", sess.ID, "field", field.ID, "error", err)
	case !usable(resp, field):
		m.logger.Warn("question generator returned unusable output", "session", sess.ID, "field", field.ID)
	default:
		return strings.TrimSpace(resp.Question)
	}
	return question.Fallback(field)
}

func usable(resp *question.Response, field form.FormField) bool {
	return resp != nil &&
		strings.TrimSpace(resp.Question) != "" &&
		resp.FieldID == field.ID &&
		!resp.IsComplete
}

// Reprompt is the message emitted for a rejected answer
func Reprompt(field form.FormField, reason string) string {
	if reason == form.ReasonEmpty {
		return fmt.Sprintf("%s cannot be empty. %s", field.Label, question.Fallback(field))
	}
	return fmt.Sprintf("That %s is not valid: it %s. %s", strings.ToLower(field.Label), reason, question.Fallback(field))
}
