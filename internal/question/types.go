// Package question produces the conversational prompt for the next field of a fill session.
package question

import (
	"context"
	"fmt"

	"github.com/a3tai/mcp-form-filler/internal/form"
)

// Message is one turn of the session transcript
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request describes the field to ask for and the conversation so far
type Request struct {
	SessionID string            `json:"sessionId"`
	Field     form.FormField    `json:"field"`
	Index     int               `json:"index"`
	Fields    []form.FormField  `json:"fields"`
	Values    map[string]string `json:"values"`
	History   []Message         `json:"history,omitempty"`
}

// Response is the generated question for the requested field
type Response struct {
	Question   string `json:"question" jsonschema:"required,description=The single question to ask the user next"`
	FieldID    string `json:"fieldId" jsonschema:"required,description=Id of the field the question asks for"`
	FieldLabel string `json:"fieldLabel" jsonschema:"description=Label of the field the question asks for"`
	FieldType  string `json:"fieldType" jsonschema:"description=Type of the field the question asks for"`
	IsComplete bool   `json:"isComplete" jsonschema:"description=True only when every field has a value"`
}

// Generator produces the next question
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Fallback is the deterministic question for a field
func Fallback(f form.FormField) string {
	return fmt.Sprintf("Please provide your %s.", f.Label)
}
