package question

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-form-filler/internal/form"
)

type fakeChatModel struct {
	reply    *schema.Message
	err      error
	calls    int
	lastMsgs []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.lastMsgs = input
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (f *fakeChatModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func toolReply(args string) *schema.Message {
	return &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call_1",
			Function: schema.FunctionCall{Name: toolName, Arguments: args},
		}},
	}
}

func sampleRequest() *Request {
	fields := []form.FormField{
		{ID: "field_1", Label: "Full Name", Type: form.TypeName, Required: true},
		{ID: "field_2", Label: "Email", Type: form.TypeEmail, Required: true},
	}
	return &Request{
		SessionID: "s1",
		Field:     fields[1],
		Index:     1,
		Fields:    fields,
		Values:    map[string]string{"field_1": "Ada Lovelace"},
	}
}

func TestLocalGenerator(t *testing.T) {
	resp, err := LocalGenerator{}.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Please provide your Email.", resp.Question)
	assert.Equal(t, "field_2", resp.FieldID)
	assert.Equal(t, "email", resp.FieldType)
	assert.False(t, resp.IsComplete)

	_, err = LocalGenerator{}.Generate(context.Background(), nil)
	assert.Error(t, err)
}

func TestLLMGenerator_Generate(t *testing.T) {
	cm := &fakeChatModel{reply: toolReply(`{"question":"What is your <b>email</b> address? &amp; thanks","fieldId":"field_2","fieldLabel":"Email","fieldType":"email","isComplete":false}`)}
	g, err := NewLLMGenerator(cm, nil)
	require.NoError(t, err)

	resp, err := g.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "What is your email address? & thanks", resp.Question)
	assert.Equal(t, "field_2", resp.FieldID)
	assert.Equal(t, 1, cm.calls)

	require.Len(t, cm.lastMsgs, 2)
	assert.Equal(t, schema.System, cm.lastMsgs[0].Role)
	assert.Contains(t, cm.lastMsgs[1].Content, `"next_field"`)
	assert.Contains(t, cm.lastMsgs[1].Content, "Ada Lovelace")
}

func TestLLMGenerator_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply *schema.Message
		err   error
		want  string
	}{
		{name: "model error", err: errors.New("rate limited"), want: "rate limited"},
		{name: "no tool call", reply: &schema.Message{Role: schema.Assistant, Content: "hello"}, want: "no ToolCall"},
		{name: "invalid json", reply: toolReply(`{"question":`), want: "unmarshal"},
		{name: "missing field id", reply: toolReply(`{"question":"Email?"}`), want: "schema"},
		{name: "empty question", reply: toolReply(`{"question":"","fieldId":"field_2"}`), want: "schema"},
		{name: "wrong types", reply: toolReply(`{"question":"Email?","fieldId":"field_2","isComplete":"no"}`), want: "schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewLLMGenerator(&fakeChatModel{reply: tt.reply, err: tt.err}, nil)
			require.NoError(t, err)

			_, err = g.Generate(context.Background(), sampleRequest())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLLMGenerator_TrimsHistory(t *testing.T) {
	cm := &fakeChatModel{reply: toolReply(`{"question":"Email?","fieldId":"field_2"}`)}
	g, err := NewLLMGenerator(cm, nil)
	require.NoError(t, err)

	req := sampleRequest()
	for i := 0; i < 25; i++ {
		req.History = append(req.History, Message{Role: "user", Text: "turn-" + strings.Repeat("x", i)})
	}

	_, err = g.Generate(context.Background(), req)
	require.NoError(t, err)
	body := cm.lastMsgs[1].Content
	assert.Equal(t, historyWindow, strings.Count(body, "turn-"))
	assert.Contains(t, body, "turn-"+strings.Repeat("x", 24))
}

func TestNewLLMGenerator_RequiresModel(t *testing.T) {
	_, err := NewLLMGenerator(nil, nil)
	assert.Error(t, err)
}

type staticGenerator struct {
	resp *Response
	err  error
}

func (s staticGenerator) Generate(context.Context, *Request) (*Response, error) {
	return s.resp, s.err
}

func TestFallbackGenerator(t *testing.T) {
	ctx := context.Background()

	g := NewFallbackGenerator(nil, nil, staticGenerator{err: errors.New("down")}, LocalGenerator{})
	resp, err := g.Generate(ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Please provide your Email.", resp.Question)

	first := NewFallbackGenerator(nil, staticGenerator{resp: &Response{Question: "custom"}}, LocalGenerator{})
	resp, err = first.Generate(ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "custom", resp.Question)

	failing := NewFallbackGenerator(nil, staticGenerator{err: errors.New("down")})
	_, err = failing.Generate(ctx, sampleRequest())
	assert.ErrorContains(t, err, "down")

	_, err = NewFallbackGenerator(nil).Generate(ctx, sampleRequest())
	assert.ErrorContains(t, err, "no generators configured")
}

func TestNewGenerator_WithoutKeyIsLocal(t *testing.T) {
	g, err := NewGenerator(context.Background(), LLMConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, LocalGenerator{}, g)
}
