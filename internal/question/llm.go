package question

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/microcosm-cc/bluemonday"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	toolName = "ask_next_question"
	toolDesc = "Return the next question to ask the user for the requested form field"

	historyWindow = 10
	schemaURL     = "question-response.json"
)

// DefaultSystemPrompt instructs the model to ask for exactly one field
const DefaultSystemPrompt = `You help a person fill in a paper form through a short conversation.
You are given the form fields, the values collected so far, the recent conversation and the one field to ask about next.
Write one short, friendly question that asks only for that field. Mention the expected format when the field type has one (email, phone, date, ssn).
Do not ask about any other field. Do not claim the form is complete.
Answer by calling the ask_next_question tool with the id, label and type of the requested field.`

const responseSchema = `{
  "type": "object",
  "required": ["question", "fieldId"],
  "properties": {
    "question":   {"type": "string", "minLength": 1, "maxLength": 500},
    "fieldId":    {"type": "string", "minLength": 1},
    "fieldLabel": {"type": "string"},
    "fieldType":  {"type": "string"},
    "isComplete": {"type": "boolean"}
  }
}`

// LLMConfig selects an OpenAI compatible chat model
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIModel creates a tool calling chat model for cfg
func NewOpenAIModel(ctx context.Context, cfg LLMConfig) (model.ToolCallingChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}
	return cm, nil
}

// LLMGenerator asks a chat model for the question through a forced tool call
type LLMGenerator struct {
	chatModel    model.ToolCallingChatModel
	toolInfo     *schema.ToolInfo
	schema       *jsonschema.Schema
	policy       *bluemonday.Policy
	systemPrompt string
	logger       *slog.Logger
}

// NewLLMGenerator creates a generator backed by chatModel
func NewLLMGenerator(chatModel model.ToolCallingChatModel, logger *slog.Logger) (*LLMGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	toolInfo, err := utils.GoStruct2ToolInfo[Response](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	sch, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &LLMGenerator{
		chatModel:    chatModel,
		toolInfo:     toolInfo,
		schema:       sch,
		policy:       bluemonday.StrictPolicy(),
		systemPrompt: DefaultSystemPrompt,
		logger:       logger,
	}, nil
}

// Generate implements Generator
func (g *LLMGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	messages, err := g.buildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}

	response, err := g.chatModel.Generate(ctx, messages,
		model.WithTools([]*schema.ToolInfo{g.toolInfo}),
		model.WithToolChoice(schema.ToolChoiceForced, g.toolInfo.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	if response == nil || len(response.ToolCalls) == 0 {
		content := ""
		if response != nil {
			content = response.Content
		}
		return nil, fmt.Errorf("no ToolCall found in model response: %s", content)
	}

	args := response.ToolCalls[0].Function.Arguments
	if err := g.validate(args); err != nil {
		return nil, err
	}

	var result Response
	if err := sonic.UnmarshalString(args, &result); err != nil {
		return nil, fmt.Errorf("parse ToolCall arguments failed: %w", err)
	}
	result.Question = g.sanitize(result.Question)

	g.logger.Debug("question generated", "session", req.SessionID, "field", result.FieldID)
	return &result, nil
}

func (g *LLMGenerator) validate(args string) error {
	var v any
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return fmt.Errorf("unmarshal ToolCall arguments: %w", err)
	}
	if err := g.schema.Validate(v); err != nil {
		return fmt.Errorf("ToolCall arguments do not match schema: %w", err)
	}
	return nil
}

// sanitize strips markup the model may have produced and returns plain text
func (g *LLMGenerator) sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(g.policy.Sanitize(s)))
}

type promptField struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Value    string `json:"value,omitempty"`
}

type promptPayload struct {
	Next    promptField   `json:"next_field"`
	Fields  []promptField `json:"fields"`
	History []Message     `json:"recent_conversation,omitempty"`
}

func (g *LLMGenerator) buildPrompt(req *Request) ([]*schema.Message, error) {
	if req == nil {
		return nil, fmt.Errorf("nil question request")
	}

	payload := promptPayload{
		Next: promptField{
			ID:       req.Field.ID,
			Label:    req.Field.Label,
			Type:     string(req.Field.Type),
			Required: req.Field.Required,
		},
	}
	for _, f := range req.Fields {
		payload.Fields = append(payload.Fields, promptField{
			ID:       f.ID,
			Label:    f.Label,
			Type:     string(f.Type),
			Required: f.Required,
			Value:    req.Values[f.ID],
		})
	}
	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	payload.History = history

	body, err := sonic.MarshalString(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return []*schema.Message{
		schema.SystemMessage(g.systemPrompt),
		schema.UserMessage(body),
	}, nil
}

// NewGenerator returns the generator for cfg: the chat model with the local wording as fallback, or
// the local wording alone when no API key is configured
func NewGenerator(ctx context.Context, cfg LLMConfig, logger *slog.Logger) (Generator, error) {
	if cfg.APIKey == "" {
		return LocalGenerator{}, nil
	}
	cm, err := NewOpenAIModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	llm, err := NewLLMGenerator(cm, logger)
	if err != nil {
		return nil, err
	}
	return NewFallbackGenerator(logger, llm, LocalGenerator{}), nil
}
