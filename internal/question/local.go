package question

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// LocalGenerator asks for every field with the fixed fallback wording
type LocalGenerator struct{}

// Generate implements Generator
func (LocalGenerator) Generate(_ context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("nil question request")
	}
	return &Response{
		Question:   Fallback(req.Field),
		FieldID:    req.Field.ID,
		FieldLabel: req.Field.Label,
		FieldType:  string(req.Field.Type),
	}, nil
}

// FallbackGenerator tries each generator in order and returns the first success
type FallbackGenerator struct {
	generators []Generator
	logger     *slog.Logger
}

// NewFallbackGenerator chains generators. nil entries are ignored.
func NewFallbackGenerator(logger *slog.Logger, generators ...Generator) *FallbackGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &FallbackGenerator{logger: logger}
	for _, gen := range generators {
		if gen != nil {
			g.generators = append(g.generators, gen)
		}
	}
	return g
}

// Generate implements Generator
func (g *FallbackGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for i, gen := range g.generators {
		resp, err := gen.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		g.logger.Warn("question generator failed", "generator", i, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no generators configured")
	}
	return nil, fmt.Errorf("all question generators failed: %w", lastErr)
}
