package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnavailable = errors.New("ai provider unavailable")

// GenerateOptions carries the per-call generation budget. Zero values mean
// "use the provider default".
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
}

type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string, opts GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, model string, prompt string, opts GenerateOptions, fn func(token string) error) error
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type IStreamGenerator interface {
	IGenerator
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, fn func(token string) error) error
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IStreamGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt, opts)
}

func (g *generator) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, fn func(token string) error) error {
	return g.provider.GenerateStream(ctx, g.model, prompt, opts, fn)
}

type embedder struct {
	provider  IProvider
	model     string
	dimension int
}

// NewEmbedder binds a provider to an embedding model. A positive dimension is
// enforced on every call; the vector column width is fixed at migration time,
// so a mismatched vector must fail here rather than at insert.
func NewEmbedder(p IProvider, model string, dimension int) IEmbedder {
	return &embedder{provider: p, model: model, dimension: dimension}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	values, err := e.provider.Embed(ctx, e.model, text, taskType)
	if err != nil {
		return nil, err
	}
	if e.dimension > 0 && len(values) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: model %s returned %d values, want %d", e.model, len(values), e.dimension)
	}
	return values, nil
}

func (e *embedder) ModelName() string {
	return e.model
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
