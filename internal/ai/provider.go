package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

// Gemini task types; other providers ignore them.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

var ErrUnavailable = appErr.ErrUnavailable

type IGenerateProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
}

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type generator struct {
	provider IGenerateProvider
	model    string
}

func NewGenerator(p IGenerateProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt)
}

type embedder struct {
	provider IEmbedProvider
	model    string
}

func NewEmbedder(p IEmbedProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType)
}

func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

type GenerateFactory func(args interface{}) (IGenerateProvider, error)

type EmbedFactory func(args interface{}) (IEmbedProvider, error)

var (
	registryMu       sync.RWMutex
	generateRegistry = map[string]GenerateFactory{}
	embedRegistry    = map[string]EmbedFactory{}
)

func Register(name string, factory GenerateFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	generateRegistry[key] = factory
	registryMu.Unlock()
}

func RegisterEmbed(name string, factory EmbedFactory) {
	key := normalizeName(name)
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedRegistry[key] = factory
	registryMu.Unlock()
}

func NewGenerateProvider(name string, args interface{}) (IGenerateProvider, error) {
	registryMu.RLock()
	factory := generateRegistry[normalizeName(name)]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported generate provider: %s", appErr.ErrConfig, name)
	}
	return factory(args)
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	registryMu.RLock()
	factory := embedRegistry[normalizeName(name)]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported embed provider: %s", appErr.ErrConfig, name)
	}
	return factory(args)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("%w: ai provider config is required", appErr.ErrConfig)
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
