package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/config"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

// groupGenerator tries each generator in order and returns the first success.
type groupGenerator struct {
	items []GeneratorEntry
}

func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := item.Generator.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("%w: generator not configured", ErrUnavailable)
	}
	return "", lastErr
}

// groupEmbedder falls back across embedders. Every member must produce the
// same dimension; the index rejects mixed dimensions.
type groupEmbedder struct {
	items []EmbedderEntry
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: embedder not configured", ErrUnavailable)
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		names = append(names, item.Embedder.ModelName())
	}
	return strings.Join(names, "|")
}

func NewGeneratorFromConfig(items []config.ProviderConfig) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, len(items))
	for i, item := range items {
		if item.Model == "" {
			return nil, fmt.Errorf("%w: ai.generators[%d].model is required", appErr.ErrConfig, i)
		}
		p, err := NewGenerateProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("ai.generators[%d]: %w", i, err)
		}
		entries = append(entries, GeneratorEntry{Name: entryName(item), Generator: NewGenerator(p, item.Model)})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: ai.generators is required", appErr.ErrConfig)
	}
	return NewGroupGenerator(entries), nil
}

func NewEmbedderFromConfig(items []config.ProviderConfig) (IEmbedder, error) {
	entries := make([]EmbedderEntry, 0, len(items))
	for i, item := range items {
		if item.Model == "" {
			return nil, fmt.Errorf("%w: ai.embedders[%d].model is required", appErr.ErrConfig, i)
		}
		p, err := NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("ai.embedders[%d]: %w", i, err)
		}
		entries = append(entries, EmbedderEntry{Name: entryName(item), Embedder: NewEmbedder(p, item.Model)})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: ai.embedders is required", appErr.ErrConfig)
	}
	return NewGroupEmbedder(entries), nil
}

func entryName(item config.ProviderConfig) string {
	if item.Name != "" {
		return item.Name
	}
	return item.Provider + ":" + item.Model
}
