package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaURL = "http://localhost:11434"

type ollamaConfig struct {
	ServerURL string `json:"server_url"`
}

// ollamaProvider keeps one langchaingo client per model name.
type ollamaProvider struct {
	serverURL string

	mu   sync.Mutex
	clients map[string]*ollama.LLM
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) model(name string) (*ollama.LLM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if llm, ok := p.clients[name]; ok {
		return llm, nil
	}
	llm, err := ollama.New(ollama.WithModel(name), ollama.WithServerURL(p.serverURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama client for %s: %w", name, err)
	}
	p.clients[name] = llm
	return llm, nil
}

func (p *ollamaProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	llm, err := p.model(model)
	if err != nil {
		return "", err
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (p *ollamaProvider) Embed(ctx context.Context, model string, text string, _ string) ([]float32, error) {
	llm, err := p.model(model)
	if err != nil {
		return nil, err
	}
	emb, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, err
	}
	return emb.EmbedQuery(ctx, text)
}

func newOllamaProvider(args interface{}) (*ollamaProvider, error) {
	cfg := &ollamaConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	serverURL := strings.TrimSpace(cfg.ServerURL)
	if serverURL == "" {
		serverURL = defaultOllamaURL
	}
	return &ollamaProvider{serverURL: serverURL, clients: map[string]*ollama.LLM{}}, nil
}

func init() {
	Register("ollama", func(args interface{}) (IGenerateProvider, error) {
		return newOllamaProvider(args)
	})
	RegisterEmbed("ollama", func(args interface{}) (IEmbedProvider, error) {
		return newOllamaProvider(args)
	})
}
