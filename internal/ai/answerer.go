package ai

import (
	"context"
	"fmt"
	"time"
)

// stuffPrompt is the classic RetrievalQA "stuff" template: every retrieved
// chunk goes into a single prompt.
const stuffPrompt = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s

Question: %s
Helpful Answer:`

type IAnswerer interface {
	Answer(ctx context.Context, query string, contextText string) (string, error)
}

type AnswererConfig struct {
	Timeout       int
	MaxInputChars int
}

type Answerer struct {
	gen IGenerator
	cfg AnswererConfig
}

func NewAnswerer(gen IGenerator, cfg AnswererConfig) *Answerer {
	return &Answerer{gen: gen, cfg: cfg}
}

// Answer returns the generator's reply as is, whitespace and empty replies included.
func (a *Answerer) Answer(ctx context.Context, query string, contextText string) (string, error) {
	if a.gen == nil {
		return "", fmt.Errorf("%w: answerer not configured", ErrUnavailable)
	}
	if a.cfg.MaxInputChars > 0 {
		contextText = truncateRunes(contextText, a.cfg.MaxInputChars)
	}
	return a.generateText(ctx, fmt.Sprintf(stuffPrompt, contextText, query))
}

func (a *Answerer) generateText(ctx context.Context, prompt string) (string, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.cfg.Timeout)*time.Second)
		defer cancel()
	}
	return a.gen.Generate(ctx, prompt)
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
