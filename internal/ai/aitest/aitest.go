// Package aitest provides deterministic embedders and generators for tests.
package aitest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
)

const DefaultDim = 64

// Embedder hashes lower-cased words into a fixed number of buckets, so texts
// sharing words land close together under cosine similarity.
type Embedder struct {
	Dim   int
	Name  string
	Delay time.Duration
	// DimFor overrides the dimension for texts it returns a positive value for.
	DimFor func(text string) int

	calls atomic.Int64
	mu    sync.Mutex
	err   error
}

func NewEmbedder() *Embedder {
	return &Embedder{Dim: DefaultDim, Name: "test:hash"}
}

func (e *Embedder) Fail(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *Embedder) Calls() int64 {
	return e.calls.Load()
}

func (e *Embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.calls.Add(1)
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	dim := e.Dim
	if e.DimFor != nil {
		if d := e.DimFor(text); d > 0 {
			dim = d
		}
	}
	return Vector(text, dim), nil
}

func (e *Embedder) ModelName() string {
	return e.Name
}

// Vector is the embedding Embedder produces for text.
func Vector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	vec[0] = 0.01
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32()%uint32(dim-1))+1]++
	}
	return vec
}

// Generator records prompts and answers with a fixed reply.
type Generator struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	return g.Reply, nil
}

func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Answerer records the query and context it was asked with.
type Answerer struct {
	Reply string
	Err   error

	mu       sync.Mutex
	Queries  []string
	Contexts []string
}

func (a *Answerer) Answer(ctx context.Context, query string, contextText string) (string, error) {
	a.mu.Lock()
	a.Queries = append(a.Queries, query)
	a.Contexts = append(a.Contexts, contextText)
	a.mu.Unlock()
	if a.Err != nil {
		return "", a.Err
	}
	return a.Reply, nil
}

var ErrEmbedDown = errors.New("embedder down")
