package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailrag/internal/config"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

type fakeEmbedder struct {
	name string
	vec  []float32
	err  error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) ModelName() string {
	return f.name
}

func TestGroupGeneratorFallsBack(t *testing.T) {
	first := &fakeGenerator{err: errors.New("quota")}
	second := &fakeGenerator{out: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: first}, {Name: "b", Generator: second}})
	out, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Len(t, first.prompts, 1)

	g = NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: first}})
	_, err = g.Generate(context.Background(), "p")
	require.EqualError(t, err, "quota")

	g = NewGroupGenerator([]GeneratorEntry{{Name: "empty"}})
	_, err = g.Generate(context.Background(), "p")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGroupEmbedder(t *testing.T) {
	e := NewGroupEmbedder([]EmbedderEntry{
		{Name: "down", Embedder: &fakeEmbedder{name: "gemini:text-embedding-004", err: ErrUnavailable}},
		{Name: "up", Embedder: &fakeEmbedder{name: "ollama:nomic-embed-text", vec: []float32{1, 2}}},
	})
	vec, err := e.Embed(context.Background(), "t", TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, vec)
	require.Equal(t, "gemini:text-embedding-004|ollama:nomic-embed-text", e.ModelName())
}

func TestAnswererStuffsContext(t *testing.T) {
	gen := &fakeGenerator{out: "  PO-1001 ships in six weeks. \n"}
	a := NewAnswerer(gen, AnswererConfig{Timeout: 5})
	out, err := a.Answer(context.Background(), "When does PO-1001 ship?", "chunk one\n\nchunk two")
	require.NoError(t, err)
	require.Equal(t, "  PO-1001 ships in six weeks. \n", out)
	require.Len(t, gen.prompts, 1)
	require.Contains(t, gen.prompts[0], "chunk one\n\nchunk two")
	require.True(t, strings.HasSuffix(gen.prompts[0], "Question: When does PO-1001 ship?\nHelpful Answer:"))

	gen.out = ""
	out, err = a.Answer(context.Background(), "q", "c")
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = NewAnswerer(nil, AnswererConfig{}).Answer(context.Background(), "q", "c")
	require.ErrorIs(t, err, appErr.ErrUnavailable)
}

func TestAnswererTruncatesContext(t *testing.T) {
	gen := &fakeGenerator{out: "ok"}
	a := NewAnswerer(gen, AnswererConfig{MaxInputChars: 3})
	_, err := a.Answer(context.Background(), "q", "发票金额")
	require.NoError(t, err)
	require.Contains(t, gen.prompts[0], "发票金\n")
	require.NotContains(t, gen.prompts[0], "发票金额")
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/embeddings":
			var req openAIEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "text-embedding-3-small", req.Model)
			_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.25]}]}`))
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" hello "}}]}`))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfgs := []config.ProviderConfig{{
		Provider: "openai",
		Model:    "text-embedding-3-small",
		Data:     map[string]interface{}{"api_key": "sk-test", "base_url": srv.URL + "/v1"},
	}}
	emb, err := NewEmbedderFromConfig(cfgs)
	require.NoError(t, err)
	vec, err := emb.Embed(context.Background(), "hello", TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.25}, vec)
	require.Equal(t, "openai:text-embedding-3-small", emb.ModelName())

	gen, err := NewGeneratorFromConfig(cfgs)
	require.NoError(t, err)
	out, err := gen.Generate(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

func TestProviderRegistryErrors(t *testing.T) {
	_, err := NewEmbedderFromConfig([]config.ProviderConfig{{Provider: "openrouter", Model: "m", Data: map[string]interface{}{}}})
	require.ErrorIs(t, err, appErr.ErrConfig)

	_, err = NewGeneratorFromConfig([]config.ProviderConfig{{Provider: "gemini", Data: map[string]interface{}{}}})
	require.ErrorIs(t, err, appErr.ErrConfig)

	_, err = NewGeneratorFromConfig(nil)
	require.ErrorIs(t, err, appErr.ErrConfig)

	p, err := NewGenerateProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "gpt-4o-mini", "x")
	require.ErrorIs(t, err, ErrUnavailable)
}
