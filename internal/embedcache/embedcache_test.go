package embedcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/config"
	"github.com/xxxsen/mailrag/internal/filestore"
)

type countingEmbedder struct {
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "ollama:nomic-embed-text"
}

type blockingEmbedder struct {
	countingEmbedder
	release chan struct{}
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	<-b.release
	return b.countingEmbedder.Embed(ctx, text, taskType)
}

func TestQueryCache(t *testing.T) {
	ctx := context.Background()
	next := &countingEmbedder{}
	e := WrapQueryCache(next, 16, time.Minute)

	v1, err := e.Embed(ctx, "when does po 1 ship", ai.TaskRetrievalQuery)
	require.NoError(t, err)
	v1[0] = 99
	v2, err := e.Embed(ctx, "  when does   po 1 ship\n", ai.TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{19, 1}, v2)
	require.EqualValues(t, 1, next.calls.Load())

	for i := 0; i < 2; i++ {
		_, err = e.Embed(ctx, "chunk text", ai.TaskRetrievalDocument)
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, next.calls.Load())
	require.Equal(t, next.ModelName(), e.ModelName())
}

func TestQueryCacheDisabled(t *testing.T) {
	next := &countingEmbedder{}
	require.Same(t, ai.IEmbedder(next), WrapQueryCache(next, 0, time.Minute))
	require.Same(t, ai.IEmbedder(next), WrapQueryCache(next, 8, 0))
}

func TestQueryCacheSharesConcurrentMisses(t *testing.T) {
	next := &blockingEmbedder{release: make(chan struct{})}
	e := WrapQueryCache(next, 16, time.Minute)

	const askers = 6
	var wg sync.WaitGroup
	for i := 0; i < askers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := e.Embed(context.Background(), "invoice total", ai.TaskRetrievalQuery)
			require.NoError(t, err)
			require.Equal(t, []float32{13, 1}, vec)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()
	require.EqualValues(t, 1, next.calls.Load())

	before := next.calls.Load()
	_, err := e.Embed(context.Background(), "invoice total", ai.TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, before, next.calls.Load())
}

func TestStoreEmbedderSkipsQueries(t *testing.T) {
	ctx := context.Background()
	store := filestore.NewLocal(t.TempDir())
	next := &countingEmbedder{}
	e := WrapStoreCacheToEmbedder(next, store)

	for i := 0; i < 2; i++ {
		_, err := e.Embed(ctx, "which supplier", ai.TaskRetrievalQuery)
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, next.calls.Load())
	keys, err := store.List(ctx, "embeddings/")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestStoreEmbedderSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := filestore.NewLocal(t.TempDir())
	next := &countingEmbedder{}

	first := Wrap(next, config.AIConfig{PersistCache: true}, store)
	_, err := first.Embed(ctx, "chunk text", ai.TaskRetrievalDocument)
	require.NoError(t, err)
	require.EqualValues(t, 1, next.calls.Load())

	keys, err := store.List(ctx, "embeddings/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Contains(t, keys[0], "embeddings/ollama_nomic-embed-text/RETRIEVAL_DOCUMENT/")

	second := Wrap(next, config.AIConfig{PersistCache: true, CacheSize: 8, CacheTTL: 60}, store)
	vec, err := second.Embed(ctx, "chunk text", ai.TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{10, 1}, vec)
	require.EqualValues(t, 1, next.calls.Load())
}

func TestStoreEmbedderIgnoresCorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := filestore.NewLocal(t.TempDir())
	next := &countingEmbedder{}
	_, hash, _ := buildCacheKey(next.ModelName(), "", "x")
	require.NoError(t, store.Put(ctx, storeKey(next.ModelName(), "", hash), []byte("{broken")))

	vec, err := WrapStoreCacheToEmbedder(next, store).Embed(ctx, "x", "")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 1}, vec)
	require.EqualValues(t, 1, next.calls.Load())
}
