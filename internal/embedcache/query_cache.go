package embedcache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/metrics"
)

// WrapQueryCache keeps recent question embeddings in memory. Questions that
// differ only in spacing share one entry, and concurrent askers of the same
// question wait on a single embedder call. Document embeddings pass through.
func WrapQueryCache(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &queryCache{
		next:    e,
		entries: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type queryCache struct {
	next    ai.IEmbedder
	entries *expirable.LRU[string, []float32]
	group   singleflight.Group
}

func (q *queryCache) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if taskType != ai.TaskRetrievalQuery {
		return q.next.Embed(ctx, text, taskType)
	}
	question := foldQuestion(text)
	key, _, _ := buildCacheKey(q.next.ModelName(), taskType, question)
	if vec, ok := q.entries.Get(key); ok {
		metrics.EmbedCacheLookups.WithLabelValues("query", "hit").Inc()
		logutil.GetLogger(ctx).Debug("query embedding cache hit")
		return copyVector(vec), nil
	}
	metrics.EmbedCacheLookups.WithLabelValues("query", "miss").Inc()
	v, err, _ := q.group.Do(key, func() (interface{}, error) {
		// shared by every asker of this question, so one hanging up must not fail the rest
		vec, err := q.next.Embed(context.WithoutCancel(ctx), question, taskType)
		if err != nil {
			return nil, err
		}
		q.entries.Add(key, copyVector(vec))
		return vec, nil
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("embed question failed", zap.Error(err))
		return nil, err
	}
	return copyVector(v.([]float32)), nil
}

func (q *queryCache) ModelName() string {
	return q.next.ModelName()
}

func foldQuestion(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func copyVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
