package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/filestore"
	"github.com/xxxsen/mailrag/internal/metrics"
	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const storePrefix = "embeddings/"

// WrapStoreCacheToEmbedder persists chunk embeddings as JSON records in store so
// a rebuild after restart does not pay for chunks it has already embedded.
// Question embeddings are not persisted.
func WrapStoreCacheToEmbedder(e ai.IEmbedder, store filestore.Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &storeEmbedder{next: e, store: store}
}

type storeEmbedder struct {
	next  ai.IEmbedder
	store filestore.Store
}

func (s *storeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if taskType == ai.TaskRetrievalQuery {
		return s.next.Embed(ctx, text, taskType)
	}
	_, contentHash, modelName := buildCacheKey(s.next.ModelName(), taskType, text)
	key := storeKey(modelName, taskType, contentHash)
	if values, ok := s.load(ctx, key); ok {
		metrics.EmbedCacheLookups.WithLabelValues("store", "hit").Inc()
		logutil.GetLogger(ctx).Debug("embedding cache hit (store)", zap.String("task_type", taskType))
		return values, nil
	}
	metrics.EmbedCacheLookups.WithLabelValues("store", "miss").Inc()
	res, err := s.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(&model.CachedEmbedding{
		ModelName:   modelName,
		TaskType:    taskType,
		ContentHash: contentHash,
		Dimension:   len(res),
		Embedding:   res,
		CreatedAt:   time.Now().Unix(),
	})
	if err == nil {
		err = s.store.Put(ctx, key, raw)
	}
	if err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
	return res, nil
}

func (s *storeEmbedder) load(ctx context.Context, key string) ([]float32, bool) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		if !appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var rec model.CachedEmbedding
	if err := json.Unmarshal(raw, &rec); err != nil || len(rec.Embedding) == 0 || len(rec.Embedding) != rec.Dimension {
		logutil.GetLogger(ctx).Warn("drop unreadable embedding cache entry", zap.String("key", key))
		return nil, false
	}
	return rec.Embedding, true
}

func (s *storeEmbedder) ModelName() string {
	return s.next.ModelName()
}

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

func storeKey(modelName, taskType, contentHash string) string {
	if taskType == "" {
		taskType = "default"
	}
	return storePrefix + keySegment(modelName) + "/" + keySegment(taskType) + "/" + contentHash + ".json"
}

func keySegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
