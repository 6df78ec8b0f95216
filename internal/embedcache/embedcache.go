// Package embedcache layers caches in front of an embedder.
package embedcache

import (
	"time"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/config"
	"github.com/xxxsen/mailrag/internal/filestore"
)

// Wrap splits caching by task: chunk embeddings go to the persistent store
// cache (when enabled), question embeddings to the in-memory query cache.
func Wrap(e ai.IEmbedder, cfg config.AIConfig, store filestore.Store) ai.IEmbedder {
	if cfg.PersistCache {
		e = WrapStoreCacheToEmbedder(e, store)
	}
	return WrapQueryCache(e, cfg.CacheSize, time.Duration(cfg.CacheTTL)*time.Second)
}
