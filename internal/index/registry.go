package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/mailrag/internal/config"
	"github.com/xxxsen/mailrag/internal/metrics"
	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

// ArtifactStore is the durable store as seen by the registry.
type ArtifactStore interface {
	DocumentReader
	Put(ctx context.Context, key string, data []byte) error
}

// Registry memoizes one index per class. Concurrent callers for the same class
// share a single load or build; Rebuild is serialized against it. A caller that
// gives up does not cancel the work for the callers still waiting.
type Registry struct {
	store     ArtifactStore
	builder   *Builder
	staleness string

	group    singleflight.Group
	flightMu sync.Mutex
	flights  map[string]*flight

	mu      sync.RWMutex
	memo    map[string]*VectorIndex
	buildMu map[string]*sync.Mutex
}

func NewRegistry(store ArtifactStore, builder *Builder, staleness string) *Registry {
	if staleness == "" {
		staleness = config.StalenessNever
	}
	return &Registry{
		store:     store,
		builder:   builder,
		staleness: staleness,
		flights:   make(map[string]*flight),
		memo:      make(map[string]*VectorIndex),
		buildMu:   make(map[string]*sync.Mutex),
	}
}

// GetOrBuild returns the memoized index, else the persisted artifact, else a
// fresh build. A non-nil index may accompany an error when persisting failed.
func (r *Registry) GetOrBuild(ctx context.Context, class model.DocumentClass) (*VectorIndex, error) {
	if idx := r.cached(class.Name); idx != nil && r.fresh(ctx, class, idx) {
		return idx, nil
	}
	return r.do(ctx, "get:"+class.Name, class, false)
}

// Rebuild ignores the memo and the artifact and replaces both.
func (r *Registry) Rebuild(ctx context.Context, class model.DocumentClass) (*VectorIndex, error) {
	return r.do(ctx, "rebuild:"+class.Name, class, true)
}

func (r *Registry) Cached(class string) (*VectorIndex, bool) {
	idx := r.cached(class)
	return idx, idx != nil
}

type result struct {
	idx *VectorIndex
	err error
	f   *flight
}

// flight is the context a shared load or build runs under. It outlives any
// single caller and is canceled once the last waiter has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (r *Registry) do(ctx context.Context, key string, class model.DocumentClass, force bool) (*VectorIndex, error) {
	for {
		f := r.join(ctx, key)
		ch := r.group.DoChan(key, func() (interface{}, error) {
			lock := r.classLock(class.Name)
			lock.Lock()
			defer lock.Unlock()
			idx, err := r.load(f.ctx, class, force)
			return &result{idx: idx, err: err, f: f}, nil
		})
		select {
		case <-ctx.Done():
			r.leave(key, f)
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				r.leave(key, f)
				return nil, res.Err
			}
			out := res.Val.(*result)
			// a result from a flight whose callers all gave up is not ours
			abandoned := out.err != nil && out.f.ctx.Err() != nil && ctx.Err() == nil
			r.leave(key, f)
			if abandoned {
				continue
			}
			return out.idx, out.err
		}
	}
}

func (r *Registry) join(ctx context.Context, key string) *flight {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()
	f, ok := r.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		r.flights[key] = f
	}
	f.waiters++
	return f
}

func (r *Registry) leave(key string, f *flight) {
	r.flightMu.Lock()
	defer r.flightMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	if r.flights[key] == f {
		delete(r.flights, key)
		r.group.Forget(key)
	}
	f.cancel()
}

func (r *Registry) load(ctx context.Context, class model.DocumentClass, force bool) (*VectorIndex, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("class", class.Name))
	if !force {
		if idx := r.cached(class.Name); idx != nil && r.fresh(ctx, class, idx) {
			return idx, nil
		}
		idx, err := r.loadArtifact(ctx, class)
		if err != nil {
			return nil, err
		}
		if idx != nil {
			if r.fresh(ctx, class, idx) {
				r.remember(class.Name, idx)
				metrics.IndexLoads.WithLabelValues(class.Name).Inc()
				logger.Info("index loaded", zap.String("build_id", idx.BuildID), zap.Int("records", idx.Len()))
				return idx, nil
			}
			logger.Info("index artifact is stale, rebuilding", zap.Int("watermark", idx.Watermark))
		}
	}

	start := time.Now()
	idx, err := r.builder.Build(ctx, class)
	metrics.BuildDuration.WithLabelValues(class.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IndexBuilds.WithLabelValues(class.Name, "error").Inc()
		return nil, err
	}
	r.remember(class.Name, idx)
	if idx.IsEmpty() {
		metrics.IndexBuilds.WithLabelValues(class.Name, "empty").Inc()
		logger.Info("no documents to index")
		return idx, nil
	}
	metrics.IndexBuilds.WithLabelValues(class.Name, "ok").Inc()
	if err := r.persist(ctx, class, idx); err != nil {
		return idx, err
	}
	logger.Info("index persisted", zap.String("key", class.IndexKey), zap.Duration("duration", time.Since(start)))
	return idx, nil
}

// loadArtifact returns nil without error when there is no usable artifact.
func (r *Registry) loadArtifact(ctx context.Context, class model.DocumentClass) (*VectorIndex, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("class", class.Name), zap.String("key", class.IndexKey))
	data, err := r.store.Get(ctx, class.IndexKey)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index %s: %w", class.IndexKey, err)
	}
	idx, err := Decode(data)
	if err != nil {
		logger.Warn("discard unreadable index artifact", zap.Error(err))
		return nil, nil
	}
	if idx.Class != class.Name {
		logger.Warn("index artifact belongs to another class", zap.String("artifact_class", idx.Class))
	}
	if want := r.builder.EmbeddingModel(); idx.EmbeddingModel != want {
		logger.Warn("index was built with a different embedding model",
			zap.String("artifact_model", idx.EmbeddingModel), zap.String("model", want))
	}
	return idx, nil
}

func (r *Registry) persist(ctx context.Context, class model.DocumentClass, idx *VectorIndex) error {
	data, err := Encode(idx)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, class.IndexKey, data); err != nil {
		if appErr.IsMirrorFailed(err) {
			logutil.GetLogger(ctx).Warn("index stored locally, remote mirror failed", zap.String("class", class.Name), zap.Error(err))
			return nil
		}
		return fmt.Errorf("persist index %s: %w", class.IndexKey, err)
	}
	return nil
}

// fresh applies the staleness policy. An empty index is always checked
// against the document listing since it was never persisted.
func (r *Registry) fresh(ctx context.Context, class model.DocumentClass, idx *VectorIndex) bool {
	if r.staleness != config.StalenessWatermark && !idx.IsEmpty() {
		return true
	}
	keys, err := r.store.List(ctx, class.Prefix)
	if err != nil {
		logutil.GetLogger(ctx).Warn("staleness check failed, serving current index",
			zap.String("class", class.Name), zap.Error(err))
		return true
	}
	return len(keys) == idx.Watermark
}

func (r *Registry) cached(class string) *VectorIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memo[class]
}

func (r *Registry) remember(class string, idx *VectorIndex) {
	r.mu.Lock()
	r.memo[class] = idx
	r.mu.Unlock()
}

func (r *Registry) classLock(class string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.buildMu[class]
	if !ok {
		l = &sync.Mutex{}
		r.buildMu[class] = l
	}
	return l
}
