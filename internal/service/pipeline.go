package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/mailrag/internal/filestore"
	"github.com/xxxsen/mailrag/internal/index"
	"github.com/xxxsen/mailrag/internal/ingest"
	"github.com/xxxsen/mailrag/internal/metrics"
	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
	"github.com/xxxsen/mailrag/internal/query"
)

type IndexStatus struct {
	Class          string    `json:"class"`
	Available      bool      `json:"available"`
	BuildID        string    `json:"build_id,omitempty"`
	BuildTime      time.Time `json:"build_time,omitempty"`
	Records        int       `json:"records"`
	Dimension      int       `json:"dimension,omitempty"`
	Watermark      int       `json:"watermark"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
}

// Pipeline is the per-class entry point used by the CLI, HTTP handlers and
// scheduled jobs. Constructing it performs no I/O.
type Pipeline struct {
	classes  []model.DocumentClass
	byName   map[string]model.DocumentClass
	syncer   *ingest.Synchronizer
	store    *filestore.Durable
	registry *index.Registry
	engine   *query.Engine
}

func NewPipeline(
	classes []model.DocumentClass,
	syncer *ingest.Synchronizer,
	store *filestore.Durable,
	registry *index.Registry,
	engine *query.Engine,
) *Pipeline {
	byName := make(map[string]model.DocumentClass, len(classes))
	for _, c := range classes {
		byName[c.Name] = c
	}
	return &Pipeline{
		classes:  classes,
		byName:   byName,
		syncer:   syncer,
		store:    store,
		registry: registry,
		engine:   engine,
	}
}

func (p *Pipeline) Classes() []model.DocumentClass {
	return append([]model.DocumentClass(nil), p.classes...)
}

func (p *Pipeline) Class(name string) (model.DocumentClass, error) {
	c, ok := p.byName[name]
	if !ok {
		return model.DocumentClass{}, fmt.Errorf("%w: %s", appErr.ErrUnknownClass, name)
	}
	return c, nil
}

func (p *Pipeline) Sync(ctx context.Context, name string) (int, error) {
	class, err := p.Class(name)
	if err != nil {
		return 0, err
	}
	return p.syncer.Sync(ctx, class, class.Subject, class.Limit)
}

// SyncAll syncs every class concurrently. One class failing does not stop
// the others; the failures are joined.
func (p *Pipeline) SyncAll(ctx context.Context) (map[string]int, error) {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		counts = make(map[string]int, len(p.classes))
		errs   []error
	)
	for _, class := range p.classes {
		g.Go(func() error {
			n, err := p.syncer.Sync(ctx, class, class.Subject, class.Limit)
			mu.Lock()
			defer mu.Unlock()
			counts[class.Name] = n
			if err != nil {
				errs = append(errs, fmt.Errorf("sync %s: %w", class.Name, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return counts, errors.Join(errs...)
}

func (p *Pipeline) Index(ctx context.Context, name string) (*IndexStatus, error) {
	class, err := p.Class(name)
	if err != nil {
		return nil, err
	}
	idx, err := p.registry.GetOrBuild(ctx, class)
	if idx == nil {
		return nil, err
	}
	return statusOf(class, idx), err
}

func (p *Pipeline) Rebuild(ctx context.Context, name string) (*IndexStatus, error) {
	class, err := p.Class(name)
	if err != nil {
		return nil, err
	}
	idx, err := p.registry.Rebuild(ctx, class)
	if idx == nil {
		return nil, err
	}
	return statusOf(class, idx), err
}

// Ask makes sure the class index is available, then answers query against it.
func (p *Pipeline) Ask(ctx context.Context, name string, q string, k int) (*query.Answer, error) {
	class, err := p.Class(name)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	idx, err := p.registry.GetOrBuild(ctx, class)
	if err != nil {
		if idx == nil {
			return nil, err
		}
		logutil.GetLogger(ctx).Warn("serving index that failed to persist", zap.String("class", name), zap.Error(err))
	}
	ans, err := p.engine.Answer(ctx, idx, q, k)
	if err != nil {
		return nil, err
	}
	metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return ans, nil
}

// Mirror re-uploads documents and the index artifact the remote tier is missing.
func (p *Pipeline) Mirror(ctx context.Context, name string) (int, error) {
	class, err := p.Class(name)
	if err != nil {
		return 0, err
	}
	docs, err := p.store.Mirror(ctx, class.Prefix)
	if err != nil {
		return docs, err
	}
	idx, err := p.store.Mirror(ctx, class.IndexKey)
	return docs + idx, err
}

func (p *Pipeline) Documents(ctx context.Context, name string) ([]model.StoredDocument, error) {
	class, err := p.Class(name)
	if err != nil {
		return nil, err
	}
	keys, err := p.store.List(ctx, class.Prefix)
	if err != nil {
		return nil, err
	}
	docs := make([]model.StoredDocument, 0, len(keys))
	for _, key := range keys {
		docs = append(docs, p.store.Describe(ctx, key))
	}
	return docs, nil
}

func statusOf(class model.DocumentClass, idx *index.VectorIndex) *IndexStatus {
	st := &IndexStatus{Class: class.Name, Watermark: idx.Watermark}
	if idx.IsEmpty() {
		return st
	}
	st.Available = true
	st.BuildID = idx.BuildID
	st.BuildTime = idx.BuildTime
	st.Records = idx.Len()
	st.Dimension = idx.Dimension
	st.EmbeddingModel = idx.EmbeddingModel
	return st
}
