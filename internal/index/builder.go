package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/chunker"
	"github.com/xxxsen/mailrag/internal/extract"
	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const defaultWorkers = 4

// DocumentReader is the read side of the durable store.
type DocumentReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type BuilderConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Workers      int
}

type Builder struct {
	docs     DocumentReader
	embedder ai.IEmbedder
	cfg      BuilderConfig
}

func NewBuilder(docs DocumentReader, embedder ai.IEmbedder, cfg BuilderConfig) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize, cfg.ChunkOverlap = chunker.DefaultSize, chunker.DefaultOverlap
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Builder{docs: docs, embedder: embedder, cfg: cfg}
}

func (b *Builder) EmbeddingModel() string {
	return b.embedder.ModelName()
}

// Build reads every stored document of class and embeds its chunks.
// Unreadable documents are skipped; an embedding failure aborts the build.
// Zero records yield the Empty sentinel.
func (b *Builder) Build(ctx context.Context, class model.DocumentClass) (*VectorIndex, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("class", class.Name))
	keys, err := b.docs.List(ctx, class.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", class.Prefix, err)
	}
	if len(keys) == 0 {
		return Empty(class.Name, 0), nil
	}
	pool, err := ants.NewPool(b.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create build pool: %w", err)
	}
	defer pool.Release()

	buildCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		results  = make([][]model.VectorRecord, len(keys))
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	for i, key := range keys {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if buildCtx.Err() != nil {
				return
			}
			recs, err := b.processDocument(buildCtx, key)
			if err != nil {
				fail(err)
				return
			}
			results[i] = recs
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit %s: %w", key, submitErr))
			break
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	records := make([]model.VectorRecord, 0, len(keys))
	for _, recs := range results {
		records = append(records, recs...)
	}
	if len(records) == 0 {
		logger.Warn("no indexable content", zap.Int("documents", len(keys)))
		return Empty(class.Name, len(keys)), nil
	}
	dim := len(records[0].Embedding)
	for _, r := range records {
		if len(r.Embedding) != dim {
			return nil, fmt.Errorf("%w: %s#%d has %d, expected %d", appErr.ErrDimensionMismatch,
				r.Chunk.DocumentKey, r.Chunk.SequenceIndex, len(r.Embedding), dim)
		}
	}
	idx := &VectorIndex{
		Class:          class.Name,
		Records:        records,
		Dimension:      dim,
		BuildID:        uuid.NewString(),
		BuildTime:      time.Now().UTC(),
		Watermark:      len(keys),
		EmbeddingModel: b.embedder.ModelName(),
	}
	logger.Info("index built",
		zap.String("build_id", idx.BuildID),
		zap.Int("documents", len(keys)),
		zap.Int("records", len(records)),
		zap.Int("dimension", dim),
	)
	return idx, nil
}

func (b *Builder) processDocument(ctx context.Context, key string) ([]model.VectorRecord, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("key", key))
	data, err := b.docs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	text, err := extract.Extract(ctx, key, data)
	if err != nil {
		if appErr.IsMalformed(err) {
			logger.Warn("skip unreadable document", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	chunks, err := chunker.Chunk(key, text, b.cfg.ChunkSize, b.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	records := make([]model.VectorRecord, 0, len(chunks))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := b.embedder.Embed(ctx, c.Text, ai.TaskRetrievalDocument)
		if err != nil {
			return nil, fmt.Errorf("embed %s#%d: %w", key, c.SequenceIndex, err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("embed %s#%d: empty embedding", key, c.SequenceIndex)
		}
		records = append(records, model.VectorRecord{Chunk: c, Embedding: vec})
	}
	logger.Debug("document embedded", zap.Int("chunks", len(records)))
	return records, nil
}
