package main

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/ai"
	"github.com/xxxsen/mailrag/internal/config"
	"github.com/xxxsen/mailrag/internal/embedcache"
	"github.com/xxxsen/mailrag/internal/filestore"
	"github.com/xxxsen/mailrag/internal/index"
	"github.com/xxxsen/mailrag/internal/ingest"
	"github.com/xxxsen/mailrag/internal/mailbox"
	"github.com/xxxsen/mailrag/internal/query"
	"github.com/xxxsen/mailrag/internal/service"
)

type app struct {
	cfg      *config.Config
	pipeline *service.Pipeline
}

// loadApp reads the config, initializes logging and wires the pipeline.
// Nothing here touches the mailbox, the stores or the AI providers.
func loadApp(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, pipeline: pipeline}, nil
}

func buildPipeline(cfg *config.Config) (*service.Pipeline, error) {
	local, err := filestore.New(cfg.FileStore.Local)
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}
	var remote filestore.Store
	if cfg.FileStore.Remote != nil {
		remote, err = filestore.New(*cfg.FileStore.Remote)
		if err != nil {
			return nil, fmt.Errorf("init remote store: %w", err)
		}
	}
	store := filestore.NewDurable(local, remote)

	opener, err := mailbox.NewOpener(cfg.Mailbox)
	if err != nil {
		return nil, fmt.Errorf("init mailbox: %w", err)
	}

	embedder, err := ai.NewEmbedderFromConfig(cfg.AI.Embedders)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	embedder = embedcache.Wrap(embedder, cfg.AI, local)
	generator, err := ai.NewGeneratorFromConfig(cfg.AI.Generators)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}
	answerer := ai.NewAnswerer(generator, ai.AnswererConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})

	builder := index.NewBuilder(store, embedder, index.BuilderConfig{
		ChunkSize:    cfg.Chunk.Size,
		ChunkOverlap: cfg.Chunk.Overlap,
		Workers:      cfg.Index.Workers,
	})
	logutil.GetLogger(context.Background()).Info("pipeline ready",
		zap.Bool("remote_store", store.HasRemote()),
		zap.String("mailbox", cfg.Mailbox.Type),
		zap.String("embedding_model", builder.EmbeddingModel()),
		zap.String("staleness", cfg.Index.Staleness),
		zap.Int("classes", len(cfg.Classes)),
	)
	return service.NewPipeline(
		cfg.DocumentClasses(),
		ingest.NewSynchronizer(opener, store),
		store,
		index.NewRegistry(store, builder, cfg.Index.Staleness),
		query.NewEngine(embedder, answerer, cfg.Index.TopK),
	), nil
}
