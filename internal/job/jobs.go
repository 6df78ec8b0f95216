package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/service"
)

// Pipeline is the slice of the service the scheduled jobs drive.
type Pipeline interface {
	Sync(ctx context.Context, class string) (int, error)
	Mirror(ctx context.Context, class string) (int, error)
	Rebuild(ctx context.Context, class string) (*service.IndexStatus, error)
}

type SyncJob struct {
	pipeline Pipeline
	class    string
}

func NewSyncJob(pipeline Pipeline, class string) *SyncJob {
	return &SyncJob{pipeline: pipeline, class: class}
}

func (j *SyncJob) Name() string {
	return "sync_" + j.class
}

func (j *SyncJob) Run(ctx context.Context) error {
	stored, err := j.pipeline.Sync(ctx, j.class)
	if stored > 0 {
		logutil.GetLogger(ctx).Info("sync stored documents", zap.String("class", j.class), zap.Int("stored", stored))
	}
	return err
}

type MirrorJob struct {
	pipeline Pipeline
	class    string
}

func NewMirrorJob(pipeline Pipeline, class string) *MirrorJob {
	return &MirrorJob{pipeline: pipeline, class: class}
}

func (j *MirrorJob) Name() string {
	return "mirror_" + j.class
}

func (j *MirrorJob) Run(ctx context.Context) error {
	n, err := j.pipeline.Mirror(ctx, j.class)
	if n > 0 {
		logutil.GetLogger(ctx).Info("mirror caught up", zap.String("class", j.class), zap.Int("uploaded", n))
	}
	return err
}

// IndexJob rebuilds the class index from the current document set.
type IndexJob struct {
	pipeline Pipeline
	class    string
}

func NewIndexJob(pipeline Pipeline, class string) *IndexJob {
	return &IndexJob{pipeline: pipeline, class: class}
}

func (j *IndexJob) Name() string {
	return "index_" + j.class
}

func (j *IndexJob) Run(ctx context.Context) error {
	st, err := j.pipeline.Rebuild(ctx, j.class)
	if st != nil {
		logutil.GetLogger(ctx).Info("index rebuilt",
			zap.String("class", j.class),
			zap.Bool("available", st.Available),
			zap.Int("records", st.Records),
			zap.Int("watermark", st.Watermark),
		)
	}
	return err
}
