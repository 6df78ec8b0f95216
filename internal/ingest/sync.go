// Package ingest copies classified mail attachments into the durable store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/mailbox"
	"github.com/xxxsen/mailrag/internal/metrics"
	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const DefaultLimit = 10

// DocumentStore is the write side of the durable store.
type DocumentStore interface {
	Exists(ctx context.Context, key string) bool
	Put(ctx context.Context, key string, data []byte) error
}

type Synchronizer struct {
	open  mailbox.Opener
	store DocumentStore
}

func NewSynchronizer(open mailbox.Opener, store DocumentStore) *Synchronizer {
	return &Synchronizer{open: open, store: store}
}

// Sync stores the class attachments of the newest limit messages matching
// subject and returns how many new documents were written. Documents already
// present are left untouched. A message that cannot be fetched or parsed is
// skipped; a lost mailbox connection ends the run with ErrTransient and the
// count stored so far.
func (s *Synchronizer) Sync(ctx context.Context, class model.DocumentClass, subject string, limit int) (int, error) {
	if subject == "" {
		subject = class.Subject
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	logger := logutil.GetLogger(ctx).With(zap.String("class", class.Name))
	start := time.Now()

	mb, err := s.open(ctx)
	if err != nil {
		if appErr.IsFatal(err) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: open mailbox: %v", appErr.ErrTransient, err)
	}
	src := mailbox.NewSource(mb)
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("close mailbox failed", zap.Error(err))
		}
	}()

	msgs, err := src.Recent(ctx, subject, limit)
	if err != nil {
		return 0, err
	}
	run := newRunState()
	stored := 0
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		atts, err := src.Attachments(ctx, msg, class)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stored, ctxErr
			}
			if appErr.IsTransient(err) {
				logger.Error("mailbox connection lost, abort sync",
					zap.String("message_id", msg.ID),
					zap.Int("stored", stored),
					zap.Error(err),
				)
				return stored, err
			}
			logger.Warn("skip message", zap.String("message_id", msg.ID), zap.Error(err))
			metrics.DocumentsSkipped.WithLabelValues(class.Name, "message_error").Inc()
			continue
		}
		for _, att := range atts {
			if err := ctx.Err(); err != nil {
				return stored, err
			}
			if s.storeAttachment(ctx, class, att, run) {
				stored++
			}
		}
	}
	logger.Info("sync finished",
		zap.Int("messages", len(msgs)),
		zap.Int("stored", stored),
		zap.Duration("duration", time.Since(start)),
	)
	return stored, nil
}

func (s *Synchronizer) storeAttachment(ctx context.Context, class model.DocumentClass, att model.Attachment, run *runState) bool {
	key := class.DocumentKey(att.Filename)
	logger := logutil.GetLogger(ctx).With(
		zap.String("class", class.Name),
		zap.String("key", key),
		zap.String("message_id", att.SourceMessageID),
	)
	if first, ok := run.seen(key, att.Content); ok {
		if first != contentHash(att.Content) {
			logger.Warn("conflicting content for an already handled filename, keeping the first")
			metrics.DocumentsSkipped.WithLabelValues(class.Name, "conflict").Inc()
		} else {
			metrics.DocumentsSkipped.WithLabelValues(class.Name, "duplicate").Inc()
		}
		return false
	}
	if s.store.Exists(ctx, key) {
		metrics.DocumentsSkipped.WithLabelValues(class.Name, "exists").Inc()
		return false
	}
	if err := s.store.Put(ctx, key, att.Content); err != nil {
		if !appErr.IsMirrorFailed(err) {
			logger.Error("store document failed", zap.Error(err))
			metrics.DocumentsSkipped.WithLabelValues(class.Name, "store_error").Inc()
			return false
		}
		logger.Warn("document stored locally, remote mirror failed", zap.Error(err))
		metrics.MirrorFailures.WithLabelValues(class.Name).Inc()
	}
	metrics.DocumentsStored.WithLabelValues(class.Name).Inc()
	logger.Info("document stored", zap.Int("size", len(att.Content)))
	return true
}

// runState remembers which keys one sync run has handled and the hash of the
// content that won.
type runState struct {
	hashes map[string]string
}

func newRunState() *runState {
	return &runState{hashes: make(map[string]string)}
}

// seen reports whether key was handled before and records it otherwise.
func (r *runState) seen(key string, content []byte) (string, bool) {
	if h, ok := r.hashes[key]; ok {
		return h, true
	}
	r.hashes[key] = contentHash(content)
	return "", false
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
