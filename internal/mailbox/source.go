package mailbox

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

type Source struct {
	mb Mailbox
}

func NewSource(mb Mailbox) *Source {
	return &Source{mb: mb}
}

// Recent returns at most limit of the newest messages matching subject, oldest first.
func (s *Source) Recent(ctx context.Context, subject string, limit int) ([]model.SourceMessage, error) {
	ids, err := s.mb.Search(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %v", appErr.ErrTransient, subject, err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	msgs := make([]model.SourceMessage, 0, len(ids))
	for i, id := range ids {
		msgs = append(msgs, model.SourceMessage{ID: id, Subject: subject, ReceivedOrder: i})
	}
	return msgs, nil
}

// Attachments fetches msg and returns the attachments belonging to class with
// sanitized filenames. Attachments whose name sanitizes to nothing are dropped.
// Fetch errors keep the mailbox classification: ErrTransient means the
// connection is gone, anything else concerns this message only.
func (s *Source) Attachments(ctx context.Context, msg model.SourceMessage, class model.DocumentClass) ([]model.Attachment, error) {
	raw, err := s.mb.Fetch(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", msg.ID, err)
	}
	parts, err := ParseAttachments(raw)
	if err != nil {
		return nil, err
	}
	out := make([]model.Attachment, 0, len(parts))
	for _, p := range parts {
		if !class.Matches(DecodeFilename(p.Filename)) {
			continue
		}
		name := SanitizeFilename(p.Filename)
		if name == "" || !class.Matches(name) {
			logutil.GetLogger(ctx).Warn("skip attachment with unusable filename",
				zap.String("message_id", msg.ID),
				zap.String("filename", p.Filename),
			)
			continue
		}
		out = append(out, model.Attachment{
			Filename:        name,
			Content:         p.Content,
			SourceMessageID: msg.ID,
		})
	}
	return out, nil
}

func (s *Source) Close() error {
	return s.mb.Close()
}
