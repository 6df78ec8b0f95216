package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

type emlDirConfig struct {
	Dir string `json:"dir"`
}

// emlDirMailbox serves *.eml files from a directory. File names sort in
// arrival order; Search matches the Subject header case-insensitively, the way
// IMAP SEARCH SUBJECT does.
type emlDirMailbox struct {
	dir string
}

func init() {
	Register("eml_dir", createEMLDirOpener)
}

func createEMLDirOpener(args interface{}) (Opener, error) {
	cfg := &emlDirConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: eml_dir dir is required", appErr.ErrConfig)
	}
	return func(ctx context.Context) (Mailbox, error) {
		info, err := os.Stat(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("%w: eml_dir %s: %v", appErr.ErrTransient, cfg.Dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: eml_dir %s is not a directory", appErr.ErrConfig, cfg.Dir)
		}
		return &emlDirMailbox{dir: cfg.Dir}, nil
	}, nil
}

func (m *emlDirMailbox) Search(ctx context.Context, subject string) ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	needle := strings.ToLower(subject)
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			return nil, err
		}
		msg, err := mail.ReadMessage(bytes.NewReader(raw))
		if err != nil {
			continue
		}
		got := strings.ToLower(DecodeFilename(msg.Header.Get("Subject")))
		if strings.Contains(got, needle) {
			ids = append(ids, name)
		}
	}
	return ids, nil
}

func (m *emlDirMailbox) Fetch(ctx context.Context, id string) ([]byte, error) {
	if id != filepath.Base(id) {
		return nil, fmt.Errorf("%w: message id %q", appErr.ErrInvalid, id)
	}
	return os.ReadFile(filepath.Join(m.dir, id))
}

func (m *emlDirMailbox) Close() error {
	return nil
}
