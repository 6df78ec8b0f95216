// Package mailbox enumerates source messages and pulls their attachments.
// It carries no business rules beyond the filename sanitizer.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/mailrag/internal/config"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

// Mailbox is the mail provider capability. Search returns message ids in
// ascending arrival order; Fetch returns the raw RFC 822 bytes.
type Mailbox interface {
	Search(ctx context.Context, subject string) ([]string, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
	Close() error
}

// Opener opens one mailbox session. Sessions are per sync run.
type Opener func(ctx context.Context) (Mailbox, error)

type Factory func(args interface{}) (Opener, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewOpener(cfg config.MailboxConfig) (Opener, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("%w: mailbox.type is required", appErr.ErrConfig)
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported mailbox type: %s", appErr.ErrConfig, cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("%w: mailbox config is required", appErr.ErrConfig)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode mailbox config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode mailbox config: %w", err)
	}
	return nil
}
