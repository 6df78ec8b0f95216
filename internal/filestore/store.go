package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/xxxsen/mailrag/internal/config"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

// Store is one storage tier. Keys are slash separated and immutable once written.
type Store interface {
	Name() string
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type Factory func(args interface{}) (Store, error)

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

func New(cfg config.StoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("%w: file_store type is required", appErr.ErrConfig)
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported file store type: %s", appErr.ErrConfig, cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("%w: store config is required", appErr.ErrConfig)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty file key", appErr.ErrInvalid)
	}
	if strings.Contains(key, "\\") || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: invalid file key %q", appErr.ErrInvalid, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: invalid file key %q", appErr.ErrInvalid, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("%w: invalid file key %q", appErr.ErrInvalid, key)
		}
	}
	return nil
}
