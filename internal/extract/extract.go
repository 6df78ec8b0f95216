// Package extract turns stored document bytes into plain text.
package extract

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

type ExtractorFunc func(ctx context.Context, name string, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, name string, data []byte) (string, error) {
	return f(ctx, name, data)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Extractor{}
)

// Register binds an extractor to a file extension such as ".pdf".
func Register(ext string, e Extractor) {
	key := normalizeExt(ext)
	if key == "" || e == nil {
		return
	}
	registryMu.Lock()
	registry[key] = e
	registryMu.Unlock()
}

func Lookup(name string) (Extractor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[normalizeExt(path.Ext(name))]
	return e, ok
}

// Extract dispatches on the extension of name. Unsupported extensions and
// unreadable content both come back as ErrMalformed.
func Extract(ctx context.Context, name string, data []byte) (string, error) {
	e, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: no extractor for %s", appErr.ErrMalformed, name)
	}
	return e.Extract(ctx, name, data)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
