package filestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

// Durable layers a local cache tier in front of an optional remote tier.
// Local writes always land first; the remote tier mirrors them.
type Durable struct {
	local  Store
	remote Store
}

func NewDurable(local, remote Store) *Durable {
	return &Durable{local: local, remote: remote}
}

func (d *Durable) HasRemote() bool {
	return d.remote != nil
}

// Exists checks the local tier, then the remote tier. Remote errors are
// treated as "not found" so a flaky network never aborts the caller.
func (d *Durable) Exists(ctx context.Context, key string) bool {
	logger := logutil.GetLogger(ctx).With(zap.String("key", key))
	ok, err := d.local.Exists(ctx, key)
	if err != nil {
		logger.Warn("local exists check failed", zap.Error(err))
	}
	if ok {
		return true
	}
	if d.remote == nil {
		return false
	}
	ok, err = d.remote.Exists(ctx, key)
	if err != nil {
		logger.Warn("remote exists check failed, treating as absent", zap.Error(err))
		return false
	}
	return ok
}

// Put stores data locally and mirrors it remotely. A remote failure leaves the
// local copy in place and is reported as ErrMirrorFailed.
func (d *Durable) Put(ctx context.Context, key string, data []byte) error {
	if err := d.local.Put(ctx, key, data); err != nil {
		return fmt.Errorf("local put %s: %w", key, err)
	}
	if d.remote == nil {
		return nil
	}
	if err := d.remote.Put(ctx, key, data); err != nil {
		return fmt.Errorf("%w: %s: %v", appErr.ErrMirrorFailed, key, err)
	}
	return nil
}

func (d *Durable) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := d.local.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !appErr.IsNotFound(err) {
		logutil.GetLogger(ctx).Warn("local get failed, trying remote", zap.String("key", key), zap.Error(err))
	}
	if d.remote == nil {
		return nil, err
	}
	data, err = d.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if fillErr := d.local.Put(ctx, key, data); fillErr != nil {
		logutil.GetLogger(ctx).Warn("local cache fill failed", zap.String("key", key), zap.Error(fillErr))
	}
	return data, nil
}

// List returns the remote listing merged with the local one. Documents whose
// mirror failed stay visible until Mirror catches them up.
func (d *Durable) List(ctx context.Context, prefix string) ([]string, error) {
	localKeys, err := d.local.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("local list %s: %w", prefix, err)
	}
	if d.remote == nil {
		return localKeys, nil
	}
	remoteKeys, err := d.remote.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return mergeKeys(remoteKeys, localKeys), nil
}

// Mirror uploads local keys under prefix that the remote tier is missing.
func (d *Durable) Mirror(ctx context.Context, prefix string) (int, error) {
	if d.remote == nil {
		return 0, nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("prefix", prefix))
	keys, err := d.local.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("local list %s: %w", prefix, err)
	}
	uploaded := 0
	var errs []error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		ok, err := d.remote.Exists(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			continue
		}
		data, err := d.local.Get(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.remote.Put(ctx, key, data); err != nil {
			errs = append(errs, err)
			continue
		}
		uploaded++
		logger.Info("mirrored document", zap.String("key", key))
	}
	return uploaded, errors.Join(errs...)
}

func (d *Durable) Describe(ctx context.Context, key string) model.StoredDocument {
	doc := model.StoredDocument{Key: key}
	if ok, _ := d.local.Exists(ctx, key); ok {
		if p, isLocal := d.local.(*localStore); isLocal {
			doc.LocalPath = p.Path(key)
		} else {
			doc.LocalPath = key
		}
	}
	if d.remote != nil {
		if ok, _ := d.remote.Exists(ctx, key); ok {
			doc.RemoteKey = key
		}
	}
	return doc
}

func mergeKeys(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
