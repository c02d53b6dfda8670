package watcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FileIndexer re-indexes and unindexes data files.
type FileIndexer interface {
	SyncFile(ctx context.Context, path string) (indexed, deleted int, err error)
	RemoveFile(ctx context.Context, path string) (int, error)
}

// Sync is a Handler that updates the index and then flushes the cache, since
// any cached result may be stale after a change.
type Sync struct {
	indexer FileIndexer
	flush   func(ctx context.Context) error
	logger  *zap.Logger
}

// NewSync creates a handler. flush may be nil when there is no cache.
func NewSync(idx FileIndexer, flush func(ctx context.Context) error, logger *zap.Logger) *Sync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sync{indexer: idx, flush: flush, logger: logger}
}

// Index implements Handler.
func (s *Sync) Index(ctx context.Context, path string) error {
	indexed, deleted, err := s.indexer.SyncFile(ctx, path)
	if err != nil {
		return err
	}
	s.logger.Info("data file indexed", zap.String("path", path), zap.Int("indexed", indexed), zap.Int("deleted", deleted))
	return s.flushCache(ctx)
}

// Remove implements Handler.
func (s *Sync) Remove(ctx context.Context, path string) error {
	n, err := s.indexer.RemoveFile(ctx, path)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	s.logger.Info("data file removed", zap.String("path", path), zap.Int("deleted", n))
	return s.flushCache(ctx)
}

func (s *Sync) flushCache(ctx context.Context) error {
	if s.flush == nil {
		return nil
	}
	if err := s.flush(ctx); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	return nil
}
