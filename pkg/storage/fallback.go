package storage

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FallbackStore writes to a primary store and, for sufficiently small files,
// retries against a secondary store when the primary is unavailable. Mirrors
// the upload client's provider-fallback rule: large files fail hard rather
// than silently landing on the weaker provider.
type FallbackStore struct {
	primary   Store
	secondary Store
	maxSize   int64
	logger    *zap.Logger
}

// NewFallbackStore builds the composite store. secondary may be nil, in which
// case no fallback is attempted.
func NewFallbackStore(primary, secondary Store, maxFallbackSize int64, logger *zap.Logger) *FallbackStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackStore{primary: primary, secondary: secondary, maxSize: maxFallbackSize, logger: logger}
}

// Put stores the content and reports which provider accepted it. The content
// must be seekable so a failed primary write can be replayed.
func (s *FallbackStore) Put(ctx context.Context, key string, content io.ReadSeeker, size int64, contentType string) (string, error) {
	primaryErr := s.primary.Put(ctx, key, content, size, contentType)
	if primaryErr == nil {
		return s.primary.Provider(), nil
	}

	if s.secondary == nil || (s.maxSize > 0 && size > s.maxSize) {
		return "", fmt.Errorf("primary store failed: %w", primaryErr)
	}

	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind content after primary failure: %w", err)
	}

	s.logger.Warn("primary store failed, falling back",
		zap.String("key", key),
		zap.Int64("size", size),
		zap.Error(primaryErr),
	)

	if err := s.secondary.Put(ctx, key, content, size, contentType); err != nil {
		return "", fmt.Errorf("fallback store failed: %w (primary: %v)", err, primaryErr)
	}
	return s.secondary.Provider(), nil
}

// Get resolves the provider recorded on the material row.
func (s *FallbackStore) Get(ctx context.Context, provider, key string) (io.ReadCloser, error) {
	store, err := s.byProvider(provider)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, key)
}

// Delete removes the object from whichever provider holds it.
func (s *FallbackStore) Delete(ctx context.Context, provider, key string) error {
	store, err := s.byProvider(provider)
	if err != nil {
		return err
	}
	return store.Delete(ctx, key)
}

func (s *FallbackStore) byProvider(provider string) (Store, error) {
	switch {
	case provider == s.primary.Provider():
		return s.primary, nil
	case s.secondary != nil && provider == s.secondary.Provider():
		return s.secondary, nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}
