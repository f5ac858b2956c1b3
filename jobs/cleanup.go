package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// IdempotencyCleaner deletes idempotency keys past their retention window.
type IdempotencyCleaner struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleaner constructs the cleaner.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, retention: retention, logger: logger}
}

// Run removes expired keys and logs how many were deleted.
func (c *IdempotencyCleaner) Run(ctx context.Context) error {
	deleted, err := c.store.Cleanup(ctx, c.retention)
	if err != nil {
		return err
	}
	c.logger.Info("idempotency cleanup done",
		slog.Int64("deleted", deleted),
		slog.Duration("retention", c.retention))
	return nil
}
