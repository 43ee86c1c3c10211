package web

import (
	"context"
	"time"

	"answer-engine/database"

	"go.uber.org/zap"
)

const (
	cleanupInterval  = 15 * time.Minute
	stuckDocumentAge = time.Hour
)

// CleanupService reconciles documents left in processing state by a crash
// or abandoned pipeline run, transitioning them to error so clients stop
// polling and can re-upload.
type CleanupService struct {
	store  *database.PostgresStore
	logger *zap.Logger
}

func NewCleanupService(store *database.PostgresStore, logger *zap.Logger) *CleanupService {
	return &CleanupService{store: store, logger: logger}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (cs *CleanupService) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.sweep(ctx)
		}
	}
}

func (cs *CleanupService) sweep(ctx context.Context) {
	count, err := cs.store.FailStuckDocuments(ctx, stuckDocumentAge)
	if err != nil {
		cs.logger.Error("Stuck document sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		cs.logger.Info("Marked stuck documents as errored", zap.Int("count", count))
	}
}
