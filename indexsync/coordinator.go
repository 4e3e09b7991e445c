// Package indexsync keeps the derived vector index eventually consistent
// with the canonical place store. The Coordinator propagates committed
// writes; the Reconciler sweeps up whatever propagation missed.
package indexsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geomind/placedex/ai"
	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

// Coordinator propagates canonical place writes into the vector index.
// Propagation runs after the canonical commit and never fails the write:
// on error the place is marked pending and left to the reconciler.
type Coordinator struct {
	repository storage.PlaceRepository
	index      storage.VectorIndex
	embedder   ai.Embedder
	logger     *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets a custom logger.
// Default is slog.Default().
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a new sync coordinator.
func NewCoordinator(repository storage.PlaceRepository, index storage.VectorIndex, embedder ai.Embedder, opts ...CoordinatorOption) (*Coordinator, error) {
	if repository == nil {
		return nil, ErrPlaceRepositoryRequired
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c := &Coordinator{
		repository: repository,
		index:      index,
		embedder:   embedder,
		logger:     slog.Default().With("component", "indexsync"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BuildRecord embeds the place and assembles its vector projection. The
// record carries the place's UpdatedAt so the index can discard stale
// retries.
func (c *Coordinator) BuildRecord(ctx context.Context, place *core.Place) (*core.VectorRecord, error) {
	vec, err := c.embedder.EmbedText(ctx, place.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embedding place %s: %w", place.Id, err)
	}
	return &core.VectorRecord{
		PlaceID:   place.Id,
		Vector:    vec,
		Payload:   place.BuildVectorPayload(),
		UpdatedAt: place.UpdatedAt,
	}, nil
}

// SyncUpsert propagates a committed create or update into the index.
// On failure the place is marked pending so the reconciler retries it;
// the returned error is diagnostic only and must not fail the write.
func (c *Coordinator) SyncUpsert(ctx context.Context, place *core.Place) error {
	record, err := c.BuildRecord(ctx, place)
	if err == nil {
		err = c.index.Upsert(ctx, record)
	}
	if err != nil {
		c.logger.Warn("vector propagation failed, marking place pending",
			"place_id", place.Id, "err", err)
		if markErr := c.repository.MarkPendingSync(ctx, place.Id); markErr != nil {
			c.logger.Error("failed to mark place pending", "place_id", place.Id, "err", markErr)
		}
		return err
	}

	if clearErr := c.repository.ClearPendingSync(ctx, place.Id); clearErr != nil {
		c.logger.Error("failed to clear pending marker", "place_id", place.Id, "err", clearErr)
	}
	return nil
}

// SyncDelete removes a deleted place from the index, best effort. A failure
// leaves an orphaned record which the reconciler's prune pass removes.
func (c *Coordinator) SyncDelete(ctx context.Context, placeID string) error {
	if err := c.index.Delete(ctx, placeID); err != nil {
		c.logger.Warn("vector delete failed, leaving orphan for reconciler",
			"place_id", placeID, "err", err)
		return err
	}
	return nil
}
