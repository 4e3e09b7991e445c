package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/geomind/placedex/ai"
	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/indexsync"
	"github.com/geomind/placedex/storage"
)

// BatchProcessor embeds batches of places and writes their vector
// projections to the index.
type BatchProcessor struct {
	repo           storage.PlaceRepository
	index          storage.VectorIndex
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.PlaceRepository, index storage.VectorIndex, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		index:          index,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds a batch of places and upserts their vector records.
// Pending-sync markers are cleared for every place the batch covers, since
// the rebuild just brought them current.
func (bp *BatchProcessor) Process(ctx context.Context, places []*core.Place) error {
	if len(places) == 0 {
		return nil
	}

	texts := make([]string, len(places))
	for i, place := range places {
		texts[i] = place.EmbeddingText()
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := indexsync.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(places) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(places), len(embeddings))
	}

	records := make([]*core.VectorRecord, len(places))
	for i, place := range places {
		records[i] = &core.VectorRecord{
			PlaceID:   place.Id,
			Vector:    embeddings[i],
			Payload:   place.BuildVectorPayload(),
			UpdatedAt: place.UpdatedAt,
		}
	}

	if err := bp.index.UpsertBatch(ctx, records); err != nil {
		return fmt.Errorf("failed to upsert vector records: %w", err)
	}

	for _, place := range places {
		if err := bp.repo.ClearPendingSync(ctx, place.Id); err != nil {
			return fmt.Errorf("failed to clear pending marker for %s: %w", place.Id, err)
		}
	}
	return nil
}
