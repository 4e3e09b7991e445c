// Copyright 2026 Geomind Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package reindex rebuilds the vector index from the canonical place
// store. The index is derived state; this is the operational path back to
// a fully consistent index after an outage, a model change, or data
// surgery.
package reindex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/geomind/placedex/ai"
	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

// Config holds configuration for the reindexing operation.
type Config struct {
	// BatchSize is the number of places to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of places)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer orchestrates the full rebuild of the vector index.
type Reindexer struct {
	repo      storage.PlaceRepository
	index     storage.VectorIndex
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *PlaceIterator
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(repo storage.PlaceRepository, index storage.VectorIndex, embedder ai.Embedder, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}

	processor := NewBatchProcessor(repo, index, embedder, config.MaxRetries, config.RetryDelay)
	iterator := NewPlaceIterator(repo, config.BatchSize)

	return &Reindexer{
		repo:      repo,
		index:     index,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		processor: processor,
		iterator:  iterator,
	}
}

// Run executes the reindexing operation. Every active place is embedded
// and upserted; index records with no active owner are removed afterwards.
// Progress is reported to the configured writer.
func (r *Reindexer) Run(ctx context.Context) error {
	all, err := r.repo.ListActive(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to query places: %w", err)
	}

	totalPlaces := len(all)
	if totalPlaces == 0 {
		fmt.Fprintf(r.progress, "No active places found in database (0 places)\n")
		return r.pruneStale(ctx, nil)
	}

	fmt.Fprintf(r.progress, "Starting reindexing of %d places (batch size: %d)\n",
		totalPlaces, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, totalPlaces, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	reindexed := make(map[string]bool, totalPlaces)

	err = r.iterator.ForEach(ctx, func(places []*core.Place) error {
		if err := r.processor.Process(ctx, places); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		for _, place := range places {
			reindexed[place.Id] = true
		}
		processed += len(places)
		tracker.Update(processed)

		return nil
	})

	if err != nil {
		return err
	}

	tracker.Finish()

	if err := r.pruneStale(ctx, reindexed); err != nil {
		return err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindexing complete. Processed %d places in %v (%.1f places/sec)\n",
		totalPlaces, elapsed.Round(time.Second), float64(totalPlaces)/elapsed.Seconds())

	return nil
}

// pruneStale drops index records whose place was not part of this rebuild.
func (r *Reindexer) pruneStale(ctx context.Context, reindexed map[string]bool) error {
	ids, err := r.index.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list index records: %w", err)
	}

	var stale []string
	for _, id := range ids {
		if !reindexed[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := r.index.DeleteBatch(ctx, stale); err != nil {
		return fmt.Errorf("failed to prune stale index records: %w", err)
	}
	fmt.Fprintf(r.progress, "Pruned %d stale index records\n", len(stale))
	return nil
}
