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


package reindex

import (
	"context"

	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

const (
	// DefaultBatchSize is the default number of places to process in each batch
	DefaultBatchSize = 100
)

// PlaceIterator iterates over all active places in batches.
type PlaceIterator struct {
	repo      storage.PlaceRepository
	batchSize int
}

// NewPlaceIterator creates a new place iterator.
// batchSize: number of places to fetch in each batch (must be > 0)
func NewPlaceIterator(repo storage.PlaceRepository, batchSize int) *PlaceIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &PlaceIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach iterates over all active places, calling fn for each batch.
// Iteration stops on first error from fn or when all places are processed.
// Context cancellation is checked between batches.
func (it *PlaceIterator) ForEach(ctx context.Context, fn func([]*core.Place) error) error {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := it.repo.ListActive(ctx, it.batchSize, offset)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		if len(batch) < it.batchSize {
			return nil
		}
		offset += len(batch)
	}
}
