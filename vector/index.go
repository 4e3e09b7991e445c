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


// Package vector provides the derived place-embedding index. It runs on its
// own storage backend, separate from the canonical place store, and gives no
// transactional guarantees relative to it: the index is rebuildable state,
// kept current by the sync coordinator and the reconciler.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
	storebadger "github.com/geomind/placedex/storage/badger"
)

const (
	vectorRecordPrefix = "vec:"

	// upsertParallelism bounds concurrent batch writes.
	upsertParallelism = 8
)

// Index implements storage.VectorIndex on a dedicated BadgerDB backend.
// Vectors are normalized at write time so cosine similarity reduces to a
// dot product at query time.
type Index struct {
	backend *storebadger.Backend
	logger  *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// NewIndex creates a vector index on the given backend. The index assumes
// sole ownership of the backend and closes it on Close.
func NewIndex(backend *storebadger.Backend) *Index {
	return &Index{
		backend: backend,
		logger:  slog.Default().With("component", "vector_index"),
	}
}

// Close closes the underlying backend.
func (ix *Index) Close() error {
	return ix.backend.Close()
}

// Upsert writes a vector record keyed by the owning place's id. A record
// whose source UpdatedAt is older than the stored one is discarded, so
// delayed retries can never clobber newer state.
func (ix *Index) Upsert(ctx context.Context, record *core.VectorRecord) error {
	return ix.withTx(func(tx *badger.Txn) error {
		key := makeVectorKey(record.PlaceID)

		existing, err := readVectorRecord(tx, key)
		if err != nil {
			return err
		}
		if existing != nil && record.UpdatedAt.Before(existing.UpdatedAt) {
			ix.logger.Debug("discarding stale vector upsert",
				"place_id", record.PlaceID,
				"record_updated_at", record.UpdatedAt,
				"stored_updated_at", existing.UpdatedAt)
			return nil
		}

		stored := *record
		stored.Vector = Normalize(record.Vector)
		if err := tx.Set(key, storage.MarshalVectorRecord(&stored)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// UpsertBatch upserts many records with bounded parallelism. Records are
// independent; a failure on one does not roll back the others.
func (ix *Index) UpsertBatch(ctx context.Context, records []*core.VectorRecord) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertParallelism)
	for _, record := range records {
		g.Go(func() error {
			return ix.Upsert(ctx, record)
		})
	}
	return g.Wait()
}

// Search scans all records, scoring each against the query vector, and
// returns up to limit matches ordered by descending cosine similarity.
// Records below minScore or rejected by the filter are dropped.
func (ix *Index) Search(ctx context.Context, queryVector []float32, limit int, minScore float32, filter storage.VectorFilter) ([]storage.VectorMatch, error) {
	query := Normalize(queryVector)

	var matches []storage.VectorMatch
	err := ix.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorRecordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.VectorRecord
			if err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				record, unmarshalErr = storage.UnmarshalVectorRecord(val)
				return unmarshalErr
			}); err != nil {
				return err
			}
			if record == nil || len(record.Vector) == 0 {
				continue
			}
			if !filter.Matches(record.Payload) {
				continue
			}

			score := dotProduct(query, record.Vector)
			if score >= minScore {
				matches = append(matches, storage.VectorMatch{
					PlaceID: record.PlaceID,
					Score:   score,
				})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b storage.VectorMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Delete removes the record for the given place id. Deleting an absent
// record is a no-op.
func (ix *Index) Delete(ctx context.Context, placeID string) error {
	return ix.withTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeVectorKey(placeID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteBatch removes records for the given place ids in one transaction.
func (ix *Index) DeleteBatch(ctx context.Context, placeIDs []string) error {
	if len(placeIDs) == 0 {
		return nil
	}
	return ix.withTx(func(tx *badger.Txn) error {
		for _, id := range placeIDs {
			if err := tx.Delete(makeVectorKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ListIDs returns the ids of every place currently indexed.
func (ix *Index) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := ix.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorRecordPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			ids = append(ids, string(key[len(vectorRecordPrefix):]))
		}
		return nil
	}, false)
	return ids, err
}

func (ix *Index) withTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	err := ix.backend.WithTx(fn, isWrite)
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	}
	return err
}

func makeVectorKey(placeID string) []byte {
	return append([]byte(vectorRecordPrefix), placeID...)
}

func readVectorRecord(tx *badger.Txn, key []byte) (*core.VectorRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.VectorRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalVectorRecord(val)
		return unmarshalErr
	})
	return record, err
}
