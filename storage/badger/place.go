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


package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

// PlaceRepository implements storage.PlaceRepository for BadgerDB.
type PlaceRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.PlaceRepository = (*PlaceRepository)(nil)

// NewPlaceRepository creates a new PlaceRepository.
func NewPlaceRepository(backend *Backend) (*PlaceRepository, error) {
	idSeq, err := backend.GetSequence(placeIDSeq)
	if err != nil {
		return nil, err
	}

	return &PlaceRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *PlaceRepository) Close() error {
	return r.idSeq.Release()
}

// Create persists a new place.
func (r *PlaceRepository) Create(ctx context.Context, place *core.Place) error {
	return r.withTx(func(tx *badger.Txn) error {
		// Enforce OsmID uniqueness
		osmKey := makePlaceOsmKey(place.OsmID)
		_, err := tx.Get(osmKey)
		if err == nil {
			return fmt.Errorf("%w: osm id %q", storage.ErrDuplicateKey, place.OsmID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if place.Id == "" {
			place.Id = core.NewPlaceID()
		}
		now := time.Now().UTC()
		if place.CreatedAt.IsZero() {
			place.CreatedAt = now
		}
		if place.UpdatedAt.IsZero() {
			place.UpdatedAt = place.CreatedAt
		}

		seq, err := r.nextSeq()
		if err != nil {
			return err
		}

		if err := tx.Set(makePlaceRecordKey(seq), storage.MarshalPlace(place)); err != nil {
			return err
		}
		if err := tx.Set(makePlaceIDKey(place.Id), marshalSeq(seq)); err != nil {
			return err
		}
		if err := tx.Set(osmKey, []byte(place.Id)); err != nil {
			return err
		}
		if place.PendingSync {
			if err := tx.Set(makePlacePendingKey(place.Id), marshalSeq(seq)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetByID retrieves a single place by its id.
func (r *PlaceRepository) GetByID(ctx context.Context, id string) (*core.Place, error) {
	var result *core.Place
	err := r.withTx(func(tx *badger.Txn) error {
		place, _, err := r.readPlaceByID(tx, id)
		if err != nil {
			return err
		}
		if place == nil {
			return fmt.Errorf("%w: place %s", storage.ErrNotFound, id)
		}
		result = place
		return nil
	}, false)
	return result, err
}

// GetByOsmID retrieves a single place by its upstream identifier.
func (r *PlaceRepository) GetByOsmID(ctx context.Context, osmID string) (*core.Place, error) {
	var result *core.Place
	err := r.withTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePlaceOsmKey(osmID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: osm id %q", storage.ErrNotFound, osmID)
			}
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		place, _, err := r.readPlaceByID(tx, id)
		if err != nil {
			return err
		}
		if place == nil {
			return fmt.Errorf("%w: place %s", storage.ErrNotFound, id)
		}
		result = place
		return nil
	}, false)
	return result, err
}

// Update replaces an existing place record.
func (r *PlaceRepository) Update(ctx context.Context, place *core.Place) error {
	return r.withTx(func(tx *badger.Txn) error {
		old, seq, err := r.readPlaceByID(tx, place.Id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: place %s", storage.ErrNotFound, place.Id)
		}

		place.UpdatedAt = time.Now().UTC()
		if place.CreatedAt.IsZero() {
			place.CreatedAt = old.CreatedAt
		}

		if err := tx.Set(makePlaceRecordKey(seq), storage.MarshalPlace(place)); err != nil {
			return err
		}

		// Maintain the uniqueness index if the upstream id moved
		if old.OsmID != place.OsmID {
			if err := tx.Delete(makePlaceOsmKey(old.OsmID)); err != nil {
				return err
			}
			if err := tx.Set(makePlaceOsmKey(place.OsmID), []byte(place.Id)); err != nil {
				return err
			}
		}

		pendingKey := makePlacePendingKey(place.Id)
		if place.PendingSync && !old.PendingSync {
			if err := tx.Set(pendingKey, marshalSeq(seq)); err != nil {
				return err
			}
		}
		if !place.PendingSync && old.PendingSync {
			if err := tx.Delete(pendingKey); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Delete removes a place and its index entries.
func (r *PlaceRepository) Delete(ctx context.Context, id string) error {
	return r.withTx(func(tx *badger.Txn) error {
		place, seq, err := r.readPlaceByID(tx, id)
		if err != nil {
			return err
		}
		if place == nil {
			return fmt.Errorf("%w: place %s", storage.ErrNotFound, id)
		}

		if err := tx.Delete(makePlaceRecordKey(seq)); err != nil {
			return err
		}
		if err := tx.Delete(makePlaceIDKey(id)); err != nil {
			return err
		}
		if err := tx.Delete(makePlaceOsmKey(place.OsmID)); err != nil {
			return err
		}
		if place.PendingSync {
			if err := tx.Delete(makePlacePendingKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// SearchByName finds active places whose name contains the substring,
// case-insensitively, in creation order.
func (r *PlaceRepository) SearchByName(ctx context.Context, substring string, limit int) ([]*core.Place, error) {
	needle := strings.ToLower(substring)
	return r.scanPlaces(limit, 0, func(p *core.Place) bool {
		return strings.Contains(strings.ToLower(p.Name), needle)
	})
}

// SearchByCategory finds active places matching the category key and/or
// value exactly. An empty key or value matches anything.
func (r *PlaceRepository) SearchByCategory(ctx context.Context, key, value string, limit, offset int) ([]*core.Place, error) {
	return r.scanPlaces(limit, offset, func(p *core.Place) bool {
		if key != "" && p.CategoryKey != key {
			return false
		}
		if value != "" && p.CategoryValue != value {
			return false
		}
		return true
	})
}

// SearchByCoordinates finds active geolocated places within radiusKm of the
// given point, using the planar 111 km/degree approximation.
func (r *PlaceRepository) SearchByCoordinates(ctx context.Context, latitude, longitude, radiusKm float64, limit int) ([]*core.Place, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %v", storage.ErrInvalidQuery, radiusKm)
	}
	center := core.Coordinates{Latitude: latitude, Longitude: longitude}
	return r.scanPlaces(limit, 0, func(p *core.Place) bool {
		if p.Coordinates == nil {
			return false
		}
		return center.PlanarDistanceKm(*p.Coordinates) <= radiusKm
	})
}

// ListActive pages through active places in creation order.
func (r *PlaceRepository) ListActive(ctx context.Context, limit, offset int) ([]*core.Place, error) {
	return r.scanPlaces(limit, offset, func(p *core.Place) bool {
		return true
	})
}

// MarkPendingSync records that the place's vector projection is owed.
func (r *PlaceRepository) MarkPendingSync(ctx context.Context, id string) error {
	return r.withTx(func(tx *badger.Txn) error {
		place, seq, err := r.readPlaceByID(tx, id)
		if err != nil {
			return err
		}
		if place == nil {
			return fmt.Errorf("%w: place %s", storage.ErrNotFound, id)
		}
		if place.PendingSync {
			return nil
		}
		place.PendingSync = true
		if err := tx.Set(makePlaceRecordKey(seq), storage.MarshalPlace(place)); err != nil {
			return err
		}
		if err := tx.Set(makePlacePendingKey(id), marshalSeq(seq)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ClearPendingSync removes the pending marker. Missing or already-clean
// places are ignored so the reconciler can race deletes safely.
func (r *PlaceRepository) ClearPendingSync(ctx context.Context, id string) error {
	return r.withTx(func(tx *badger.Txn) error {
		place, seq, err := r.readPlaceByID(tx, id)
		if err != nil {
			return err
		}
		if place == nil || !place.PendingSync {
			return nil
		}
		place.PendingSync = false
		if err := tx.Set(makePlaceRecordKey(seq), storage.MarshalPlace(place)); err != nil {
			return err
		}
		if err := tx.Delete(makePlacePendingKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListPendingSync returns up to limit places still awaiting vector
// propagation.
func (r *PlaceRepository) ListPendingSync(ctx context.Context, limit int) ([]*core.Place, error) {
	var results []*core.Place
	err := r.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(placePendingPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			var seq uint64
			var ok bool
			if err := iter.Item().Value(func(val []byte) error {
				seq, ok = unmarshalSeq(val)
				return nil
			}); err != nil {
				return err
			}
			if !ok {
				continue
			}
			place, err := r.readPlaceBySeq(tx, seq)
			if err != nil {
				return err
			}
			if place != nil {
				results = append(results, place)
			}
		}
		return nil
	}, false)
	return results, err
}

// Helper methods

// withTx delegates to the backend, mapping closed-database errors to the
// storage sentinel.
func (r *PlaceRepository) withTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	err := r.backend.WithTx(fn, isWrite)
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	}
	return err
}

// nextSeq returns the next sequence number, skipping the initial zero.
func (r *PlaceRepository) nextSeq() (uint64, error) {
	seq, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if seq == 0 {
		seq, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return seq, nil
}

// readPlaceBySeq reads a place record by its primary key. Returns nil if
// the record doesn't exist.
func (r *PlaceRepository) readPlaceBySeq(tx *badger.Txn, seq uint64) (*core.Place, error) {
	item, err := tx.Get(makePlaceRecordKey(seq))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var place *core.Place
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		place, unmarshalErr = storage.UnmarshalPlace(val)
		return unmarshalErr
	})
	return place, err
}

// readPlaceByID resolves a place id through the id index. Returns nil and
// sequence 0 if the place doesn't exist.
func (r *PlaceRepository) readPlaceByID(tx *badger.Txn, id string) (*core.Place, uint64, error) {
	item, err := tx.Get(makePlaceIDKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	var seq uint64
	var ok bool
	if err := item.Value(func(val []byte) error {
		seq, ok = unmarshalSeq(val)
		return nil
	}); err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: corrupt id index for place %s", storage.ErrSerializationFailed, id)
	}

	place, err := r.readPlaceBySeq(tx, seq)
	return place, seq, err
}

// scanPlaces iterates primary records in creation order, keeping active
// places that satisfy the predicate. A non-positive limit means no limit.
func (r *PlaceRepository) scanPlaces(limit, offset int, match func(*core.Place) bool) ([]*core.Place, error) {
	var results []*core.Place
	skipped := 0
	err := r.withTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(placeRecordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}

			var place *core.Place
			if err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				place, unmarshalErr = storage.UnmarshalPlace(val)
				return unmarshalErr
			}); err != nil {
				return err
			}
			if place == nil || !place.IsActive || !match(place) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			results = append(results, place)
		}
		return nil
	}, false)
	return results, err
}
