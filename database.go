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


// Package placedex is an embedded place store with hybrid search. Places
// live in a canonical record store; a derived vector index follows it with
// eventual consistency and search queries resolve through an ordered
// strategy chain that degrades gracefully when the vector stage is
// unavailable.
package placedex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/geomind/placedex/ai"
	"github.com/geomind/placedex/ai/openai"
	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/indexsync"
	"github.com/geomind/placedex/reindex"
	"github.com/geomind/placedex/search"
	"github.com/geomind/placedex/storage"
	"github.com/geomind/placedex/storage/badger"
	"github.com/geomind/placedex/vector"
)

// Database wires the canonical place store, the derived vector index, the
// embedder and the search resolver behind one facade.
type Database struct {
	placeBackend *badger.Backend
	repo         storage.PlaceRepository
	index        storage.VectorIndex
	embedder     ai.Embedder
	coordinator  *indexsync.Coordinator
	resolver     *search.Resolver
	logger       *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	embedder ai.Embedder
	inMemory bool
}

// WithAIConfig sets the embedding service configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithEmbedder injects an embedder directly, bypassing the AI config.
// Intended for tests and custom embedding setups.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedder = embedder
	}
}

// WithInMemory runs both stores in memory. Nothing is persisted.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// NewDatabase opens (or creates) a database under filePath. The canonical
// store and the vector index each get their own subdirectory.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
	}
	for _, opt := range opts {
		opt(options)
	}

	placeBackend, err := badger.OpenBackend(filepath.Join(filePath, "places"), options.inMemory)
	if err != nil {
		return nil, err
	}

	repo, err := badger.NewPlaceRepository(placeBackend)
	if err != nil {
		placeBackend.Close()
		return nil, err
	}

	vectorBackend, err := badger.OpenBackend(filepath.Join(filePath, "vectors"), options.inMemory)
	if err != nil {
		repo.Close()
		placeBackend.Close()
		return nil, err
	}
	index := vector.NewIndex(vectorBackend)

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(options.aiConfig)
		if err != nil {
			index.Close()
			repo.Close()
			placeBackend.Close()
			return nil, err
		}
	}

	coordinator, err := indexsync.NewCoordinator(repo, index, embedder)
	if err != nil {
		index.Close()
		repo.Close()
		placeBackend.Close()
		return nil, err
	}

	resolver, err := search.NewResolver(repo, index, embedder)
	if err != nil {
		index.Close()
		repo.Close()
		placeBackend.Close()
		return nil, err
	}

	return &Database{
		placeBackend: placeBackend,
		repo:         repo,
		index:        index,
		embedder:     embedder,
		coordinator:  coordinator,
		resolver:     resolver,
		logger:       slog.Default(),
	}, nil
}

// Close closes the repositories and both backends.
func (db *Database) Close() error {
	if err := db.index.Close(); err != nil {
		db.logger.Error("error closing vector index", "err", err)
		return err
	}
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing place repository", "err", err)
		return err
	}
	if err := db.placeBackend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// PlaceAttrs carries the fields for creating a place.
type PlaceAttrs struct {
	OsmID         string
	OsmType       string
	Name          string
	CategoryKey   string
	CategoryValue string
	Latitude      *float64
	Longitude     *float64
	Tags          map[string]string
	Address       map[string]string
	Source        map[string]string
}

// PlacePatch carries a partial update. Nil fields are left unchanged.
// Coordinates follow the pair rule: both set replaces them, both nil
// clears them, setting only one leaves them untouched.
type PlacePatch struct {
	OsmType       *string
	Name          *string
	CategoryKey   *string
	CategoryValue *string
	Latitude      *float64
	Longitude     *float64
	Tags          map[string]string
	Address       map[string]string
	Source        map[string]string
	IsActive      *bool
}

// CreatePlace validates and stores a new place, then propagates it to the
// vector index. Propagation failure does not fail the create; the place is
// marked pending and repaired by the reconciler.
// Returns storage.ErrDuplicateKey if the OsmID is already taken.
func (db *Database) CreatePlace(ctx context.Context, attrs PlaceAttrs) (*core.Place, error) {
	coords, err := coordsFromPair(attrs.Latitude, attrs.Longitude)
	if err != nil {
		return nil, err
	}

	place := &core.Place{
		Id:            core.NewPlaceID(),
		OsmID:         attrs.OsmID,
		OsmType:       attrs.OsmType,
		Name:          attrs.Name,
		CategoryKey:   attrs.CategoryKey,
		CategoryValue: attrs.CategoryValue,
		Coordinates:   coords,
		Tags:          attrs.Tags,
		Address:       attrs.Address,
		Source:        attrs.Source,
		IsActive:      true,
	}
	if err := core.ValidatePlace(place); err != nil {
		return nil, err
	}

	if err := db.repo.Create(ctx, place); err != nil {
		return nil, err
	}

	db.propagate(ctx, place)
	return db.repo.GetByID(ctx, place.Id)
}

// GetPlace retrieves an active place by id.
// Returns storage.ErrNotFound for unknown or inactive places.
func (db *Database) GetPlace(ctx context.Context, id string) (*core.Place, error) {
	place, err := db.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !place.IsActive {
		return nil, fmt.Errorf("%w: place %s", storage.ErrNotFound, id)
	}
	return place, nil
}

// UpdatePlace applies a partial update, then propagates the new state to
// the vector index. Returns storage.ErrNotFound for unknown places.
func (db *Database) UpdatePlace(ctx context.Context, id string, patch PlacePatch) (*core.Place, error) {
	place, err := db.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyPatch(place, patch); err != nil {
		return nil, err
	}
	if err := core.ValidatePlace(place); err != nil {
		return nil, err
	}

	if err := db.repo.Update(ctx, place); err != nil {
		return nil, err
	}

	db.propagate(ctx, place)
	return db.repo.GetByID(ctx, id)
}

// DeletePlace removes a place from the canonical store and, best effort,
// from the vector index. The found flag reports whether the place existed;
// deleting a missing place is not an error.
func (db *Database) DeletePlace(ctx context.Context, id string) (bool, error) {
	err := db.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// Canonical delete is committed; index cleanup must not be cancellable.
	// A failure leaves an orphan for the reconciler's prune pass.
	_ = db.coordinator.SyncDelete(context.WithoutCancel(ctx), id)
	return true, nil
}

// SearchPlaces resolves the query through the strategy chain: vector
// similarity, then category, coordinates and name substring. The first
// strategy producing results wins.
func (db *Database) SearchPlaces(ctx context.Context, q *search.Query) ([]*core.SearchResult, error) {
	return db.resolver.Search(ctx, q)
}

// PlaceRepository exposes the canonical store.
func (db *Database) PlaceRepository() storage.PlaceRepository {
	return db.repo
}

// VectorIndex exposes the derived index.
func (db *Database) VectorIndex() storage.VectorIndex {
	return db.index
}

// NewReconciler creates a reconciler over this database's store and index.
func (db *Database) NewReconciler(opts ...indexsync.ReconcilerOption) (*indexsync.Reconciler, error) {
	return indexsync.NewReconciler(db.repo, db.index, db.coordinator, opts...)
}

// NewReindexer creates a reindexer that rebuilds the vector index from the
// canonical store.
func (db *Database) NewReindexer(config *reindex.Config, progress io.Writer) *reindex.Reindexer {
	return reindex.NewReindexer(db.repo, db.index, db.embedder, config, progress)
}

// propagate pushes committed place state into the index. The context is
// detached so a caller cancelling after commit cannot strand the index;
// errors are absorbed, the coordinator logs them and marks the place pending.
func (db *Database) propagate(ctx context.Context, place *core.Place) {
	_ = db.coordinator.SyncUpsert(context.WithoutCancel(ctx), place)
}

// coordsFromPair validates the create-time coordinate pair.
func coordsFromPair(latitude, longitude *float64) (*core.Coordinates, error) {
	if latitude == nil && longitude == nil {
		return nil, nil
	}
	if latitude == nil || longitude == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidPlace, core.ErrPartialCoordinates)
	}
	coords, err := core.NewCoordinates(*latitude, *longitude)
	if err != nil {
		return nil, err
	}
	return &coords, nil
}

// applyPatch applies the partial-update rules to a place.
func applyPatch(place *core.Place, patch PlacePatch) error {
	if patch.OsmType != nil {
		place.OsmType = *patch.OsmType
	}
	if patch.Name != nil {
		place.Name = *patch.Name
	}
	if patch.CategoryKey != nil {
		place.CategoryKey = *patch.CategoryKey
	}
	if patch.CategoryValue != nil {
		place.CategoryValue = *patch.CategoryValue
	}

	switch {
	case patch.Latitude != nil && patch.Longitude != nil:
		coords, err := core.NewCoordinates(*patch.Latitude, *patch.Longitude)
		if err != nil {
			return err
		}
		place.Coordinates = &coords
	case patch.Latitude == nil && patch.Longitude == nil:
		place.Coordinates = nil
	}

	if patch.Tags != nil {
		place.Tags = patch.Tags
	}
	if patch.Address != nil {
		place.Address = patch.Address
	}
	if patch.Source != nil {
		place.Source = patch.Source
	}
	if patch.IsActive != nil {
		place.IsActive = *patch.IsActive
	}
	return nil
}
