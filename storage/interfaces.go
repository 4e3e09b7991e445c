package storage

import (
	"context"

	"github.com/geomind/placedex/core"
)

// PlaceRepository is the canonical store for places. It owns the full
// lifecycle of every record; the vector index only ever holds a derived
// projection. Implementations must be thread-safe and support concurrent
// access.
type PlaceRepository interface {
	// Create persists a new place.
	// Returns ErrDuplicateKey if a place with the same OsmID already exists.
	Create(ctx context.Context, place *core.Place) error

	// GetByID retrieves a single place by its id.
	// Returns ErrNotFound if the place doesn't exist.
	GetByID(ctx context.Context, id string) (*core.Place, error)

	// GetByOsmID retrieves a single place by its upstream identifier.
	// Returns ErrNotFound if no place carries the given OsmID.
	GetByOsmID(ctx context.Context, osmID string) (*core.Place, error)

	// Update replaces an existing place record.
	// Returns ErrNotFound if the place doesn't exist.
	Update(ctx context.Context, place *core.Place) error

	// Delete removes a place and its index entries.
	// Returns ErrNotFound if the place doesn't exist.
	Delete(ctx context.Context, id string) error

	// SearchByName finds active places whose name contains the given
	// substring, case-insensitively, in creation order.
	SearchByName(ctx context.Context, substring string, limit int) ([]*core.Place, error)

	// SearchByCategory finds active places matching the given category key
	// and/or value exactly. Empty key or value means "any". Results are in
	// creation order, offset applied before limit.
	SearchByCategory(ctx context.Context, key, value string, limit, offset int) ([]*core.Place, error)

	// SearchByCoordinates finds active geolocated places within radiusKm of
	// the given point, using the planar 111 km/degree approximation.
	// Results are in creation order.
	SearchByCoordinates(ctx context.Context, latitude, longitude, radiusKm float64, limit int) ([]*core.Place, error)

	// ListActive pages through active places in creation order.
	ListActive(ctx context.Context, limit, offset int) ([]*core.Place, error)

	// MarkPendingSync records that the place's vector projection is owed.
	// Returns ErrNotFound if the place doesn't exist.
	MarkPendingSync(ctx context.Context, id string) error

	// ClearPendingSync removes the pending marker. Clearing a place that is
	// not pending is a no-op.
	ClearPendingSync(ctx context.Context, id string) error

	// ListPendingSync returns up to limit places still awaiting vector
	// propagation.
	ListPendingSync(ctx context.Context, limit int) ([]*core.Place, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// VectorMatch is a single vector search hit.
type VectorMatch struct {
	PlaceID string
	Score   float32
}

// VectorFilter restricts a vector search to records whose payload matches.
// Zero-value fields are not applied.
type VectorFilter struct {
	CategoryKey   string
	CategoryValue string
}

// Matches reports whether the payload satisfies every set field.
func (f VectorFilter) Matches(payload core.VectorPayload) bool {
	if f.CategoryKey != "" && payload.CategoryKey != f.CategoryKey {
		return false
	}
	if f.CategoryValue != "" && payload.CategoryValue != f.CategoryValue {
		return false
	}
	return true
}

// IsZero reports whether the filter applies no restriction.
func (f VectorFilter) IsZero() bool {
	return f.CategoryKey == "" && f.CategoryValue == ""
}

// VectorIndex is the derived store of place embeddings. It holds at most one
// record per place and gives no transactional guarantees relative to the
// canonical store. Implementations must be thread-safe.
type VectorIndex interface {
	// Upsert writes a vector record, keyed by the owning place's id.
	// A record whose UpdatedAt is older than the stored one is discarded.
	Upsert(ctx context.Context, record *core.VectorRecord) error

	// UpsertBatch upserts many records with bounded parallelism.
	UpsertBatch(ctx context.Context, records []*core.VectorRecord) error

	// Search returns up to limit matches ordered by descending cosine
	// similarity, dropping scores below minScore and records the filter
	// rejects.
	Search(ctx context.Context, vector []float32, limit int, minScore float32, filter VectorFilter) ([]VectorMatch, error)

	// Delete removes the record for the given place id, if present.
	Delete(ctx context.Context, placeID string) error

	// DeleteBatch removes records for the given place ids.
	DeleteBatch(ctx context.Context, placeIDs []string) error

	// ListIDs returns the ids of every place currently indexed.
	ListIDs(ctx context.Context) ([]string, error)

	// Close closes the index backend and releases resources.
	Close() error
}
