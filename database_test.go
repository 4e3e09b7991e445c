package placedex

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomind/placedex/ai/mock"
	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/search"
	"github.com/geomind/placedex/storage"
)

func newTestDatabase(t *testing.T) (*Database, *mock.MockEmbedder) {
	t.Helper()

	embedder := mock.NewMockEmbedder()
	db, err := NewDatabase("", WithInMemory(), WithEmbedder(embedder))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, embedder
}

func ptr[T any](v T) *T {
	return &v
}

func greenParkAttrs() PlaceAttrs {
	return PlaceAttrs{
		OsmID:         "way/26661896",
		OsmType:       "way",
		Name:          "Green Park",
		CategoryKey:   "leisure",
		CategoryValue: "park",
		Latitude:      ptr(51.5067),
		Longitude:     ptr(-0.1428),
		Tags:          map[string]string{"leisure": "park"},
	}
}

func TestDatabaseCreatePlace(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips a full place", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)
		assert.NotEmpty(t, created.Id)
		assert.True(t, created.IsActive)
		assert.False(t, created.PendingSync)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := db.GetPlace(ctx, created.Id)
		require.NoError(t, err)
		assert.Equal(t, "Green Park", got.Name)
		require.NotNil(t, got.Coordinates)
		assert.InDelta(t, 51.5067, got.Coordinates.Latitude, 1e-9)
	})

	t.Run("rejects duplicate osm ids", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		_, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		_, err = db.CreatePlace(ctx, greenParkAttrs())
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("rejects out-of-range coordinates before writing", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		attrs := greenParkAttrs()
		attrs.Latitude = ptr(91.0)
		_, err := db.CreatePlace(ctx, attrs)
		assert.ErrorIs(t, err, core.ErrInvalidLatitude)

		results, err := db.SearchPlaces(ctx, &search.Query{Text: "Green Park"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("rejects a lone coordinate", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		attrs := greenParkAttrs()
		attrs.Longitude = nil
		_, err := db.CreatePlace(ctx, attrs)
		assert.ErrorIs(t, err, core.ErrPartialCoordinates)
	})

	t.Run("marks pending when the embedder is down", func(t *testing.T) {
		db, embedder := newTestDatabase(t)

		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedder down")
		}

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)
		assert.True(t, created.PendingSync)

		ids, err := db.VectorIndex().ListIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestDatabaseGetPlace(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		_, err := db.GetPlace(ctx, core.NewPlaceID())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("deactivated place reads as missing", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		_, err = db.UpdatePlace(ctx, created.Id, PlacePatch{
			IsActive:  ptr(false),
			Latitude:  ptr(created.Coordinates.Latitude),
			Longitude: ptr(created.Coordinates.Longitude),
		})
		require.NoError(t, err)

		_, err = db.GetPlace(ctx, created.Id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestDatabaseUpdatePlace(t *testing.T) {
	ctx := context.Background()

	t.Run("nil fields are left unchanged", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		updated, err := db.UpdatePlace(ctx, created.Id, PlacePatch{
			Name:      ptr("The Green Park"),
			Latitude:  ptr(created.Coordinates.Latitude),
			Longitude: ptr(created.Coordinates.Longitude),
		})
		require.NoError(t, err)
		assert.Equal(t, "The Green Park", updated.Name)
		assert.Equal(t, "leisure", updated.CategoryKey)
		assert.Equal(t, created.OsmID, updated.OsmID)
		assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
	})

	t.Run("omitting both coordinates clears them", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)
		require.NotNil(t, created.Coordinates)

		updated, err := db.UpdatePlace(ctx, created.Id, PlacePatch{})
		require.NoError(t, err)
		assert.Nil(t, updated.Coordinates)
	})

	t.Run("replaces both coordinates together", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		updated, err := db.UpdatePlace(ctx, created.Id, PlacePatch{
			Latitude:  ptr(55.9525),
			Longitude: ptr(-3.1633),
		})
		require.NoError(t, err)
		require.NotNil(t, updated.Coordinates)
		assert.InDelta(t, 55.9525, updated.Coordinates.Latitude, 1e-9)
	})

	t.Run("rejects out-of-range replacement", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		_, err = db.UpdatePlace(ctx, created.Id, PlacePatch{
			Latitude:  ptr(12.0),
			Longitude: ptr(181.0),
		})
		assert.ErrorIs(t, err, core.ErrInvalidLongitude)

		got, err := db.GetPlace(ctx, created.Id)
		require.NoError(t, err)
		require.NotNil(t, got.Coordinates)
		assert.InDelta(t, 51.5067, got.Coordinates.Latitude, 1e-9)
	})

	t.Run("replaces maps when provided", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		updated, err := db.UpdatePlace(ctx, created.Id, PlacePatch{
			Latitude:  ptr(created.Coordinates.Latitude),
			Longitude: ptr(created.Coordinates.Longitude),
			Tags:      map[string]string{"leisure": "garden"},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"leisure": "garden"}, updated.Tags)
	})

	t.Run("unknown id", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		_, err := db.UpdatePlace(ctx, core.NewPlaceID(), PlacePatch{Name: ptr("x")})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestDatabaseDeletePlace(t *testing.T) {
	ctx := context.Background()

	t.Run("delete is idempotent", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		found, err := db.DeletePlace(ctx, created.Id)
		require.NoError(t, err)
		assert.True(t, found)

		found, err = db.DeletePlace(ctx, created.Id)
		require.NoError(t, err)
		assert.False(t, found)

		_, err = db.GetPlace(ctx, created.Id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("removes the vector record", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		ids, err := db.VectorIndex().ListIDs(ctx)
		require.NoError(t, err)
		require.Len(t, ids, 1)

		_, err = db.DeletePlace(ctx, created.Id)
		require.NoError(t, err)

		ids, err = db.VectorIndex().ListIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestDatabaseSearchPlaces(t *testing.T) {
	ctx := context.Background()

	t.Run("text query resolves through the vector index", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		results, err := db.SearchPlaces(ctx, &search.Query{Text: "Green Park"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, created.Id, results[0].Place.Id)
		require.NotNil(t, results[0].Score)
		assert.InDelta(t, 1.0, *results[0].Score, 1e-5)
	})

	t.Run("falls back to name search when embedding fails", func(t *testing.T) {
		db, embedder := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedder down")
		}

		results, err := db.SearchPlaces(ctx, &search.Query{Text: "green"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, created.Id, results[0].Place.Id)
		assert.Nil(t, results[0].Score)
	})

	t.Run("coordinate query finds nearby places", func(t *testing.T) {
		db, _ := newTestDatabase(t)

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)

		far := greenParkAttrs()
		far.OsmID = "way/4677507"
		far.Name = "Holyrood Park"
		far.Latitude = ptr(55.9525)
		far.Longitude = ptr(-3.1633)
		_, err = db.CreatePlace(ctx, far)
		require.NoError(t, err)

		results, err := db.SearchPlaces(ctx, &search.Query{
			Latitude:  ptr(51.51),
			Longitude: ptr(-0.14),
			RadiusKm:  5,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, created.Id, results[0].Place.Id)
	})
}

func TestDatabaseEventualConsistency(t *testing.T) {
	ctx := context.Background()

	t.Run("reconciler repairs a place created during an outage", func(t *testing.T) {
		db, embedder := newTestDatabase(t)

		var failing atomic.Bool
		failing.Store(true)
		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			if failing.Load() {
				return nil, errors.New("embedder down")
			}
			return mock.NewMockEmbedder().EmbedText(ctx, text)
		}

		created, err := db.CreatePlace(ctx, greenParkAttrs())
		require.NoError(t, err)
		require.True(t, created.PendingSync)

		failing.Store(false)

		reconciler, err := db.NewReconciler()
		require.NoError(t, err)
		defer reconciler.Stop()

		stats, err := reconciler.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Retried)

		got, err := db.GetPlace(ctx, created.Id)
		require.NoError(t, err)
		assert.False(t, got.PendingSync)

		results, err := db.SearchPlaces(ctx, &search.Query{Text: "Green Park"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.NotNil(t, results[0].Score)
	})

	t.Run("reindexer rebuilds the index from the canonical store", func(t *testing.T) {
		db, embedder := newTestDatabase(t)

		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedder down")
		}

		for _, attrs := range []PlaceAttrs{greenParkAttrs(), {
			OsmID: "way/174935", Name: "Hyde Park", CategoryKey: "leisure", CategoryValue: "park",
		}} {
			_, err := db.CreatePlace(ctx, attrs)
			require.NoError(t, err)
		}

		embedder.EmbedTextFunc = nil
		embedder.EmbedTextsFunc = nil

		require.NoError(t, db.NewReindexer(nil, io.Discard).Run(ctx))

		ids, err := db.VectorIndex().ListIDs(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 2)

		pending, err := db.PlaceRepository().ListPendingSync(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
