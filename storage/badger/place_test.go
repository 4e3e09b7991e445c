package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

func newTestRepo(t *testing.T) storage.PlaceRepository {
	t.Helper()
	repo, backend, err := NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func testPlace(osmID, name string) *core.Place {
	return &core.Place{
		OsmID:    osmID,
		OsmType:  "node",
		Name:     name,
		IsActive: true,
	}
}

func TestPlaceRepositoryCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns id and timestamps", func(t *testing.T) {
		repo := newTestRepo(t)
		place := testPlace("node/1", "Green Park")

		require.NoError(t, repo.Create(ctx, place))
		assert.NotEmpty(t, place.Id)
		assert.False(t, place.CreatedAt.IsZero())
		assert.False(t, place.UpdatedAt.IsZero())
	})

	t.Run("rejects duplicate osm id", func(t *testing.T) {
		repo := newTestRepo(t)
		require.NoError(t, repo.Create(ctx, testPlace("node/1", "First")))

		err := repo.Create(ctx, testPlace("node/1", "Second"))
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("round trips through GetByID and GetByOsmID", func(t *testing.T) {
		repo := newTestRepo(t)
		place := testPlace("node/240109189", "Green Park")
		place.CategoryKey = "leisure"
		place.CategoryValue = "park"
		place.Coordinates = &core.Coordinates{Latitude: 51.5067, Longitude: -0.1428}
		place.Tags = map[string]string{"wheelchair": "yes"}
		require.NoError(t, repo.Create(ctx, place))

		byID, err := repo.GetByID(ctx, place.Id)
		require.NoError(t, err)
		assert.Equal(t, place.OsmID, byID.OsmID)
		assert.Equal(t, "Green Park", byID.Name)
		require.NotNil(t, byID.Coordinates)
		assert.Equal(t, 51.5067, byID.Coordinates.Latitude)

		byOsm, err := repo.GetByOsmID(ctx, "node/240109189")
		require.NoError(t, err)
		assert.Equal(t, place.Id, byOsm.Id)
	})

	t.Run("get of unknown id returns not found", func(t *testing.T) {
		repo := newTestRepo(t)
		_, err := repo.GetByID(ctx, "no-such-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestPlaceRepositoryUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("updates fields and bumps UpdatedAt", func(t *testing.T) {
		repo := newTestRepo(t)
		place := testPlace("node/1", "Old Name")
		require.NoError(t, repo.Create(ctx, place))
		created := place.UpdatedAt

		place.Name = "New Name"
		require.NoError(t, repo.Update(ctx, place))

		got, err := repo.GetByID(ctx, place.Id)
		require.NoError(t, err)
		assert.Equal(t, "New Name", got.Name)
		assert.False(t, got.UpdatedAt.Before(created))
	})

	t.Run("update of unknown place returns not found", func(t *testing.T) {
		repo := newTestRepo(t)
		place := testPlace("node/1", "Ghost")
		place.Id = core.NewPlaceID()
		err := repo.Update(ctx, place)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestPlaceRepositoryDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("removes record and indices", func(t *testing.T) {
		repo := newTestRepo(t)
		place := testPlace("node/1", "Doomed")
		require.NoError(t, repo.Create(ctx, place))

		require.NoError(t, repo.Delete(ctx, place.Id))

		_, err := repo.GetByID(ctx, place.Id)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repo.GetByOsmID(ctx, "node/1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// OsmID is reusable after delete
		assert.NoError(t, repo.Create(ctx, testPlace("node/1", "Successor")))
	})

	t.Run("delete of unknown id returns not found", func(t *testing.T) {
		repo := newTestRepo(t)
		err := repo.Delete(ctx, "no-such-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestPlaceRepositorySearchByName(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(ctx, testPlace("node/1", "Green Park")))
	require.NoError(t, repo.Create(ctx, testPlace("node/2", "Hyde Park")))
	require.NoError(t, repo.Create(ctx, testPlace("node/3", "British Museum")))
	inactive := testPlace("node/4", "Closed Park")
	inactive.IsActive = false
	require.NoError(t, repo.Create(ctx, inactive))

	t.Run("case-insensitive substring match", func(t *testing.T) {
		results, err := repo.SearchByName(ctx, "PARK", 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Green Park", results[0].Name)
		assert.Equal(t, "Hyde Park", results[1].Name)
	})

	t.Run("respects limit", func(t *testing.T) {
		results, err := repo.SearchByName(ctx, "park", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Green Park", results[0].Name)
	})

	t.Run("skips inactive places", func(t *testing.T) {
		results, err := repo.SearchByName(ctx, "closed", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("no match returns empty", func(t *testing.T) {
		results, err := repo.SearchByName(ctx, "cathedral", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestPlaceRepositorySearchByCategory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	park := testPlace("node/1", "Green Park")
	park.CategoryKey, park.CategoryValue = "leisure", "park"
	garden := testPlace("node/2", "Kew Gardens")
	garden.CategoryKey, garden.CategoryValue = "leisure", "garden"
	museum := testPlace("node/3", "British Museum")
	museum.CategoryKey, museum.CategoryValue = "tourism", "museum"
	require.NoError(t, repo.Create(ctx, park))
	require.NoError(t, repo.Create(ctx, garden))
	require.NoError(t, repo.Create(ctx, museum))

	t.Run("matches on key only", func(t *testing.T) {
		results, err := repo.SearchByCategory(ctx, "leisure", "", 10, 0)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("matches on key and value", func(t *testing.T) {
		results, err := repo.SearchByCategory(ctx, "leisure", "park", 10, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Green Park", results[0].Name)
	})

	t.Run("applies offset before limit", func(t *testing.T) {
		results, err := repo.SearchByCategory(ctx, "leisure", "", 10, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Kew Gardens", results[0].Name)
	})
}

func TestPlaceRepositorySearchByCoordinates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	greenPark := testPlace("node/1", "Green Park")
	greenPark.Coordinates = &core.Coordinates{Latitude: 51.5067, Longitude: -0.1428}
	hydePark := testPlace("node/2", "Hyde Park")
	hydePark.Coordinates = &core.Coordinates{Latitude: 51.5073, Longitude: -0.1657}
	edinburgh := testPlace("node/3", "Holyrood Park")
	edinburgh.Coordinates = &core.Coordinates{Latitude: 55.9441, Longitude: -3.1618}
	unlocated := testPlace("node/4", "Nowhere")
	require.NoError(t, repo.Create(ctx, greenPark))
	require.NoError(t, repo.Create(ctx, hydePark))
	require.NoError(t, repo.Create(ctx, edinburgh))
	require.NoError(t, repo.Create(ctx, unlocated))

	t.Run("finds places within radius", func(t *testing.T) {
		results, err := repo.SearchByCoordinates(ctx, 51.5067, -0.1428, 5, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Green Park", results[0].Name)
		assert.Equal(t, "Hyde Park", results[1].Name)
	})

	t.Run("excludes places beyond radius", func(t *testing.T) {
		results, err := repo.SearchByCoordinates(ctx, 51.5067, -0.1428, 1, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Green Park", results[0].Name)
	})

	t.Run("rejects non-positive radius", func(t *testing.T) {
		_, err := repo.SearchByCoordinates(ctx, 51.5, -0.14, 0, 10)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})
}

func TestPlaceRepositoryPendingSync(t *testing.T) {
	ctx := context.Background()

	t.Run("mark and list and clear", func(t *testing.T) {
		repo := newTestRepo(t)
		place := testPlace("node/1", "Green Park")
		require.NoError(t, repo.Create(ctx, place))

		require.NoError(t, repo.MarkPendingSync(ctx, place.Id))

		pending, err := repo.ListPendingSync(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, place.Id, pending[0].Id)
		assert.True(t, pending[0].PendingSync)

		require.NoError(t, repo.ClearPendingSync(ctx, place.Id))

		pending, err = repo.ListPendingSync(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		got, err := repo.GetByID(ctx, place.Id)
		require.NoError(t, err)
		assert.False(t, got.PendingSync)
	})

	t.Run("create with pending flag lists immediately", func(t *testing.T) {
		repo := newTestRepo(t)
		place := testPlace("node/1", "Green Park")
		place.PendingSync = true
		require.NoError(t, repo.Create(ctx, place))

		pending, err := repo.ListPendingSync(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
	})

	t.Run("clear on missing place is a no-op", func(t *testing.T) {
		repo := newTestRepo(t)
		assert.NoError(t, repo.ClearPendingSync(ctx, "no-such-id"))
	})

	t.Run("mark on missing place returns not found", func(t *testing.T) {
		repo := newTestRepo(t)
		assert.ErrorIs(t, repo.MarkPendingSync(ctx, "no-such-id"), storage.ErrNotFound)
	})
}

func TestPlaceRepositoryListActive(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, repo.Create(ctx, testPlace("node/"+name, name)))
	}
	inactive := testPlace("node/D", "D")
	inactive.IsActive = false
	require.NoError(t, repo.Create(ctx, inactive))

	all, err := repo.ListActive(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "A", all[0].Name)
	assert.Equal(t, "C", all[2].Name)

	page, err := repo.ListActive(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "B", page[0].Name)
}
