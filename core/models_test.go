package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingText(t *testing.T) {
	t.Run("uses name when present", func(t *testing.T) {
		p := &Place{Name: "Green Park"}
		assert.Equal(t, "Green Park", p.EmbeddingText())
	})

	t.Run("falls back to placeholder for unnamed places", func(t *testing.T) {
		p := &Place{}
		assert.Equal(t, PlaceholderText, p.EmbeddingText())
	})
}

func TestPlanarDistanceKm(t *testing.T) {
	t.Run("zero for identical points", func(t *testing.T) {
		a := Coordinates{Latitude: 51.5, Longitude: -0.14}
		assert.Zero(t, a.PlanarDistanceKm(a))
	})

	t.Run("one degree of latitude is 111 km", func(t *testing.T) {
		a := Coordinates{Latitude: 50.0, Longitude: 10.0}
		b := Coordinates{Latitude: 51.0, Longitude: 10.0}
		assert.InDelta(t, 111.0, a.PlanarDistanceKm(b), 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Coordinates{Latitude: 48.85, Longitude: 2.35}
		b := Coordinates{Latitude: 52.52, Longitude: 13.40}
		assert.Equal(t, a.PlanarDistanceKm(b), b.PlanarDistanceKm(a))
	})
}

func TestBuildVectorPayload(t *testing.T) {
	t.Run("carries coordinates when set", func(t *testing.T) {
		p := &Place{
			Name:          "Green Park",
			CategoryKey:   "leisure",
			CategoryValue: "park",
			Coordinates:   &Coordinates{Latitude: 51.5067, Longitude: -0.1428},
			Tags:          map[string]string{"wheelchair": "yes"},
		}

		payload := p.BuildVectorPayload()
		require.True(t, payload.HasCoordinates)
		assert.Equal(t, 51.5067, payload.Latitude)
		assert.Equal(t, -0.1428, payload.Longitude)
		assert.Equal(t, "leisure", payload.CategoryKey)
		assert.Equal(t, "park", payload.CategoryValue)
		assert.Equal(t, "yes", payload.Tags["wheelchair"])
	})

	t.Run("omits coordinates when unset", func(t *testing.T) {
		p := &Place{Name: "Somewhere"}

		payload := p.BuildVectorPayload()
		assert.False(t, payload.HasCoordinates)
		assert.Zero(t, payload.Latitude)
		assert.Zero(t, payload.Longitude)
	})
}

func TestNewPlaceID(t *testing.T) {
	a := NewPlaceID()
	b := NewPlaceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
