package core

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// PlaceholderText is embedded in place of a name when a place has none.
// Every place must be embeddable, named or not.
const PlaceholderText = "Unknown place"

// NewPlaceID generates a new unique place identifier.
func NewPlaceID() string {
	return uuid.NewString()
}

// Coordinates is a validated geographic position.
// Construct via NewCoordinates to enforce the latitude/longitude bounds.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// kmPerDegree is the planar approximation used for radius queries:
// one degree of latitude or longitude counts as ~111 km. Good enough at
// city scale, explicitly not geodesically exact.
const kmPerDegree = 111.0

// PlanarDistanceKm returns the approximate distance to another position
// using the flat 111 km/degree scaling.
func (c Coordinates) PlanarDistanceKm(o Coordinates) float64 {
	dLat := (c.Latitude - o.Latitude) * kmPerDegree
	dLon := (c.Longitude - o.Longitude) * kmPerDegree
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// Place is a point of interest sourced from an upstream geographic dataset.
// The record store owns the canonical lifecycle; the vector index only ever
// holds a derived projection of it.
type Place struct {
	Id            string
	OsmID         string // upstream identifier, unique across all places
	OsmType       string
	Name          string
	CategoryKey   string
	CategoryValue string
	Coordinates   *Coordinates
	Tags          map[string]string
	Address       map[string]string
	Source        map[string]string
	IsActive      bool
	PendingSync   bool // vector propagation owed; cleared by the reconciler
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EmbeddingText returns the text used to embed this place.
func (p *Place) EmbeddingText() string {
	if p.Name == "" {
		return PlaceholderText
	}
	return p.Name
}

// BuildVectorPayload produces the denormalized payload stored alongside the
// place's embedding for filtering during vector search.
func (p *Place) BuildVectorPayload() VectorPayload {
	payload := VectorPayload{
		Name:          p.Name,
		CategoryKey:   p.CategoryKey,
		CategoryValue: p.CategoryValue,
		Tags:          p.Tags,
	}
	if p.Coordinates != nil {
		payload.HasCoordinates = true
		payload.Latitude = p.Coordinates.Latitude
		payload.Longitude = p.Coordinates.Longitude
	}
	return payload
}

// VectorPayload is the subset of place fields that vector search filters
// can see. It never feeds back into the canonical record.
type VectorPayload struct {
	Name           string
	CategoryKey    string
	CategoryValue  string
	HasCoordinates bool
	Latitude       float64
	Longitude      float64
	Tags           map[string]string
}

// VectorRecord is the derived projection of a place held by the vector
// index, keyed by the owning place's id. UpdatedAt carries the source
// place's timestamp so a delayed retry can never overwrite newer state.
type VectorRecord struct {
	PlaceID   string
	Vector    []float32
	Payload   VectorPayload
	UpdatedAt time.Time
}

// SearchResult pairs a place with an optional similarity score.
// Score is nil for results produced by non-vector strategies.
type SearchResult struct {
	Place *Place
	Score *float32
}
