package search

import (
	"fmt"

	"github.com/geomind/placedex/core"
)

const (
	// DefaultLimit is the result count used when a query asks for none.
	DefaultLimit = 10
	// MaxLimit caps the result count of any single query.
	MaxLimit = 100
)

// Query describes one search request. Every field is optional; which fields
// are set decides which strategies can run.
type Query struct {
	// Text is free text, used for vector search and name matching.
	Text string

	// Vector is a precomputed query embedding. When set, Text is not
	// embedded.
	Vector []float32

	// CategoryKey and CategoryValue select by exact classification. During
	// vector search they act as a payload filter instead.
	CategoryKey   string
	CategoryValue string

	// Latitude, Longitude and RadiusKm select by proximity. All three must
	// be set for the coordinate strategy to apply.
	Latitude  *float64
	Longitude *float64
	RadiusKm  float64

	// Limit defaults to DefaultLimit and is capped at MaxLimit.
	Limit  int
	Offset int

	// ScoreThreshold drops vector matches scoring below it. Must be in
	// [0, 1].
	ScoreThreshold float32
}

// validate checks ranges and normalizes paging in place.
func (q *Query) validate() error {
	if q.ScoreThreshold < 0 || q.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score threshold must be between 0 and 1, got %v", ErrInvalidQuery, q.ScoreThreshold)
	}
	if (q.Latitude == nil) != (q.Longitude == nil) {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, core.ErrPartialCoordinates)
	}
	if q.Latitude != nil {
		if _, err := core.NewCoordinates(*q.Latitude, *q.Longitude); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		if q.RadiusKm < 0 {
			return fmt.Errorf("%w: radius must not be negative, got %v", ErrInvalidQuery, q.RadiusKm)
		}
	}

	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return nil
}

// hasCoordinates reports whether the proximity parameters are complete.
func (q *Query) hasCoordinates() bool {
	return q.Latitude != nil && q.Longitude != nil && q.RadiusKm > 0
}
