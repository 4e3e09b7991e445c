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


package core

import "fmt"

const (
	// MinLatitude is the lowest valid latitude.
	MinLatitude = -90.0
	// MaxLatitude is the highest valid latitude.
	MaxLatitude = 90.0
	// MinLongitude is the lowest valid longitude.
	MinLongitude = -180.0
	// MaxLongitude is the highest valid longitude.
	MaxLongitude = 180.0
)

// NewCoordinates validates and constructs a geographic position.
// Out-of-range values are rejected here, before any store is touched.
func NewCoordinates(latitude, longitude float64) (Coordinates, error) {
	if latitude < MinLatitude || latitude > MaxLatitude {
		return Coordinates{}, fmt.Errorf("%w: %w: got %v", ErrInvalidPlace, ErrInvalidLatitude, latitude)
	}
	if longitude < MinLongitude || longitude > MaxLongitude {
		return Coordinates{}, fmt.Errorf("%w: %w: got %v", ErrInvalidPlace, ErrInvalidLongitude, longitude)
	}
	return Coordinates{Latitude: latitude, Longitude: longitude}, nil
}

// ValidatePlace validates a Place according to domain rules.
//
// Validation rules:
//   - OsmID must not be empty
//   - Coordinates, when present, must be within geographic bounds
//   - UpdatedAt must not precede CreatedAt
//
// NOT validated:
//   - Name, category and the auxiliary maps (all optional)
//   - Id (empty until assigned at creation)
func ValidatePlace(place *Place) error {
	if place == nil {
		return fmt.Errorf("%w: place is nil", ErrInvalidPlace)
	}

	if place.OsmID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPlace, ErrMissingOsmID)
	}

	if place.Coordinates != nil {
		if _, err := NewCoordinates(place.Coordinates.Latitude, place.Coordinates.Longitude); err != nil {
			return err
		}
	}

	if !place.CreatedAt.IsZero() && place.UpdatedAt.Before(place.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidPlace, ErrInvalidTimestamps)
	}

	return nil
}
