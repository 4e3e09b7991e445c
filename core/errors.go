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

import "errors"

// Domain validation errors
var (
	// ErrInvalidPlace indicates a Place failed validation.
	ErrInvalidPlace = errors.New("invalid place")

	// ErrMissingOsmID indicates the required upstream identifier is absent.
	ErrMissingOsmID = errors.New("osm id cannot be empty")

	// ErrInvalidLatitude indicates a latitude outside [-90, 90].
	ErrInvalidLatitude = errors.New("latitude must be between -90 and 90")

	// ErrInvalidLongitude indicates a longitude outside [-180, 180].
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")

	// ErrPartialCoordinates indicates only one of latitude/longitude was supplied.
	ErrPartialCoordinates = errors.New("latitude and longitude must be set together")

	// ErrInvalidTimestamps indicates updated_at precedes created_at.
	ErrInvalidTimestamps = errors.New("updated_at cannot precede created_at")
)
