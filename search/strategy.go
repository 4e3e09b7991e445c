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


package search

import (
	"context"
	"errors"

	"github.com/geomind/placedex/ai"
	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

// strategy is one way of answering a query. Strategies run in a fixed
// order; the first applicable one returning results wins.
type strategy interface {
	// name identifies the strategy for monitoring and logs.
	name() string
	// applies reports whether the query carries the fields this strategy
	// needs.
	applies(q *Query) bool
	// execute runs the strategy against a validated query.
	execute(ctx context.Context, q *Query) ([]*core.SearchResult, error)
	// degradable strategies may fail without failing the search; the
	// resolver logs the error and falls through to the next strategy.
	degradable() bool
}

// vectorStrategy answers text or vector queries by similarity over the
// derived index, then resolves matches back to canonical places. Category
// fields become a payload filter rather than a separate stage.
type vectorStrategy struct {
	repository storage.PlaceRepository
	index      storage.VectorIndex
	embedder   ai.Embedder
}

func (s *vectorStrategy) name() string     { return "vector" }
func (s *vectorStrategy) degradable() bool { return true }

func (s *vectorStrategy) applies(q *Query) bool {
	return len(q.Vector) > 0 || q.Text != ""
}

func (s *vectorStrategy) execute(ctx context.Context, q *Query) ([]*core.SearchResult, error) {
	vec := q.Vector
	if len(vec) == 0 {
		var err error
		vec, err = s.embedder.EmbedText(ctx, q.Text)
		if err != nil {
			return nil, err
		}
	}

	filter := storage.VectorFilter{
		CategoryKey:   q.CategoryKey,
		CategoryValue: q.CategoryValue,
	}
	matches, err := s.index.Search(ctx, vec, q.Limit+q.Offset, q.ScoreThreshold, filter)
	if err != nil {
		return nil, err
	}
	if q.Offset > 0 {
		if q.Offset >= len(matches) {
			return nil, nil
		}
		matches = matches[q.Offset:]
	}

	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		place, err := s.repository.GetByID(ctx, match.PlaceID)
		if err != nil {
			// The index may briefly hold records for deleted places
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !place.IsActive {
			continue
		}
		score := match.Score
		results = append(results, &core.SearchResult{Place: place, Score: &score})
	}
	return results, nil
}

// categoryStrategy answers queries by exact classification match.
type categoryStrategy struct {
	repository storage.PlaceRepository
}

func (s *categoryStrategy) name() string     { return "category" }
func (s *categoryStrategy) degradable() bool { return false }

func (s *categoryStrategy) applies(q *Query) bool {
	return q.CategoryKey != "" || q.CategoryValue != ""
}

func (s *categoryStrategy) execute(ctx context.Context, q *Query) ([]*core.SearchResult, error) {
	places, err := s.repository.SearchByCategory(ctx, q.CategoryKey, q.CategoryValue, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	return unscoredResults(places), nil
}

// coordinateStrategy answers queries by planar proximity.
type coordinateStrategy struct {
	repository storage.PlaceRepository
}

func (s *coordinateStrategy) name() string     { return "coordinates" }
func (s *coordinateStrategy) degradable() bool { return false }

func (s *coordinateStrategy) applies(q *Query) bool {
	return q.hasCoordinates()
}

func (s *coordinateStrategy) execute(ctx context.Context, q *Query) ([]*core.SearchResult, error) {
	places, err := s.repository.SearchByCoordinates(ctx, *q.Latitude, *q.Longitude, q.RadiusKm, q.Limit+q.Offset)
	if err != nil {
		return nil, err
	}
	return unscoredResults(applyOffset(places, q.Offset)), nil
}

// nameStrategy is the last resort: case-insensitive substring match on the
// place name.
type nameStrategy struct {
	repository storage.PlaceRepository
}

func (s *nameStrategy) name() string     { return "name" }
func (s *nameStrategy) degradable() bool { return false }

func (s *nameStrategy) applies(q *Query) bool {
	return q.Text != ""
}

func (s *nameStrategy) execute(ctx context.Context, q *Query) ([]*core.SearchResult, error) {
	places, err := s.repository.SearchByName(ctx, q.Text, q.Limit+q.Offset)
	if err != nil {
		return nil, err
	}
	return unscoredResults(applyOffset(places, q.Offset)), nil
}

func applyOffset(places []*core.Place, offset int) []*core.Place {
	if offset <= 0 {
		return places
	}
	if offset >= len(places) {
		return nil
	}
	return places[offset:]
}

func unscoredResults(places []*core.Place) []*core.SearchResult {
	results := make([]*core.SearchResult, 0, len(places))
	for _, place := range places {
		results = append(results, &core.SearchResult{Place: place})
	}
	return results
}
