// Package search resolves place queries through an ordered chain of
// strategies: vector similarity, category match, coordinate proximity, and
// name substring. The first applicable strategy that produces results wins;
// a vector-stage failure degrades to the non-vector strategies instead of
// failing the search.
package search

import (
	"context"
	"log/slog"

	"github.com/geomind/placedex/ai"
	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

// Resolver runs queries through the strategy chain.
type Resolver struct {
	strategies []strategy
	logger     *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewResolver creates a new resolver.
func NewResolver(
	repository storage.PlaceRepository,
	index storage.VectorIndex,
	embedder ai.Embedder,
	opts ...Option,
) (*Resolver, error) {
	if repository == nil {
		return nil, ErrPlaceRepositoryRequired
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Resolver{
		strategies: []strategy{
			&vectorStrategy{repository: repository, index: index, embedder: embedder},
			&categoryStrategy{repository: repository},
			&coordinateStrategy{repository: repository},
			&nameStrategy{repository: repository},
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Search resolves the query through the strategy chain.
// Returns an empty slice when no strategy applies or none finds anything.
func (r *Resolver) Search(ctx context.Context, q *Query) ([]*core.SearchResult, error) {
	return r.SearchWithMonitor(ctx, q, nil)
}

// SearchWithMonitor resolves the query with monitoring. The monitor
// receives a callback for every strategy decision.
func (r *Resolver) SearchWithMonitor(ctx context.Context, q *Query, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	if err := q.validate(); err != nil {
		return nil, err
	}
	monitor.Start(q)

	for _, s := range r.strategies {
		if !s.applies(q) {
			monitor.StrategySkipped(s.name())
			continue
		}

		results, err := s.execute(ctx, q)
		if err != nil {
			if s.degradable() {
				r.logger.Warn("search strategy failed, falling through",
					"strategy", s.name(), "err", err)
				monitor.StrategyFailed(s.name(), err)
				continue
			}
			r.logger.Error("search strategy failed", "strategy", s.name(), "err", err)
			return nil, err
		}
		if len(results) == 0 {
			monitor.StrategyEmpty(s.name())
			continue
		}

		monitor.StrategySelected(s.name(), len(results))
		monitor.Finish(results)
		return results, nil
	}

	empty := []*core.SearchResult{}
	monitor.Finish(empty)
	return empty, nil
}
