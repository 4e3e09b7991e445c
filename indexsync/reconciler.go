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


package indexsync

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/geomind/placedex/core"
	"github.com/geomind/placedex/storage"
)

const (
	defaultInterval    = 30 * time.Second
	defaultBatchSize   = 100
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
)

// Stats summarizes one reconciliation pass.
type Stats struct {
	Retried int // pending places successfully propagated
	Failed  int // pending places that still could not be propagated
	Pruned  int // orphaned vector records removed
}

// Reconciler is the background sweep that repairs the vector index:
// it retries propagation for pending places and prunes records whose
// owning place is gone or inactive. Safe to run concurrently with writers.
type Reconciler struct {
	repository  storage.PlaceRepository
	index       storage.VectorIndex
	coordinator *Coordinator
	pool        *ants.Pool
	logger      *slog.Logger

	interval    time.Duration
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler) error

// WithInterval sets the sweep interval for the background loop.
func WithInterval(interval time.Duration) ReconcilerOption {
	return func(r *Reconciler) error {
		if interval > 0 {
			r.interval = interval
		}
		return nil
	}
}

// WithBatchSize sets how many pending places one pass picks up.
func WithBatchSize(size int) ReconcilerOption {
	return func(r *Reconciler) error {
		if size > 0 {
			r.batchSize = size
		}
		return nil
	}
}

// WithRetry sets the per-place retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) ReconcilerOption {
	return func(r *Reconciler) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		r.maxAttempts = maxAttempts
		r.baseDelay = baseDelay
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent propagation.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) ReconcilerOption {
	return func(r *Reconciler) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithReconcilerLogger sets a custom logger.
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// NewReconciler creates a reconciler over the given store, index and
// coordinator.
func NewReconciler(repository storage.PlaceRepository, index storage.VectorIndex, coordinator *Coordinator, opts ...ReconcilerOption) (*Reconciler, error) {
	if repository == nil {
		return nil, ErrPlaceRepositoryRequired
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if coordinator == nil {
		return nil, errors.New("coordinator is required")
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	r := &Reconciler{
		repository:  repository,
		index:       index,
		coordinator: coordinator,
		pool:        pool,
		logger:      slog.Default().With("component", "reconciler"),
		interval:    defaultInterval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			pool.Release()
			return nil, optErr
		}
	}
	return r, nil
}

// Start launches the background sweep loop. Calling Start twice is a no-op.
func (r *Reconciler) Start() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.started {
		return
	}
	r.started = true

	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				stats, err := r.RunOnce(context.Background())
				if err != nil {
					r.logger.Error("reconciliation pass failed", "err", err)
					continue
				}
				if stats.Retried > 0 || stats.Failed > 0 || stats.Pruned > 0 {
					r.logger.Info("reconciliation pass complete",
						"retried", stats.Retried, "failed", stats.Failed, "pruned", stats.Pruned)
				}
			}
		}
	}()
}

// Stop halts the background loop and releases the worker pool.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.startMu.Lock()
		started := r.started
		r.startMu.Unlock()
		if started {
			<-r.doneCh
		}
		r.pool.Release()
	})
}

// RunOnce performs a single reconciliation pass: retry propagation for
// pending places, then prune orphaned vector records.
func (r *Reconciler) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	retried, failed, err := r.retryPending(ctx)
	if err != nil {
		return stats, err
	}
	stats.Retried = retried
	stats.Failed = failed

	pruned, err := r.pruneOrphans(ctx)
	if err != nil {
		return stats, err
	}
	stats.Pruned = pruned
	return stats, nil
}

// retryPending pushes every pending place through the coordinator with
// retry, on the worker pool.
func (r *Reconciler) retryPending(ctx context.Context) (retried, failed int, err error) {
	pending, err := r.repository.ListPendingSync(ctx, r.batchSize)
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	var wg sync.WaitGroup
	var okCount, failCount atomic.Int64
	for _, place := range pending {
		wg.Add(1)
		submitErr := r.pool.Submit(func() {
			defer wg.Done()
			if r.syncPendingPlace(ctx, place) {
				okCount.Add(1)
			} else {
				failCount.Add(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return int(okCount.Load()), int(failCount.Load()), submitErr
		}
	}
	wg.Wait()
	return int(okCount.Load()), int(failCount.Load()), nil
}

// syncPendingPlace propagates one pending place. Inactive places get their
// vector record dropped instead of refreshed.
func (r *Reconciler) syncPendingPlace(ctx context.Context, place *core.Place) bool {
	if !place.IsActive {
		err := RetryWithBackoff(ctx, func() error {
			return r.index.Delete(ctx, place.Id)
		}, r.maxAttempts, r.baseDelay)
		if err != nil {
			r.logger.Warn("failed to drop inactive place from index", "place_id", place.Id, "err", err)
			return false
		}
		if err := r.repository.ClearPendingSync(ctx, place.Id); err != nil {
			r.logger.Error("failed to clear pending marker", "place_id", place.Id, "err", err)
		}
		return true
	}

	err := RetryWithBackoff(ctx, func() error {
		return r.coordinator.SyncUpsert(ctx, place)
	}, r.maxAttempts, r.baseDelay)
	if err != nil {
		r.logger.Warn("pending place still failing propagation", "place_id", place.Id, "err", err)
		return false
	}
	return true
}

// pruneOrphans removes vector records whose owning place is gone or
// inactive.
func (r *Reconciler) pruneOrphans(ctx context.Context) (int, error) {
	ids, err := r.index.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	var orphans []string
	for _, id := range ids {
		place, err := r.repository.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				orphans = append(orphans, id)
				continue
			}
			return 0, err
		}
		if !place.IsActive {
			orphans = append(orphans, id)
		}
	}

	if len(orphans) == 0 {
		return 0, nil
	}
	if err := r.index.DeleteBatch(ctx, orphans); err != nil {
		return 0, err
	}
	return len(orphans), nil
}
