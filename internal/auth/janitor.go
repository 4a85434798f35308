// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package auth

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is anything with a rate-limited expiry sweep.
type Sweeper interface {
	PruneExpired()
}

// Janitor periodically runs expiry sweeps in the background, independent of
// request handling. The sweeps themselves are rate-limited internally, so
// the janitor competing with request-path calls never doubles the work.
type Janitor struct {
	interval time.Duration
	sweepers []Sweeper
	done     chan struct{}
}

// NewJanitor builds a janitor that sweeps each sweeper every interval.
func NewJanitor(interval time.Duration, sweepers ...Sweeper) *Janitor {
	return &Janitor{
		interval: interval,
		sweepers: sweepers,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. The loop exits when ctx is cancelled;
// Wait blocks until the in-flight sweep, if any, has finished, so state is
// never cleaned up mid-sweep during shutdown.
func (j *Janitor) Start(ctx context.Context) {
	go func() {
		defer close(j.done)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("janitor stopping")
				return
			case <-ticker.C:
				for _, s := range j.sweepers {
					s.PruneExpired()
				}
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (j *Janitor) Wait() {
	<-j.done
}
