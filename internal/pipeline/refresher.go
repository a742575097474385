package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
	"github.com/couchcryptid/snih-data-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrMetadataUnavailable is returned while no metadata snapshot has been harvested yet.
var ErrMetadataUnavailable = errors.New("metadata not harvested yet")

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Refresher keeps a metadata snapshot current for serve mode. Readers get
// the last successful snapshot; a failed refresh keeps the previous one.
type Refresher struct {
	harvester *Harvester
	facility  *FacilityBuilder
	interval  time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger

	current atomic.Pointer[Metadata]
}

func NewRefresher(h *Harvester, fb *FacilityBuilder, interval time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Refresher {
	return &Refresher{
		harvester: h,
		facility:  fb,
		interval:  interval,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// CheckReadiness returns nil once a metadata snapshot is available.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if r.current.Load() == nil {
		return ErrMetadataUnavailable
	}
	return nil
}

// Current returns the latest snapshot, or nil before the first harvest.
func (r *Refresher) Current() *Metadata {
	return r.current.Load()
}

// Refresh harvests metadata once and swaps it in on success.
func (r *Refresher) Refresh(ctx context.Context) error {
	md, err := r.harvester.Metadata(ctx)
	if err != nil {
		r.metrics.MetadataRefreshes.WithLabelValues("error").Inc()
		return err
	}
	r.current.Store(md)
	r.metrics.MetadataRefreshes.WithLabelValues("success").Inc()
	return nil
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// Until the first success, failures are retried with exponential backoff.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("metadata refresher started", "interval", r.interval)
	backoff := initialBackoff

	for r.current.Load() == nil {
		err := r.Refresh(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Error("initial metadata harvest failed", "error", err, "retry_in", backoff)
		if !sleepWithContext(ctx, r.clock, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("metadata refresher stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("metadata refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

// Facility synthesizes a facility record from the current snapshot.
func (r *Refresher) Facility(_ context.Context, code int64) (domain.FacilityRecord, error) {
	md := r.current.Load()
	if md == nil {
		return domain.FacilityRecord{}, ErrMetadataUnavailable
	}
	return r.facility.Build(code, md.Catalog)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
