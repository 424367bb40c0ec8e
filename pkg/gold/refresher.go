package gold

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// lockKey serializes refreshes across all instances.
const lockKey = "gold:refresh"

// Store is the projection storage surface.
type Store interface {
	Refresh(ctx context.Context, concurrent bool) error
	HasConcurrentIndex(ctx context.Context) (bool, error)
	IsPopulated(ctx context.Context) (bool, error)
	Stats(ctx context.Context) (*models.GoldStats, error)
}

// Locker serializes refreshes. A nil locker disables serialization;
// concurrent refreshes are then wasted work, not a correctness hazard.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// ErrRefreshInFlight is returned when another refresh holds the lock.
var ErrRefreshInFlight = errors.New("gold refresh already in flight")

// Options tune refresher behavior.
type Options struct {
	LockTTL time.Duration
}

// Refresher recomputes the deduplicated gold projection. Concurrent mode
// keeps readers on the old rows until the rebuilt projection swaps in;
// blocking mode is the fallback when the view cannot support it yet.
type Refresher struct {
	store  Store
	locker Locker
	logger ectologger.Logger
	opts   Options
}

// NewRefresher creates a new refresher
func NewRefresher(store Store, locker Locker, logger ectologger.Logger, opts Options) *Refresher {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Refresher{
		store:  store,
		locker: locker,
		logger: logger,
		opts:   opts,
	}
}

// Refresh rebuilds the projection, serializing with other refreshers
// when a locker is configured. A caller losing the lock race gets
// ErrRefreshInFlight rather than queueing.
func (r *Refresher) Refresh(ctx context.Context, concurrent bool) (*models.RefreshResult, error) {
	ctx, span := tracing.StartSpan(ctx, "gold.Refresher.Refresh")
	defer span.End()

	if r.locker == nil {
		return r.refresh(ctx, concurrent)
	}

	var result *models.RefreshResult
	err := r.locker.WithLock(ctx, lockKey, r.opts.LockTTL, func() error {
		var refreshErr error
		result, refreshErr = r.refresh(ctx, concurrent)
		return refreshErr
	})
	if errors.Is(err, fernredis.ErrLockNotAcquired) {
		return nil, ErrRefreshInFlight
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *Refresher) refresh(ctx context.Context, concurrent bool) (*models.RefreshResult, error) {
	mode := models.RefreshModeBlocking
	fellBack := false

	if concurrent {
		ok, reason, err := r.canRefreshConcurrently(ctx)
		if err != nil {
			return nil, fernerrors.WrapRefreshError(string(models.RefreshModeConcurrent), err)
		}
		if ok {
			mode = models.RefreshModeConcurrent
		} else {
			fellBack = true
			r.logger.WithContext(ctx).WithField("reason", reason).Warn("Concurrent refresh unavailable; falling back to blocking refresh")
		}
	}

	start := time.Now()
	if err := r.store.Refresh(ctx, mode == models.RefreshModeConcurrent); err != nil {
		if mode != models.RefreshModeConcurrent {
			// The previous projection remains published; refresh commits
			// only on full success.
			return nil, fernerrors.WrapRefreshError(string(mode), err)
		}

		// A concurrent rebuild can fail on transient swap validation.
		// The old rows are still published, so retry once in blocking
		// mode rather than leaving the projection stale.
		r.logger.WithContext(ctx).WithError(err).Warn("Concurrent refresh failed; retrying in blocking mode")
		mode = models.RefreshModeBlocking
		fellBack = true
		start = time.Now()
		if err := r.store.Refresh(ctx, false); err != nil {
			return nil, fernerrors.WrapRefreshError(string(mode), err)
		}
	}
	duration := time.Since(start)

	stats, err := r.store.Stats(ctx)
	if err != nil {
		return nil, fernerrors.WrapRefreshError(string(mode), err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"mode":     mode,
		"fellback": fellBack,
		"rows":     stats.RowCount,
		"duration": duration.String(),
	}).Info("Refreshed gold projection")

	return &models.RefreshResult{
		Mode:     mode,
		FellBack: fellBack,
		Duration: duration,
		RowCount: stats.RowCount,
	}, nil
}

// canRefreshConcurrently verifies the two Postgres preconditions: the
// view has been populated at least once and carries a unique index.
func (r *Refresher) canRefreshConcurrently(ctx context.Context) (bool, string, error) {
	populated, err := r.store.IsPopulated(ctx)
	if err != nil {
		return false, "", err
	}
	if !populated {
		return false, "view has never been populated", nil
	}

	hasIndex, err := r.store.HasConcurrentIndex(ctx)
	if err != nil {
		return false, "", err
	}
	if !hasIndex {
		return false, "view has no unique index", nil
	}

	return true, "", nil
}

// Stats reports on the currently published projection.
func (r *Refresher) Stats(ctx context.Context) (*models.GoldStats, error) {
	ctx, span := tracing.StartSpan(ctx, "gold.Refresher.Stats")
	defer span.End()

	return r.store.Stats(ctx)
}
