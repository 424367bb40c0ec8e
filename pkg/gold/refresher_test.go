package gold

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
)

type fakeGoldStore struct {
	populated     bool
	hasIndex      bool
	refreshErr    error
	concurrentErr error
	statsErr      error

	refreshCalls []bool
	rowCount     int64
}

func (s *fakeGoldStore) Refresh(ctx context.Context, concurrent bool) error {
	if s.refreshErr != nil {
		return s.refreshErr
	}
	if concurrent && s.concurrentErr != nil {
		return s.concurrentErr
	}
	s.refreshCalls = append(s.refreshCalls, concurrent)
	return nil
}

func (s *fakeGoldStore) HasConcurrentIndex(ctx context.Context) (bool, error) {
	return s.hasIndex, nil
}

func (s *fakeGoldStore) IsPopulated(ctx context.Context) (bool, error) {
	return s.populated, nil
}

func (s *fakeGoldStore) Stats(ctx context.Context) (*models.GoldStats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return &models.GoldStats{RowCount: s.rowCount}, nil
}

type fakeLocker struct {
	held     bool
	acquired int
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	if l.held {
		return fernredis.ErrLockNotAcquired
	}
	l.acquired++
	return fn()
}

func TestRefreshConcurrent(t *testing.T) {
	store := &fakeGoldStore{populated: true, hasIndex: true, rowCount: 42}
	r := NewRefresher(store, nil, logging.NewTestLogger(), Options{})

	result, err := r.Refresh(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, models.RefreshModeConcurrent, result.Mode)
	assert.False(t, result.FellBack)
	assert.Equal(t, int64(42), result.RowCount)
	assert.Equal(t, []bool{true}, store.refreshCalls)
}

func TestRefreshFallsBackWhenUnpopulated(t *testing.T) {
	store := &fakeGoldStore{populated: false, hasIndex: true}
	r := NewRefresher(store, nil, logging.NewTestLogger(), Options{})

	result, err := r.Refresh(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, models.RefreshModeBlocking, result.Mode)
	assert.True(t, result.FellBack)
	assert.Equal(t, []bool{false}, store.refreshCalls)
}

func TestRefreshFallsBackWithoutUniqueIndex(t *testing.T) {
	store := &fakeGoldStore{populated: true, hasIndex: false}
	r := NewRefresher(store, nil, logging.NewTestLogger(), Options{})

	result, err := r.Refresh(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, models.RefreshModeBlocking, result.Mode)
	assert.True(t, result.FellBack)
}

func TestRefreshBlockingRequested(t *testing.T) {
	store := &fakeGoldStore{populated: true, hasIndex: true}
	r := NewRefresher(store, nil, logging.NewTestLogger(), Options{})

	result, err := r.Refresh(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, models.RefreshModeBlocking, result.Mode)
	assert.False(t, result.FellBack)
}

func TestRefreshConcurrentFailureRetriesBlocking(t *testing.T) {
	store := &fakeGoldStore{populated: true, hasIndex: true, concurrentErr: assert.AnError, rowCount: 7}
	r := NewRefresher(store, nil, logging.NewTestLogger(), Options{})

	result, err := r.Refresh(context.Background(), true)
	require.NoError(t, err)

	// The concurrent attempt failed at runtime; the projection is still
	// published, so a single blocking retry completes the refresh.
	assert.Equal(t, models.RefreshModeBlocking, result.Mode)
	assert.True(t, result.FellBack)
	assert.Equal(t, int64(7), result.RowCount)
	assert.Equal(t, []bool{false}, store.refreshCalls)
}

func TestRefreshErrorKeepsOldProjection(t *testing.T) {
	store := &fakeGoldStore{populated: true, hasIndex: true, refreshErr: assert.AnError}
	r := NewRefresher(store, nil, logging.NewTestLogger(), Options{})

	result, err := r.Refresh(context.Background(), true)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, fernerrors.IsRefreshError(err))
	assert.Empty(t, store.refreshCalls)
}

func TestRefreshSingleFlight(t *testing.T) {
	store := &fakeGoldStore{populated: true, hasIndex: true}
	locker := &fakeLocker{held: true}
	r := NewRefresher(store, locker, logging.NewTestLogger(), Options{})

	_, err := r.Refresh(context.Background(), true)
	assert.ErrorIs(t, err, ErrRefreshInFlight)
	assert.Empty(t, store.refreshCalls)
}

func TestRefreshAcquiresLock(t *testing.T) {
	store := &fakeGoldStore{populated: true, hasIndex: true}
	locker := &fakeLocker{}
	r := NewRefresher(store, locker, logging.NewTestLogger(), Options{})

	result, err := r.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, models.RefreshModeConcurrent, result.Mode)
}

func TestStats(t *testing.T) {
	store := &fakeGoldStore{rowCount: 7}
	r := NewRefresher(store, nil, logging.NewTestLogger(), Options{})

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.RowCount)
}
