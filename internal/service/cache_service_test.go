package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCacheRepo struct {
	*fakeCacheRepo
	failPattern string
}

func (b *brokenCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return errors.New("redis: connection pool timeout")
}

func (b *brokenCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	if pattern == b.failPattern {
		return errors.New("redis: scan failed")
	}
	return b.fakeCacheRepo.DeleteByPattern(ctx, pattern)
}

func TestCacheServiceHitMissAndMetrics(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newFakeCacheRepo(), metrics, 0, nil, true)
	ctx := context.Background()

	var out map[string]int
	hit, err := svc.Get(ctx, "catalog:classes", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "catalog:classes", map[string]int{"open": 3}, 0))
	hit, err = svc.Get(ctx, "catalog:classes", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out["open"])

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.CacheHits)
	assert.EqualValues(t, 1, snap.CacheMisses)
}

func TestCacheServiceBackendErrorFallsThrough(t *testing.T) {
	svc := NewCacheService(&brokenCacheRepo{fakeCacheRepo: newFakeCacheRepo()}, nil, time.Minute, nil, true)

	var out map[string]int
	hit, err := svc.Get(context.Background(), "dash:admin", &out)
	assert.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidateContinuesAfterFailure(t *testing.T) {
	repo := &brokenCacheRepo{fakeCacheRepo: newFakeCacheRepo(), failPattern: "catalog:*"}
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, "dash:admin", 1, 0))

	err := svc.Invalidate(ctx, "catalog:*", "dash:*")
	assert.EqualError(t, err, "redis: scan failed")
	assert.Equal(t, []string{"dash:*"}, repo.invalidated)
	assert.Empty(t, repo.entries)
}

func TestCacheServiceDisabledAndNil(t *testing.T) {
	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.NoError(t, nilSvc.Invalidate(context.Background(), "dash:*"))

	repo := newFakeCacheRepo()
	off := NewCacheService(repo, nil, time.Minute, nil, false)
	require.NoError(t, off.Set(context.Background(), "k", 1, 0))
	assert.Empty(t, repo.entries)
}
