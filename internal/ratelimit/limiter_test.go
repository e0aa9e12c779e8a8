package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kiranaflow/kiranaflow/internal/storage"
)

type stubResolver struct {
	org *storage.Organization
	err error
}

func (s stubResolver) GetOrganization(ctx context.Context, orgID string) (*storage.Organization, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.org, nil
}

func newTestLimiter(t *testing.T, tiers Tiers, resolver TierResolver) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, resolver, tiers, nil)
}

func TestAllowPermitsUpToMaxThenBlocks(t *testing.T) {
	l := newTestLimiter(t, Tiers{Window: time.Minute}, stubResolver{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "org_1", 3)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should be allowed", i)
	}

	allowed, err := l.Allow(ctx, "org_1", 3)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, Tiers{Window: time.Minute}, stubResolver{})
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "org_1", 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l.Allow(ctx, "org_2", 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestResolveMaxUsesTierBaseAndReadMultiplier(t *testing.T) {
	resolver := stubResolver{org: &storage.Organization{Tier: storage.TierPro}}
	l := newTestLimiter(t, Tiers{ProMax: 100, ReadMultiplier: 5}, resolver)

	assert := require.New(t)
	assert.Equal(500, l.resolveMax(context.Background(), "org_1", true))
	assert.Equal(100, l.resolveMax(context.Background(), "org_1", false))
}

func TestResolveMaxFallsBackToFreeTierOnLookupError(t *testing.T) {
	resolver := stubResolver{err: assertErr("org lookup failed")}
	l := newTestLimiter(t, Tiers{FreeMax: 10, EnterpriseMax: 1000}, resolver)

	require.Equal(t, 10, l.resolveMax(context.Background(), "org_1", false))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
