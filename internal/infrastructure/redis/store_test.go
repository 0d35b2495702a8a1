package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/portfolio-contact/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "test:otp:"

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, prefix, time.Minute), mr
}

func entry(identity, challenge string, expires time.Time) *domain.VerificationEntry {
	return &domain.VerificationEntry{
		Identity:    identity,
		ChallengeID: challenge,
		CodeHash:    "$2a$04$hash",
		IssuedAt:    expires.Add(-5 * time.Minute).UTC(),
		ExpiresAt:   expires.UTC(),
	}
}

func TestStore_PutGetRemove(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Millisecond)

	require.NoError(t, s.Put(ctx, entry("a@x.io", "c1", exp)))
	assert.True(t, mr.Exists(prefix+"a@x.io"))
	assert.Greater(t, mr.TTL(prefix+"a@x.io"), 5*time.Minute)

	got, err := s.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ChallengeID)
	assert.True(t, got.ExpiresAt.Equal(exp))

	require.NoError(t, s.Remove(ctx, "a@x.io"))
	_, err = s.Get(ctx, "a@x.io")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_PutReplaces(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	require.NoError(t, s.Put(ctx, entry("a@x.io", "c1", exp)))
	require.NoError(t, s.Put(ctx, entry("a@x.io", "c2", exp)))

	got, err := s.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ChallengeID)
}

func TestStore_Consume(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, entry("a@x.io", "c1", time.Now().Add(time.Minute))))

	assert.True(t, errors.Is(s.Consume(ctx, "a@x.io", "other", time.Now()), domain.ErrNotFound))

	until := time.Now().Add(10 * time.Minute).Truncate(time.Millisecond)
	require.NoError(t, s.Consume(ctx, "a@x.io", "c1", until))

	got, err := s.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, got.Consumed)
	assert.True(t, got.ExpiresAt.Equal(until))

	assert.True(t, errors.Is(s.Consume(ctx, "a@x.io", "c1", until), domain.ErrNotFound))
	assert.True(t, errors.Is(s.Consume(ctx, "missing@x.io", "c1", until), domain.ErrNotFound))
}

func TestStore_RemoveIfKeepsNewerChallenge(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)
	require.NoError(t, s.Put(ctx, entry("a@x.io", "c2", exp)))

	assert.True(t, errors.Is(s.RemoveIf(ctx, "a@x.io", "c1"), domain.ErrNotFound))
	assert.True(t, mr.Exists(prefix+"a@x.io"))

	require.NoError(t, s.RemoveIf(ctx, "a@x.io", "c2"))
	assert.False(t, mr.Exists(prefix+"a@x.io"))
	assert.True(t, errors.Is(s.RemoveIf(ctx, "a@x.io", "c2"), domain.ErrNotFound))
}

func TestStore_SetClaimedKeepsTTL(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, entry("a@x.io", "c1", time.Now().Add(time.Minute))))

	assert.True(t, errors.Is(s.SetClaimed(ctx, "a@x.io", "c1", true), domain.ErrNotFound))

	until := time.Now().Add(10 * time.Minute)
	require.NoError(t, s.Consume(ctx, "a@x.io", "c1", until))
	ttl := mr.TTL(prefix + "a@x.io")

	require.NoError(t, s.SetClaimed(ctx, "a@x.io", "c1", true))
	assert.True(t, errors.Is(s.SetClaimed(ctx, "a@x.io", "c1", true), domain.ErrNotFound))
	assert.Equal(t, ttl, mr.TTL(prefix+"a@x.io"))

	got, err := s.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.True(t, got.Claimed)

	require.NoError(t, s.SetClaimed(ctx, "a@x.io", "c1", false))
	got, err = s.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.False(t, got.Claimed)
	assert.True(t, errors.Is(s.SetClaimed(ctx, "missing@x.io", "c1", true), domain.ErrNotFound))
}

func TestStore_SweepExpired(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, entry("old@x.io", "c1", now.Add(-time.Second))))
	require.NoError(t, s.Put(ctx, entry("new@x.io", "c2", now.Add(time.Minute))))
	mr.Set("unrelated", "value")

	n, err := s.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(prefix+"old@x.io"))
	assert.True(t, mr.Exists(prefix+"new@x.io"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestStore_Ping(t *testing.T) {
	s, mr := newStore(t)
	require.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Options{Addr: addr})
	assert.ErrorContains(t, err, "connect to redis")
}
