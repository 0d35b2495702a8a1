// Package redis keeps verification entries in Redis so several API instances share
// one view of every challenge.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/portfolio-contact/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Options configures the connection used by NewClient.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and checks the connection before returning.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// Store holds one JSON document per identity under prefix+identity. Keys expire on
// their own shortly after the entry lapses; the grace period leaves time for a late
// submission to be told the code expired instead of not found.
type Store struct {
	rdb    *goredis.Client
	prefix string
	grace  time.Duration
}

func NewStore(rdb *goredis.Client, prefix string, grace time.Duration) *Store {
	return &Store{rdb: rdb, prefix: prefix, grace: grace}
}

func (s *Store) key(identity string) string { return s.prefix + identity }

func (s *Store) Put(ctx context.Context, e *domain.VerificationEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal verification entry: %w", err)
	}
	key := s.key(e.Identity)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, b, 0)
		pipe.PExpireAt(ctx, key, e.ExpiresAt.Add(s.grace))
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, identity string) (*domain.VerificationEntry, error) {
	return s.get(ctx, s.rdb, s.key(identity))
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (s *Store) get(ctx context.Context, c getter, key string) (*domain.VerificationEntry, error) {
	b, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("verification entry: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	var e domain.VerificationEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &e, nil
}

func (s *Store) Remove(ctx context.Context, identity string) error {
	return s.rdb.Del(ctx, s.key(identity)).Err()
}

// Consume flips the entry to consumed inside WATCH/MULTI, so a concurrent Put or
// Consume on the same key aborts this one.
func (s *Store) Consume(ctx context.Context, identity, challengeID string, verifiedUntil time.Time) error {
	key := s.key(identity)
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		e, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		if e.ChallengeID != challengeID || e.Consumed {
			return fmt.Errorf("challenge %s no longer current: %w", challengeID, domain.ErrNotFound)
		}
		e.Consumed = true
		e.ExpiresAt = verifiedUntil
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal verification entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.PExpireAt(ctx, key, verifiedUntil.Add(s.grace))
			return nil
		})
		return err
	}, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("challenge %s changed concurrently: %w", challengeID, domain.ErrNotFound)
	}
	return err
}

// RemoveIf deletes the key only while it still holds challengeID.
func (s *Store) RemoveIf(ctx context.Context, identity, challengeID string) error {
	key := s.key(identity)
	return s.update(ctx, key, challengeID, func(tx *goredis.Tx, e *domain.VerificationEntry) error {
		if e.ChallengeID != challengeID {
			return fmt.Errorf("challenge %s no longer current: %w", challengeID, domain.ErrNotFound)
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	})
}

// SetClaimed flips the claim on a consumed entry that still holds challengeID.
func (s *Store) SetClaimed(ctx context.Context, identity, challengeID string, claimed bool) error {
	key := s.key(identity)
	return s.update(ctx, key, challengeID, func(tx *goredis.Tx, e *domain.VerificationEntry) error {
		if e.ChallengeID != challengeID || !e.Consumed || e.Claimed == claimed {
			return fmt.Errorf("challenge %s not claimable: %w", challengeID, domain.ErrNotFound)
		}
		e.Claimed = claimed
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal verification entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, b, goredis.KeepTTL)
			return nil
		})
		return err
	})
}

// update runs fn on the current entry under WATCH. A concurrent write to the key
// aborts the transaction and reads as the challenge no longer being current.
func (s *Store) update(ctx context.Context, key, challengeID string, fn func(*goredis.Tx, *domain.VerificationEntry) error) error {
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		e, err := s.get(ctx, tx, key)
		if err != nil {
			return err
		}
		return fn(tx, e)
	}, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("challenge %s changed concurrently: %w", challengeID, domain.ErrNotFound)
	}
	return err
}

// SweepExpired scans the prefix and deletes lapsed entries. Each delete is guarded by
// WATCH so an entry replaced mid-sweep survives.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			e, err := s.get(ctx, tx, key)
			if err != nil {
				return err
			}
			if !e.Expired(now) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err == nil {
				n++
			}
			return err
		}, key)
		switch {
		case err == nil, errors.Is(err, domain.ErrNotFound), errors.Is(err, goredis.TxFailedErr):
		default:
			return n, fmt.Errorf("sweep %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("scan %s*: %w", s.prefix, err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
