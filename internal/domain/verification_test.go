package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerificationEntry_State(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pending := &VerificationEntry{ExpiresAt: now.Add(time.Minute)}
	verified := &VerificationEntry{ExpiresAt: now.Add(time.Minute), Consumed: true}
	lapsed := &VerificationEntry{ExpiresAt: now.Add(-time.Second)}

	assert.Equal(t, StatePending, pending.State(now))
	assert.Equal(t, StateVerified, verified.State(now))
	assert.Equal(t, StateExpired, lapsed.State(now))
}

func TestVerificationEntry_Expired_BoundaryIsInclusive(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &VerificationEntry{ExpiresAt: now}
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(time.Nanosecond)))
}

func TestNormalizeIdentity(t *testing.T) {
	assert.Equal(t, "a@example.com", NormalizeIdentity("  A@Example.COM "))
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		KindOK:            nil,
		KindConfiguration: fmt.Errorf("smtp auth: %w", ErrConfiguration),
		KindValidation:    fmt.Errorf("bad email: %w", ErrValidation),
		KindNotFound:      fmt.Errorf("no code: %w", ErrNotFound),
		KindExpired:       fmt.Errorf("late: %w", ErrExpired),
		KindMismatch:      fmt.Errorf("wrong: %w", ErrMismatch),
		KindDispatch:      fmt.Errorf("timeout: %w", ErrDispatch),
		KindNotVerified:   fmt.Errorf("gate: %w", ErrNotVerified),
		KindUnknown:       errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Kind(err), want)
	}
}

func TestAsDispatchError(t *testing.T) {
	assert.NoError(t, AsDispatchError(nil))

	cfgErr := fmt.Errorf("bad key: %w", ErrConfiguration)
	assert.Same(t, cfgErr, AsDispatchError(cfgErr))

	raw := errors.New("connection reset")
	wrapped := AsDispatchError(raw)
	assert.ErrorIs(t, wrapped, ErrDispatch)
	assert.ErrorIs(t, wrapped, raw)
	assert.Equal(t, "connection reset: email dispatch failed", wrapped.Error())
}
