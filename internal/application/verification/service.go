// Package verification runs the email OTP challenge: issue a code, check a submitted
// code, and answer whether an address is currently verified.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portfolio-contact/internal/domain"
	"github.com/portfolio-contact/internal/monitoring"
	"github.com/portfolio-contact/internal/pkg/id"
	"github.com/portfolio-contact/internal/pkg/otp"
	"github.com/portfolio-contact/internal/pkg/validate"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTTL             = 5 * time.Minute
	defaultVerifiedTTL     = 10 * time.Minute
	defaultDispatchTimeout = 10 * time.Second
)

// Store keeps at most one VerificationEntry per identity.
type Store interface {
	Put(ctx context.Context, e *domain.VerificationEntry) error
	// Get returns domain.ErrNotFound when no entry exists, expired or not.
	Get(ctx context.Context, identity string) (*domain.VerificationEntry, error)
	Remove(ctx context.Context, identity string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	// Consume marks the entry consumed and moves its expiry to verifiedUntil, but only
	// while the stored entry still carries challengeID and is unconsumed. Otherwise
	// it returns domain.ErrNotFound.
	Consume(ctx context.Context, identity, challengeID string, verifiedUntil time.Time) error
	// RemoveIf deletes the entry only while it still carries challengeID, and
	// returns domain.ErrNotFound otherwise.
	RemoveIf(ctx context.Context, identity, challengeID string) error
	// SetClaimed sets the claim flag on a consumed entry that still carries
	// challengeID and whose flag is currently !claimed. Otherwise it returns
	// domain.ErrNotFound.
	SetClaimed(ctx context.Context, identity, challengeID string, claimed bool) error
}

// CodeSender delivers a verification code to its recipient.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, identity, code string, ttl time.Duration) error
}

// CodeGenerator produces fresh codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// Challenge describes a code that was sent.
type Challenge struct {
	ID        string
	Identity  string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

type Service interface {
	RequestCode(ctx context.Context, identity string) (*Challenge, error)
	SubmitCode(ctx context.Context, identity, candidate string) error
	State(ctx context.Context, identity string) (domain.VerificationState, error)
	IsVerified(ctx context.Context, identity string) (bool, error)
	Reset(ctx context.Context, identity string) error
	// Claim takes the current verification for one use and returns its challenge
	// id. Only one caller wins a given verification, whichever instance it runs on.
	Claim(ctx context.Context, identity string) (string, error)
	// Release hands a claimed verification back, e.g. after a failed send.
	Release(ctx context.Context, identity, challengeID string) error
	// Redeem ends a claimed verification. A newer challenge is left alone.
	Redeem(ctx context.Context, identity, challengeID string) error
	Sweep(ctx context.Context) (int, error)
}

type service struct {
	store           Store
	sender          CodeSender
	generator       CodeGenerator
	metrics         *monitoring.Metrics
	log             *zap.Logger
	now             func() time.Time
	ttl             time.Duration
	verifiedTTL     time.Duration
	dispatchTimeout time.Duration
	hashCost        int
}

// ServiceDeps wires a Service. Zero values fall back to defaults; Store and Sender are required.
type ServiceDeps struct {
	Store           Store
	Sender          CodeSender
	Generator       CodeGenerator
	Metrics         *monitoring.Metrics
	Logger          *zap.Logger
	Now             func() time.Time
	TTL             time.Duration
	VerifiedTTL     time.Duration
	DispatchTimeout time.Duration
	HashCost        int
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		store:           deps.Store,
		sender:          deps.Sender,
		generator:       deps.Generator,
		metrics:         deps.Metrics,
		log:             deps.Logger,
		now:             deps.Now,
		ttl:             deps.TTL,
		verifiedTTL:     deps.VerifiedTTL,
		dispatchTimeout: deps.DispatchTimeout,
		hashCost:        deps.HashCost,
	}
	if s.generator == nil {
		s.generator = otp.Generator{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.verifiedTTL <= 0 {
		s.verifiedTTL = defaultVerifiedTTL
	}
	if s.dispatchTimeout <= 0 {
		s.dispatchTimeout = defaultDispatchTimeout
	}
	if s.hashCost == 0 {
		s.hashCost = bcrypt.DefaultCost
	}
	return s
}

// RequestCode sends a fresh code and only then records it, replacing any earlier
// challenge. When sending fails nothing is written and an older code stays usable.
func (s *service) RequestCode(ctx context.Context, identity string) (ch *Challenge, err error) {
	defer func() { s.metrics.ObserveOTPRequest(err) }()

	identity, err = s.identity(identity)
	if err != nil {
		return nil, err
	}
	code, err := s.generator.Generate()
	if err != nil {
		return nil, err
	}
	hash, err := otp.Hash(code, s.hashCost)
	if err != nil {
		return nil, err
	}

	issuedAt := s.now()
	if err := s.dispatch(ctx, identity, code); err != nil {
		s.log.Warn("verification code not sent",
			zap.String("identity", identity), zap.String("kind", domain.Kind(err)), zap.Error(err))
		return nil, err
	}

	entry := &domain.VerificationEntry{
		Identity:    identity,
		ChallengeID: id.NewAt(issuedAt),
		CodeHash:    hash,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(s.ttl),
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	s.log.Info("verification code sent",
		zap.String("identity", identity), zap.String("challenge_id", entry.ChallengeID))

	return &Challenge{
		ID:        entry.ChallengeID,
		Identity:  identity,
		ExpiresAt: entry.ExpiresAt,
		ExpiresIn: s.ttl,
	}, nil
}

func (s *service) dispatch(ctx context.Context, identity, code string) (err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveDispatch("verification_code", started, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	err = s.sender.SendVerificationCode(ctx, identity, code, s.ttl)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("send timed out after %s: %w", s.dispatchTimeout, domain.ErrDispatch)
	}
	return domain.AsDispatchError(err)
}

// SubmitCode checks candidate against the outstanding challenge. A wrong code leaves
// the challenge in place so the visitor can retry until it expires.
func (s *service) SubmitCode(ctx context.Context, identity, candidate string) (err error) {
	defer func() { s.metrics.ObserveOTPVerification(err) }()

	identity, err = s.identity(identity)
	if err != nil {
		return err
	}
	if err := validate.Code(candidate); err != nil {
		return err
	}

	entry, err := s.store.Get(ctx, identity)
	if err != nil {
		return err
	}
	if entry.Consumed {
		return fmt.Errorf("code already used: %w", domain.ErrNotFound)
	}
	now := s.now()
	if entry.Expired(now) {
		err := s.store.RemoveIf(ctx, identity, entry.ChallengeID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("remove expired challenge", zap.String("identity", identity), zap.Error(err))
		}
		return fmt.Errorf("challenge %s: %w", entry.ChallengeID, domain.ErrExpired)
	}
	if !otp.Matches(entry.CodeHash, candidate) {
		s.log.Info("verification code mismatch",
			zap.String("identity", identity), zap.String("challenge_id", entry.ChallengeID))
		return fmt.Errorf("challenge %s: %w", entry.ChallengeID, domain.ErrMismatch)
	}
	if err := s.store.Consume(ctx, identity, entry.ChallengeID, now.Add(s.verifiedTTL)); err != nil {
		return err
	}
	s.log.Info("email verified",
		zap.String("identity", identity), zap.String("challenge_id", entry.ChallengeID))
	return nil
}

func (s *service) State(ctx context.Context, identity string) (domain.VerificationState, error) {
	identity, err := s.identity(identity)
	if err != nil {
		return "", err
	}
	entry, err := s.store.Get(ctx, identity)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StateNone, nil
	}
	if err != nil {
		return "", err
	}
	return entry.State(s.now()), nil
}

func (s *service) IsVerified(ctx context.Context, identity string) (bool, error) {
	state, err := s.State(ctx, identity)
	if err != nil {
		return false, err
	}
	return state == domain.StateVerified, nil
}

func (s *service) Reset(ctx context.Context, identity string) error {
	return s.store.Remove(ctx, domain.NormalizeIdentity(identity))
}

func (s *service) Claim(ctx context.Context, identity string) (string, error) {
	identity, err := s.identity(identity)
	if err != nil {
		return "", err
	}
	entry, err := s.store.Get(ctx, identity)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", identity, domain.ErrNotVerified)
	}
	if err != nil {
		return "", err
	}
	if entry.Claimed || entry.State(s.now()) != domain.StateVerified {
		return "", fmt.Errorf("%s: %w", identity, domain.ErrNotVerified)
	}
	err = s.store.SetClaimed(ctx, identity, entry.ChallengeID, true)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", identity, domain.ErrNotVerified)
	}
	if err != nil {
		return "", err
	}
	return entry.ChallengeID, nil
}

func (s *service) Release(ctx context.Context, identity, challengeID string) error {
	err := s.store.SetClaimed(ctx, domain.NormalizeIdentity(identity), challengeID, false)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (s *service) Redeem(ctx context.Context, identity, challengeID string) error {
	err := s.store.RemoveIf(ctx, domain.NormalizeIdentity(identity), challengeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (s *service) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.SweepExpired(ctx, s.now())
	s.metrics.AddSwept(n)
	if err != nil {
		return n, fmt.Errorf("sweep expired challenges: %w", err)
	}
	return n, nil
}

func (s *service) identity(raw string) (string, error) {
	identity := domain.NormalizeIdentity(raw)
	if err := validate.Email(identity); err != nil {
		return "", err
	}
	return identity, nil
}
