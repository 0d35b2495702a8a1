package contact

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/portfolio-contact/internal/application/verification"
	"github.com/portfolio-contact/internal/domain"
	"github.com/portfolio-contact/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Claim(ctx context.Context, identity string) (string, error) {
	args := m.Called(ctx, identity)
	return args.String(0), args.Error(1)
}
func (m *mockVerifier) Release(ctx context.Context, identity, challengeID string) error {
	return m.Called(ctx, identity, challengeID).Error(0)
}
func (m *mockVerifier) Redeem(ctx context.Context, identity, challengeID string) error {
	return m.Called(ctx, identity, challengeID).Error(0)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendContactMessage(ctx context.Context, sub domain.ContactSubmission) error {
	return m.Called(ctx, sub).Error(0)
}

type mockAlerter struct{ mock.Mock }

func (m *mockAlerter) AlertNewMessage(ctx context.Context, sub domain.ContactSubmission) error {
	return m.Called(ctx, sub).Error(0)
}

// --- helpers ---

var submittedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return submittedAt }

func baseSubmission() domain.ContactSubmission {
	return domain.ContactSubmission{
		SenderName:  " Ada Lovelace ",
		SenderEmail: "Ada@Example.com",
		Subject:     "",
		Body:        "Loved the portfolio.",
	}
}

// --- Submit ---

func TestSubmit_NotVerified(t *testing.T) {
	v := &mockVerifier{}
	v.On("Claim", mock.Anything, "ada@example.com").
		Return("", errors.Join(errors.New("ada@example.com"), domain.ErrNotVerified))
	s := &mockSender{}

	svc := NewService(ServiceDeps{Verifier: v, Sender: s})
	_, err := svc.Submit(context.Background(), baseSubmission())

	assert.True(t, errors.Is(err, domain.ErrNotVerified))
	s.AssertNotCalled(t, "SendContactMessage", mock.Anything, mock.Anything)
	v.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_ValidationBeforeVerification(t *testing.T) {
	cases := map[string]func(*domain.ContactSubmission){
		"missing name":    func(s *domain.ContactSubmission) { s.SenderName = "  " },
		"missing email":   func(s *domain.ContactSubmission) { s.SenderEmail = "" },
		"malformed email": func(s *domain.ContactSubmission) { s.SenderEmail = "ada-at-example" },
		"missing body":    func(s *domain.ContactSubmission) { s.Body = "\n\t" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			v := &mockVerifier{}
			svc := NewService(ServiceDeps{Verifier: v, Sender: &mockSender{}})
			sub := baseSubmission()
			mutate(&sub)

			_, err := svc.Submit(context.Background(), sub)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			v.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_SendsRedeemsAndAlerts(t *testing.T) {
	v := &mockVerifier{}
	v.On("Claim", mock.Anything, "ada@example.com").Return("c1", nil)
	v.On("Redeem", mock.Anything, "ada@example.com", "c1").Return(nil)

	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.MatchedBy(func(sub domain.ContactSubmission) bool {
		return sub.SenderName == "Ada Lovelace" &&
			sub.SenderEmail == "ada@example.com" &&
			sub.Subject == domain.DefaultContactSubject &&
			sub.Body == "Loved the portfolio." &&
			sub.ID != "" &&
			sub.SubmittedAt.Equal(submittedAt)
	})).Return(nil)

	a := &mockAlerter{}
	a.On("AlertNewMessage", mock.Anything, mock.Anything).Return(errors.New("sns throttled"))

	svc := NewService(ServiceDeps{Verifier: v, Sender: s, Alerter: a, Now: fixedNow})
	out, err := svc.Submit(context.Background(), baseSubmission())

	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, domain.DefaultContactSubject, out.Subject)
	v.AssertExpectations(t)
	v.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	s.AssertExpectations(t)
	a.AssertExpectations(t)
}

func TestSubmit_KeepsSubject(t *testing.T) {
	v := &mockVerifier{}
	v.On("Claim", mock.Anything, mock.Anything).Return("c1", nil)
	v.On("Redeem", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).Return(nil)

	sub := baseSubmission()
	sub.Subject = "  Hiring  "
	out, err := NewService(ServiceDeps{Verifier: v, Sender: s}).Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, "Hiring", out.Subject)
}

func TestSubmit_DispatchFailureReleasesClaim(t *testing.T) {
	v := &mockVerifier{}
	v.On("Claim", mock.Anything, "ada@example.com").Return("c1", nil)
	v.On("Release", mock.Anything, "ada@example.com", "c1").Return(nil)
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).Return(errors.New("dial tcp: i/o timeout"))

	svc := NewService(ServiceDeps{Verifier: v, Sender: s})
	_, err := svc.Submit(context.Background(), baseSubmission())

	assert.True(t, errors.Is(err, domain.ErrDispatch))
	v.AssertExpectations(t)
	v.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_ReleaseSurvivesCanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := &mockVerifier{}
	v.On("Claim", mock.Anything, mock.Anything).Return("c1", nil)
	v.On("Release", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), "ada@example.com", "c1").
		Return(nil)
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled)

	_, err := NewService(ServiceDeps{Verifier: v, Sender: s}).Submit(ctx, baseSubmission())
	require.Error(t, err)
	v.AssertExpectations(t)
}

func TestSubmit_ConfigurationErrorPropagates(t *testing.T) {
	v := &mockVerifier{}
	v.On("Claim", mock.Anything, mock.Anything).Return("c1", nil)
	v.On("Release", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).Return(domain.ErrConfiguration)

	_, err := NewService(ServiceDeps{Verifier: v, Sender: s}).Submit(context.Background(), baseSubmission())
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestSubmit_VerifierErrorIsNotMaskedAsNotVerified(t *testing.T) {
	v := &mockVerifier{}
	v.On("Claim", mock.Anything, mock.Anything).Return("", errors.New("redis: connection refused"))

	_, err := NewService(ServiceDeps{Verifier: v, Sender: &mockSender{}}).Submit(context.Background(), baseSubmission())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotVerified))
}

// --- end to end with the real verification flow ---

type codeSender struct {
	mu   sync.Mutex
	last map[string]string
}

func (c *codeSender) SendVerificationCode(_ context.Context, identity, code string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[identity] = code
	return nil
}

func TestSubmit_FullScenario(t *testing.T) {
	codes := &codeSender{last: map[string]string{}}
	flow := verification.NewService(verification.ServiceDeps{
		Store:    memory.NewStore(),
		Sender:   codes,
		HashCost: bcrypt.MinCost,
	})
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).Return(nil)
	gate := NewService(ServiceDeps{Verifier: flow, Sender: s})
	ctx := context.Background()

	_, err := gate.Submit(ctx, baseSubmission())
	require.True(t, errors.Is(err, domain.ErrNotVerified))

	_, err = flow.RequestCode(ctx, "ada@example.com")
	require.NoError(t, err)

	// a different identity's verification does not open the gate
	other := baseSubmission()
	other.SenderEmail = "eve@example.com"
	_, err = gate.Submit(ctx, other)
	require.True(t, errors.Is(err, domain.ErrNotVerified))

	require.NoError(t, flow.SubmitCode(ctx, "ada@example.com", codes.last["ada@example.com"]))

	_, err = gate.Submit(ctx, baseSubmission())
	require.NoError(t, err)

	st, err := flow.State(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StateNone, st)

	_, err = gate.Submit(ctx, baseSubmission())
	assert.True(t, errors.Is(err, domain.ErrNotVerified))
	s.AssertNumberOfCalls(t, "SendContactMessage", 1)
}

// verifiedFlow runs the real verification flow for ada@example.com on store.
func verifiedFlow(t *testing.T, store verification.Store) (verification.Service, *codeSender) {
	t.Helper()
	codes := &codeSender{last: map[string]string{}}
	flow := verification.NewService(verification.ServiceDeps{
		Store:    store,
		Sender:   codes,
		HashCost: bcrypt.MinCost,
	})
	ctx := context.Background()
	_, err := flow.RequestCode(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, flow.SubmitCode(ctx, "ada@example.com", codes.last["ada@example.com"]))
	return flow, codes
}

func TestSubmit_ConcurrentSubmitsAcrossInstancesSendOnce(t *testing.T) {
	store := memory.NewStore()
	verifiedFlow(t, store)
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(5 * time.Millisecond) }).
		Return(nil)

	// each gate has its own verification service, sharing only the store
	gates := make([]Service, 5)
	for i := range gates {
		flow := verification.NewService(verification.ServiceDeps{
			Store:    store,
			Sender:   &codeSender{last: map[string]string{}},
			HashCost: bcrypt.MinCost,
		})
		gates[i] = NewService(ServiceDeps{Verifier: flow, Sender: s})
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(gates))
	for _, gate := range gates {
		wg.Add(1)
		go func(gate Service) {
			defer wg.Done()
			_, err := gate.Submit(context.Background(), baseSubmission())
			errs <- err
		}(gate)
	}
	wg.Wait()
	close(errs)

	sent := 0
	for err := range errs {
		if err == nil {
			sent++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrNotVerified))
	}
	assert.Equal(t, 1, sent)
	s.AssertNumberOfCalls(t, "SendContactMessage", 1)
}

func TestSubmit_FailedSendLeavesVerificationUsable(t *testing.T) {
	flow, _ := verifiedFlow(t, memory.NewStore())
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).Return(errors.New("421 try later")).Once()
	s.On("SendContactMessage", mock.Anything, mock.Anything).Return(nil).Once()
	gate := NewService(ServiceDeps{Verifier: flow, Sender: s})

	_, err := gate.Submit(context.Background(), baseSubmission())
	require.True(t, errors.Is(err, domain.ErrDispatch))

	_, err = gate.Submit(context.Background(), baseSubmission())
	require.NoError(t, err)
	s.AssertNumberOfCalls(t, "SendContactMessage", 2)
}

func TestSubmit_CodeRequestedDuringSendSurvives(t *testing.T) {
	flow, codes := verifiedFlow(t, memory.NewStore())
	s := &mockSender{}
	s.On("SendContactMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := flow.RequestCode(context.Background(), "ada@example.com")
			require.NoError(t, err)
		}).
		Return(nil)
	gate := NewService(ServiceDeps{Verifier: flow, Sender: s})
	ctx := context.Background()

	_, err := gate.Submit(ctx, baseSubmission())
	require.NoError(t, err)

	st, err := flow.State(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, st)
	require.NoError(t, flow.SubmitCode(ctx, "ada@example.com", codes.last["ada@example.com"]))
}
