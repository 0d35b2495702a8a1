package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/portfolio-contact/internal/config"
	"github.com/portfolio-contact/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	return &sns.PublishOutput{}, args.Error(0)
}

var sub = domain.ContactSubmission{SenderName: "Ada", SenderEmail: "ada@example.com", Subject: "Hiring", Body: "secret details"}

func TestAlertNewMessage_Topic(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:aws:sns:us-east-1:123:owner" &&
			in.PhoneNumber == nil &&
			aws.ToString(in.Message) == "New portfolio message from Ada <ada@example.com>: Hiring"
	})).Return(nil)

	require.NoError(t, NewOwnerAlerter(p, "arn:aws:sns:us-east-1:123:owner", "").AlertNewMessage(context.Background(), sub))
	p.AssertExpectations(t)
}

func TestAlertNewMessage_SMS(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.PhoneNumber) == "+15550100" && in.TopicArn == nil
	})).Return(nil)

	require.NoError(t, NewOwnerAlerter(p, "", "+15550100").AlertNewMessage(context.Background(), sub))
	p.AssertExpectations(t)
}

func TestAlertNewMessage_Error(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(errors.New("throttled"))

	err := NewOwnerAlerter(p, "arn", "").AlertNewMessage(context.Background(), sub)
	assert.ErrorContains(t, err, "throttled")
}

func TestNewFromConfig_DisabledWithoutTarget(t *testing.T) {
	a, err := NewFromConfig(context.Background(), &config.Config{SNSRegion: "us-east-1"})
	require.NoError(t, err)
	assert.Nil(t, a)
}
