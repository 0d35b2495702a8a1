// Package sns pings the site owner through AWS SNS when a contact message arrives.
package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/portfolio-contact/internal/config"
	"github.com/portfolio-contact/internal/domain"
)

// Publisher is the subset of the SNS client the alerter uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// OwnerAlerter publishes a short notice to a topic, or as SMS to a phone number
// when no topic is configured.
type OwnerAlerter struct {
	client   Publisher
	topicARN string
	phone    string
}

func NewOwnerAlerter(client Publisher, topicARN, phone string) *OwnerAlerter {
	return &OwnerAlerter{client: client, topicARN: topicARN, phone: phone}
}

// NewFromConfig returns nil when neither SNS_OWNER_TOPIC_ARN nor SNS_OWNER_PHONE is set.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*OwnerAlerter, error) {
	if cfg.SNSOwnerTopicARN == "" && cfg.SNSOwnerPhone == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SNSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var opts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) { o.BaseEndpoint = aws.String(cfg.AWSEndpointURL) })
	}
	return NewOwnerAlerter(sns.NewFromConfig(awsCfg, opts...), cfg.SNSOwnerTopicARN, cfg.SNSOwnerPhone), nil
}

// AlertNewMessage sends who wrote and the subject. The message body stays in the email.
func (a *OwnerAlerter) AlertNewMessage(ctx context.Context, sub domain.ContactSubmission) error {
	in := &sns.PublishInput{
		Message: aws.String(fmt.Sprintf("New portfolio message from %s <%s>: %s",
			sub.SenderName, sub.SenderEmail, sub.Subject)),
	}
	if a.topicARN != "" {
		in.TopicArn = aws.String(a.topicARN)
		in.Subject = aws.String("New portfolio contact message")
	} else {
		in.PhoneNumber = aws.String(a.phone)
	}
	if _, err := a.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("publish owner alert: %w", err)
	}
	return nil
}
