package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Options locates the verification table. Endpoint points at LocalStack or
// DynamoDB Local during development and stays empty against AWS.
type Options struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// MaxAttempts bounds SDK retries so a slow table cannot outlast a request.
	MaxAttempts int
}

// NewClient builds a DynamoDB client. Static keys win over the default chain
// when both halves are set.
func NewClient(ctx context.Context, opts Options) (*dynamodb.Client, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("dynamo: region is required")
	}
	load := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		load = append(load, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	if opts.MaxAttempts > 0 {
		load = append(load, awsconfig.WithRetryMaxAttempts(opts.MaxAttempts))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for region %s: %w", opts.Region, err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}
