package cloudwatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	flushTimeout   = 30 * time.Second
)

// AWSConfig holds the connection settings shared by both publishers.
type AWSConfig struct {
	Region          string
	Endpoint        string // Optional endpoint override (for LocalStack)
	AccessKeyID     string
	SecretAccessKey string
}

// buildAWSConfig creates an AWS config; static credentials are used only when both halves are set.
func buildAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}

	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return awsCfg, nil
}

// withRetry runs call up to maxRetries times with exponential backoff.
// retryNow lets the caller skip the backoff for errors it has already handled.
func withRetry(ctx context.Context, call func() error, retryNow func(error) bool) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err

		if retryNow != nil && retryNow(err) {
			continue
		}
		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}
