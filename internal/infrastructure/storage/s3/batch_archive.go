package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/gzip"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// Compress хранит пачки в gzip с Content-Encoding: gzip
	Compress bool
}

// objectPutter - часть s3.Client, нужная архиву
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// BatchArchive реализует port.BatchArchive поверх S3-совместимого хранилища
type BatchArchive struct {
	client   objectPutter
	bucket   string
	compress bool
}

func NewBatchArchive(ctx context.Context, cfg Config) (*BatchArchive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, fmt.Errorf("s3 access key id and secret are required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "ru-central1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	return newBatchArchive(client, cfg), nil
}

func newBatchArchive(client objectPutter, cfg Config) *BatchArchive {
	return &BatchArchive{
		client:   client,
		bucket:   strings.TrimSpace(cfg.Bucket),
		compress: cfg.Compress,
	}
}

func (a *BatchArchive) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return fmt.Errorf("object key is required")
	}

	input := &s3.PutObjectInput{
		Bucket:       &a.bucket,
		Key:          &key,
		ContentType:  &contentType,
		StorageClass: types.StorageClassStandardIa,
	}

	if a.compress {
		compressed, err := gzipBody(body)
		if err != nil {
			return fmt.Errorf("failed to compress batch: %w", err)
		}
		encoding := "gzip"
		input.ContentEncoding = &encoding
		body = compressed
	}
	input.Body = bytes.NewReader(body)

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object failed: %w", err)
	}
	return nil
}

func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
