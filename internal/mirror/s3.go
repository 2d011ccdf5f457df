package mirror

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultS3Key is used when no object key is configured.
const DefaultS3Key = "evolution.json"

// S3Config holds configuration for an S3 mirror.
type S3Config struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack, ...)
}

// S3 uploads the published copy to a single object, typically next to the
// hosted web build of the game.
type S3 struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3 loads the default AWS credential chain and returns an S3 mirror.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(client, cfg.Bucket, cfg.Key), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client *s3.Client, bucket, key string) *S3 {
	if key == "" {
		key = DefaultS3Key
	}
	return &S3{client: client, bucket: bucket, key: key}
}

func (m *S3) Name() string { return "s3://" + m.bucket + "/" + m.key }

// Put overwrites the object with data.
func (m *S3) Put(ctx context.Context, data []byte) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(m.bucket),
		Key:          aws.String(m.key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}
