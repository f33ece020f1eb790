package pdf

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Mirror copies generated files to secondary storage.
type Mirror interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// S3Config selects the bucket generated PDFs are mirrored to.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	Prefix    string
}

// S3Mirror uploads to an S3-compatible bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror loads AWS credentials from the default chain.
func NewS3Mirror(ctx context.Context, cfg S3Config) (*S3Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Mirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *S3Mirror) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	key = path.Join(m.prefix, key)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}
