package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"custodia/internal/config"
	"custodia/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the whole-object store client. It works against any
// S3-compatible endpoint (Cloudflare R2, MinIO, LocalStack) via a custom
// base endpoint with path-style addressing.
type S3Client struct {
	client *s3.Client
}

func NewS3Client(ctx context.Context, cfg config.Config) (*S3Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Client{client: client}, nil
}

func NewS3ClientFromAPI(client *s3.Client) *S3Client {
	return &S3Client{client: client}
}

func (c *S3Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("s3 client is nil")
	}
	if bucket == "" || key == "" {
		return nil, errors.New("bucket and key are required")
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(fmt.Errorf("s3 get %s/%s: %w", bucket, key, err))
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("s3 read %s/%s: %w", bucket, key, err))
	}
	return body, nil
}

func (c *S3Client) Put(ctx context.Context, bucket, key string, body []byte) error {
	if c == nil || c.client == nil {
		return errors.New("s3 client is nil")
	}
	if bucket == "" || key == "" {
		return errors.New("bucket and key are required")
	}
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return classify(fmt.Errorf("s3 put %s/%s: %w", bucket, key, err))
	}
	return nil
}

// classify maps SDK failures onto the domain fault taxonomy: missing keys to
// ErrNotFound, auth/permission failures to fatal, everything network- or
// server-shaped to transient.
func classify(err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		switch {
		case code == 401 || code == 403:
			return domain.Fatal(err)
		case code == 404:
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		case code == 429 || code >= 500:
			return domain.Transient(err)
		}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return domain.Fatal(err)
		}
	}
	return domain.Transient(err)
}
