// Package storage is the S3 object store for current-home images and
// generated contract PDFs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("storage")

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint points at an S3-compatible server (local dev, tests).
	Endpoint string
}

type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// New builds the client. Static keys are used when set, otherwise the
// default AWS credential chain.
func New(ctx context.Context, cfg Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, presign: s3.NewPresignClient(client)}, nil
}

func (s *S3) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "S3.PresignGet")
	defer span.End()
	span.SetAttributes(attribute.String("s3.bucket", bucket), attribute.String("s3.key", key))

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", &domain.ErrExternalService{Service: "s3", Err: err}
	}
	return req.URL, nil
}

func (s *S3) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	ctx, span := tracer.Start(ctx, "S3.PresignPut")
	defer span.End()
	span.SetAttributes(attribute.String("s3.bucket", bucket), attribute.String("s3.key", key))

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", &domain.ErrExternalService{Service: "s3", Err: err}
	}
	return req.URL, nil
}

// Exists reports whether key is present; a missing object is not an error.
func (s *S3) Exists(ctx context.Context, bucket, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "S3.Exists")
	defer span.End()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return false, nil
		}
		return false, &domain.ErrExternalService{Service: "s3", Err: err}
	}
	return true, nil
}

func (s *S3) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	ctx, span := tracer.Start(ctx, "S3.Put")
	defer span.End()
	span.SetAttributes(attribute.String("s3.bucket", bucket), attribute.String("s3.key", key), attribute.Int("s3.size", len(body)))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "s3", Err: err}
	}
	return nil
}

func (s *S3) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "S3.Get")
	defer span.End()
	span.SetAttributes(attribute.String("s3.bucket", bucket), attribute.String("s3.key", key))

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, &domain.ErrNotFound{Resource: "object", ID: bucket + "/" + key}
		}
		return nil, &domain.ErrExternalService{Service: "s3", Err: err}
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
