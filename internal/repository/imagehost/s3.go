package imagehost

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/debemdeboas/dailywrite/internal/backend"
	"github.com/debemdeboas/dailywrite/internal/config"
)

// S3 stores images in an S3 compatible bucket served from PublicBaseURL.
type S3 struct {
	client        *s3.Client
	bucket        string
	prefix        string
	publicBaseURL string
	timeout       time.Duration
}

func NewS3(ctx context.Context, cfg config.S3Config, timeout time.Duration) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, backend.New(backend.ImageHost, backend.KindOther, "init", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &S3{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		timeout:       timeout,
	}, nil
}

func (s *S3) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.prefix + name
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		if ctx.Err() != nil {
			return "", backend.New(backend.ImageHost, backend.KindTimeout, "upload", err)
		}
		return "", backend.New(backend.ImageHost, backend.KindUploadFailed, "upload", err)
	}

	u := s.publicBaseURL + "/" + key
	hostLogger.Info().Str("bucket", s.bucket).Str("key", key).Msg("Image stored")
	return u, nil
}
