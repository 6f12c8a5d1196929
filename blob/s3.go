package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config points at any S3-compatible endpoint (AWS S3, Cloudflare R2).
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	// PublicBaseURL is the CDN or bucket URL objects are served from.
	PublicBaseURL string
}

type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return &S3Store{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3: upload %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *S3Store) Delete(ctx context.Context, url string) error {
	key := strings.TrimPrefix(strings.TrimPrefix(url, s.baseURL), "/")
	if key == "" || key == url {
		return fmt.Errorf("s3: url %q is not under this store", url)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}
