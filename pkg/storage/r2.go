package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"shipzone-sync/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
)

// R2Storage archives submit reports in an R2 (S3 compatible) bucket.
type R2Storage struct {
	client        *s3.Client
	bucketName    string
	publicURL     string
	prefix        string
	uploadTimeout time.Duration
}

func NewR2Storage(ctx context.Context, accountId, accessKey, secretKey, bucketName, publicURL, prefix string, uploadTimeout time.Duration) (*R2Storage, error) {
	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountId),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &R2Storage{
		client:        client,
		bucketName:    bucketName,
		publicURL:     strings.TrimSuffix(publicURL, "/"),
		prefix:        strings.Trim(prefix, "/"),
		uploadTimeout: uploadTimeout,
	}, nil
}

// ReportKey is the object key a report is stored under.
func ReportKey(prefix string, report *domain.SubmitReport) string {
	return fmt.Sprintf("%s/%s/%s-%s.json",
		prefix, report.SiteID, report.FinishedAt.UTC().Format("20060102T150405Z"), report.ID)
}

// ArchiveReport uploads a submit report as JSON and returns its public URL.
func (s *R2Storage) ArchiveReport(ctx context.Context, report *domain.SubmitReport) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return s.UploadBuffer(ctx, ReportKey(s.prefix, report), data, "application/json")
}

// UploadBuffer uploads a byte slice under key
func (s *R2Storage) UploadBuffer(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	_, err := s.client.PutObject(uploadCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload buffer to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", s.publicURL, key), nil
}
