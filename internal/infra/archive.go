package infra

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveConfig points at an S3-compatible bucket (AWS, R2, MinIO).
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DocumentArchive keeps a copy of every fetched receipt and report PDF.
type DocumentArchive struct {
	client objectPutter
	bucket string
}

func NewDocumentArchive(ctx context.Context, cfg ArchiveConfig) (*DocumentArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &DocumentArchive{client: client, bucket: cfg.Bucket}, nil
}

// ArchiveKey is the object key for a document: <kasa>/<shift>/<name>.pdf.
func ArchiveKey(kasaID, shiftID, name string) string {
	if shiftID == "" {
		shiftID = "no-shift"
	}
	name = strings.TrimSuffix(name, ".pdf")
	return path.Join(kasaID, shiftID, name+".pdf")
}

// Store uploads one PDF.
func (a *DocumentArchive) Store(ctx context.Context, kasaID, shiftID, name string, doc []byte) error {
	key := ArchiveKey(kasaID, shiftID, name)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}
