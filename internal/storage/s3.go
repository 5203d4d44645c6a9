package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type deleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3Storage uploads assets with the multipart upload manager.
type S3Storage struct {
	bucket  string
	public  string
	up      uploader
	objects deleter
}

// NewS3Storage loads the default AWS credential chain, or static keys when
// given, and targets opts.Endpoint when set (path-style, for MinIO et al.).
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Storage(opts.Bucket, opts.PublicBaseURL, manager.NewUploader(client), client), nil
}

func newS3Storage(bucket, public string, up uploader, objects deleter) *S3Storage {
	return &S3Storage{bucket: bucket, public: strings.TrimRight(public, "/"), up: up, objects: objects}
}

func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) *Transfer {
	return Start(ctx, size, func(ctx context.Context, report ReportFunc) (Result, error) {
		input := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        &countingReader{r: body, report: report},
			ContentType: aws.String(contentType),
		}
		out, err := s.up.Upload(ctx, input)
		if err != nil {
			return Result{}, fmt.Errorf("upload to s3: %w", err)
		}
		locator := out.Location
		if s.public != "" {
			locator = s.public + "/" + key
		}
		return Result{Key: key, Locator: locator}, nil
	})
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
