package publish

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/sweepline/pkg/errors"
)

// S3Uploader uploads through the S3 transfer manager, which switches to
// multipart uploads for large files
type S3Uploader struct {
	bucket   string
	uploader *manager.Uploader
}

// NewS3Uploader loads the default AWS credential chain
func NewS3Uploader(ctx context.Context, cfg Config, bucket string) (*S3Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3UploaderFromClient(client, cfg, bucket), nil
}

// NewS3UploaderFromClient wraps an existing client
func NewS3UploaderFromClient(client manager.UploadAPIClient, cfg Config, bucket string) *S3Uploader {
	return &S3Uploader{
		bucket: bucket,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			if cfg.PartSize >= manager.MinUploadPartSize {
				u.PartSize = cfg.PartSize
			}
			if cfg.Concurrency > 0 {
				u.Concurrency = cfg.Concurrency
			}
		}),
	}
}

// Upload implements Uploader
func (u *S3Uploader) Upload(ctx context.Context, obj Object, body io.Reader) (string, error) {
	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(obj.Key),
		Body:        body,
		ContentType: aws.String(obj.ContentType),
		Metadata:    obj.Metadata,
	})
	if err != nil {
		return "", err
	}
	if out.Location != "" {
		return out.Location, nil
	}
	return "s3://" + u.bucket + "/" + obj.Key, nil
}

// Close implements Uploader
func (u *S3Uploader) Close() error {
	return nil
}

// GCSUploader streams objects to a Cloud Storage bucket
type GCSUploader struct {
	bucket string
	client *storage.Client
}

// NewGCSUploader uses application default credentials unless
// cfg.CredentialsFile is set
func NewGCSUploader(ctx context.Context, cfg Config, bucket string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}
	return &GCSUploader{bucket: bucket, client: client}, nil
}

// Upload implements Uploader
func (u *GCSUploader) Upload(ctx context.Context, obj Object, body io.Reader) (string, error) {
	w := u.client.Bucket(u.bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.Metadata = obj.Metadata
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return "gs://" + u.bucket + "/" + obj.Key, nil
}

// Close implements Uploader
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
