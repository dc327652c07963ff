package store

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/mirrorlake/assetsync/pkg/logger"
	"github.com/mirrorlake/assetsync/pkg/metrics"
	"github.com/mirrorlake/assetsync/pkg/syncerrors"
)

const defaultUploadPartSize = 5 * 1024 * 1024 // 5MB

// S3Config configures the S3-backed object store
type S3Config struct {
	Region         string
	UploadPartSize int64
	MaxConcurrency int
	// Compress gzips object bodies and sets Content-Encoding. Collection
	// objects for large accounts run to tens of megabytes of JSON.
	Compress bool
}

// S3Store implements ObjectStore on top of S3
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	compress bool
	logger   *zap.Logger
}

// NewS3Store creates an S3 object store using the default AWS credential chain
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConnection, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg)

	partSize := cfg.UploadPartSize
	if partSize <= 0 {
		partSize = defaultUploadPartSize
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
		u.Concurrency = concurrency
	})

	return &S3Store{
		client:   client,
		uploader: uploader,
		compress: cfg.Compress,
		logger:   logger.Get().With(zap.String("component", "s3_store")),
	}, nil
}

// GetObject fetches and, if needed, decompresses an object
func (s *S3Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(err, "failed to get object")
	}
	defer out.Body.Close() //nolint:errcheck

	body := out.Body
	if aws.ToString(out.ContentEncoding) == "gzip" {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeData, "failed to open gzip reader")
		}
		defer gz.Close() //nolint:errcheck
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeStorage, "failed to read object body")
	}
	return data, nil
}

// PutObject writes data under key, replacing any existing object wholesale
func (s *S3Store) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	timer := metrics.NewTimer()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/json"),
	}

	if s.compress {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return syncerrors.Wrap(err, syncerrors.ErrorTypeData, "failed to gzip object body")
		}
		if err := gz.Close(); err != nil {
			return syncerrors.Wrap(err, syncerrors.ErrorTypeData, "failed to finalize gzip body")
		}
		input.Body = bytes.NewReader(buf.Bytes())
		input.ContentEncoding = aws.String("gzip")
	} else {
		input.Body = bytes.NewReader(data)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return classifyS3Error(err, "failed to put object")
	}

	metrics.ObserveStoreWrite(timer.Stop())
	s.logger.Debug("object written",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return nil
}

// ObjectExists checks for the object with a HEAD request
func (s *S3Store) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		classified := classifyS3Error(err, "failed to head object")
		if syncerrors.IsType(classified, syncerrors.ErrorTypeNotFound) {
			return false, nil
		}
		return false, classified
	}
	return true, nil
}

// classifyS3Error maps SDK errors onto the pipeline's error taxonomy
func classifyS3Error(err error, message string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return syncerrors.Wrap(err, syncerrors.ErrorTypeNotFound, message)
		case "AccessDenied":
			return syncerrors.Wrap(err, syncerrors.ErrorTypeAccessDenied, message)
		case "SlowDown", "RequestLimitExceeded", "Throttling":
			return syncerrors.Wrap(err, syncerrors.ErrorTypeThrottling, message)
		}
	}
	return syncerrors.Wrap(err, syncerrors.ErrorTypeStorage, message)
}
