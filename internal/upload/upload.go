package upload

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/payload"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/s3types"
)

// detectLimit is how many leading bytes are sniffed for the content type.
const detectLimit = 512

// Uploader handles single-shot S3 uploads.
type Uploader struct {
	s3Client    s3api.S3API
	logger      *slog.Logger
	metrics     *metrics.Metrics
	callTimeout time.Duration
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// WithCallTimeout bounds the PutObject call.
func WithCallTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		u.callTimeout = d
	}
}

// New creates a new Uploader instance.
func New(s3Client s3api.S3API, opts ...Option) *Uploader {
	u := &Uploader{s3Client: s3Client}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if u.metrics == nil {
		u.metrics, _ = metrics.New(nil)
	}
	return u
}

// Upload writes data as one object. The payload size is not checked against
// any threshold and the call is not retried.
func (u *Uploader) Upload(
	ctx context.Context,
	bucket, key string,
	data []byte,
	config *s3types.UploadConfig,
) (result *s3types.UploadResult, err error) {
	if config == nil {
		config = &s3types.UploadConfig{}
	}

	startTime := time.Now()
	p := payload.Build(data)
	log := u.logger.With(
		slog.String("attempt", uuid.NewString()),
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int64("size", p.Length),
	)
	defer func() {
		u.metrics.ObserveUpload(s3types.ModeSingle, p.Length, startTime, err)
		if config.ProgressTracker == nil {
			return
		}
		if err != nil {
			config.ProgressTracker.Error(err)
			return
		}
		config.ProgressTracker.Update(p.Length, p.Length)
		config.ProgressTracker.Complete()
	}()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          p.Reader(),
		ContentLength: aws.Int64(p.Length),
		ContentMD5:    aws.String(p.ContentMD5()),
		ContentType:   aws.String(ContentType(config.ContentType, data)),
	}
	if config.StorageClass != "" {
		input.StorageClass = awstypes.StorageClass(config.StorageClass)
	}
	if len(config.Metadata) > 0 {
		input.Metadata = config.Metadata
	}

	callCtx, cancel := u.callContext(ctx)
	defer cancel()

	output, err := u.s3Client.PutObject(callCtx, input)
	if err != nil {
		err = uerrors.UploadFailed(uerrors.StagePut, bucket, key,
			uerrors.TransportError("putObject", err).WithBucket(bucket).WithKey(key))
		log.Error("put object failed",
			slog.String("code", uerrors.APICode(err)),
			slog.Any("error", err),
		)
		return nil, err
	}

	result = &s3types.UploadResult{
		Bucket:    bucket,
		Key:       key,
		Size:      p.Length,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
		Parts:     1,
		Duration:  time.Since(startTime),
	}
	log.Info("object uploaded",
		slog.String("etag", result.ETag),
		slog.String("content_md5", p.ContentMD5()),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (u *Uploader) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, u.callTimeout)
}

// ContentType returns explicit when set, otherwise the type sniffed from the
// leading bytes of data.
func ContentType(explicit string, data []byte) string {
	if explicit != "" {
		return explicit
	}
	if len(data) > detectLimit {
		data = data[:detectLimit]
	}
	return mimetype.Detect(data).String()
}
