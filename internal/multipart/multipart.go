package multipart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/payload"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/upload"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/s3types"
)

// MetadataContentMD5 is the user metadata key carrying the whole-object
// digest. CreateMultipartUpload has no Content-MD5 header of its own.
const MetadataContentMD5 = "content-md5"

const (
	defaultConcurrency  = 5
	defaultAbortTimeout = 30 * time.Second
)

// Uploader handles multipart upload operations
type Uploader struct {
	s3Client     s3api.S3API
	logger       *slog.Logger
	metrics      *metrics.Metrics
	concurrency  int
	callTimeout  time.Duration
	abortTimeout time.Duration
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

// WithConcurrency bounds the number of parts in flight.
func WithConcurrency(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// WithCallTimeout bounds every remote call.
func WithCallTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		u.callTimeout = d
	}
}

// WithAbortTimeout bounds the cleanup call issued after a failure.
func WithAbortTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.abortTimeout = d
		}
	}
}

// NewUploader creates a new multipart uploader
func NewUploader(s3Client s3api.S3API, opts ...Option) *Uploader {
	u := &Uploader{
		s3Client:     s3Client,
		concurrency:  defaultConcurrency,
		abortTimeout: defaultAbortTimeout,
	}
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

// Upload uploads data as a multipart object and returns the final ETag.
// Any failure is an ErrUploadFailed carrying the failed stage; failures after
// initiation abort the session before returning.
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
	size := int64(len(data))
	log := u.logger.With(
		slog.String("attempt", uuid.NewString()),
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int64("size", size),
	)
	defer func() {
		u.metrics.ObserveUpload(s3types.ModeMultipart, size, startTime, err)
		if config.ProgressTracker == nil {
			return
		}
		if err != nil {
			config.ProgressTracker.Error(err)
			return
		}
		config.ProgressTracker.Complete()
	}()

	whole := payload.Build(data)

	uploadID, err := u.createMultipartUpload(ctx, bucket, key, whole, config)
	if err != nil {
		log.Error("multipart upload initiation failed", slog.Any("error", err))
		return nil, uerrors.UploadFailed(uerrors.StageInitiate, bucket, key, err)
	}

	session := Session{Bucket: bucket, Key: key, UploadID: uploadID}
	log = log.With(slog.String("upload_id", uploadID))

	ranges := planner.Plan(size)
	if err := planner.Validate(ranges, size); err != nil {
		u.abortMultipartUpload(ctx, log, session)
		return nil, uerrors.UploadFailed(uerrors.StagePart, bucket, key,
			uerrors.NewError("plan", errors.Join(uerrors.ErrInvalidInput, err)))
	}
	log.Debug("multipart upload initiated", slog.Int("parts", len(ranges)))

	payloads := make([]payload.Payload, len(ranges))
	for i, r := range ranges {
		payloads[i] = payload.Build(data[r.Start:r.End])
	}

	results, err := u.uploadParts(ctx, log, session, ranges, payloads, size, config)
	if err != nil {
		log.Error("multipart part upload failed",
			slog.Int("part", int(partOf(err))),
			slog.String("code", uerrors.APICode(err)),
			slog.Any("error", err),
		)
		u.abortMultipartUpload(ctx, log, session)
		return nil, err
	}

	manifest, err := Assemble(results, len(ranges))
	if err != nil {
		u.abortMultipartUpload(ctx, log, session)
		return nil, uerrors.UploadFailed(uerrors.StageComplete, bucket, key, uerrors.NewError("assemble", err))
	}

	output, err := u.completeMultipartUpload(ctx, session, manifest)
	if err != nil {
		log.Error("multipart upload completion failed", slog.Any("error", err))
		u.abortMultipartUpload(ctx, log, session)
		return nil, uerrors.UploadFailed(uerrors.StageComplete, bucket, key, err)
	}

	result = &s3types.UploadResult{
		Bucket:    bucket,
		Key:       key,
		Size:      size,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
		Parts:     len(manifest),
		UploadID:  uploadID,
		Duration:  time.Since(startTime),
	}
	log.Info("multipart upload completed",
		slog.Int("parts", result.Parts),
		slog.String("etag", result.ETag),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// callContext derives the context of a single remote call.
func (u *Uploader) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, u.callTimeout)
}

// createMultipartUpload creates a new multipart upload
func (u *Uploader) createMultipartUpload(
	ctx context.Context,
	bucket, key string,
	whole payload.Payload,
	config *s3types.UploadConfig,
) (string, error) {
	meta := make(map[string]string, len(config.Metadata)+1)
	for k, v := range config.Metadata {
		meta[k] = v
	}
	meta[MetadataContentMD5] = whole.ContentMD5()

	input := &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Metadata:    meta,
		ContentType: aws.String(upload.ContentType(config.ContentType, whole.Bytes)),
	}
	if config.StorageClass != "" {
		input.StorageClass = awstypes.StorageClass(config.StorageClass)
	}

	callCtx, cancel := u.callContext(ctx)
	defer cancel()

	output, err := u.s3Client.CreateMultipartUpload(callCtx, input)
	if err != nil {
		return "", uerrors.TransportError("createMultipartUpload", err).WithBucket(bucket).WithKey(key)
	}

	uploadID := aws.ToString(output.UploadId)
	if uploadID == "" {
		return "", uerrors.TransportError("createMultipartUpload", errors.New("service returned no upload ID")).
			WithBucket(bucket).WithKey(key)
	}
	return uploadID, nil
}

// uploadParts uploads all parts concurrently and returns their tokens in
// part order. The first failure cancels the remaining parts.
func (u *Uploader) uploadParts(
	ctx context.Context,
	log *slog.Logger,
	session Session,
	ranges []planner.Range,
	payloads []payload.Payload,
	totalSize int64,
	config *s3types.UploadConfig,
) ([]PartResult, error) {
	concurrency := u.concurrency
	if config.Concurrency > 0 {
		concurrency = config.Concurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([]PartResult, len(ranges))
	var transferred atomic.Int64

	for i, r := range ranges {
		p := payloads[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return uerrors.UploadFailed(uerrors.StagePart, session.Bucket, session.Key,
					uerrors.TransportError("uploadPart", err)).WithPart(r.Number)
			}

			etag, err := u.uploadPart(gctx, session, r.Number, p)
			u.metrics.ObservePart(err)
			if err != nil {
				return uerrors.UploadFailed(uerrors.StagePart, session.Bucket, session.Key, err).WithPart(r.Number)
			}

			results[i] = PartResult{Number: r.Number, ETag: etag}
			done := transferred.Add(p.Length)
			if config.ProgressTracker != nil {
				config.ProgressTracker.Update(done, totalSize)
			}
			log.Debug("part uploaded",
				slog.Int("part", int(r.Number)),
				slog.Int64("length", p.Length),
				slog.String("etag", etag),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// uploadPart uploads a single part
func (u *Uploader) uploadPart(
	ctx context.Context,
	session Session,
	partNumber int32,
	p payload.Payload,
) (string, error) {
	input := &s3.UploadPartInput{
		Bucket:        aws.String(session.Bucket),
		Key:           aws.String(session.Key),
		UploadId:      aws.String(session.UploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          p.Reader(),
		ContentLength: aws.Int64(p.Length),
		ContentMD5:    aws.String(p.ContentMD5()),
	}

	callCtx, cancel := u.callContext(ctx)
	defer cancel()

	output, err := u.s3Client.UploadPart(callCtx, input)
	if err != nil {
		return "", uerrors.TransportError("uploadPart", err).WithBucket(session.Bucket).WithKey(session.Key)
	}

	etag := aws.ToString(output.ETag)
	if etag == "" {
		return "", uerrors.TransportError("uploadPart", errors.New("service returned no ETag")).
			WithBucket(session.Bucket).WithKey(session.Key)
	}
	return etag, nil
}

// completeMultipartUpload completes the multipart upload
func (u *Uploader) completeMultipartUpload(
	ctx context.Context,
	session Session,
	manifest Manifest,
) (*s3.CompleteMultipartUploadOutput, error) {
	input := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(session.Bucket),
		Key:      aws.String(session.Key),
		UploadId: aws.String(session.UploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: manifest,
		},
	}

	callCtx, cancel := u.callContext(ctx)
	defer cancel()

	output, err := u.s3Client.CompleteMultipartUpload(callCtx, input)
	if err != nil {
		return nil, uerrors.TransportError("completeMultipartUpload", err).
			WithBucket(session.Bucket).WithKey(session.Key)
	}
	return output, nil
}

// abortMultipartUpload cleans up a failed multipart upload. It runs even when
// ctx is already cancelled and never returns an error.
func (u *Uploader) abortMultipartUpload(ctx context.Context, log *slog.Logger, session Session) {
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.abortTimeout)
	defer cancel()

	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(session.Bucket),
		Key:      aws.String(session.Key),
		UploadId: aws.String(session.UploadID),
	}

	_, err := u.s3Client.AbortMultipartUpload(abortCtx, input)
	u.metrics.ObserveAbort(err)
	if err != nil {
		log.Warn("multipart upload abort failed, parts may remain stored",
			slog.String("code", uerrors.APICode(err)),
			slog.Any("error", err),
		)
		return
	}
	log.Debug("multipart upload aborted")
}

// partOf returns the part number recorded in err, or 0.
func partOf(err error) int32 {
	var e *uerrors.Error
	if errors.As(err, &e) {
		return e.PartNumber
	}
	return 0
}
