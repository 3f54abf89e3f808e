package s3upload

import (
	"context"
	"log/slog"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/upload"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/s3types"
)

// uploadFunc performs one upload with a leased SDK client.
type uploadFunc func(
	ctx context.Context,
	api s3api.S3API,
	bucket, key string,
	data []byte,
	cfg *s3types.UploadConfig,
) (*s3types.UploadResult, error)

// Upload writes data to bucket/key in a single PutObject call with its
// Content-MD5. The payload size is not checked; S3 rejects single puts
// above 5 GiB.
//
// Example:
//
//	result, err := client.Upload(ctx, "my-bucket", "report.csv", data,
//	    s3upload.WithContentType("text/csv"),
//	)
func (c *Client) Upload(
	ctx context.Context,
	bucket, key string,
	data []byte,
	opts ...s3types.UploadOption,
) (*s3types.UploadResult, error) {
	return c.run(ctx, uerrors.StagePut, bucket, key, data, opts, c.single)
}

// UploadMultipart writes data to bucket/key as a multipart upload. Parts
// are uploaded concurrently, each with its own Content-MD5, and the
// whole-object digest is stored in the "content-md5" user metadata.
// A failed upload is aborted before the error is returned.
func (c *Client) UploadMultipart(
	ctx context.Context,
	bucket, key string,
	data []byte,
	opts ...s3types.UploadOption,
) (*s3types.UploadResult, error) {
	return c.run(ctx, uerrors.StageInitiate, bucket, key, data, opts, c.multipart)
}

// UploadAuto uses a multipart upload when data reaches the multipart
// threshold and a single PutObject otherwise.
func (c *Client) UploadAuto(
	ctx context.Context,
	bucket, key string,
	data []byte,
	opts ...s3types.UploadOption,
) (*s3types.UploadResult, error) {
	if int64(len(data)) >= c.settings.MultipartThreshold {
		return c.UploadMultipart(ctx, bucket, key, data, opts...)
	}
	return c.Upload(ctx, bucket, key, data, opts...)
}

// UploadFile reads the file at path and uploads it in a single call. The
// object key is the base name of the file.
func (c *Client) UploadFile(
	ctx context.Context,
	bucket, path string,
	opts ...s3types.UploadOption,
) (*s3types.UploadResult, error) {
	file, err := c.resolver.Resolve(path)
	if err != nil {
		c.logger.Error("file resolution failed", slog.String("path", path), slog.Any("error", err))
		return nil, uerrors.UploadFailed(uerrors.StageResolve, bucket, "", err)
	}
	return c.Upload(ctx, bucket, file.Name, file.Data, opts...)
}

// run validates the target, applies the operation timeout and holds one
// pooled client for the duration of fn. A client that cannot be leased fails
// the upload at stage, the first remote step of fn.
func (c *Client) run(
	ctx context.Context,
	stage uerrors.Stage,
	bucket, key string,
	data []byte,
	opts []s3types.UploadOption,
	fn uploadFunc,
) (*s3types.UploadResult, error) {
	optCfg := &s3types.UploadOptionConfig{}
	for _, opt := range opts {
		opt(optCfg)
	}
	cfg := optCfg.ToUploadConfig()

	if err := validation.Target(bucket, key); err != nil {
		return nil, err
	}
	if err := validation.Metadata(cfg.Metadata); err != nil {
		return nil, err
	}

	if c.settings.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.settings.OperationTimeout)
		defer cancel()
	}

	lease, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, uerrors.UploadFailed(stage, bucket, key, err)
	}
	defer lease.Release()

	return fn(ctx, lease.API(), bucket, key, data, cfg)
}

func (c *Client) single(
	ctx context.Context,
	api s3api.S3API,
	bucket, key string,
	data []byte,
	cfg *s3types.UploadConfig,
) (*s3types.UploadResult, error) {
	u := upload.New(api,
		upload.WithLogger(c.logger),
		upload.WithMetrics(c.metrics),
		upload.WithCallTimeout(c.settings.CallTimeout),
	)
	return u.Upload(ctx, bucket, key, data, cfg)
}

func (c *Client) multipart(
	ctx context.Context,
	api s3api.S3API,
	bucket, key string,
	data []byte,
	cfg *s3types.UploadConfig,
) (*s3types.UploadResult, error) {
	u := multipart.NewUploader(api,
		multipart.WithLogger(c.logger),
		multipart.WithMetrics(c.metrics),
		multipart.WithConcurrency(c.settings.Concurrency),
		multipart.WithCallTimeout(c.settings.CallTimeout),
		multipart.WithAbortTimeout(c.settings.AbortTimeout),
	)
	return u.Upload(ctx, bucket, key, data, cfg)
}
