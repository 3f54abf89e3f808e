package s3upload

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/s3types"
)

// WithConfigFile loads credentials and tuning from a YAML file. Environment
// variables and other options override values read from the file.
func WithConfigFile(path string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ConfigFile = path
	}
}

// WithRegion sets the AWS region for S3 operations.
// Default is us-east-1.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services or local testing with LocalStack.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces the use of path-style URLs instead of virtual-hosted style.
// This is required for S3-compatible services that don't support virtual hosting.
func WithForcePathStyle(forcePathStyle bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithCredentials sets the static access key pair used to sign requests.
func WithCredentials(accessKey, secretKey string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.AccessKey = accessKey
		c.SecretKey = secretKey
	}
}

// WithCredentialsSecret reads the access key pair from the named AWS Secrets
// Manager secret when no pair is configured. The secret is fetched once, in
// New, using the ambient AWS credentials.
func WithCredentialsSecret(secretID string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CredentialsSecret = secretID
	}
}

// WithMaxRetries lets the SDK retryer retry each remote call up to maxRetries
// times. The default is 0: every call is attempted once and the caller owns
// retry policy.
func WithMaxRetries(maxRetries int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithCallTimeout bounds each individual remote call.
func WithCallTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CallTimeout = timeout
	}
}

// WithOperationTimeout bounds a whole upload, including every part.
func WithOperationTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.OperationTimeout = timeout
	}
}

// WithAbortTimeout bounds the cleanup of a failed multipart upload.
// Default is 30 seconds.
func WithAbortTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.AbortTimeout = timeout
	}
}

// WithConcurrency sets the maximum number of parts uploaded at once.
// Default is 5 concurrent parts.
func WithConcurrency(concurrency int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithMultipartThreshold sets the payload size from which UploadAuto uses a
// multipart upload. Default is 100MB.
func WithMultipartThreshold(threshold int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if threshold > 0 {
			c.MultipartThreshold = threshold
		}
	}
}

// WithPoolSize sets how many idle SDK clients the session pool keeps.
func WithPoolSize(size int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if size > 0 {
			c.PoolSize = size
		}
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// This overrides the default configuration loading behavior; static
// credentials are only required when config carries no provider.
func WithAWSConfig(config *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithLogger sets the structured logger. Logging is disabled by default.
func WithLogger(logger *slog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Logger = logger
	}
}

// WithMetrics registers the client's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Registerer = reg
	}
}

// WithFilesystem sets the filesystem used by UploadFile and for the config
// file. Default is the host filesystem.
func WithFilesystem(filesystem billy.Filesystem) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// Upload option functions

// WithContentType sets the Content-Type header for uploads.
// When unset the type is detected from the payload.
func WithContentType(contentType string) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata sets custom metadata for uploads.
// Metadata is merged with any existing metadata.
func WithMetadata(metadata map[string]string) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// WithStorageClass sets the storage class for uploads.
func WithStorageClass(storageClass s3types.StorageClass) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		c.StorageClass = storageClass
	}
}

// WithProgress sets a progress tracker for uploads.
func WithProgress(tracker s3types.ProgressTracker) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		c.ProgressTracker = tracker
	}
}

// WithUploadConcurrency overrides the client concurrency for one upload.
func WithUploadConcurrency(concurrency int) s3types.UploadOption {
	return func(c *s3types.UploadOptionConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}
