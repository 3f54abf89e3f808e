// Package s3types provides shared type definitions for the s3upload module.
package s3types

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// StorageClass represents the S3 storage class for objects.
type StorageClass string

// Predefined S3 storage classes
const (
	// StorageClassStandard is the default S3 storage class
	StorageClassStandard StorageClass = "STANDARD"

	// StorageClassStandardIA provides infrequent access storage
	StorageClassStandardIA StorageClass = "STANDARD_IA"

	// StorageClassIntelligentTiering provides intelligent tiering storage
	StorageClassIntelligentTiering StorageClass = "INTELLIGENT_TIERING"

	// StorageClassGlacierIR provides Glacier Instant Retrieval storage
	StorageClassGlacierIR StorageClass = "GLACIER_IR"
)

// Upload modes, used as the "mode" label on metrics and in logs.
const (
	ModeSingle    = "single"
	ModeMultipart = "multipart"
)

// ProgressTracker defines the interface for tracking transfer progress.
// Implementations must be safe for concurrent use: multipart uploads report
// progress from several goroutines.
type ProgressTracker interface {
	// Update is called with the cumulative bytes transferred
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully
	Complete()

	// Error is called when the transfer fails
	Error(err error)
}

// UploadConfig holds configuration for a single upload operation.
type UploadConfig struct {
	ContentType     string
	Metadata        map[string]string
	StorageClass    StorageClass
	ProgressTracker ProgressTracker
	Concurrency     int
}

// UploadResult contains the result of an upload operation.
type UploadResult struct {
	// Bucket is the bucket the object was written to
	Bucket string

	// Key is the S3 object key that was uploaded
	Key string

	// Size is the size of the uploaded object in bytes
	Size int64

	// ETag is the completion token returned by the service
	ETag string

	// VersionID is the version ID if versioning is enabled
	VersionID string

	// Parts is the number of parts uploaded, 1 for single-shot uploads
	Parts int

	// UploadID is the multipart session identifier, empty for single-shot uploads
	UploadID string

	// Duration is how long the upload took
	Duration time.Duration
}

// Configuration types for functional options

// ClientConfig holds configuration for the upload client.
type ClientConfig struct {
	// ConfigFile is an optional YAML file with credentials and endpoint settings
	ConfigFile string

	Region         string
	Endpoint       string
	ForcePathStyle bool
	AccessKey      string
	SecretKey      string

	// CredentialsSecret names a Secrets Manager secret holding the key pair
	CredentialsSecret string

	// MaxRetries is passed to the SDK retryer. 0 disables retries, a
	// negative value keeps the file or default setting.
	MaxRetries int

	// CallTimeout bounds each remote call; 0 means no per-call timeout
	CallTimeout time.Duration
	// OperationTimeout bounds a whole upload; 0 means no operation timeout
	OperationTimeout time.Duration
	// AbortTimeout bounds the best-effort abort of a failed multipart upload
	AbortTimeout time.Duration

	Concurrency        int
	MultipartThreshold int64
	PoolSize           int

	CustomAWSConfig *aws.Config
	Logger          *slog.Logger
	Registerer      prometheus.Registerer
	Filesystem      billy.Filesystem
}

// UploadOptionConfig holds configuration for upload operations via functional options.
type UploadOptionConfig struct {
	ContentType     string
	Metadata        map[string]string
	StorageClass    StorageClass
	ProgressTracker ProgressTracker
	Concurrency     int
}

// ToUploadConfig converts option values into the per-operation config.
func (c *UploadOptionConfig) ToUploadConfig() *UploadConfig {
	return &UploadConfig{
		ContentType:     c.ContentType,
		Metadata:        c.Metadata,
		StorageClass:    c.StorageClass,
		ProgressTracker: c.ProgressTracker,
		Concurrency:     c.Concurrency,
	}
}

// Option is a functional option for configuring the upload client.
type (
	Option func(*ClientConfig)
	// UploadOption is a functional option for configuring upload operations.
	UploadOption func(*UploadOptionConfig)
)
