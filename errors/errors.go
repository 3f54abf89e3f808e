// Package errors provides error types and handling for S3 upload operations.
//
// Failures fall into three kinds, each matchable with errors.Is:
//   - ErrConfiguration: missing or invalid client configuration, fatal at startup
//   - ErrTransport: a single remote call failed (network or service error)
//   - ErrUploadFailed: an upload operation failed at a given Stage
//
// An upload failure wraps the transport failure that caused it, so both
// errors.Is(err, ErrUploadFailed) and errors.Is(err, ErrTransport) hold.
package errors

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Stage identifies the step of an upload that failed.
type Stage string

// Upload stages.
const (
	StageResolve  Stage = "resolve"
	StageInitiate Stage = "initiate"
	StagePart     Stage = "part"
	StageComplete Stage = "complete"
	StagePut      Stage = "put"
)

// Sentinel errors for upload failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrConfiguration indicates the client configuration is incomplete or invalid
	ErrConfiguration = errors.New("s3upload: configuration error")

	// ErrTransport indicates a remote call to the storage service failed
	ErrTransport = errors.New("s3upload: transport error")

	// ErrUploadFailed indicates an upload operation failed irrecoverably
	ErrUploadFailed = errors.New("s3upload: upload failed")

	// ErrFileNotFound indicates that a local file could not be resolved
	ErrFileNotFound = errors.New("s3upload: file not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("s3upload: invalid input")
)

// Error represents an upload error with context about the operation that failed.
// It wraps the underlying AWS SDK error with additional context for better debugging.
type Error struct {
	// kind is one of the sentinel errors above
	kind error

	// Op is the operation that failed (e.g., "putObject", "uploadPart")
	Op string

	// Stage is the upload stage, set for upload failures
	Stage Stage

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// PartNumber is the 1-based part number for part failures, 0 otherwise
	PartNumber int32

	// Code is the service error code reported by the remote side, if any
	Code string

	// Err is the underlying error from the AWS SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	var msg string
	switch {
	case e.Bucket != "" && e.Key != "":
		msg = fmt.Sprintf("s3upload.%s %s/%s", e.Op, e.Bucket, e.Key)
	case e.Bucket != "":
		msg = fmt.Sprintf("s3upload.%s bucket %s", e.Op, e.Bucket)
	case e.Key != "":
		msg = fmt.Sprintf("s3upload.%s object %s", e.Op, e.Key)
	default:
		msg = "s3upload." + e.Op
	}
	if e.Stage != "" {
		msg += " stage=" + string(e.Stage)
	}
	if e.PartNumber > 0 {
		msg += fmt.Sprintf(" part=%d", e.PartNumber)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel kind of this error.
func (e *Error) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithPart adds part number context to an existing error.
func (e *Error) WithPart(partNumber int32) *Error {
	e.PartNumber = partNumber
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// ConfigError reports a missing or invalid configuration field.
func ConfigError(field, message string) *Error {
	return &Error{
		kind: ErrConfiguration,
		Op:   "configure",
		Err:  fmt.Errorf("%s: %s", field, message),
	}
}

// ConfigCause reports a configuration field that could not be resolved
// because of err. The cause stays matchable with errors.Is.
func ConfigCause(field string, err error) *Error {
	return &Error{
		kind: ErrConfiguration,
		Op:   "configure",
		Err:  fmt.Errorf("%s: %w", field, err),
	}
}

// TransportError wraps a failed remote call. The service error code is
// recorded when the SDK reports one.
func TransportError(op string, err error) *Error {
	e := &Error{
		kind: ErrTransport,
		Op:   op,
		Err:  err,
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		e.Code = apiErr.ErrorCode()
	}
	return e
}

// UploadFailed wraps the cause of a failed upload at the given stage.
func UploadFailed(stage Stage, bucket, key string, err error) *Error {
	return &Error{
		kind:   ErrUploadFailed,
		Op:     "upload",
		Stage:  stage,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// StageOf returns the stage of the outermost upload failure in err's chain,
// or "" if err is not an upload failure.
func StageOf(err error) Stage {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return ""
		}
		if e.kind == ErrUploadFailed {
			return e.Stage
		}
		err = e.Err
	}
	return ""
}

// APICode returns the first service error code recorded in err's chain.
func APICode(err error) string {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			break
		}
		if e.Code != "" {
			return e.Code
		}
		err = e.Err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsUploadFailed checks if an error indicates a failed upload.
func IsUploadFailed(err error) bool {
	return errors.Is(err, ErrUploadFailed)
}

// IsTransport checks if an error originated from a failed remote call.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsConfiguration checks if an error indicates invalid configuration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsFileNotFound checks if an error indicates a missing local file.
func IsFileNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}
