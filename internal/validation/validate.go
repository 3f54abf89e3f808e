// Package validation checks upload targets before any remote call is made.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
)

const (
	maxKeyLength      = 1024
	maxMetadataLength = 2048
)

// Target validates the bucket and key of an upload together.
func Target(bucket, key string) error {
	if err := BucketName(bucket); err != nil {
		return err
	}
	return ObjectKey(bucket, key)
}

// BucketName validates that a bucket name is DNS-compliant.
func BucketName(bucket string) error {
	if bucket == "" {
		return bucketError(bucket, "bucket name cannot be empty")
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return bucketError(bucket, "bucket name must be between 3 and 63 characters long")
	}
	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return bucketError(bucket, "bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}
	first, last := bucket[0], bucket[len(bucket)-1]
	if first == '-' || first == '.' || last == '-' || last == '.' {
		return bucketError(bucket, "bucket name cannot start or end with a hyphen or dot")
	}
	if isIPAddress(bucket) {
		return bucketError(bucket, "bucket name cannot be formatted as an IP address")
	}
	if strings.Contains(bucket, "..") {
		return bucketError(bucket, "bucket name cannot contain two adjacent periods")
	}
	return nil
}

// ObjectKey validates that an object key is non-empty, at most 1024 bytes
// and free of control characters.
func ObjectKey(bucket, key string) error {
	if key == "" {
		return keyError(bucket, key, "object key cannot be empty")
	}
	if len(key) > maxKeyLength {
		return keyError(bucket, key, "object key cannot exceed 1024 bytes")
	}
	for _, char := range key {
		if unicode.IsControl(char) {
			return keyError(bucket, key, "object key cannot contain control characters")
		}
	}
	return nil
}

// Metadata validates user metadata keys and the combined size of all entries.
func Metadata(metadata map[string]string) error {
	total := 0
	for key, value := range metadata {
		if key == "" {
			return metadataError("metadata key cannot be empty")
		}
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "x-amz-") || strings.HasPrefix(lower, "aws:") {
			return metadataError(fmt.Sprintf("metadata key %q uses a reserved prefix", key))
		}
		for _, char := range key {
			if char <= ' ' || char > '~' {
				return metadataError(fmt.Sprintf("metadata key %q can only contain printable ASCII characters", key))
			}
		}
		for _, char := range value {
			if unicode.IsControl(char) {
				return metadataError(fmt.Sprintf("metadata value for %q cannot contain control characters", key))
			}
		}
		total += len(key) + len(value)
	}
	if total > maxMetadataLength {
		return metadataError(fmt.Sprintf("metadata is %d bytes, limit is %d", total, maxMetadataLength))
	}
	return nil
}

func bucketError(bucket, msg string) error {
	return uerrors.NewError("validateBucketName", fmt.Errorf("%w: %s", uerrors.ErrInvalidInput, msg)).
		WithBucket(bucket)
}

func keyError(bucket, key, msg string) error {
	return uerrors.NewError("validateObjectKey", fmt.Errorf("%w: %s", uerrors.ErrInvalidInput, msg)).
		WithBucket(bucket).WithKey(key)
}

func metadataError(msg string) error {
	return uerrors.NewError("validateMetadata", fmt.Errorf("%w: %s", uerrors.ErrInvalidInput, msg))
}

func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// isIPAddress reports whether s looks like a dotted IPv4 address.
func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		num := 0
		for _, char := range part {
			if char < '0' || char > '9' {
				return false
			}
			num = num*10 + int(char-'0')
		}
		if num > 255 {
			return false
		}
	}
	return true
}
