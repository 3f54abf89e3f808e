// Package credentials loads the upload key pair from AWS Secrets Manager.
//
// The secret value is a JSON object holding "access_key" and "secret_key";
// the AWS console names "AWS_ACCESS_KEY_ID" and "AWS_SECRET_ACCESS_KEY" are
// accepted as well. Secret values are never logged.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
)

// AWS error code constants
const (
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
)

var (
	// ErrSecretNotFound is returned when the named secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrSecretEmpty is returned when the secret holds no usable key pair.
	ErrSecretEmpty = errors.New("secret value is empty")

	// ErrAccessDenied is returned when the caller may not read the secret.
	ErrAccessDenied = errors.New("access denied to secret")
)

// ManagerAPI is the subset of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

var _ ManagerAPI = (*secretsmanager.Client)(nil)

// KeyPair is a static access key pair.
type KeyPair struct {
	AccessKey string
	SecretKey string
}

type secretDocument struct {
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	AWSAccessKey string `json:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `json:"AWS_SECRET_ACCESS_KEY"`
}

// FromSecret reads the key pair stored in secretID. Failures are
// configuration errors, since the client cannot start without the pair.
func FromSecret(ctx context.Context, api ManagerAPI, secretID string, logger *slog.Logger) (KeyPair, error) {
	if secretID == "" {
		return KeyPair{}, uerrors.ConfigError("credentials_secret", "secret name cannot be empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.DebugContext(ctx, "retrieving credentials secret", slog.String("secret_name", secretID))

	output, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case ResourceNotFoundException:
				err = ErrSecretNotFound
			case AccessDeniedException:
				err = ErrAccessDenied
			}
		}
		logger.ErrorContext(ctx, "failed to retrieve credentials secret",
			slog.String("secret_name", secretID),
			slog.Any("error", err),
		)
		return KeyPair{}, secretError(secretID, err)
	}

	var raw []byte
	switch {
	case output.SecretString != nil:
		raw = []byte(*output.SecretString)
	case output.SecretBinary != nil:
		raw = output.SecretBinary
	default:
		return KeyPair{}, secretError(secretID, ErrSecretEmpty)
	}

	var doc secretDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return KeyPair{}, secretError(secretID, errors.New("secret is not a JSON object"))
	}

	pair := KeyPair{AccessKey: doc.AccessKey, SecretKey: doc.SecretKey}
	if pair.AccessKey == "" {
		pair.AccessKey = doc.AWSAccessKey
	}
	if pair.SecretKey == "" {
		pair.SecretKey = doc.AWSSecretKey
	}
	if pair.AccessKey == "" || pair.SecretKey == "" {
		return KeyPair{}, secretError(secretID, ErrSecretEmpty)
	}

	logger.DebugContext(ctx, "credentials secret retrieved", slog.String("secret_name", secretID))
	return pair, nil
}

// secretError keeps the cause matchable without echoing the secret value.
func secretError(secretID string, err error) error {
	return uerrors.ConfigCause("credentials_secret", fmt.Errorf("%s: %w", secretID, err))
}
