// Package config handles loading and validation of uploader configuration.
//
// Values come from an optional YAML file, then environment variables, then
// explicit options supplied by the caller; later sources win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/yaml.v3"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
)

// Environment variables read by Load.
const (
	EnvAccessKey         = "AWS_ACCESS_KEY_ID"
	EnvSecretKey         = "AWS_SECRET_ACCESS_KEY"
	EnvRegion            = "AWS_REGION"
	EnvEndpoint          = "S3UPLOAD_ENDPOINT"
	EnvForcePathStyle    = "S3UPLOAD_FORCE_PATH_STYLE"
	EnvCredentialsSecret = "S3UPLOAD_CREDENTIALS_SECRET"
)

// Defaults applied to zero values.
const (
	DefaultRegion             = "us-east-1"
	DefaultConcurrency        = 5
	DefaultMultipartThreshold = 100 * 1024 * 1024
	DefaultMaxRetries         = 0
	DefaultAbortTimeout       = 30 * time.Second
	DefaultPoolSize           = 4
)

// Config is the top-level uploader configuration.
type Config struct {
	AWS    AWSConfig    `yaml:"aws"`
	Upload UploadConfig `yaml:"upload"`
}

// AWSConfig holds credentials and endpoint settings.
type AWSConfig struct {
	// AccessKey is the access key ID used to sign requests.
	AccessKey string `yaml:"access_key"`
	// SecretKey is the secret access key used to sign requests.
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	// Endpoint overrides the service endpoint, e.g. for LocalStack.
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	MaxRetries     *int   `yaml:"max_retries"`
	// CredentialsSecret names a Secrets Manager secret holding the key pair,
	// read when AccessKey or SecretKey is unset.
	CredentialsSecret string `yaml:"credentials_secret"`
}

// UploadConfig holds transfer tuning.
type UploadConfig struct {
	Concurrency        int           `yaml:"concurrency"`
	MultipartThreshold int64         `yaml:"multipart_threshold"`
	PoolSize           int           `yaml:"pool_size"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	OperationTimeout   time.Duration `yaml:"operation_timeout"`
	AbortTimeout       time.Duration `yaml:"abort_timeout"`
}

// Default returns a Config with defaults and no credentials.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path from fs, when path is non-empty, and
// applies environment overrides and defaults. Credentials are not validated.
func Load(fs billy.Filesystem, path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := util.ReadFile(fs, path)
		if err != nil {
			return nil, uerrors.NewError("loadConfig", fmt.Errorf("reading config file: %w", err))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, uerrors.ConfigError(path, fmt.Sprintf("parsing config file: %v", err))
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Validate checks that both credential halves are present and tuning values
// are usable.
func (c *Config) Validate() error {
	if c.AWS.AccessKey == "" {
		return uerrors.ConfigError("access_key", "access key must be provided")
	}
	if c.AWS.SecretKey == "" {
		return uerrors.ConfigError("secret_key", "secret key must be provided")
	}
	if c.Upload.Concurrency < 0 {
		return uerrors.ConfigError("concurrency", "must not be negative")
	}
	if c.Upload.MultipartThreshold < 0 {
		return uerrors.ConfigError("multipart_threshold", "must not be negative")
	}
	if c.AWS.MaxRetries != nil && *c.AWS.MaxRetries < 0 {
		return uerrors.ConfigError("max_retries", "must not be negative")
	}
	return nil
}

// NeedsSecret reports whether the key pair must be read from
// CredentialsSecret.
func (c *Config) NeedsSecret() bool {
	return c.AWS.CredentialsSecret != "" && (c.AWS.AccessKey == "" || c.AWS.SecretKey == "")
}

// Retries returns the configured retry count.
func (c *Config) Retries() int {
	if c.AWS.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.AWS.MaxRetries
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvAccessKey); ok && v != "" {
		cfg.AWS.AccessKey = v
	}
	if v, ok := os.LookupEnv(EnvSecretKey); ok && v != "" {
		cfg.AWS.SecretKey = v
	}
	if v, ok := os.LookupEnv(EnvRegion); ok && v != "" {
		cfg.AWS.Region = v
	}
	if v, ok := os.LookupEnv(EnvEndpoint); ok && v != "" {
		cfg.AWS.Endpoint = v
	}
	if v, ok := os.LookupEnv(EnvCredentialsSecret); ok && v != "" {
		cfg.AWS.CredentialsSecret = v
	}
	if v, ok := os.LookupEnv(EnvForcePathStyle); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return uerrors.ConfigError(EnvForcePathStyle, fmt.Sprintf("invalid boolean %q", v))
		}
		cfg.AWS.ForcePathStyle = b
	}
	return nil
}

// applyDefaults fills in any fields that are still at their zero value.
func applyDefaults(cfg *Config) {
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = DefaultRegion
	}
	if cfg.Upload.Concurrency == 0 {
		cfg.Upload.Concurrency = DefaultConcurrency
	}
	if cfg.Upload.MultipartThreshold == 0 {
		cfg.Upload.MultipartThreshold = DefaultMultipartThreshold
	}
	if cfg.Upload.PoolSize == 0 {
		cfg.Upload.PoolSize = DefaultPoolSize
	}
	if cfg.Upload.AbortTimeout == 0 {
		cfg.Upload.AbortTimeout = DefaultAbortTimeout
	}
}
