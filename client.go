package s3upload

import (
	"context"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/config"
	secretcreds "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/credentials"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/resolver"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/s3types"
)

// Client uploads objects to S3. It is safe for concurrent use.
type Client struct {
	// pool hands out SDK clients, one per upload operation
	pool *pool.ClientPool

	// resolver reads local files for UploadFile
	resolver *resolver.Resolver

	logger  *slog.Logger
	metrics *metrics.Metrics

	// settings is the resolved transfer tuning, immutable after New
	settings config.UploadConfig

	// awsConfig holds the AWS configuration clients are built from
	awsConfig aws.Config
}

// New creates a new upload client with the provided options.
// Settings are read from the optional config file, then the environment,
// then opts. An access key pair is required unless a custom AWS config with
// its own credentials provider is supplied.
//
// Example:
//
//	client, err := s3upload.New(ctx,
//	    s3upload.WithRegion("us-west-2"),
//	    s3upload.WithCredentials(accessKey, secretKey),
//	)
func New(ctx context.Context, opts ...s3types.Option) (*Client, error) {
	clientCfg := newClientConfig(opts)
	res := resolver.New(clientCfg.Filesystem)

	cfg, err := config.Load(res.Filesystem(), res.Path(clientCfg.ConfigFile))
	if err != nil {
		return nil, err
	}
	merge(cfg, clientCfg)

	if cfg.NeedsSecret() {
		if err := resolveSecret(ctx, cfg, clientCfg); err != nil {
			return nil, err
		}
	}

	custom := clientCfg.CustomAWSConfig
	if custom == nil || custom.Credentials == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, clientCfg)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if cfg.AWS.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.AWS.Endpoint != "" {
		endpoint := cfg.AWS.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	factory := func() (s3api.S3API, error) {
		return s3.NewFromConfig(awsCfg, s3Opts...), nil
	}

	client, err := newClient(pool.NewClientPool(factory, cfg.Upload.PoolSize), res, cfg, clientCfg)
	if err != nil {
		return nil, err
	}
	client.awsConfig = awsCfg

	client.logger.Debug("upload client initialized",
		slog.String("region", awsCfg.Region),
		slog.String("endpoint", cfg.AWS.Endpoint),
		slog.Int("concurrency", cfg.Upload.Concurrency),
		slog.Int64("multipart_threshold", cfg.Upload.MultipartThreshold),
	)
	return client, nil
}

// NewWithClient creates a new upload client with a custom S3API implementation.
// This is primarily used for testing with mocked clients. Credentials are
// not required and the config file is not read.
func NewWithClient(s3Client s3api.S3API, opts ...s3types.Option) (*Client, error) {
	clientCfg := newClientConfig(opts)
	cfg := config.Default()
	merge(cfg, clientCfg)
	return newClient(pool.Static(s3Client), resolver.New(clientCfg.Filesystem), cfg, clientCfg)
}

func newClient(
	p *pool.ClientPool,
	res *resolver.Resolver,
	cfg *config.Config,
	clientCfg *s3types.ClientConfig,
) (*Client, error) {
	m, err := metrics.New(clientCfg.Registerer)
	if err != nil {
		return nil, uerrors.NewError("client initialization", err)
	}

	logger := clientCfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		pool:     p,
		resolver: res,
		logger:   logger,
		metrics:  m,
		settings: cfg.Upload,
	}, nil
}

// newClientConfig applies opts over values that mean "not set".
func newClientConfig(opts []s3types.Option) *s3types.ClientConfig {
	clientCfg := &s3types.ClientConfig{
		MaxRetries: -1,
	}
	for _, opt := range opts {
		opt(clientCfg)
	}
	return clientCfg
}

// merge overlays explicitly set options on cfg.
func merge(cfg *config.Config, o *s3types.ClientConfig) {
	if o.Region != "" {
		cfg.AWS.Region = o.Region
	}
	if o.Endpoint != "" {
		cfg.AWS.Endpoint = o.Endpoint
	}
	if o.ForcePathStyle {
		cfg.AWS.ForcePathStyle = true
	}
	if o.AccessKey != "" {
		cfg.AWS.AccessKey = o.AccessKey
	}
	if o.SecretKey != "" {
		cfg.AWS.SecretKey = o.SecretKey
	}
	if o.CredentialsSecret != "" {
		cfg.AWS.CredentialsSecret = o.CredentialsSecret
	}
	if o.MaxRetries >= 0 {
		retries := o.MaxRetries
		cfg.AWS.MaxRetries = &retries
	}
	if o.CallTimeout > 0 {
		cfg.Upload.CallTimeout = o.CallTimeout
	}
	if o.OperationTimeout > 0 {
		cfg.Upload.OperationTimeout = o.OperationTimeout
	}
	if o.AbortTimeout > 0 {
		cfg.Upload.AbortTimeout = o.AbortTimeout
	}
	if o.Concurrency > 0 {
		cfg.Upload.Concurrency = o.Concurrency
	}
	if o.MultipartThreshold > 0 {
		cfg.Upload.MultipartThreshold = o.MultipartThreshold
	}
	if o.PoolSize > 0 {
		cfg.Upload.PoolSize = o.PoolSize
	}
}

// newSecretsAPI builds the Secrets Manager client the key pair is read with.
var newSecretsAPI = func(awsCfg aws.Config, endpoint string) secretcreds.ManagerAPI {
	return secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// resolveSecret fills the missing key pair from the configured secret,
// authenticating with the ambient AWS credentials.
func resolveSecret(ctx context.Context, cfg *config.Config, o *s3types.ClientConfig) error {
	var bootstrap aws.Config
	if o.CustomAWSConfig != nil {
		bootstrap = o.CustomAWSConfig.Copy()
	} else {
		var err error
		bootstrap, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return uerrors.NewError("client initialization", err)
		}
	}
	if bootstrap.Region == "" {
		bootstrap.Region = cfg.AWS.Region
	}

	pair, err := secretcreds.FromSecret(ctx, newSecretsAPI(bootstrap, cfg.AWS.Endpoint),
		cfg.AWS.CredentialsSecret, o.Logger)
	if err != nil {
		return err
	}
	cfg.AWS.AccessKey = pair.AccessKey
	cfg.AWS.SecretKey = pair.SecretKey
	return nil
}

// loadAWSConfig builds the SDK configuration. The SDK counts the first
// attempt, so retries are offset by one.
func loadAWSConfig(ctx context.Context, cfg *config.Config, o *s3types.ClientConfig) (aws.Config, error) {
	maxAttempts := cfg.Retries() + 1

	var provider aws.CredentialsProvider
	if cfg.AWS.AccessKey != "" && cfg.AWS.SecretKey != "" {
		provider = credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKey, cfg.AWS.SecretKey, "")
	}

	if o.CustomAWSConfig != nil {
		awsCfg := o.CustomAWSConfig.Copy()
		if o.Region != "" || awsCfg.Region == "" {
			awsCfg.Region = cfg.AWS.Region
		}
		if provider != nil {
			awsCfg.Credentials = aws.NewCredentialsCache(provider)
		}
		awsCfg.RetryMaxAttempts = maxAttempts
		return awsCfg, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
		awsconfig.WithRetryMaxAttempts(maxAttempts),
	}
	if provider != nil {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(provider))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, uerrors.NewError("client initialization", err)
	}
	return awsCfg, nil
}

// Stats reports the session pool counters.
func (c *Client) Stats() pool.Stats {
	return c.pool.Stats()
}

// Close releases the pooled SDK clients. Uploads started after Close fail.
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}
