// Package main is the entry point for s3upload, a command that uploads one
// local file to S3.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload"
	uerrors "github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/logging"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/internal/resolver"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3upload/s3types"
)

// Upload modes selectable with -mode.
const (
	modeAuto      = "auto"
	modeSingle    = "single"
	modeMultipart = "multipart"
)

type options struct {
	configPath  string
	bucket      string
	key         string
	file        string
	mode        string
	contentType string
	concurrency int
	timeout     time.Duration
	logLevel    string
	logFormat   string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("s3upload", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "YAML config file path")
	fs.StringVar(&opts.bucket, "bucket", "", "Destination bucket (required)")
	fs.StringVar(&opts.key, "key", "", "Object key (default: file base name)")
	fs.StringVar(&opts.file, "file", "", "Local file to upload (required)")
	fs.StringVar(&opts.mode, "mode", modeAuto, "Upload mode: auto, single or multipart")
	multipartFlag := fs.Bool("multipart", false, "Shorthand for -mode multipart")
	fs.StringVar(&opts.contentType, "content-type", "", "Content-Type (default: detected)")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "Parts uploaded in parallel (default 5)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Overall upload timeout, 0 for none")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *multipartFlag {
		opts.mode = modeMultipart
	}

	switch {
	case opts.bucket == "":
		return nil, errors.New("-bucket is required")
	case opts.file == "":
		return nil, errors.New("-file is required")
	}
	switch opts.mode {
	case modeAuto, modeSingle, modeMultipart:
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rc := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(rc)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logger := logging.New(opts.logLevel, opts.logFormat, stderr)

	clientOpts := []s3types.Option{
		s3upload.WithLogger(logger),
		s3upload.WithConcurrency(opts.concurrency),
		s3upload.WithOperationTimeout(opts.timeout),
	}
	if opts.configPath != "" {
		clientOpts = append(clientOpts, s3upload.WithConfigFile(opts.configPath))
	}

	client, err := s3upload.New(ctx, clientOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing client: %v\n", err)
		return 1
	}
	defer client.Close()

	file, err := resolver.New(nil).Resolve(opts.file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key := opts.key
	if key == "" {
		key = file.Name
	}

	var uploadOpts []s3types.UploadOption
	if opts.contentType != "" {
		uploadOpts = append(uploadOpts, s3upload.WithContentType(opts.contentType))
	}

	var result *s3types.UploadResult
	switch opts.mode {
	case modeSingle:
		result, err = client.Upload(ctx, opts.bucket, key, file.Data, uploadOpts...)
	case modeMultipart:
		result, err = client.UploadMultipart(ctx, opts.bucket, key, file.Data, uploadOpts...)
	default:
		result, err = client.UploadAuto(ctx, opts.bucket, key, file.Data, uploadOpts...)
	}
	if err != nil {
		if stage := uerrors.StageOf(err); stage != "" {
			fmt.Fprintf(stderr, "Error: upload failed at stage %s: %v\n", stage, err)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}

	fmt.Fprintln(stdout, result.ETag)
	return 0
}
