package s3

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/justapithecus/cdal/dal"
	"github.com/justapithecus/cdal/internal/options"
)

// DefaultRegion is used when the option map names no region.
const DefaultRegion = "us-east-1"

// ClientConfig holds configuration for creating an S3 client.
type ClientConfig struct {
	// Region is the AWS region (required).
	Region string

	// Endpoint is an optional custom endpoint URL for S3-compatible
	// services (MinIO, LocalStack, R2).
	Endpoint string

	// UsePathStyle enables path-style addressing instead of virtual-hosted
	// style.
	UsePathStyle bool

	// Credentials are the AWS credentials to use.
	// If nil, uses the default credential chain.
	Credentials aws.CredentialsProvider
}

// NewClient creates a new S3 client with the given configuration.
//
// For MinIO:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Region:       "us-east-1",
//	    Endpoint:     "http://localhost:9000",
//	    UsePathStyle: true,
//	    Credentials:  credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// -----------------------------------------------------------------------------
// Scheme registration
// -----------------------------------------------------------------------------

// Options is the option map accepted by the s3 scheme.
type Options struct {
	Bucket          string `json:"bucket"`
	Root            string `json:"root"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`

	// EnableVirtualHostStyle switches from path-style to virtual-hosted
	// addressing.
	EnableVirtualHostStyle bool `json:"enable_virtual_host_style,string"`
}

// ClientConfig derives the client configuration from o.
func (o Options) ClientConfig() ClientConfig {
	cfg := ClientConfig{
		Region:       o.Region,
		Endpoint:     o.Endpoint,
		UsePathStyle: !o.EnableVirtualHostStyle,
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if o.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, o.SessionToken)
	}
	return cfg
}

func init() {
	dal.Register(dal.SchemeS3, newFromMap)
}

func newFromMap(m map[string]string) (dal.Accessor, error) {
	var o Options
	if err := options.Decode(m, &o); err != nil {
		return nil, &dal.ConfigError{Scheme: dal.SchemeS3, Err: err}
	}
	if o.Bucket == "" {
		return nil, &dal.ConfigError{Scheme: dal.SchemeS3, Key: "bucket", Err: errors.New("required")}
	}
	if o.SecretAccessKey != "" && o.AccessKeyID == "" {
		return nil, &dal.ConfigError{Scheme: dal.SchemeS3, Key: "access_key_id", Err: errors.New("required with secret_access_key")}
	}

	client, err := NewClient(context.Background(), o.ClientConfig())
	if err != nil {
		return nil, &dal.InitError{Scheme: dal.SchemeS3, Err: err}
	}
	acc, err := New(client, Config{Bucket: o.Bucket, Root: o.Root})
	if err != nil {
		return nil, err
	}
	return acc, nil
}
