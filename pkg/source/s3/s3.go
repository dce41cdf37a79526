// Package s3 reads documents from an S3-compatible bucket for bulk
// re-ingest. MinIO and other compatible stores work through the custom
// endpoint option, which switches the client to path-style addressing.
package s3

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"

	"github.com/niranworks/compass/pkg/source"
)

// Config contains the bucket connection settings.
type Config struct {
	// Endpoint overrides the AWS endpoint, for MinIO and other
	// S3-compatible services.
	Endpoint string `hcl:"endpoint,optional"`

	Region string `hcl:"region"`
	Bucket string `hcl:"bucket"`

	// Prefix limits the walk to keys under this namespace.
	Prefix string `hcl:"prefix,optional"`

	// Static credentials. The default AWS credential chain applies when
	// these are empty.
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`

	// Collection forces every document into one collection instead of
	// inferring it from the object key path.
	Collection string `hcl:"collection,optional"`

	RequestTimeoutSeconds int  `hcl:"request_timeout_seconds,optional"`
	InsecureSkipVerify    bool `hcl:"insecure_skip_verify,optional"`
}

// Validate returns an error when required settings are missing.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}

// SetDefaults fills in defaults for optional settings.
func (c *Config) SetDefaults() {
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
}

// Source reads documents from one bucket.
type Source struct {
	client *s3.Client
	cfg    *Config
	logger hclog.Logger
}

// New creates an S3 source and verifies the bucket is reachable.
func New(ctx context.Context, cfg *Config, logger hclog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 source configuration: %w", err)
	}
	cfg.SetDefaults()

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	awsCfg, err := createAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Force path-style addressing for MinIO
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("bucket %s is not accessible: %w", cfg.Bucket, err)
	}

	return &Source{
		client: client,
		cfg:    cfg,
		logger: logger.Named("s3-source"),
	}, nil
}

// createAWSConfig builds the AWS SDK configuration from source settings.
func createAWSConfig(ctx context.Context, cfg *Config) (aws.Config, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// Name identifies the source kind.
func (s *Source) Name() string { return "s3" }

// Read lists every object under the configured prefix and calls fn for
// each one it can decode. Undecodable objects are logged and skipped.
func (s *Source) Read(ctx context.Context, fn func(source.Document) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !source.Supported(key) {
				continue
			}

			doc, ok, err := s.readObject(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
	}

	return nil
}

// readObject fetches and decodes a single object. The boolean is false
// when the object was skipped rather than failed.
func (s *Source) readObject(ctx context.Context, key string) (source.Document, bool, error) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, s.cfg.Prefix), "/")

	collection := s.cfg.Collection
	if collection == "" {
		collection = source.CollectionFromPath(rel)
	}
	if collection == "" {
		s.logger.Warn("skipping object outside a collection prefix", "key", key)
		return source.Document{}, false, nil
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return source.Document{}, false, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return source.Document{}, false, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	fields, err := source.DecodeFields(key, data)
	if err != nil {
		s.logger.Warn("skipping undecodable object", "key", key, "error", err)
		return source.Document{}, false, nil
	}

	return source.Document{
		Collection: collection,
		Fields:     fields,
		Origin:     key,
	}, true, nil
}
