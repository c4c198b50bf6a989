package s3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-hclog"

	"github.com/lordrhodos/apicurio-studio/pkg/connector"
)

const metaCommitMessage = "commit-message"

// Connector stores design documents as S3 objects.
type Connector struct {
	client *s3.Client
	cfg    *Config
	logger hclog.Logger
}

var _ connector.Connector = (*Connector)(nil)

// New creates a new S3 connector.
func New(cfg *Config, logger hclog.Logger) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 configuration: %w", err)
	}
	cfg.SetDefaults()

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	awsCfg, err := createAWSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Path-style addressing for MinIO and other compatible stores.
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	logger.Info("S3 connector initialized",
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"buckets", cfg.Buckets,
	)

	return &Connector{
		client: client,
		cfg:    cfg,
		logger: logger.Named("s3-connector"),
	}, nil
}

func createAWSConfig(cfg *Config) (aws.Config, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	return config.LoadDefaultConfig(context.Background(), opts...)
}

// Type implements connector.Connector.
func (c *Connector) Type() string { return "s3" }

// Schemes implements connector.Connector.
func (c *Connector) Schemes() []string { return []string{"s3"} }

// ParseURL splits an s3://bucket/key URL.
func ParseURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an S3 url: %s", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("S3 url must name a bucket and key: %s", rawURL)
	}
	return u.Host, key, nil
}

func (c *Connector) locate(rawURL string) (string, string, error) {
	bucket, key, err := ParseURL(rawURL)
	if err != nil {
		return "", "", err
	}
	if !c.cfg.bucketAllowed(bucket) {
		return "", "", fmt.Errorf("bucket %s is not configured for publishing", bucket)
	}
	return bucket, key, nil
}

// ValidateResourceExists implements connector.Connector.
func (c *Connector) ValidateResourceExists(ctx context.Context, rawURL string) (*connector.ResourceInfo, error) {
	bucket, key, err := c.locate(rawURL)
	if err != nil {
		return nil, err
	}
	if _, err := c.headObject(ctx, bucket, key); err != nil {
		return nil, err
	}
	return &connector.ResourceInfo{
		URL:  rawURL,
		Name: path.Base(key),
		Type: c.Type(),
	}, nil
}

// GetResourceContent implements connector.Connector.
func (c *Connector) GetResourceContent(ctx context.Context, rawURL string) (*connector.ResourceContent, error) {
	bucket, key, err := c.locate(rawURL)
	if err != nil {
		return nil, err
	}

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, connector.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object content: %w", err)
	}

	return &connector.ResourceContent{
		Content:  string(content),
		Revision: aws.ToString(result.ETag),
	}, nil
}

// CreateResourceContent implements connector.Connector.
func (c *Connector) CreateResourceContent(ctx context.Context, rawURL, message, content string) error {
	bucket, key, err := c.locate(rawURL)
	if err != nil {
		return err
	}

	_, err = c.headObject(ctx, bucket, key)
	switch {
	case err == nil:
		return connector.ErrResourceExists
	case !errors.Is(err, connector.ErrResourceNotFound):
		return err
	}

	return c.putObject(ctx, bucket, key, message, content)
}

// UpdateResourceContent implements connector.Connector. When previous is
// given, the object's ETag must still match its revision.
func (c *Connector) UpdateResourceContent(ctx context.Context, rawURL, message string, previous *connector.ResourceContent, content string) error {
	bucket, key, err := c.locate(rawURL)
	if err != nil {
		return err
	}

	head, err := c.headObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if previous != nil && previous.Revision != "" && aws.ToString(head.ETag) != previous.Revision {
		c.logger.Warn("object changed since it was read",
			"bucket", bucket,
			"key", key,
			"expected_etag", previous.Revision,
			"etag", aws.ToString(head.ETag),
		)
		return connector.ErrResourceChanged
	}

	return c.putObject(ctx, bucket, key, message, content)
}

func (c *Connector) headObject(ctx context.Context, bucket, key string) (*s3.HeadObjectOutput, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, connector.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to head object in S3: %w", err)
	}
	return out, nil
}

func (c *Connector) putObject(ctx context.Context, bucket, key, message, content string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String(contentType(key, c.cfg.DefaultContentType)),
	}
	if message != "" {
		input.Metadata = map[string]string{metaCommitMessage: message}
	}

	result, err := c.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to put object to S3: %w", err)
	}

	c.logger.Info("object written",
		"bucket", bucket,
		"key", key,
		"etag", aws.ToString(result.ETag),
	)
	return nil
}

func contentType(key, fallback string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	default:
		return fallback
	}
}
