// Package s3 publishes designs to S3-compatible object storage. Resources
// are addressed as s3://bucket/key.
package s3

import (
	"fmt"
)

// Config contains configuration for the S3 connector.
type Config struct {
	Endpoint  string `hcl:"endpoint,optional"`   // Custom endpoint, e.g. a MinIO URL
	Region    string `hcl:"region"`              // AWS region
	AccessKey string `hcl:"access_key,optional"` // Falls back to the default credential chain
	SecretKey string `hcl:"secret_key,optional"`

	// Buckets restricts the buckets the connector will touch. Empty allows
	// any bucket.
	Buckets []string `hcl:"buckets,optional"`

	RequestTimeoutSeconds int  `hcl:"request_timeout_seconds,optional"`
	InsecureSkipVerify    bool `hcl:"insecure_skip_verify,optional"` // For testing only

	DefaultContentType string `hcl:"default_content_type,optional"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	return nil
}

// SetDefaults sets default values for optional fields.
func (c *Config) SetDefaults() {
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.DefaultContentType == "" {
		c.DefaultContentType = "application/json"
	}
}

func (c *Config) bucketAllowed(bucket string) bool {
	if len(c.Buckets) == 0 {
		return true
	}
	for _, b := range c.Buckets {
		if b == bucket {
			return true
		}
	}
	return false
}
