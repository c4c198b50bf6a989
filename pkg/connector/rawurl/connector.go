// Package rawurl imports designs from plain http(s) URLs. It is read-only.
package rawurl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/lordrhodos/apicurio-studio/pkg/connector"
)

const maxContentBytes = 10 << 20

// Config contains configuration for the raw URL connector.
type Config struct {
	TimeoutSeconds int    `hcl:"timeout_seconds,optional"`
	MaxRetries     uint64 `hcl:"max_retries,optional"`
}

// Connector fetches resources over http(s).
type Connector struct {
	client     *http.Client
	maxRetries uint64
	logger     hclog.Logger

	// newBackOff is replaceable in tests.
	newBackOff func() backoff.BackOff
}

var _ connector.Connector = (*Connector)(nil)

// New returns a raw URL connector.
func New(cfg *Config, logger hclog.Logger) *Connector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 3
	}
	return &Connector{
		client:     &http.Client{Timeout: timeout},
		maxRetries: retries,
		logger:     logger.Named("rawurl-connector"),
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Type implements connector.Connector.
func (c *Connector) Type() string { return "url" }

// Schemes implements connector.Connector.
func (c *Connector) Schemes() []string { return []string{"http", "https"} }

// ValidateResourceExists implements connector.Connector.
func (c *Connector) ValidateResourceExists(ctx context.Context, rawURL string) (*connector.ResourceInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	u, _ := url.Parse(rawURL)
	return &connector.ResourceInfo{URL: rawURL, Name: path.Base(u.Path), Type: c.Type()}, nil
}

// GetResourceContent implements connector.Connector.
func (c *Connector) GetResourceContent(ctx context.Context, rawURL string) (*connector.ResourceContent, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", rawURL, err)
	}
	content := string(b)

	revision := resp.Header.Get("ETag")
	if revision == "" {
		revision = connector.Revision(content)
	}
	return &connector.ResourceContent{Content: content, Revision: revision}, nil
}

// CreateResourceContent is not supported.
func (c *Connector) CreateResourceContent(context.Context, string, string, string) error {
	return connector.ErrUnsupported
}

// UpdateResourceContent is not supported.
func (c *Connector) UpdateResourceContent(context.Context, string, string, *connector.ResourceContent, string) error {
	return connector.ErrUnsupported
}

// do issues a request, retrying transport errors and 5xx responses with
// exponential backoff. 404 and 410 map to ErrResourceNotFound.
func (c *Connector) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("invalid url: %w", err))
		}

		r, err := c.client.Do(req)
		if err != nil {
			c.logger.Debug("request failed", "url", rawURL, "attempt", attempt, "error", err)
			return err
		}

		switch {
		case r.StatusCode == http.StatusNotFound || r.StatusCode == http.StatusGone:
			r.Body.Close()
			return backoff.Permanent(connector.ErrResourceNotFound)
		case r.StatusCode >= 500:
			r.Body.Close()
			c.logger.Debug("server error", "url", rawURL, "attempt", attempt, "status", r.StatusCode)
			return fmt.Errorf("%s %s: unexpected status %d", method, rawURL, r.StatusCode)
		case r.StatusCode >= 300:
			r.Body.Close()
			return backoff.Permanent(fmt.Errorf("%s %s: unexpected status %d", method, rawURL, r.StatusCode))
		}

		resp = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return resp, nil
}
