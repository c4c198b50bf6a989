// Package local reads and writes designs on a filesystem rooted at a
// configured directory. Resources are addressed as file:///relative/path.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/lordrhodos/apicurio-studio/pkg/connector"
)

// Config contains configuration for the filesystem connector.
type Config struct {
	Root string `hcl:"root"`
}

// Connector stores designs as files.
type Connector struct {
	fs     afero.Fs
	logger hclog.Logger

	// Serializes check-then-write sequences.
	mu sync.Mutex
}

var _ connector.Connector = (*Connector)(nil)

// New returns a connector rooted at cfg.Root on the OS filesystem.
func New(cfg *Config, logger hclog.Logger) (*Connector, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("error creating root directory: %w", err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), cfg.Root), logger), nil
}

// NewWithFs returns a connector over fsys.
func NewWithFs(fsys afero.Fs, logger hclog.Logger) *Connector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Connector{
		fs:     fsys,
		logger: logger.Named("local-connector"),
	}
}

// Type implements connector.Connector.
func (c *Connector) Type() string { return "local" }

// Schemes implements connector.Connector.
func (c *Connector) Schemes() []string { return []string{"file"} }

// resolve maps a file URL to a clean path inside the root.
func resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid file url: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file url: %s", rawURL)
	}
	p := path.Clean("/" + strings.TrimPrefix(u.Path, "/"))
	if p == "/" {
		return "", fmt.Errorf("file url must name a file: %s", rawURL)
	}
	return p, nil
}

// ValidateResourceExists implements connector.Connector.
func (c *Connector) ValidateResourceExists(ctx context.Context, rawURL string) (*connector.ResourceInfo, error) {
	p, err := resolve(rawURL)
	if err != nil {
		return nil, err
	}
	info, err := c.fs.Stat(p)
	if err != nil {
		return nil, notFound(err)
	}
	if info.IsDir() {
		return nil, connector.ErrResourceNotFound
	}
	return &connector.ResourceInfo{URL: rawURL, Name: info.Name(), Type: c.Type()}, nil
}

// GetResourceContent implements connector.Connector.
func (c *Connector) GetResourceContent(ctx context.Context, rawURL string) (*connector.ResourceContent, error) {
	p, err := resolve(rawURL)
	if err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(c.fs, p)
	if err != nil {
		return nil, notFound(err)
	}
	content := string(b)
	return &connector.ResourceContent{Content: content, Revision: connector.Revision(content)}, nil
}

// CreateResourceContent implements connector.Connector.
func (c *Connector) CreateResourceContent(ctx context.Context, rawURL, message, content string) error {
	p, err := resolve(rawURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := afero.Exists(c.fs, p)
	if err != nil {
		return err
	}
	if exists {
		return connector.ErrResourceExists
	}
	if err := c.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	return c.write(p, message, content)
}

// UpdateResourceContent implements connector.Connector.
func (c *Connector) UpdateResourceContent(ctx context.Context, rawURL, message string, previous *connector.ResourceContent, content string) error {
	p, err := resolve(rawURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := afero.ReadFile(c.fs, p)
	if err != nil {
		return notFound(err)
	}
	if previous != nil && previous.Revision != "" && connector.Revision(string(current)) != previous.Revision {
		return connector.ErrResourceChanged
	}
	return c.write(p, message, content)
}

func (c *Connector) write(p, message, content string) error {
	if err := afero.WriteFile(c.fs, p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("error writing file: %w", err)
	}
	c.logger.Info("file written", "path", p, "message", message)
	return nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return connector.ErrResourceNotFound
	}
	return err
}
