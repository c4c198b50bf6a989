// Package connector abstracts the external repositories designs are imported
// from and published to.
package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrResourceNotFound is returned when the addressed resource does not
	// exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrResourceExists is returned by CreateResourceContent when the
	// resource is already present.
	ErrResourceExists = errors.New("resource already exists")

	// ErrResourceChanged is returned by UpdateResourceContent when the
	// resource no longer matches the previously read content.
	ErrResourceChanged = errors.New("resource changed since it was read")

	// ErrUnsupported is returned for operations a connector cannot perform.
	ErrUnsupported = errors.New("operation not supported by connector")
)

// ResourceInfo describes an existing resource.
type ResourceInfo struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResourceContent is the content of a resource and a revision marker used to
// detect concurrent changes.
type ResourceContent struct {
	Content  string `json:"content"`
	Revision string `json:"revision"`
}

// Connector reads and writes resources in one kind of external repository.
type Connector interface {
	// Type is the connector name used in publication targets.
	Type() string

	// Schemes lists the URL schemes the connector serves.
	Schemes() []string

	ValidateResourceExists(ctx context.Context, url string) (*ResourceInfo, error)
	GetResourceContent(ctx context.Context, url string) (*ResourceContent, error)
	CreateResourceContent(ctx context.Context, url, message, content string) error
	UpdateResourceContent(ctx context.Context, url, message string, previous *ResourceContent, content string) error
}

// Factory picks a connector by URL scheme or by type.
type Factory struct {
	mu       sync.RWMutex
	byType   map[string]Connector
	byScheme map[string]Connector
}

// NewFactory returns a Factory serving conns.
func NewFactory(conns ...Connector) *Factory {
	f := &Factory{
		byType:   make(map[string]Connector),
		byScheme: make(map[string]Connector),
	}
	for _, c := range conns {
		f.Register(c)
	}
	return f
}

// Register adds c, replacing any connector with the same type or scheme.
func (f *Factory) Register(c Connector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byType[c.Type()] = c
	for _, s := range c.Schemes() {
		f.byScheme[strings.ToLower(s)] = c
	}
}

// ForType returns the connector named t.
func (f *Factory) ForType(t string) (Connector, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.byType[t]
	if !ok {
		return nil, fmt.Errorf("no connector of type %q", t)
	}
	return c, nil
}

// ForURL returns the connector serving the scheme of rawURL.
func (f *Factory) ForURL(rawURL string) (Connector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid resource url: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("resource url %q has no scheme", rawURL)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.byScheme[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no connector for scheme %q", u.Scheme)
	}
	return c, nil
}

// Revision returns the content hash connectors without native revisions use.
func Revision(content string) string {
	h := sha256.Sum256([]byte(content))
	return "sha256:" + hex.EncodeToString(h[:])
}
