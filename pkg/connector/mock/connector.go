// Package mock provides an in-memory connector for tests and local
// development.
package mock

import (
	"context"
	"path"
	"sync"

	"github.com/lordrhodos/apicurio-studio/pkg/connector"
)

// Write records a create or update call.
type Write struct {
	URL     string
	Message string
	Content string
	Update  bool
}

// Connector keeps resources in memory.
type Connector struct {
	mu        sync.Mutex
	resources map[string]string
	writes    []Write

	// FailWrites makes every create and update fail with this error.
	FailWrites error
}

var _ connector.Connector = (*Connector)(nil)

// New returns an empty mock connector.
func New() *Connector {
	return &Connector{resources: make(map[string]string)}
}

// Type implements connector.Connector.
func (c *Connector) Type() string { return "mock" }

// Schemes implements connector.Connector.
func (c *Connector) Schemes() []string { return []string{"mock"} }

// Put seeds a resource.
func (c *Connector) Put(url, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[url] = content
}

// Writes returns the create and update calls made so far.
func (c *Connector) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// ValidateResourceExists implements connector.Connector.
func (c *Connector) ValidateResourceExists(_ context.Context, url string) (*connector.ResourceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.resources[url]; !ok {
		return nil, connector.ErrResourceNotFound
	}
	return &connector.ResourceInfo{URL: url, Name: path.Base(url), Type: c.Type()}, nil
}

// GetResourceContent implements connector.Connector.
func (c *Connector) GetResourceContent(_ context.Context, url string) (*connector.ResourceContent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.resources[url]
	if !ok {
		return nil, connector.ErrResourceNotFound
	}
	return &connector.ResourceContent{Content: content, Revision: connector.Revision(content)}, nil
}

// CreateResourceContent implements connector.Connector.
func (c *Connector) CreateResourceContent(_ context.Context, url, message, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites != nil {
		return c.FailWrites
	}
	if _, ok := c.resources[url]; ok {
		return connector.ErrResourceExists
	}
	c.resources[url] = content
	c.writes = append(c.writes, Write{URL: url, Message: message, Content: content})
	return nil
}

// UpdateResourceContent implements connector.Connector.
func (c *Connector) UpdateResourceContent(_ context.Context, url, message string, previous *connector.ResourceContent, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites != nil {
		return c.FailWrites
	}
	current, ok := c.resources[url]
	if !ok {
		return connector.ErrResourceNotFound
	}
	if previous != nil && previous.Revision != "" && connector.Revision(current) != previous.Revision {
		return connector.ErrResourceChanged
	}
	c.resources[url] = content
	c.writes = append(c.writes, Write{URL: url, Message: message, Content: content, Update: true})
	return nil
}
