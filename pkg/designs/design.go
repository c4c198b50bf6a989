package designs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
	"github.com/lordrhodos/apicurio-studio/pkg/auth"
	"github.com/lordrhodos/apicurio-studio/pkg/collab"
	"github.com/lordrhodos/apicurio-studio/pkg/connector"
	"github.com/lordrhodos/apicurio-studio/pkg/designid"
	"github.com/lordrhodos/apicurio-studio/pkg/format"
	"github.com/lordrhodos/apicurio-studio/pkg/models"
	"github.com/lordrhodos/apicurio-studio/pkg/replay"
)

const defaultImportName = "Imported API Design"

// NewDesign is a request to create an empty design.
type NewDesign struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// SpecVersion selects the document template: "2.0" (default) or "3.x".
	SpecVersion string `json:"specVersion"`
}

// ImportDesign is a request to create a design from existing content. Data
// takes precedence over URL.
type ImportDesign struct {
	// URL is resolved through the connector registered for its scheme.
	URL string `json:"url"`

	// Data is base64 encoded JSON or YAML.
	Data string `json:"data"`
}

// CreateDesign creates a design from the OpenAPI template of
// info.SpecVersion. The caller becomes its owner.
func (s *Service) CreateDesign(ctx context.Context, caller auth.Identity, info NewDesign) (*models.Design, error) {
	const op = "CreateDesign"

	doc, err := newDocument(info)
	if err != nil {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput, err.Error(), nil)
	}

	d := &models.Design{
		Name:        info.Name,
		Description: info.Description,
		CreatedBy:   caller.Login,
	}
	if err := s.store.CreateDesign(ctx, d, doc, collab.RoleOwner.String()); err != nil {
		return nil, err
	}

	s.logger.Info("created design",
		"design_id", d.ID,
		"name", d.Name,
		"spec_version", info.SpecVersion,
		"created_by", caller.Login,
	)
	return d, nil
}

// newDocument renders the empty document for a new design.
func newDocument(info NewDesign) (string, error) {
	doc := replay.EmptyDocument
	var err error

	switch v := strings.TrimSpace(info.SpecVersion); {
	case v == "" || v == "2.0":
		doc, err = sjson.Set(doc, "swagger", "2.0")
	case strings.HasPrefix(v, "3."):
		doc, err = sjson.Set(doc, "openapi", "3.0.2")
	default:
		return "", fmt.Errorf("unsupported spec version %q", info.SpecVersion)
	}
	if err != nil {
		return "", err
	}

	if doc, err = sjson.Set(doc, "info.title", info.Name); err != nil {
		return "", err
	}
	if info.Description != "" {
		if doc, err = sjson.Set(doc, "info.description", info.Description); err != nil {
			return "", err
		}
	}
	if doc, err = sjson.Set(doc, "info.version", "1.0.0"); err != nil {
		return "", err
	}
	return replay.Format(doc), nil
}

// ImportDesign creates a design from base64 data or from a resource URL.
// YAML content is stored as JSON.
func (s *Service) ImportDesign(ctx context.Context, caller auth.Identity, info ImportDesign) (*models.Design, error) {
	const op = "ImportDesign"

	var (
		content  string
		fallback string
		source   string
	)

	switch {
	case strings.TrimSpace(info.Data) != "":
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(info.Data))
		if err != nil {
			return nil, apierrors.E(op, apierrors.ErrInvalidInput, "data is not valid base64", err)
		}
		content = string(decoded)
		fallback = defaultImportName
		source = "data"

	case info.URL != "":
		conn, err := s.connectors.ForURL(info.URL)
		if err != nil {
			return nil, apierrors.E(op, apierrors.ErrInvalidInput, err.Error(), nil)
		}
		res, err := conn.ValidateResourceExists(ctx, info.URL)
		if err != nil {
			return nil, connectorError(op, err)
		}
		rc, err := conn.GetResourceContent(ctx, info.URL)
		if err != nil {
			return nil, connectorError(op, err)
		}
		content = rc.Content
		fallback = res.Name
		source = conn.Type()

	default:
		return nil, apierrors.E(op, apierrors.ErrInvalidInput, "url or data is required", nil)
	}

	doc, err := format.ToJSON(content)
	if err != nil {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput, "content is neither JSON nor YAML", err)
	}
	if !gjson.Parse(doc).IsObject() {
		return nil, apierrors.E(op, apierrors.ErrInvalidInput, "content is not a document object", nil)
	}

	d := designFromContent(doc)
	d.CreatedBy = caller.Login
	if d.Name == "" {
		d.Name = importName(fallback, info.URL)
	}

	if err := s.store.CreateDesign(ctx, d, replay.Format(doc), collab.RoleOwner.String()); err != nil {
		return nil, err
	}

	s.logger.Info("imported design",
		"design_id", d.ID,
		"source", source,
		"created_by", caller.Login,
	)
	return d, nil
}

// designFromContent reads name, description and tags from a document's info
// and tags sections.
func designFromContent(doc string) *models.Design {
	d := &models.Design{
		Name:        gjson.Get(doc, "info.title").String(),
		Description: gjson.Get(doc, "info.description").String(),
	}
	for _, tag := range gjson.Get(doc, "tags.#.name").Array() {
		if name := tag.String(); name != "" {
			d.Tags = append(d.Tags, name)
		}
	}
	return d
}

func importName(fallback, rawURL string) string {
	if fallback != "" && fallback != "." && fallback != "/" {
		return fallback
	}
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	return defaultImportName
}

// GetDesign returns a design the caller may read.
func (s *Service) GetDesign(ctx context.Context, caller auth.Identity, id designid.ID) (*models.Design, error) {
	const op = "GetDesign"
	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapRead); err != nil {
		return nil, err
	}
	return s.store.GetDesign(ctx, id)
}

// ListDesigns returns the designs the caller collaborates on.
func (s *Service) ListDesigns(ctx context.Context, caller auth.Identity) ([]models.Design, error) {
	return s.store.ListDesigns(ctx, caller.Login)
}

// DeleteDesign deletes a design. Only owners may do this.
func (s *Service) DeleteDesign(ctx context.Context, caller auth.Identity, id designid.ID) error {
	const op = "DeleteDesign"
	if err := s.registry.Authorize(ctx, op, id, caller.Login, collab.CapDelete); err != nil {
		return err
	}
	return s.store.DeleteDesign(ctx, id, caller.Login)
}

// connectorError maps connector failures onto error kinds.
func connectorError(op string, err error) error {
	switch {
	case errors.Is(err, connector.ErrResourceNotFound):
		return apierrors.E(op, apierrors.ErrNotFound, "resource not found", err)
	case errors.Is(err, connector.ErrResourceChanged), errors.Is(err, connector.ErrResourceExists):
		return apierrors.E(op, apierrors.ErrConflict, err.Error(), err)
	case errors.Is(err, connector.ErrUnsupported):
		return apierrors.E(op, apierrors.ErrInvalidInput, err.Error(), err)
	default:
		return apierrors.E(op, apierrors.ErrStorage, "external repository failure", err)
	}
}
