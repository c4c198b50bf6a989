package publication

import (
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
)

// Target describes where a design is published. Clients send it as a loose
// JSON object; keys are accepted in any case style.
type Target struct {
	// Type selects the connector, e.g. "s3" or "local".
	Type string `mapstructure:"type"`

	// URL is the resource location understood by the connector.
	URL string `mapstructure:"url"`

	// Format is "json" or "yaml". Empty means json.
	Format string `mapstructure:"format"`

	CommitMessage string `mapstructure:"commitMessage"`

	// Extra holds connector specific fields not modelled above.
	Extra map[string]interface{} `mapstructure:",remain"`
}

// DecodeTarget normalises the keys of raw to lowerCamelCase and decodes it.
func DecodeTarget(raw map[string]interface{}) (*Target, error) {
	var t Target
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &t,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(normalizeKeys(raw)); err != nil {
		return nil, fmt.Errorf("error decoding publication target: %w", err)
	}
	if t.Type == "" {
		return nil, fmt.Errorf("publication target type is required")
	}
	if t.URL == "" {
		return nil, fmt.Errorf("publication target url is required")
	}
	return &t, nil
}

// Metadata returns the target as a flat map for the audit record.
func (t *Target) Metadata() map[string]interface{} {
	m := make(map[string]interface{}, len(t.Extra)+2)
	for k, v := range t.Extra {
		m[k] = v
	}
	m["type"] = t.Type
	m["url"] = t.URL
	return m
}

func normalizeKeys(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if nested, ok := v.(map[string]interface{}); ok {
			v = normalizeKeys(nested)
		}
		out[strcase.ToLowerCamel(k)] = v
	}
	return out
}
