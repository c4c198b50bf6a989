// Package format converts design documents between JSON and YAML, keeping
// mapping key order so a round trip produces the same document.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"
)

// Format is a document serialization.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// Parse returns the Format named by s. Empty defaults to JSON.
func Parse(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	if f == YAML {
		return "application/x-yaml"
	}
	return "application/json"
}

// Detect guesses the serialization of content. Anything that does not start
// like a JSON object or array is treated as YAML.
func Detect(content string) Format {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return JSON
	}
	return YAML
}

// ToJSON returns content as JSON, converting from YAML when needed.
func ToJSON(content string) (string, error) {
	if Detect(content) == JSON {
		if !json.Valid([]byte(content)) {
			return "", fmt.Errorf("content is not valid JSON")
		}
		return content, nil
	}
	return YAMLToJSON(content)
}

// Convert renders a JSON document in the requested format.
func Convert(jsonDoc string, to Format) (string, error) {
	if to == YAML {
		return JSONToYAML(jsonDoc)
	}
	return jsonDoc, nil
}

// YAMLToJSON converts a single YAML document to indented JSON.
func YAMLToJSON(text string) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return "", fmt.Errorf("failed to parse yaml: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return "", fmt.Errorf("yaml document is empty")
	}

	var buf bytes.Buffer
	if err := writeJSON(&buf, &root); err != nil {
		return "", err
	}

	out := pretty.PrettyOptions(buf.Bytes(), &pretty.Options{Width: 80, Indent: "  "})
	return strings.TrimSuffix(string(out), "\n"), nil
}

// JSONToYAML converts a JSON document to block style YAML.
func JSONToYAML(text string) (string, error) {
	if !json.Valid([]byte(text)) {
		return "", fmt.Errorf("content is not valid JSON")
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return "", fmt.Errorf("failed to parse json: %w", err)
	}
	blockStyle(&root)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.String(), nil
}

// blockStyle drops the flow and quoting styles JSON input parses with. The
// encoder re-quotes any string that would otherwise read back as another type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		return writeJSON(buf, n.Content[0])

	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)

	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind == yaml.AliasNode {
				key = key.Alias
			}
			if key.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			if key.Value == "<<" && key.ShortTag() == "!!merge" {
				return fmt.Errorf("line %d: merge keys are not supported", key.Line)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, key.Value)
			buf.WriteByte(':')
			if err := writeJSON(buf, val); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case yaml.ScalarNode:
		return writeScalar(buf, n)
	}
	return fmt.Errorf("line %d: unsupported yaml node", n.Line)
}

func writeScalar(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.ShortTag() {
	case "!!null":
		buf.WriteString("null")

	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		if b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}

	case "!!int", "!!float":
		// Literals that are already JSON numbers are copied as is so large
		// integers and exact decimals survive.
		if isJSONNumber(n.Value) {
			buf.WriteString(n.Value)
			return nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("line %d: %s has no JSON representation", n.Line, n.Value)
		}
		b, err := json.Marshal(f)
		if err != nil {
			return err
		}
		buf.Write(b)

	default:
		writeString(buf, n.Value)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if c != '-' && (c < '0' || c > '9') {
		return false
	}
	if len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9' {
		return false
	}
	var n json.Number
	return json.Unmarshal([]byte(s), &n) == nil
}
