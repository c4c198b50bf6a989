package replay

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lordrhodos/apicurio-studio/pkg/apierrors"
)

// Operations understood by the replay engine.
const (
	OpSet     = "set"
	OpDelete  = "delete"
	OpAppend  = "append"
	OpReplace = "replace"
)

// Command is one entry of a design's edit log as seen by the replay engine.
type Command struct {
	Version int64
	Payload string
}

// Instruction is a decoded command payload. Path uses gjson dot syntax;
// literal dots in keys are escaped with a backslash.
type Instruction struct {
	Op    string
	Path  string
	Value gjson.Result
}

// CommandError reports a command that cannot be applied. It matches
// apierrors.ErrCommandApplication.
type CommandError struct {
	Version int64
	Op      string
	Reason  string
}

func (e *CommandError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("command %d: %s", e.Version, e.Reason)
	}
	return fmt.Sprintf("command %d (%s): %s", e.Version, e.Op, e.Reason)
}

// Is makes errors.Is(err, apierrors.ErrCommandApplication) true.
func (e *CommandError) Is(target error) bool {
	return target == apierrors.ErrCommandApplication
}

// Parse decodes and validates a command payload without applying it.
func Parse(payload string) (Instruction, error) {
	if !gjson.Valid(payload) {
		return Instruction{}, fmt.Errorf("payload is not valid JSON")
	}
	res := gjson.Parse(payload)
	if !res.IsObject() {
		return Instruction{}, fmt.Errorf("payload must be a JSON object")
	}

	in := Instruction{
		Op:    res.Get("op").String(),
		Path:  res.Get("path").String(),
		Value: res.Get("value"),
	}

	if in.Path != "" {
		if err := validatePath(in.Path); err != nil {
			return in, err
		}
	}

	switch in.Op {
	case OpSet, OpAppend:
		if in.Path == "" {
			return in, fmt.Errorf("%s requires a path", in.Op)
		}
		if !in.Value.Exists() {
			return in, fmt.Errorf("%s requires a value", in.Op)
		}
	case OpDelete:
		if in.Path == "" {
			return in, fmt.Errorf("delete requires a path")
		}
	case OpReplace:
		if !in.Value.IsObject() {
			return in, fmt.Errorf("replace requires an object value")
		}
	case "":
		return in, fmt.Errorf("missing op")
	default:
		return in, fmt.Errorf("unknown op %q", in.Op)
	}
	return in, nil
}

// pathSyntax holds the gjson query and modifier characters. sjson ignores
// them when writing, which would turn a command into a silent no-op.
const pathSyntax = "#|@*?("

// validatePath accepts plain dot paths. Syntax characters must be escaped
// with a backslash to be used as literal key text.
func validatePath(path string) error {
	escaped := false
	segment := 0
	for _, r := range path {
		switch {
		case escaped:
			escaped = false
			segment++
		case r == '\\':
			escaped = true
		case r == '.':
			if segment == 0 {
				return fmt.Errorf("path %q has an empty segment", path)
			}
			segment = 0
		case strings.ContainsRune(pathSyntax, r):
			return fmt.Errorf("path %q uses unsupported query syntax %q", path, r)
		default:
			segment++
		}
	}
	if escaped {
		return fmt.Errorf("path %q ends with an escape", path)
	}
	if segment == 0 {
		return fmt.Errorf("path %q has an empty segment", path)
	}
	return nil
}

// Build encodes a command payload. value is ignored for delete.
func Build(op, path string, value interface{}) (string, error) {
	payload, err := sjson.Set("{}", "op", op)
	if err != nil {
		return "", err
	}
	if path != "" {
		if payload, err = sjson.Set(payload, "path", path); err != nil {
			return "", err
		}
	}
	if op != OpDelete {
		if payload, err = sjson.Set(payload, "value", value); err != nil {
			return "", err
		}
	}
	if _, err := Parse(payload); err != nil {
		return "", err
	}
	return payload, nil
}

// apply runs one instruction against doc.
func apply(doc string, in Instruction) (string, error) {
	switch in.Op {
	case OpSet:
		next, err := sjson.SetRaw(doc, in.Path, in.Value.Raw)
		if err != nil {
			return "", err
		}
		if !strings.HasSuffix(in.Path, ".-1") && !gjson.Get(next, in.Path).Exists() {
			return "", fmt.Errorf("path %q cannot be set", in.Path)
		}
		return next, nil

	case OpDelete:
		if !gjson.Get(doc, in.Path).Exists() {
			return "", fmt.Errorf("path %q does not exist", in.Path)
		}
		return sjson.Delete(doc, in.Path)

	case OpAppend:
		target := gjson.Get(doc, in.Path)
		if !target.Exists() {
			return sjson.SetRaw(doc, in.Path, "["+in.Value.Raw+"]")
		}
		if !target.IsArray() {
			return "", fmt.Errorf("path %q is not an array", in.Path)
		}
		return sjson.SetRaw(doc, in.Path+".-1", in.Value.Raw)

	case OpReplace:
		return in.Value.Raw, nil
	}
	return "", fmt.Errorf("unknown op %q", in.Op)
}
