// Package replay reconstructs a design document from its base snapshot and
// the ordered commands appended after it.
//
// Materialize is a pure function. It never touches storage, so a command
// that fails to apply only fails the read that hit it.
package replay

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// EmptyDocument is used when a design has no base content yet.
const EmptyDocument = "{}"

var outputOptions = &pretty.Options{
	Width:    80,
	Indent:   "  ",
	SortKeys: false,
}

// Materialize applies cmds to base in order and returns the resulting
// document as 2-space indented JSON. cmds must start at baseVersion+1 and
// increase by one; any gap, reordering, malformed payload or unapplicable
// command yields a *CommandError.
func Materialize(base string, baseVersion int64, cmds []Command) (string, error) {
	doc := strings.TrimSpace(base)
	if doc == "" {
		doc = EmptyDocument
	}
	if !gjson.Valid(doc) {
		return "", &CommandError{Version: baseVersion, Reason: "base document is not valid JSON"}
	}

	for i, c := range cmds {
		expected := baseVersion + int64(i) + 1
		if c.Version != expected {
			return "", &CommandError{
				Version: c.Version,
				Reason:  fmt.Sprintf("out of order, expected version %d", expected),
			}
		}

		in, err := Parse(c.Payload)
		if err != nil {
			return "", &CommandError{Version: c.Version, Op: in.Op, Reason: err.Error()}
		}

		next, err := apply(doc, in)
		if err != nil {
			return "", &CommandError{Version: c.Version, Op: in.Op, Reason: err.Error()}
		}
		doc = next
	}

	return Format(doc), nil
}

// Format indents a JSON document the way Materialize does.
func Format(doc string) string {
	out := pretty.PrettyOptions([]byte(doc), outputOptions)
	return strings.TrimSuffix(string(out), "\n")
}
