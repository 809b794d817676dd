// Package filter narrows and reshapes JSON test reports with JMESPath
// expressions or an external command.
package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
)

// CommandTimeout bounds a $(command) selection
const CommandTimeout = 30 * time.Second

var commandPattern = regexp.MustCompile(`^\$\((.+)\)$`)

// ErrCommandFilter is returned when a filter is written as a command
var ErrCommandFilter = errors.New("filter must be a JMESPath expression")

// Query is applied to the JSON form of a report. Filter narrows the
// document (e.g. endpoints[?results.total_failed > `0`]), then Select
// picks fields from what is left (e.g. [].url). Select may also be
// $(command), which receives the filtered document on stdin.
type Query struct {
	Filter string
	Select string
}

// IsZero reports whether the query leaves the report untouched
func (q Query) IsZero() bool {
	return q.Filter == "" && q.Select == ""
}

// IsJSON reports whether Apply produces JSON. Command output is opaque.
func (q Query) IsJSON() bool {
	return command(q.Select) == ""
}

// Validate compiles both expressions without running anything, so that a
// bad query is rejected before a test starts
func (q Query) Validate() error {
	if q.Filter != "" {
		if command(q.Filter) != "" {
			return ErrCommandFilter
		}
		if _, err := jmespath.Compile(q.Filter); err != nil {
			return fmt.Errorf("invalid filter %q: %w", q.Filter, err)
		}
	}
	if q.Select != "" && command(q.Select) == "" {
		if _, err := jmespath.Compile(q.Select); err != nil {
			return fmt.Errorf("invalid query %q: %w", q.Select, err)
		}
	}
	return nil
}

// Apply marshals v to JSON and runs the query over it
func (q Query) Apply(v any) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}

	if q.Filter != "" {
		if doc, err = jmespath.Search(q.Filter, doc); err != nil {
			return "", fmt.Errorf("failed to apply filter: %w", err)
		}
	}

	if cmd := command(q.Select); cmd != "" {
		input, err := json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("failed to marshal filtered report: %w", err)
		}
		return run(cmd, input)
	}

	if q.Select != "" {
		if doc, err = jmespath.Search(q.Select, doc); err != nil {
			return "", fmt.Errorf("failed to apply query: %w", err)
		}
	}

	if doc == nil {
		return "null", nil
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(out), nil
}

// command returns the command wrapped in $(...), or ""
func command(expr string) string {
	if m := commandPattern.FindStringSubmatch(expr); len(m) > 1 {
		return m[1]
	}
	return ""
}

// run executes cmd through sh with input on stdin
func run(cmd string, input []byte) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
	defer cancel()

	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		msg := err.Error()
		if stderr.Len() > 0 {
			msg = strings.TrimSpace(stderr.String())
		}
		return "", fmt.Errorf("command %q failed: %s", cmd, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}
