// Package template renders prompt templates. Two engines are supported,
// selected by Type: a Mustache dialect implemented in this package and
// Jinja2 via pongo2. Rendering is raw substitution; no HTML escaping is
// applied by either path.
package template

import (
	"fmt"
	"strings"
)

// Type selects the substitution engine for a template.
type Type string

const (
	Mustache Type = "mustache"
	Jinja2   Type = "jinja2"
)

// ValidationError reports a malformed template or, for Mustache,
// placeholders that the variables map does not provide.
type ValidationError struct {
	Missing      []string
	Placeholders []string
	Provided     []string
	Cause        error
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing variables: %s\ntemplate placeholders: %s\nprovided variables: %s",
			strings.Join(e.Missing, ", "),
			strings.Join(e.Placeholders, ", "),
			strings.Join(e.Provided, ", "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("template validation failed: %v", e.Cause)
	}
	return "template validation failed"
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// Format renders template with vars using the engine named by typ.
//
// Mustache templates are validated first: every root placeholder outside a
// section must be a key of vars. Names inside sections are exempt because
// the section pushes its items as the lookup context and may satisfy them
// implicitly. Jinja2 templates are handed to the engine as-is and its
// errors come back wrapped in *ValidationError. A typ this package does not
// recognize returns the template unchanged, so prompts written against a
// newer engine still read back instead of failing.
func Format(template string, vars map[string]any, typ Type) (string, error) {
	switch typ {
	case Mustache:
		return formatMustache(template, vars)
	case Jinja2:
		return formatJinja(template, vars)
	default:
		return template, nil
	}
}
