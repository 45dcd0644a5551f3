package template

import (
	"github.com/flosch/pongo2/v6"
)

// formatJinja delegates to pongo2. There is no pre-render placeholder
// validation on this path; the engine's own compile and execution errors
// surface as *ValidationError.
func formatJinja(template string, vars map[string]any) (string, error) {
	tpl, err := pongo2.FromString(template)
	if err != nil {
		return "", &ValidationError{Cause: err}
	}
	out, err := tpl.Execute(pongo2.Context(vars))
	if err != nil {
		return "", &ValidationError{Cause: err}
	}
	return out, nil
}
