package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatJinjaVariables(t *testing.T) {
	out, err := Format("Hello {{ name }}!", map[string]any{"name": "World"}, Jinja2)
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", out)
}

func TestFormatJinjaConditional(t *testing.T) {
	tpl := "{% if admin %}admin{% else %}user{% endif %}"
	out, err := Format(tpl, map[string]any{"admin": true}, Jinja2)
	require.NoError(t, err)
	assert.Equal(t, "admin", out)

	out, err = Format(tpl, map[string]any{"admin": false}, Jinja2)
	require.NoError(t, err)
	assert.Equal(t, "user", out)
}

func TestFormatJinjaLoop(t *testing.T) {
	tpl := "{% for item in items %}{{ item }};{% endfor %}"
	out, err := Format(tpl, map[string]any{"items": []string{"a", "b"}}, Jinja2)
	require.NoError(t, err)
	assert.Equal(t, "a;b;", out)
}

func TestFormatJinjaMissingVariableRendersEmpty(t *testing.T) {
	// No client-side pre-validation on the Jinja2 path.
	out, err := Format("Hello {{ name }}", map[string]any{}, Jinja2)
	require.NoError(t, err)
	assert.Equal(t, "Hello ", out)
}

func TestFormatJinjaSyntaxError(t *testing.T) {
	_, err := Format("{% if %}", map[string]any{}, Jinja2)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
