package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "total": 250,
  "page": {"size": 50, "title": "  Catalog  "},
  "items": [
    {"id": 1, "name": "alpha", "tags": ["x"]},
    {"id": 2, "name": "beta", "tags": []}
  ]
}`

func mustParse(t *testing.T, s string) any {
	t.Helper()
	doc, err := ParseJSON([]byte(s))
	require.NoError(t, err)
	return doc
}

func TestSelect_JSONPath(t *testing.T) {
	doc := mustParse(t, sampleDoc)

	values, err := Select(doc, "$.items[*].name")
	require.NoError(t, err)
	assert.Equal(t, []any{"alpha", "beta"}, values)

	values, err = Select(doc, "$.missing")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestSelect_JQ(t *testing.T) {
	doc := mustParse(t, sampleDoc)

	values, err := Select(doc, ".items[] | select(.id > 1) | .name")
	require.NoError(t, err)
	assert.Equal(t, []any{"beta"}, values)
}

func TestSelect_InvalidExpression(t *testing.T) {
	doc := mustParse(t, sampleDoc)

	_, err := Select(doc, "total")
	assert.True(t, errors.Is(err, ErrJSONPath))

	_, err = Select(doc, ".items[")
	assert.True(t, errors.Is(err, ErrJSONPath))
}

func TestValue(t *testing.T) {
	doc := mustParse(t, sampleDoc)

	tests := []struct {
		expr string
		want string
	}{
		{"$.total", "250"},
		{"$.page.title", "Catalog"},
		{"$.items[0]", `{"id":1,"name":"alpha","tags":["x"]}`},
		{"$.items[*].id", "1"},
		{".page.size", "50"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Value(doc, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Value(doc, "$.nothing")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestValueOr_FallsBackToLiteral(t *testing.T) {
	doc := mustParse(t, sampleDoc)

	assert.Equal(t, "250", ValueOr(doc, "$.total", "$.total"))
	assert.Equal(t, "10", ValueOr(doc, "10", "10"))
	assert.Equal(t, "$.nope", ValueOr(doc, "$.nope", "$.nope"))
}

func TestValue_ObjectKeepsHTMLCharacters(t *testing.T) {
	doc := mustParse(t, `{"o": {"x": "<i>&"}}`)

	got, err := Value(doc, "$.o")
	require.NoError(t, err)
	assert.Equal(t, `{"x":"<i>&"}`, got)
}
