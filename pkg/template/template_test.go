package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Coercions(t *testing.T) {
	data := map[string]any{
		"trigger": map[string]any{
			"name":   "ada",
			"count":  3,
			"active": true,
		},
	}

	tests := []struct {
		name     string
		expr     string
		expected any
	}{
		{
			name:     "string passthrough",
			expr:     "{{ .trigger.name }}",
			expected: "ada",
		},
		{
			name:     "number",
			expr:     "{{ .trigger.count }}",
			expected: float64(3),
		},
		{
			name:     "boolean",
			expr:     "{{ .trigger.active }}",
			expected: true,
		},
		{
			name:     "json object",
			expr:     `{"name": "{{ .trigger.name }}"}`,
			expected: map[string]any{"name": "ada"},
		},
		{
			name:     "json array",
			expr:     `[1, 2, 3]`,
			expected: []any{float64(1), float64(2), float64(3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.expr, data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("{{ .broken", nil)
	require.Error(t, err)
}

func TestRender_NowFunc(t *testing.T) {
	result, err := Render("{{ now }}", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result)
}

func TestLookup(t *testing.T) {
	data := map[string]any{
		"trigger": map[string]any{
			"order": map[string]any{"status": "paid"},
		},
	}

	value, ok := Lookup("trigger.order.status", data)
	require.True(t, ok)
	assert.Equal(t, "paid", value)

	_, ok = Lookup("trigger.order.missing", data)
	assert.False(t, ok)

	_, ok = Lookup("trigger.order.status.deeper", data)
	assert.False(t, ok)

	_, ok = Lookup("", data)
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(true))
	assert.True(t, Truthy("yes"))
	assert.True(t, Truthy("true"))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy(0.5))
	assert.True(t, Truthy([]any{"x"}))
	assert.True(t, Truthy(map[string]any{"k": "v"}))

	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy("false"))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy([]any{}))
	assert.False(t, Truthy(map[string]any{}))
	assert.False(t, Truthy(nil))
}
