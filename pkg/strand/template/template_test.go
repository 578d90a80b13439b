package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRender_Basic expands flat and dotted placeholders.
func TestRender_Basic(t *testing.T) {
	vars := map[string]any{
		"name":  "Ada",
		"count": 3,
		"review": map[string]any{
			"verdict": "pass",
			"meta":    map[string]any{"score": 9.5},
		},
	}

	testCases := []struct {
		in   string
		want string
	}{
		{"hello {name}", "hello Ada"},
		{"{count} items", "3 items"},
		{"verdict: {review.verdict}", "verdict: pass"},
		{"score: {review.meta.score}", "score: 9.5"},
		{"{name}{name}", "AdaAda"},
		{"no placeholders", "no placeholders"},
		{"", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Render(tc.in, vars))
		})
	}
}

// TestRender_MissingActions checks all three unresolved-placeholder modes.
func TestRender_MissingActions(t *testing.T) {
	vars := map[string]any{"known": "yes"}
	in := "{known} and {unknown}"

	// Default keeps the placeholder.
	assert.Equal(t, "yes and {unknown}", Render(in, vars))

	out, err := NewExpander(WithMissingAction(MissingEmpty)).Render(in, vars)
	require.NoError(t, err)
	assert.Equal(t, "yes and ", out)

	_, err = NewExpander(WithMissingAction(MissingError)).Render(in, vars)
	require.Error(t, err)
	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"unknown"}, unresolved.Paths)
}

// TestRender_PathThroughNonMap treats traversal into a scalar as missing.
func TestRender_PathThroughNonMap(t *testing.T) {
	vars := map[string]any{"title": "plain"}
	assert.Equal(t, "{title.nested}", Render("{title.nested}", vars))
}

// TestRender_IgnoresMalformedBraces leaves non-placeholder braces alone.
func TestRender_IgnoresMalformedBraces(t *testing.T) {
	vars := map[string]any{"a": "x"}
	assert.Equal(t, "{ a } {} {1bad}", Render("{ a } {} {1bad}", vars))
}

// TestRenderMap recurses through nested maps and slices.
func TestRenderMap(t *testing.T) {
	vars := map[string]any{"city": "Oslo", "n": 2}

	args := map[string]any{
		"query": "weather in {city}",
		"limit": 10,
		"nested": map[string]any{
			"note": "top {n}",
		},
		"list": []any{"{city}", 1, map[string]any{"k": "{n}"}},
	}

	out, err := NewExpander().RenderMap(args, vars)
	require.NoError(t, err)

	assert.Equal(t, "weather in Oslo", out["query"])
	assert.Equal(t, 10, out["limit"])
	assert.Equal(t, "top 2", out["nested"].(map[string]any)["note"])

	list := out["list"].([]any)
	assert.Equal(t, "Oslo", list[0])
	assert.Equal(t, 1, list[1])
	assert.Equal(t, "2", list[2].(map[string]any)["k"])

	// Source map is untouched.
	assert.Equal(t, "weather in {city}", args["query"])
}

// TestRenderMap_Nil passes nil through.
func TestRenderMap_Nil(t *testing.T) {
	out, err := NewExpander().RenderMap(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

// TestRenderMap_ErrorPropagates surfaces unresolved placeholders from
// nested values.
func TestRenderMap_ErrorPropagates(t *testing.T) {
	_, err := NewExpander(WithMissingAction(MissingError)).RenderMap(
		map[string]any{"inner": []any{"{missing}"}},
		map[string]any{},
	)
	assert.Error(t, err)
}
