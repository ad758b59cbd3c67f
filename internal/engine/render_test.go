package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/misor-digital/fitflow-campaigns/internal/engine"
)

func TestRendererSubstitutesVariables(t *testing.T) {
	r := engine.NewRenderer()

	out, err := r.Render("", "Hello {{ name }}, your {{ campaign_name }} box awaits",
		map[string]interface{}{"name": "Sam", "campaign_name": "Spring Reset"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Sam, your Spring Reset box awaits", out)
}

func TestRendererCachesByKey(t *testing.T) {
	r := engine.NewRenderer()

	out, err := r.Render("k1", "v1 {{ name }}", map[string]interface{}{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, "v1 a", out)

	// Same key keeps serving the first compiled template.
	out, err = r.Render("k1", "v2 {{ name }}", map[string]interface{}{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, "v1 b", out)

	r.Invalidate("k1")
	out, err = r.Render("k1", "v2 {{ name }}", map[string]interface{}{"name": "c"})
	require.NoError(t, err)
	assert.Equal(t, "v2 c", out)
}

func TestRendererParseError(t *testing.T) {
	r := engine.NewRenderer()

	assert.Error(t, r.Parse("{% if %}"))
	_, err := r.Render("", "{% if %}", nil)
	assert.Error(t, err)
}

func TestDirTemplates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "welcome.liquid"),
		[]byte("<p>Welcome {{ name }}</p>"), 0o644))
	loader := engine.DirTemplates{Dir: dir}

	html, err := loader.HTML(context.Background(), "welcome")
	require.NoError(t, err)
	assert.Equal(t, "<p>Welcome {{ name }}</p>", html)

	_, err = loader.HTML(context.Background(), "missing")
	assert.Error(t, err)

	_, err = loader.HTML(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}
