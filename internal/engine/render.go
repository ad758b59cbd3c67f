package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer compiles and renders Liquid email content. Compiled templates
// are cached per key; call Invalidate when content changes under a key.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a Liquid renderer.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Parse compiles a template string and returns any syntax error.
func (r *Renderer) Parse(src string) error {
	_, err := r.engine.ParseString(src)
	return err
}

// Render renders src with vars. A non-empty cacheKey caches the compiled
// template for repeated renders of the same campaign content.
func (r *Renderer) Render(cacheKey, src string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(vars)
		}
	}

	tpl, err := r.engine.ParseString(src)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, tpl)
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// Invalidate drops the cached compiled template for a key.
func (r *Renderer) Invalidate(cacheKey string) {
	r.cache.Delete(cacheKey)
}

// TemplateLoader resolves a campaign's template_id to Liquid source.
type TemplateLoader interface {
	HTML(ctx context.Context, templateID string) (string, error)
}

// DirTemplates loads templates from <dir>/<id>.liquid. Template ids are
// restricted to a bare file name; path separators are rejected.
type DirTemplates struct {
	Dir string
}

func (d DirTemplates) HTML(_ context.Context, templateID string) (string, error) {
	if templateID == "" || strings.ContainsAny(templateID, `/\`) || strings.Contains(templateID, "..") {
		return "", fmt.Errorf("invalid template id %q", templateID)
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, templateID+".liquid"))
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", templateID, err)
	}
	return string(data), nil
}
