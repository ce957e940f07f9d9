// Package build renders Liquid templates into static HTML artifacts kept in a
// flat cache directory, one file per slug, and decides when those artifacts
// are regenerated.
package build

import (
	"bytes"
	"context"

	"github.com/labstack/echo/v4"
	"github.com/osteele/liquid"
	"github.com/yuin/goldmark"

	"github.com/eringen/sabitcms/content"
)

// Config is owned by the hosting service and injected into the Builder.
type Config struct {
	CacheDir string         // Artifact directory (required)
	Engine   *liquid.Engine // Template engine; NewEngine(false) when nil
	Minify   bool           // Minify rendered HTML before writing
	Logger   echo.Logger    // Defaults to a gommon logger prefixed "build"
}

// ContentStore is the read-only view of the content database the builder
// needs to assemble render contexts.
type ContentStore interface {
	GetSettings(ctx context.Context) (content.Settings, error)
	GetTemplate(ctx context.Context, t content.TemplateType) (content.Template, error)
	ListPublishedPosts(ctx context.Context) ([]content.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (content.Post, error)
}

// NewEngine returns a Liquid engine with the site's custom filters.
// With strict set, references to undefined variables fail the render.
func NewEngine(strict bool) *liquid.Engine {
	e := liquid.NewEngine()
	e.RegisterFilter("markdown", markdownFilter)
	if strict {
		e.StrictVariables()
	}
	return e
}

func markdownFilter(s string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(s), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
