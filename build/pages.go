package build

import (
	"context"
	"errors"

	"github.com/eringen/sabitcms/content"
)

// Page is the outcome of resolving a slug against the cache.
type Page struct {
	Path string // Artifact file; empty if a stale render was not persisted
	HTML string // Rendered markup; empty on a cache hit
	Hit  bool
}

// Page serves slug from the cache when its artifact exists. On a miss it
// loads the template and data, renders and caches the page. Concurrent misses
// for the same slug share a single render.
func (b *Builder) Page(ctx context.Context, slug string) (Page, error) {
	name, err := artifactName(slug)
	if err != nil {
		return Page{}, err
	}
	if p, ok := b.Cached(slug); ok {
		return Page{Path: p, Hit: true}, nil
	}
	// The shared render outlives any single caller; each caller only stops
	// waiting when its own context ends.
	renderCtx := context.WithoutCancel(ctx)
	ch := b.flight.DoChan(name, func() (any, error) {
		if p, ok := b.Cached(slug); ok {
			return Page{Path: p, Hit: true}, nil
		}
		b.log.Infof("cache miss: %s (generating...)", name+artifactExt)
		return b.generate(renderCtx, slug, name)
	})
	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Page{}, res.Err
		}
		return res.Val.(Page), nil
	}
}

func (b *Builder) generate(ctx context.Context, slug, name string) (Page, error) {
	seen := b.stampOf(name)

	settings, err := b.store.GetSettings(ctx)
	if err != nil {
		return Page{}, err
	}

	var (
		tplContent string
		bindings   map[string]any
	)
	if name == homeName {
		tpl, err := b.template(ctx, HomeSlug, content.TemplateIndex)
		if err != nil {
			return Page{}, err
		}
		posts, err := b.store.ListPublishedPosts(ctx)
		if err != nil {
			return Page{}, err
		}
		tplContent, bindings = tpl.Content, homeBindings(settings, posts)
	} else {
		post, err := b.store.GetPostBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, content.ErrNotFound) {
				return Page{}, NewNotFoundError(slug, "page not found")
			}
			return Page{}, err
		}
		tpl, err := b.template(ctx, slug, content.TemplatePost)
		if err != nil {
			return Page{}, err
		}
		tplContent, bindings = tpl.Content, postBindings(settings, post)
	}

	html, err := b.render(slug, tplContent, bindings)
	if err != nil {
		b.log.Errorf("page generation error: %v", err)
		return Page{}, err
	}
	stored, err := b.storeIfCurrent(slug, name, html, seen)
	if err != nil {
		return Page{}, err
	}
	page := Page{HTML: html}
	if stored {
		page.Path = b.path(name)
	}
	return page, nil
}
