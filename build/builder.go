package build

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/tdewolff/minify/v2"
	mhtml "github.com/tdewolff/minify/v2/html"
	"golang.org/x/sync/singleflight"

	"github.com/eringen/sabitcms/content"
)

// HomeSlug is the slug of the homepage artifact.
const HomeSlug = "/"

const (
	homeName    = "index"
	artifactExt = ".html"
)

// Builder renders pages and owns the artifact files in Config.CacheDir.
type Builder struct {
	cfg    Config
	store  ContentStore
	log    echo.Logger
	min    *minify.M
	flight singleflight.Group

	mu    sync.Mutex
	slugs map[string]*slugState

	// genMu guards gen. InvalidateAll bumps gen under the write lock, so a
	// lazy write either finishes before the purge lists the directory or
	// sees the new generation and backs off.
	genMu sync.RWMutex
	gen   uint64
}

// slugState serializes writes to one artifact. epoch is bumped on every
// invalidation so a lazy render that loaded its data earlier can tell that
// its output is already stale.
type slugState struct {
	mu    sync.Mutex
	epoch atomic.Uint64
}

// stamp is the invalidation state a lazy render observed before loading its
// data. A slug without a slugState entry has epoch 0.
type stamp struct {
	epoch uint64
	gen   uint64
}

// Result summarizes a full rebuild.
type Result struct {
	PageCount int `json:"pageCount"`
}

// New creates a Builder. cfg.CacheDir must be set.
func New(cfg Config, store ContentStore) *Builder {
	if cfg.Engine == nil {
		cfg.Engine = NewEngine(false)
	}
	b := &Builder{
		cfg:   cfg,
		store: store,
		log:   cfg.Logger,
		slugs: make(map[string]*slugState),
	}
	if b.log == nil {
		b.log = log.New("build")
	}
	if cfg.Minify {
		b.min = minify.New()
		b.min.AddFunc("text/html", mhtml.Minify)
	}
	return b
}

// CacheDir returns the artifact directory.
func (b *Builder) CacheDir() string {
	return b.cfg.CacheDir
}

// artifactName maps a slug to its file stem. "/" and "" map to index.
// Anything that would escape the flat cache directory is rejected.
func artifactName(slug string) (string, error) {
	if slug == HomeSlug || slug == "" {
		return homeName, nil
	}
	if slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) || strings.HasPrefix(slug, ".") {
		return "", NewNotFoundError(slug, "invalid slug "+slug)
	}
	return slug, nil
}

func (b *Builder) path(name string) string {
	return filepath.Join(b.cfg.CacheDir, name+artifactExt)
}

// ArtifactPath returns the cache file path for slug.
func (b *Builder) ArtifactPath(slug string) (string, error) {
	name, err := artifactName(slug)
	if err != nil {
		return "", err
	}
	return b.path(name), nil
}

// Cached reports whether an artifact for slug is present and returns its path.
func (b *Builder) Cached(slug string) (string, bool) {
	p, err := b.ArtifactPath(slug)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// stampOf reads the current invalidation state of name without creating a
// slugState, so misses for slugs that turn out not to exist leave no trace.
func (b *Builder) stampOf(name string) stamp {
	b.genMu.RLock()
	gen := b.gen
	b.genMu.RUnlock()

	b.mu.Lock()
	st, ok := b.slugs[name]
	b.mu.Unlock()
	if !ok {
		return stamp{gen: gen}
	}
	return stamp{epoch: st.epoch.Load(), gen: gen}
}

func (b *Builder) state(name string) *slugState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.slugs[name]
	if !ok {
		st = &slugState{}
		b.slugs[name] = st
	}
	return st
}

// render parses and executes a template. Nothing touches the disk here.
func (b *Builder) render(slug, templateContent string, bindings map[string]any) (string, error) {
	tpl, perr := b.cfg.Engine.ParseString(templateContent)
	if perr != nil {
		return "", NewRenderError(slug, perr)
	}
	out, rerr := tpl.RenderString(bindings)
	if rerr != nil {
		return "", NewRenderError(slug, rerr)
	}
	if b.min != nil {
		m, err := b.min.String("text/html", out)
		if err != nil {
			return "", NewRenderError(slug, err)
		}
		out = m
	}
	return out, nil
}

// RenderAndCache renders templateContent with bindings and writes the result
// as the artifact for slug. The file is only written after a successful
// render, and replaced atomically.
func (b *Builder) RenderAndCache(ctx context.Context, slug, templateContent string, bindings map[string]any) (string, error) {
	name, err := artifactName(slug)
	if err != nil {
		return "", err
	}
	html, err := b.render(slug, templateContent, bindings)
	if err != nil {
		b.log.Errorf("page generation error: %v", err)
		return "", err
	}
	st := b.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := b.write(slug, name, html); err != nil {
		return "", err
	}
	return html, nil
}

// storeIfCurrent writes html only if neither slug nor the whole cache has
// been invalidated since seen was taken.
func (b *Builder) storeIfCurrent(slug, name, html string, seen stamp) (bool, error) {
	b.genMu.RLock()
	defer b.genMu.RUnlock()
	st := b.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()
	if b.gen != seen.gen || st.epoch.Load() != seen.epoch {
		b.log.Infof("discarding stale render of %s", name+artifactExt)
		return false, nil
	}
	return true, b.write(slug, name, html)
}

func (b *Builder) write(slug, name, html string) error {
	if err := os.MkdirAll(b.cfg.CacheDir, 0o755); err != nil {
		return NewFileSystemError(slug, err)
	}
	p := b.path(name)
	if err := writeFileAtomic(p, []byte(html), 0o644); err != nil {
		return NewFileSystemError(slug, err)
	}
	b.log.Infof("page generated: %s", p)
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Invalidate removes the artifact for slug. A missing file is not an error;
// other unlink failures are logged and swallowed.
func (b *Builder) Invalidate(slug string) {
	name, err := artifactName(slug)
	if err != nil {
		return
	}
	b.invalidate(name)
}

// InvalidateHome removes the homepage artifact.
func (b *Builder) InvalidateHome() {
	b.invalidate(homeName)
}

func (b *Builder) invalidate(name string) {
	st := b.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.epoch.Add(1)
	b.flight.Forget(name)
	if err := os.Remove(b.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.log.Warnf("invalidate %s: %v", name+artifactExt, err)
		return
	}
	b.log.Debugf("cache cleared: %s", name+artifactExt)
}

// InvalidateAll removes every artifact in the cache directory. Lazy renders
// in flight for slugs that have no artifact yet are discarded as well.
func (b *Builder) InvalidateAll() {
	b.genMu.Lock()
	b.gen++
	b.genMu.Unlock()

	entries, err := os.ReadDir(b.cfg.CacheDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			b.log.Warnf("invalidate all: %v", err)
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), artifactExt) {
			continue
		}
		b.invalidate(strings.TrimSuffix(e.Name(), artifactExt))
	}
}

// RebuildAll renders the homepage and every published post. Pages are
// written one at a time; a failure part-way leaves the earlier pages on disk.
func (b *Builder) RebuildAll(ctx context.Context) (Result, error) {
	settings, err := b.store.GetSettings(ctx)
	if err != nil {
		return Result{}, err
	}
	indexTpl, err := b.template(ctx, HomeSlug, content.TemplateIndex)
	if err != nil {
		return Result{}, err
	}
	postTpl, err := b.template(ctx, HomeSlug, content.TemplatePost)
	if err != nil {
		return Result{}, err
	}
	posts, err := b.store.ListPublishedPosts(ctx)
	if err != nil {
		return Result{}, err
	}

	if _, err := b.RenderAndCache(ctx, HomeSlug, indexTpl.Content, homeBindings(settings, posts)); err != nil {
		return Result{}, err
	}
	count := 1
	for _, p := range posts {
		if _, err := b.RenderAndCache(ctx, p.Slug, postTpl.Content, postBindings(settings, p)); err != nil {
			return Result{PageCount: count}, err
		}
		count++
	}
	b.log.Infof("build complete: %d pages", count)
	return Result{PageCount: count}, nil
}

func (b *Builder) template(ctx context.Context, slug string, t content.TemplateType) (content.Template, error) {
	tpl, err := b.store.GetTemplate(ctx, t)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return content.Template{}, NewMissingTemplateError(slug, t)
		}
		return content.Template{}, err
	}
	return tpl, nil
}

func homeBindings(s content.Settings, posts []content.Post) map[string]any {
	list := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		list = append(list, p.Bindings())
	}
	bindings := s.Bindings()
	bindings["posts"] = list
	return bindings
}

func postBindings(s content.Settings, p content.Post) map[string]any {
	bindings := s.Bindings()
	bindings["post"] = p.Bindings()
	return bindings
}
