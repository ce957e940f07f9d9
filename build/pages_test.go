package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eringen/sabitcms/content"
)

func TestPageMissThenHit(t *testing.T) {
	store := newMemStore()
	store.addPost("hello", "Hello", true)
	b := newTestBuilder(t, store)
	ctx := context.Background()

	page, err := b.Page(ctx, "hello")
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if page.Hit {
		t.Error("first request should be a cache miss")
	}
	if !strings.Contains(page.HTML, "<h1>Hello</h1>") {
		t.Errorf("HTML = %q", page.HTML)
	}
	reads := store.readCount()

	page, err = b.Page(ctx, "hello")
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if !page.Hit {
		t.Error("second request should be a cache hit")
	}
	if got := store.readCount(); got != reads {
		t.Errorf("cache hit read the store: reads %d -> %d", reads, got)
	}
}

func TestPageAfterInvalidateRerenders(t *testing.T) {
	store := newMemStore()
	store.addPost("hello", "Hello", true)
	b := newTestBuilder(t, store)
	ctx := context.Background()

	if _, err := b.Page(ctx, "hello"); err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	reads := store.readCount()

	b.Invalidate("hello")
	page, err := b.Page(ctx, "hello")
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if page.Hit {
		t.Error("request after invalidate must not hit the cache")
	}
	if got := store.readCount(); got <= reads {
		t.Errorf("expected store reads after invalidate, reads %d -> %d", reads, got)
	}
}

func TestPageHomeListsPublished(t *testing.T) {
	store := newMemStore()
	store.addPost("a", "Post A", true)
	store.addPost("b", "Post B", true)
	b := newTestBuilder(t, store)
	ctx := context.Background()

	page, err := b.Page(ctx, HomeSlug)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if !strings.Contains(page.HTML, "Post A") || !strings.Contains(page.HTML, "Post B") {
		t.Fatalf("home = %q", page.HTML)
	}
	if !strings.Contains(page.HTML, "<h1>Test Blog</h1>") {
		t.Errorf("home missing site name: %q", page.HTML)
	}

	// Unpublishing A: the handler drops a.html and index.html.
	if _, err := b.Page(ctx, "a"); err != nil {
		t.Fatalf("Page(a) failed: %v", err)
	}
	store.setPublished("a", false)
	b.Invalidate("a")
	b.InvalidateHome()
	if _, ok := b.Cached("a"); ok {
		t.Error("a.html should be deleted")
	}
	if _, ok := b.Cached(HomeSlug); ok {
		t.Error("index.html should be deleted")
	}

	page, err = b.Page(ctx, HomeSlug)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if strings.Contains(page.HTML, "Post A") {
		t.Errorf("home should exclude unpublished post: %q", page.HTML)
	}
	if _, err := b.Page(ctx, "a"); !IsKind(err, NotFoundErrorKind) {
		t.Errorf("unpublished post should be not found, got %v", err)
	}
}

func TestPageUnknownSlug(t *testing.T) {
	b := newTestBuilder(t, newMemStore())
	_, err := b.Page(context.Background(), "nope")
	if !IsKind(err, NotFoundErrorKind) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, ok := b.Cached("nope"); ok {
		t.Error("no artifact should be written for unknown slug")
	}
}

func TestPageMissingTemplate(t *testing.T) {
	store := newMemStore()
	store.addPost("hello", "Hello", true)
	delete(store.templates, content.TemplatePost)
	b := newTestBuilder(t, store)

	_, err := b.Page(context.Background(), "hello")
	if !IsKind(err, NotFoundErrorKind) {
		t.Fatalf("expected not found, got %v", err)
	}
	if be := err.(*Error); be.Template != content.TemplatePost {
		t.Errorf("Template = %q, want post", be.Template)
	}
}

func TestPageConcurrentMisses(t *testing.T) {
	store := newMemStore()
	store.addPost("busy", "Busy", true)
	b := newTestBuilder(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := b.Page(ctx, "busy")
			if err != nil {
				errs <- err
				return
			}
			if !page.Hit && !strings.Contains(page.HTML, "Busy") {
				errs <- os.ErrInvalid
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Page: %v", err)
	}
	if got := listArtifacts(t, b.CacheDir()); len(got) != 1 || got[0] != "busy.html" {
		t.Errorf("artifacts = %v, want [busy.html]", got)
	}
}

func TestStaleRenderIsDiscarded(t *testing.T) {
	store := newMemStore()
	store.addPost("race", "Race", true)
	b := newTestBuilder(t, store)

	name, _ := artifactName("race")
	seen := b.stampOf(name)
	b.Invalidate("race")

	stored, err := b.storeIfCurrent("race", name, "<p>old</p>", seen)
	if err != nil {
		t.Fatalf("storeIfCurrent failed: %v", err)
	}
	if stored {
		t.Error("render started before invalidation must not be persisted")
	}
	if _, ok := b.Cached("race"); ok {
		t.Error("stale artifact written")
	}
}

func TestStaleRenderIsDiscardedAfterInvalidateAll(t *testing.T) {
	b := newTestBuilder(t, newMemStore())

	// No artifact exists yet, so InvalidateAll has no file for this slug.
	name, _ := artifactName("fresh")
	seen := b.stampOf(name)
	b.InvalidateAll()

	stored, err := b.storeIfCurrent("fresh", name, "<p>old settings</p>", seen)
	if err != nil {
		t.Fatalf("storeIfCurrent failed: %v", err)
	}
	if stored {
		t.Error("render started before InvalidateAll must not be persisted")
	}
	if _, ok := b.Cached("fresh"); ok {
		t.Error("stale artifact written")
	}
}

func TestPageUnknownSlugsLeaveNoState(t *testing.T) {
	b := newTestBuilder(t, newMemStore())
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		_, err := b.Page(ctx, fmt.Sprintf("missing-%d", i))
		if !IsKind(err, NotFoundErrorKind) {
			t.Fatalf("Page(missing-%d) error = %v, want not found", i, err)
		}
	}
	b.mu.Lock()
	n := len(b.slugs)
	b.mu.Unlock()
	if n != 0 {
		t.Errorf("slug states retained = %d, want 0", n)
	}
}

// blockingStore holds GetSettings until release is closed and fails if the
// context it was given has been cancelled by then.
type blockingStore struct {
	*memStore
	started chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		memStore: newMemStore(),
		started:  make(chan struct{}, 8),
		release:  make(chan struct{}),
	}
}

func (s *blockingStore) GetSettings(ctx context.Context) (content.Settings, error) {
	s.started <- struct{}{}
	<-s.release
	if err := ctx.Err(); err != nil {
		return content.Settings{}, err
	}
	return s.memStore.GetSettings(ctx)
}

type pageResult struct {
	page Page
	err  error
}

func TestPageSharedRenderSurvivesCallerCancel(t *testing.T) {
	store := newBlockingStore()
	store.addPost("slow", "Slow", true)
	b := newTestBuilder(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan pageResult, 1)
	go func() {
		p, err := b.Page(ctx, "slow")
		first <- pageResult{p, err}
	}()
	<-store.started

	second := make(chan pageResult, 1)
	go func() {
		p, err := b.Page(context.Background(), "slow")
		second <- pageResult{p, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if res := <-first; !errors.Is(res.err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", res.err)
	}
	close(store.release)

	res := <-second
	if res.err != nil {
		t.Fatalf("second caller failed: %v", res.err)
	}
	if !res.page.Hit && !strings.Contains(res.page.HTML, "<h1>Slow</h1>") {
		t.Errorf("HTML = %q", res.page.HTML)
	}
	if _, ok := b.Cached("slow"); !ok {
		t.Error("shared render was not persisted")
	}
}

func TestPageRenderDuringInvalidateAllIsNotPersisted(t *testing.T) {
	store := newBlockingStore()
	store.addPost("slow", "Slow", true)
	b := newTestBuilder(t, store)

	done := make(chan pageResult, 1)
	go func() {
		p, err := b.Page(context.Background(), "slow")
		done <- pageResult{p, err}
	}()
	<-store.started
	b.InvalidateAll()
	close(store.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Page failed: %v", res.err)
	}
	if !strings.Contains(res.page.HTML, "<h1>Slow</h1>") {
		t.Errorf("requester should still get the render, HTML = %q", res.page.HTML)
	}
	if res.page.Path != "" {
		t.Errorf("Path = %q, want empty for a discarded render", res.page.Path)
	}
	if _, ok := b.Cached("slow"); ok {
		t.Error("render that raced InvalidateAll was persisted")
	}
}
