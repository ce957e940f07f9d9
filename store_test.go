package sabitcms

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/eringen/sabitcms/content"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "test_blog.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	// Each stamp is one second later than the last so ordering is stable.
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func mustCreatePost(t *testing.T, s *Store, title, slug string, published bool) content.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), content.Post{
		Title:     title,
		Slug:      slug,
		Content:   "<p>" + title + " body</p>",
		Published: published,
	})
	if err != nil {
		t.Fatalf("CreatePost(%q): %v", slug, err)
	}
	return p
}

func slugsOf(posts []content.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Slug
	}
	return out
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "blog.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	// Reopening runs the schema migrations again.
	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2.Close()
}

func TestCreateAndGetPost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created := mustCreatePost(t, s, "First Post", "first-post", true)
	if created.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("unexpected timestamps: %v / %v", created.CreatedAt, created.UpdatedAt)
	}

	got, err := s.GetPost(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("GetPost mismatch (-want +got):\n%s", diff)
	}

	bySlug, err := s.GetPostBySlug(ctx, "first-post")
	if err != nil {
		t.Fatalf("GetPostBySlug: %v", err)
	}
	if bySlug.ID != created.ID {
		t.Errorf("GetPostBySlug id = %q, want %q", bySlug.ID, created.ID)
	}
}

func TestGetPostBySlugSkipsDrafts(t *testing.T) {
	s := setupTestStore(t)
	mustCreatePost(t, s, "Draft", "draft", false)

	_, err := s.GetPostBySlug(context.Background(), "draft")
	if !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreatePostDuplicateSlug(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustCreatePost(t, s, "One", "same", true)

	_, err := s.CreatePost(ctx, content.Post{Title: "Two", Slug: "same", Content: "whatever body"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("err = %v, want ErrSlugTaken", err)
	}

	exists, err := s.SlugExists(ctx, "same")
	if err != nil || !exists {
		t.Fatalf("SlugExists = %v, %v; want true", exists, err)
	}
	exists, err = s.SlugExists(ctx, "other")
	if err != nil || exists {
		t.Fatalf("SlugExists(other) = %v, %v; want false", exists, err)
	}
}

func TestListPublishedPostsNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	mustCreatePost(t, s, "Old", "old", true)
	mustCreatePost(t, s, "Hidden", "hidden", false)
	mustCreatePost(t, s, "New", "new", true)

	posts, err := s.ListPublishedPosts(context.Background())
	if err != nil {
		t.Fatalf("ListPublishedPosts: %v", err)
	}
	if diff := cmp.Diff([]string{"new", "old"}, slugsOf(posts)); diff != "" {
		t.Errorf("slugs mismatch (-want +got):\n%s", diff)
	}
}

func TestListPostsPaginationAndSearch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, slug := range []string{"go-one", "go-two", "rust-one", "go-three"} {
		mustCreatePost(t, s, "Title "+slug, slug, slug != "go-two")
	}

	tests := []struct {
		name      string
		query     PostQuery
		wantSlugs []string
		wantTotal int
	}{
		{"defaults", PostQuery{}, []string{"go-three", "rust-one", "go-two", "go-one"}, 4},
		{"first page", PostQuery{Page: 1, Limit: 2}, []string{"go-three", "rust-one"}, 4},
		{"second page", PostQuery{Page: 2, Limit: 2}, []string{"go-two", "go-one"}, 4},
		{"past the end", PostQuery{Page: 3, Limit: 2}, nil, 4},
		{"search", PostQuery{Search: "go-"}, []string{"go-three", "go-two", "go-one"}, 3},
		{"no match", PostQuery{Search: "python"}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, total, err := s.ListPosts(ctx, tt.query)
			if err != nil {
				t.Fatalf("ListPosts: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if diff := cmp.Diff(tt.wantSlugs, slugsOf(posts), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("slugs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdatePostReturnsPreviousState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := mustCreatePost(t, s, "Original", "original", true)

	newSlug := "renamed"
	unpublished := false
	prev, post, err := s.UpdatePost(ctx, p.ID, PostPatch{Slug: &newSlug, Published: &unpublished})
	if err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	if prev.Slug != "original" || !prev.Published {
		t.Errorf("prev = %+v, want original published post", prev)
	}
	if post.Slug != "renamed" || post.Published || post.Title != "Original" {
		t.Errorf("post = %+v, want renamed unpublished post with title kept", post)
	}
	if !post.UpdatedAt.After(prev.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v <= %v", post.UpdatedAt, prev.UpdatedAt)
	}

	stored, err := s.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if diff := cmp.Diff(post, stored); diff != "" {
		t.Errorf("stored mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdatePostErrors(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustCreatePost(t, s, "Taken", "taken", true)
	p := mustCreatePost(t, s, "Mine", "mine", true)

	taken := "taken"
	if _, _, err := s.UpdatePost(ctx, p.ID, PostPatch{Slug: &taken}); !errors.Is(err, ErrSlugTaken) {
		t.Errorf("slug collision err = %v, want ErrSlugTaken", err)
	}
	if _, _, err := s.UpdatePost(ctx, "missing", PostPatch{}); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("missing post err = %v, want ErrNotFound", err)
	}
}

func TestDeletePost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := mustCreatePost(t, s, "Doomed", "doomed", true)

	deleted, err := s.DeletePost(ctx, p.ID)
	if err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if deleted.Slug != "doomed" {
		t.Errorf("deleted slug = %q", deleted.Slug)
	}
	if _, err := s.GetPost(ctx, p.ID); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("GetPost after delete err = %v", err)
	}
	if _, err := s.DeletePost(ctx, p.ID); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("second DeletePost err = %v", err)
	}
}

func TestTemplates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.GetTemplate(ctx, content.TemplateIndex); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("GetTemplate on empty store err = %v", err)
	}
	if err := s.UpdateTemplate(ctx, content.TemplateIndex, "{{ siteName }}"); !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("UpdateTemplate on empty store err = %v", err)
	}

	if err := s.CreateTemplate(ctx, "Homepage", content.TemplateIndex, "<h1>{{ siteName }}</h1>"); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if err := s.CreateTemplate(ctx, "Post Detail", content.TemplatePost, "<h1>{{ post.title }}</h1>"); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if err := s.UpdateTemplate(ctx, content.TemplateIndex, "<h2>{{ siteName }}</h2>"); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}

	tpl, err := s.GetTemplate(ctx, content.TemplateIndex)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if tpl.Content != "<h2>{{ siteName }}</h2>" || tpl.Name != "Homepage" {
		t.Errorf("template = %+v", tpl)
	}

	all, err := s.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	var types []content.TemplateType
	for _, tpl := range all {
		types = append(types, tpl.Type)
	}
	if diff := cmp.Diff([]content.TemplateType{content.TemplateIndex, content.TemplatePost}, types); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestSettingsDefaultsAndSave(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if st.SiteTitle != content.DefaultSiteTitle {
		t.Errorf("default title = %q", st.SiteTitle)
	}

	want := content.Settings{SiteTitle: "Sabit", SiteDescription: "desc", FooterText: "foot", ActiveTheme: "default"}
	if err := s.SaveSettings(ctx, content.Settings{SiteTitle: "Sabit", SiteDescription: "desc", FooterText: "foot"}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestSetup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	in := SetupInput{
		SiteTitle:     "Fresh Blog",
		Email:         " Admin@Example.com ",
		PasswordHash:  "hash",
		IndexTemplate: "<h1>{{ siteName }}</h1>",
		PostTemplate:  "<h1>{{ post.title }}</h1>",
	}

	user, err := s.Setup(ctx, in)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if user.Email != "admin@example.com" {
		t.Errorf("email = %q, want normalized", user.Email)
	}

	n, err := s.CountUsers(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountUsers = %d, %v", n, err)
	}
	got, err := s.GetUserByEmail(ctx, "ADMIN@example.com")
	if err != nil || got.ID != user.ID || got.PasswordHash != "hash" {
		t.Fatalf("GetUserByEmail = %+v, %v", got, err)
	}
	settings, err := s.GetSettings(ctx)
	if err != nil || settings.SiteTitle != "Fresh Blog" {
		t.Fatalf("settings = %+v, %v", settings, err)
	}
	for _, tt := range []content.TemplateType{content.TemplateIndex, content.TemplatePost} {
		if _, err := s.GetTemplate(ctx, tt); err != nil {
			t.Errorf("GetTemplate(%s): %v", tt, err)
		}
	}
	if _, err := s.GetPostBySlug(ctx, "hello-world"); err != nil {
		t.Errorf("welcome post: %v", err)
	}

	if _, err := s.Setup(ctx, in); !errors.Is(err, ErrAlreadySetup) {
		t.Fatalf("second Setup err = %v, want ErrAlreadySetup", err)
	}
}

func TestImages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"a.jpg", "b.jpg"} {
		img := content.Image{
			Filename:     name,
			OriginalName: name,
			Width:        100,
			Height:       50,
			Size:         1234,
			UploadedAt:   time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC).Format(time.RFC3339Nano),
		}
		if err := s.SaveImage(ctx, img); err != nil {
			t.Fatalf("SaveImage(%s): %v", name, err)
		}
	}

	desc, err := s.ListImages(ctx, false)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(desc) != 2 || desc[0].Filename != "b.jpg" {
		t.Errorf("descending order = %+v", desc)
	}
	asc, err := s.ListImages(ctx, true)
	if err != nil {
		t.Fatalf("ListImages asc: %v", err)
	}
	if len(asc) != 2 || asc[0].Filename != "a.jpg" {
		t.Errorf("ascending order = %+v", asc)
	}

	if ok, err := s.ImageExists(ctx, "a.jpg"); err != nil || !ok {
		t.Errorf("ImageExists(a.jpg) = %v, %v", ok, err)
	}
	if err := s.DeleteImage(ctx, "a.jpg"); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if ok, _ := s.ImageExists(ctx, "a.jpg"); ok {
		t.Error("image still exists after delete")
	}
	if err := s.DeleteImage(ctx, "a.jpg"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("second DeleteImage err = %v, want ErrNotFound", err)
	}
}
