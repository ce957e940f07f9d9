package sabitcms

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eringen/sabitcms/content"
)

// ErrAlreadySetup is returned by Setup once an admin user exists.
var ErrAlreadySetup = errors.New("system is already set up")

// ErrSlugTaken is returned when a post slug collides with another post.
var ErrSlugTaken = errors.New("slug already in use")

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const settingsRowID = "global"

// Store wraps a SQLite database and implements the content store: posts,
// templates, settings, users and image metadata.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets page renders read while the admin writes; busy_timeout makes
	// writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA foreign_keys=ON;
	`); err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
    id TEXT PRIMARY KEY,
    site_title TEXT NOT NULL,
    site_description TEXT NOT NULL DEFAULT '',
    footer_text TEXT NOT NULL DEFAULT '',
    active_theme TEXT NOT NULL DEFAULT 'default'
);
CREATE TABLE IF NOT EXISTS templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    published INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_published_created ON posts(published, created_at);
CREATE TABLE IF NOT EXISTS images (
    filename TEXT PRIMARY KEY,
    original_name TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    size INTEGER NOT NULL,
    uploaded_at TEXT NOT NULL
);
`)
	return err
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Posts ---

const postColumns = `id, title, slug, content, published, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (content.Post, error) {
	var p content.Post
	var published int
	var created, updated string
	if err := r.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &published, &created, &updated); err != nil {
		return content.Post{}, err
	}
	p.Published = published == 1
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]content.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []content.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListPublishedPosts returns all published posts, newest first.
func (s *Store) ListPublishedPosts(ctx context.Context) ([]content.Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts WHERE published = 1 ORDER BY created_at DESC`)
}

// PostQuery pages and filters the admin post list.
type PostQuery struct {
	Page   int
	Limit  int
	Search string
}

func (q *PostQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
}

// ListPosts returns one page of posts (published and drafts) whose title
// contains q.Search, plus the total number of matches.
func (s *Store) ListPosts(ctx context.Context, q PostQuery) ([]content.Post, int, error) {
	q.normalize()
	like := "%" + strings.TrimSpace(q.Search) + "%"
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE title LIKE ?`, like).Scan(&total); err != nil {
		return nil, 0, err
	}
	posts, err := s.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts WHERE title LIKE ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		like, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// GetPost returns a post by id regardless of published status.
func (s *Store) GetPost(ctx context.Context, id string) (content.Post, error) {
	return scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
}

// GetPostBySlug returns a single published post by slug.
func (s *Store) GetPostBySlug(ctx context.Context, slug string) (content.Post, error) {
	return scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE slug = ? AND published = 1`, slug))
}

// SlugExists reports whether any post (published or not) uses slug.
func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE slug = ?`, slug).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreatePost inserts p, assigning an id and timestamps.
func (s *Store) CreatePost(ctx context.Context, p content.Post) (content.Post, error) {
	p.ID = uuid.NewString()
	now := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Slug, p.Content, boolInt(p.Published), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return content.Post{}, ErrSlugTaken
		}
		return content.Post{}, err
	}
	p.CreatedAt = parseTime(now)
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

// PostPatch carries the fields of a partial post update. Nil fields are kept.
type PostPatch struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Slug      *string `json:"slug"`
	Published *bool   `json:"published"`
}

// UpdatePost applies patch to the post with id and returns the post as it
// was before and after the update.
func (s *Store) UpdatePost(ctx context.Context, id string, patch PostPatch) (prev, post content.Post, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return prev, post, err
	}
	defer tx.Rollback()

	prev, err = scanPost(tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if err != nil {
		return prev, post, err
	}
	post = prev
	if patch.Title != nil {
		post.Title = *patch.Title
	}
	if patch.Content != nil {
		post.Content = *patch.Content
	}
	if patch.Slug != nil && *patch.Slug != "" {
		post.Slug = *patch.Slug
	}
	if patch.Published != nil {
		post.Published = *patch.Published
	}
	now := s.stamp()
	_, err = tx.ExecContext(ctx,
		`UPDATE posts SET title = ?, slug = ?, content = ?, published = ?, updated_at = ? WHERE id = ?`,
		post.Title, post.Slug, post.Content, boolInt(post.Published), now, id)
	if err != nil {
		if isUniqueViolation(err) {
			return prev, post, ErrSlugTaken
		}
		return prev, post, err
	}
	post.UpdatedAt = parseTime(now)
	return prev, post, tx.Commit()
}

// DeletePost removes a post by id and returns it.
func (s *Store) DeletePost(ctx context.Context, id string) (content.Post, error) {
	p, err := s.GetPost(ctx, id)
	if err != nil {
		return content.Post{}, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id); err != nil {
		return content.Post{}, err
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// --- Templates ---

// GetTemplate returns the template of type t.
func (s *Store) GetTemplate(ctx context.Context, t content.TemplateType) (content.Template, error) {
	var tpl content.Template
	var updated string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, type, content, updated_at FROM templates WHERE type = ?`, string(t)).
		Scan(&tpl.ID, &tpl.Name, &tpl.Type, &tpl.Content, &updated)
	if err != nil {
		return content.Template{}, err
	}
	tpl.UpdatedAt = parseTime(updated)
	return tpl, nil
}

// ListTemplates returns every template ordered by type.
func (s *Store) ListTemplates(ctx context.Context) ([]content.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, content, updated_at FROM templates ORDER BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []content.Template
	for rows.Next() {
		var tpl content.Template
		var updated string
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Type, &tpl.Content, &updated); err != nil {
			return nil, err
		}
		tpl.UpdatedAt = parseTime(updated)
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// CreateTemplate inserts a template; an existing template of the same type
// is replaced.
func (s *Store) CreateTemplate(ctx context.Context, name string, t content.TemplateType, body string) error {
	return createTemplate(ctx, s.db, name, t, body, s.stamp())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createTemplate(ctx context.Context, db execer, name string, t content.TemplateType, body, now string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO templates (id, name, type, content, updated_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), name, string(t), body, now)
	return err
}

// UpdateTemplate replaces the content of the template of type t. It returns
// content.ErrNotFound when no such template exists.
func (s *Store) UpdateTemplate(ctx context.Context, t content.TemplateType, body string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET content = ?, updated_at = ? WHERE type = ?`, body, s.stamp(), string(t))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return content.ErrNotFound
	}
	return nil
}

// --- Settings ---

// GetSettings returns the site settings, or defaults when none are saved.
func (s *Store) GetSettings(ctx context.Context) (content.Settings, error) {
	var st content.Settings
	err := s.db.QueryRowContext(ctx, `SELECT site_title, site_description, footer_text, active_theme FROM settings WHERE id = ?`, settingsRowID).
		Scan(&st.SiteTitle, &st.SiteDescription, &st.FooterText, &st.ActiveTheme)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Settings{SiteTitle: content.DefaultSiteTitle, ActiveTheme: "default"}, nil
	}
	return st, err
}

// SaveSettings upserts the site settings.
func (s *Store) SaveSettings(ctx context.Context, st content.Settings) error {
	return saveSettings(ctx, s.db, st)
}

func saveSettings(ctx context.Context, db execer, st content.Settings) error {
	if st.ActiveTheme == "" {
		st.ActiveTheme = "default"
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (id, site_title, site_description, footer_text, active_theme) VALUES (?, ?, ?, ?, ?)`,
		settingsRowID, st.SiteTitle, st.SiteDescription, st.FooterText, st.ActiveTheme)
	return err
}

// --- Users ---

// CountUsers returns the number of admin accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CreateUser inserts an admin account. passwordHash must already be hashed.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (content.User, error) {
	return createUser(ctx, s.db, email, passwordHash, s.stamp())
}

func createUser(ctx context.Context, db execer, email, passwordHash, now string) (content.User, error) {
	u := content.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		CreatedAt:    parseTime(now),
	}
	_, err := db.ExecContext(ctx, `INSERT INTO users (id, email, password, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, now)
	if err != nil {
		return content.User{}, err
	}
	return u, nil
}

// GetUserByEmail looks up an admin account by email (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (content.User, error) {
	var u content.User
	var created string
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.PasswordHash, &created)
	if err != nil {
		return content.User{}, err
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

// --- Setup ---

// SetupInput is everything the first-run install writes.
type SetupInput struct {
	SiteTitle     string
	Email         string
	PasswordHash  string
	IndexTemplate string
	PostTemplate  string
}

// Setup installs the site in a single transaction: the first admin user,
// default settings, the index and post templates, and a welcome post.
func (s *Store) Setup(ctx context.Context, in SetupInput) (content.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return content.User{}, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return content.User{}, err
	}
	if n > 0 {
		return content.User{}, ErrAlreadySetup
	}

	now := s.stamp()
	user, err := createUser(ctx, tx, in.Email, in.PasswordHash, now)
	if err != nil {
		return content.User{}, err
	}
	title := in.SiteTitle
	if title == "" {
		title = "My New Blog"
	}
	if err := saveSettings(ctx, tx, content.Settings{
		SiteTitle:       title,
		SiteDescription: "Just another static blog site.",
		FooterText:      "Powered by SabitCMS",
		ActiveTheme:     "default",
	}); err != nil {
		return content.User{}, err
	}
	if err := createTemplate(ctx, tx, "Homepage", content.TemplateIndex, in.IndexTemplate, now); err != nil {
		return content.User{}, err
	}
	if err := createTemplate(ctx, tx, "Post Detail", content.TemplatePost, in.PostTemplate, now); err != nil {
		return content.User{}, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), "Hello World!", "hello-world",
		"<p>Welcome to your new blog. This is your first post. You can edit or delete it from the dashboard.</p>",
		1, now, now)
	if err != nil {
		return content.User{}, err
	}
	return user, tx.Commit()
}

// --- Images ---

// SaveImage records metadata for an uploaded image.
func (s *Store) SaveImage(ctx context.Context, img content.Image) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO images (filename, original_name, width, height, size, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		img.Filename, img.OriginalName, img.Width, img.Height, img.Size, img.UploadedAt)
	return err
}

// ListImages returns uploaded images, newest first unless ascending is set.
func (s *Store) ListImages(ctx context.Context, ascending bool) ([]content.Image, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, original_name, width, height, size, uploaded_at FROM images ORDER BY uploaded_at `+order+`, filename `+order)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []content.Image
	for rows.Next() {
		var img content.Image
		if err := rows.Scan(&img.Filename, &img.OriginalName, &img.Width, &img.Height, &img.Size, &img.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// ImageExists reports whether filename is already recorded.
func (s *Store) ImageExists(ctx context.Context, filename string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE filename = ?`, filename).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteImage removes an image's metadata. It returns content.ErrNotFound
// when the image is unknown.
func (s *Store) DeleteImage(ctx context.Context, filename string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE filename = ?`, filename)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return content.ErrNotFound
	}
	return nil
}
