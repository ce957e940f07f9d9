package sabitcms

import (
	"time"

	"github.com/a-h/templ"
)

// SiteConfig holds all configuration for a SabitCMS instance.
type SiteConfig struct {
	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/sabit.db")
	CacheDir     string // Rendered page artifacts (default "dist")
	UploadsDir   string // Uploaded media (default "uploads")

	SiteURL  string // Canonical public URL (default "http://localhost:3000")
	AdminURL string // Admin dashboard URL, used by the setup link (default "http://localhost:3001")

	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	MinifyHTML            bool // Minify rendered artifacts
	StrictVariables       bool // Fail renders that reference undefined variables
	PurgeOnTemplateUpdate bool // Drop every artifact when a non-index template changes

	FeedCacheTTL time.Duration // Feed/sitemap post cache TTL (default 5min)
}

func (c *SiteConfig) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/sabit.db"
	}
	if c.CacheDir == "" {
		c.CacheDir = "dist"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "uploads"
	}
	if c.SiteURL == "" {
		c.SiteURL = "http://localhost:3000"
	}
	if c.AdminURL == "" {
		c.AdminURL = "http://localhost:3001"
	}
	if c.FeedCacheTTL == 0 {
		c.FeedCacheTTL = 5 * time.Minute
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithErrorViews replaces the built-in 404 and 500 pages.
func WithErrorViews(notFound, serverError func() templ.Component) Option {
	return func(a *App) {
		if notFound != nil {
			a.views.NotFound = notFound
		}
		if serverError != nil {
			a.views.ServerError = serverError
		}
	}
}
