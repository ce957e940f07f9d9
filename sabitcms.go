// Package sabitcms is a small blog CMS built with Go and Echo. Pages are
// rendered from Liquid templates stored in SQLite and cached on disk as
// static HTML; content mutations made through the admin API invalidate the
// affected artifacts so the next request regenerates them.
package sabitcms

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/sabitcms/build"
)

// App is the central SabitCMS application. It wires together the content
// store, the page builder, handlers and middleware.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	Store   *Store
	Builder *build.Builder
	Feed    *PostCache

	views        views
	loginLimiter *LoginLimiter
	customRoutes []func(*App)
	installed    atomic.Bool
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		views:  defaultViews(),
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Setup opens the store, creates the builder and registers middleware and
// routes. Start calls it; tests call it directly and drive a.Echo.
func (a *App) Setup() error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("sabitcms: SessionSecret is required")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("sabitcms: init store: %w", err)
	}
	a.Store = store

	a.Builder = build.New(build.Config{
		CacheDir: a.Config.CacheDir,
		Engine:   build.NewEngine(a.Config.StrictVariables),
		Minify:   a.Config.MinifyHTML,
		Logger:   a.Echo.Logger,
	}, a.Store)

	a.Feed = NewPostCache(a.Store, a.Config.FeedCacheTTL)
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the application and starts the HTTP server.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Echo.Shutdown(ctx)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/uploads", a.Config.UploadsDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	setup := e.Group("/api/setup")
	setup.GET("/status", a.handleSetupStatus)
	setup.POST("/run", a.handleSetupRun)

	auth := e.Group("/api/auth")
	auth.POST("/login", a.handleLogin)
	auth.POST("/logout", handleLogout)
	auth.GET("/me", a.handleMe, a.requireAdmin)

	admin := e.Group("/api/admin", a.requireAdmin)
	admin.GET("/posts", a.handleListPosts)
	admin.POST("/posts", a.handleCreatePost)
	admin.GET("/posts/:id", a.handleGetPost)
	admin.PUT("/posts/:id", a.handleUpdatePost)
	admin.DELETE("/posts/:id", a.handleDeletePost)
	admin.GET("/templates", a.handleListTemplates)
	admin.PUT("/templates/:type", a.handleUpdateTemplate)
	admin.GET("/settings", a.handleGetSettings)
	admin.PUT("/settings", a.handleUpdateSettings)
	admin.POST("/build", a.handleBuild)
	admin.POST("/upload", a.handleImageUpload)
	admin.GET("/media", a.handleImageList)
	admin.DELETE("/media/:filename", a.handleImageDelete)

	e.GET("/", a.handlePage)
	e.GET("/:slug", a.handlePage)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustEnv returns the value of the environment variable key, or fatally exits if empty.
func MustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("sabitcms: required environment variable %s is not set", key)
	}
	return v
}
