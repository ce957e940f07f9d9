package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eringen/sabitcms"
	"github.com/eringen/sabitcms/build"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe()
	case "build":
		err = runBuild()
	case "version":
		fmt.Printf("sabitcms %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sabitcms - A blog CMS serving cached static pages from Liquid templates

Usage:
  sabitcms [command]

Commands:
  serve      Start the HTTP server (default)
  build      Render every published page into the cache directory and exit
  version    Print the sabitcms version
  help       Show this help message

Environment:
  SESSION_SECRET             Session encryption secret (required for serve)
  PORT                       Listen port (default 3000)
  DATABASE_PATH              SQLite database path (default data/sabit.db)
  CACHE_DIR                  Rendered page directory (default dist)
  UPLOADS_DIR                Uploaded media directory (default uploads)
  SITE_URL                   Public site URL
  ADMIN_URL                  Admin dashboard URL
  COOKIE_SECURE              Mark session cookies secure (true/false)
  MINIFY_HTML                Minify rendered pages (true/false)
  STRICT_VARIABLES           Fail renders on undefined variables (true/false)
  PURGE_ON_TEMPLATE_UPDATE   Drop every page when a post template changes (true/false)`)
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func loadConfig() sabitcms.SiteConfig {
	return sabitcms.SiteConfig{
		Addr:                  ":" + sabitcms.EnvOr("PORT", "3000"),
		DatabasePath:          sabitcms.EnvOr("DATABASE_PATH", "data/sabit.db"),
		CacheDir:              sabitcms.EnvOr("CACHE_DIR", "dist"),
		UploadsDir:            sabitcms.EnvOr("UPLOADS_DIR", "uploads"),
		SiteURL:               os.Getenv("SITE_URL"),
		AdminURL:              os.Getenv("ADMIN_URL"),
		CookieSecure:          envBool("COOKIE_SECURE"),
		MinifyHTML:            envBool("MINIFY_HTML"),
		StrictVariables:       envBool("STRICT_VARIABLES"),
		PurgeOnTemplateUpdate: envBool("PURGE_ON_TEMPLATE_UPDATE"),
	}
}

func runServe() error {
	cfg := loadConfig()
	cfg.SessionSecret = sabitcms.MustEnv("SESSION_SECRET")

	app := sabitcms.New(cfg)
	defer app.Close()

	errc := make(chan error, 1)
	go func() { errc <- app.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Shutdown(ctx)
}

func runBuild() error {
	cfg := loadConfig()

	store, err := sabitcms.NewStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	b := build.New(build.Config{
		CacheDir: cfg.CacheDir,
		Engine:   build.NewEngine(cfg.StrictVariables),
		Minify:   cfg.MinifyHTML,
	}, store)

	res, err := b.RebuildAll(context.Background())
	if err != nil {
		var be *build.Error
		if errors.As(err, &be) && be.Kind == build.NotFoundErrorKind {
			return fmt.Errorf("%w (has the site been set up?)", err)
		}
		return fmt.Errorf("build stopped after %d pages: %w", res.PageCount, err)
	}
	fmt.Printf("Built %d pages into %s\n", res.PageCount, b.CacheDir())
	return nil
}
