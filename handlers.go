package sabitcms

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/sabitcms/build"
	"github.com/eringen/sabitcms/content"
)

// handlePage serves a rendered page. Cached artifacts are streamed straight
// from disk; misses are rendered, cached and served.
func (a *App) handlePage(c echo.Context) error {
	ok, err := a.isInstalled(c)
	if err != nil {
		return err
	}
	if !ok {
		setupURL := strings.TrimRight(a.Config.AdminURL, "/") + "/setup"
		return Render(c, a.views.NotInstalled(setupURL))
	}

	slug := c.Param("slug")
	if slug == "" {
		slug = build.HomeSlug
	}
	page, err := a.Builder.Page(c.Request().Context(), slug)
	if err != nil {
		return err
	}
	if page.Hit {
		c.Response().Header().Set("X-Cache", "HIT")
		return c.File(page.Path)
	}
	c.Response().Header().Set("X-Cache", "MISS")
	return c.HTML(http.StatusOK, page.HTML)
}

// isInstalled reports whether an admin user exists. A positive answer is
// remembered, so once the site is set up page requests skip the query.
func (a *App) isInstalled(c echo.Context) (bool, error) {
	if a.installed.Load() {
		return true, nil
	}
	n, err := a.Store.CountUsers(c.Request().Context())
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	a.installed.Store(true)
	return true, nil
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Feed.Published(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Feed.Published(c.Request().Context())
	if err != nil {
		return err
	}
	settings, err := a.Store.GetSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, settings, posts)
}

func (a *App) handleRobots(c echo.Context) error {
	body := fmt.Sprintf("User-agent: *\nAllow: /\nDisallow: /api/\n\nSitemap: %s\n", BuildURL(a.Config.SiteURL, "sitemap.xml"))
	return c.String(http.StatusOK, body)
}

// httpStatus maps an error from the builder or store to an HTTP status code
// and a client-facing message.
func httpStatus(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}
	var be *build.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case build.NotFoundErrorKind:
			if be.Template != "" {
				return http.StatusInternalServerError, be.Message
			}
			return http.StatusNotFound, be.Message
		case build.RenderErrorKind:
			return http.StatusInternalServerError, be.Error()
		case build.FileSystemErrorKind:
			return http.StatusInternalServerError, be.Message
		}
	}
	if errors.Is(err, content.ErrNotFound) {
		return http.StatusNotFound, "not found"
	}
	return http.StatusInternalServerError, "an unexpected error occurred in server"
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := httpStatus(err)
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		_ = c.JSON(code, echo.Map{"status": "error", "message": msg})
		return
	}
	switch {
	case code == http.StatusNotFound:
		_ = RenderStatus(c, code, a.views.NotFound())
	case code >= 500:
		_ = RenderStatus(c, code, a.views.ServerError())
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
