package sabitcms

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// views holds the templ components used for pages that never go through the
// page cache.
type views struct {
	NotFound     func() templ.Component
	ServerError  func() templ.Component
	NotInstalled func(setupURL string) templ.Component
}

func defaultViews() views {
	return views{
		NotFound:     NotFoundView,
		ServerError:  ServerErrorView,
		NotInstalled: NotInstalledView,
	}
}

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}
