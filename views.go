package sabitcms

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// layout wraps body in the minimal document used by pages that are served
// outside the page cache.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`+
			templ.EscapeString(title)+`</title></head><body>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func statusBody(code, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<h1>`+templ.EscapeString(code)+`</h1><p>`+
			templ.EscapeString(message)+`</p><a href="/">Home</a>`)
		return err
	})
}

// NotFoundView is the default 404 page.
func NotFoundView() templ.Component {
	return layout("Page not found", statusBody("404", "The page you are looking for does not exist."))
}

// ServerErrorView is the default 5xx page.
func ServerErrorView() templ.Component {
	return layout("Server error", statusBody("500", "Something went wrong while building this page."))
}

// NotInstalledView is served for every page until the first admin exists.
// setupURL is sanitized and escaped before it reaches the href.
func NotInstalledView(setupURL string) templ.Component {
	href := templ.EscapeString(string(templ.URL(setupURL)))
	return layout("SabitCMS is not installed", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<h1>Welcome to SabitCMS</h1><p>This site has not been set up yet.</p>`+
			`<p><a href="`+href+`">Run the setup wizard</a></p>`)
		return err
	}))
}
