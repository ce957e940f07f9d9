package sabitcms

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eringen/sabitcms/content"
)

// Slugs that would shadow a route or the homepage artifact.
var reservedSlugs = map[string]struct{}{
	"index": {}, "api": {}, "uploads": {}, "feed.xml": {}, "sitemap.xml": {}, "robots.txt": {},
}

type createPostRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Slug      string `json:"slug"`
	Published bool   `json:"published"`
}

func (r createPostRequest) validate() error {
	if len(strings.TrimSpace(r.Title)) < 3 {
		return errors.New("the title must be at least 3 characters long")
	}
	if len(strings.TrimSpace(r.Content)) < 10 {
		return errors.New("content is too short")
	}
	return nil
}

func validSlug(slug string) error {
	if slug == "" {
		return errors.New("slug is required, add a title or slug")
	}
	if _, ok := reservedSlugs[slug]; ok {
		return fmt.Errorf("slug %q is reserved", slug)
	}
	if Slugify(slug) != slug {
		return fmt.Errorf("slug %q may only contain lowercase letters, digits and dashes", slug)
	}
	return nil
}

func postID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid post id")
	}
	return id, nil
}

func (a *App) handleListPosts(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	q := PostQuery{Page: page, Limit: limit, Search: c.QueryParam("search")}
	q.normalize()
	posts, total, err := a.Store.ListPosts(c.Request().Context(), q)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []content.Post{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"results": len(posts),
		"data": echo.Map{
			"posts": posts,
			"pagination": echo.Map{
				"page":       q.Page,
				"limit":      q.Limit,
				"totalPages": int(math.Ceil(float64(total) / float64(q.Limit))),
				"totalPosts": total,
			},
		},
	})
}

func (a *App) handleGetPost(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	post, err := a.Store.GetPost(c.Request().Context(), id)
	if errors.Is(err, content.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": post})
}

func (a *App) handleCreatePost(c echo.Context) error {
	var req createPostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	slug := strings.TrimSpace(req.Slug)
	if slug == "" {
		slug = Slugify(req.Title)
		// A title like "Index" is fine; only an explicit reserved slug is not.
		if _, ok := reservedSlugs[slug]; ok {
			slug = uniqueSlug(slug)
		}
	}
	if err := validSlug(slug); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exists, err := a.Store.SlugExists(ctx, slug)
	if err != nil {
		return err
	}
	if exists {
		slug = uniqueSlug(slug)
	}
	post, err := a.Store.CreatePost(ctx, content.Post{
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		Slug:      slug,
		Published: req.Published,
	})
	if errors.Is(err, ErrSlugTaken) {
		return echo.NewHTTPError(http.StatusConflict, "slug already in use")
	}
	if err != nil {
		return err
	}

	// Only the post list changed; existing post pages are still valid.
	a.Builder.InvalidateHome()
	a.Feed.Invalidate()

	return c.JSON(http.StatusCreated, echo.Map{"status": "success", "data": post})
}

func (a *App) handleUpdatePost(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	var patch PostPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if patch.Slug != nil {
		s := strings.TrimSpace(*patch.Slug)
		patch.Slug = &s
		if s != "" {
			if err := validSlug(s); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
	}
	prev, post, err := a.Store.UpdatePost(c.Request().Context(), id, patch)
	switch {
	case errors.Is(err, content.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	case errors.Is(err, ErrSlugTaken):
		return echo.NewHTTPError(http.StatusConflict, "slug already in use")
	case err != nil:
		return err
	}

	a.Builder.Invalidate(post.Slug)
	if prev.Slug != post.Slug {
		a.Builder.Invalidate(prev.Slug)
	}
	a.Builder.InvalidateHome()
	a.Feed.Invalidate()
	c.Logger().Infof("post cache cleaned: %s", post.Slug)

	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": post})
}

func (a *App) handleDeletePost(c echo.Context) error {
	id, err := postID(c)
	if err != nil {
		return err
	}
	post, err := a.Store.DeletePost(c.Request().Context(), id)
	if errors.Is(err, content.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "post not found")
	}
	if err != nil {
		return err
	}

	a.Builder.Invalidate(post.Slug)
	a.Builder.InvalidateHome()
	a.Feed.Invalidate()

	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleListTemplates(c echo.Context) error {
	templates, err := a.Store.ListTemplates(c.Request().Context())
	if err != nil {
		return err
	}
	if templates == nil {
		templates = []content.Template{}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": templates})
}

func (a *App) handleUpdateTemplate(c echo.Context) error {
	t, err := content.ParseTemplateType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(strings.TrimSpace(req.Content)) < 10 {
		return echo.NewHTTPError(http.StatusBadRequest, "template content must be at least 10 characters")
	}
	err = a.Store.UpdateTemplate(c.Request().Context(), t, req.Content)
	if errors.Is(err, content.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no templates matching the specified criteria were found")
	}
	if err != nil {
		return err
	}

	switch {
	case t == content.TemplateIndex:
		a.Builder.InvalidateHome()
	case a.Config.PurgeOnTemplateUpdate:
		a.Builder.InvalidateAll()
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "the template has been updated and the cache cleared",
	})
}

func (a *App) handleGetSettings(c echo.Context) error {
	settings, err := a.Store.GetSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": settings})
}

func (a *App) handleUpdateSettings(c echo.Context) error {
	ctx := c.Request().Context()
	settings, err := a.Store.GetSettings(ctx)
	if err != nil {
		return err
	}
	if err := c.Bind(&settings); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(settings.SiteTitle) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "site title is required")
	}
	if err := a.Store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	// Every page embeds the site title and footer.
	a.Builder.InvalidateAll()
	a.Feed.Invalidate()
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "data": settings})
}

func (a *App) handleBuild(c echo.Context) error {
	res, err := a.Builder.RebuildAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": fmt.Sprintf("site built: %d pages", res.PageCount),
		"data":    res,
	})
}
