// Package content holds the domain types shared by the store, the page
// builder and the HTTP handlers.
package content

import (
	"database/sql"
	"fmt"
	"time"
)

// ErrNotFound is returned by the store when a requested row does not exist.
var ErrNotFound = sql.ErrNoRows

// TemplateType identifies which page shape a template renders.
type TemplateType string

const (
	TemplateIndex TemplateType = "index"
	TemplatePost  TemplateType = "post"
	TemplatePage  TemplateType = "page"
)

// ParseTemplateType validates s against the known template types.
func ParseTemplateType(s string) (TemplateType, error) {
	switch t := TemplateType(s); t {
	case TemplateIndex, TemplatePost, TemplatePage:
		return t, nil
	}
	return "", fmt.Errorf("invalid template type %q (can be index, post, page)", s)
}

// Post is a blog entry. Only published posts are rendered into pages.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Bindings returns the post as a Liquid-friendly map.
func (p Post) Bindings() map[string]any {
	return map[string]any{
		"id":        p.ID,
		"title":     p.Title,
		"slug":      p.Slug,
		"content":   p.Content,
		"published": p.Published,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
		"url":       "/" + p.Slug,
	}
}

// Template is a Liquid source blueprint stored in the database.
type Template struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      TemplateType `json:"type"`
	Content   string       `json:"content"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Settings are the site-wide values every page can reference.
type Settings struct {
	SiteTitle       string `json:"siteTitle"`
	SiteDescription string `json:"siteDescription"`
	FooterText      string `json:"footerText"`
	ActiveTheme     string `json:"activeTheme"`
}

// DefaultSiteTitle is used when no title has been configured.
const DefaultSiteTitle = "My Blog"

// Bindings returns the global part of every render context.
func (s Settings) Bindings() map[string]any {
	title := s.SiteTitle
	if title == "" {
		title = DefaultSiteTitle
	}
	return map[string]any{
		"siteName":        title,
		"siteTitle":       title,
		"siteDescription": s.SiteDescription,
		"footerText":      s.FooterText,
	}
}

// User is an admin account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Image holds metadata about an uploaded media file.
type Image struct {
	Filename     string `json:"name"`
	OriginalName string `json:"originalName"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Size         int    `json:"size"`
	UploadedAt   string `json:"uploadedAt"`
	URL          string `json:"url"`
}
