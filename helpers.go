package sabitcms

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

var transliterations = strings.NewReplacer(
	"ğ", "g", "ü", "u", "ş", "s", "ı", "i", "ö", "o", "ç", "c",
	"Ğ", "g", "Ü", "u", "Ş", "s", "İ", "i", "Ö", "o", "Ç", "c",
)

// Slugify converts a title to a URL-safe slug. Turkish letters are folded
// to their ASCII counterparts; any other run of non [a-z0-9] becomes a dash.
func Slugify(s string) string {
	s = strings.ToLower(transliterations.Replace(strings.TrimSpace(s)))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// uniqueSlug disambiguates a slug that is already taken.
func uniqueSlug(slug string) string {
	return fmt.Sprintf("%s-%d", slug, time.Now().UnixMilli())
}

// BuildURL joins a base URL with path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join("/", u.Path, path.Join(pathSegments...))
	return u.String()
}
