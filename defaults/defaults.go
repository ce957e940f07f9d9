// Package defaults provides the embedded Liquid templates a fresh SabitCMS
// install starts with.
package defaults

import "embed"

// Files contains the default Liquid templates.
//
//go:embed all:templates
var Files embed.FS

func mustRead(name string) string {
	b, err := Files.ReadFile("templates/" + name)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// IndexTemplate returns the default homepage Liquid template.
func IndexTemplate() string { return mustRead("index.html") }

// PostTemplate returns the default post Liquid template.
func PostTemplate() string { return mustRead("post.html") }
