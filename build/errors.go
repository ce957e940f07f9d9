package build

import (
	"errors"
	"fmt"

	"github.com/eringen/sabitcms/content"
)

// Error is returned by every Builder operation that fails.
type Error struct {
	Kind    ErrorKind
	Slug    string
	Message string
	Err     error

	// Template is set when a NotFound error refers to a missing template
	// rather than missing content.
	Template content.TemplateType
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorKind string

const (
	// RenderErrorKind covers template syntax errors and render-time failures.
	RenderErrorKind ErrorKind = "render_error"
	// NotFoundErrorKind covers a missing template or post.
	NotFoundErrorKind ErrorKind = "not_found"
	// FileSystemErrorKind covers cache directory creation and write failures.
	FileSystemErrorKind ErrorKind = "filesystem_error"
)

func NewRenderError(slug string, err error) *Error {
	return &Error{
		Kind:    RenderErrorKind,
		Slug:    slug,
		Message: fmt.Sprintf("render %s", slug),
		Err:     err,
	}
}

func NewNotFoundError(slug, what string) *Error {
	return &Error{
		Kind:    NotFoundErrorKind,
		Slug:    slug,
		Message: what,
	}
}

func NewFileSystemError(slug string, err error) *Error {
	return &Error{
		Kind:    FileSystemErrorKind,
		Slug:    slug,
		Message: fmt.Sprintf("write artifact for %s", slug),
		Err:     err,
	}
}

func NewMissingTemplateError(slug string, t content.TemplateType) *Error {
	return &Error{
		Kind:     NotFoundErrorKind,
		Slug:     slug,
		Message:  fmt.Sprintf("%s template missing", t),
		Template: t,
	}
}

// IsKind reports whether err is a build *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}
