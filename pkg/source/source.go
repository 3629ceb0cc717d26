// Package source locates platform manifests by resource name.
//
// A [Finder] plays the role of a classpath: it returns the bytes of a named
// resource such as "vaadin-versions.json", or [ErrNotFound] when no such
// resource exists. Finders are composed with [Chain]:
//
//	f := source.Chain{
//	    source.NewDirFinder(os.DirFS("src/main/resources")),
//	    source.NewHTTPFinder("https://cdn.example.com/platform/24.4", source.HTTPOptions{}),
//	}
//	data, err := f.Find(ctx, "vaadin-versions.json")
//	if errors.Is(err, source.ErrNotFound) {
//	    // nothing to apply
//	}
package source

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Finder looks up named resources.
type Finder interface {
	// Find returns the content of the named resource. It returns an error
	// wrapping ErrNotFound when the resource does not exist.
	Find(ctx context.Context, name string) ([]byte, error)
}

// FinderFunc adapts a function to the Finder interface.
type FinderFunc func(ctx context.Context, name string) ([]byte, error)

// Find calls f.
func (f FinderFunc) Find(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

// Chain tries each finder in order and returns the first hit. A finder that
// fails with anything other than ErrNotFound stops the search.
type Chain []Finder

// Find implements Finder.
func (c Chain) Find(ctx context.Context, name string) ([]byte, error) {
	for _, f := range c {
		if f == nil {
			continue
		}
		data, err := f.Find(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, ErrNotFound
}
