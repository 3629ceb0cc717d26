package versions

import (
	"context"
	stderrors "errors"
	"maps"

	"github.com/matzehuels/npmfence/pkg/errors"
	"github.com/matzehuels/npmfence/pkg/source"
)

// Resource names of the platform manifests.
const (
	CoreVersionsResource = "vaadin-core-versions.json"
	VersionsResource     = "vaadin-versions.json"
)

// ExclusionFilter removes the exclusions declared by the core and the
// general platform manifests from dependency maps.
type ExclusionFilter struct {
	Finder    source.Finder
	Options   Options
	Resources []string // Manifests to read (default: core, then general)
}

// NewExclusionFilter creates a filter that looks manifests up through f.
func NewExclusionFilter(f source.Finder, opts Options) *ExclusionFilter {
	return &ExclusionFilter{Finder: f, Options: opts}
}

// Exclusions returns the union of the exclusions of every manifest that can
// be found. Missing manifests contribute nothing; malformed ones fail.
func (f *ExclusionFilter) Exclusions(ctx context.Context) (Set, error) {
	all := make(Set)
	if f.Finder == nil {
		return all, nil
	}
	for _, name := range f.resources() {
		data, err := f.Finder.Find(ctx, name)
		if stderrors.Is(err, source.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeReadFailed, err, "read %s", name)
		}
		res, err := ConvertJSON(data, f.Options)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "convert %s", name)
		}
		all.Union(res.Exclusions)
	}
	return all, nil
}

// Exclude returns a copy of deps without the excluded packages.
func (f *ExclusionFilter) Exclude(ctx context.Context, deps map[string]string) (map[string]string, error) {
	excluded, err := f.Exclusions(ctx)
	if err != nil {
		return nil, err
	}
	out := maps.Clone(deps)
	if out == nil {
		out = make(map[string]string)
	}
	for name := range excluded {
		delete(out, name)
	}
	return out, nil
}

func (f *ExclusionFilter) resources() []string {
	if len(f.Resources) > 0 {
		return f.Resources
	}
	return []string{CoreVersionsResource, VersionsResource}
}
