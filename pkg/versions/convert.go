package versions

import (
	"maps"
	"slices"

	"github.com/matzehuels/npmfence/pkg/errors"
)

// Reserved package names.
const (
	// DefaultUmbrellaPackage is the meta-package that only aggregates other
	// dependencies and never resolves to a version of its own.
	DefaultUmbrellaPackage = "@vaadin/vaadin-core"

	// DefaultRouterPackage is the client-side router. React tooling ships its
	// own routing, so it is excluded in React mode.
	DefaultRouterPackage = "@vaadin/router"
)

// Options configures a conversion.
type Options struct {
	ReactEnabled         bool   // Resolve for the React rendering strategy
	ExcludeWebComponents bool   // Drop every mode-specific dependency
	UmbrellaPackage      string // Skipped package (default: DefaultUmbrellaPackage)
	RouterPackage        string // Excluded in React mode (default: DefaultRouterPackage)
}

// WithDefaults returns a copy of Options with empty reserved names replaced
// by their defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.UmbrellaPackage == "" {
		opts.UmbrellaPackage = DefaultUmbrellaPackage
	}
	if opts.RouterPackage == "" {
		opts.RouterPackage = DefaultRouterPackage
	}
	return opts
}

// Set is a set of npm package names.
type Set map[string]struct{}

// NewSet returns a set holding names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	s.AddAll(names)
	return s
}

// Add inserts name.
func (s Set) Add(name string) { s[name] = struct{}{} }

// AddAll inserts every name.
func (s Set) AddAll(names []string) {
	for _, n := range names {
		s.Add(n)
	}
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Union inserts every member of other.
func (s Set) Union(other Set) {
	for n := range other {
		s.Add(n)
	}
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Result is the outcome of a conversion.
type Result struct {
	Versions   map[string]string // npm name → enforced version
	Exclusions Set               // npm names that must not be enforced
}

func newResult() *Result {
	return &Result{
		Versions:   make(map[string]string),
		Exclusions: make(Set),
	}
}

// prune removes every excluded package from Versions.
func (r *Result) prune() {
	for name := range r.Exclusions {
		delete(r.Versions, name)
	}
}

// ConvertJSON parses data and converts it. See [Convert].
func ConvertJSON(data []byte, opts Options) (*Result, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Convert(root, opts)
}

// Convert flattens a platform manifest into the versions enforced for the
// mode described by opts and prunes the collected exclusions.
//
// Children are visited in sorted key order, so when the same npm name is
// declared twice the entry under the lexically later key path wins.
func Convert(root *Group, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	res := newResult()
	if root != nil {
		if err := collect(root, opts, res); err != nil {
			return nil, err
		}
	}
	res.prune()
	return res, nil
}

func collect(g *Group, opts Options, res *Result) error {
	for _, key := range g.Keys() {
		switch n := g.Children[key].(type) {
		case *Leaf:
			if err := addDependency(n.Descriptor, opts, res); err != nil {
				return err
			}
		case *Group:
			if err := collect(n, opts, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func addDependency(d Descriptor, opts Options, res *Result) error {
	if d.NpmName == opts.UmbrellaPackage {
		return nil
	}
	if opts.ReactEnabled && d.NpmName == opts.RouterPackage {
		res.Exclusions.Add(d.NpmName)
		return nil
	}

	if !IncludedByMode(d.Mode, opts.ReactEnabled, opts.ExcludeWebComponents) {
		// Without web components, skipped branches still suppress what
		// they list, and React-only packages suppress themselves.
		if opts.ExcludeWebComponents {
			res.Exclusions.AddAll(d.Exclusions)
			if d.Mode == ModeReact {
				res.Exclusions.Add(d.NpmName)
			}
		}
		return nil
	}

	version, ok := d.Version()
	if !ok {
		return errors.New(errors.ErrCodeInvalidManifest,
			"platform versions manifest contains unexpected data: dependency %q has neither %q nor %q",
			d.NpmName, keyNpmVersion, keyJSVersion)
	}
	res.Versions[d.NpmName] = version
	res.Exclusions.AddAll(d.Exclusions)
	return nil
}
