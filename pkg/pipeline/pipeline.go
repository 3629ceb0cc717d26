// Package pipeline computes the npm versions a project must pin and writes
// them into its package.json.
//
// The pipeline is used by every CLI command so that manifest lookup,
// caching and reconciliation behave the same everywhere.
//
// # Stages
//
//  1. Read: look up the core and the general platform manifest through a
//     [source.Finder]. Either may be missing.
//  2. Convert: flatten each manifest for the active mode. Versions from the
//     general manifest override the core ones; exclusions are unioned and
//     pruned from the merged map.
//  3. Filter: reconcile the platform versions with the project's
//     package.json, dropping versions that cannot be enforced and warning
//     about stale user pins.
//  4. Apply (optional): write the pins into package.json.
//
// # Usage
//
//	runner := pipeline.NewRunner(finder, c, nil, logger)
//	res, err := runner.Pinned(ctx, pipeline.Options{
//	    PackageJSON:  "package.json",
//	    ReactEnabled: true,
//	})
//	for _, w := range res.Warnings {
//	    fmt.Println(w)
//	}
//
// [source.Finder]: github.com/matzehuels/npmfence/pkg/source.Finder
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmfence/pkg/cache"
	"github.com/matzehuels/npmfence/pkg/errors"
	"github.com/matzehuels/npmfence/pkg/packagejson"
	"github.com/matzehuels/npmfence/pkg/versions"
)

// DefaultPinTTL is how long a computed pin set stays cached.
const DefaultPinTTL = time.Hour

// Options configures a pipeline run.
type Options struct {
	PackageJSON          string `json:"package_json,omitempty"`     // Path of the project package.json; empty means none
	DependenciesKey      string `json:"dependencies_key,omitempty"` // Section to reconcile (default: "dependencies")
	TrackingKey          string `json:"tracking_key,omitempty"`     // Provenance object (default: "vaadin")
	ReactEnabled         bool   `json:"react,omitempty"`
	ExcludeWebComponents bool   `json:"exclude_web_components,omitempty"`
	UmbrellaPackage      string `json:"umbrella_package,omitempty"`
	RouterPackage        string `json:"router_package,omitempty"`
	Refresh              bool   `json:"refresh,omitempty"` // Recompute even when a cached pin set exists

	// Apply options
	Overrides bool `json:"overrides,omitempty"` // Mirror pins into npm "overrides"
	PNPM      bool `json:"pnpm,omitempty"`      // Mirror pins into "pnpm.overrides"

	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// Result is the outcome of Runner.Pinned.
type Result struct {
	RunID       string             `json:"run_id"`
	Versions    map[string]string  `json:"versions"`
	Exclusions  []string           `json:"exclusions"`
	Warnings    []versions.Warning `json:"warnings,omitempty"`
	UserManaged map[string]string  `json:"user_managed,omitempty"`
	Origins     []string           `json:"origins,omitempty"` // Manifests that were found
	CacheHit    bool               `json:"cache_hit"`
	Duration    time.Duration      `json:"duration"`
}

// ApplyResult is the outcome of Runner.Apply.
type ApplyResult struct {
	*Result
	Changes packagejson.Changes
	Written bool
}

// ValidateAndSetDefaults checks the options and fills in defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.DependenciesKey == "" {
		o.DependenciesKey = versions.DependenciesKey
	}
	if o.DependenciesKey != versions.DependenciesKey && o.DependenciesKey != versions.DevDependenciesKey {
		return errors.New(errors.ErrCodeInvalidInput, "dependencies key must be %q or %q, got %q",
			versions.DependenciesKey, versions.DevDependenciesKey, o.DependenciesKey)
	}
	if o.TrackingKey == "" {
		o.TrackingKey = packagejson.DefaultTrackingKey
	}
	if o.UmbrellaPackage == "" {
		o.UmbrellaPackage = versions.DefaultUmbrellaPackage
	}
	if o.RouterPackage == "" {
		o.RouterPackage = versions.DefaultRouterPackage
	}
	for _, name := range []string{o.UmbrellaPackage, o.RouterPackage} {
		if err := errors.ValidateNpmPackageName(name); err != nil {
			return err
		}
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ConvertOptions returns the conversion settings.
func (o *Options) ConvertOptions() versions.Options {
	return versions.Options{
		ReactEnabled:         o.ReactEnabled,
		ExcludeWebComponents: o.ExcludeWebComponents,
		UmbrellaPackage:      o.UmbrellaPackage,
		RouterPackage:        o.RouterPackage,
	}
}

// PinKeyOpts returns the cache key options of a pin computation.
func (o *Options) PinKeyOpts() cache.PinKeyOpts {
	return cache.PinKeyOpts{
		ReactEnabled:         o.ReactEnabled,
		ExcludeWebComponents: o.ExcludeWebComponents,
		UmbrellaPackage:      o.UmbrellaPackage,
		RouterPackage:        o.RouterPackage,
		TrackingKey:          o.TrackingKey,
	}
}
