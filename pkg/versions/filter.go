package versions

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/npmfence/pkg/semver"
)

// Dependency sections of a package.json.
const (
	DependenciesKey    = "dependencies"
	DevDependenciesKey = "devDependencies"
)

// Manifest is the view of a project package.json needed by [Filter].
type Manifest interface {
	// Section returns the named dependency section ("dependencies",
	// "devDependencies"), or nil when it is absent.
	Section(key string) map[string]string
	// Tracking returns the versions the platform last wrote into the given
	// section, or nil when nothing was recorded.
	Tracking(key string) map[string]string
}

// Warning reports a user pin that is older than the platform version.
type Warning struct {
	Package         string `json:"package"`
	UserVersion     string `json:"user_version"`
	PlatformVersion string `json:"platform_version"`
	Origin          string `json:"origin"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: version %s pinned in package.json is older than %s required by %s",
		w.Package, w.UserVersion, w.PlatformVersion, w.Origin)
}

// Filter reconciles platform versions with one dependency section of a
// project package.json.
type Filter struct {
	dependenciesKey string
	userManaged     map[string]string
	logger          *log.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithLogger sets the logger that receives stale-pin warnings.
func WithLogger(l *log.Logger) FilterOption {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFilter records which packages of the dependenciesKey section of m the
// user manages. A package is user managed when the platform never recorded
// it, or recorded a different version than the one now in the section.
func NewFilter(m Manifest, dependenciesKey string, opts ...FilterOption) *Filter {
	f := &Filter{
		dependenciesKey: dependenciesKey,
		userManaged:     make(map[string]string),
		logger:          log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, o := range opts {
		o(f)
	}
	if m == nil {
		return f
	}

	tracked := m.Tracking(dependenciesKey)
	for name, version := range m.Section(dependenciesKey) {
		if isUserChanged(name, version, tracked) {
			f.userManaged[name] = version
		}
	}
	return f
}

func isUserChanged(name, version string, tracked map[string]string) bool {
	platform, ok := tracked[name]
	if !ok {
		return true
	}
	return !semver.Equal(platform, version)
}

// DependenciesKey returns the package.json section this filter reads.
func (f *Filter) DependenciesKey() string { return f.dependenciesKey }

// UserManaged returns a copy of the user-managed packages and their pins.
func (f *Filter) UserManaged() map[string]string {
	return maps.Clone(f.userManaged)
}

// GetFilteredVersions returns the platform versions that can be enforced.
//
// Versions that are not semantic versions, snapshot builds and local paths
// are dropped. Everything else is returned unchanged, including packages
// the user manages; a user pin older than the platform version is reported
// as a Warning and logged. origin names the manifest the versions came from.
func (f *Filter) GetFilteredVersions(platform map[string]string, origin string) (map[string]string, []Warning) {
	out := make(map[string]string, len(platform))
	var warnings []Warning

	for _, name := range slices.Sorted(maps.Keys(platform)) {
		version := platform[name]
		if !enforceable(version) {
			f.logger.Debug("skipping platform version", "package", name, "version", version, "origin", origin)
			continue
		}

		if user, ok := f.userManaged[name]; ok && semver.Older(user, version) {
			w := Warning{Package: name, UserVersion: user, PlatformVersion: version, Origin: origin}
			f.logger.Warn("package.json pins an unsupported version",
				"package", name, "user", user, "platform", version, "origin", origin)
			warnings = append(warnings, w)
		}
		out[name] = version
	}
	return out, warnings
}

func enforceable(version string) bool {
	if semver.IsLocal(version) || semver.IsSnapshot(version) {
		return false
	}
	_, err := semver.Parse(version)
	return err == nil
}
