package pipeline

import (
	"cmp"
	"context"
	"encoding/json"
	stderrors "errors"
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/npmfence/pkg/cache"
	"github.com/matzehuels/npmfence/pkg/errors"
	"github.com/matzehuels/npmfence/pkg/observability"
	"github.com/matzehuels/npmfence/pkg/packagejson"
	"github.com/matzehuels/npmfence/pkg/source"
	"github.com/matzehuels/npmfence/pkg/versions"
)

// Runner executes the pipeline with caching.
//
// The Runner is stateless apart from its collaborators; multiple goroutines
// can share one Runner with different options.
type Runner struct {
	Finder source.Finder
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching and a nil keyer
// selects the DefaultKeyer.
func NewRunner(f source.Finder, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Finder: f,
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// manifest is a platform manifest read from the finder.
type manifest struct {
	name string
	data []byte
}

// Pinned computes the platform versions to enforce for the project.
func (r *Runner) Pinned(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	start := time.Now()

	manifests, err := r.readManifests(ctx, opts)
	if err != nil {
		return nil, err
	}
	pkg, err := readProject(opts)
	if err != nil {
		return nil, err
	}
	pkgData, err := pkg.Marshal()
	if err != nil {
		return nil, err
	}

	parts := [][]byte{pkgData, []byte(opts.DependenciesKey)}
	for _, m := range manifests {
		parts = append(parts, []byte(m.name), m.data)
	}
	cacheKey := r.Keyer.PinKey(cache.HashAll(parts...), opts.PinKeyOpts())

	if !opts.Refresh {
		if res, ok := r.cachedPins(ctx, cacheKey); ok {
			res.RunID = uuid.NewString()
			res.CacheHit = true
			res.Duration = time.Since(start)
			for _, w := range res.Warnings {
				opts.Logger.Warn("package.json pins an unsupported version",
					"package", w.Package, "user", w.UserVersion, "platform", w.PlatformVersion, "origin", w.Origin)
			}
			opts.Logger.Debug("pin set served from cache", "run", res.RunID, "versions", len(res.Versions))
			return res, nil
		}
	}

	res, err := computePins(ctx, manifests, pkg, opts)
	if err != nil {
		return nil, err
	}
	res.RunID = uuid.NewString()
	res.Duration = time.Since(start)

	if data, err := json.Marshal(res); err == nil {
		if err := r.Cache.Set(ctx, cacheKey, data, DefaultPinTTL); err == nil {
			observability.Cache().OnCacheSet(ctx, "pins", len(data))
		}
	}

	opts.Logger.Info("computed platform pins",
		"run", res.RunID,
		"versions", len(res.Versions),
		"exclusions", len(res.Exclusions),
		"warnings", len(res.Warnings),
		"duration", res.Duration)
	return res, nil
}

// Apply computes the pins and writes them into the project's package.json.
// The file is only written when write is set and its content changed.
func (r *Runner) Apply(ctx context.Context, opts Options, write bool) (*ApplyResult, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if write && opts.PackageJSON == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "a package.json path is required to write pins")
	}

	res, err := r.Pinned(ctx, opts)
	if err != nil {
		return nil, err
	}
	pkg, err := readProject(opts)
	if err != nil {
		return nil, err
	}

	changes, err := pkg.Apply(res.Versions, res.Exclusions, packagejson.ApplyOptions{
		DependenciesKey: opts.DependenciesKey,
		UserManaged:     res.UserManaged,
		Overrides:       opts.Overrides,
		PNPM:            opts.PNPM,
	})
	if err != nil {
		return nil, err
	}
	out := &ApplyResult{Result: res, Changes: changes}

	if write {
		written, err := pkg.Write(opts.PackageJSON)
		if err != nil {
			return nil, err
		}
		out.Written = written
		opts.Logger.Info("updated package.json",
			"path", opts.PackageJSON,
			"added", len(changes.Added),
			"updated", len(changes.Updated),
			"removed", len(changes.Removed),
			"written", written)
	}
	return out, nil
}

// Exclude removes the platform exclusions from the project's dependency
// section and returns the remaining dependencies with the removed names.
func (r *Runner) Exclude(ctx context.Context, opts Options) (map[string]string, []string, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, err
	}
	pkg, err := readProject(opts)
	if err != nil {
		return nil, nil, err
	}
	deps := pkg.Section(opts.DependenciesKey)

	filter := versions.NewExclusionFilter(r.Finder, opts.ConvertOptions())
	kept, err := filter.Exclude(ctx, deps)
	if err != nil {
		return nil, nil, err
	}
	var removed []string
	for _, name := range slices.Sorted(maps.Keys(deps)) {
		if _, ok := kept[name]; !ok {
			removed = append(removed, name)
		}
	}
	return kept, removed, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) readManifests(ctx context.Context, opts Options) ([]manifest, error) {
	if r.Finder == nil {
		return nil, nil
	}
	var out []manifest
	for _, name := range []string{versions.CoreVersionsResource, versions.VersionsResource} {
		data, err := r.Finder.Find(ctx, name)
		if stderrors.Is(err, source.ErrNotFound) {
			opts.Logger.Debug("platform manifest not found", "resource", name)
			continue
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeReadFailed, err, "read %s", name)
		}
		out = append(out, manifest{name: name, data: data})
	}
	return out, nil
}

func (r *Runner) cachedPins(ctx context.Context, key string) (*Result, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "pins")
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		observability.Cache().OnCacheMiss(ctx, "pins")
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "pins")
	return &res, true
}

// computePins converts every manifest, merges the results and reconciles
// them with the project. Later manifests override earlier ones.
func computePins(ctx context.Context, manifests []manifest, pkg *packagejson.PackageJSON, opts Options) (*Result, error) {
	merged := make(map[string]string)
	origin := make(map[string]string)
	excluded := versions.NewSet()
	var origins []string

	for _, m := range manifests {
		observability.Pins().OnConvertStart(ctx, m.name)
		start := time.Now()
		conv, err := versions.ConvertJSON(m.data, opts.ConvertOptions())
		if err != nil {
			observability.Pins().OnConvertComplete(ctx, m.name, 0, 0, time.Since(start), err)
			return nil, errors.Wrap(errors.GetCode(err), err, "convert %s", m.name)
		}
		observability.Pins().OnConvertComplete(ctx, m.name, len(conv.Versions), len(conv.Exclusions), time.Since(start), nil)
		opts.Logger.Debug("converted platform manifest",
			"resource", m.name, "versions", len(conv.Versions), "exclusions", len(conv.Exclusions))

		for name, v := range conv.Versions {
			merged[name] = v
			origin[name] = m.name
		}
		excluded.Union(conv.Exclusions)
		origins = append(origins, m.name)
	}
	for name := range excluded {
		delete(merged, name)
	}

	filter := versions.NewFilter(pkg, opts.DependenciesKey, versions.WithLogger(opts.Logger))
	res := &Result{
		Versions:    make(map[string]string, len(merged)),
		Exclusions:  append([]string{}, excluded.Sorted()...),
		UserManaged: filter.UserManaged(),
		Origins:     origins,
	}
	for _, o := range origins {
		subset := make(map[string]string)
		for name, v := range merged {
			if origin[name] == o {
				subset[name] = v
			}
		}
		pinned, warnings := filter.GetFilteredVersions(subset, o)
		maps.Copy(res.Versions, pinned)
		for _, w := range warnings {
			observability.Pins().OnStaleVersion(ctx, w.Package, w.UserVersion, w.PlatformVersion)
		}
		res.Warnings = append(res.Warnings, warnings...)
	}
	slices.SortFunc(res.Warnings, func(a, b versions.Warning) int {
		return cmp.Compare(a.Package, b.Package)
	})
	return res, nil
}

// readProject loads the project package.json. A missing file is an empty
// project.
func readProject(opts Options) (*packagejson.PackageJSON, error) {
	if opts.PackageJSON == "" {
		return packagejson.New(packagejson.WithTrackingKey(opts.TrackingKey)), nil
	}
	pkg, err := packagejson.Read(opts.PackageJSON, packagejson.WithTrackingKey(opts.TrackingKey))
	if errors.Is(err, errors.ErrCodeFileNotFound) {
		opts.Logger.Debug("no package.json yet", "path", opts.PackageJSON)
		return packagejson.New(packagejson.WithTrackingKey(opts.TrackingKey)), nil
	}
	return pkg, err
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
