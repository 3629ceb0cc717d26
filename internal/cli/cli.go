// Package cli implements the npmfence command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmfence/pkg/buildinfo"
	"github.com/matzehuels/npmfence/pkg/cache"
	"github.com/matzehuels/npmfence/pkg/errors"
	"github.com/matzehuels/npmfence/pkg/pipeline"
	"github.com/matzehuels/npmfence/pkg/source"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "npmfence"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger     *log.Logger
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "npmfence pins npm dependencies to a platform versions manifest",
		Long: `npmfence reads a platform versions manifest, selects the npm packages that
apply to the active rendering mode, and reconciles them with the versions
pinned in a project's package.json.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./"+configFile+")")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.pinCommand())
	root.AddCommand(c.excludeCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// runnerFlags are the flags shared by commands that build a runner.
type runnerFlags struct {
	noCache bool
	refresh bool
}

func (f *runnerFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "ignore cached manifests and pin sets")
}

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner(ctx context.Context, cfg Config, flags runnerFlags) (*pipeline.Runner, error) {
	store, err := newCache(ctx, cfg.Cache, flags.noCache)
	if err != nil {
		return nil, err
	}
	keyer := newKeyer(cfg.Cache)
	finder, err := newFinder(cfg, store, keyer, flags.refresh)
	if err != nil {
		store.Close()
		return nil, err
	}
	return pipeline.NewRunner(finder, store, keyer, c.Logger), nil
}

func newCache(ctx context.Context, cfg CacheConfig, noCache bool) (cache.Cache, error) {
	if noCache || cfg.Backend == backendNone {
		return cache.NewNullCache(), nil
	}
	if cfg.Backend == backendRedis {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect cache")
		}
		return rc, nil
	}
	dir := cfg.Dir
	if dir == "" {
		d, err := cacheDir()
		if err != nil {
			return cache.NewNullCache(), nil
		}
		dir = d
	}
	return cache.NewFileCache(dir)
}

func newKeyer(cfg CacheConfig) cache.Keyer {
	if cfg.Scope != "" {
		return cache.NewScopedKeyer(cache.NewDefaultKeyer(), cfg.Scope+":")
	}
	return cache.NewDefaultKeyer()
}

// newFinder chains the configured directories before the remote sources.
func newFinder(cfg Config, store cache.Cache, keyer cache.Keyer, refresh bool) (source.Finder, error) {
	ttl, err := cfg.Cache.manifestTTL()
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"User-Agent": buildinfo.UserAgent()}
	for k, v := range cfg.Sources.Headers {
		headers[k] = v
	}

	var chain source.Chain
	for _, dir := range cfg.Sources.Dirs {
		chain = append(chain, source.NewDirFinder(os.DirFS(dir)))
	}
	for _, u := range cfg.Sources.URLs {
		chain = append(chain, source.NewHTTPFinder(u, source.HTTPOptions{
			Cache:   store,
			Keyer:   keyer,
			TTL:     ttl,
			Headers: headers,
			Refresh: refresh,
		}))
	}
	return chain, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/npmfence/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
