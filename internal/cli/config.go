package cli

import (
	stderrors "errors"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/npmfence/pkg/errors"
	"github.com/matzehuels/npmfence/pkg/packagejson"
	"github.com/matzehuels/npmfence/pkg/source"
)

// configFile is looked up in the working directory when --config is unset.
const configFile = "npmfence.toml"

// Cache backends.
const (
	backendFile  = "file"
	backendRedis = "redis"
	backendNone  = "none"
)

// Config is the content of npmfence.toml.
//
//	[platform]
//	react = true
//	tracking_key = "vaadin"
//
//	[sources]
//	dirs = ["src/main/resources/META-INF/resources"]
//	urls = ["https://cdn.example.com/platform/24.4"]
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//	ttl = "12h"
type Config struct {
	Platform PlatformConfig `toml:"platform"`
	Sources  SourcesConfig  `toml:"sources"`
	Cache    CacheConfig    `toml:"cache"`
}

// PlatformConfig selects the mode and the reserved package names.
type PlatformConfig struct {
	React                bool   `toml:"react"`
	ExcludeWebComponents bool   `toml:"exclude_web_components"`
	UmbrellaPackage      string `toml:"umbrella_package"`
	RouterPackage        string `toml:"router_package"`
	TrackingKey          string `toml:"tracking_key"`
	Overrides            bool   `toml:"overrides"`
	PNPM                 bool   `toml:"pnpm"`
}

// SourcesConfig lists where platform manifests are looked up, in order.
type SourcesConfig struct {
	Dirs    []string          `toml:"dirs"`
	URLs    []string          `toml:"urls"`
	Headers map[string]string `toml:"headers"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Scope         string `toml:"scope"` // Key prefix isolating one project
	TTL           string `toml:"ttl"`   // Manifest TTL, e.g. "24h"
}

// loadConfig reads the config at path. An empty path means npmfence.toml in
// the working directory, which may be absent.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configFile
	}

	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case stderrors.Is(err, fs.ErrNotExist) && !explicit:
		cfg = Config{}
	case stderrors.Is(err, fs.ErrNotExist):
		return Config{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "config %s", path)
	case err != nil:
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) withDefaults() {
	if c.Platform.TrackingKey == "" {
		c.Platform.TrackingKey = packagejson.DefaultTrackingKey
	}
	if len(c.Sources.Dirs) == 0 && len(c.Sources.URLs) == 0 {
		c.Sources.Dirs = []string{"."}
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = backendFile
	}
}

func (c *Config) validate() error {
	if !slices.Contains([]string{backendFile, backendRedis, backendNone}, c.Cache.Backend) {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.backend must be file, redis or none, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == backendRedis && c.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
	}
	if _, err := c.Cache.manifestTTL(); err != nil {
		return err
	}
	for _, u := range c.Sources.URLs {
		if err := errors.ValidateURL(u); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "sources.urls")
		}
	}
	for _, name := range []string{c.Platform.UmbrellaPackage, c.Platform.RouterPackage} {
		if name == "" {
			continue
		}
		if err := errors.ValidateNpmPackageName(name); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "platform")
		}
	}
	return nil
}

func (c CacheConfig) manifestTTL() (time.Duration, error) {
	if c.TTL == "" {
		return source.DefaultManifestTTL, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "cache.ttl: invalid duration %q", c.TTL)
	}
	return d, nil
}
