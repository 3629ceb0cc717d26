// Package cache stores fetched platform manifests and computed pin sets.
//
// # Backends
//
//   - [FileCache]: JSON entry files under a directory (CLI default)
//   - [RedisCache]: shared cache for build agents, via go-redis
//   - [NullCache]: caching disabled
//
// # Keys
//
// Keys are produced by a [Keyer] so every backend agrees on the layout:
//
//	k := cache.NewDefaultKeyer()
//	k.ManifestKey("https://cdn.example.com/platform/vaadin-versions.json")
//	k.PinKey(cache.Hash(inputs), cache.PinKeyOpts{ReactEnabled: true})
//
// Wrap a keyer with [NewScopedKeyer] to isolate projects that share one
// Redis instance.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry TTL.
type Cache interface {
	// Get returns the stored value and whether it was found.
	// Expired entries are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Keyer builds cache keys.
type Keyer interface {
	// ManifestKey is the key of a manifest fetched from url.
	ManifestKey(url string) string
	// PinKey is the key of a pin set computed from inputs hashed to inputsHash.
	PinKey(inputsHash string, opts PinKeyOpts) string
}

// PinKeyOpts are the options that change the outcome of a pin computation.
type PinKeyOpts struct {
	ReactEnabled         bool   `json:"react"`
	ExcludeWebComponents bool   `json:"exclude_web_components"`
	UmbrellaPackage      string `json:"umbrella_package,omitempty"`
	RouterPackage        string `json:"router_package,omitempty"`
	TrackingKey          string `json:"tracking_key,omitempty"`
}

// DefaultKeyer is the standard key layout.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// ManifestKey returns "manifest:<url>".
func (DefaultKeyer) ManifestKey(url string) string {
	return "manifest:" + url
}

// PinKey returns "pins:<sha256(inputsHash, opts)>".
func (DefaultKeyer) PinKey(inputsHash string, opts PinKeyOpts) string {
	return hashKey("pins", inputsHash, opts)
}

var _ Keyer = DefaultKeyer{}
