package cache

// ScopedKeyer wraps a Keyer with a prefix so several projects can share one
// backend without seeing each other's pin sets.
//
// Example usage:
//
//	// Per-project keys on a shared Redis instance
//	k := NewScopedKeyer(NewDefaultKeyer(), "project:storefront:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ManifestKey generates a prefixed key for a fetched manifest.
func (k *ScopedKeyer) ManifestKey(url string) string {
	return k.prefix + k.inner.ManifestKey(url)
}

// PinKey generates a prefixed key for a computed pin set.
func (k *ScopedKeyer) PinKey(inputsHash string, opts PinKeyOpts) string {
	return k.prefix + k.inner.PinKey(inputsHash, opts)
}
