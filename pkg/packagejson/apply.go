package packagejson

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/npmfence/pkg/semver"
)

// ApplyOptions configures Apply.
type ApplyOptions struct {
	DependenciesKey string            // Section to update (default: "dependencies")
	UserManaged     map[string]string // Packages whose pins are left alone
	Overrides       bool              // Mirror pins into npm "overrides"
	PNPM            bool              // Mirror pins into "pnpm.overrides"
}

// Changes lists the packages Apply touched, each in sorted order.
type Changes struct {
	Added   []string
	Updated []string
	Removed []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Apply writes the platform pins into the document.
//
// Every pinned package that the user does not manage is written into the
// dependency section and recorded in the tracking object. Packages the
// platform recorded earlier but no longer pins are removed when the user
// left them unchanged. Excluded packages are removed from the section under
// the same rule, and always from the tracking object.
func (p *PackageJSON) Apply(pinned map[string]string, excluded []string, opts ApplyOptions) (Changes, error) {
	key := opts.DependenciesKey
	if key == "" {
		key = "dependencies"
	}

	deps := p.Section(key)
	if deps == nil {
		deps = make(map[string]string)
	}
	before := p.Tracking(key)
	tracked := make(map[string]string, len(pinned))
	var ch Changes

	for _, name := range slices.Sorted(maps.Keys(pinned)) {
		version := pinned[name]
		tracked[name] = version
		if _, ok := opts.UserManaged[name]; ok {
			continue
		}
		current, ok := deps[name]
		switch {
		case !ok:
			ch.Added = append(ch.Added, name)
		case current != version:
			ch.Updated = append(ch.Updated, name)
		default:
			continue
		}
		deps[name] = version
	}

	dropped := make(map[string]bool)
	for _, name := range slices.Sorted(maps.Keys(before)) {
		if _, ok := pinned[name]; ok {
			continue
		}
		dropped[name] = true
	}
	for _, name := range excluded {
		delete(tracked, name)
		if _, ok := before[name]; ok {
			dropped[name] = true
		}
	}
	for _, name := range slices.Sorted(maps.Keys(dropped)) {
		current, ok := deps[name]
		if !ok {
			continue
		}
		if !semver.Equal(current, before[name]) {
			continue
		}
		delete(deps, name)
		ch.Removed = append(ch.Removed, name)
	}

	if err := p.SetSection(key, deps); err != nil {
		return Changes{}, err
	}
	if err := p.setTracking(key, tracked); err != nil {
		return Changes{}, err
	}
	if opts.Overrides {
		if err := p.updateOverrides(keyOverrides, "", deps, tracked, opts.UserManaged); err != nil {
			return Changes{}, err
		}
	}
	if opts.PNPM {
		if err := p.updateOverrides(keyPNPM, keyOverrides, deps, tracked, opts.UserManaged); err != nil {
			return Changes{}, err
		}
	}
	return ch, nil
}

// updateOverrides points the override of every platform-managed dependency
// at the dependency itself ("$name") and drops references that no longer
// resolve. Overrides written by the user, including nested override
// objects, are kept as they are.
func (p *PackageJSON) updateOverrides(parent, key string, deps, tracked, userManaged map[string]string) error {
	var current map[string]json.RawMessage
	if key == "" {
		current = rawObject(p.fields[parent])
	} else {
		current = rawObject(rawObject(p.fields[parent])[key])
	}
	out := make(map[string]json.RawMessage, len(current))
	for name, raw := range current {
		if isSelfRef(name, raw) {
			if _, present := deps[name]; !present {
				continue
			}
		}
		out[name] = raw
	}
	for name := range tracked {
		if _, ok := userManaged[name]; ok {
			continue
		}
		if _, ok := deps[name]; !ok {
			continue
		}
		if raw, ok := out[name]; ok && !isString(raw) {
			continue
		}
		ref, err := encode("$" + name)
		if err != nil {
			return err
		}
		out[name] = ref
	}

	if key == "" {
		return p.setObject(parent, out)
	}
	return p.setNestedObject(parent, key, out)
}

// isSelfRef reports whether raw is the string "$name".
func isSelfRef(name string, raw json.RawMessage) bool {
	var v string
	if json.Unmarshal(raw, &v) != nil {
		return false
	}
	ref, ok := strings.CutPrefix(v, "$")
	return ok && ref == name
}

func isString(raw json.RawMessage) bool {
	var v string
	return json.Unmarshal(raw, &v) == nil
}
