// Package packagejson reads and rewrites a project's package.json.
//
// Top-level fields keep their original order and content across a rewrite;
// only the sections touched by [PackageJSON.Apply] are re-encoded. Platform
// provenance is kept in a tracking object (by default "vaadin") that
// mirrors the dependency sections:
//
//	{
//	  "dependencies": {"@vaadin/button": "24.4.0"},
//	  "vaadin": {
//	    "dependencies": {"@vaadin/button": "24.4.0"}
//	  }
//	}
package packagejson

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/matzehuels/npmfence/pkg/errors"
)

// Well-known keys.
const (
	DefaultTrackingKey = "vaadin"

	keyName      = "name"
	keyOverrides = "overrides"
	keyPNPM      = "pnpm"
)

// PackageJSON is a decoded package.json.
type PackageJSON struct {
	keys        []string
	fields      map[string]json.RawMessage
	trackingKey string
}

// Option configures a PackageJSON.
type Option func(*PackageJSON)

// WithTrackingKey sets the top-level key holding platform provenance.
func WithTrackingKey(key string) Option {
	return func(p *PackageJSON) {
		if key != "" {
			p.trackingKey = key
		}
	}
}

// New returns an empty document.
func New(opts ...Option) *PackageJSON {
	p := &PackageJSON{
		fields:      make(map[string]json.RawMessage),
		trackingKey: DefaultTrackingKey,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Read loads the package.json at path.
func Read(path string, opts ...Option) (*PackageJSON, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "no package.json at %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReadFailed, err, "read %s", path)
	}
	return Parse(data, opts...)
}

// Parse decodes a package.json document. The top level must be an object.
func Parse(data []byte, opts ...Option) (*PackageJSON, error) {
	p := New(opts...)
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode package.json")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "package.json must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode package.json")
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode package.json field %q", key)
		}
		p.set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode package.json")
	}
	return p, nil
}

// Name returns the package name, or "" when absent.
func (p *PackageJSON) Name() string {
	var name string
	_ = json.Unmarshal(p.fields[keyName], &name)
	return name
}

// TrackingKey returns the key of the provenance object.
func (p *PackageJSON) TrackingKey() string { return p.trackingKey }

// Section returns a dependency section such as "dependencies". Non-string
// entries are ignored. It returns nil when the section is absent.
func (p *PackageJSON) Section(key string) map[string]string {
	return stringMap(p.fields[key])
}

// Tracking returns the versions the platform recorded for a dependency
// section, or nil when nothing was recorded.
func (p *PackageJSON) Tracking(key string) map[string]string {
	obj := rawObject(p.fields[p.trackingKey])
	return stringMap(obj[key])
}

// SetSection replaces a dependency section. An empty map removes it.
func (p *PackageJSON) SetSection(key string, deps map[string]string) error {
	if len(deps) == 0 {
		p.remove(key)
		return nil
	}
	raw, err := encode(deps)
	if err != nil {
		return err
	}
	p.set(key, raw)
	return nil
}

// setObject writes obj as the top-level field key, dropping it once empty.
func (p *PackageJSON) setObject(key string, obj map[string]json.RawMessage) error {
	if len(obj) == 0 {
		p.remove(key)
		return nil
	}
	raw, err := encode(obj)
	if err != nil {
		return err
	}
	p.set(key, raw)
	return nil
}

// setNestedObject writes obj under parent.key like setNested, keeping
// the raw values of obj.
func (p *PackageJSON) setNestedObject(parent, key string, obj map[string]json.RawMessage) error {
	outer := rawObject(p.fields[parent])
	if outer == nil {
		outer = make(map[string]json.RawMessage)
	}
	if len(obj) == 0 {
		delete(outer, key)
	} else {
		raw, err := encode(obj)
		if err != nil {
			return err
		}
		outer[key] = raw
	}
	return p.setObject(parent, outer)
}

func (p *PackageJSON) setTracking(key string, deps map[string]string) error {
	return p.setNested(p.trackingKey, key, deps)
}

// setNested writes deps under parent.key, creating parent when needed and
// dropping it once empty.
func (p *PackageJSON) setNested(parent, key string, deps map[string]string) error {
	obj := rawObject(p.fields[parent])
	if obj == nil {
		obj = make(map[string]json.RawMessage)
	}
	if len(deps) == 0 {
		delete(obj, key)
	} else {
		raw, err := encode(deps)
		if err != nil {
			return err
		}
		obj[key] = raw
	}
	return p.setObject(parent, obj)
}

// Marshal encodes the document with two-space indentation and a trailing
// newline.
func (p *PackageJSON) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		kb, err := encode(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteString(": ")
		if err := json.Indent(&buf, p.fields[k], "  ", "  "); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode field %q", k)
		}
	}
	if len(p.keys) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Write stores the document at path. It reports whether the file changed;
// an unchanged file is left untouched.
func (p *PackageJSON) Write(path string) (bool, error) {
	data, err := p.Marshal()
	if err != nil {
		return false, err
	}
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".package-*.json")
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return false, errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return false, errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return false, errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
	}
	return true, nil
}

func (p *PackageJSON) set(key string, raw json.RawMessage) {
	if _, ok := p.fields[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.fields[key] = raw
}

func (p *PackageJSON) remove(key string) {
	if _, ok := p.fields[key]; !ok {
		return
	}
	delete(p.fields, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode package.json")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

func stringMap(raw json.RawMessage) map[string]string {
	obj := rawObject(raw)
	if obj == nil {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
		}
	}
	return out
}
