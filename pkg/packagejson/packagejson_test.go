package packagejson

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/npmfence/pkg/errors"
)

const sample = `{
  "name": "my-app",
  "private": true,
  "scripts": {
    "build": "vite build"
  },
  "dependencies": {
    "@vaadin/button": "24.3.0",
    "lit": "3.1.0",
    "left-pad": "1.3.0",
    "old-thing": "0.1.0"
  },
  "devDependencies": {
    "vite": "5.0.0"
  },
  "vaadin": {
    "dependencies": {
      "@vaadin/button": "24.3.0",
      "lit": "3.0.0",
      "old-thing": "0.1.0"
    }
  }
}
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Name() != "my-app" {
		t.Errorf("Name = %q", p.Name())
	}
	if got := p.Section("devDependencies"); !maps.Equal(got, map[string]string{"vite": "5.0.0"}) {
		t.Errorf("devDependencies = %v", got)
	}
	if got := p.Tracking("dependencies")["lit"]; got != "3.0.0" {
		t.Errorf("tracked lit = %q", got)
	}
	if p.Section("peerDependencies") != nil {
		t.Error("missing section should be nil")
	}
	if p.Tracking("devDependencies") != nil {
		t.Error("missing tracking should be nil")
	}
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{``, `[]`, `"x"`, `{"a": }`, `{"a": 1`} {
		_, err := Parse([]byte(input))
		if !errors.Is(err, errors.ErrCodeInvalidManifest) {
			t.Errorf("Parse(%q) error = %v, want INVALID_MANIFEST", input, err)
		}
	}
}

func TestTrackingKey(t *testing.T) {
	p, err := Parse([]byte(`{"hilla": {"dependencies": {"a": "1.0.0"}}}`), WithTrackingKey("hilla"))
	if err != nil {
		t.Fatal(err)
	}
	if p.TrackingKey() != "hilla" {
		t.Errorf("TrackingKey = %q", p.TrackingKey())
	}
	if p.Tracking("dependencies")["a"] != "1.0.0" {
		t.Errorf("Tracking = %v", p.Tracking("dependencies"))
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	p, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	// Key order of the top level is preserved.
	order := []string{`"name"`, `"private"`, `"scripts"`, `"dependencies"`, `"devDependencies"`, `"vaadin"`}
	last := -1
	for _, k := range order {
		i := strings.Index(string(out), k)
		if i < last {
			t.Errorf("key %s out of order in:\n%s", k, out)
		}
		last = i
	}
	if !strings.HasSuffix(string(out), "}\n") {
		t.Error("output should end with a newline")
	}

	again, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if !maps.Equal(again.Section("dependencies"), p.Section("dependencies")) {
		t.Error("dependencies changed across round trip")
	}
}

func TestMarshalEmpty(t *testing.T) {
	out, err := New().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "{}\n" {
		t.Errorf("Marshal = %q", out)
	}
}

func TestApply(t *testing.T) {
	p, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	pinned := map[string]string{
		"@vaadin/button": "24.4.0",
		"@vaadin/grid":   "24.4.0",
		"lit":            "3.1.2",
	}
	userManaged := map[string]string{"lit": "3.1.0", "left-pad": "1.3.0"}

	ch, err := p.Apply(pinned, []string{"left-pad"}, ApplyOptions{UserManaged: userManaged})
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(ch.Added, []string{"@vaadin/grid"}) {
		t.Errorf("Added = %v", ch.Added)
	}
	if !slices.Equal(ch.Updated, []string{"@vaadin/button"}) {
		t.Errorf("Updated = %v", ch.Updated)
	}
	// old-thing is no longer pinned and untouched by the user; left-pad was
	// never written by the platform and stays.
	if !slices.Equal(ch.Removed, []string{"old-thing"}) {
		t.Errorf("Removed = %v", ch.Removed)
	}

	wantDeps := map[string]string{
		"@vaadin/button": "24.4.0",
		"@vaadin/grid":   "24.4.0",
		"lit":            "3.1.0",
		"left-pad":       "1.3.0",
	}
	if got := p.Section("dependencies"); !maps.Equal(got, wantDeps) {
		t.Errorf("dependencies = %v, want %v", got, wantDeps)
	}
	if got := p.Tracking("dependencies"); !maps.Equal(got, pinned) {
		t.Errorf("tracking = %v, want %v", got, pinned)
	}
	if p.Section("overrides") != nil {
		t.Error("overrides written without being requested")
	}
}

func TestApplyIsStable(t *testing.T) {
	p, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	pinned := map[string]string{"@vaadin/button": "24.4.0"}
	if _, err := p.Apply(pinned, nil, ApplyOptions{}); err != nil {
		t.Fatal(err)
	}
	ch, err := p.Apply(pinned, nil, ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !ch.Empty() {
		t.Errorf("second Apply changed %+v", ch)
	}
}

func TestApplyExcludedPlatformPackage(t *testing.T) {
	p, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	ch, err := p.Apply(map[string]string{"lit": "3.0.0"}, []string{"@vaadin/button"}, ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Section("dependencies")["@vaadin/button"]; ok {
		t.Error("excluded platform package still present")
	}
	if _, ok := p.Tracking("dependencies")["@vaadin/button"]; ok {
		t.Error("excluded package still tracked")
	}
	if !slices.Contains(ch.Removed, "@vaadin/button") {
		t.Errorf("Removed = %v", ch.Removed)
	}
}

func TestApplyOverrides(t *testing.T) {
	p, err := Parse([]byte(`{
  "dependencies": {"gone": "1.0.0"},
  "overrides": {"gone": "$gone", "custom": "2.0.0"},
  "vaadin": {"dependencies": {"gone": "1.0.0"}}
}`))
	if err != nil {
		t.Fatal(err)
	}

	pinned := map[string]string{"@vaadin/button": "24.4.0", "lit": "3.1.0"}
	_, err = p.Apply(pinned, nil, ApplyOptions{
		UserManaged: map[string]string{"lit": "3.0.0"},
		Overrides:   true,
		PNPM:        true,
	})
	if err != nil {
		t.Fatal(err)
	}

	wantNpm := map[string]string{"@vaadin/button": "$@vaadin/button", "custom": "2.0.0"}
	if got := p.Section("overrides"); !maps.Equal(got, wantNpm) {
		t.Errorf("overrides = %v, want %v", got, wantNpm)
	}
	wantPnpm := map[string]string{"@vaadin/button": "$@vaadin/button"}
	if got := stringMap(rawObject(p.fields["pnpm"])["overrides"]); !maps.Equal(got, wantPnpm) {
		t.Errorf("pnpm.overrides = %v, want %v", got, wantPnpm)
	}
}

func TestApplyKeepsNestedOverrides(t *testing.T) {
	p, err := Parse([]byte(`{
  "dependencies": {},
  "overrides": {
    "foo": {"bar": "1.0.0"},
    "@vaadin/grid": {".": "24.0.0", "lit": "3.0.0"}
  },
  "pnpm": {
    "onlyBuiltDependencies": ["esbuild"],
    "overrides": {"foo": {"bar": "1.0.0"}}
  }
}`))
	if err != nil {
		t.Fatal(err)
	}

	pinned := map[string]string{"@vaadin/button": "24.4.0", "@vaadin/grid": "24.4.0"}
	if _, err := p.Apply(pinned, nil, ApplyOptions{Overrides: true, PNPM: true}); err != nil {
		t.Fatal(err)
	}
	data, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Overrides map[string]any `json:"overrides"`
		PNPM      struct {
			OnlyBuilt []string       `json:"onlyBuiltDependencies"`
			Overrides map[string]any `json:"overrides"`
		} `json:"pnpm"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Marshal produced invalid JSON: %v\n%s", err, data)
	}

	for name, overrides := range map[string]map[string]any{"overrides": doc.Overrides, "pnpm.overrides": doc.PNPM.Overrides} {
		nested, ok := overrides["foo"].(map[string]any)
		if !ok || nested["bar"] != "1.0.0" {
			t.Errorf("%s lost nested override foo: %v", name, overrides)
		}
		if overrides["@vaadin/button"] != "$@vaadin/button" {
			t.Errorf("%s[@vaadin/button] = %v", name, overrides["@vaadin/button"])
		}
	}
	grid, ok := doc.Overrides["@vaadin/grid"].(map[string]any)
	if !ok || grid["."] != "24.0.0" || grid["lit"] != "3.0.0" {
		t.Errorf("user override object for @vaadin/grid replaced: %v", doc.Overrides["@vaadin/grid"])
	}
	if !slices.Equal(doc.PNPM.OnlyBuilt, []string{"esbuild"}) {
		t.Errorf("pnpm.onlyBuiltDependencies = %v", doc.PNPM.OnlyBuilt)
	}
}

func TestApplyDevDependencies(t *testing.T) {
	p := New()
	_, err := p.Apply(map[string]string{"vite": "5.2.0"}, nil, ApplyOptions{DependenciesKey: "devDependencies"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Section("devDependencies")["vite"] != "5.2.0" {
		t.Errorf("devDependencies = %v", p.Section("devDependencies"))
	}
	if p.Tracking("devDependencies")["vite"] != "5.2.0" {
		t.Errorf("tracking = %v", p.Tracking("devDependencies"))
	}
	if p.Section("dependencies") != nil {
		t.Error("dependencies should not be created")
	}
}

func TestReadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")

	if _, err := Read(path); !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Fatalf("Read missing error = %v, want FILE_NOT_FOUND", err)
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}

	changed, err := p.Write(path)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("writing an unmodified sample should not change the file")
	}

	if _, err := p.Apply(map[string]string{"@vaadin/grid": "24.4.0"}, nil, ApplyOptions{}); err != nil {
		t.Fatal(err)
	}
	changed, err = p.Write(path)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("Write should report a change")
	}

	reread, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if reread.Section("dependencies")["@vaadin/grid"] != "24.4.0" {
		t.Errorf("dependencies = %v", reread.Section("dependencies"))
	}
}
