package versions

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/matzehuels/npmfence/pkg/errors"
)

// Manifest keys recognized on dependency objects.
const (
	keyNpmName    = "npmName"
	keyNpmVersion = "npmVersion"
	keyJSVersion  = "jsVersion"
	keyMode       = "mode"
	keyExclusions = "exclusions"
)

// Node is an element of a parsed platform manifest: either a [*Leaf] or a
// [*Group].
type Node interface {
	node()
}

// Group is an object without an "npmName" key.
type Group struct {
	Children map[string]Node
}

// Leaf is an object with an "npmName" key.
type Leaf struct {
	Descriptor
}

func (*Group) node() {}
func (*Leaf) node()  {}

// Keys returns the child keys in sorted order.
func (g *Group) Keys() []string {
	keys := make([]string, 0, len(g.Children))
	for k := range g.Children {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Descriptor describes one npm dependency declared by the platform.
type Descriptor struct {
	Key        string   // Manifest key the descriptor was found under
	NpmName    string   // npm package name
	NpmVersion string   // Preferred version
	JSVersion  string   // Fallback version
	Mode       Mode     // Rendering mode, ModeAll when absent
	Exclusions []string // Packages this dependency suppresses
}

// Version returns NpmVersion, or JSVersion when NpmVersion is empty.
func (d Descriptor) Version() (string, bool) {
	if d.NpmVersion != "" {
		return d.NpmVersion, true
	}
	if d.JSVersion != "" {
		return d.JSVersion, true
	}
	return "", false
}

type rawDescriptor struct {
	NpmName    *string  `json:"npmName"`
	NpmVersion string   `json:"npmVersion"`
	JSVersion  string   `json:"jsVersion"`
	Mode       string   `json:"mode"`
	Exclusions []string `json:"exclusions"`
}

// Parse decodes a platform manifest. The top level must be a JSON object.
// Scalar and array values are skipped wherever they appear.
func Parse(data []byte) (*Group, error) {
	if !isObject(data) {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "versions manifest must be a JSON object")
	}
	node, err := parseNode("", data)
	if err != nil {
		return nil, err
	}
	if g, ok := node.(*Group); ok {
		return g, nil
	}
	// A bare descriptor at the top level is a one-entry manifest.
	return &Group{Children: map[string]Node{"": node}}, nil
}

func parseNode(key string, data []byte) (Node, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", describeKey(key))
	}

	if _, ok := fields[keyNpmName]; ok {
		return parseLeaf(key, data)
	}

	g := &Group{Children: make(map[string]Node)}
	for k, v := range fields {
		if !isObject(v) {
			continue
		}
		child, err := parseNode(k, v)
		if err != nil {
			return nil, err
		}
		g.Children[k] = child
	}
	return g, nil
}

func parseLeaf(key string, data []byte) (*Leaf, error) {
	var raw rawDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode dependency %s", describeKey(key))
	}
	if raw.NpmName == nil || *raw.NpmName == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "dependency %s has an empty %q", describeKey(key), keyNpmName)
	}
	return &Leaf{Descriptor{
		Key:        key,
		NpmName:    *raw.NpmName,
		NpmVersion: raw.NpmVersion,
		JSVersion:  raw.JSVersion,
		Mode:       ParseMode(raw.Mode),
		Exclusions: raw.Exclusions,
	}}, nil
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

func describeKey(key string) string {
	if key == "" {
		return "manifest root"
	}
	return "'" + key + "'"
}
