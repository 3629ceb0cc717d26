// Package versions reconciles a platform versions manifest with a project's
// own package.json.
//
// # Overview
//
// A platform manifest is a nested JSON tree. Objects that carry an "npmName"
// key describe one npm dependency; every other object is a group that is
// walked recursively:
//
//	{
//	  "core": {
//	    "router": { "npmName": "@vaadin/router", "jsVersion": "2.0.0" }
//	  },
//	  "react": {
//	    "react-components": {
//	      "npmName": "@vaadin/react-components",
//	      "npmVersion": "24.4.0",
//	      "mode": "react",
//	      "exclusions": ["@vaadin/lit-renderer"]
//	    }
//	  },
//	  "platform": "24.4.0"
//	}
//
// # Conversion
//
// [Convert] flattens the tree into a package → version map for the active
// rendering mode and collects exclusions along the way. Excluded packages
// are pruned from the map before it is returned:
//
//	root, _ := versions.Parse(data)
//	res, err := versions.Convert(root, versions.Options{ReactEnabled: true})
//	// res.Versions   {"@vaadin/react-components": "24.4.0"}
//	// res.Exclusions {"@vaadin/router", "@vaadin/lit-renderer"}
//
// A dependency without "npmVersion" or "jsVersion" makes the manifest
// unusable; Convert fails with an INVALID_MANIFEST error and returns no
// partial result.
//
// # Exclusions
//
// [ExclusionFilter] reads the core and the general platform manifests
// through a [source.Finder] and removes their combined exclusions from a
// caller-supplied dependency map. Manifests that are not found contribute
// nothing.
//
// # User overrides
//
// [Filter] compares platform versions with the versions pinned in the
// project's package.json. Platform versions are always returned; a user pin
// that is older than the platform version produces a [Warning].
//
// [source.Finder]: github.com/matzehuels/npmfence/pkg/source.Finder
package versions
