package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmfence/pkg/pipeline"
	"github.com/matzehuels/npmfence/pkg/versions"
)

// platformFlags select the rendering mode. Flags that are set on the
// command line override the [platform] section of the config.
type platformFlags struct {
	react     bool
	excludeWC bool
	umbrella  string
	router    string
}

func (f *platformFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.react, "react", false, "resolve for the React rendering mode")
	cmd.Flags().BoolVar(&f.excludeWC, "exclude-web-components", false, "drop every mode-specific package")
	cmd.Flags().StringVar(&f.umbrella, "umbrella", "", "umbrella package that is never pinned (default: "+versions.DefaultUmbrellaPackage+")")
	cmd.Flags().StringVar(&f.router, "router", "", "router package excluded in React mode (default: "+versions.DefaultRouterPackage+")")
}

func (f *platformFlags) merge(cmd *cobra.Command, cfg PlatformConfig) PlatformConfig {
	flags := cmd.Flags()
	if flags.Changed("react") {
		cfg.React = f.react
	}
	if flags.Changed("exclude-web-components") {
		cfg.ExcludeWebComponents = f.excludeWC
	}
	if flags.Changed("umbrella") {
		cfg.UmbrellaPackage = f.umbrella
	}
	if flags.Changed("router") {
		cfg.RouterPackage = f.router
	}
	return cfg
}

func convertOptions(p PlatformConfig) versions.Options {
	return versions.Options{
		ReactEnabled:         p.React,
		ExcludeWebComponents: p.ExcludeWebComponents,
		UmbrellaPackage:      p.UmbrellaPackage,
		RouterPackage:        p.RouterPackage,
	}
}

func pipelineOptions(p PlatformConfig, packageJSON string) pipeline.Options {
	return pipeline.Options{
		PackageJSON:          packageJSON,
		TrackingKey:          p.TrackingKey,
		ReactEnabled:         p.React,
		ExcludeWebComponents: p.ExcludeWebComponents,
		UmbrellaPackage:      p.UmbrellaPackage,
		RouterPackage:        p.RouterPackage,
		Overrides:            p.Overrides,
		PNPM:                 p.PNPM,
	}
}
