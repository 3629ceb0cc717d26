package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/npmfence/pkg/pipeline"
	"github.com/matzehuels/npmfence/pkg/versions"
)

const defaultPackageJSON = "package.json"

// pinCommand computes the platform pins for a project and optionally
// writes them into its package.json.
func (c *CLI) pinCommand() *cobra.Command {
	var (
		pf        platformFlags
		rf        runnerFlags
		write     bool
		dev       bool
		jsonOut   bool
		overrides bool
		pnpm      bool
	)

	cmd := &cobra.Command{
		Use:   "pin [package.json]",
		Short: "Pin platform versions in package.json",
		Long: `Compute the npm versions the platform enforces for a project.

The core and the general platform manifests are looked up in the configured
sources. Their versions are filtered for the selected rendering mode and
compared with the project's package.json: pins older than the platform
version are reported. Without --write nothing is modified.`,
		Example: `  npmfence pin
  npmfence pin frontend/package.json --react --write
  npmfence pin --dev --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			platform := pf.merge(cmd, cfg.Platform)
			if cmd.Flags().Changed("overrides") {
				platform.Overrides = overrides
			}
			if cmd.Flags().Changed("pnpm") {
				platform.PNPM = pnpm
			}

			path := defaultPackageJSON
			if len(args) == 1 {
				path = args[0]
			}
			opts := pipelineOptions(platform, path)
			opts.Refresh = rf.refresh
			if dev {
				opts.DependenciesKey = versions.DevDependenciesKey
			}

			runner, err := c.newRunner(cmd.Context(), cfg, rf)
			if err != nil {
				return err
			}
			defer runner.Close()

			prog := newProgress(c.Logger)
			res, err := runner.Apply(cmd.Context(), opts, write)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Pinned %d packages", len(res.Versions)))

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), res.Result)
			}
			printPinResult(res, path, write)
			return nil
		},
	}

	pf.register(cmd)
	rf.register(cmd)
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the pins into package.json")
	cmd.Flags().BoolVar(&dev, "dev", false, "reconcile devDependencies instead of dependencies")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the pin set as JSON")
	cmd.Flags().BoolVar(&overrides, "overrides", false, "mirror pins into npm overrides")
	cmd.Flags().BoolVar(&pnpm, "pnpm", false, "mirror pins into pnpm.overrides")
	return cmd
}

func printPinResult(res *pipeline.ApplyResult, path string, write bool) {
	source := "no platform manifest found"
	if len(res.Origins) > 0 {
		source = strings.Join(res.Origins, ", ")
	}
	printInfo("Platform versions from %s", source)
	printStats(len(res.Versions), len(res.Exclusions), res.CacheHit)

	for _, w := range res.Warnings {
		printWarning("%s", w)
	}

	ch := res.Changes
	for _, name := range ch.Added {
		printChange("+", name, res.Versions[name])
	}
	for _, name := range ch.Updated {
		printChange("~", name, res.Versions[name])
	}
	for _, name := range ch.Removed {
		printChange("-", name, "")
	}

	switch {
	case ch.Empty():
		printSuccess("%s is up to date", path)
	case res.Written:
		printSuccess("Updated %s", path)
		printFile(path)
	case !write:
		printDetail("%d added, %d updated, %d removed", len(ch.Added), len(ch.Updated), len(ch.Removed))
		printNextStep("Apply these changes", "npmfence pin --write")
	}
}
