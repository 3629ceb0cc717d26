package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/npmfence/pkg/versions"
)

// excludeCommand lists the project dependencies the platform excludes.
func (c *CLI) excludeCommand() *cobra.Command {
	var (
		pf      platformFlags
		rf      runnerFlags
		dev     bool
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "exclude [package.json]",
		Short: "Show project dependencies excluded by the platform",
		Long: `Apply the exclusions declared by the core and the general platform
manifests to the project's dependencies and report what would be removed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			path := defaultPackageJSON
			if len(args) == 1 {
				path = args[0]
			}
			opts := pipelineOptions(pf.merge(cmd, cfg.Platform), path)
			if dev {
				opts.DependenciesKey = versions.DevDependenciesKey
			}

			runner, err := c.newRunner(cmd.Context(), cfg, rf)
			if err != nil {
				return err
			}
			defer runner.Close()

			kept, removed, err := runner.Exclude(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"dependencies": kept,
					"excluded":     append([]string{}, removed...),
				})
			}

			if len(removed) == 0 {
				printSuccess("No excluded packages in %s", path)
				return nil
			}
			printInfo("%d packages in %s are excluded by the platform", len(removed), path)
			for _, name := range removed {
				printChange("-", name, "")
			}
			printNextStep("Remove them", "npmfence pin --write")
			return nil
		},
	}

	pf.register(cmd)
	rf.register(cmd)
	cmd.Flags().BoolVar(&dev, "dev", false, "check devDependencies instead of dependencies")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the remaining dependencies as JSON")
	return cmd
}
