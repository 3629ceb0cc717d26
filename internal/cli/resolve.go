package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/npmfence/pkg/errors"
	"github.com/matzehuels/npmfence/pkg/versions"
)

type resolveOutput struct {
	Versions   map[string]string `json:"versions"`
	Exclusions []string          `json:"exclusions"`
}

// resolveCommand flattens a single manifest without touching a project.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		pf     platformFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "resolve <versions.json>",
		Short: "Flatten a platform versions manifest",
		Long: `Flatten a platform versions manifest into the npm packages and versions
that apply to the selected rendering mode, plus the packages it excludes.`,
		Example: `  npmfence resolve vaadin-versions.json
  npmfence resolve vaadin-versions.json --react -o pins.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			platform := pf.merge(cmd, cfg.Platform)

			data, err := readInput(args[0])
			if err != nil {
				return err
			}

			prog := newProgress(c.Logger)
			res, err := versions.ConvertJSON(data, convertOptions(platform))
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Resolved %d packages", len(res.Versions)))

			out := resolveOutput{
				Versions:   res.Versions,
				Exclusions: append([]string{}, res.Exclusions.Sorted()...),
			}
			if output == "" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			f, err := os.Create(output)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", output)
			}
			defer f.Close()
			if err := writeJSON(f, out); err != nil {
				return err
			}
			printSuccess("Resolved %d packages, %d excluded", len(out.Versions), len(out.Exclusions))
			printFile(output)
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write JSON to a file instead of stdout")
	return cmd
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeReadFailed, err, "read stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "no such file: %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReadFailed, err, "read %s", path)
	}
	return data, nil
}
