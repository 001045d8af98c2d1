package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leandroluk/oxm/core"
	"github.com/spf13/cobra"
)

func newMappingCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Work with mapping files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("mapping requires a subcommand: validate")
		},
	}
	validate := &cobra.Command{
		Use:     "validate [file...]",
		Short:   "Validate yaml or toml mapping files",
		Example: "  oxm mapping validate mappings/user.yaml mappings/order.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = st.cfg.MappingFiles
			}
			if len(args) == 0 {
				return fmt.Errorf("no mapping files given")
			}
			out := cmd.OutOrStdout()
			var errList []error
			for _, path := range args {
				mappings, err := core.LoadMappingFile(path)
				if err != nil {
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					errList = append(errList, err)
					continue
				}
				classList := make([]string, 0, len(mappings))
				for _, m := range mappings {
					classList = append(classList, m.Class)
				}
				fmt.Fprintf(out, "ok   %s: %d classes (%s)\n", path, len(mappings), strings.Join(classList, ", "))
			}
			if len(errList) > 0 {
				return fmt.Errorf("%d of %d mapping files invalid: %w", len(errList), len(args), errors.Join(errList...))
			}
			return nil
		},
	}
	cmd.AddCommand(validate)
	return cmd
}
