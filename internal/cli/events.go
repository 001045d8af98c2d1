package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/leandroluk/oxm/events"
	"github.com/leandroluk/oxm/internal/admin"
	"github.com/spf13/cobra"
)

func newEventsCommand() *cobra.Command {
	var (
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:     "events",
		Short:   "List the lifecycle event names",
		Example: "  oxm events\n  oxm events --category lifecycle --json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := events.Category(category)
			if c != "" {
				known := false
				for _, k := range events.Categories() {
					known = known || k == c
				}
				if !known {
					return fmt.Errorf("unknown category %q", category)
				}
			}
			infoList := admin.DescribeEvents(nil, c)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infoList)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tCOUNTERPART")
			for _, info := range infoList {
				counterpart := "-"
				if info.Counterpart != "" {
					counterpart = string(info.Counterpart)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, info.Category, counterpart)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only list one category: lifecycle|marshalling|metadata|transaction")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
