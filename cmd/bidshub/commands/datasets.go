package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets"
)

func init() {
	rootCmd.AddCommand(datasetsCmd)
	datasetsCmd.AddCommand(datasetsListCmd)
	datasetsCmd.AddCommand(datasetsInfoCmd)
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Supported dataset kinds (list, info)",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// The registry is compiled in, no config loading needed
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var datasetsListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List supported dataset kinds",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, kind := range datasets.Kinds() {
			b, err := datasets.Get(kind)
			if err != nil {
				return err
			}
			info := b.Info()
			fmt.Printf("%-14s %-40s %s\n", info.Kind, info.Title, info.Source)
		}
		return nil
	},
}

var datasetsInfoCmd = &cobra.Command{
	Use:          "info <kind>",
	Short:        "Show schema and census for one dataset kind",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := datasets.Get(args[0])
		if err != nil {
			return err
		}
		info := b.Info()
		fmt.Printf("Kind:     %s\n", info.Kind)
		fmt.Printf("Title:    %s\n", info.Title)
		fmt.Printf("Source:   %s\n", info.Source)
		fmt.Printf("Row unit: %s\n", info.RowUnit)

		fmt.Printf("\nSchema:\n")
		for _, f := range b.Schema() {
			fmt.Printf("    %-20s %s\n", f.Name, f.Kind)
		}

		rules := b.Rules()
		keys := make([]string, 0, len(rules.ExpectedCounts))
		for k := range rules.ExpectedCounts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("\nCensus:\n")
		for _, k := range keys {
			fmt.Printf("    %-20s %d\n", k, rules.ExpectedCounts[k])
		}
		return nil
	},
}
