package commands

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/config"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/validation"
)

var (
	validateAll        bool
	validateTolerance  float64
	validateSampleSize int
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateAll, "all", false,
		"Validate all configured datasets concurrently")
	validateCmd.Flags().Float64Var(&validateTolerance, "tolerance", -1,
		"Allowed missing fraction for count checks (0 to 1), overrides the dataset default")
	validateCmd.Flags().IntVar(&validateSampleSize, "sample-size", 10,
		"Number of NIfTI files in the header spot check")
}

var validateCmd = &cobra.Command{
	Use:          "validate [dataset]",
	Short:        "Validate a downloaded dataset against its census",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateAll == (len(args) == 1) {
			return fmt.Errorf("provide either a dataset name or --all")
		}

		names := args
		if validateAll {
			names = nil
			for name := range conf.Datasets {
				names = append(names, name)
			}
			sort.Strings(names)
		}

		var mu sync.Mutex // one summary at a time on stdout
		var eg errgroup.Group
		for _, name := range names {
			name := name
			dc, err := datasetConfig(name)
			if err != nil {
				return err
			}
			eg.Go(func() error {
				result, err := validateDataset(name, dc)
				if err != nil {
					return err
				}
				mu.Lock()
				fmt.Print(result.Summary())
				mu.Unlock()
				if !result.AllPassed() {
					return fmt.Errorf("validation failed for dataset %s", name)
				}
				return nil
			})
		}
		return eg.Wait()
	},
}

func validateDataset(name string, dc config.Dataset) (*validation.Result, error) {
	b, err := datasets.Get(dc.Kind)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}
	opts := validation.Options{
		Tolerance:  validateTolerance,
		SampleSize: validateSampleSize,
	}
	return validation.Validate(dc.Root, b.Rules(), opts), nil
}
