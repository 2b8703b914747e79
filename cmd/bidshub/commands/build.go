package commands

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wojas/go-healthz"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/datasets"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/status"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/uploader"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/validation"
)

var (
	buildDryRun     bool
	buildShards     int
	buildSkipChecks bool
)

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", true,
		"Build the table and run checks, but do not upload. Pass --dry-run=false to push")
	buildCmd.Flags().IntVar(&buildShards, "shards", 0,
		"Override the number of shards, defaults to one shard per upload.shard_rows rows")
	buildCmd.Flags().BoolVar(&buildSkipChecks, "skip-checks", false,
		"Push even when table checks fail")
}

var buildCmd = &cobra.Command{
	Use:          "build <dataset>",
	Short:        "Build the table for a dataset and push it shard by shard",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		dc, err := datasetConfig(name)
		if err != nil {
			return err
		}
		b, err := datasets.Get(dc.Kind)
		if err != nil {
			return err
		}

		l := logrus.WithField("dataset", name)
		l.WithField("root", dc.Root).Info("Building table")
		tbl, err := b.Build(dc.Root)
		if err != nil {
			return err
		}

		result := &validation.Result{Target: name}
		for _, c := range b.TableChecks(tbl) {
			result.Add(c)
		}
		fmt.Print(result.Summary())
		if !result.AllPassed() && !buildSkipChecks {
			return fmt.Errorf("%d table checks failed, not pushing (see --skip-checks)",
				result.FailedCount())
		}

		if buildDryRun {
			l.Info("Dry run requested, not pushing")
			return nil
		}

		if buildShards > 0 {
			// Convert a target shard count into rows per shard.
			conf.Upload.ShardRows = (tbl.NumRows() + buildShards - 1) / buildShards
		}

		st, err := getStorage(rootCtx)
		if err != nil {
			return err
		}
		u, err := uploader.New(name, st, conf, dc)
		if err != nil {
			return err
		}

		healthz.AddBuildInfo()
		if hostname, err := os.Hostname(); err == nil {
			healthz.SetMeta("hostname", hostname)
		}
		healthz.SetMeta("version", version)

		status.AddDataset(name, dc.SplitName(), u.Progress)
		defer status.RemoveDataset(name)
		status.StartHTTPServer(conf)

		return u.Push(rootCtx, tbl)
	},
}
