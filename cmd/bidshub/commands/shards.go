package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PowerDNS/simpleblob"
	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/shard"
	"github.com/The-Obstacle-Is-The-Way/neuroimaging-go-brrrr/table"
)

func init() {
	rootCmd.AddCommand(shardsCmd)

	shardsCmd.AddCommand(shardsListCmd)
	shardsListCmd.Flags().StringP("prefix", "p", "", "Prefix filter")
	shardsListCmd.Flags().BoolP("long", "l", false, "Add extra information, like size")
	shardsListCmd.Flags().BoolP("time", "t", false, "Sort by shard timestamp")

	shardsCmd.AddCommand(shardsRemoveCmd)

	shardsCmd.AddCommand(shardsDumpCmd)
	shardsDumpCmd.Flags().StringP("column", "C", "", "Only output the column with this exact name")
	shardsDumpCmd.Flags().BoolP("local", "l", false,
		"Dump a local file instead of a remote shard")

	shardsCmd.AddCommand(shardsGetCmd)
	shardsGetCmd.Flags().StringP("output", "o", "",
		"Output filename, if not the same as the remote name")

	shardsCmd.AddCommand(shardsPutCmd)
	shardsPutCmd.Flags().StringP("name", "n", "",
		"Name to store the shard as, if different from the local name")
	shardsPutCmd.Flags().Bool("force", false, "Force the use of an invalid shard name")
}

var shardsCmd = &cobra.Command{
	Use:   "shards",
	Short: "Remote shard operations (list, dump, remove, etc)",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var shardsListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List shards",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		st, err := getStorage(ctx)
		if err != nil {
			return err
		}

		prefix, err := cmd.Flags().GetString("prefix")
		if err != nil {
			return err
		}
		long, err := cmd.Flags().GetBool("long")
		if err != nil {
			return err
		}
		byTime, err := cmd.Flags().GetBool("time")
		if err != nil {
			return err
		}

		list, err := st.List(ctx, prefix)
		if err != nil {
			return err
		}
		if byTime {
			sortByTime(list)
		}

		for _, blob := range list {
			if long {
				fmt.Printf("%12d\t%s\n", blob.Size, blob.Name)
			} else {
				fmt.Printf("%s\n", blob.Name)
			}
		}
		return nil
	},
}

var shardsRemoveCmd = &cobra.Command{
	Use:          "remove",
	Short:        "Remove shard",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		st, err := getStorage(ctx)
		if err != nil {
			return err
		}

		return st.Delete(ctx, args[0])
	},
}

var shardsDumpCmd = &cobra.Command{
	Use:          "dump",
	Short:        "Dump shard contents for debugging",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		columnName, err := cmd.Flags().GetString("column")
		if err != nil {
			return err
		}
		local, err := cmd.Flags().GetBool("local")
		if err != nil {
			return err
		}

		// Load shard
		var data []byte
		if local {
			data, err = os.ReadFile(args[0])
			if err != nil {
				return err
			}
		} else {
			st, err := getStorage(ctx)
			if err != nil {
				return err
			}
			data, err = st.Load(ctx, args[0])
			if err != nil {
				return err
			}
		}
		msg, err := shard.LoadData(data)
		if err != nil {
			return err
		}

		// Filter columns if needed
		if columnName != "" {
			msg.Columns = lo.Filter(msg.Columns, func(item *shard.Column, index int) bool {
				return item.Name() == columnName
			})
		}

		// Buffered output speeds things up
		out := bufio.NewWriter(os.Stdout)
		defer out.Flush()
		outf := func(sfmt string, args ...any) {
			_, _ = fmt.Fprintf(out, sfmt, args...)
		}

		m := msg.Meta
		outf("dataset=%q split=%q shard=%d/%d rows=%d\n",
			m.DatasetName, m.SplitName, m.ShardIndex+1, m.ShardCount, m.RowCount)
		outf("hostname=%q instance=%q timestamp=%s\n",
			m.Hostname, m.InstanceID, time.Unix(0, int64(m.TimestampNano)).UTC())

		tbl, err := msg.Table()
		if err != nil {
			return err
		}
		for _, f := range tbl.Schema {
			outf("\n### %s (%s)\n\n", f.Name, f.Kind)
			for i, row := range tbl.Rows {
				outf("%5d  %s\n", i, displayValue(row[f.Name]))
			}
		}
		return nil
	},
}

var shardsGetCmd = &cobra.Command{
	Use:          "get",
	Short:        "Download a shard",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		outName, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		if outName == "" {
			outName = args[0]
		}

		st, err := getStorage(ctx)
		if err != nil {
			return err
		}
		data, err := st.Load(ctx, args[0])
		if err != nil {
			return err
		}

		return os.WriteFile(outName, data, 0666)
	},
}

var shardsPutCmd = &cobra.Command{
	Use:          "put",
	Short:        "Upload a shard",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(rootCtx, time.Minute)
		defer cancel()

		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return err
		}
		if name == "" {
			name = filepath.Base(args[0])
		}
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		if _, err = shard.ParseName(name); err != nil {
			if !force {
				return fmt.Errorf(
					"invalid shard name (use -n to specify a different one, or "+
						"--force to skip this check): %v", err)
			}
			logrus.WithError(err).Warn("Invalid shard name forced")
		}

		st, err := getStorage(ctx)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return st.Store(ctx, name, data)
	},
}

func displayValue(v table.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Kind() {
	case table.String:
		return fmt.Sprintf("%q", v.Str())
	case table.Float:
		return fmt.Sprintf("%g", v.Float32())
	case table.StringList:
		parts := make([]string, len(v.Strings()))
		for i, s := range v.Strings() {
			parts[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case table.Image, table.ImageList:
		parts := make([]string, len(v.Images()))
		for i, img := range v.Images() {
			parts[i] = fmt.Sprintf("%s (%s)",
				img.Ref, datasize.ByteSize(len(img.Data)).HumanReadable())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%+v", v)
	}
}

func sortByTime(list simpleblob.BlobList) {
	slices.SortFunc(list, func(a, b simpleblob.Blob) int {
		na, errA := shard.ParseName(a.Name)
		nb, errB := shard.ParseName(b.Name)
		// Invalid names are sorted by name and come before valid names
		if errA != nil && errB != nil {
			return strings.Compare(a.Name, b.Name)
		}
		if errA != nil {
			return -1
		}
		if errB != nil {
			return 1
		}
		return na.Timestamp.Compare(nb.Timestamp)
	})
}
