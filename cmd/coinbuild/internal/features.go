package internal

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/feature"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List the optional solver backends of the library",
	Long:  `Features lists the feature table in canonical order and marks the features enabled by the environment or the config file.`,
	Args:  cobra.NoArgs,
	RunE:  runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}

func runFeatures(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	enabled := feature.NewSet(s.cfg.Features...)
	for _, f := range s.lib.Features {
		if _, ok := os.LookupEnv(env.FeatureVar(f.Flag)); ok {
			enabled.Add(f.Flag)
		}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FLAG\tTOKEN\tSOURCE\tLINK\tENABLED")
	for _, f := range s.lib.Features {
		mark := "-"
		if enabled.Has(f.Flag) {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s\t%s\n", f.Flag, f.Token, f.Dir, f.Source, f.Link, mark)
	}
	return tw.Flush()
}
