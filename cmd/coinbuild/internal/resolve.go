package internal

import (
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/goplus/coinbuild/internal/cc"
	"github.com/goplus/coinbuild/internal/directive"
	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/locate"
	"github.com/goplus/coinbuild/internal/resolve"
	"github.com/goplus/coinbuild/internal/vcs"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Link the system library or build the vendored sources",
	Long: heredoc.Doc(`
		Resolve runs the full pipeline from a build script. The environment
		is the one a cargo-style build provides: HOST, TARGET and
		CARGO_MANIFEST_DIR are required, CARGO_<LIB>_SYSTEM asks for a
		system copy, CARGO_<LIB>_STATIC for static linking and
		CARGO_FEATURE_<FLAG> enables a solver backend.

		Directives are written to stdout, logs to stderr.
	`),
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().IntP("jobs", "j", 1, "Number of parallel compiler processes")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	cfg, err := env.Probe(os.LookupEnv, s.lib, env.ProbeOptions{Features: s.cfg.Features})
	if err != nil {
		return err
	}
	opts, err := s.cfg.FeatureOptions()
	if err != nil {
		return err
	}
	store, err := s.cfg.Store()
	if err != nil {
		return err
	}
	updater, err := vcs.NewUpdater(s.cfg.Acquire.Backend)
	if err != nil {
		return err
	}

	w := directive.NewWriter(cmd.OutOrStdout())
	locator, err := locate.New(w, locate.Options{
		Excluded:    s.cfg.ExcludedPlatforms,
		DynamicHint: s.cfg.DynamicHint,
	})
	if err != nil {
		return err
	}

	r := &resolve.Resolver{
		Lib:      s.lib,
		Writer:   w,
		Locator:  locator,
		Acquirer: vcs.NewAcquirer(updater),
		Driver:   cc.NewExecDriver(w, s.cfg.Jobs),
		Options:  opts,
		Store:    store,
	}
	out, err := r.Run(s.ctx, cfg)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"lib":      s.lib.Name,
		"kind":     out.Kind,
		"link":     out.LinkMode,
		"flags":    out.Flags,
		"artifact": out.Artifact,
	}).Info("resolved")
	return nil
}
