package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/goplus/coinbuild/internal/directive"
	"github.com/goplus/coinbuild/internal/locate"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Look for a system copy of the library",
	Long: heredoc.Doc(`
		Probe runs only the system locator: vcpkg for MSVC targets,
		pkg-config elsewhere. It reports what was found and the link
		directives a resolve would emit, without building anything.
	`),
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	addEnvFlags(probeCmd)
	probeCmd.Flags().Bool("directives", false, "Print the link directives instead of a summary")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	cfg, err := s.probeEnv(envOverrides(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	raw, _ := cmd.Flags().GetBool("directives")
	var dw io.Writer = io.Discard
	if raw {
		dw = out
	}
	locator, err := locate.New(directive.NewWriter(dw), locate.Options{
		Excluded:    s.cfg.ExcludedPlatforms,
		DynamicHint: s.cfg.DynamicHint,
	})
	if err != nil {
		return err
	}

	if locator.Excluded(cfg) {
		if !raw {
			fmt.Fprintf(out, "%s: system discovery is not supported on %s\n", s.lib.Name, cfg.Target)
		}
		return nil
	}
	found, err := locator.Locate(s.ctx, s.lib, cfg)
	if err != nil {
		return err
	}
	if raw {
		return nil
	}
	if found == nil {
		fmt.Fprintf(out, "%s: not found\n", s.lib.Name)
		return nil
	}
	fmt.Fprintf(out, "%s: found via %s", s.lib.Name, found.Method)
	if found.Version != "" {
		fmt.Fprintf(out, " (version %s)", found.Version)
	}
	fmt.Fprintf(out, "\n  link:     %s\n", found.LinkMode)
	fmt.Fprintf(out, "  includes: %s\n", strings.Join(found.Includes, " "))
	return nil
}
