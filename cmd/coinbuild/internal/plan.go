package internal

import (
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goplus/coinbuild/internal/cc"
	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/resolve"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the compilation request without building",
	Long: heredoc.Doc(`
		Plan resolves features and companion metadata for the current
		environment and prints the resulting compilation request as YAML.
		Nothing is checked out, compiled or emitted.
	`),
	Example: heredoc.Doc(`
		$ CARGO_FEATURE_OSICPX=1 coinbuild plan --host x86_64-unknown-linux-gnu \
			--target x86_64-unknown-linux-gnu --manifest-dir .
	`),
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	addEnvFlags(planCmd)
	rootCmd.AddCommand(planCmd)
}

// addEnvFlags lets commands run outside a build script supply the
// variables the build system would set.
func addEnvFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Host triple when "+env.VarHost+" is not set")
	cmd.Flags().String("target", "", "Target triple when "+env.VarTarget+" is not set")
	cmd.Flags().String("manifest-dir", "", "Project root when "+env.VarManifestDir+" is not set")
}

func envOverrides(cmd *cobra.Command) map[string]string {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return map[string]string{
		env.VarHost:        get("host"),
		env.VarTarget:      get("target"),
		env.VarManifestDir: get("manifest-dir"),
	}
}

type planPublish struct {
	Includes []string `yaml:"includes"`
	Flags    []string `yaml:"flags"`
}

type planOutput struct {
	Library  string      `yaml:"library"`
	Policy   string      `yaml:"policy"`
	Features []string    `yaml:"features"`
	Dropped  []string    `yaml:"dropped,omitempty"`
	Publish  planPublish `yaml:"publish"`
	Request  *cc.Request `yaml:"request"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	return s.plan(cmd.OutOrStdout(), envOverrides(cmd))
}

func (s *session) plan(out io.Writer, overrides map[string]string) error {
	cfg, err := s.probeEnv(overrides)
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
	r := &resolve.Resolver{Lib: s.lib, Options: opts, Store: store}
	p, err := r.Plan(s.ctx, cfg)
	if err != nil {
		return err
	}

	res := p.Resolution
	doc := planOutput{
		Library:  string(s.lib.Name),
		Policy:   opts.Policy.String(),
		Features: make([]string, 0, len(res.Enabled)),
		Dropped:  res.Dropped,
		Publish: planPublish{
			Includes: res.Own().Includes(),
			Flags:    res.Own().Flags(),
		},
		Request: p.Request,
	}
	for _, f := range res.Enabled {
		doc.Features = append(doc.Features, f.Flag)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}
