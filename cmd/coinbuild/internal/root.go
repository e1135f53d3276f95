package internal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/library"
	"github.com/goplus/coinbuild/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "coinbuild",
	Short: "coinbuild resolves COIN-OR native libraries at build time",
	Long: heredoc.Doc(`
		coinbuild decides, before a project compiles, whether to link a
		system-installed COIN-OR library or to build the vendored sources with
		the selected solver backends. It reports the result to the enclosing
		build on stdout, one "cargo:<key>=<value>" directive per line.
	`),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .coinbuild.yaml in the manifest dir)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringP("library", "l", "", "Built-in library name or path of a .toml descriptor")
}

// bindFlags maps command-line flags onto config keys. It runs on every
// execution so the bindings survive a viper.Reset.
func bindFlags() {
	_ = viper.BindPFlag("library", rootCmd.PersistentFlags().Lookup("library"))
	_ = viper.BindPFlag("jobs", resolveCmd.Flags().Lookup("jobs"))
}

func initConfig() {
	bindFlags()
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".coinbuild")
		viper.SetConfigType("yaml")
		if dir, ok := os.LookupEnv(env.VarManifestDir); ok && dir != "" {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("COINBUILD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file leaves the defaults in place.
	_ = viper.ReadInConfig()
}

// session is what every command starts from.
type session struct {
	ctx context.Context
	cfg Config
	lib *library.Library
	log *logrus.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logrus.DebugLevel
	}
	log := logger.New(level, cmd.ErrOrStderr())
	if used := viper.ConfigFileUsed(); used != "" {
		log.WithField("file", used).Debug("config loaded")
	}

	lib, err := cfg.LoadLibrary()
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return &session{
		ctx: logger.WithLogger(ctx, log),
		cfg: cfg,
		lib: lib,
		log: log,
	}, nil
}

// probeEnv reads the build environment, letting the non-empty overrides
// stand in for variables the environment does not set.
func (s *session) probeEnv(overrides map[string]string) (*env.Config, error) {
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		if v := overrides[key]; v != "" {
			return v, true
		}
		return "", false
	}
	return env.Probe(lookup, s.lib, env.ProbeOptions{Features: s.cfg.Features})
}
