package internal

import (
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goplus/coinbuild/internal/library"
)

const watchDebounce = 100 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the plan again whenever its inputs change",
	Long: heredoc.Doc(`
		Watch prints the plan, then prints it again each time the config
		file, an on-disk library descriptor or its source manifest changes.
		Built-in descriptors are embedded in the binary and cannot change.
	`),
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	addEnvFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

// watchPaths returns the files whose changes affect the plan.
func watchPaths(configFile string, cfg Config, lib *library.Library) []string {
	var paths []string
	if configFile != "" {
		paths = append(paths, configFile)
	}
	if IsDescriptorPath(cfg.Library) {
		paths = append(paths, cfg.Library, filepath.Join(filepath.Dir(cfg.Library), filepath.FromSlash(lib.Manifest)))
	}
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			paths[i] = abs
		}
	}
	return paths
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	overrides := envOverrides(cmd)
	if err := s.plan(out, overrides); err != nil {
		s.log.WithError(err).Error("plan failed")
	}

	paths := watchPaths(viper.ConfigFileUsed(), s.cfg, s.lib)
	if len(paths) == 0 {
		return errors.New("nothing to watch: no config file and the library descriptor is built in")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Editors often replace files, so watch the directories.
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
		if err := fw.Add(filepath.Dir(p)); err != nil {
			return err
		}
		s.log.WithField("file", p).Debug("watching")
	}

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt)
	defer stop()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !wanted[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Warn("watch error")
		case <-timer.C:
			if err := viper.ReadInConfig(); err != nil && viper.ConfigFileUsed() != "" {
				s.log.WithError(err).Warn("reload config")
			}
			next, err := newSession(cmd)
			if err != nil {
				s.log.WithError(err).Error("reload failed")
				continue
			}
			if err := next.plan(out, overrides); err != nil {
				s.log.WithError(err).Error("plan failed")
			}
		}
	}
}
