// Package env reads the build environment once into an immutable Config that
// every later resolution step receives explicitly.
package env

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/coinbuild/internal/feature"
	"github.com/goplus/coinbuild/internal/library"
)

// Well-known variables.
const (
	VarHost        = "HOST"
	VarTarget      = "TARGET"
	VarManifestDir = "CARGO_MANIFEST_DIR"
	VarOutDir      = "OUT_DIR"
	VarTargetEnv   = "CARGO_CFG_TARGET_ENV"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// MisconfigError reports a required variable missing from the build
// environment. It is never recoverable.
type MisconfigError struct {
	Var string
}

func (e *MisconfigError) Error() string {
	return fmt.Sprintf("environment misconfigured: %s is not set", e.Var)
}

// Config is the normalized build environment.
type Config struct {
	Library      library.Name
	PreferSystem bool
	ForceStatic  bool
	Features     feature.Set
	Host         string
	Target       string
	// TargetEnv is the target's toolchain environment: "msvc", "gnu", ...
	TargetEnv   string
	ManifestDir string
	OutDir      string
}

// MSVC reports whether the target uses the MSVC toolchain family.
func (c *Config) MSVC() bool {
	return c.TargetEnv == "msvc" || strings.Contains(c.Target, "msvc")
}

// EnabledFeatures returns a copy of the enabled feature set.
func (c *Config) EnabledFeatures() feature.Set {
	return maps.Clone(c.Features)
}

// ProbeOptions supplements the environment with values from the command line
// or a config file.
type ProbeOptions struct {
	Features []string
}

// SystemVar is the variable that asks for a system-provided library.
func SystemVar(name library.Name) string { return "CARGO_" + name.Upper() + "_SYSTEM" }

// StaticVar is the variable that asks for static linking.
func StaticVar(name library.Name) string { return "CARGO_" + name.Upper() + "_STATIC" }

// FeatureVar is the variable set for an enabled build feature.
func FeatureVar(flag string) string {
	return "CARGO_FEATURE_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// Probe builds a Config for lib from lookup. It only reads.
func Probe(lookup LookupFunc, lib *library.Library, opts ProbeOptions) (*Config, error) {
	required := func(key string) (string, error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return "", &MisconfigError{Var: key}
		}
		return v, nil
	}
	isSet := func(key string) bool {
		_, ok := lookup(key)
		return ok
	}

	host, err := required(VarHost)
	if err != nil {
		return nil, err
	}
	target, err := required(VarTarget)
	if err != nil {
		return nil, err
	}
	manifestDir, err := required(VarManifestDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Library:      lib.Name,
		PreferSystem: isSet(SystemVar(lib.Name)) || isSet(FeatureVar("system")),
		ForceStatic:  isSet(StaticVar(lib.Name)) || isSet(FeatureVar("static")),
		Features:     feature.NewSet(),
		Host:         host,
		Target:       target,
		ManifestDir:  manifestDir,
	}

	for _, f := range lib.Features {
		if isSet(FeatureVar(f.Flag)) {
			cfg.Features.Add(f.Flag)
		}
	}
	for _, name := range opts.Features {
		if _, ok := lib.Feature(strings.ToLower(strings.TrimSpace(name))); !ok {
			return nil, fmt.Errorf("%s: unknown feature %q", lib.Name, name)
		}
		cfg.Features.Add(name)
	}

	if v, ok := lookup(VarTargetEnv); ok {
		cfg.TargetEnv = v
	} else {
		cfg.TargetEnv = targetEnv(target)
	}

	if v, ok := lookup(VarOutDir); ok && v != "" {
		cfg.OutDir = v
	} else {
		cfg.OutDir = filepath.Join(manifestDir, "target", "coinbuild")
	}
	return cfg, nil
}

// targetEnv extracts the environment component of a target triple:
// "x86_64-pc-windows-msvc" gives "msvc", "aarch64-apple-darwin" gives "".
func targetEnv(triple string) string {
	parts := strings.Split(triple, "-")
	if len(parts) < 4 {
		return ""
	}
	return parts[len(parts)-1]
}

// WorkDir is the per-user coinbuild cache root.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".coinbuild"), nil
}

// MetadataDir is the default location of the published metadata store.
// The directory is created with 0700 permissions.
func MetadataDir() (string, error) {
	work, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(work, "metadata")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
