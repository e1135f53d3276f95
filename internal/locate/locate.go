// Package locate finds an already-installed copy of a library with the
// discovery mechanism of the target platform: vcpkg for MSVC targets,
// pkg-config elsewhere, nothing on platforms known to lack one.
package locate

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goplus/coinbuild/internal/directive"
	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/library"
	"github.com/goplus/coinbuild/internal/logger"
)

// LinkMode is how the located library is linked.
type LinkMode int

const (
	Dynamic LinkMode = iota
	Static
)

// ModeFor returns Static when static linking is forced, Dynamic otherwise.
func ModeFor(forceStatic bool) LinkMode {
	if forceStatic {
		return Static
	}
	return Dynamic
}

// String returns the link kind used in link directives.
func (m LinkMode) String() string {
	if m == Static {
		return "static"
	}
	return "dylib"
}

// Request is one discovery query.
type Request struct {
	Name       string
	Target     string
	Static     bool
	MinVersion string
	// Env holds KEY=VALUE pairs applied to the probe only.
	Env []string
}

// Result is what a successful probe reports.
type Result struct {
	Includes   []string
	LinkSearch []string
	Libs       []string
	Version    string
}

// Prober runs one discovery mechanism. It must not emit directives.
type Prober interface {
	Probe(ctx context.Context, req Request) (*Result, error)
}

// Found is a located system library.
type Found struct {
	Includes []string
	LinkMode LinkMode
	Method   string
	Version  string
}

// Options configure a Locator.
type Options struct {
	// Excluded are triple patterns without discovery; nil selects
	// DefaultExcluded.
	Excluded []string
	// DynamicHint sets VCPKGRS_DYNAMIC for non-static vcpkg probes.
	DynamicHint bool
	// PkgConfig and Vcpkg replace the default probers.
	PkgConfig Prober
	Vcpkg     Prober
	// Lookup reads the environment for the default probers; nil means
	// os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Locator runs the platform-appropriate probe.
type Locator struct {
	w           *directive.Writer
	platforms   *Platforms
	pkgConfig   Prober
	vcpkg       Prober
	dynamicHint bool
}

// New returns a Locator emitting its link directives to w.
func New(w *directive.Writer, opts Options) (*Locator, error) {
	platforms, err := CompilePlatforms(opts.Excluded)
	if err != nil {
		return nil, err
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	l := &Locator{
		w:           w,
		platforms:   platforms,
		pkgConfig:   opts.PkgConfig,
		vcpkg:       opts.Vcpkg,
		dynamicHint: opts.DynamicHint,
	}
	if l.pkgConfig == nil {
		l.pkgConfig = NewPkgConfig(lookup)
	}
	if l.vcpkg == nil {
		l.vcpkg = NewVcpkg(lookup)
	}
	return l, nil
}

// Locate looks for lib on the system. It returns nil, nil when the library
// is not found or discovery is unsupported; link directives are emitted only
// when it is found.
func (l *Locator) Locate(ctx context.Context, lib *library.Library, cfg *env.Config) (*Found, error) {
	log := logger.FromContext(ctx).WithField("lib", lib.Name)
	mode := ModeFor(cfg.ForceStatic)

	if cfg.MSVC() {
		req := Request{Name: string(lib.Name), Target: cfg.Target, Static: cfg.ForceStatic}
		if !cfg.ForceStatic && l.dynamicHint {
			req.Env = append(req.Env, DynamicHintVar+"=1")
		}
		res, err := l.vcpkg.Probe(ctx, req)
		if err != nil {
			log.WithError(err).Info("vcpkg: library not found")
			return nil, nil
		}
		for _, dir := range res.LinkSearch {
			l.w.LinkSearch("native", dir)
		}
		l.w.LinkLib(mode.String(), string(lib.Name))
		return &Found{Includes: res.Includes, LinkMode: mode, Method: "vcpkg", Version: res.Version}, l.w.Err()
	}

	if l.platforms.Excluded(cfg.Host, cfg.Target) {
		log.WithField("target", cfg.Target).Debug("system discovery unsupported on this platform")
		return nil, nil
	}

	res, err := l.pkgConfig.Probe(ctx, Request{
		Name:       lib.PkgConfigName(),
		Target:     cfg.Target,
		Static:     cfg.ForceStatic,
		MinVersion: lib.MinVersion,
	})
	if err != nil {
		log.WithError(err).Info("pkg-config: library not found")
		return nil, nil
	}
	for _, dir := range res.LinkSearch {
		l.w.LinkSearch("native", dir)
	}
	for _, name := range res.Libs {
		kind := mode.String()
		if mode == Static && !hasStaticArchive(res.LinkSearch, name) {
			// System libraries such as libm only ship shared objects.
			kind = ""
		}
		l.w.LinkLib(kind, name)
	}
	return &Found{Includes: res.Includes, LinkMode: mode, Method: "pkg-config", Version: res.Version}, l.w.Err()
}

// Excluded reports whether discovery is unsupported for cfg.
func (l *Locator) Excluded(cfg *env.Config) bool {
	return !cfg.MSVC() && l.platforms.Excluded(cfg.Host, cfg.Target)
}

func hasStaticArchive(dirs []string, name string) bool {
	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(dir, "lib"+name+".a")); err == nil {
			return true
		}
	}
	return false
}
