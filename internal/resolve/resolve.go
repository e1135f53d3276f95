// Package resolve is the build-time resolution pipeline: link a system copy
// of the library when asked and available, otherwise fetch, configure and
// compile the vendored sources, then publish the result to dependents.
package resolve

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/goplus/coinbuild/internal/cc"
	"github.com/goplus/coinbuild/internal/directive"
	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/feature"
	"github.com/goplus/coinbuild/internal/library"
	"github.com/goplus/coinbuild/internal/locate"
	"github.com/goplus/coinbuild/internal/logger"
	"github.com/goplus/coinbuild/internal/metadata"
)

// Kind tells how the library ended up being provided.
type Kind int

const (
	SystemLinked Kind = iota + 1
	SourceBuilt
)

func (k Kind) String() string {
	switch k {
	case SystemLinked:
		return "system"
	case SourceBuilt:
		return "source"
	}
	return "unknown"
}

// Outcome is the final decision of one resolution. Includes and Flags are
// what was published to dependents.
type Outcome struct {
	Kind     Kind
	Includes []string
	Flags    []string
	LinkMode locate.LinkMode
	// Artifact is the compiled archive; empty for SystemLinked.
	Artifact string
	// Dropped lists enabled features left out by the selection policy.
	Dropped []string
}

// Locator finds a system copy of a library.
type Locator interface {
	Locate(ctx context.Context, lib *library.Library, cfg *env.Config) (*locate.Found, error)
}

// Acquirer makes sure the vendored sources are checked out.
type Acquirer interface {
	Ensure(ctx context.Context, root, marker string) (updated bool, err error)
}

// Resolver runs the pipeline for one library. Every collaborator is
// required except Store and Lookup.
type Resolver struct {
	Lib      *library.Library
	Writer   *directive.Writer
	Locator  Locator
	Acquirer Acquirer
	Driver   cc.Driver
	Options  feature.Options

	// Lookup reads companion metadata published by dependencies; nil means
	// os.LookupEnv.
	Lookup env.LookupFunc
	// Store, when set, receives the published metadata and backs companion
	// metadata missing from the environment.
	Store *metadata.Store
}

// Plan is the source build of a library as it would be compiled.
type Plan struct {
	Resolution *feature.Resolution
	Request    *cc.Request
}

// Plan resolves features and companions for cfg without touching the
// toolchain, the sources or the directive stream.
func (r *Resolver) Plan(ctx context.Context, cfg *env.Config) (*Plan, error) {
	base, err := r.Lib.ReadManifest()
	if err != nil {
		return nil, err
	}
	res, err := feature.Resolve(r.Lib, feature.SourceRoot(cfg.ManifestDir, r.Lib), base,
		cfg.EnabledFeatures(), r.companions(ctx), r.Options)
	if err != nil {
		return nil, err
	}
	return &Plan{Resolution: res, Request: cc.NewRequest(res, cfg)}, nil
}

func (r *Resolver) companions(ctx context.Context) []metadata.Metadata {
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	log := logger.FromContext(ctx)

	var out []metadata.Metadata
	for _, name := range r.Lib.Companions {
		m := metadata.FromEnv(lookup, string(name))
		if m.IsZero() && r.Store != nil {
			if stored, err := r.Store.Load(string(name)); err == nil {
				log.WithField("companion", name).Debug("companion metadata loaded from store")
				m = stored
			}
		}
		if m.IsZero() {
			log.WithField("companion", name).Debug("no companion metadata published")
		}
		out = append(out, m)
	}
	return out
}

// Run resolves the library for cfg and publishes its metadata exactly once.
func (r *Resolver) Run(ctx context.Context, cfg *env.Config) (*Outcome, error) {
	log := logger.FromContext(ctx).WithField("lib", r.Lib.Name)

	w := r.Writer
	w.RerunIfChanged(r.Lib.Manifest)
	w.RerunIfEnvChanged(env.StaticVar(r.Lib.Name))
	w.RerunIfEnvChanged(env.SystemVar(r.Lib.Name))

	if cfg.PreferSystem {
		out, err := r.linkSystem(ctx, cfg)
		if err != nil || out != nil {
			return out, err
		}
		log.Info("no usable system library, building from source")
	}

	updated, err := r.Acquirer.Ensure(ctx, cfg.ManifestDir, r.Lib.Marker)
	if err != nil {
		return nil, err
	}
	if updated {
		log.Info("vendored sources checked out")
	}

	plan, err := r.Plan(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res := plan.Resolution
	r.warnDropped(ctx, res.Dropped)

	artifact, err := r.Driver.Compile(ctx, plan.Request)
	if err != nil {
		return nil, err
	}

	own := res.Own()
	if err := r.publish(own); err != nil {
		return nil, err
	}
	return &Outcome{
		Kind:     SourceBuilt,
		Includes: own.Includes(),
		Flags:    own.Flags(),
		LinkMode: locate.Static,
		Artifact: artifact,
		Dropped:  res.Dropped,
	}, nil
}

// linkSystem returns nil, nil when no system copy was found.
func (r *Resolver) linkSystem(ctx context.Context, cfg *env.Config) (*Outcome, error) {
	found, err := r.Locator.Locate(ctx, r.Lib, cfg)
	if err != nil || found == nil {
		return nil, err
	}

	enabled, dropped, err := feature.Select(r.Lib, cfg.EnabledFeatures(), r.Options.Policy)
	if err != nil {
		return nil, err
	}
	r.warnDropped(ctx, dropped)
	for _, f := range enabled {
		r.Writer.LinkLib(found.LinkMode.String(), f.Link)
	}

	m := metadata.New(found.Includes, feature.Tokens(r.Lib, enabled))
	if err := r.publish(m); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"lib":     r.Lib.Name,
		"method":  found.Method,
		"version": found.Version,
		"mode":    found.LinkMode,
	}).Info("linked system library")

	return &Outcome{
		Kind:     SystemLinked,
		Includes: m.Includes(),
		Flags:    m.Flags(),
		LinkMode: found.LinkMode,
		Dropped:  dropped,
	}, nil
}

// warnDropped reports features left out by the selection policy to the log
// and the build output.
func (r *Resolver) warnDropped(ctx context.Context, dropped []string) {
	if len(dropped) == 0 {
		return
	}
	msg := fmt.Sprintf("%s: only one backend is compiled under the %s policy, ignoring %s",
		r.Lib.Name, r.Options.Policy, strings.Join(dropped, ", "))
	logger.FromContext(ctx).WithField("lib", r.Lib.Name).Warn(msg)
	r.Writer.Warning(msg)
}

func (r *Resolver) publish(m metadata.Metadata) error {
	if err := r.Writer.Publish(m); err != nil {
		return fmt.Errorf("publish %s metadata: %w", r.Lib.Name, err)
	}
	if r.Store != nil {
		if err := r.Store.Save(string(r.Lib.Name), m); err != nil {
			return fmt.Errorf("save %s metadata: %w", r.Lib.Name, err)
		}
	}
	return nil
}
