// Package feature turns a set of enabled optional backends into the source
// files, include directories and capability flags of a source build.
//
// A backend's contribution is a row of the library descriptor's feature
// table; the table order is the canonical order of every output.
package feature

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/goplus/coinbuild/internal/library"
	"github.com/goplus/coinbuild/internal/metadata"
)

// Flag names one optional backend, e.g. "osiglpk".
type Flag string

// Set is a set of enabled flags. Iteration order is irrelevant to every
// result computed from it.
type Set map[Flag]struct{}

// NewSet builds a Set. Names are lowercased and trimmed; empty names are
// skipped.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add enables name.
func (s Set) Add(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" {
		s[Flag(name)] = struct{}{}
	}
}

// Has reports whether flag is enabled.
func (s Set) Has(flag string) bool {
	_, ok := s[Flag(strings.ToLower(flag))]
	return ok
}

// Names returns the flags sorted alphabetically.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for f := range s {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Policy decides how many enabled features are compiled in.
type Policy int

const (
	// Independent compiles every enabled feature.
	Independent Policy = iota
	// FirstOnly compiles only the first enabled feature in canonical order.
	FirstOnly
)

func (p Policy) String() string {
	switch p {
	case Independent:
		return "independent"
	case FirstOnly:
		return "first-only"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts "independent" (or "all") and "first-only" (or
// "exclusive"). The empty string selects Independent.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "independent", "all":
		return Independent, nil
	case "first-only", "first", "exclusive":
		return FirstOnly, nil
	}
	return 0, fmt.Errorf("unknown feature policy %q", s)
}

// DefaultDefineFormat turns a capability token into a preprocessor define.
const DefaultDefineFormat = "COIN_HAS_%s"

// Options tune Resolve.
type Options struct {
	Policy Policy
	// DefineFormat must contain exactly one %s; empty means
	// DefaultDefineFormat.
	DefineFormat string
}

// CheckDefineFormat validates a define format.
func CheckDefineFormat(format string) error {
	if strings.Count(format, "%") != 1 || strings.Count(format, "%s") != 1 {
		return fmt.Errorf("define format %q must contain exactly one %%s", format)
	}
	return nil
}

// Select returns the enabled features in canonical order, applying policy.
// dropped lists enabled features that policy excluded. Unknown flags are an
// error.
func Select(lib *library.Library, set Set, policy Policy) (enabled []library.Feature, dropped []string, err error) {
	for f := range set {
		if _, ok := lib.Feature(string(f)); !ok {
			return nil, nil, fmt.Errorf("%s: unknown feature %q", lib.Name, f)
		}
	}
	for _, f := range lib.Features {
		if !set.Has(f.Flag) {
			continue
		}
		if policy == FirstOnly && len(enabled) == 1 {
			dropped = append(dropped, f.Flag)
			continue
		}
		enabled = append(enabled, f)
	}
	return enabled, dropped, nil
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Enabled are the features compiled in, in canonical order.
	Enabled []library.Feature
	// Dropped are enabled features excluded by FirstOnly.
	Dropped []string
	// Sources are the base manifest entries followed by one file per
	// enabled feature.
	Sources []string

	own    metadata.Metadata
	merged metadata.Metadata
	format string
}

// Own is the metadata this library publishes to its dependents.
func (r *Resolution) Own() metadata.Metadata { return r.own }

// Metadata is Own followed by every companion's published metadata.
func (r *Resolution) Metadata() metadata.Metadata { return r.merged }

// Includes are the include directories handed to the compiler.
func (r *Resolution) Includes() []string { return r.merged.Includes() }

// Flags are the capability tokens handed to the compiler.
func (r *Resolution) Flags() []string { return r.merged.Flags() }

// Defines maps every flag through the define format.
func (r *Resolution) Defines() []string {
	flags := r.merged.Flags()
	defines := make([]string, len(flags))
	for i, f := range flags {
		defines[i] = fmt.Sprintf(r.format, f)
	}
	return defines
}

// SourceRoot is where a library's vendored sources live below the project
// root: <root>/<Name>/<Name>/src.
func SourceRoot(projectRoot string, lib *library.Library) string {
	name := string(lib.Name)
	return filepath.Join(projectRoot, name, name, "src")
}

// Resolve combines the base manifest with the enabled features.
// Base entries resolve under <srcRoot>/<Name>; feature entries under
// <srcRoot>/<feature dir>. companions are merged after the library's own
// metadata, unmodified.
func Resolve(lib *library.Library, srcRoot string, base []string, set Set, companions []metadata.Metadata, opts Options) (*Resolution, error) {
	format := opts.DefineFormat
	if format == "" {
		format = DefaultDefineFormat
	}
	if err := CheckDefineFormat(format); err != nil {
		return nil, err
	}

	enabled, dropped, err := Select(lib, set, opts.Policy)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Join(srcRoot, string(lib.Name))
	sources := make([]string, 0, len(base)+len(enabled))
	for _, file := range base {
		sources = append(sources, filepath.Join(baseDir, filepath.FromSlash(file)))
	}

	includes := []string{baseDir}
	flags := []string{lib.BaseFlag}
	for _, f := range enabled {
		dir := filepath.Join(srcRoot, f.Dir)
		sources = append(sources, filepath.Join(dir, filepath.FromSlash(f.Source)))
		if !slices.Contains(includes, dir) {
			includes = append(includes, dir)
		}
		flags = append(flags, f.Token)
	}

	own := metadata.New(includes, flags)
	merged := own
	for _, c := range companions {
		merged = merged.Merge(c)
	}

	return &Resolution{
		Enabled: enabled,
		Dropped: dropped,
		Sources: sources,
		own:     own,
		merged:  merged,
		format:  format,
	}, nil
}

// Tokens returns the capability tokens of features, base flag first. It is
// what a library linked from the system advertises.
func Tokens(lib *library.Library, features []library.Feature) []string {
	tokens := make([]string, 0, len(features)+1)
	tokens = append(tokens, lib.BaseFlag)
	for _, f := range features {
		tokens = append(tokens, f.Token)
	}
	return tokens
}
