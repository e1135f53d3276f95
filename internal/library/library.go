// Package library describes a buildable native library: its name, where its
// vendored sources live, which optional backends it offers and what it links
// against. Descriptors are TOML files; the built-in ones are embedded from
// the libs directory.
package library

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/goplus/coinbuild/internal/manifest"
	"github.com/goplus/coinbuild/libs"
)

// ErrUnknown is returned by Builtin for a library without an embedded
// descriptor.
var ErrUnknown = errors.New("unknown library")

// Name is the canonical identity of a library, e.g. "Osi".
type Name string

// Lower is the form used in file names and package-metadata queries.
func (n Name) Lower() string { return strings.ToLower(string(n)) }

// Upper is the form used in environment variable names.
func (n Name) Upper() string { return strings.ToUpper(string(n)) }

func (n Name) String() string { return string(n) }

// Feature is one optional backend. Every enabled feature contributes exactly
// one source file, one include directory and one capability token.
type Feature struct {
	Flag   string `toml:"flag"`
	Dir    string `toml:"dir"`
	Source string `toml:"source"`
	Token  string `toml:"token"`
	// Link is the library linked for this backend when the system copy is used.
	Link string `toml:"link"`
}

// Library is a parsed descriptor.
type Library struct {
	Name Name `toml:"name"`
	// PkgConfig overrides the package queried on Unix; defaults to Name.Lower().
	PkgConfig string `toml:"pkg_config"`
	// MinVersion is the lowest acceptable system version, if any.
	MinVersion string `toml:"min_version"`
	// Marker is a file, relative to the project root, that only exists once
	// the vendored sources are checked out.
	Marker   string `toml:"marker"`
	Manifest string `toml:"manifest"`
	BaseFlag string `toml:"base_flag"`
	// Companions publish metadata that is merged into this library's build.
	Companions []Name `toml:"companions"`
	// Features is the canonical feature order.
	Features []Feature `toml:"feature"`

	fsys fs.FS
}

// Parse decodes and validates a descriptor. fsys is where the manifest named
// by the descriptor is read from.
func Parse(data []byte, fsys fs.FS) (*Library, error) {
	var lib Library
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&lib); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	if err := lib.validate(); err != nil {
		return nil, err
	}
	lib.fsys = fsys
	return &lib, nil
}

// Load reads a descriptor from disk. The manifest is resolved relative to the
// descriptor's directory.
func Load(file string) (*Library, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	lib, err := Parse(data, os.DirFS(filepath.Dir(file)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return lib, nil
}

// Builtin returns the embedded descriptor for name (case-insensitive).
func Builtin(name string) (*Library, error) {
	lower := strings.ToLower(name)
	data, err := fs.ReadFile(libs.FS, path.Join(lower, lower+".toml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
		}
		return nil, err
	}
	sub, err := fs.Sub(libs.FS, lower)
	if err != nil {
		return nil, err
	}
	return Parse(data, sub)
}

func (l *Library) validate() error {
	if l.Name == "" {
		return errors.New("descriptor: name is required")
	}
	if l.Marker == "" {
		return fmt.Errorf("descriptor %s: marker is required", l.Name)
	}
	if l.Manifest == "" {
		return fmt.Errorf("descriptor %s: manifest is required", l.Name)
	}
	if l.BaseFlag == "" {
		l.BaseFlag = l.Name.Upper()
	}
	flags := make(map[string]bool, len(l.Features))
	tokens := make(map[string]bool, len(l.Features))
	for i, f := range l.Features {
		if f.Flag == "" || f.Dir == "" || f.Source == "" || f.Token == "" {
			return fmt.Errorf("descriptor %s: feature #%d is incomplete", l.Name, i+1)
		}
		// Enabled-feature sets are case-insensitive and keep flags lowercase.
		f.Flag = strings.ToLower(f.Flag)
		l.Features[i].Flag = f.Flag
		if flags[f.Flag] {
			return fmt.Errorf("descriptor %s: duplicate feature %q", l.Name, f.Flag)
		}
		if tokens[f.Token] {
			return fmt.Errorf("descriptor %s: duplicate token %q", l.Name, f.Token)
		}
		flags[f.Flag] = true
		tokens[f.Token] = true
		if l.Features[i].Link == "" {
			l.Features[i].Link = f.Dir
		}
	}
	return nil
}

// PkgConfigName is the package name queried through pkg-config.
func (l *Library) PkgConfigName() string {
	if l.PkgConfig != "" {
		return l.PkgConfig
	}
	return l.Name.Lower()
}

// Feature looks up a feature by flag, ignoring case.
func (l *Library) Feature(flag string) (Feature, bool) {
	for _, f := range l.Features {
		if strings.EqualFold(f.Flag, flag) {
			return f, true
		}
	}
	return Feature{}, false
}

// ReadManifest returns the base source list in manifest order.
func (l *Library) ReadManifest() ([]string, error) {
	if l.fsys == nil {
		return nil, fmt.Errorf("descriptor %s: no manifest source", l.Name)
	}
	return manifest.ReadFile(l.fsys, l.Manifest)
}
