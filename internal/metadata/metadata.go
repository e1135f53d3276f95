// Package metadata models the build metadata a library publishes to its
// dependents: an ordered list of include directories and an ordered list of
// capability-flag tokens.
package metadata

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Metadata is immutable once constructed.
type Metadata struct {
	includes []string
	flags    []string
}

// New copies includes and flags.
func New(includes, flags []string) Metadata {
	return Metadata{
		includes: slices.Clone(includes),
		flags:    slices.Clone(flags),
	}
}

// Includes returns the include directories in publication order.
func (m Metadata) Includes() []string { return slices.Clone(m.includes) }

// Flags returns the capability tokens in publication order.
func (m Metadata) Flags() []string { return slices.Clone(m.flags) }

// IsZero reports whether nothing was published.
func (m Metadata) IsZero() bool { return len(m.includes) == 0 && len(m.flags) == 0 }

// Merge returns m followed by other, unmodified: no reordering, no dedup.
func (m Metadata) Merge(other Metadata) Metadata {
	return Metadata{
		includes: append(slices.Clone(m.includes), other.includes...),
		flags:    append(slices.Clone(m.flags), other.flags...),
	}
}

// IncludeValue is the wire form of the include list: entries joined with
// the OS path list separator.
func (m Metadata) IncludeValue() string {
	return strings.Join(m.includes, string(os.PathListSeparator))
}

// FlagsValue is the wire form of the flag list: entries joined with ';'.
func (m Metadata) FlagsValue() string {
	return strings.Join(m.flags, ";")
}

// Parse is the inverse of IncludeValue/FlagsValue. Empty segments are dropped.
func Parse(include, flags string) Metadata {
	var m Metadata
	if include != "" {
		for _, p := range filepath.SplitList(include) {
			if p != "" {
				m.includes = append(m.includes, p)
			}
		}
	}
	for _, f := range strings.Split(flags, ";") {
		if f = strings.TrimSpace(f); f != "" {
			m.flags = append(m.flags, f)
		}
	}
	return m
}

// IncludeVar is the variable a consumer reads to get name's include list.
func IncludeVar(name string) string {
	return "DEP_" + strings.ToUpper(name) + "_INCLUDE"
}

// FlagsVar is the variable a consumer reads to get name's capability flags.
func FlagsVar(name string) string {
	return "DEP_" + strings.ToUpper(name) + "_COINFLAGS"
}

// FromEnv reads the metadata name published to its dependents. Absent
// variables yield empty metadata.
func FromEnv(lookup func(string) (string, bool), name string) Metadata {
	include, _ := lookup(IncludeVar(name))
	flags, _ := lookup(FlagsVar(name))
	return Parse(include, flags)
}
