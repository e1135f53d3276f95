// Package cc turns a feature resolution into a C++ compilation request and
// drives the toolchain to build a static archive from it.
package cc

import (
	"context"
	"fmt"

	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/feature"
)

// Request describes one library compilation. The slices are passed to the
// compiler in order.
type Request struct {
	Name     string   `yaml:"name"`
	Sources  []string `yaml:"sources"`
	Includes []string `yaml:"includes"`
	Defines  []string `yaml:"defines"`
	// Std is the language standard for GNU-style drivers, e.g. "c++11".
	Std string `yaml:"std,omitempty"`
	// Warnings false suppresses all compiler warnings.
	Warnings bool     `yaml:"warnings"`
	Flags    []string `yaml:"flags,omitempty"`
	// FlagsIfSupported are passed only when the compiler accepts them.
	FlagsIfSupported []string `yaml:"flags_if_supported,omitempty"`
	MSVC             bool     `yaml:"msvc"`
	OutDir           string   `yaml:"out_dir"`
	// Static is always true for source builds: the artifact is an archive.
	Static bool `yaml:"static"`
}

// NewRequest builds the request for res under cfg.
func NewRequest(res *feature.Resolution, cfg *env.Config) *Request {
	req := &Request{
		Name:     string(cfg.Library),
		Sources:  append([]string(nil), res.Sources...),
		Includes: res.Includes(),
		Defines:  res.Defines(),
		MSVC:     cfg.MSVC(),
		OutDir:   cfg.OutDir,
		Static:   true,
	}
	if req.MSVC {
		req.Warnings = true
		req.Flags = []string{"-EHsc"}
		req.FlagsIfSupported = []string{"-std:c++11"}
	} else {
		req.Std = "c++11"
	}
	return req
}

// Driver compiles a Request and returns the path of the produced artifact.
type Driver interface {
	Compile(ctx context.Context, req *Request) (artifact string, err error)
}

// CompileError is a failed toolchain invocation. Output is what the tool
// printed, unmodified.
type CompileError struct {
	Source string
	Output string
	Err    error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("compile %s: %v", e.Source, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
