// Copyright 2024 The coinbuild Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cli/safeexec"
)

// Updater brings the nested repositories (submodules) of a checkout up to
// date.
type Updater interface {
	// UpdateSubmodules initializes and updates every submodule of the
	// repository rooted at dir, recursively. Failures are *UpdateError.
	UpdateSubmodules(ctx context.Context, dir string) error
}

// Cause classifies an UpdateError.
type Cause int

const (
	// StartFailed means the update tool could not be started at all.
	StartFailed Cause = iota
	// Exited means the tool ran and exited with a nonzero status.
	Exited
	// Killed means the tool was terminated by a signal.
	Killed
	// Failed means an in-process update returned an error.
	Failed
)

// UpdateError is returned when a submodule update does not complete.
type UpdateError struct {
	Cause  Cause
	Code   int    // exit status, for Exited
	Signal string // signal name, for Killed
	Output string // trimmed stderr of the tool, if any
	Err    error
}

func (e *UpdateError) Error() string {
	var msg string
	switch e.Cause {
	case StartFailed:
		msg = fmt.Sprintf("submodule update failed to start: %v", e.Err)
	case Exited:
		msg = fmt.Sprintf("submodule update exited with status %d", e.Code)
	case Killed:
		msg = "submodule update was killed"
		if e.Signal != "" {
			msg += " by " + e.Signal
		}
	default:
		msg = fmt.Sprintf("submodule update failed: %v", e.Err)
	}
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *UpdateError) Unwrap() error { return e.Err }

// gitVCS implements Updater using the git executable.
type gitVCS struct {
	git      string
	lookPath func(string) (string, error)
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a git-backed Updater.
func NewGitVCS(opts ...GitOption) Updater {
	g := &gitVCS{git: "git", lookPath: safeexec.LookPath}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) UpdateSubmodules(ctx context.Context, dir string) error {
	return g.run(ctx, dir, "submodule", "update", "--init", "--recursive")
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	bin, err := g.lookPath(g.git)
	if err != nil {
		return &UpdateError{Cause: StartFailed, Err: err}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &UpdateError{Cause: StartFailed, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		return classify(err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// classify turns an error from cmd.Wait into an *UpdateError.
func classify(err error, output string) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return &UpdateError{Cause: Failed, Output: output, Err: err}
	}
	if sig, ok := signalOf(exitErr.ProcessState); ok {
		return &UpdateError{Cause: Killed, Signal: sig, Output: output, Err: err}
	}
	return &UpdateError{Cause: Exited, Code: exitErr.ExitCode(), Output: output, Err: err}
}
