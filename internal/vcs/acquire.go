// Copyright 2024 The coinbuild Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrIncompleteSource is returned when an update succeeded but the marker
// file is still missing.
var ErrIncompleteSource = errors.New("vendored source incomplete after update")

// Acquirer makes sure vendored sources are checked out before a build.
type Acquirer struct {
	updater Updater
}

// NewAcquirer returns an Acquirer that fetches missing sources with u.
func NewAcquirer(u Updater) *Acquirer {
	return &Acquirer{updater: u}
}

// Ensure checks for root/marker and runs one submodule update rooted at root
// when it is absent. It never retries. updated reports whether an update ran.
func (a *Acquirer) Ensure(ctx context.Context, root, marker string) (updated bool, err error) {
	path := filepath.Join(root, filepath.FromSlash(marker))
	if present(path) {
		return false, nil
	}
	if err := a.updater.UpdateSubmodules(ctx, root); err != nil {
		return true, err
	}
	if !present(path) {
		return true, fmt.Errorf("%w: %s", ErrIncompleteSource, path)
	}
	return true, nil
}

// Backend names accepted by NewUpdater.
const (
	BackendExec  = "exec"
	BackendGoGit = "go-git"
)

// NewUpdater returns the Updater for backend; the empty string selects
// BackendExec.
func NewUpdater(backend string) (Updater, error) {
	switch strings.ToLower(backend) {
	case "", BackendExec, "git":
		return NewGitVCS(), nil
	case BackendGoGit, "gogit":
		return NewGoGit(), nil
	}
	return nil, fmt.Errorf("unknown acquisition backend %q", backend)
}

func present(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
