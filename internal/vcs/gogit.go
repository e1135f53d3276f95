// Copyright 2024 The coinbuild Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"

	"github.com/go-git/go-git/v5"
)

// goGit implements Updater in-process with go-git, for hosts without a git
// executable.
type goGit struct{}

// NewGoGit creates an in-process Updater.
func NewGoGit() Updater {
	return goGit{}
}

func (goGit) UpdateSubmodules(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return &UpdateError{Cause: StartFailed, Err: err}
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &UpdateError{Cause: StartFailed, Err: err}
	}
	subs, err := wt.Submodules()
	if err != nil {
		return &UpdateError{Cause: Failed, Err: err}
	}
	err = subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
	if err != nil {
		return &UpdateError{Cause: Failed, Err: err}
	}
	return nil
}
