//go:build !unix

package vcs

import "os"

func signalOf(ps *os.ProcessState) (string, bool) {
	return "", false
}
