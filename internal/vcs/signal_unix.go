//go:build unix

package vcs

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// signalOf reports the signal that terminated a process, if any.
func signalOf(ps *os.ProcessState) (string, bool) {
	if ps == nil {
		return "", false
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return "", false
	}
	sig := unix.Signal(ws.Signal())
	if name := unix.SignalName(sig); name != "" {
		return name, true
	}
	return sig.String(), true
}
