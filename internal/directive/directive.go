// Package directive writes the line protocol a build script uses to talk to
// the enclosing build system: one "cargo:<key>=<value>" line per directive.
package directive

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goplus/coinbuild/internal/metadata"
)

// ErrAlreadyPublished is returned when metadata is published a second time
// in one invocation.
var ErrAlreadyPublished = errors.New("metadata already published")

const prefix = "cargo:"

// Directive keys.
const (
	KeyRerunIfChanged    = "rerun-if-changed"
	KeyRerunIfEnvChanged = "rerun-if-env-changed"
	KeyLinkLib           = "rustc-link-lib"
	KeyLinkSearch        = "rustc-link-search"
	KeyInclude           = "include"
	KeyCoinFlags         = "coinflags"
	KeyWarning           = "warning"
)

// Writer emits directives. The first write error is sticky: later writes are
// dropped and Err reports it.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	err       error
	published bool
}

// NewWriter returns a Writer on w, usually os.Stdout.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit writes a single directive. Newlines in value are not allowed by the
// protocol and are replaced by spaces.
func (w *Writer) Emit(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit(key, value)
}

func (w *Writer) emit(key, value string) {
	if w.err != nil {
		return
	}
	value = strings.ReplaceAll(value, "\n", " ")
	_, w.err = fmt.Fprintf(w.w, "%s%s=%s\n", prefix, key, value)
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// RerunIfChanged asks for a re-run when path changes.
func (w *Writer) RerunIfChanged(path string) { w.Emit(KeyRerunIfChanged, path) }

// RerunIfEnvChanged asks for a re-run when the named variable changes.
func (w *Writer) RerunIfEnvChanged(name string) { w.Emit(KeyRerunIfEnvChanged, name) }

// LinkLib links name. kind is "static", "dylib" or empty to let the linker
// decide.
func (w *Writer) LinkLib(kind, name string) {
	if kind == "" {
		w.Emit(KeyLinkLib, name)
		return
	}
	w.Emit(KeyLinkLib, kind+"="+name)
}

// LinkSearch adds dir to the library search path. kind is usually "native".
func (w *Writer) LinkSearch(kind, dir string) {
	if kind == "" {
		w.Emit(KeyLinkSearch, dir)
		return
	}
	w.Emit(KeyLinkSearch, kind+"="+dir)
}

// Warning surfaces msg in the build system's output.
func (w *Writer) Warning(msg string) { w.Emit(KeyWarning, msg) }

// Publish emits m in the format dependents consume through
// metadata.FromEnv. It may be called once per Writer.
func (w *Writer) Publish(m metadata.Metadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.published {
		return ErrAlreadyPublished
	}
	w.published = true
	w.emit(KeyInclude, m.IncludeValue())
	w.emit(KeyCoinFlags, m.FlagsValue())
	return w.err
}

// Published reports whether Publish has been called.
func (w *Writer) Published() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.published
}
