package cc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cli/safeexec"
	"github.com/dustin/go-humanize"
	"github.com/google/shlex"
	"golang.org/x/sync/errgroup"

	"github.com/goplus/coinbuild/internal/directive"
	"github.com/goplus/coinbuild/internal/logger"
)

// ExecDriver compiles with the system toolchain. CXX, CXXFLAGS and AR are
// read through Lookup and split like a shell would.
type ExecDriver struct {
	// Jobs bounds the number of concurrent compiler processes; values below
	// one mean one.
	Jobs int
	// Lookup reads the toolchain variables; nil means os.LookupEnv.
	Lookup func(string) (string, bool)

	w *directive.Writer

	mu        sync.Mutex
	supported map[string]bool
}

// NewExecDriver returns a driver that reports link directives to w.
func NewExecDriver(w *directive.Writer, jobs int) *ExecDriver {
	return &ExecDriver{Jobs: jobs, w: w}
}

type toolchain struct {
	cxx      []string
	cxxflags []string
	ar       []string
}

func (d *ExecDriver) lookup(key string) string {
	lookup := d.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// tool splits the value of key, or def when unset, and resolves the
// executable.
func (d *ExecDriver) tool(key string, def ...string) ([]string, error) {
	argv := def
	if v := d.lookup(key); v != "" {
		words, err := shlex.Split(v)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		if len(words) > 0 {
			argv = words
		}
	}
	bin, err := safeexec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return append([]string{bin}, argv[1:]...), nil
}

func (d *ExecDriver) toolchain(req *Request) (*toolchain, error) {
	tc := &toolchain{}
	var err error
	if req.MSVC {
		tc.cxx, err = d.tool("CXX", "cl.exe")
	} else {
		tc.cxx, err = d.tool("CXX", "c++")
	}
	if err != nil {
		return nil, err
	}
	if req.MSVC {
		tc.ar, err = d.tool("AR", "lib.exe")
	} else {
		tc.ar, err = d.tool("AR", "ar")
	}
	if err != nil {
		return nil, err
	}
	if v := d.lookup("CXXFLAGS"); v != "" {
		if tc.cxxflags, err = shlex.Split(v); err != nil {
			return nil, fmt.Errorf("parse CXXFLAGS: %w", err)
		}
	}
	return tc, nil
}

// Compile builds every source into an object under req.OutDir and archives
// them into a static library. On success it emits the directives that link
// the archive.
func (d *ExecDriver) Compile(ctx context.Context, req *Request) (string, error) {
	log := logger.FromContext(ctx).WithField("lib", req.Name)

	tc, err := d.toolchain(req)
	if err != nil {
		return "", err
	}
	objDir := filepath.Join(req.OutDir, "obj")
	if err := os.MkdirAll(objDir, 0o755); err != nil {
		return "", err
	}

	var extra []string
	for _, flag := range req.FlagsIfSupported {
		if d.flagSupported(ctx, tc, req, flag) {
			extra = append(extra, flag)
		} else {
			log.WithField("flag", flag).Debug("compiler does not support flag")
		}
	}

	jobs := d.Jobs
	if jobs < 1 {
		jobs = 1
	}
	objects := make([]string, len(req.Sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, src := range req.Sources {
		src := src
		obj :=objectPath(objDir, i, src, req.MSVC)
		objects[i] = obj
		g.Go(func() error {
			args := compileArgs(req, tc.cxxflags, extra, src, obj)
			log.WithField("source", src).Debug("compiling")
			if out, err := run(gctx, tc.cxx[0], append(tc.cxx[1:len(tc.cxx):len(tc.cxx)], args...)); err != nil {
				return &CompileError{Source: src, Output: out, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	artifact := ArtifactPath(req)
	// ar appends to an existing archive.
	if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	args := archiveArgs(req, artifact, objects)
	if out, err := run(ctx, tc.ar[0], append(tc.ar[1:len(tc.ar):len(tc.ar)], args...)); err != nil {
		return "", &CompileError{Source: artifact, Output: out, Err: err}
	}

	fi, err := os.Stat(artifact)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", req.Name, err)
	}
	log.WithField("size", humanize.Bytes(uint64(fi.Size()))).Infof("built %s", filepath.Base(artifact))

	d.w.LinkSearch("native", req.OutDir)
	d.w.LinkLib("static", req.Name)
	return artifact, d.w.Err()
}

// flagSupported compiles an empty translation unit with flag. Results are
// cached per compiler.
func (d *ExecDriver) flagSupported(ctx context.Context, tc *toolchain, req *Request, flag string) bool {
	key := tc.cxx[0] + "\x00" + flag
	d.mu.Lock()
	ok, cached := d.supported[key]
	d.mu.Unlock()
	if cached {
		return ok
	}

	dir := filepath.Join(req.OutDir, "flag_check")
	src := filepath.Join(dir, "flag_check.cpp")
	obj := objectPath(dir, 0, src, req.MSVC)
	ok = os.MkdirAll(dir, 0o755) == nil && os.WriteFile(src, nil, 0o644) == nil
	if ok {
		args := append(append([]string(nil), tc.cxx[1:]...), flag)
		args = append(args, outputArgs(req.MSVC, src, obj)...)
		_, err := run(ctx, tc.cxx[0], args)
		ok = err == nil
	}

	d.mu.Lock()
	if d.supported == nil {
		d.supported = make(map[string]bool)
	}
	d.supported[key] = ok
	d.mu.Unlock()
	return ok
}

// ArtifactPath is where Compile writes the archive for req.
func ArtifactPath(req *Request) string {
	if req.MSVC {
		return filepath.Join(req.OutDir, req.Name+".lib")
	}
	return filepath.Join(req.OutDir, "lib"+req.Name+".a")
}

// objectPath prefixes the index so equal base names in different
// directories do not collide.
func objectPath(dir string, i int, src string, msvc bool) string {
	ext := ".o"
	if msvc {
		ext = ".obj"
	}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, fmt.Sprintf("%03d-%s%s", i, stem, ext))
}

// compileArgs returns the compiler arguments for one source, after the
// compiler's own words from CXX.
func compileArgs(req *Request, cxxflags, extra []string, src, obj string) []string {
	var args []string
	if req.MSVC {
		args = append(args, "-nologo")
	}
	if req.Std != "" {
		args = append(args, "-std="+req.Std)
	}
	if !req.Warnings {
		args = append(args, "-w")
	}
	args = append(args, req.Flags...)
	args = append(args, extra...)
	args = append(args, cxxflags...)
	for _, dir := range req.Includes {
		args = append(args, "-I"+dir)
	}
	for _, def := range req.Defines {
		args = append(args, "-D"+def)
	}
	return append(args, outputArgs(req.MSVC, src, obj)...)
}

func outputArgs(msvc bool, src, obj string) []string {
	if msvc {
		return []string{"-c", src, "-Fo" + obj}
	}
	return []string{"-c", src, "-o", obj}
}

func archiveArgs(req *Request, artifact string, objects []string) []string {
	var args []string
	if req.MSVC {
		args = []string{"-nologo", "-out:" + artifact}
	} else {
		args = []string{"crs", artifact}
	}
	return append(args, objects...)
}

func run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
