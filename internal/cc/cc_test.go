package cc

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/goplus/coinbuild/internal/directive"
	"github.com/goplus/coinbuild/internal/env"
	"github.com/goplus/coinbuild/internal/feature"
	"github.com/goplus/coinbuild/internal/library"
	"github.com/goplus/coinbuild/internal/metadata"
)

func resolution(t *testing.T, flags ...string) *feature.Resolution {
	t.Helper()
	lib, err := library.Builtin("Osi")
	if err != nil {
		t.Fatal(err)
	}
	res, err := feature.Resolve(lib, "/src", []string{"OsiAuxInfo.cpp"}, feature.NewSet(flags...), []metadata.Metadata{
		metadata.New([]string{"/coinutils/include"}, []string{"COINUTILS"}),
	}, feature.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestNewRequest(t *testing.T) {
	res := resolution(t, "osiglpk")

	gnu := NewRequest(res, &env.Config{Library: "Osi", Target: "x86_64-unknown-linux-gnu", OutDir: "/out"})
	want := &Request{
		Name: "Osi",
		Sources: []string{
			filepath.Join("/src", "Osi", "OsiAuxInfo.cpp"),
			filepath.Join("/src", "OsiGlpk", "OsiGlpkSolverInterface.cpp"),
		},
		Includes: []string{filepath.Join("/src", "Osi"), filepath.Join("/src", "OsiGlpk"), "/coinutils/include"},
		Defines:  []string{"COIN_HAS_OSI", "COIN_HAS_OSIGLPK", "COIN_HAS_COINUTILS"},
		Std:      "c++11",
		OutDir:   "/out",
		Static:   true,
	}
	if !reflect.DeepEqual(gnu, want) {
		t.Errorf("NewRequest(gnu) = %+v\nwant %+v", gnu, want)
	}

	msvc := NewRequest(res, &env.Config{Library: "Osi", Target: "x86_64-pc-windows-msvc", TargetEnv: "msvc", OutDir: "/out"})
	if !msvc.MSVC || !msvc.Warnings || msvc.Std != "" {
		t.Errorf("NewRequest(msvc) = %+v", msvc)
	}
	if !reflect.DeepEqual(msvc.Flags, []string{"-EHsc"}) || !reflect.DeepEqual(msvc.FlagsIfSupported, []string{"-std:c++11"}) {
		t.Errorf("msvc flags = %v / %v", msvc.Flags, msvc.FlagsIfSupported)
	}
}

func TestCompileArgs(t *testing.T) {
	req := &Request{
		Includes: []string{"/a", "/b"},
		Defines:  []string{"COIN_HAS_OSI", "COIN_HAS_OSICPX"},
		Std:      "c++11",
	}
	got := compileArgs(req, []string{"-O2"}, nil, "x.cpp", "x.o")
	want := []string{"-std=c++11", "-w", "-O2", "-I/a", "-I/b", "-DCOIN_HAS_OSI", "-DCOIN_HAS_OSICPX", "-c", "x.cpp", "-o", "x.o"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("compileArgs(gnu) = %v\nwant %v", got, want)
	}

	req = &Request{MSVC: true, Warnings: true, Flags: []string{"-EHsc"}, Defines: []string{"COIN_HAS_OSI"}}
	got = compileArgs(req, nil, []string{"-std:c++11"}, "x.cpp", "x.obj")
	want = []string{"-nologo", "-EHsc", "-std:c++11", "-DCOIN_HAS_OSI", "-c", "x.cpp", "-Fox.obj"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("compileArgs(msvc) = %v\nwant %v", got, want)
	}
}

func TestArtifactPath(t *testing.T) {
	if got := ArtifactPath(&Request{Name: "Osi", OutDir: "out"}); got != filepath.Join("out", "libOsi.a") {
		t.Errorf("ArtifactPath(gnu) = %s", got)
	}
	if got := ArtifactPath(&Request{Name: "Osi", OutDir: "out", MSVC: true}); got != filepath.Join("out", "Osi.lib") {
		t.Errorf("ArtifactPath(msvc) = %s", got)
	}
}

func TestObjectPathUnique(t *testing.T) {
	a := objectPath("obj", 0, "/x/Osi/Foo.cpp", false)
	b := objectPath("obj", 1, "/x/OsiCpx/Foo.cpp", false)
	if a == b {
		t.Errorf("objectPath collision: %s", a)
	}
}

const fakeCompiler = `#!/bin/sh
out=
prev=
for a in "$@"; do
  case "$a" in
    -funsupported) echo "unknown argument: $a" >&2; exit 1 ;;
  esac
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
for a in "$@"; do
  case "$a" in
    *broken.cpp) echo "broken.cpp:1:1: error: expected unqualified-id" >&2; exit 1 ;;
  esac
done
echo "$@" >> "$(dirname "$0")/cxx.log"
echo "$@" > "$out"
`

const fakeArchiver = `#!/bin/sh
# $1 is the operation, $2 the archive
archive="$2"
shift 2
cat "$@" > "$archive"
`

func toolchainEnv(t *testing.T) func(string) (string, bool) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	dir := t.TempDir()
	cxx := filepath.Join(dir, "fake-cxx")
	ar := filepath.Join(dir, "fake-ar")
	if err := os.WriteFile(cxx, []byte(fakeCompiler), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ar, []byte(fakeArchiver), 0o755); err != nil {
		t.Fatal(err)
	}
	vars := map[string]string{
		"CXX":      cxx + " --driver-mode=g++",
		"CXXFLAGS": "-O2 -g",
		"AR":       ar,
	}
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestExecDriverCompile(t *testing.T) {
	lookup := toolchainEnv(t)
	out := t.TempDir()

	var buf bytes.Buffer
	d := NewExecDriver(directive.NewWriter(&buf), 2)
	d.Lookup = lookup

	req := &Request{
		Name:             "Osi",
		Sources:          []string{"/src/Osi/A.cpp", "/src/Osi/B.cpp", "/src/OsiCpx/C.cpp"},
		Includes:         []string{"/src/Osi"},
		Defines:          []string{"COIN_HAS_OSI"},
		Std:              "c++11",
		FlagsIfSupported: []string{"-fsupported", "-funsupported"},
		OutDir:           out,
		Static:           true,
	}
	artifact, err := d.Compile(context.Background(), req)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if artifact != filepath.Join(out, "libOsi.a") {
		t.Errorf("artifact = %s", artifact)
	}

	data, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("archive holds %d objects, want 3:\n%s", len(lines), data)
	}
	for i, src := range req.Sources {
		if !strings.Contains(lines[i], "-c "+src) {
			t.Errorf("object %d built from %q, want %s", i, lines[i], src)
		}
		if !strings.HasPrefix(lines[i], "--driver-mode=g++ -std=c++11 -w -fsupported -O2 -g -I/src/Osi -DCOIN_HAS_OSI") {
			t.Errorf("object %d args = %q", i, lines[i])
		}
		if strings.Contains(lines[i], "-funsupported") {
			t.Errorf("unsupported flag passed: %q", lines[i])
		}
	}

	want := "cargo:rustc-link-search=native=" + out + "\ncargo:rustc-link-lib=static=Osi\n"
	if buf.String() != want {
		t.Errorf("directives = %q, want %q", buf.String(), want)
	}

	// The flag probes are cached for the next compile.
	before := countLines(t, lookup)
	if _, err := d.Compile(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got := countLines(t, lookup) - before; got != len(req.Sources) {
		t.Errorf("second compile ran the compiler %d times, want %d", got, len(req.Sources))
	}
}

func countLines(t *testing.T, lookup func(string) (string, bool)) int {
	t.Helper()
	cxx, _ := lookup("CXX")
	bin, _, _ := strings.Cut(cxx, " ")
	data, err := os.ReadFile(filepath.Join(filepath.Dir(bin), "cxx.log"))
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "\n")
}

func TestExecDriverCompileError(t *testing.T) {
	lookup := toolchainEnv(t)
	var buf bytes.Buffer
	d := NewExecDriver(directive.NewWriter(&buf), 1)
	d.Lookup = lookup

	_, err := d.Compile(context.Background(), &Request{
		Name:    "Osi",
		Sources: []string{"/src/Osi/ok.cpp", "/src/Osi/broken.cpp"},
		OutDir:  t.TempDir(),
	})
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Compile() error = %v, want *CompileError", err)
	}
	if ce.Source != "/src/Osi/broken.cpp" {
		t.Errorf("Source = %s", ce.Source)
	}
	if ce.Output != "broken.cpp:1:1: error: expected unqualified-id\n" {
		t.Errorf("Output = %q", ce.Output)
	}
	if buf.Len() != 0 {
		t.Errorf("directives emitted after failure: %q", buf.String())
	}
}

func TestExecDriverMissingCompiler(t *testing.T) {
	d := NewExecDriver(directive.NewWriter(&bytes.Buffer{}), 1)
	d.Lookup = func(k string) (string, bool) {
		if k == "CXX" {
			return filepath.Join(t.TempDir(), "no-such-cxx"), true
		}
		return "", false
	}
	if _, err := d.Compile(context.Background(), &Request{Name: "Osi", OutDir: t.TempDir()}); err == nil {
		t.Error("Compile() with a missing compiler succeeded")
	}
}
