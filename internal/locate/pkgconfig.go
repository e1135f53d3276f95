package locate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cli/safeexec"
	"github.com/mattn/go-shellwords"
	"golang.org/x/mod/semver"
)

// PkgConfig probes installed packages through the pkg-config tool.
// The PKG_CONFIG variable overrides the executable.
type PkgConfig struct {
	lookup func(string) (string, bool)
}

// NewPkgConfig returns a pkg-config prober reading its settings through
// lookup.
func NewPkgConfig(lookup func(string) (string, bool)) *PkgConfig {
	return &PkgConfig{lookup: lookup}
}

func (p *PkgConfig) bin() string {
	if v, ok := p.lookup("PKG_CONFIG"); ok && v != "" {
		return v
	}
	return "pkg-config"
}

// Probe queries req.Name. With req.Static the query includes private
// dependencies. A MinVersion below the installed version is not found.
func (p *PkgConfig) Probe(ctx context.Context, req Request) (*Result, error) {
	bin, err := safeexec.LookPath(p.bin())
	if err != nil {
		return nil, fmt.Errorf("pkg-config unavailable: %w", err)
	}

	static := func(args ...string) []string {
		if req.Static {
			args = append([]string{"--static"}, args...)
		}
		return append(args, req.Name)
	}

	version, err := p.output(ctx, bin, req, "--modversion", req.Name)
	if err != nil {
		return nil, err
	}
	version = strings.TrimSpace(version)
	if req.MinVersion != "" && !atLeast(version, req.MinVersion) {
		return nil, fmt.Errorf("%s %s is older than required %s", req.Name, version, req.MinVersion)
	}

	cflags, err := p.output(ctx, bin, req, static("--cflags-only-I")...)
	if err != nil {
		return nil, err
	}
	libs, err := p.output(ctx, bin, req, static("--libs")...)
	if err != nil {
		return nil, err
	}

	res := &Result{Version: version}
	words, err := shellwords.Parse(cflags)
	if err != nil {
		return nil, fmt.Errorf("parse cflags of %s: %w", req.Name, err)
	}
	for _, w := range words {
		if dir, ok := strings.CutPrefix(w, "-I"); ok && dir != "" {
			res.Includes = append(res.Includes, dir)
		}
	}
	words, err = shellwords.Parse(libs)
	if err != nil {
		return nil, fmt.Errorf("parse libs of %s: %w", req.Name, err)
	}
	for _, w := range words {
		switch {
		case strings.HasPrefix(w, "-L") && len(w) > 2:
			res.LinkSearch = append(res.LinkSearch, w[2:])
		case strings.HasPrefix(w, "-l") && len(w) > 2:
			res.Libs = append(res.Libs, w[2:])
		}
	}
	return res, nil
}

func (p *PkgConfig) output(ctx context.Context, bin string, req Request, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), req.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("pkg-config %s: %s", strings.Join(args, " "), msg)
		}
		return "", fmt.Errorf("pkg-config %s: %w", strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

// atLeast compares dotted versions semantically. Unparseable versions never
// satisfy a requirement.
func atLeast(have, want string) bool {
	h, w := canonical(have), canonical(want)
	if h == "" || w == "" {
		return false
	}
	return semver.Compare(h, w) >= 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}
