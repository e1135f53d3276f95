package locate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DynamicHintVar makes the vcpkg probe consider dynamic triplets. Without it
// only static artifacts are reported.
const DynamicHintVar = "VCPKGRS_DYNAMIC"

// Vcpkg probes a vcpkg installation tree. VCPKG_ROOT locates the tree and
// VCPKGRS_TRIPLET, when set, overrides the triplet.
type Vcpkg struct {
	lookup func(string) (string, bool)
}

// NewVcpkg returns a vcpkg prober reading its settings through lookup.
func NewVcpkg(lookup func(string) (string, bool)) *Vcpkg {
	return &Vcpkg{lookup: lookup}
}

// get reads key from req.Env first, then the environment.
func (v *Vcpkg) get(req Request, key string) (string, bool) {
	prefix := key + "="
	for i := len(req.Env) - 1; i >= 0; i-- {
		if val, ok := strings.CutPrefix(req.Env[i], prefix); ok {
			return val, true
		}
	}
	return v.lookup(key)
}

// Probe looks for installed/<triplet>/lib/<Name>.lib.
func (v *Vcpkg) Probe(ctx context.Context, req Request) (*Result, error) {
	root, ok := v.get(req, "VCPKG_ROOT")
	if !ok || root == "" {
		return nil, errors.New("VCPKG_ROOT is not set")
	}
	triplet, err := v.triplet(req)
	if err != nil {
		return nil, err
	}

	prefix := filepath.Join(root, "installed", triplet)
	libDir := filepath.Join(prefix, "lib")
	if _, err := os.Stat(filepath.Join(libDir, req.Name+".lib")); err != nil {
		return nil, fmt.Errorf("vcpkg %s: %s.lib not installed", triplet, req.Name)
	}

	include := filepath.Join(prefix, "include", "coin-or")
	if _, err := os.Stat(include); err != nil {
		include = filepath.Join(prefix, "include")
	}
	return &Result{
		Includes:   []string{include},
		LinkSearch: []string{libDir},
		Libs:       []string{req.Name},
	}, nil
}

// triplet maps the target triple to a vcpkg triplet: static ->
// x64-windows-static, dynamic hint -> x64-windows, otherwise
// x64-windows-static-md. A static request ignores the hint.
func (v *Vcpkg) triplet(req Request) (string, error) {
	if t, ok := v.get(req, "VCPKGRS_TRIPLET"); ok && t != "" {
		return t, nil
	}
	arch, _, _ := strings.Cut(req.Target, "-")
	var varch string
	switch arch {
	case "x86_64":
		varch = "x64"
	case "i686", "i586":
		varch = "x86"
	case "aarch64":
		varch = "arm64"
	default:
		return "", fmt.Errorf("vcpkg: unsupported target %q", req.Target)
	}
	if req.Static {
		return varch + "-windows-static", nil
	}
	if hint, ok := v.get(req, DynamicHintVar); ok && hint != "" && hint != "0" {
		return varch + "-windows", nil
	}
	return varch + "-windows-static-md", nil
}
