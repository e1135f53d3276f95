package feature

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/goplus/coinbuild/internal/library"
	"github.com/goplus/coinbuild/internal/metadata"
)

func osi(t *testing.T) *library.Library {
	t.Helper()
	lib, err := library.Builtin("Osi")
	if err != nil {
		t.Fatalf("Builtin(Osi): %v", err)
	}
	return lib
}

var base = []string{"OsiAuxInfo.cpp", "OsiCut.cpp"}

func TestResolveNoFeatures(t *testing.T) {
	lib := osi(t)
	root := filepath.Join("proj", "Osi", "Osi", "src")

	res, err := Resolve(lib, root, base, NewSet(), nil, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	wantSources := []string{
		filepath.Join(root, "Osi", "OsiAuxInfo.cpp"),
		filepath.Join(root, "Osi", "OsiCut.cpp"),
	}
	if !reflect.DeepEqual(res.Sources, wantSources) {
		t.Errorf("Sources = %v, want %v", res.Sources, wantSources)
	}
	if want := []string{filepath.Join(root, "Osi")}; !reflect.DeepEqual(res.Includes(), want) {
		t.Errorf("Includes() = %v, want %v", res.Includes(), want)
	}
	if want := []string{"OSI"}; !reflect.DeepEqual(res.Flags(), want) {
		t.Errorf("Flags() = %v, want %v", res.Flags(), want)
	}
	if want := []string{"COIN_HAS_OSI"}; !reflect.DeepEqual(res.Defines(), want) {
		t.Errorf("Defines() = %v, want %v", res.Defines(), want)
	}
}

func TestResolveCanonicalOrder(t *testing.T) {
	lib := osi(t)
	root := "src"

	// Insertion order is deliberately the reverse of the table order.
	set := NewSet("osixpr", "osiglpk", "osicpx")
	res, err := Resolve(lib, root, base, set, nil, Options{})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	wantSources := []string{
		filepath.Join(root, "Osi", "OsiAuxInfo.cpp"),
		filepath.Join(root, "Osi", "OsiCut.cpp"),
		filepath.Join(root, "OsiCpx", "OsiCpxSolverInterface.cpp"),
		filepath.Join(root, "OsiGlpk", "OsiGlpkSolverInterface.cpp"),
		filepath.Join(root, "OsiXpr", "OsiXprSolverInterface.cpp"),
	}
	if !reflect.DeepEqual(res.Sources, wantSources) {
		t.Errorf("Sources = %v, want %v", res.Sources, wantSources)
	}
	wantIncludes := []string{
		filepath.Join(root, "Osi"),
		filepath.Join(root, "OsiCpx"),
		filepath.Join(root, "OsiGlpk"),
		filepath.Join(root, "OsiXpr"),
	}
	if !reflect.DeepEqual(res.Includes(), wantIncludes) {
		t.Errorf("Includes() = %v, want %v", res.Includes(), wantIncludes)
	}
	if want := []string{"OSI", "OSICPX", "OSIGLPK", "OSIXPR"}; !reflect.DeepEqual(res.Flags(), want) {
		t.Errorf("Flags() = %v, want %v", res.Flags(), want)
	}
}

// TestResolveAllSubsets checks every subset of the Osi feature table: base
// entries first in manifest order, then exactly one source, include and
// flag per enabled feature in table order.
func TestResolveAllSubsets(t *testing.T) {
	lib := osi(t)
	n := len(lib.Features)

	for mask := 0; mask < 1<<n; mask++ {
		set := NewSet()
		var want []library.Feature
		// Populate the set back to front so map insertion order differs
		// from table order.
		for i := n - 1; i >= 0; i-- {
			if mask&(1<<i) != 0 {
				set.Add(lib.Features[i].Flag)
			}
		}
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				want = append(want, lib.Features[i])
			}
		}

		res, err := Resolve(lib, "src", base, set, nil, Options{})
		if err != nil {
			t.Fatalf("mask %b: %v", mask, err)
		}
		if len(res.Sources) != len(base)+len(want) {
			t.Fatalf("mask %b: %d sources, want %d", mask, len(res.Sources), len(base)+len(want))
		}
		if len(res.Includes()) != 1+len(want) || len(res.Flags()) != 1+len(want) {
			t.Fatalf("mask %b: includes=%d flags=%d, want %d each", mask, len(res.Includes()), len(res.Flags()), 1+len(want))
		}
		for i, f := range want {
			if got := res.Sources[len(base)+i]; got != filepath.Join("src", f.Dir, f.Source) {
				t.Errorf("mask %b: source[%d] = %q", mask, len(base)+i, got)
			}
			if got := res.Includes()[1+i]; got != filepath.Join("src", f.Dir) {
				t.Errorf("mask %b: include[%d] = %q", mask, 1+i, got)
			}
			if got := res.Flags()[1+i]; got != f.Token {
				t.Errorf("mask %b: flag[%d] = %q, want %q", mask, 1+i, got, f.Token)
			}
		}
		if !reflect.DeepEqual(res.Enabled, want) {
			t.Errorf("mask %b: Enabled = %v", mask, res.Enabled)
		}
	}
}

// Two enabled backends under FirstOnly: only the first in table order is
// built; the other is reported as dropped rather than silently ignored.
func TestResolveFirstOnly(t *testing.T) {
	lib := osi(t)
	set := NewSet("osispx", "osiglpk")

	res, err := Resolve(lib, "src", base, set, nil, Options{Policy: FirstOnly})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Enabled) != 1 || res.Enabled[0].Flag != "osiglpk" {
		t.Errorf("Enabled = %v, want [osiglpk]", res.Enabled)
	}
	if want := []string{"osispx"}; !reflect.DeepEqual(res.Dropped, want) {
		t.Errorf("Dropped = %v, want %v", res.Dropped, want)
	}
	if want := []string{"OSI", "OSIGLPK"}; !reflect.DeepEqual(res.Flags(), want) {
		t.Errorf("Flags() = %v, want %v", res.Flags(), want)
	}

	indep, err := Resolve(lib, "src", base, set, nil, Options{Policy: Independent})
	if err != nil {
		t.Fatal(err)
	}
	if len(indep.Enabled) != 2 || len(indep.Dropped) != 0 {
		t.Errorf("Independent: Enabled = %v, Dropped = %v", indep.Enabled, indep.Dropped)
	}
}

func TestResolveCompanions(t *testing.T) {
	lib := osi(t)
	companion := metadata.New([]string{"/cu/include", "/cu/include"}, []string{"COINUTILS"})

	res, err := Resolve(lib, "src", base, NewSet("osiglpk"), []metadata.Metadata{companion}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	wantOwn := []string{"OSI", "OSIGLPK"}
	if !reflect.DeepEqual(res.Own().Flags(), wantOwn) {
		t.Errorf("Own().Flags() = %v, want %v", res.Own().Flags(), wantOwn)
	}
	if want := []string{"OSI", "OSIGLPK", "COINUTILS"}; !reflect.DeepEqual(res.Flags(), want) {
		t.Errorf("Flags() = %v, want %v", res.Flags(), want)
	}
	// Companion entries are absorbed as published, duplicates included.
	wantIncludes := []string{filepath.Join("src", "Osi"), filepath.Join("src", "OsiGlpk"), "/cu/include", "/cu/include"}
	if !reflect.DeepEqual(res.Includes(), wantIncludes) {
		t.Errorf("Includes() = %v, want %v", res.Includes(), wantIncludes)
	}
}

func TestResolveDefineFormat(t *testing.T) {
	lib := osi(t)

	res, err := Resolve(lib, "src", base, NewSet("osicpx"), nil, Options{DefineFormat: "HAS_%s"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"HAS_OSI", "HAS_OSICPX"}; !reflect.DeepEqual(res.Defines(), want) {
		t.Errorf("Defines() = %v, want %v", res.Defines(), want)
	}

	for _, bad := range []string{"HAS", "%s_%s", "HAS_%d", "%%s"} {
		if _, err := Resolve(lib, "src", base, NewSet(), nil, Options{DefineFormat: bad}); err == nil {
			t.Errorf("DefineFormat %q accepted", bad)
		}
	}
}

func TestResolveUnknownFeature(t *testing.T) {
	lib := osi(t)
	if _, err := Resolve(lib, "src", base, NewSet("osiclp"), nil, Options{}); err == nil {
		t.Error("unknown feature accepted")
	}
}

func TestResolveMixedCaseDescriptorFlag(t *testing.T) {
	lib, err := library.Parse([]byte(`name = "Clp"
marker = "Clp/LICENSE"
manifest = "clp_lib_sources.txt"
[[feature]]
flag = "ClpGlpk"
dir = "ClpGlpk"
source = "ClpGlpkInterface.cpp"
token = "CLPGLPK"
`), nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	for _, flag := range []string{"ClpGlpk", "clpglpk", "CLPGLPK"} {
		res, err := Resolve(lib, "src", nil, NewSet(flag), nil, Options{})
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", flag, err)
		}
		if want := []string{"CLP", "CLPGLPK"}; !reflect.DeepEqual(res.Flags(), want) {
			t.Errorf("Resolve(%s) Flags() = %v, want %v", flag, res.Flags(), want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Independent, false},
		{"independent", Independent, false},
		{"ALL", Independent, false},
		{"first-only", FirstOnly, false},
		{"exclusive", FirstOnly, false},
		{"random", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetNames(t *testing.T) {
	s := NewSet(" OsiGlpk ", "osicpx", "")
	if want := []string{"osicpx", "osiglpk"}; !reflect.DeepEqual(s.Names(), want) {
		t.Errorf("Names() = %v, want %v", s.Names(), want)
	}
	if !s.Has("OSIGLPK") {
		t.Error("Has() should be case-insensitive")
	}
}

func TestTokens(t *testing.T) {
	lib := osi(t)
	enabled, _, err := Select(lib, NewSet("osimsk", "osicpx"), Independent)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"OSI", "OSICPX", "OSIMSK"}; !reflect.DeepEqual(Tokens(lib, enabled), want) {
		t.Errorf("Tokens() = %v, want %v", Tokens(lib, enabled), want)
	}
}
