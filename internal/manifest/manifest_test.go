package manifest

import (
	"reflect"
	"strings"
	"testing"
	"testing/fstest"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{
			name:  "plain",
			input: "OsiCut.cpp\nOsiCuts.cpp\n",
			want:  []string{"OsiCut.cpp", "OsiCuts.cpp"},
		},
		{
			name:  "comments and blanks",
			input: "# header\n\n  OsiAuxInfo.cpp  \n\t\n# trailing\nOsiNames.cpp",
			want:  []string{"OsiAuxInfo.cpp", "OsiNames.cpp"},
		},
		{
			name:  "crlf",
			input: "OsiCut.cpp\r\nOsiCuts.cpp\r\n",
			want:  []string{"OsiCut.cpp", "OsiCuts.cpp"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:    "embedded whitespace",
			input:   "Osi Cut.cpp\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	fsys := fstest.MapFS{
		"osi_lib_sources.txt": {Data: []byte("B.cpp\nA.cpp\n")},
	}

	got, err := ReadFile(fsys, "osi_lib_sources.txt")
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	// Manifest order is preserved, never sorted.
	want := []string{"B.cpp", "A.cpp"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadFile() = %q, want %q", got, want)
	}

	if _, err := ReadFile(fsys, "missing.txt"); err == nil {
		t.Error("ReadFile() on missing file should fail")
	}
}
