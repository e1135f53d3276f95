// Package manifest reads source manifests: plain text files listing one
// relative source path per line.
package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// Parse returns the entries of a manifest in file order. Surrounding
// whitespace is trimmed; blank lines and lines starting with '#' are skipped.
func Parse(r io.Reader) ([]string, error) {
	var entries []string
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		if strings.ContainsAny(entry, " \t") {
			return nil, fmt.Errorf("line %d: source path %q contains whitespace", line, entry)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFile parses the manifest at name in fsys.
func ReadFile(fsys fs.FS, name string) ([]string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return entries, nil
}
