package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store directory layout:
//
//	dir/
//	  <lower-name>.json   # published metadata of one library
//
// Entries carry no timestamps so an unchanged build rewrites identical bytes.
type Store struct {
	dir string
}

type entry struct {
	Name     string   `json:"name"`
	Includes []string `json:"includes"`
	Flags    []string `json:"flags"`
}

// NewStore returns a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

func (s *Store) file(name string) string {
	return filepath.Join(s.dir, strings.ToLower(name)+".json")
}

// Load returns the metadata saved for name.
func (s *Store) Load(name string) (Metadata, error) {
	data, err := os.ReadFile(s.file(name))
	if err != nil {
		return Metadata{}, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Metadata{}, fmt.Errorf("load metadata %s: %w", name, err)
	}
	return New(e.Includes, e.Flags), nil
}

// Save writes m for name, replacing any previous entry atomically.
func (s *Store) Save(name string, m Metadata) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	e := entry{
		Name:     name,
		Includes: m.Includes(),
		Flags:    m.Flags(),
	}
	if e.Includes == nil {
		e.Includes = []string{}
	}
	if e.Flags == nil {
		e.Flags = []string{}
	}
	data, err := json.MarshalIndent(&e, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".metadata-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.file(name))
}
