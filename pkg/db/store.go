package db

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ghodss/yaml"
	version "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/treeshare/treeshare/pkg/errors"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// SnapshotVersion is the catalog snapshot format written by this binary.
// Snapshots from a newer binary are refused on load rather than guessed at.
const SnapshotVersion = "1.0.0"

const (
	serverSnapshotFile = "catalog.yaml"
	clientSnapshotFile = "files.yaml"
)

// Store reads and writes catalog snapshots under one directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

type serverSnapshot struct {
	Version string   `json:"version"`
	Files   []*File  `json:"files,omitempty"`
	Users   []*User  `json:"users,omitempty"`
	Groups  []*Group `json:"groups,omitempty"`
}

type clientSnapshot struct {
	Version string  `json:"version"`
	Files   []*File `json:"files,omitempty"`
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) exists(name string) bool {
	exists, err := afero.Exists(fs, s.path(name))
	return err == nil && exists
}

func (s *Store) save(name string, snapshot interface{}) error {
	out, err := yaml.Marshal(snapshot)
	if err != nil {
		return errors.WithContext(err, "marshal snapshot")
	}

	if err := fs.MkdirAll(s.dir, 0755); err != nil {
		return errors.WithContext(err, "make snapshot dir")
	}

	// Write to a sibling temp file and rename so a crash mid-save leaves
	// the previous snapshot intact.
	tmp := s.path(name) + ".tmp"
	if err := afero.WriteFile(fs, tmp, out, 0644); err != nil {
		return errors.WithContext(err, "write snapshot")
	}
	if err := fs.Rename(tmp, s.path(name)); err != nil {
		return errors.WithContext(err, "replace snapshot")
	}
	return nil
}

func (s *Store) load(name string, snapshot interface{}) (bool, error) {
	contents, err := afero.ReadFile(fs, s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WithContext(err, "read snapshot")
	}

	if err := yaml.Unmarshal(contents, snapshot); err != nil {
		return false, errors.WithContext(err, "parse snapshot")
	}

	var header struct {
		Version string `json:"version"`
	}
	if err := yaml.Unmarshal(contents, &header); err != nil {
		return false, errors.WithContext(err, "parse snapshot version")
	}
	if err := checkSnapshotVersion(header.Version); err != nil {
		return false, err
	}
	return true, nil
}

func checkSnapshotVersion(got string) error {
	if got == "" {
		// Early snapshots predate the version field.
		return nil
	}

	snapshotVersion, err := version.NewVersion(got)
	if err != nil {
		return errors.WithContext(err, "parse snapshot version")
	}
	supported := version.Must(version.NewVersion(SnapshotVersion))
	if snapshotVersion.GreaterThan(supported) {
		return errors.NewFriendlyError("The catalog snapshot was written by "+
			"a newer release (format %s, supported %s). Upgrade this binary "+
			"before loading it.", got, SnapshotVersion)
	}
	return nil
}

func sortedFiles(files map[string]*File) []*File {
	out := make([]*File, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func sortedUsers(users map[string]*User) []*User {
	out := make([]*User, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedGroups(groups map[string]*Group) []*Group {
	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
