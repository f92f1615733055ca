package client

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/treeshare/treeshare/pkg/errors"
)

const credentialsFile = "credentials.yaml"

// Credentials is the cached login. Only the digest is ever stored; the
// password itself never touches disk.
type Credentials struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
}

// LoadCredentials reads the cached login from the state directory. A
// missing or unreadable cache just means the user gets prompted.
func LoadCredentials(fs afero.Fs, stateDir string) (Credentials, bool) {
	var creds Credentials
	contents, err := afero.ReadFile(fs, filepath.Join(stateDir, credentialsFile))
	if err != nil {
		return creds, false
	}
	if err := yaml.Unmarshal(contents, &creds); err != nil {
		log.WithError(err).Warn("Ignoring malformed credential cache")
		return creds, false
	}
	return creds, creds.Name != "" && creds.Digest != ""
}

// SaveCredentials caches a successful login for later runs.
func SaveCredentials(fs afero.Fs, stateDir string, creds Credentials) error {
	contents, err := yaml.Marshal(creds)
	if err != nil {
		return errors.WithContext(err, "marshal credentials")
	}
	if err := fs.MkdirAll(stateDir, 0700); err != nil {
		return errors.WithContext(err, "make state directory")
	}
	path := filepath.Join(stateDir, credentialsFile)
	if err := afero.WriteFile(fs, path, contents, 0600); err != nil {
		return errors.WithContext(err, "write credentials")
	}
	return nil
}
