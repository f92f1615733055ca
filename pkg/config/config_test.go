package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/treeshare/treeshare/pkg/errors"
)

func writeConfig(t *testing.T, path, contents string) {
	assert.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
}

func TestParseClient(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeConfig(t, "/etc/treeshare/client.yaml", `
serverAddress: 127.0.0.1
serverPort: 7717
trackedDirectory: /srv/tree
listenPort: 8811
ignoredSuffixes:
  - .swp
  - "~"
`)

	cfg, err := ParseClient("/etc/treeshare/client.yaml")
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.ServerAddress)
	assert.Equal(t, 7717, cfg.ServerPort)
	assert.Equal(t, "/srv/tree", cfg.TrackedDirectory)
	assert.Equal(t, 8811, cfg.ListenPort)
	assert.Equal(t, []string{".swp", "~"}, cfg.IgnoredSuffixes)

	// Defaults.
	assert.Equal(t, 10, cfg.CheckPeriodSeconds)
	assert.Equal(t, "/etc/treeshare", cfg.StateDirectory)
	assert.False(t, cfg.ForceManualAuth)
}

func TestParseClientMissingFields(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeConfig(t, "/client.yaml", `
serverAddress: 127.0.0.1
serverPort: 7717
`)

	_, err := ParseClient("/client.yaml")
	assert.Error(t, err)
	assert.IsType(t, errors.MissingFieldError{}, errors.RootCause(err))
}

func TestParseClientMissingFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	_, err := ParseClient("/nope.yaml")
	assert.Error(t, err)
	assert.IsType(t, errors.FriendlyError{}, errors.RootCause(err))
}

func TestParseClientRejectsUnknownFields(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeConfig(t, "/client.yaml", `
serverAddress: 127.0.0.1
serverPort: 7717
trackedDirectory: /srv/tree
listenPort: 8811
trackedDir: typo
`)

	_, err := ParseClient("/client.yaml")
	assert.Error(t, err)
}

func TestParseServer(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeConfig(t, "/etc/treeshare/server.yaml", `
address: 0.0.0.0
port: 7717
portLow: 7720
portHigh: 7780
rootDirectory: /srv/tree
`)

	cfg, err := ParseServer("/etc/treeshare/server.yaml")
	assert.NoError(t, err)
	assert.Equal(t, 7720, cfg.PortLow)
	assert.Equal(t, 7780, cfg.PortHigh)
	assert.Equal(t, "/etc/treeshare", cfg.StateDirectory)
	assert.Equal(t, "/etc/treeshare/backup", cfg.BackupDirectory)
	assert.Equal(t, 5, cfg.SavePeriodSeconds)
}

func TestParseServerInvalidAddress(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeConfig(t, "/server.yaml", `
address: not-an-ip
port: 7717
portLow: 7720
portHigh: 7780
rootDirectory: /srv/tree
`)

	_, err := ParseServer("/server.yaml")
	assert.Error(t, err)
}

func TestParseServerInvertedRange(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeConfig(t, "/server.yaml", `
address: 0.0.0.0
port: 7717
portLow: 7780
portHigh: 7720
rootDirectory: /srv/tree
`)

	_, err := ParseServer("/server.yaml")
	assert.Error(t, err)
}

func TestVersionGate(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeConfig(t, "/server.yaml", `
version: 99.0.0
address: 0.0.0.0
port: 7717
portLow: 7720
portHigh: 7780
rootDirectory: /srv/tree
`)

	_, err := ParseServer("/server.yaml")
	assert.Error(t, err)
	assert.IsType(t, incompatibleVersionError{}, errors.RootCause(err))
}
