package config

import (
	"net"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/treeshare/treeshare/pkg/errors"
)

// DefaultServerConfigPath is where `treeshare server` looks for its config.
const DefaultServerConfigPath = "~/.treeshare/server.yaml"

// Server configures the server daemon.
type Server struct {
	Version string `json:"version,omitempty"`

	// Address and Port are the well-known rendezvous endpoint.
	Address string `json:"address"`
	Port    int    `json:"port"`

	// PortLow and PortHigh bound (inclusively) the range of ports leased to
	// client sessions during the connection handoff.
	PortLow  int `json:"portLow"`
	PortHigh int `json:"portHigh"`

	// RootDirectory is the tree being shared. Paths on the wire are
	// relative to it.
	RootDirectory string `json:"rootDirectory"`

	// BackupDirectory receives timestamped copies of files before they are
	// overwritten or deleted. Defaults to "backup" under StateDirectory.
	BackupDirectory string `json:"backupDirectory,omitempty"`

	// StateDirectory holds the catalog snapshot. Defaults to the directory
	// containing the config file.
	StateDirectory string `json:"stateDirectory,omitempty"`

	// SavePeriodSeconds is the period of the background catalog save.
	SavePeriodSeconds int `json:"savePeriodSeconds,omitempty"`

	// SessionTimeoutSeconds bounds how long a session read may block before
	// the session is unwound.
	SessionTimeoutSeconds int `json:"sessionTimeoutSeconds,omitempty"`
}

func (c Server) getVersion() string {
	return c.Version
}

// ParseServer loads and validates the server config at path.
func ParseServer(path string) (Server, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return Server{}, errors.WithContext(err, "expand config path")
	}

	config := Server{SavePeriodSeconds: 5, SessionTimeoutSeconds: 10}
	if err := parseConfig(path, &config); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Server{}, errors.NewFriendlyError("The server config file "+
				"doesn't exist at %q. Create it with at least address, port, "+
				"portLow, portHigh and rootDirectory set.", path)
		}
		return Server{}, errors.WithContext(err, "parse")
	}

	if config.Address == "" {
		return Server{}, errors.MissingFieldError{Field: "address"}
	}
	if net.ParseIP(config.Address) == nil {
		return Server{}, errors.NewFriendlyError(
			"%q is not a valid listen address.", config.Address)
	}
	if config.Port == 0 {
		return Server{}, errors.MissingFieldError{Field: "port"}
	}
	if config.PortLow == 0 || config.PortHigh == 0 {
		return Server{}, errors.MissingFieldError{Field: "portLow/portHigh"}
	}
	if config.PortHigh < config.PortLow {
		return Server{}, errors.NewFriendlyError(
			"The lease range is inverted: portLow %d > portHigh %d.",
			config.PortLow, config.PortHigh)
	}
	if config.RootDirectory == "" {
		return Server{}, errors.MissingFieldError{Field: "rootDirectory"}
	}

	config.RootDirectory, err = homedir.Expand(config.RootDirectory)
	if err != nil {
		return Server{}, errors.WithContext(err, "expand root directory")
	}

	if config.StateDirectory == "" {
		config.StateDirectory = filepath.Dir(path)
	}
	config.StateDirectory, err = homedir.Expand(config.StateDirectory)
	if err != nil {
		return Server{}, errors.WithContext(err, "expand state directory")
	}

	if config.BackupDirectory == "" {
		config.BackupDirectory = filepath.Join(config.StateDirectory, "backup")
	}
	config.BackupDirectory, err = homedir.Expand(config.BackupDirectory)
	if err != nil {
		return Server{}, errors.WithContext(err, "expand backup directory")
	}
	return config, nil
}
