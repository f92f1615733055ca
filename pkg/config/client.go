package config

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/treeshare/treeshare/pkg/errors"
)

// DefaultClientConfigPath is where `treeshare client` looks for its config.
const DefaultClientConfigPath = "~/.treeshare/client.yaml"

// Client configures the client daemon.
type Client struct {
	Version string `json:"version,omitempty"`

	// ServerAddress and ServerPort locate the server's well-known
	// rendezvous endpoint.
	ServerAddress string `json:"serverAddress"`
	ServerPort    int    `json:"serverPort"`

	// TrackedDirectory is the root of the synchronized subtree. Created on
	// first scan if it doesn't exist.
	TrackedDirectory string `json:"trackedDirectory"`

	// CheckPeriodSeconds is the detector's polling period.
	CheckPeriodSeconds int `json:"checkPeriodSeconds,omitempty"`

	// ListenPort is where the push listener accepts server notifications.
	ListenPort int `json:"listenPort"`

	// IgnoredSuffixes are file name endings the detector skips. ".tmp" is
	// always ignored regardless of this list.
	IgnoredSuffixes []string `json:"ignoredSuffixes,omitempty"`

	// ForceManualAuth makes the client prompt for credentials even when a
	// saved credential file exists.
	ForceManualAuth bool `json:"forceManualAuth,omitempty"`

	// StateDirectory holds the catalog snapshot and saved credentials.
	// Defaults to the directory containing the config file.
	StateDirectory string `json:"stateDirectory,omitempty"`
}

func (c Client) getVersion() string {
	return c.Version
}

// ParseClient loads and validates the client config at path.
func ParseClient(path string) (Client, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return Client{}, errors.WithContext(err, "expand config path")
	}

	config := Client{CheckPeriodSeconds: 10}
	if err := parseConfig(path, &config); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Client{}, errors.NewFriendlyError("The client config file "+
				"doesn't exist at %q. Create it with at least serverAddress, "+
				"serverPort, trackedDirectory and listenPort set.", path)
		}
		return Client{}, errors.WithContext(err, "parse")
	}

	if config.ServerAddress == "" {
		return Client{}, errors.MissingFieldError{Field: "serverAddress"}
	}
	if config.ServerPort == 0 {
		return Client{}, errors.MissingFieldError{Field: "serverPort"}
	}
	if config.TrackedDirectory == "" {
		return Client{}, errors.MissingFieldError{Field: "trackedDirectory"}
	}
	if config.ListenPort == 0 {
		return Client{}, errors.MissingFieldError{Field: "listenPort"}
	}

	config.TrackedDirectory, err = homedir.Expand(config.TrackedDirectory)
	if err != nil {
		return Client{}, errors.WithContext(err, "expand tracked directory")
	}

	if config.StateDirectory == "" {
		config.StateDirectory = filepath.Dir(path)
	}
	config.StateDirectory, err = homedir.Expand(config.StateDirectory)
	if err != nil {
		return Client{}, errors.WithContext(err, "expand state directory")
	}
	return config, nil
}
