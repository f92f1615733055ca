package client

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/treeshare/treeshare/cmd/util"
	"github.com/treeshare/treeshare/pkg/client"
	"github.com/treeshare/treeshare/pkg/config"
	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/errors"
)

var fs = afero.NewOsFs()

// New creates a new `client` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Synchronize a local directory with the tracking server.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(configPath); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultClientConfigPath,
		"Path to the client configuration file.")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.ParseClient(configPath)
	if err != nil {
		return errors.WithContext(err, "parse config")
	}

	catalog := db.NewClientDB(db.NewStore(cfg.StateDirectory))
	c := client.New(cfg, catalog)

	if err := login(c, cfg); err != nil {
		return err
	}
	return c.Run()
}

// login resolves credentials, preferring the cache unless the configuration
// insists on a manual prompt, and verifies them with the server before the
// sync loop starts. Working credentials are cached for the next run.
func login(c *client.Client, cfg config.Client) error {
	creds, cached := client.LoadCredentials(fs, cfg.StateDirectory)
	if cfg.ForceManualAuth {
		cached = false
	}

	if cached {
		c.Credentials(creds.Name, creds.Digest)
		err := c.Login()
		if err == nil {
			return nil
		}
		if errors.RootCause(err) != errors.ErrAuthFailed {
			return err
		}
		log.Info("Cached credentials were rejected")
	}

	creds, err := PromptCredentials(os.Stdin)
	if err != nil {
		return err
	}
	c.Credentials(creds.Name, creds.Digest)
	if err := c.Login(); err != nil {
		if errors.RootCause(err) == errors.ErrAuthFailed {
			return errors.NewFriendlyError(
				"The server rejected the login for %q.", creds.Name)
		}
		return err
	}

	if err := client.SaveCredentials(fs, cfg.StateDirectory, creds); err != nil {
		log.WithError(err).Warn("Failed to cache credentials")
	}
	return nil
}

// PromptCredentials reads an account name and password from the terminal.
// The password is digested immediately and never kept.
func PromptCredentials(in *os.File) (client.Credentials, error) {
	fmt.Print("Account name: ")
	reader := bufio.NewReader(in)
	name, err := reader.ReadString('\n')
	if err != nil {
		return client.Credentials{}, errors.WithContext(err, "read account name")
	}
	name = strings.TrimSpace(name)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(in.Fd()))
	fmt.Println()
	if err != nil {
		return client.Credentials{}, errors.WithContext(err, "read password")
	}

	return client.Credentials{
		Name:   name,
		Digest: db.Digest(string(password)),
	}, nil
}
