package register

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	clientCmd "github.com/treeshare/treeshare/cmd/client"
	"github.com/treeshare/treeshare/cmd/util"
	"github.com/treeshare/treeshare/pkg/client"
	"github.com/treeshare/treeshare/pkg/config"
	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/errors"
)

var fs = afero.NewOsFs()

// New creates a new `register` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the tracking server.",
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

	creds, err := clientCmd.PromptCredentials(os.Stdin)
	if err != nil {
		return err
	}

	c := client.New(cfg, db.NewClientDB(nil))
	c.Credentials(creds.Name, creds.Digest)
	if err := c.RegisterAccount(); err != nil {
		return err
	}

	if err := client.SaveCredentials(fs, cfg.StateDirectory, creds); err != nil {
		return errors.WithContext(err, "cache credentials")
	}
	fmt.Printf("Registered %q.\n", creds.Name)
	return nil
}
