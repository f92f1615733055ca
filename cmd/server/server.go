package server

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/treeshare/treeshare/cmd/util"
	"github.com/treeshare/treeshare/pkg/config"
	"github.com/treeshare/treeshare/pkg/db"
	"github.com/treeshare/treeshare/pkg/errors"
	"github.com/treeshare/treeshare/pkg/server"
)

// New creates a new `server` command.
func New() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the tracking server.",
		Long: "Run the tracking server. An admin console is read from\n" +
			"standard input; type `help` there for the available commands.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(configPath); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultServerConfigPath,
		"Path to the server configuration file.")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.ParseServer(configPath)
	if err != nil {
		return errors.WithContext(err, "parse config")
	}

	catalog := db.NewServerDB(db.NewStore(cfg.StateDirectory))
	if err := catalog.Load(); err != nil {
		return errors.WithContext(err, "load catalog")
	}

	return server.New(cfg, catalog).Run(os.Stdin)
}
