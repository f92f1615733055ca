package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treeshare/treeshare/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of TreeShare.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.Version)
		},
	}
}
