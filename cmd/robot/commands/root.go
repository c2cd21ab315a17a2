// Package commands implements the robot node's command-line surface: a
// root cobra command holding a package-level *config.Config, with
// run/keygen subcommands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/mosaicnetworks/robot/pkg/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for the robot node.
var RootCmd = &cobra.Command{
	Use:              "robot",
	Short:            "robot consensus node",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(NewRunCmd())
	RootCmd.AddCommand(NewKeygenCmd())
}
