package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

// RootCmd is the root command for peerd
var RootCmd = &cobra.Command{
	Use:              "peerd",
	Short:            "payment peering over the event network",
	TraverseChildren: true,
}
