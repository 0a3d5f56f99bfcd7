package main

import (
	"os"

	cmd "github.com/nostrpay/peerd/cmd/peerd/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewKeygenCmd(),
		cmd.NewRunCmd(),
		cmd.NewDiscoverCmd(),
		cmd.NewTrustCmd(),
		cmd.NewFollowersCmd(),
		cmd.NewRelayCmd(),
	)

	// Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
