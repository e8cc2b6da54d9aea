package main

import (
	"os"
	"strings"

	cmd "github.com/maidsafe/temp-safe-network-sub012/src/cmd/safenode/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewKeygenCmd(),
		cmd.NewRunCmd(),
	)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	// run is the default command.
	if len(os.Args) == 1 || strings.HasPrefix(os.Args[1], "-") {
		rootCmd.SetArgs(append([]string{"run"}, os.Args[1:]...))
	}

	os.Exit(cmd.ExitCode(rootCmd.Execute()))
}
