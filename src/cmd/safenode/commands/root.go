package commands

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/config"
	"github.com/spf13/cobra"
)

// Exit codes of the safenode binary.
const (
	ExitOK          = 0
	ExitUnreachable = 1
)

var (
	_config = config.NewDefaultConfig()
)

// RootCmd is the root command for safenode
var RootCmd = &cobra.Command{
	Use:              "safenode",
	Short:            "safe network node",
	TraverseChildren: true,
}

// ExitCode maps the error a command returned to the process exit code. Bad
// configuration and a network we could not reach or join both exit with
// ExitUnreachable; the other non-zero codes are reserved.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return ExitUnreachable
}
