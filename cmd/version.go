package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version, Commit and BuildDate are meant to be overridden at build time via
// -ldflags "-X tidekv/cmd.Version=... -X tidekv/cmd.Commit=... -X tidekv/cmd.BuildDate=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionTemplate = `
Version: %s
Commit: %s
Build date: %s
GOOS: %s-%s
`

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf(versionTemplate, Version, Commit, BuildDate, runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
