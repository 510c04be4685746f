package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tidekv/internal/cli"
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Interactive tidekv command-line client",
	Long: `Interactive tidekv command-line client, similar in spirit to redis-cli.

Examples:
  tidekv cli
  tidekv cli --host 127.0.0.1 --port 6380
  tidekv cli --eval "SET key value"
  tidekv cli --file commands.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cli.Run(cli.Config{
			Host:    getStringFlag(cmd, "host", "127.0.0.1"),
			Port:    getIntFlag(cmd, "port", 6380),
			Timeout: getDurationFlag(cmd, "timeout", 5*time.Second),
			Eval:    getStringFlag(cmd, "eval", ""),
			File:    getStringFlag(cmd, "file", ""),
			Pipe:    getBoolFlag(cmd, "pipe"),
		}, args)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(cliCmd)

	cliCmd.Flags().String("host", "127.0.0.1", "Server host")
	cliCmd.Flags().IntP("port", "p", 6380, "Server port")
	cliCmd.Flags().Duration("timeout", 5*time.Second, "Connection timeout")
	cliCmd.Flags().String("eval", "", "Send a single command and exit")
	cliCmd.Flags().String("file", "", "Execute commands from a file, one per line")
	cliCmd.Flags().Bool("pipe", false, "Read commands from stdin, one per line")
}
