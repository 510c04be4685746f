package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tidekv/internal/logger"
	"tidekv/internal/server"
)

const defaultReadBuffer = 256 * 1024

// rootCmd, run with no subcommand, starts the server itself: "serve" is its
// implicit default action.
var rootCmd = &cobra.Command{
	Use:   "tidekv",
	Short: "A single-node in-memory key-value server speaking a RESP subset",
	Long: `tidekv is a single-node in-memory key-value server.
It speaks a subset of the RESP protocol: SET/GET with optional PX millisecond
TTLs, INCR, DEL, MULTI/EXEC/DISCARD transactions, PING, ECHO, COMMAND, and
INFO replication.`,
	Run: func(cmd *cobra.Command, _ []string) {
		logLevel := logger.LogLevel(getStringFlag(cmd, "log-level", "info"))
		logger.Init(logLevel)

		srv := server.New(server.Config{
			Addr:       getStringFlag(cmd, "port", ":6380"),
			ReplicaOf:  getStringFlag(cmd, "replicaof", ""),
			ReadBuffer: getIntFlag(cmd, "read-buffer", defaultReadBuffer),
		})

		if err := srv.Start(); err != nil {
			logger.Errorf("failed to start server: %v", err)
			os.Exit(1)
		}
		logger.Infof("server started on %s", srv.Addr())

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server...")
		if err := srv.Close(); err != nil {
			logger.Errorf("error closing server: %v", err)
		}
	},
}

// Execute runs the root command; child commands register themselves in
// their init functions. Called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error, fatal)")
	rootCmd.Flags().String("port", ":6380", "Address to listen on")
	rootCmd.Flags().String("replicaof", "", "Report as a replica of host:port in INFO (no replication stream is established)")
	rootCmd.Flags().Int("read-buffer", defaultReadBuffer, "Per-connection read buffer size in bytes")
}

func getStringFlag(cmd *cobra.Command, name, defaultValue string) string {
	if value, err := cmd.Flags().GetString(name); err == nil && value != "" {
		return value
	}
	return defaultValue
}

func getBoolFlag(cmd *cobra.Command, name string) bool {
	if value, err := cmd.Flags().GetBool(name); err == nil {
		return value
	}
	return false
}

func getIntFlag(cmd *cobra.Command, name string, defaultValue int) int {
	if value, err := cmd.Flags().GetInt(name); err == nil {
		return value
	}
	return defaultValue
}

func getDurationFlag(cmd *cobra.Command, name string, defaultValue time.Duration) time.Duration {
	if value, err := cmd.Flags().GetDuration(name); err == nil {
		return value
	}
	return defaultValue
}
