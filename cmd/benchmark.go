package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidekv/internal/benchmark"
)

var benchmarkCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a load test against a tidekv server",
	Long: `Run a concurrent load test against a running tidekv server.

Examples:
  tidekv bench --requests 10000 --clients 10
  tidekv bench --commands PING,SET,GET,INCR --requests 5000
  tidekv bench --pipeline 10 --requests 10000`,
	Run: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().String("host", "127.0.0.1", "Server host")
	benchmarkCmd.Flags().IntP("port", "p", 6380, "Server port")
	benchmarkCmd.Flags().Int("requests", 10000, "Total number of requests per command")
	benchmarkCmd.Flags().IntP("clients", "c", 50, "Number of parallel connections")
	benchmarkCmd.Flags().IntP("pipeline", "P", 1, "Requests pipelined per round trip")
	benchmarkCmd.Flags().Duration("timeout", 5*time.Second, "Connection timeout")
	benchmarkCmd.Flags().String("commands", "PING,SET,GET,INCR", "Comma-separated list of commands to test")
}

func runBenchmark(cmd *cobra.Command, _ []string) {
	commands := strings.Split(getStringFlag(cmd, "commands", "PING,SET,GET,INCR"), ",")
	for i, c := range commands {
		commands[i] = strings.ToUpper(strings.TrimSpace(c))
	}

	cfg := benchmark.Config{
		Host:     getStringFlag(cmd, "host", "127.0.0.1"),
		Port:     getIntFlag(cmd, "port", 6380),
		Clients:  getIntFlag(cmd, "clients", 50),
		Requests: getIntFlag(cmd, "requests", 10000),
		Pipeline: getIntFlag(cmd, "pipeline", 1),
		Timeout:  getDurationFlag(cmd, "timeout", 5*time.Second),
		Commands: commands,
	}

	fmt.Printf("tidekv bench: %s:%d, %d requests x %d clients, commands %s\n",
		cfg.Host, cfg.Port, cfg.Requests, cfg.Clients, strings.Join(cfg.Commands, ", "))

	results := benchmark.Run(cfg)
	benchmark.PrintResults(results)
}
