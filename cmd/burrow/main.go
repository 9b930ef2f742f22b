package main

import (
	"fmt"
	"os"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - In-process reactive key-value store",
	Long: `Burrow is an embedded, schema-validated key-value store with
transactional multi-bucket writes, live queries, TTL eviction,
and snapshot persistence.

This CLI inspects snapshot files and runs demo workloads.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file (rotated)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(demoCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	logFile, _ := rootCmd.PersistentFlags().GetString("log-file")

	cfg := log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOut,
	}
	if logFile != "" {
		cfg.File = &log.FileConfig{
			Path:       logFile,
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		}
	}
	log.Init(cfg)
}
