// Package cli implements the filesentry command tree. The run command
// hosts the daemon; the rest talk to it over the local HTTP API.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagStateDir string
	flagDB       string
	flagAddr     string
)

var rootCmd = &cobra.Command{
	Use:   "filesentry",
	Short: "Host-resident file activity security monitor",
	Long:  "Watches configured directory trees for file changes, scores each changed file for security risk, and keeps a bounded audit log of what it saw.",
}

func init() {
	home := dataDir()
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", filepath.Join(home, "config.json"), "Path to monitor configuration")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", filepath.Join(home, "state"), "Directory for pidfile and watcher state")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", filepath.Join(home, "filesentry.db"), "Path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "127.0.0.1:8873", "Daemon HTTP listen address")
}

func dataDir() string {
	if v := os.Getenv("FILESENTRY_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filesentry"
	}
	return filepath.Join(home, ".filesentry")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
