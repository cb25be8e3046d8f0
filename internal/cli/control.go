package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/filesentry/internal/supervisor"
)

func init() {
	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, restartCmd, scanCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st struct {
			Running       bool     `json:"running"`
			Roots         []string `json:"roots"`
			QueueDepth    int      `json:"queue_depth"`
			Workers       int      `json:"workers"`
			LastScanAt    string   `json:"last_scan_at"`
			EventsDropped uint64   `json:"events_dropped_total"`
		}
		if err := apiGet("/api/status", &st); err != nil {
			// API unreachable; fall back to the pidfile probe.
			pidPath := filepath.Join(flagStateDir, "filesentry.pid")
			if pid, alive := supervisor.PIDAlive(pidPath); alive {
				fmt.Printf("Daemon alive (PID %d) but API unreachable at %s.\n", pid, flagAddr)
				return nil
			}
			fmt.Println("Monitor: not running")
			return nil
		}

		if !st.Running {
			fmt.Println("Monitor: stopped")
			return nil
		}
		fmt.Println("Monitor: running")
		fmt.Printf("  Workers:     %d\n", st.Workers)
		fmt.Printf("  Queue depth: %d\n", st.QueueDepth)
		fmt.Printf("  Dropped:     %d\n", st.EventsDropped)
		if st.LastScanAt != "" {
			if ts, err := time.Parse(time.RFC3339, st.LastScanAt); err == nil {
				fmt.Printf("  Last scan:   %s\n", ts.Local().Format(time.RFC1123))
			}
		}
		fmt.Println("  Watched roots:")
		for _, r := range st.Roots {
			fmt.Printf("    %s\n", r)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start monitoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiPost("/api/start", nil, nil); err != nil {
			return err
		}
		fmt.Println("Monitoring started.")
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop monitoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiPost("/api/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Monitoring stopped.")
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart monitoring with the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiPost("/api/restart", nil, nil); err != nil {
			return err
		}
		fmt.Println("Monitoring restarted.")
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger an immediate full scan of all watched roots",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			ScanID string `json:"scan_id"`
		}
		if err := apiPost("/api/scan", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("Full scan scheduled (id %s).\n", resp.ScanID)
		return nil
	},
}
