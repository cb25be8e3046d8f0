package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show risk statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			ByRiskLevel struct {
				Safe       int64 `json:"safe"`
				Moderate   int64 `json:"moderate"`
				Suspicious int64 `json:"suspicious"`
				Dangerous  int64 `json:"dangerous"`
				Total      int64 `json:"total"`
			} `json:"by_risk_level"`
			TotalLogs       int64 `json:"total_logs"`
			TotalAnalyses   int64 `json:"total_analyses"`
			RecentDangerous []struct {
				Timestamp string `json:"timestamp"`
				Path      string `json:"path"`
				Kind      string `json:"kind"`
			} `json:"recent_dangerous"`
		}
		if err := apiGet("/api/statistics", &resp); err != nil {
			return err
		}

		fmt.Printf("Log entries:  %s\n", humanize.Comma(resp.TotalLogs))
		fmt.Printf("Analyses:     %s\n", humanize.Comma(resp.TotalAnalyses))
		if info, err := os.Stat(flagDB); err == nil {
			fmt.Printf("Database:     %s\n", humanize.Bytes(uint64(info.Size())))
		}

		fmt.Println("\nBy risk level:")
		fmt.Printf("  safe        %s\n", humanize.Comma(resp.ByRiskLevel.Safe))
		fmt.Printf("  moderate    %s\n", humanize.Comma(resp.ByRiskLevel.Moderate))
		fmt.Printf("  suspicious  %s\n", humanize.Comma(resp.ByRiskLevel.Suspicious))
		fmt.Printf("  dangerous   %s\n", humanize.Comma(resp.ByRiskLevel.Dangerous))

		if len(resp.RecentDangerous) > 0 {
			fmt.Println("\nRecent dangerous activity:")
			for _, e := range resp.RecentDangerous {
				when := e.Timestamp
				if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
					when = humanize.Time(ts)
				}
				fmt.Printf("  %-14s %-10s %s\n", when, e.Kind, e.Path)
			}
		}
		return nil
	},
}
