package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	logsRiskLevel string
	logsKind      string
	logsPath      string
	logsPage      int
	logsPageSize  int
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsRiskLevel, "risk-level", "", "Filter by risk level (safe, moderate, suspicious, dangerous)")
	logsCmd.Flags().StringVar(&logsKind, "kind", "", "Filter by event kind (created, modified, deleted, renamed)")
	logsCmd.Flags().StringVar(&logsPath, "path", "", "Filter by path substring")
	logsCmd.Flags().IntVar(&logsPage, "page", 1, "Page number")
	logsCmd.Flags().IntVar(&logsPageSize, "page-size", 25, "Entries per page")
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the change log",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("page", strconv.Itoa(logsPage))
		q.Set("page_size", strconv.Itoa(logsPageSize))
		if logsRiskLevel != "" {
			q.Set("risk_level", logsRiskLevel)
		}
		if logsKind != "" {
			q.Set("kind", logsKind)
		}
		if logsPath != "" {
			q.Set("path", logsPath)
		}

		var resp struct {
			Entries []struct {
				Timestamp      string `json:"timestamp"`
				Path           string `json:"path"`
				Kind           string `json:"kind"`
				RiskLevel      string `json:"risk_level"`
				Recommendation string `json:"recommendation"`
			} `json:"entries"`
			Total    int `json:"total"`
			Page     int `json:"page"`
			PageSize int `json:"page_size"`
		}
		if err := apiGet("/api/logs?"+q.Encode(), &resp); err != nil {
			return err
		}

		if resp.Total == 0 {
			fmt.Println("No entries.")
			return nil
		}
		for _, e := range resp.Entries {
			when := e.Timestamp
			if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
				when = humanize.Time(ts)
			}
			fmt.Printf("%-14s %-10s %-10s %s\n", when, e.Kind, e.RiskLevel, e.Path)
			if e.Recommendation != "" && e.RiskLevel != "safe" {
				fmt.Printf("               %s\n", e.Recommendation)
			}
		}
		pages := (resp.Total + resp.PageSize - 1) / resp.PageSize
		fmt.Printf("\nPage %d of %d (%s entries total)\n",
			resp.Page, pages, humanize.Comma(int64(resp.Total)))
		return nil
	},
}
