package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/retention"
	"github.com/ppiankov/filesentry/internal/store"
)

var (
	purgeDays      int
	purgeMax       int
	purgeEmergency bool
)

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().IntVar(&purgeDays, "days", config.DefaultDaysToKeep, "Delete entries older than this many days")
	purgeCmd.Flags().IntVar(&purgeMax, "max", config.DefaultMaxRecords, "Keep at most this many entries (0 to skip)")
	purgeCmd.Flags().BoolVar(&purgeEmergency, "emergency", false, "Apply the emergency policy (1 day, 500 records)")
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run a retention cycle against the database directly",
	Long:  "Opens the database and deletes aged and excess entries.\nIntended for offline cleanup; the running daemon does this on its own schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(flagDB)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer st.Close()

		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		keeper := retention.New(st, config.Default().Retention, log)

		ctx := context.Background()
		var res retention.Result
		if purgeEmergency {
			res, err = keeper.Emergency(ctx)
		} else {
			res, err = keeper.Cycle(ctx, purgeDays, purgeMax)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %s log entries and %s analyses.\n",
			humanize.Comma(res.LogsDeleted), humanize.Comma(res.AnalysesDeleted))
		if res.Vacuumed {
			fmt.Println("Database compacted.")
		}
		return nil
	},
}
