package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	confPaths        []string
	confFlatPaths    []string
	confIntervalMins int
)

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.Flags().StringSliceVar(&confPaths, "watch", nil, "Directories to watch recursively (replaces current set)")
	configureCmd.Flags().StringSliceVar(&confFlatPaths, "watch-flat", nil, "Directories to watch non-recursively")
	configureCmd.Flags().IntVar(&confIntervalMins, "interval", 0, "Scan interval in minutes")
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Update watched directories or the scan interval",
	Long:  "Rewrites the daemon's configuration through the control API.\nA running pipeline is restarted so the change takes effect immediately.",
	RunE: func(cmd *cobra.Command, args []string) error {
		changed := false

		if len(confPaths)+len(confFlatPaths) > 0 {
			body := map[string][]string{
				"paths":               absAll(confPaths),
				"non_recursive_paths": absAll(confFlatPaths),
			}
			if err := apiPost("/api/directories", body, nil); err != nil {
				return err
			}
			fmt.Printf("Watching %d directories.\n", len(confPaths)+len(confFlatPaths))
			changed = true
		}

		if confIntervalMins > 0 {
			body := map[string]int{"minutes": confIntervalMins}
			if err := apiPost("/api/scan-interval", body, nil); err != nil {
				return err
			}
			fmt.Printf("Scan interval set to %d minute(s).\n", confIntervalMins)
			changed = true
		}

		if !changed {
			return fmt.Errorf("nothing to do: pass --watch, --watch-flat, or --interval")
		}
		return nil
	},
}

func absAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}
